package main

import "github.com/LENAX/optsched/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
