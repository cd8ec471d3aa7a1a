package output

import (
	"encoding/json"
	"io"

	"github.com/fatih/color"
)

// Out 输出目标，默认带颜色的标准输出
var Out io.Writer = color.Output

// PrintJSON 输出JSON格式
func PrintJSON(data interface{}) error {
	encoder := json.NewEncoder(Out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Success 输出成功消息
func Success(format string, args ...interface{}) {
	color.New(color.FgGreen, color.Bold).Fprintf(Out, "✅ "+format+"\n", args...)
}

// Error 输出错误消息
func Error(format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Fprintf(Out, "❌ "+format+"\n", args...)
}

// Info 输出信息
func Info(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(Out, "ℹ️  "+format+"\n", args...)
}

// Warning 输出警告
func Warning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(Out, "⚠️  "+format+"\n", args...)
}
