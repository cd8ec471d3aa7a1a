package cmd

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/optsched/pkg/api"
	"github.com/LENAX/optsched/pkg/api/dto"
	"github.com/LENAX/optsched/pkg/cli/output"
	"github.com/LENAX/optsched/pkg/core/engine"
	"github.com/LENAX/optsched/pkg/dot"
	"github.com/LENAX/optsched/pkg/storage/sqlite"
	"github.com/LENAX/optsched/pkg/storage/sqlstore"
)

const sampleDOT = `digraph example {
	a [Weight=3];
	b [Weight=4];
	c [Weight=2];
	d [Weight=1];
	e [Weight=3];
	a -> c [Weight=2];
	b -> d [Weight=3];
	c -> e [Weight=4];
	b -> e [Weight=2];
}
`

// run 执行命令，返回命令输出与 output 包输出
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	// 包级 flag 变量在多次执行间保留，逐次复位
	serverURL, outputJSON, configPath = "http://localhost:8080", false, ""
	solveProcessors, solveThreads, solveOutput = 1, 0, ""
	solveTimeout, solveRemote, solveNoStore, solveSkipCache, solveGantt = 0, false, false, false, false
	graphProcessors = 1
	runsStatus, runsFingerprint, runsLimit, runsOffset = "", "", 20, 0

	var stdout, messages bytes.Buffer
	prev := output.Out
	output.Out = &messages
	defer func() { output.Out = prev }()

	root := Root()
	root.SetOut(&stdout)
	root.SetErr(&stdout)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), messages.String(), err
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "example.dot")
	require.NoError(t, os.WriteFile(path, []byte(sampleDOT), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	stdout, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "OptSched CLI")
	assert.Contains(t, stdout, Version)
}

func TestSolve_LocalToFile(t *testing.T) {
	graphPath := writeSample(t)
	outPath := filepath.Join(t.TempDir(), "example.out.dot")

	_, messages, err := run(t, "solve", graphPath, "2", "-p", "2", "--no-store", "-o", outPath, "--gantt")
	require.NoError(t, err)
	assert.Contains(t, messages, "makespan=9")
	assert.Contains(t, messages, "P1")
	assert.Contains(t, messages, "P2")

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	s, err := dot.ReadSchedule(f, 2)
	require.NoError(t, err)
	assert.Equal(t, 9, s.Makespan())
}

func TestSolve_LocalToStdout(t *testing.T) {
	stdout, _, err := run(t, "solve", writeSample(t), "1", "--no-store")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "digraph"))
	assert.Contains(t, stdout, "Processor=1")
	assert.NotContains(t, stdout, "Processor=2")
}

func TestSolve_Errors(t *testing.T) {
	_, _, err := run(t, "solve", filepath.Join(t.TempDir(), "missing.dot"), "--no-store")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.dot")
	require.NoError(t, os.WriteFile(bad, []byte("digraph { a -> }"), 0o644))
	_, messages, err := run(t, "solve", bad, "--no-store")
	assert.Error(t, err)
	assert.Contains(t, messages, "解析任务图失败")

	_, _, err = run(t, "solve", writeSample(t), "0", "--no-store")
	assert.ErrorIs(t, err, engine.ErrInvalidRequest)

	_, messages, err = run(t, "solve", writeSample(t), "two", "--no-store")
	assert.Error(t, err)
	assert.Contains(t, messages, "处理器数无效")

	// --processors 与位置参数等价
	stdout, _, err := run(t, "solve", writeSample(t), "--processors", "2", "--no-store")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Processor=")
}

func TestGraphInspect(t *testing.T) {
	_, messages, err := run(t, "graph", "inspect", writeSample(t), "-p", "2", "--json")
	require.NoError(t, err)

	var info GraphInfo
	require.NoError(t, json.Unmarshal([]byte(messages), &info))
	assert.Equal(t, "example", info.Name)
	assert.Equal(t, 5, info.Nodes)
	assert.Equal(t, 4, info.Edges)
	assert.Equal(t, 13, info.TotalCost)
	assert.LessOrEqual(t, info.LowerBound, 9)
	assert.GreaterOrEqual(t, info.GreedyMakespan, 9)
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := sqlite.NewRunRepoFromDSN(":memory:", sqlstore.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	eng, err := engine.NewEngine(nil, engine.WithRepository(repo))
	require.NoError(t, err)

	srv := httptest.NewServer(api.SetupRouter(eng, "test"))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteSolveAndRuns(t *testing.T) {
	srv := newServer(t)

	_, messages, err := run(t, "solve", writeSample(t), "2", "--remote", "-s", srv.URL, "--json")
	require.NoError(t, err)
	var solved dto.SolveResponse
	require.NoError(t, json.Unmarshal([]byte(messages), &solved))
	assert.Equal(t, 9, solved.Makespan)

	_, messages, err = run(t, "runs", "list", "-s", srv.URL, "--json")
	require.NoError(t, err)
	var list dto.ListResponse[dto.RunSummary]
	require.NoError(t, json.Unmarshal([]byte(messages), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, solved.RunID, list.Items[0].ID)

	_, messages, err = run(t, "runs", "list", "-s", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, messages, solved.RunID)

	stdout, _, err := run(t, "runs", "show", solved.RunID, "-s", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Makespan:    9")

	stdout, _, err = run(t, "runs", "schedule", solved.RunID, "-s", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "digraph")

	_, _, err = run(t, "runs", "cancel", solved.RunID, "-s", srv.URL)
	assert.Error(t, err, "已结束的求解无法取消")

	_, messages, err = run(t, "runs", "delete", solved.RunID, "-s", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, messages, "已删除")

	_, _, err = run(t, "runs", "show", solved.RunID, "-s", srv.URL)
	assert.Error(t, err)
}

func TestJobs(t *testing.T) {
	srv := newServer(t)

	_, messages, err := run(t, "jobs", "list", "-s", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, messages, "暂无定时任务")

	_, _, err = run(t, "jobs", "run", "missing", "-s", srv.URL)
	assert.Error(t, err)
}
