package client_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/optsched/pkg/api"
	"github.com/LENAX/optsched/pkg/cli/client"
	"github.com/LENAX/optsched/pkg/core/engine"
	"github.com/LENAX/optsched/pkg/storage/sqlite"
	"github.com/LENAX/optsched/pkg/storage/sqlstore"
)

const chainDOT = `digraph chain {
	a [Weight=2];
	b [Weight=3];
	c [Weight=1];
	a -> b [Weight=5];
	b -> c [Weight=5];
}`

func newClient(t *testing.T) *client.Client {
	t.Helper()
	repo, err := sqlite.NewRunRepoFromDSN(":memory:", sqlstore.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	eng, err := engine.NewEngine(nil, engine.WithRepository(repo))
	require.NoError(t, err)

	srv := httptest.NewServer(api.SetupRouter(eng, "test"))
	t.Cleanup(srv.Close)
	return client.New(srv.URL, 10*time.Second)
}

func TestClient_Health(t *testing.T) {
	health, err := newClient(t).Health()
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestClient_SolveAndRuns(t *testing.T) {
	c := newClient(t)

	// 链式任务全放在同一处理器上，无通信开销
	res, err := c.Solve(chainDOT, 3, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Makespan)
	assert.Equal(t, "chain", res.Graph)

	runs, err := c.ListRuns("FINISHED", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, runs.Items, 1)

	detail, err := c.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, 6, detail.Makespan)
	assert.Contains(t, detail.DOT, "Start=")

	require.NoError(t, c.DeleteRun(res.RunID))
	assert.Error(t, c.DeleteRun(res.RunID))
}

func TestClient_Errors(t *testing.T) {
	c := newClient(t)

	_, err := c.Solve("digraph {", 2, 0, false)
	assert.Error(t, err)

	_, err = c.Solve(chainDOT, 0, 0, false)
	assert.Error(t, err)

	_, err = c.GetRun("missing")
	assert.Error(t, err)

	assert.Error(t, c.CancelRun("missing"))

	jobs, err := c.ListJobs()
	require.NoError(t, err)
	assert.Empty(t, jobs.Items)

	_, err = c.RunJob("missing")
	assert.Error(t, err)

	_, err = client.New("http://127.0.0.1:1", time.Second).Health()
	assert.Error(t, err)
}
