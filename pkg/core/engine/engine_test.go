package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/optsched/internal/testutil"
	"github.com/LENAX/optsched/pkg/config"
	"github.com/LENAX/optsched/pkg/core/cache"
	"github.com/LENAX/optsched/pkg/core/realtime"
	"github.com/LENAX/optsched/pkg/core/schedule"
	"github.com/LENAX/optsched/pkg/dot"
	"github.com/LENAX/optsched/pkg/storage"
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

func newTestEngine(t *testing.T, cfg *config.EngineConfig, opts ...Option) (*Engine, *sqlstore.RunRepo) {
	t.Helper()
	repo, err := sqlite.NewRunRepoFromDSN(":memory:", sqlstore.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	eng, err := NewEngine(cfg, append([]Option{WithRepository(repo)}, opts...)...)
	require.NoError(t, err)
	return eng, repo
}

func TestEngine_SolveSample(t *testing.T) {
	cfg := config.Default()
	cfg.OptSched.Search.Threads = 4
	eng, repo := newTestEngine(t, cfg)

	res, err := eng.Solve(context.Background(), SolveRequest{Graph: testutil.Sample(), Processors: 2, Source: "test"})
	require.NoError(t, err)
	require.NotNil(t, res.Schedule)
	assert.Equal(t, 9, res.Makespan)
	assert.Equal(t, 9, res.Schedule.Makespan())
	assert.NoError(t, res.Schedule.Validate())
	assert.True(t, res.Schedule.Complete())
	assert.GreaterOrEqual(t, res.GreedyMakespan, res.Makespan)
	assert.Equal(t, 4, res.Threads)
	assert.False(t, res.FromCache)

	record, err := repo.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, storage.RunStatusFinished, record.Status)
	assert.Equal(t, 9, record.Makespan)
	assert.Equal(t, "test", record.Source)
	assert.Equal(t, testutil.Sample().Fingerprint(), record.Fingerprint)
	assert.Equal(t, []string{"critical-path", "fill-time"}, record.Bounds)

	// 持久化的调度可以重新读回
	s, err := dot.ReadSchedule(strings.NewReader(record.ScheduleDOT), 2)
	require.NoError(t, err)
	assert.Equal(t, 9, s.Makespan())
	assert.Empty(t, eng.ActiveRuns())
}

func TestEngine_SolveMatchesBruteForce(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	for seed := int64(1); seed <= 4; seed++ {
		g := testutil.Random(seed, 6, 0.3)
		res, err := eng.Solve(context.Background(), SolveRequest{Graph: g, Processors: 2, Threads: 3})
		require.NoError(t, err)
		assert.NoError(t, res.Schedule.Validate())
		assert.LessOrEqual(t, res.Makespan, res.GreedyMakespan, "seed=%d", seed)

		empty, err := schedule.NewSchedule(g, 2)
		require.NoError(t, err)
		assert.Equal(t, testutil.BruteForce(empty), res.Makespan, "seed=%d", seed)
	}
}

func TestEngine_InvalidRequest(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	_, err := eng.Solve(context.Background(), SolveRequest{Processors: 2})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = eng.Solve(context.Background(), SolveRequest{Graph: testutil.Sample(), Processors: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEngine_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.OptSched.Search.Bounds = []string{"no-such-bound"}
	_, err := NewEngine(cfg)
	assert.Error(t, err)
}

func TestEngine_CacheHit(t *testing.T) {
	c := cache.NewMemorySolutionCache(time.Hour)
	defer c.Close()
	eng, repo := newTestEngine(t, nil, WithCache(c))
	ctx := context.Background()

	first, err := eng.Solve(ctx, SolveRequest{Graph: testutil.Sample(), Processors: 2})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, c.Len())

	// 内容相同的另一个图对象按标签映射
	g := testutil.Sample()
	second, err := eng.Solve(ctx, SolveRequest{Graph: g, Processors: 2})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 9, second.Makespan)
	assert.Same(t, g, second.Schedule.Graph())
	assert.NoError(t, second.Schedule.Validate())

	// 命中缓存不写运行记录
	runs, err := repo.ListRuns(ctx, storage.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	third, err := eng.Solve(ctx, SolveRequest{Graph: g, Processors: 2, SkipCache: true})
	require.NoError(t, err)
	assert.False(t, third.FromCache)

	other, err := eng.Solve(ctx, SolveRequest{Graph: g, Processors: 3})
	require.NoError(t, err)
	assert.False(t, other.FromCache)
}

func TestEngine_CancelledContext(t *testing.T) {
	eng, repo := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Solve(ctx, SolveRequest{Graph: testutil.Random(7, 12, 0.2), Processors: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	runs, err := repo.ListRuns(context.Background(), storage.RunFilter{Status: storage.RunStatusCancelled})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].Error)
	assert.Empty(t, eng.ActiveRuns())
}

func TestEngine_Events(t *testing.T) {
	bus := realtime.NewEventBus(false, false)
	defer bus.Close()
	eng, _ := newTestEngine(t, nil, WithEventBus(bus))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := bus.Subscribe(ctx, realtime.EventSearchStarted, realtime.EventSearchFinished)
	require.NoError(t, err)

	res, err := eng.Solve(ctx, SolveRequest{Graph: testutil.Sample(), Processors: 2})
	require.NoError(t, err)

	seen := map[realtime.EventType]*realtime.SearchEvent{}
	for len(seen) < 2 {
		select {
		case event := <-events:
			seen[event.Type] = event
		case <-ctx.Done():
			t.Fatalf("未收到全部事件: %v", seen)
		}
	}
	finished := seen[realtime.EventSearchFinished]
	assert.Equal(t, res.RunID, finished.RunID)
	assert.Equal(t, "optsched", finished.Metadata["instance"])
	payload, ok := finished.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(9), payload["makespan"])
}

func TestRebind_UnknownLabel(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	res, err := eng.Solve(context.Background(), SolveRequest{Graph: testutil.Sample(), Processors: 2})
	require.NoError(t, err)

	_, err = rebind(res.Schedule, testutil.Chain(5, 1))
	assert.Error(t, err)
}

func TestCronScheduler_RunJob(t *testing.T) {
	dir := t.TempDir()
	graphPath := filepath.Join(dir, "sample.dot")
	outPath := filepath.Join(dir, "sample.out.dot")
	require.NoError(t, os.WriteFile(graphPath, []byte(sampleDOT), 0o644))

	eng, repo := newTestEngine(t, nil)
	cs := eng.CronScheduler()
	job := config.JobConfig{Name: "nightly", Graph: graphPath, Processors: 2, Cron: "0 0 3 * * *", Output: outPath}
	require.NoError(t, cs.RegisterJob(job))
	assert.Error(t, cs.RegisterJob(job), "重复注册")
	assert.Equal(t, []string{"nightly"}, cs.GetRegisteredJobs())

	res, err := cs.RunJob(context.Background(), "nightly")
	require.NoError(t, err)
	assert.Equal(t, 9, res.Makespan)
	last, ok := cs.LastRun("nightly")
	require.True(t, ok)
	assert.Equal(t, res.RunID, last)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Processor=")

	record, err := repo.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "cron:nightly", record.Source)

	require.NoError(t, cs.UnregisterJob("nightly"))
	assert.Empty(t, cs.GetRegisteredJobs())
	assert.Error(t, cs.UnregisterJob("nightly"))
	_, err = cs.RunJob(context.Background(), "nightly")
	assert.Error(t, err)
}

func TestCronScheduler_RejectsBadJobs(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	cs := eng.CronScheduler()

	assert.Error(t, cs.RegisterJob(config.JobConfig{Graph: "x.dot", Processors: 1, Cron: "@hourly"}))
	assert.Error(t, cs.RegisterJob(config.JobConfig{Name: "a", Graph: "x.dot", Processors: 0, Cron: "@hourly"}))
	assert.Error(t, cs.RegisterJob(config.JobConfig{Name: "b", Graph: "x.dot", Processors: 1, Cron: "not a cron"}))

	require.NoError(t, cs.RegisterJob(config.JobConfig{Name: "missing", Graph: filepath.Join(t.TempDir(), "none.dot"), Processors: 1, Cron: "@hourly"}))
	_, err := cs.RunJob(context.Background(), "missing")
	assert.Error(t, err)
}

func TestEngine_StartStop(t *testing.T) {
	dir := t.TempDir()
	graphPath := filepath.Join(dir, "sample.dot")
	require.NoError(t, os.WriteFile(graphPath, []byte(sampleDOT), 0o644))

	cfg := config.Default()
	cfg.OptSched.Jobs = []config.JobConfig{{Name: "hourly", Graph: graphPath, Processors: 2, Cron: "@hourly"}}
	eng, _ := newTestEngine(t, cfg)

	require.NoError(t, eng.Start(context.Background()))
	assert.Equal(t, []string{"hourly"}, eng.CronScheduler().GetRegisteredJobs())
	eng.Stop()
}

func TestEngineBuilder(t *testing.T) {
	cfg := config.Default()
	cfg.OptSched.Storage.Database.DSN = ":memory:"
	cfg.OptSched.Storage.Cache.Enabled = true

	eng, err := NewEngineBuilder("").WithConfig(cfg).Build()
	require.NoError(t, err)
	defer eng.Close()
	require.NotNil(t, eng.Repository())
	require.NotNil(t, eng.EventBus())

	first, err := eng.Solve(context.Background(), SolveRequest{Graph: testutil.Sample(), Processors: 2})
	require.NoError(t, err)
	second, err := eng.Solve(context.Background(), SolveRequest{Graph: testutil.Sample(), Processors: 2})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Makespan, second.Makespan)

	record, err := eng.Repository().GetRun(context.Background(), first.RunID)
	require.NoError(t, err)
	assert.NotNil(t, record)
}

func TestEngineBuilder_Plugins(t *testing.T) {
	var (
		mu       sync.Mutex
		received []map[string]interface{}
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		received = append(received, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.OptSched.Plugins = []config.PluginConfig{{
		Name:   "ops-hook",
		Type:   "webhook",
		Events: []string{string(realtime.EventSearchFinished)},
		Params: map[string]string{"url": hook.URL},
	}}
	eng, err := NewEngineBuilder("").WithConfig(cfg).WithoutStorage().Build()
	require.NoError(t, err)
	defer eng.Close()

	res, err := eng.Solve(context.Background(), SolveRequest{Graph: testutil.Sample(), Processors: 2})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "search.finished", received[0]["event"])
	assert.Equal(t, res.RunID, received[0]["run_id"])
	assert.Equal(t, float64(res.Makespan), received[0]["makespan"])

	// 插件初始化失败时构建失败
	bad := config.Default()
	bad.OptSched.Plugins = []config.PluginConfig{{Name: "h", Type: "webhook", Events: []string{"search.failed"}}}
	_, err = NewEngineBuilder("").WithConfig(bad).WithoutStorage().Build()
	assert.Error(t, err)
}

func TestEngineBuilder_Errors(t *testing.T) {
	_, err := NewEngineBuilder("").WithConfig(nil).Build()
	assert.Error(t, err)

	_, err = NewEngineBuilder(filepath.Join(t.TempDir(), "missing.yaml")).WithoutStorage().WithoutEvents().Build()
	assert.NoError(t, err, "缺失的配置文件使用默认配置")

	cfg := config.Default()
	cfg.OptSched.Storage.Database.Type = "oracle"
	_, err = NewEngineBuilder("").WithConfig(cfg).Build()
	assert.Error(t, err)
}
