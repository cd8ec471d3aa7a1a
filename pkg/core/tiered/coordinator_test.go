package tiered

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/optsched/internal/testutil"
	"github.com/LENAX/optsched/pkg/core/algorithm"
	"github.com/LENAX/optsched/pkg/core/arborist"
	"github.com/LENAX/optsched/pkg/core/bound"
	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/realtime"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

func defaultOptions(t *testing.T) algorithm.Options {
	t.Helper()
	arb, err := arborist.ByName(arborist.PresetDefault)
	require.NoError(t, err)
	return algorithm.Options{
		Bound:    bound.Combine(bound.CriticalPath{}, bound.FillTime{}),
		Arborist: arb,
	}
}

func runTiered(t *testing.T, g *graph.Graph, procs, threads int, tiers []Tier, opts algorithm.Options, extra ...Option) *schedule.Schedule {
	t.Helper()
	factory, err := NewFactory(g, tiers, opts)
	require.NoError(t, err)
	c, err := New(threads, factory, append([]Option{WithTiers(tiers)}, extra...)...)
	require.NoError(t, err)
	best, err := c.Solve(context.Background(), g, procs)
	require.NoError(t, err)
	require.True(t, best.Complete())
	require.NoError(t, best.Validate())
	return best
}

func TestCoordinator_SampleGraph(t *testing.T) {
	g := testutil.Sample()
	best := runTiered(t, g, 2, 4, DefaultTiers(), defaultOptions(t))
	assert.Equal(t, 9, best.Makespan())
}

// 不同线程数得到相同的最优 makespan
func TestCoordinator_ThreadCountInvariance(t *testing.T) {
	graphs := []*graph.Graph{testutil.Sample(), testutil.ForkJoin(4)}
	for seed := int64(0); seed < 4; seed++ {
		graphs = append(graphs, testutil.Random(seed, 8, 0.3))
	}
	for _, g := range graphs {
		comm := algorithm.NewCommunicator(nil)
		reference, err := algorithm.Solve(context.Background(), algorithm.NewDFS(g, comm, defaultOptions(t)), comm, g, 3)
		require.NoError(t, err)

		for _, threads := range []int{1, 2, 40} {
			t.Run(fmt.Sprintf("%s/threads=%d", g.Name(), threads), func(t *testing.T) {
				best := runTiered(t, g, 3, threads, DefaultTiers(), defaultOptions(t))
				assert.Equal(t, reference.Makespan(), best.Makespan())
			})
		}
	}
}

func TestCoordinator_MixedTiersAndSeed(t *testing.T) {
	g := testutil.ForkJoin(4)
	seed, err := algorithm.Greedy(g, 2)
	require.NoError(t, err)

	comm := algorithm.NewCommunicator(nil)
	reference, err := algorithm.Solve(context.Background(), algorithm.NewDFS(g, comm, defaultOptions(t)), comm, g, 2)
	require.NoError(t, err)

	tiers := []Tier{
		{Algorithm: algorithm.NameDFS, Depth: 1},
		{Algorithm: algorithm.NameAStar, Depth: 2},
		{Algorithm: algorithm.NameDFS, Depth: 3},
	}
	best := runTiered(t, g, 2, 3, tiers, defaultOptions(t), WithSeed(seed))
	assert.Equal(t, reference.Makespan(), best.Makespan())
	assert.LessOrEqual(t, best.Makespan(), seed.Makespan())
}

func TestCoordinator_SwapPreset(t *testing.T) {
	g := testutil.Random(11, 7, 0.25)
	comm := algorithm.NewCommunicator(nil)
	reference, err := algorithm.Solve(context.Background(), algorithm.NewDFS(g, comm, algorithm.Options{Bound: bound.CriticalPath{}}), comm, g, 2)
	require.NoError(t, err)

	arb, err := arborist.ByName(arborist.PresetSwap)
	require.NoError(t, err)
	opts := algorithm.Options{Bound: bound.Combine(bound.CriticalPath{}, bound.FillTime{}), Arborist: arb}
	best := runTiered(t, g, 2, 4, DefaultTiers(), opts)
	assert.Equal(t, reference.Makespan(), best.Makespan())
}

func TestCoordinator_EmitsEvents(t *testing.T) {
	g := testutil.Sample()
	var (
		mu     sync.Mutex
		events []*realtime.SearchEvent
	)
	sink := func(e *realtime.SearchEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}
	runTiered(t, g, 2, 2, DefaultTiers(), defaultOptions(t), WithEventSink("run-1", sink))

	mu.Lock()
	defer mu.Unlock()
	types := make(map[realtime.EventType]bool)
	for _, e := range events {
		assert.Equal(t, "run-1", e.RunID)
		types[e.Type] = true
	}
	assert.True(t, types[realtime.EventBestImproved])
	assert.True(t, types[realtime.EventTierDispatched])
}

func TestCoordinator_RerunEmitsDispatch(t *testing.T) {
	g := testutil.Independent(3, 3, 3, 3)
	factory, err := NewFactory(g, DefaultTiers(), algorithm.Options{})
	require.NoError(t, err)

	var mu sync.Mutex
	dispatched := 0
	c, err := New(2, factory, WithEventSink("run-1", func(e *realtime.SearchEvent) {
		if e.Type != realtime.EventTierDispatched {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		dispatched++
	}))
	require.NoError(t, err)

	for run := 1; run <= 2; run++ {
		best, err := c.Solve(context.Background(), g, 2)
		require.NoError(t, err)
		assert.Equal(t, 6, best.Makespan())
		mu.Lock()
		assert.Equal(t, run, dispatched, "第 %d 次运行", run)
		mu.Unlock()
	}
}

func TestCoordinator_FullBufferRunsInline(t *testing.T) {
	g := testutil.Independent(3, 3, 3, 3, 2, 2)
	factory, err := NewFactory(g, DefaultTiers(), algorithm.Options{})
	require.NoError(t, err)
	// 单个工作者时缓冲区容量为 2，第 0 层产生的子工作项远多于容量
	c, err := New(1, factory)
	require.NoError(t, err)

	best, err := c.Solve(context.Background(), g, 2)
	require.NoError(t, err)
	assert.Equal(t, 8, best.Makespan())
	assert.Greater(t, c.Inline(), int64(0))
}

func TestCoordinator_Cancelled(t *testing.T) {
	g := testutil.Independent(5, 4, 3, 5, 4, 3, 5, 4, 3, 5, 4, 3, 2, 1)
	factory, err := NewFactory(g, DefaultTiers(), algorithm.Options{})
	require.NoError(t, err)
	c, err := New(4, factory)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Solve(ctx, g, 4)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_Rejects(t *testing.T) {
	g := testutil.Sample()
	factory, err := NewFactory(g, DefaultTiers(), algorithm.Options{})
	require.NoError(t, err)

	_, err = New(0, factory)
	assert.Error(t, err)
	_, err = New(1, nil)
	assert.Error(t, err)
	_, err = New(1, factory, WithTiers([]Tier{{Algorithm: "dfs", Depth: -1}}))
	assert.Error(t, err)

	_, err = NewFactory(g, []Tier{{Algorithm: "bfs"}}, algorithm.Options{})
	assert.Error(t, err)
}
