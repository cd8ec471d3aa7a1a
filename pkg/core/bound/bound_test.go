package bound

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/optsched/internal/testutil"
	"github.com/LENAX/optsched/pkg/core/graph"
	"github.com/LENAX/optsched/pkg/core/schedule"
)

var allBounds = []LowerBound{Naive{}, CriticalPath{}, FillTime{}}

func TestNaive_AlwaysZero(t *testing.T) {
	g := testutil.Sample()
	s, err := schedule.NewSchedule(g, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, Naive{}.Estimate(g, s, schedule.NewReadySet(g)))
}

func TestCriticalPath_EmptySchedule(t *testing.T) {
	g := testutil.Sample()
	s, err := schedule.NewSchedule(g, 2)
	require.NoError(t, err)
	// 最长链 a(3)->c(2)->e(3) = 8，b(4)->e(3) = 7
	assert.Equal(t, 8, CriticalPath{}.Estimate(g, s, schedule.NewReadySet(g)))
}

func TestCriticalPath_UsesPlacedEnds(t *testing.T) {
	g := testutil.Chain(3, 1)
	s, err := schedule.NewSchedule(g, 1)
	require.NoError(t, err)
	first := g.Node(0)
	require.NoError(t, s.AddTask(schedule.Task{Processor: 0, Start: 5, Node: first}))
	// 6 + 1 + 1
	assert.Equal(t, 8, CriticalPath{}.Estimate(g, s, schedule.ReadySetFor(g, s)))
}

func TestFillTime_LoadBalance(t *testing.T) {
	g := testutil.Independent(4, 4, 4, 4, 4)
	s, err := schedule.NewSchedule(g, 2)
	require.NoError(t, err)
	// ceil(20/2)
	assert.Equal(t, 10, FillTime{}.Estimate(g, s, schedule.NewReadySet(g)))
	// 关键路径只有 4
	assert.Equal(t, 4, CriticalPath{}.Estimate(g, s, schedule.NewReadySet(g)))
}

func TestCombine_IsMax(t *testing.T) {
	g := testutil.Independent(4, 4, 4, 4, 4)
	s, err := schedule.NewSchedule(g, 2)
	require.NoError(t, err)
	r := schedule.NewReadySet(g)

	assert.Equal(t, 10, Combine(CriticalPath{}, FillTime{}).Estimate(g, s, r))
	assert.Equal(t, 0, Combine().Estimate(g, s, r))
	assert.Equal(t, "critical-path+fill-time", Combine(CriticalPath{}, FillTime{}).Name())
}

// 组合满足幂等、交换、结合
func TestCombine_Laws(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for seed := int64(0); seed < 20; seed++ {
		g := testutil.Random(seed, 6, 0.35)
		s := testutil.RandomPrefix(rnd, g, 2, rnd.Intn(g.Len()))
		r := schedule.ReadySetFor(g, s)
		for _, a := range allBounds {
			assert.Equal(t, a.Estimate(g, s, r), Combine(a).Estimate(g, s, r))
			assert.Equal(t, a.Estimate(g, s, r), Combine(a, a).Estimate(g, s, r))
			for _, b := range allBounds {
				assert.Equal(t, Combine(a, b).Estimate(g, s, r), Combine(b, a).Estimate(g, s, r))
				for _, c := range allBounds {
					left := Combine(Combine(a, b), c).Estimate(g, s, r)
					right := Combine(a, Combine(b, c)).Estimate(g, s, r)
					assert.Equal(t, left, right)
				}
			}
		}
	}
}

// 下界不超过穷举得到的真实最优补全
func TestBounds_Admissible(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	graphs := []*graph.Graph{testutil.Sample(), testutil.ForkJoin(3), testutil.Chain(4, 2)}
	for seed := int64(0); seed < 12; seed++ {
		graphs = append(graphs, testutil.Random(seed, 5, 0.3))
	}
	for _, g := range graphs {
		for _, procs := range []int{1, 2, 3} {
			for k := 0; k < g.Len(); k += 2 {
				s := testutil.RandomPrefix(rnd, g, procs, k)
				r := schedule.ReadySetFor(g, s)
				optimum := testutil.BruteForce(s.Clone())
				for _, b := range append(allBounds, Combine(allBounds...)) {
					assert.LessOrEqual(t, b.Estimate(g, s, r), optimum,
						"%s 在 %s/P=%d/k=%d 上不可采纳", b.Name(), g.Name(), procs, k)
				}
			}
		}
	}
}

func TestByName(t *testing.T) {
	b, err := ByName("critical-path")
	require.NoError(t, err)
	assert.Equal(t, "critical-path", b.Name())

	_, err = ByName("unknown")
	assert.Error(t, err)

	c, err := FromNames([]string{"cp", "ft"})
	require.NoError(t, err)
	assert.Equal(t, "critical-path+fill-time", c.Name())
}
