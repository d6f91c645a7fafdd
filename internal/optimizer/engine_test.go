package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-optimizer/internal/models"
)

func runEngine(t *testing.T, ds Dataset, opts Options) (*Outcome, *Engine) {
	t.Helper()
	engine, err := NewEngine(mustProblem(t, ds), opts, zap.NewNop())
	require.NoError(t, err)
	outcome, err := engine.Run(context.Background())
	require.NoError(t, err)
	return outcome, engine
}

func withPriority(ds Dataset, priority models.OptimizerPriority) Dataset {
	ds.Priority = priority
	return ds
}

func singleRequestDataset() Dataset {
	return newDataset(day(-2), day(4), models.PriorityDefault).
		location(1, "HQ", rate(100), 0, 0).
		room(10, "HQ", nil).
		instructor("alice", 1).
		course(100, "C100", 8, 10, map[string]time.Time{"alice": never()}, nil).
		input(1, "C100", "HQ", 1).
		build()
}

func TestSingleRequestScheduled(t *testing.T) {
	for _, priority := range models.Priorities {
		t.Run(string(priority), func(t *testing.T) {
			outcome, _ := runEngine(t, withPriority(singleRequestDataset(), priority), DefaultOptions())

			require.Len(t, outcome.Assignments, 1)
			got := outcome.Assignments[0]
			if priority == models.PriorityMaximizeInstructorLongestToTeach {
				// Later starts lengthen the gap since the course was last taught.
				assert.Equal(t, day(4), got.StartDate)
			} else {
				assert.Equal(t, monday, got.StartDate)
			}
			assert.Equal(t, got.StartDate, got.EndDate)
			assert.Equal(t, "alice", got.InstructorID)
			assert.Equal(t, int64(10), got.RoomID)
			assert.Equal(t, int64(1), got.InputID)
			assert.True(t, got.Hidden)
			assert.True(t, got.UsingLocalInstructor)
			assert.Equal(t, models.OptimizerRequester, got.RequestType)
			assert.Equal(t, "08:00", got.StartTime.String())
			assert.Equal(t, "16:00", got.EndTime.String())

			require.Len(t, outcome.Inputs, 1)
			assert.True(t, outcome.Inputs[0].Succeeded)
			assert.Equal(t, 0, outcome.Inputs[0].RemainingRuns)
			assert.Empty(t, outcome.Failed())
		})
	}
}

func TestCourseLongerThanWindowFails(t *testing.T) {
	ds := newDataset(monday, day(4), models.PriorityDefault).
		location(1, "HQ", rate(100), 0, 0).
		room(10, "HQ", nil).
		instructor("alice", 1).
		course(100, "LONG", 48, 10, map[string]time.Time{"alice": never()}, nil).
		input(1, "LONG", "HQ", 1).
		build()

	for _, priority := range []models.OptimizerPriority{models.PriorityFirstAvailable, models.PriorityDefault} {
		outcome, _ := runEngine(t, withPriority(ds, priority), DefaultOptions())
		assert.Empty(t, outcome.Assignments)
		require.Len(t, outcome.Inputs, 1)
		assert.False(t, outcome.Inputs[0].Succeeded)
		assert.True(t, outcome.Inputs[0].WillAlwaysFail)
		assert.Equal(t, RejectWindowTooShort.Reason(), outcome.Inputs[0].Reason)
	}
}

func TestOneInstructorTwoRequests(t *testing.T) {
	ds := newDataset(monday, day(1), models.PriorityDefault).
		location(1, "HQ", rate(100), 0, 0).
		location(2, "FAR", rate(100), 5, 5).
		room(10, "HQ", nil).
		room(11, "HQ", nil).
		instructor("alice", 2).
		course(100, "C100", 8, 10, map[string]time.Time{"alice": never()}, nil).
		input(1, "C100", "HQ", 1).
		input(2, "C100", "HQ", 1).
		build()

	for _, priority := range models.Priorities {
		t.Run(string(priority), func(t *testing.T) {
			outcome, _ := runEngine(t, withPriority(ds, priority), DefaultOptions())

			assert.Equal(t, 1, outcome.Count)
			failed := outcome.Failed()
			require.Len(t, failed, 1)
			assert.Equal(t, ReasonNoInstructor, failed[0].Reason)
			assert.False(t, failed[0].WillAlwaysFail)
		})
	}
}

func TestReleaseRateEqualToClassSize(t *testing.T) {
	ds := newDataset(monday, monday, models.PriorityDefault).
		location(1, "HQ", rate(10), 0, 0).
		room(10, "HQ", nil).
		room(11, "HQ", nil).
		instructor("alice", 1).
		instructor("bob", 1).
		course(100, "C100", 8, 10, map[string]time.Time{"alice": never(), "bob": never()}, nil).
		input(1, "C100", "HQ", 1).
		input(2, "C100", "HQ", 1).
		build()

	for _, priority := range []models.OptimizerPriority{models.PriorityFirstAvailable, models.PriorityDefault} {
		outcome, _ := runEngine(t, withPriority(ds, priority), DefaultOptions())

		require.Len(t, outcome.Assignments, 1)
		assert.Equal(t, int64(1), outcome.Assignments[0].InputID)
		assert.True(t, outcome.Inputs[0].Succeeded)
		assert.False(t, outcome.Inputs[1].Succeeded)
		assert.Equal(t, RejectReleaseRate.Reason(), outcome.Inputs[1].Reason)
	}
}

func TestPartialOccurrences(t *testing.T) {
	ds := newDataset(monday, day(4), models.PriorityDefault).
		location(1, "HQ", rate(100), 0, 0).
		room(10, "HQ", nil).
		instructor("alice", 1).
		course(100, "TWO-DAY", 16, 10, map[string]time.Time{"alice": never()}, nil).
		input(1, "TWO-DAY", "HQ", 3).
		build()

	for _, priority := range []models.OptimizerPriority{models.PriorityFirstAvailable, models.PriorityDefault} {
		outcome, _ := runEngine(t, withPriority(ds, priority), DefaultOptions())

		assert.Equal(t, 2, outcome.Count)
		in := outcome.Inputs[0]
		assert.False(t, in.Succeeded)
		assert.Equal(t, 2, in.MaxPossibleIterations)
		assert.Equal(t, 1, in.RemainingRuns)
		assert.Equal(t, PartialReason(2, 3), in.Reason)
		assert.True(t, outcome.Assignments[0].EndDate.Before(outcome.Assignments[1].StartDate))
	}
}

func TestUnresolvedInputIsKeptWithReason(t *testing.T) {
	ds := singleRequestDataset()
	ds.Inputs = append(ds.Inputs, &models.OptimizerInput{ID: 2, CourseCode: "ZZZ", LocationCode: "HQ", NumTimesToRun: 1})

	outcome, _ := runEngine(t, ds, DefaultOptions())
	require.Len(t, outcome.Inputs, 2)
	assert.True(t, outcome.Inputs[0].Succeeded)
	assert.True(t, outcome.Inputs[1].WillAlwaysFail)
	assert.Contains(t, outcome.Inputs[1].Reason, "ZZZ")
	assert.Equal(t, "ZZZ", ds.Inputs[1].CourseCode)
	assert.Empty(t, ds.Inputs[0].Reason, "the dataset inputs are never modified")
}

func TestRunFailsWithoutReleaseRate(t *testing.T) {
	ds := singleRequestDataset()
	ds.Locations[0].ReleaseRate = nil

	engine, err := NewEngine(mustProblem(t, ds), DefaultOptions(), nil)
	require.NoError(t, err)
	_, err = engine.Run(context.Background())
	assert.ErrorIs(t, err, ErrReleaseRateMissing)
}

func TestNewEngineRejectsUnknownPriority(t *testing.T) {
	_, err := NewEngine(mustProblem(t, withPriority(singleRequestDataset(), "FASTEST")), DefaultOptions(), nil)
	assert.Error(t, err)
}

func TestMinimizeForeignPrefersLocalInstructor(t *testing.T) {
	ds := newDataset(monday, monday, models.PriorityFirstAvailable).
		location(1, "HQ", rate(100), 0, 0).
		location(2, "FAR", rate(100), 3, 4).
		room(10, "HQ", nil).
		instructor("a-far", 2).
		instructor("b-local", 1).
		course(100, "C100", 8, 10, map[string]time.Time{"a-far": never(), "b-local": never()}, nil).
		input(1, "C100", "HQ", 1).
		build()

	greedy, _ := runEngine(t, ds, DefaultOptions())
	require.Len(t, greedy.Assignments, 1)
	assert.Equal(t, "a-far", greedy.Assignments[0].InstructorID)
	assert.False(t, greedy.Assignments[0].UsingLocalInstructor)

	best, _ := runEngine(t, withPriority(ds, models.PriorityMinimizeForeignInstructorCount), Options{})
	require.Len(t, best.Assignments, 1)
	assert.Equal(t, "b-local", best.Assignments[0].InstructorID)
	assert.Equal(t, 0.0, best.Score)
	assert.True(t, best.Optimal)
}

func TestMaximizeSpecializedPrefersNarrowInstructor(t *testing.T) {
	qualified := map[string]time.Time{"a-generalist": never(), "b-specialist": never()}
	ds := newDataset(monday, monday, models.PriorityMaximizeSpecializedInstructors).
		location(1, "HQ", rate(100), 0, 0).
		room(10, "HQ", nil).
		instructor("a-generalist", 1).
		instructor("b-specialist", 1).
		course(100, "C100", 8, 10, qualified, nil).
		course(200, "C200", 8, 10, map[string]time.Time{"a-generalist": never()}, nil).
		course(300, "C300", 8, 10, map[string]time.Time{"a-generalist": never()}, nil).
		input(1, "C100", "HQ", 1).
		build()

	outcome, _ := runEngine(t, ds, Options{})
	require.Len(t, outcome.Assignments, 1)
	assert.Equal(t, "b-specialist", outcome.Assignments[0].InstructorID)
	assert.Equal(t, 1.0, outcome.Score)
	assert.True(t, outcome.Optimal)
}

func TestMinimizeTravelDistancePrefersNearestInstructor(t *testing.T) {
	ds := newDataset(monday, monday, models.PriorityMinimizeInstructorTravelDistance).
		location(1, "HQ", rate(100), 0, 0).
		location(2, "NEAR", rate(100), 1, 1).
		location(3, "FAR", rate(100), 10, 10).
		room(10, "HQ", nil).
		instructor("a-far", 3).
		instructor("b-near", 2).
		course(100, "C100", 8, 10, map[string]time.Time{"a-far": never(), "b-near": never()}, nil).
		input(1, "C100", "HQ", 1).
		build()

	outcome, _ := runEngine(t, ds, Options{})
	require.Len(t, outcome.Assignments, 1)
	assert.Equal(t, "b-near", outcome.Assignments[0].InstructorID)
	assert.InDelta(t, math.Sqrt2, outcome.Score, 1e-9)
	assert.True(t, outcome.Optimal)
}

func TestMaximizeLongestToTeachPrefersStaleInstructor(t *testing.T) {
	stale := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	ds := newDataset(monday, monday, models.PriorityMaximizeInstructorLongestToTeach).
		location(1, "HQ", rate(100), 0, 0).
		room(10, "HQ", nil).
		instructor("a-recent", 1).
		instructor("b-stale", 1).
		course(100, "C100", 8, 10, map[string]time.Time{
			"a-recent": time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC),
			"b-stale":  stale,
		}, nil).
		input(1, "C100", "HQ", 1).
		build()

	outcome, _ := runEngine(t, ds, DefaultOptions())
	require.Len(t, outcome.Assignments, 1)
	assert.Equal(t, "b-stale", outcome.Assignments[0].InstructorID)
	assert.Equal(t, 1468.0, outcome.Score)
	assert.False(t, outcome.Optimal, "longest-to-teach has no provable bound")
}

func TestLongestToTeachSeesItsOwnHypotheses(t *testing.T) {
	ds := newDataset(monday, day(1), models.PriorityMaximizeInstructorLongestToTeach).
		location(1, "HQ", rate(100), 0, 0).
		location(2, "EAST", rate(100), 0, 0).
		room(10, "HQ", nil).
		room(20, "EAST", nil).
		instructor("a", 1).
		instructor("b", 2).
		course(100, "C100", 8, 10, map[string]time.Time{
			"a": time.Date(2023, time.January, 9, 0, 0, 0, 0, time.UTC),
			"b": time.Date(2023, time.January, 9, 0, 0, 0, 0, time.UTC),
		}, nil).
		input(1, "C100", "HQ", 1).
		input(2, "C100", "EAST", 1).
		build()

	outcome, _ := runEngine(t, ds, DefaultOptions())
	require.Len(t, outcome.Assignments, 2)
	assert.NotEqual(t, outcome.Assignments[0].InstructorID, outcome.Assignments[1].InstructorID,
		"reusing an instructor resets their last-taught date and scores worse")
}

func TestCancelledContextKeepsSeed(t *testing.T) {
	engine, err := NewEngine(mustProblem(t, singleRequestDataset()), DefaultOptions(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.True(t, outcome.Interrupted)
	assert.Equal(t, 1, outcome.Count)
}

func TestStatusReportsSearchProgress(t *testing.T) {
	ds := newDataset(monday, day(1), models.PriorityDefault).
		location(1, "HQ", rate(100), 0, 0).
		location(2, "FAR", rate(100), 5, 5).
		room(10, "HQ", nil).
		instructor("alice", 2).
		course(100, "C100", 8, 10, map[string]time.Time{"alice": never()}, nil).
		input(1, "C100", "HQ", 1).
		input(2, "C100", "HQ", 1).
		build()

	outcome, engine := runEngine(t, ds, Options{})
	snap := engine.Snapshot()

	assert.Len(t, snap.NodesPerDepth, 2)
	assert.Equal(t, 1, snap.BestCount)
	assert.Equal(t, 2.0, snap.BestPossible)
	assert.Positive(t, snap.Leaves)
	assert.Positive(t, snap.Evaluations)
	assert.Equal(t, snap.Leaves, outcome.Leaves)

	line := engine.Status("run-1")
	assert.Contains(t, line, "[run-1]")
	assert.Contains(t, line, "best count=1")
	assert.Contains(t, line, "best possible=2")
	assert.Contains(t, line, "nodes per depth=[")
}

func TestSnapshotBeforeRunIsZero(t *testing.T) {
	engine, err := NewEngine(mustProblem(t, singleRequestDataset()), DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{}, engine.Snapshot())
}

func TestDecodeOptions(t *testing.T) {
	opts, err := DecodeOptions(map[string]interface{}{
		"timeout":          "2s",
		"seed_with_greedy": "false",
		"show_setup":       true,
	}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, Options{Timeout: 2 * time.Second, ShowSetup: true}, opts)

	_, err = DecodeOptions(map[string]interface{}{"depth": 3}, DefaultOptions())
	assert.Error(t, err)

	opts, err = DecodeOptions(nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)
}

func randomDataset(rng *rand.Rand) Dataset {
	b := newDataset(monday, day(4), models.PriorityDefault).
		location(1, "L1", rate(20+10*rng.Intn(3)), 0, 0).
		location(2, "L2", rate(20+10*rng.Intn(3)), 4, 3).
		room(10, "L1", nil).
		room(20, "L2", nil).
		instructor("i1", 1).
		instructor("i2", 2)

	for c := 0; c < 3; c++ {
		qualified := map[string]time.Time{}
		for _, id := range []string{"i1", "i2"} {
			if rng.Intn(3) > 0 {
				qualified[id] = monday.AddDate(0, 0, -rng.Intn(400))
			}
		}
		if len(qualified) == 0 {
			qualified["i1"] = never()
		}
		b.course(int64(100+c), fmt.Sprintf("C%d", c), 8*(1+rng.Intn(2)), 10*(1+rng.Intn(2)), qualified, nil)
	}
	for in := 0; in < 3; in++ {
		b.input(int64(in+1), fmt.Sprintf("C%d", rng.Intn(3)), fmt.Sprintf("L%d", 1+rng.Intn(2)), 1+rng.Intn(2))
	}
	return b.build()
}

func assertOutcomeInvariants(t *testing.T, ds Dataset, outcome *Outcome) {
	t.Helper()
	require.Len(t, outcome.Inputs, len(ds.Inputs))

	courses := make(map[int64]*models.Course)
	for _, c := range ds.Courses {
		courses[c.ID] = c
	}
	rates := make(map[int64]int)
	for _, l := range ds.Locations {
		rates[l.ID] = *l.ReleaseRate
	}
	perInput := make(map[int64]int)
	released := make(map[string]int)
	used := make(map[string]bool)

	for _, a := range outcome.Assignments {
		perInput[a.InputID]++
		for d := range EachBusinessDay(a.StartDate, a.EndDate) {
			key := KeyOf(d)
			released[fmt.Sprintf("%d/%s", a.LocationID, key)] += courses[a.CourseID].MaxSize
			for _, slot := range []string{
				fmt.Sprintf("room %d/%s", a.RoomID, key),
				fmt.Sprintf("instructor %s/%s", a.InstructorID, key),
				fmt.Sprintf("course %d@%d/%s", a.CourseID, a.LocationID, key),
			} {
				assert.False(t, used[slot], "double booking of %s", slot)
				used[slot] = true
			}
		}
	}
	for key, seats := range released {
		var loc int64
		_, err := fmt.Sscanf(key, "%d/", &loc)
		require.NoError(t, err)
		assert.LessOrEqual(t, seats, rates[loc], "release rate exceeded at %s", key)
	}
	for _, in := range outcome.Inputs {
		assert.LessOrEqual(t, perInput[in.ID], in.NumTimesToRun)
		if !in.Succeeded {
			assert.NotEmpty(t, in.Reason, "input %d failed without a reason", in.ID)
		}
	}
}

func TestRandomInstancesHoldInvariants(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		ds := randomDataset(rand.New(rand.NewSource(seed)))

		greedy, _ := runEngine(t, withPriority(ds, models.PriorityFirstAvailable), DefaultOptions())
		assertOutcomeInvariants(t, ds, greedy)

		exhaustive, _ := runEngine(t, withPriority(ds, models.PriorityDefault), Options{})
		assertOutcomeInvariants(t, ds, exhaustive)
		assert.LessOrEqual(t, greedy.Count, exhaustive.Count, "seed %d: greedy beat exhaustive", seed)

		for _, priority := range models.Priorities[2:] {
			other, _ := runEngine(t, withPriority(ds, priority), DefaultOptions())
			assertOutcomeInvariants(t, ds, other)
			assert.Equal(t, exhaustive.Count, other.Count, "seed %d: %s lost assignments", seed, priority)
		}
	}
}
