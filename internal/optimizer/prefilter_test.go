package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-optimizer/internal/models"
)

func prefilterDataset() Dataset {
	return newDataset(monday, day(4), models.PriorityDefault).
		location(1, "HQ", rate(100), 0, 0).
		room(10, "HQ", map[int64]int{1: 1}).
		room(11, "HQ", nil).
		instructor("alice", 1).
		instructor("bob", 1).
		course(100, "LAB", 8, 10, map[string]time.Time{"alice": never()}, map[int64]int{1: 1}).
		course(200, "LEC", 16, 10, map[string]time.Time{"bob": never()}, nil).
		course(300, "NOONE", 8, 10, nil, nil).
		course(400, "BIG", 8, 10, map[string]time.Time{"alice": never()}, map[int64]int{2: 1}).
		input(1, "LAB", "HQ", 3).
		input(2, "LEC", "HQ", 5).
		input(3, "NOONE", "HQ", 1).
		input(4, "BIG", "HQ", 1).
		input(5, "ZZZ", "HQ", 1).
		build()
}

func TestPreFilterBoundsAndInfeasibleRequests(t *testing.T) {
	p := mustProblem(t, prefilterDataset())
	before := p.InitialState()

	res, err := p.PreFilter(p.initial)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, res.Active)
	assert.Equal(t, []int{3, 2, 0, 0}, res.Bounds)
	assert.Equal(t, 5, res.Levels)
	assert.Equal(t, map[int]string{2: ReasonNoInstructor, 3: ReasonNoRoom}, res.Reasons)
	assert.True(t, res.Infeasible(3))
	assert.False(t, res.Infeasible(0))
	assert.Equal(t, before, p.initial, "prefilter must not modify the state it reads")
	assert.Contains(t, p.unresolved[4], "ZZZ")
}

func TestPreFilterIsIdempotent(t *testing.T) {
	p := mustProblem(t, prefilterDataset())

	first, err := p.PreFilter(p.InitialState())
	require.NoError(t, err)
	second, err := p.PreFilter(p.InitialState())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPreFilterOrdersByBoundDescending(t *testing.T) {
	ds := newDataset(monday, day(4), models.PriorityDefault).
		location(1, "HQ", rate(100), 0, 0).
		room(10, "HQ", nil).
		instructor("alice", 1).
		course(100, "ONE", 8, 10, map[string]time.Time{"alice": never()}, nil).
		course(200, "TWO", 8, 10, map[string]time.Time{"alice": never()}, nil).
		input(1, "ONE", "HQ", 1).
		input(2, "TWO", "HQ", 4).
		input(3, "ONE", "HQ", 1).
		build()
	p := mustProblem(t, ds)

	res, err := p.PreFilter(p.InitialState())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, res.Active)
}

func TestPreFilterFailsWithoutReleaseRate(t *testing.T) {
	ds := prefilterDataset()
	ds.Locations[0].ReleaseRate = nil
	p := mustProblem(t, ds)

	_, err := p.PreFilter(p.InitialState())
	assert.ErrorIs(t, err, ErrReleaseRateMissing)
}

func TestMaxDisjoint(t *testing.T) {
	assert.Equal(t, 2, maxDisjoint([]int{0, 1, 2, 3}, 2, 5))
	assert.Equal(t, 2, maxDisjoint([]int{0, 2, 4}, 1, 2))
	assert.Equal(t, 1, maxDisjoint([]int{3}, 2, 4))
	assert.Equal(t, 0, maxDisjoint(nil, 1, 4))
}
