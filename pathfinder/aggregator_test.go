package pathfinder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReachedTargetsUnionGrowsMonotonically(t *testing.T) {
	merged := NewReachedTargets()

	merged.Union(ReachedTargetsFromIds([]string{"F"}))
	merged.Union(ReachedTargetsFromIds([]string{"G", "F"}))
	merged.Union(NewReachedTargets())

	require.Equal(t, 2, merged.Size())
	assert.True(t, merged.Contains("F"))
	assert.True(t, merged.Contains("G"))
}

func TestReachedTargetsUnionIsIdempotent(t *testing.T) {
	merged := ReachedTargetsFromIds([]string{"F", "G"})
	replica := ReachedTargetsFromIds([]string{"F", "G"})

	merged.Union(replica)
	merged.Union(replica)
	assert.Equal(t, []string{"F", "G"}, merged.Ids())
}

func TestReachedTargetsWireFormIsSorted(t *testing.T) {
	reached := ReachedTargetsFromIds([]string{"G", "A", "F"})
	assert.Equal(t, []string{"A", "F", "G"}, reached.Ids())
}

func TestReachedTargetsRoundTrip(t *testing.T) {
	reached := NewReachedTargets()
	reached.Add("F")
	reached.Add("G")

	rebuilt := ReachedTargetsFromIds(reached.Ids())
	assert.Equal(t, reached, rebuilt)
}
