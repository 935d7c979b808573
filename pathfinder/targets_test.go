package pathfinder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTargetSpecWildcard(t *testing.T) {
	spec, err := ParseTargetSpec("A", "*")
	require.NoError(t, err)
	assert.Equal(t, QuantityAll, spec.Quantity)
	assert.Empty(t, spec.TargetIds())
	assert.False(t, spec.IsTarget("A"))
}

func TestParseTargetSpecSingle(t *testing.T) {
	spec, err := ParseTargetSpec("A", "F")
	require.NoError(t, err)
	assert.Equal(t, QuantitySingle, spec.Quantity)
	assert.True(t, spec.IsTarget("F"))
	assert.False(t, spec.IsTarget("G"))
}

func TestParseTargetSpecMultiple(t *testing.T) {
	spec, err := ParseTargetSpec("A", " F, G ,H")
	require.NoError(t, err)
	assert.Equal(t, QuantityMultiple, spec.Quantity)
	assert.ElementsMatch(t, []string{"F", "G", "H"}, spec.TargetIds())
}

func TestParseTargetSpecDuplicatesCollapse(t *testing.T) {
	spec, err := ParseTargetSpec("A", "F,F")
	require.NoError(t, err)
	assert.Equal(t, QuantitySingle, spec.Quantity)
	assert.Equal(t, []string{"F"}, spec.TargetIds())
}

func TestParseTargetSpecRejectsBlanks(t *testing.T) {
	var configErr *ConfigError

	_, err := ParseTargetSpec("", "F")
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, OptionSourceId, configErr.Param)

	_, err = ParseTargetSpec("A", "  ")
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, OptionTargetId, configErr.Param)

	_, err = ParseTargetSpec("A", "F,,G")
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, OptionTargetId, configErr.Param)
}

func TestAllTargetsReachedSingle(t *testing.T) {
	spec, err := ParseTargetSpec("A", "F")
	require.NoError(t, err)

	// only the target vertex itself can stop: other vertices may still be
	// on a cheaper path toward it
	assert.True(t, spec.AllTargetsReached("F", NewReachedTargets()))
	assert.False(t, spec.AllTargetsReached("B", ReachedTargetsFromIds([]string{"F"})))
}

func TestAllTargetsReachedMultiple(t *testing.T) {
	spec, err := ParseTargetSpec("A", "F,G")
	require.NoError(t, err)

	assert.False(t, spec.AllTargetsReached("F", ReachedTargetsFromIds([]string{"F"})))
	assert.True(t, spec.AllTargetsReached("F", ReachedTargetsFromIds([]string{"F", "G"})))
	assert.True(t, spec.AllTargetsReached("B", ReachedTargetsFromIds([]string{"F", "G"})))
}

func TestAllTargetsReachedWildcardNever(t *testing.T) {
	spec, err := ParseTargetSpec("A", "*")
	require.NoError(t, err)
	assert.False(t, spec.AllTargetsReached("B", ReachedTargetsFromIds([]string{"B", "C", "D"})))
}
