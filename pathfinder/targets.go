package pathfinder

import (
	"fmt"
	"strings"
)

// ConfigError is a fatal query configuration error, detected before
// superstep 0 runs.
type ConfigError struct {
	Param string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: param '%s' %s", e.Param, e.Msg)
}

// QuantityType classifies how many target vertices a query asked for.
type QuantityType int

const (
	QuantityAll QuantityType = iota
	QuantitySingle
	QuantityMultiple
)

func (q QuantityType) String() string {
	switch q {
	case QuantityAll:
		return "all"
	case QuantitySingle:
		return "single"
	case QuantityMultiple:
		return "multiple"
	default:
		return "unknown"
	}
}

// targetAll is the wildcard meaning "shortest path to every vertex".
const targetAll = "*"

// TargetSpec is the parsed source/target configuration of a query. Target
// ids are encoded as a comma-separated list, with "*" standing for all
// vertices. Built once at query start and immutable afterward.
type TargetSpec struct {
	SourceId  string
	Quantity  QuantityType
	targetIds map[string]struct{}
}

// ParseTargetSpec validates and classifies the raw source/target strings.
// Blank source or target is fatal. Whitespace around ids is trimmed and
// duplicates collapse into the set.
func ParseTargetSpec(sourceId string, targetId string) (*TargetSpec, error) {
	sourceId = strings.TrimSpace(sourceId)
	if sourceId == "" {
		return nil, &ConfigError{Param: OptionSourceId, Msg: "must not be blank"}
	}

	targetId = strings.TrimSpace(targetId)
	if targetId == "" {
		return nil, &ConfigError{Param: OptionTargetId, Msg: "must not be blank"}
	}

	spec := &TargetSpec{
		SourceId:  sourceId,
		targetIds: make(map[string]struct{}),
	}

	if targetId == targetAll {
		spec.Quantity = QuantityAll
		return spec, nil
	}

	for _, id := range strings.Split(targetId, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, &ConfigError{
				Param: OptionTargetId,
				Msg:   fmt.Sprintf("contains a blank id in '%s'", targetId),
			}
		}
		spec.targetIds[id] = struct{}{}
	}

	if len(spec.targetIds) == 1 {
		spec.Quantity = QuantitySingle
	} else {
		spec.Quantity = QuantityMultiple
	}
	return spec, nil
}

// IsTarget reports whether the vertex is one of the configured targets.
// Always false for QuantityAll: no per-target tracking happens in that mode.
func (s *TargetSpec) IsTarget(vertexId string) bool {
	_, ok := s.targetIds[vertexId]
	return ok
}

// TargetIds returns a copy of the configured target id set. Empty iff the
// quantity is QuantityAll.
func (s *TargetSpec) TargetIds() []string {
	ids := make([]string, 0, len(s.targetIds))
	for id := range s.targetIds {
		ids = append(ids, id)
	}
	return ids
}

// AllTargetsReached reports whether, from the vantage of the given vertex,
// every configured target is already in the merged reached set. For a
// single target it holds exactly when the vertex itself is that target; for
// multiple targets when the reached set covers the whole target set; for
// the wildcard it never holds, so propagation runs to global convergence.
func (s *TargetSpec) AllTargetsReached(vertexId string, reached ReachedTargets) bool {
	switch s.Quantity {
	case QuantitySingle:
		return s.IsTarget(vertexId)
	case QuantityMultiple:
		if len(s.targetIds) != reached.Size() {
			return false
		}
		for id := range s.targetIds {
			if !reached.Contains(id) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
