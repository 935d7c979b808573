package pathfinder

import "math"

// PathValue is the running shortest-path state of a single vertex. It is
// only ever mutated by the owning vertex's own compute call.
type PathValue struct {
	Reachable   bool
	TotalWeight float64
	Path        []string
}

// NewPathValue returns the unreachable initial state.
func NewPathValue() *PathValue {
	return &PathValue{
		Reachable:   false,
		TotalWeight: math.Inf(1),
		Path:        nil,
	}
}

// ZeroDistance marks the vertex as the source of the traversal.
func (v *PathValue) ZeroDistance(vertexId string) {
	v.Reachable = true
	v.TotalWeight = 0
	v.Path = []string{vertexId}
}

// ShorterPath adopts a strictly better candidate. The message path is a
// prefix ending at the sender; the owning vertex appends itself so that
// Path always ends at the vertex holding the value.
func (v *PathValue) ShorterPath(vertexId string, path []string, totalWeight float64) {
	v.Reachable = true
	v.TotalWeight = totalWeight

	newPath := make([]string, 0, len(path)+1)
	newPath = append(newPath, path...)
	newPath = append(newPath, vertexId)
	v.Path = newPath
}
