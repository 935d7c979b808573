package pathfinder

import "sort"

// ReachedTargets is the set of target vertices already discovered by any
// worker. Each worker holds a local replica; replicas are merged by set
// union at every superstep boundary, so the global set only ever grows.
type ReachedTargets map[string]struct{}

func NewReachedTargets() ReachedTargets {
	return make(ReachedTargets)
}

// ReachedTargetsFromIds rebuilds a replica from its wire form.
func ReachedTargetsFromIds(ids []string) ReachedTargets {
	r := make(ReachedTargets, len(ids))
	for _, id := range ids {
		r[id] = struct{}{}
	}
	return r
}

func (r ReachedTargets) Contains(vertexId string) bool {
	_, ok := r[vertexId]
	return ok
}

func (r ReachedTargets) Add(vertexId string) {
	r[vertexId] = struct{}{}
}

func (r ReachedTargets) Size() int {
	return len(r)
}

// Union folds another replica into this one.
func (r ReachedTargets) Union(other ReachedTargets) {
	for id := range other {
		r[id] = struct{}{}
	}
}

// Ids returns the wire form, sorted so every worker observes the same
// encoding of the same set.
func (r ReachedTargets) Ids() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
