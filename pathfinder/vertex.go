package pathfinder

// Recognized query options.
const (
	OptionSourceId       = "source_id"
	OptionTargetId       = "target_id"
	OptionWeightProperty = "weight_property"
	OptionDefaultWeight  = "default_weight"
)

// DefaultEdgeWeight applies when no weight property is configured or the
// property is absent on an edge.
const DefaultEdgeWeight = 1.0

// Edge is one outgoing edge of a vertex, with the string-keyed properties
// it was stored with.
type Edge struct {
	Target     string
	Properties map[string]interface{}
}

// Property looks up a named edge property.
func (e Edge) Property(name string) (interface{}, bool) {
	v, ok := e.Properties[name]
	return v, ok
}

// Vertex stores one vertex of the partitioned graph along with its running
// shortest-path state. A vertex always deactivates at the end of a compute
// call; it is reactivated only when a combined message arrives for it in
// the next superstep.
type Vertex struct {
	Id     string
	Edges  []Edge
	value  *PathValue
	active bool
}

func NewVertex(id string, edges []Edge) *Vertex {
	return &Vertex{Id: id, Edges: edges}
}

func (v *Vertex) Value() *PathValue {
	return v.value
}

// OutMessage pairs a relaxation message with its destination vertex.
type OutMessage struct {
	DestVertexId string
	Message      PathMessage
}

// Computation is the per-vertex shortest-path program: an initialization
// step run once for every vertex at superstep 0, and a steady-state step
// run for every vertex that received a combined message. Both are pure
// functions of the vertex's own state plus inbound messages; the engine
// owns scheduling, message delivery and the reached-target merge.
type Computation struct {
	Spec    *TargetSpec
	Weights WeightConfig
}

// NewComputation parses and validates the query options, failing fast
// before any superstep runs.
func NewComputation(spec QuerySpec) (*Computation, error) {
	targets, err := ParseTargetSpec(spec.SourceId, spec.TargetId)
	if err != nil {
		return nil, err
	}

	defaultWeight := spec.DefaultWeight
	if defaultWeight == 0 {
		defaultWeight = DefaultEdgeWeight
	}
	weights, err := NewWeightConfig(spec.WeightProperty, defaultWeight)
	if err != nil {
		return nil, err
	}

	return &Computation{Spec: targets, Weights: weights}, nil
}

// ComputeInit is the superstep-0 step, invoked once for every vertex. Only
// the source vertex does real work: it zeroes its own distance and seeds a
// relaxation message along every outgoing edge.
func (c *Computation) ComputeInit(v *Vertex) ([]OutMessage, error) {
	v.value = NewPathValue()
	defer v.deactivate()

	if v.Id != c.Spec.SourceId {
		return nil, nil
	}
	v.value.ZeroDistance(v.Id)

	// single target that is the source itself: trivial zero-length answer
	if c.Spec.Quantity == QuantitySingle && c.Spec.IsTarget(v.Id) {
		return nil, nil
	}

	if len(v.Edges) == 0 {
		// isolated source, unreachable targets stay unreachable
		return nil, nil
	}

	out := make([]OutMessage, 0, len(v.Edges))
	for _, edge := range v.Edges {
		weight, err := c.Weights.EdgeWeight(edge)
		if err != nil {
			return nil, err
		}
		out = append(out, OutMessage{
			DestVertexId: edge.Target,
			Message:      PathMessage{Path: v.value.Path, TotalWeight: weight},
		})
	}
	return out, nil
}

// ComputeStep is the steady-state step, invoked per active vertex with its
// combined inbound messages. reached is the worker's local replica of the
// reached-target set; a newly discovered target is added here and becomes
// visible to other workers after the next boundary merge.
func (c *Computation) ComputeStep(v *Vertex, messages []PathMessage, reached ReachedTargets) ([]OutMessage, error) {
	defer v.deactivate()

	if c.Spec.IsTarget(v.Id) && !reached.Contains(v.Id) {
		reached.Add(v.Id)
	}

	var out []OutMessage
	for _, message := range messages {
		// strict improvement only: the held path wins on equal weight
		if message.TotalWeight >= v.value.TotalWeight {
			continue
		}
		v.value.ShorterPath(v.Id, message.Path, message.TotalWeight)

		// prune once every known target is reached, or nowhere to go
		if c.Spec.AllTargetsReached(v.Id, reached) || len(v.Edges) == 0 {
			continue
		}

		for _, edge := range v.Edges {
			weight, err := c.Weights.EdgeWeight(edge)
			if err != nil {
				return nil, err
			}
			out = append(out, OutMessage{
				DestVertexId: edge.Target,
				Message: PathMessage{
					Path:        v.value.Path,
					TotalWeight: v.value.TotalWeight + weight,
				},
			})
		}
	}
	return out, nil
}

func (v *Vertex) deactivate() {
	v.active = false
}
