package pathfinder

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func newTestComputation(t *testing.T, sourceId string, targetId string) *Computation {
	t.Helper()
	comp, err := NewComputation(QuerySpec{
		SourceId:       sourceId,
		TargetId:       targetId,
		WeightProperty: "weight",
	})
	if err != nil {
		t.Fatalf("could not build computation: %v", err)
	}
	return comp
}

func weightedEdge(target string, weight interface{}) Edge {
	return Edge{Target: target, Properties: map[string]interface{}{"weight": weight}}
}

func unweightedEdge(target string) Edge {
	return Edge{Target: target}
}

func assertValue(t *testing.T, vertex *Vertex, totalWeight float64, path ...string) {
	t.Helper()
	value := vertex.Value()
	if !value.Reachable {
		t.Errorf("vertex %v should be reachable", vertex.Id)
	}
	if value.TotalWeight != totalWeight {
		t.Errorf("vertex %v total weight: got %v, want %v", vertex.Id, value.TotalWeight, totalWeight)
	}
	if !reflect.DeepEqual(value.Path, path) {
		t.Errorf("vertex %v path: got %v, want %v", vertex.Id, value.Path, path)
	}
}

func assertUnreachable(t *testing.T, vertex *Vertex) {
	t.Helper()
	value := vertex.Value()
	if value.Reachable {
		t.Errorf("vertex %v should be unreachable", vertex.Id)
	}
	if !math.IsInf(value.TotalWeight, 1) {
		t.Errorf("vertex %v total weight: got %v, want +Inf", vertex.Id, value.TotalWeight)
	}
	if value.Path != nil {
		t.Errorf("vertex %v path: got %v, want empty", vertex.Id, value.Path)
	}
}

func assertOutMessage(t *testing.T, out OutMessage, destVertexId string, totalWeight float64, path ...string) {
	t.Helper()
	if out.DestVertexId != destVertexId {
		t.Errorf("message destination: got %v, want %v", out.DestVertexId, destVertexId)
	}
	if out.Message.TotalWeight != totalWeight {
		t.Errorf("message to %v total weight: got %v, want %v", destVertexId, out.Message.TotalWeight, totalWeight)
	}
	if !reflect.DeepEqual(out.Message.Path, path) {
		t.Errorf("message to %v path: got %v, want %v", destVertexId, out.Message.Path, path)
	}
}

func TestInitSourceSeedsOneMessagePerEdge(t *testing.T) {
	comp := newTestComputation(t, "A", "F")
	vertex := NewVertex("A", []Edge{weightedEdge("B", 2.0), weightedEdge("C", 5.0)})

	result, err := comp.ComputeInit(vertex)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	assertValue(t, vertex, 0, "A")
	if len(result) != 2 {
		t.Fatalf("wrong number of outgoing messages: got %v, want 2", len(result))
	}
	assertOutMessage(t, result[0], "B", 2.0, "A")
	assertOutMessage(t, result[1], "C", 5.0, "A")
	if vertex.active {
		t.Errorf("vertex did not deactivate after init")
	}
}

func TestInitNonSourceStaysUnreachable(t *testing.T) {
	comp := newTestComputation(t, "A", "F")
	vertex := NewVertex("B", []Edge{weightedEdge("C", 1.0)})

	result, err := comp.ComputeInit(vertex)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	assertUnreachable(t, vertex)
	if len(result) != 0 {
		t.Errorf("non-source vertex sent messages at init: %v", result)
	}
}

func TestInitIsolatedSourceSendsNothing(t *testing.T) {
	comp := newTestComputation(t, "A", "F")
	vertex := NewVertex("A", nil)

	result, err := comp.ComputeInit(vertex)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	assertValue(t, vertex, 0, "A")
	if len(result) != 0 {
		t.Errorf("isolated source sent messages: %v", result)
	}
}

func TestInitSourceIsTheOnlyTarget(t *testing.T) {
	comp := newTestComputation(t, "A", "A")
	vertex := NewVertex("A", []Edge{weightedEdge("B", 1.0)})

	result, err := comp.ComputeInit(vertex)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	assertValue(t, vertex, 0, "A")
	if len(result) != 0 {
		t.Errorf("trivial query sent messages: %v", result)
	}
}

func TestInitAbortsOnNonNumericWeight(t *testing.T) {
	comp := newTestComputation(t, "A", "F")
	vertex := NewVertex("A", []Edge{weightedEdge("B", "fast")})

	_, err := comp.ComputeInit(vertex)
	var weightErr *WeightError
	if err == nil {
		t.Fatalf("expected a weight error")
	}
	if !errors.As(err, &weightErr) {
		t.Fatalf("expected a weight error, got %v", err)
	}
}

func TestInitDefaultWeightWhenPropertyAbsent(t *testing.T) {
	comp := newTestComputation(t, "A", "F")
	vertex := NewVertex("A", []Edge{unweightedEdge("B")})

	result, err := comp.ComputeInit(vertex)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("wrong number of outgoing messages: got %v, want 1", len(result))
	}
	assertOutMessage(t, result[0], "B", DefaultEdgeWeight, "A")
}

func TestStepAdoptsShorterPathAndForwards(t *testing.T) {
	comp := newTestComputation(t, "S", "F")
	vertex := NewVertex("B", []Edge{weightedEdge("C", 4.0)})
	vertex.value = NewPathValue()

	messages := []PathMessage{{Path: []string{"S", "A"}, TotalWeight: 3.0}}
	result, err := comp.ComputeStep(vertex, messages, NewReachedTargets())
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	assertValue(t, vertex, 3.0, "S", "A", "B")
	if len(result) != 1 {
		t.Fatalf("wrong number of outgoing messages: got %v, want 1", len(result))
	}
	assertOutMessage(t, result[0], "C", 7.0, "S", "A", "B")
	if vertex.active {
		t.Errorf("vertex did not deactivate after step")
	}
}

func TestStepIgnoresWorseMessage(t *testing.T) {
	comp := newTestComputation(t, "S", "F")
	vertex := NewVertex("B", []Edge{weightedEdge("C", 1.0)})
	vertex.value = &PathValue{Reachable: true, TotalWeight: 2.0, Path: []string{"S", "B"}}

	messages := []PathMessage{{Path: []string{"S", "A"}, TotalWeight: 5.0}}
	result, err := comp.ComputeStep(vertex, messages, NewReachedTargets())
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	assertValue(t, vertex, 2.0, "S", "B")
	if len(result) != 0 {
		t.Errorf("vertex forwarded after rejecting a worse message: %v", result)
	}
}

func TestStepKeepsHeldValueOnEqualWeight(t *testing.T) {
	comp := newTestComputation(t, "S", "F")
	vertex := NewVertex("B", []Edge{weightedEdge("C", 1.0)})
	vertex.value = &PathValue{Reachable: true, TotalWeight: 3.0, Path: []string{"S", "B"}}

	messages := []PathMessage{{Path: []string{"S", "A"}, TotalWeight: 3.0}}
	result, err := comp.ComputeStep(vertex, messages, NewReachedTargets())
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	assertValue(t, vertex, 3.0, "S", "B")
	if len(result) != 0 {
		t.Errorf("vertex forwarded on an equal-weight message: %v", result)
	}
}

func TestStepSingleTargetAdoptsAndPrunes(t *testing.T) {
	comp := newTestComputation(t, "S", "F")
	vertex := NewVertex("F", []Edge{weightedEdge("G", 1.0)})
	vertex.value = NewPathValue()

	reached := NewReachedTargets()
	messages := []PathMessage{{Path: []string{"S", "A"}, TotalWeight: 2.0}}
	result, err := comp.ComputeStep(vertex, messages, reached)
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	assertValue(t, vertex, 2.0, "S", "A", "F")
	if len(result) != 0 {
		t.Errorf("single target kept forwarding: %v", result)
	}
	if !reached.Contains("F") {
		t.Errorf("target was not registered as reached")
	}
}

func TestStepMultipleTargetsForwardUntilAllReached(t *testing.T) {
	comp := newTestComputation(t, "S", "F,G")
	vertex := NewVertex("F", []Edge{weightedEdge("G", 1.0)})
	vertex.value = NewPathValue()

	// G not reached yet, F must keep forwarding
	reached := NewReachedTargets()
	messages := []PathMessage{{Path: []string{"S"}, TotalWeight: 1.0}}
	result, err := comp.ComputeStep(vertex, messages, reached)
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("target pruned before the whole target set was reached: %v", result)
	}
	assertOutMessage(t, result[0], "G", 2.0, "S", "F")

	// with both targets in the merged set, a better path stops here
	reached.Add("G")
	vertexAgain := NewVertex("F", []Edge{weightedEdge("G", 1.0)})
	vertexAgain.value = &PathValue{Reachable: true, TotalWeight: 5.0, Path: []string{"S", "B", "F"}}
	messages = []PathMessage{{Path: []string{"S"}, TotalWeight: 0.5}}
	result, err = comp.ComputeStep(vertexAgain, messages, reached)
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	assertValue(t, vertexAgain, 0.5, "S", "F")
	if len(result) != 0 {
		t.Errorf("target kept forwarding after all targets were reached: %v", result)
	}
}

func TestStepWildcardNeverPrunes(t *testing.T) {
	comp := newTestComputation(t, "S", "*")
	vertex := NewVertex("B", []Edge{weightedEdge("C", 1.0)})
	vertex.value = NewPathValue()

	messages := []PathMessage{{Path: []string{"S"}, TotalWeight: 1.0}}
	result, err := comp.ComputeStep(vertex, messages, NewReachedTargets())
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("wildcard query stopped forwarding: %v", result)
	}
	assertOutMessage(t, result[0], "C", 2.0, "S", "B")
}

func TestStepNoEdgesNothingToForward(t *testing.T) {
	comp := newTestComputation(t, "S", "F")
	vertex := NewVertex("B", nil)
	vertex.value = NewPathValue()

	messages := []PathMessage{{Path: []string{"S"}, TotalWeight: 1.0}}
	result, err := comp.ComputeStep(vertex, messages, NewReachedTargets())
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	assertValue(t, vertex, 1.0, "S", "B")
	if len(result) != 0 {
		t.Errorf("vertex with no edges forwarded: %v", result)
	}
}

func TestStepAbortsOnNonPositiveWeight(t *testing.T) {
	comp := newTestComputation(t, "S", "F")
	vertex := NewVertex("B", []Edge{weightedEdge("C", -1.0)})
	vertex.value = NewPathValue()

	messages := []PathMessage{{Path: []string{"S"}, TotalWeight: 1.0}}
	_, err := comp.ComputeStep(vertex, messages, NewReachedTargets())
	var weightErr *WeightError
	if err == nil {
		t.Fatalf("expected a weight error")
	}
	if !errors.As(err, &weightErr) {
		t.Fatalf("expected a weight error, got %v", err)
	}
}
