package util

import "testing"

func TestHashIdIsDeterministic(t *testing.T) {
	if HashId("vertex-42") != HashId("vertex-42") {
		t.Errorf("same id hashed to different values")
	}
	if HashId("vertex-42") == HashId("vertex-43") {
		t.Errorf("distinct ids collided, pick better test ids")
	}
}

func TestAssignedWorkerInRange(t *testing.T) {
	ids := []string{"A", "B", "C", "ghost", "vertex-42", ""}
	for _, numWorkers := range []uint8{1, 2, 3, 7} {
		for _, id := range ids {
			worker := AssignedWorker(id, numWorkers)
			if worker >= uint32(numWorkers) {
				t.Errorf("AssignedWorker(%q, %d) = %d, out of range", id, numWorkers, worker)
			}
		}
	}
}

func TestAssignedWorkerIsStable(t *testing.T) {
	for _, id := range []string{"A", "B", "C"} {
		if AssignedWorker(id, 4) != AssignedWorker(id, 4) {
			t.Errorf("assignment for %q is not stable", id)
		}
	}
}
