package pathfinder

import (
	"reflect"
	"testing"
)

func TestCombineKeepsLowerWeight(t *testing.T) {
	held := PathMessage{Path: []string{"S", "A"}, TotalWeight: 5.0}
	incoming := PathMessage{Path: []string{"S", "B"}, TotalWeight: 3.0}

	combined := CombinePathMessages(held, incoming)
	if combined.TotalWeight != 3.0 {
		t.Errorf("combined weight: got %v, want 3.0", combined.TotalWeight)
	}
	if !reflect.DeepEqual(combined.Path, []string{"S", "B"}) {
		t.Errorf("combined path: got %v, want [S B]", combined.Path)
	}
}

func TestCombineHeldWinsOnTie(t *testing.T) {
	held := PathMessage{Path: []string{"S", "A"}, TotalWeight: 3.0}
	incoming := PathMessage{Path: []string{"S", "B"}, TotalWeight: 3.0}

	combined := CombinePathMessages(held, incoming)
	if !reflect.DeepEqual(combined.Path, []string{"S", "A"}) {
		t.Errorf("tie did not keep the held message: got %v", combined.Path)
	}
}

func TestCombineIntoFoldsPerDestination(t *testing.T) {
	box := make(map[string]PathMessage)
	combineInto(box, "C", PathMessage{Path: []string{"S", "A"}, TotalWeight: 5.0})
	combineInto(box, "C", PathMessage{Path: []string{"S", "B"}, TotalWeight: 3.0})
	combineInto(box, "D", PathMessage{Path: []string{"S"}, TotalWeight: 1.0})

	if len(box) != 2 {
		t.Fatalf("inbox size: got %v, want 2", len(box))
	}
	if box["C"].TotalWeight != 3.0 {
		t.Errorf("destination C held weight: got %v, want 3.0", box["C"].TotalWeight)
	}
	if box["D"].TotalWeight != 1.0 {
		t.Errorf("destination D held weight: got %v, want 1.0", box["D"].TotalWeight)
	}
}
