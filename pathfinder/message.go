package pathfinder

// PathMessage is a relaxation candidate crossing a superstep boundary.
// Path is the sender's best path (ending at the sender) and TotalWeight
// the cost of that path extended by the edge the message traveled on.
// A message is immutable once sent.
type PathMessage struct {
	Path        []string
	TotalWeight float64
}

// CombinePathMessages merges two messages bound for the same vertex in the
// same superstep, keeping the lower-weight one. On equal weight the message
// already held wins, so combining is order-insensitive in weight. Only the
// minimum contender per vertex per round has to survive for the relaxation
// to stay correct.
func CombinePathMessages(held PathMessage, incoming PathMessage) PathMessage {
	if incoming.TotalWeight < held.TotalWeight {
		return incoming
	}
	return held
}

// combineInto folds a message into a per-destination inbox, applying the
// combiner when the destination already holds one.
func combineInto(box map[string]PathMessage, destVertexId string, msg PathMessage) {
	if held, ok := box[destVertexId]; ok {
		box[destVertexId] = CombinePathMessages(held, msg)
		return
	}
	box[destVertexId] = msg
}
