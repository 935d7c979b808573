package pathfinder

import (
	"net/rpc"
)

// QuerySpec holds the recognized options of a shortest-path query. TargetId
// encodes the targets as a comma-separated id list, with "*" meaning every
// vertex. A DefaultWeight of 0 means "not set" and falls back to
// DefaultEdgeWeight.
type QuerySpec struct {
	SourceId       string
	TargetId       string
	WeightProperty string
	DefaultWeight  float64
}

// Query is a client request to compute shortest paths over a stored graph.
type Query struct {
	ClientId  string
	TableName string
	Spec      QuerySpec
}

// PathResult is the final PathValue of one vertex, as returned to clients.
type PathResult struct {
	Reachable   bool
	TotalWeight float64
	Path        []string
}

// QueryResult carries the per-target results (per reachable vertex for the
// "*" wildcard) back to the client. Error is set when the query aborted.
type QueryResult struct {
	Query      Query
	Paths      map[string]PathResult
	Supersteps uint64
	Error      string
}

// WorkerNode identifies a worker to the coord.
type WorkerNode struct {
	WorkerConfigId   uint32
	WorkerLogicalId  uint32
	WorkerAddr       string
	WorkerFCheckAddr string
	WorkerListenAddr string
}

// StartSuperStep tells a worker to load its partition and set up the
// computation for a new query, before superstep 0.
type StartSuperStep struct {
	NumWorkers      uint8
	WorkerLogicalId uint32
	WorkerDirectory WorkerDirectory
	Query           Query
}

type StartSuperStepResult struct {
	WorkerLogicalId uint32
	VertexCount     int
	Error           string
}

// ProgressSuperStep drives one superstep on a worker. ReachedTargets is the
// globally merged reached-set every worker observes at the start of the
// superstep; superstep 0 runs the init step on every vertex.
type ProgressSuperStep struct {
	SuperStepNum   uint64
	IsCheckpoint   bool
	ReachedTargets []string
}

// ProgressSuperStepResult reports one worker's superstep outcome back to
// the barrier: how many messages it emitted, its updated reached-set
// replica, and a fatal error if the computation aborted.
type ProgressSuperStepResult struct {
	SuperStepNum   uint64
	WorkerId       uint32
	ActiveVertices uint64
	MessagesSent   uint64
	ReachedTargets []string
	Error          string
}

// MessageBatch carries the combined messages one worker produced for
// vertices owned by another worker, keyed by destination vertex.
type MessageBatch struct {
	SuperStepNum uint64
	Messages     map[string]PathMessage
}

// EndQuery collects final results and releases per-query worker state.
type EndQuery struct {
	CollectAll bool // true for the "*" wildcard: return every reachable vertex
	TargetIds  []string
}

type EndQueryResult struct {
	Paths map[string]PathResult
}

// CheckpointMsg notifies the coord that a worker finished persisting a
// superstep checkpoint.
type CheckpointMsg struct {
	SuperStepNumber uint64
	WorkerId        uint32
}

// RestartSuperStep tells a worker to rebuild its query state and restore
// its vertex values from the given checkpoint. The reply echoes the
// arguments with ReachedTargets set to the checkpoint's replica, which the
// coord unions back into the global set.
type RestartSuperStep struct {
	SuperStepNumber uint64
	NumWorkers      uint8
	WorkerLogicalId uint32
	WorkerDirectory WorkerDirectory
	Query           Query
	ReachedTargets  []string
}

// WorkerDirectory maps logical worker ids to listen addresses.
type WorkerDirectory map[uint32]string

// WorkerCallBook maps logical worker ids to live RPC clients.
type WorkerCallBook map[uint32]*rpc.Client
