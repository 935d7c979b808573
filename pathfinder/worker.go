package pathfinder

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"waypoint/database"
	"waypoint/fcheck"
	"waypoint/util"
)

// WorkerConfig is read from config/workerN_config.json.
type WorkerConfig struct {
	WorkerId              uint32
	CoordAddr             string
	WorkerAddr            string
	WorkerListenAddr      string
	FCheckAckLocalAddress string
	GraphBackend          string
	GraphAddr             string
	CheckpointPath        string
}

// Worker owns one partition of the graph for the duration of a query. It
// executes supersteps when the coord says so, exchanges combined message
// batches with its peers, and checkpoints its state to a local sqlite
// database at the coord's cadence.
type Worker struct {
	WorkerId              uint32
	WorkerAddr            string
	WorkerListenAddr      string
	CoordAddr             string
	FCheckAckLocalAddress string
	GraphBackend          string
	GraphAddr             string
	CheckpointPath        string

	// per-query state, guarded by mu
	mu         sync.Mutex
	logicalId  uint32
	numWorkers uint8
	callbook   WorkerCallBook
	tableName  string
	comp       *Computation
	vertices   map[string]*Vertex
	reached    ReachedTargets
	superStep  uint64

	// inboxMu guards only the next superstep's inbox, so peers can deposit
	// batches while this worker is still inside its own compute pass.
	inboxMu   sync.Mutex
	inbox     map[string]PathMessage
	nextInbox map[string]PathMessage
}

// VertexCheckpoint is the persisted state of one vertex.
type VertexCheckpoint struct {
	Value PathValue
}

// CheckpointState is one superstep's snapshot of a worker.
type CheckpointState struct {
	SuperStepNumber uint64
	Vertices        map[string]VertexCheckpoint
	PendingInbox    map[string]PathMessage
	ReachedTargets  []string
}

func NewWorker(config WorkerConfig) *Worker {
	return &Worker{
		WorkerId:              config.WorkerId,
		WorkerAddr:            config.WorkerAddr,
		WorkerListenAddr:      config.WorkerListenAddr,
		CoordAddr:             config.CoordAddr,
		FCheckAckLocalAddress: config.FCheckAckLocalAddress,
		GraphBackend:          config.GraphBackend,
		GraphAddr:             config.GraphAddr,
		CheckpointPath:        config.CheckpointPath,
	}
}

// Start joins the coord and serves worker RPCs. Blocks for the lifetime of
// the process.
func (w *Worker) Start() error {
	if w.WorkerAddr == "" {
		return errors.New("failed to start worker: initialize worker before calling Start")
	}

	_, hBeatAddr, err := fcheck.Start(fcheck.StartStruct{
		AckLocalIPAckLocalPort: w.FCheckAckLocalAddress,
	})
	if err != nil {
		return fmt.Errorf("worker %d: fcheck failed to start: %w", w.WorkerId, err)
	}
	log.Infof("worker %d: heartbeat responder on %v", w.WorkerId, hBeatAddr)

	handler := rpc.NewServer()
	if err := handler.Register(w); err != nil {
		return fmt.Errorf("worker %d: could not register RPCs: %w", w.WorkerId, err)
	}

	listenAddr, err := net.ResolveTCPAddr("tcp", w.WorkerListenAddr)
	if err != nil {
		return fmt.Errorf("worker %d: could not resolve listen addr %v: %w",
			w.WorkerId, w.WorkerListenAddr, err)
	}
	listener, err := net.ListenTCP("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("worker %d: could not listen on %v: %w",
			w.WorkerId, listenAddr, err)
	}

	coordClient, err := util.DialRPC(w.CoordAddr)
	if err != nil {
		return fmt.Errorf("worker %d: failed to dial coord %v: %w",
			w.WorkerId, w.CoordAddr, err)
	}

	workerNode := WorkerNode{
		WorkerConfigId:   w.WorkerId,
		WorkerAddr:       w.WorkerAddr,
		WorkerFCheckAddr: hBeatAddr,
		WorkerListenAddr: w.WorkerListenAddr,
	}
	var response WorkerNode
	if err := coordClient.Call("Coord.JoinWorker", workerNode, &response); err != nil {
		return fmt.Errorf("worker %d: could not join coord: %w", w.WorkerId, err)
	}
	log.Infof("worker %d: joined coord at %v", w.WorkerId, w.CoordAddr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("worker %d: accept: %w", w.WorkerId, err)
		}
		go handler.ServeConn(conn)
	}
}

// StartQuery loads this worker's partition and validates the query options.
// Option errors are reported here, before superstep 0 runs anywhere.
func (w *Worker) StartQuery(args StartSuperStep, resp *StartSuperStepResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	resp.WorkerLogicalId = args.WorkerLogicalId

	if err := w.loadQueryState(args); err != nil {
		resp.Error = err.Error()
		return nil
	}

	resp.VertexCount = len(w.vertices)
	return nil
}

// loadQueryState builds the full per-query state: validated computation,
// partition vertices, peer callbook and empty inboxes. Also the rebuild
// path for checkpoint recovery, where survivors must re-dial any peer that
// came back on a new socket. Caller holds w.mu.
func (w *Worker) loadQueryState(args StartSuperStep) error {
	comp, err := NewComputation(args.Query.Spec)
	if err != nil {
		return err
	}

	source, err := database.OpenSource(w.GraphBackend, w.GraphAddr)
	if err != nil {
		return err
	}
	records, err := source.Partition(args.Query.TableName, args.WorkerLogicalId, args.NumWorkers)
	if err != nil {
		return err
	}

	callbook := make(WorkerCallBook)
	for logicalId, addr := range args.WorkerDirectory {
		if logicalId == args.WorkerLogicalId {
			continue
		}
		client, err := util.DialRPC(addr)
		if err != nil {
			return fmt.Errorf("worker %d could not dial peer %v: %w",
				w.WorkerId, addr, err)
		}
		callbook[logicalId] = client
	}
	for _, client := range w.callbook {
		client.Close()
	}

	w.logicalId = args.WorkerLogicalId
	w.numWorkers = args.NumWorkers
	w.callbook = callbook
	w.tableName = args.Query.TableName
	w.comp = comp
	w.vertices = make(map[string]*Vertex, len(records))
	for _, record := range records {
		edges := make([]Edge, 0, len(record.Edges))
		for _, e := range record.Edges {
			edges = append(edges, Edge{Target: e.Target, Properties: e.Properties})
		}
		w.vertices[record.ID] = NewVertex(record.ID, edges)
	}
	w.reached = NewReachedTargets()
	w.superStep = 0

	w.inboxMu.Lock()
	w.inbox = make(map[string]PathMessage)
	w.nextInbox = make(map[string]PathMessage)
	w.inboxMu.Unlock()

	log.Infof("worker %d: loaded %d vertices of table %s as logical worker %d/%d",
		w.WorkerId, len(w.vertices), w.tableName, w.logicalId, w.numWorkers)
	return nil
}

// ComputeVertices runs one superstep over this worker's partition.
// Superstep 0 runs the init step on every vertex; later supersteps run the
// steady-state step on every vertex that received a combined message.
func (w *Worker) ComputeVertices(args ProgressSuperStep, resp *ProgressSuperStepResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.comp == nil {
		resp.Error = "no query in progress"
		return nil
	}

	w.superStep = args.SuperStepNum

	// replace the local replica with the merged global set, so every
	// worker computes this superstep against the same value
	w.reached = ReachedTargetsFromIds(args.ReachedTargets)

	w.inboxMu.Lock()
	w.inbox = w.nextInbox
	w.nextInbox = make(map[string]PathMessage)
	w.inboxMu.Unlock()

	outBox, active, err := w.runSuperstep(args.SuperStepNum)
	if err != nil {
		log.Errorf("worker %d: superstep %d aborted: %v", w.WorkerId, args.SuperStepNum, err)
		resp.Error = err.Error()
		return nil
	}

	sent, err := w.deliver(args.SuperStepNum, outBox)
	if err != nil {
		resp.Error = err.Error()
		return nil
	}

	if args.IsCheckpoint {
		if err := w.storeCheckpoint(args.SuperStepNum); err != nil {
			log.Errorf("worker %d: checkpoint %d failed: %v", w.WorkerId, args.SuperStepNum, err)
		}
	}

	resp.SuperStepNum = args.SuperStepNum
	resp.WorkerId = w.logicalId
	resp.ActiveVertices = active
	resp.MessagesSent = sent
	resp.ReachedTargets = w.reached.Ids()
	return nil
}

// runSuperstep executes the vertex programs and returns the combined
// outgoing messages keyed by destination vertex.
func (w *Worker) runSuperstep(superStepNum uint64) (map[string]PathMessage, uint64, error) {
	outBox := make(map[string]PathMessage)
	active := uint64(0)

	if superStepNum == 0 {
		for _, vertex := range w.vertices {
			msgs, err := w.comp.ComputeInit(vertex)
			if err != nil {
				return nil, 0, err
			}
			active++
			for _, m := range msgs {
				combineInto(outBox, m.DestVertexId, m.Message)
			}
		}
		return outBox, active, nil
	}

	for vertexId, message := range w.inbox {
		vertex, ok := w.vertices[vertexId]
		if !ok {
			// edge into a vertex the graph does not contain
			log.Debugf("worker %d: dropping message for unknown vertex %v", w.WorkerId, vertexId)
			continue
		}
		msgs, err := w.comp.ComputeStep(vertex, []PathMessage{message}, w.reached)
		if err != nil {
			return nil, 0, err
		}
		active++
		for _, m := range msgs {
			combineInto(outBox, m.DestVertexId, m.Message)
		}
	}
	return outBox, active, nil
}

// deliver groups the combined outbox by owning worker and hands each peer
// its batch. The local slice goes straight into this worker's next inbox.
func (w *Worker) deliver(superStepNum uint64, outBox map[string]PathMessage) (uint64, error) {
	batches := make(map[uint32]map[string]PathMessage)
	for destVertexId, message := range outBox {
		owner := util.AssignedWorker(destVertexId, w.numWorkers)
		if batches[owner] == nil {
			batches[owner] = make(map[string]PathMessage)
		}
		batches[owner][destVertexId] = message
	}

	sent := uint64(0)
	for owner, batch := range batches {
		sent += uint64(len(batch))
		if owner == w.logicalId {
			w.acceptBatch(batch)
			continue
		}

		client, ok := w.callbook[owner]
		if !ok {
			return 0, fmt.Errorf("worker %d: no connection to peer %d", w.WorkerId, owner)
		}
		var reply MessageBatch
		err := client.Call("Worker.DepositMessages",
			MessageBatch{SuperStepNum: superStepNum, Messages: batch}, &reply)
		if err != nil {
			return 0, fmt.Errorf("worker %d: deposit to peer %d: %w", w.WorkerId, owner, err)
		}
	}
	return sent, nil
}

// DepositMessages receives a peer's batch for the next superstep. Combining
// happens again on arrival, so after the barrier each vertex holds exactly
// one message.
func (w *Worker) DepositMessages(args MessageBatch, resp *MessageBatch) error {
	w.inboxMu.Lock()
	defer w.inboxMu.Unlock()

	for destVertexId, message := range args.Messages {
		combineInto(w.nextInbox, destVertexId, message)
	}
	resp.SuperStepNum = args.SuperStepNum
	return nil
}

func (w *Worker) acceptBatch(batch map[string]PathMessage) {
	w.inboxMu.Lock()
	defer w.inboxMu.Unlock()
	for destVertexId, message := range batch {
		combineInto(w.nextInbox, destVertexId, message)
	}
}

// EndQuery returns the final path values the coord asked for and releases
// the per-query state.
func (w *Worker) EndQuery(args EndQuery, resp *EndQueryResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	resp.Paths = make(map[string]PathResult)
	if args.CollectAll {
		for id, vertex := range w.vertices {
			if vertex.value != nil && vertex.value.Reachable {
				resp.Paths[id] = toPathResult(vertex.value)
			}
		}
	} else {
		for _, id := range args.TargetIds {
			vertex, ok := w.vertices[id]
			if !ok {
				continue
			}
			if vertex.value != nil {
				resp.Paths[id] = toPathResult(vertex.value)
			}
		}
	}

	w.comp = nil
	w.vertices = nil
	w.reached = nil
	for _, client := range w.callbook {
		client.Close()
	}
	w.callbook = nil
	return nil
}

func toPathResult(v *PathValue) PathResult {
	return PathResult{
		Reachable:   v.Reachable,
		TotalWeight: v.TotalWeight,
		Path:        v.Path,
	}
}

// RevertToLastCheckpoint rebuilds the query state and restores this
// worker's partition to the given checkpointed superstep. The full rebuild
// also covers a worker process that restarted with nothing in memory.
// Replies with the checkpoint's reached-target replica so the coord can
// rebuild the global set from the per-worker snapshots.
func (w *Worker) RevertToLastCheckpoint(args RestartSuperStep, resp *RestartSuperStep) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.loadQueryState(StartSuperStep{
		NumWorkers:      args.NumWorkers,
		WorkerLogicalId: args.WorkerLogicalId,
		WorkerDirectory: args.WorkerDirectory,
		Query:           args.Query,
	})
	if err != nil {
		return err
	}

	checkpoint, err := w.retrieveCheckpoint(args.SuperStepNumber)
	if err != nil {
		return err
	}
	w.restoreCheckpoint(checkpoint)

	log.Infof("worker %d: reverted to checkpoint %d", w.WorkerId, checkpoint.SuperStepNumber)
	*resp = args
	resp.ReachedTargets = checkpoint.ReachedTargets
	return nil
}

// restoreCheckpoint applies a snapshot over freshly loaded partition state.
// Caller holds w.mu.
func (w *Worker) restoreCheckpoint(checkpoint CheckpointState) {
	w.superStep = checkpoint.SuperStepNumber
	for id, state := range checkpoint.Vertices {
		if vertex, ok := w.vertices[id]; ok {
			value := state.Value
			vertex.value = &value
		}
	}
	w.reached = ReachedTargetsFromIds(checkpoint.ReachedTargets)

	w.inboxMu.Lock()
	w.nextInbox = make(map[string]PathMessage)
	for id, message := range checkpoint.PendingInbox {
		w.nextInbox[id] = message
	}
	w.inboxMu.Unlock()
}

func (w *Worker) checkpointDB() (*sql.DB, error) {
	path := w.CheckpointPath
	if path == "" {
		path = fmt.Sprintf("checkpoints-%d.db", w.WorkerId)
	}

	const createCheckpoints = `
	  CREATE TABLE IF NOT EXISTS checkpoints (
	  superStepNumber INTEGER NOT NULL PRIMARY KEY,
	  checkpointState BLOB NOT NULL
	  );`
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createCheckpoints); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// persistCheckpoint snapshots the worker's in-memory query state into the
// local checkpoint table. Caller holds w.mu.
func (w *Worker) persistCheckpoint(superStepNum uint64) error {
	db, err := w.checkpointDB()
	if err != nil {
		return err
	}
	defer db.Close()

	state := CheckpointState{
		SuperStepNumber: superStepNum,
		Vertices:        make(map[string]VertexCheckpoint, len(w.vertices)),
		ReachedTargets:  w.reached.Ids(),
	}
	for id, vertex := range w.vertices {
		if vertex.value != nil {
			state.Vertices[id] = VertexCheckpoint{Value: *vertex.value}
		}
	}

	w.inboxMu.Lock()
	state.PendingInbox = make(map[string]PathMessage, len(w.nextInbox))
	for id, message := range w.nextInbox {
		state.PendingInbox[id] = message
	}
	w.inboxMu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return err
	}
	_, err = db.Exec("INSERT OR REPLACE INTO checkpoints VALUES(?,?)",
		superStepNum, buf.Bytes())
	return err
}

func (w *Worker) storeCheckpoint(superStepNum uint64) error {
	if err := w.persistCheckpoint(superStepNum); err != nil {
		return err
	}

	// tell coord this checkpoint is durable
	coordClient, err := util.DialRPC(w.CoordAddr)
	if err != nil {
		return fmt.Errorf("worker %d could not dial coord %v: %w", w.WorkerId, w.CoordAddr, err)
	}
	defer coordClient.Close()

	checkpointMsg := CheckpointMsg{SuperStepNumber: superStepNum, WorkerId: w.logicalId}
	var reply CheckpointMsg
	return coordClient.Call("Coord.UpdateCheckpoint", checkpointMsg, &reply)
}

func (w *Worker) retrieveCheckpoint(superStepNum uint64) (CheckpointState, error) {
	db, err := w.checkpointDB()
	if err != nil {
		return CheckpointState{}, err
	}
	defer db.Close()

	var buf []byte
	res := db.QueryRow(
		"SELECT checkpointState FROM checkpoints WHERE superStepNumber=?", superStepNum)
	if err := res.Scan(&buf); err != nil {
		return CheckpointState{}, err
	}

	var state CheckpointState
	if err := gob.NewDecoder(bytes.NewBuffer(buf)).Decode(&state); err != nil {
		return CheckpointState{}, err
	}
	state.SuperStepNumber = superStepNum
	return state, nil
}
