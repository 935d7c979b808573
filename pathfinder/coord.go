package pathfinder

import (
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/rpc"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"waypoint/database"
	"waypoint/fcheck"
	"waypoint/util"
)

const coordProcesses = 3

// maxSuperSteps bounds runaway queries; a graph would need a shortest path
// this many hops long to hit it.
const maxSuperSteps = 100000

// workerRejoinTimeout is how long checkpoint recovery waits for a failed
// worker to rejoin before giving up on the query.
const workerRejoinTimeout = 30 * time.Second

// CoordConfig is read from config/coord_config.json.
type CoordConfig struct {
	ClientAPIListenAddr     string // clients contact coord here
	WorkerAPIListenAddr     string // new joining workers message this addr
	ExternalAPIListenAddr   string // HTTP endpoint for inspection and metrics
	LostMsgsThresh          uint8  // fcheck
	StepsBetweenCheckpoints uint64
	GraphBackend            string // optional query-validation graph source
	GraphAddr               string
}

// Coord admits workers, validates queries, and drives the superstep
// barrier: every worker computes, the reached-target replicas are merged
// by union, and the next superstep starts with the merged set. A query
// converges when no worker emitted a message in a superstep.
type Coord struct {
	clientAPIListenAddr   string
	workerAPIListenAddr   string
	externalAPIListenAddr string
	lostMsgsThresh        uint8
	checkpointFrequency   uint64
	graphBackend          string
	graphAddr             string

	mu                    sync.Mutex
	workers               map[uint32]WorkerNode // config id -> joined worker
	queryWorkers          map[uint32]WorkerNode // logical id -> worker for current query
	queryWorkersCallbook  WorkerCallBook
	query                 Query
	busy                  bool
	superStepNumber       uint64
	reached               ReachedTargets
	lastCheckpointNumber  uint64
	lastWorkerCheckpoints map[uint32]uint64
	workerFailedCh        chan uint32
}

func NewCoord() *Coord {
	return &Coord{
		workers:               make(map[uint32]WorkerNode),
		lastWorkerCheckpoints: make(map[uint32]uint64),
	}
}

// Start serves the three coord surfaces: worker RPC, client RPC, and the
// external HTTP API. Only returns on unrecoverable errors.
func (c *Coord) Start(config CoordConfig) error {
	c.clientAPIListenAddr = config.ClientAPIListenAddr
	c.workerAPIListenAddr = config.WorkerAPIListenAddr
	c.externalAPIListenAddr = config.ExternalAPIListenAddr
	c.lostMsgsThresh = config.LostMsgsThresh
	c.checkpointFrequency = config.StepsBetweenCheckpoints
	c.graphBackend = config.GraphBackend
	c.graphAddr = config.GraphAddr

	if err := rpc.Register(c); err != nil {
		return fmt.Errorf("coord could not register RPCs: %w", err)
	}

	wg := sync.WaitGroup{}
	wg.Add(coordProcesses)
	go c.listenWorkers(config.WorkerAPIListenAddr)
	go c.listenClients(config.ClientAPIListenAddr)
	go c.listenExternalRequests(config.ExternalAPIListenAddr)
	wg.Wait()

	// never reached
	return nil
}

func (c *Coord) listenWorkers(workerAPIListenAddr string) {
	listener, err := net.Listen("tcp", workerAPIListenAddr)
	if err != nil {
		log.Fatalf("listenWorkers: error listening: %v", err)
	}
	log.Infof("listenWorkers: listening for workers at %v", workerAPIListenAddr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Errorf("listenWorkers: error accepting worker: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

func (c *Coord) listenClients(clientAPIListenAddr string) {
	listener, err := net.Listen("tcp", clientAPIListenAddr)
	if err != nil {
		log.Fatalf("listenClients: error listening: %v", err)
	}
	log.Infof("listenClients: listening for clients at %v", clientAPIListenAddr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Errorf("listenClients: error accepting client: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

func (c *Coord) listenExternalRequests(externalAPIListenAddr string) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	externalAPI := router.Group("/api")
	{
		externalAPI.GET("/workers", c.ListWorkers)
		externalAPI.GET("/query", c.QueryStatus)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Infof("listenExternalRequests: listening on %v", externalAPIListenAddr)
	if err := router.Run(externalAPIListenAddr); err != nil {
		log.Fatalf("listenExternalRequests: error while serving: %v", err)
	}
}

func (c *Coord) ListWorkers(ctx *gin.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	workers := make([]WorkerNode, 0, len(c.workers))
	for _, w := range c.workers {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool {
		return workers[i].WorkerConfigId < workers[j].WorkerConfigId
	})
	ctx.JSON(http.StatusOK, gin.H{"workers": workers})
}

func (c *Coord) QueryStatus(ctx *gin.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := gin.H{"busy": c.busy}
	if c.busy {
		status["superstep"] = c.superStepNumber
		status["reachedTargets"] = c.reached.Ids()
		status["source"] = c.query.Spec.SourceId
		status["target"] = c.query.Spec.TargetId
	}
	ctx.JSON(http.StatusOK, status)
}

// JoinWorker admits a worker into the pool and starts monitoring its
// heartbeats.
func (c *Coord) JoinWorker(w WorkerNode, reply *WorkerNode) error {
	log.Infof("JoinWorker: adding worker %d at %v", w.WorkerConfigId, w.WorkerListenAddr)

	client, err := util.DialRPC(w.WorkerListenAddr)
	if err != nil {
		log.Errorf("JoinWorker: could not dial worker addr %v: %v", w.WorkerListenAddr, err)
		return err
	}
	client.Close()

	c.mu.Lock()
	if _, ok := c.workers[w.WorkerConfigId]; ok {
		c.mu.Unlock()
		return fmt.Errorf("worker with config id %v already joined", w.WorkerConfigId)
	}
	c.workers[w.WorkerConfigId] = w
	joinedWorkers.Set(float64(len(c.workers)))
	c.mu.Unlock()

	go c.monitor(w)

	*reply = w
	return nil
}

func (c *Coord) monitor(w WorkerNode) {
	host := strings.Split(c.workerAPIListenAddr, ":")[0]
	notifyCh, err := fcheck.Monitor(fcheck.StartStruct{
		HBeatLocalIPHBeatLocalPort:   host + ":0",
		HBeatRemoteIPHBeatRemotePort: w.WorkerFCheckAddr,
		EpochNonce:                   rand.Uint64(),
		LostMsgThresh:                c.lostMsgsThresh,
		ServerId:                     w.WorkerConfigId,
	})
	if err != nil {
		log.Errorf("monitor: fcheck failed for worker %d: %v", w.WorkerConfigId, err)
		return
	}

	notify := <-notifyCh
	log.Errorf("monitor: worker %d failed: %v", w.WorkerConfigId, notify)

	c.mu.Lock()
	delete(c.workers, w.WorkerConfigId)
	joinedWorkers.Set(float64(len(c.workers)))
	failedCh := c.workerFailedCh
	var logicalId uint32
	inQuery := false
	for id, node := range c.queryWorkers {
		if node.WorkerConfigId == w.WorkerConfigId {
			logicalId = id
			inQuery = true
		}
	}
	c.mu.Unlock()

	if inQuery && failedCh != nil {
		failedCh <- logicalId
	}
}

// UpdateCheckpoint records a worker's durable checkpoint; once every query
// worker has persisted a superstep it becomes the global revert point.
func (c *Coord) UpdateCheckpoint(msg CheckpointMsg, reply *CheckpointMsg) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastWorkerCheckpoints[msg.WorkerId] = msg.SuperStepNumber

	allWorkersUpdated := true
	for logicalId := range c.queryWorkers {
		if c.lastWorkerCheckpoints[logicalId] != msg.SuperStepNumber {
			allWorkersUpdated = false
			break
		}
	}
	if allWorkersUpdated {
		c.lastCheckpointNumber = msg.SuperStepNumber
		log.Infof("UpdateCheckpoint: global checkpoint advanced to %v", c.lastCheckpointNumber)
	}

	*reply = msg
	return nil
}

// StartQuery runs a whole shortest-path query: validation, partition
// loading, the superstep loop, and result collection. Called by clients
// over RPC; replies with the error string set when the query aborted.
func (c *Coord) StartQuery(q Query, reply *QueryResult) error {
	reply.Query = q

	// fail fast, before any worker does a thing
	comp, err := NewComputation(q.Spec)
	if err != nil {
		reply.Error = err.Error()
		queriesTotal.WithLabelValues("rejected").Inc()
		return nil
	}

	if c.graphBackend != "" {
		if err := c.validateSource(q.TableName, comp.Spec.SourceId); err != nil {
			reply.Error = err.Error()
			queriesTotal.WithLabelValues("rejected").Inc()
			return nil
		}
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		reply.Error = "a query is already in progress"
		queriesTotal.WithLabelValues("rejected").Inc()
		return nil
	}
	if len(c.workers) == 0 {
		c.mu.Unlock()
		reply.Error = "no workers joined"
		queriesTotal.WithLabelValues("rejected").Inc()
		return nil
	}

	c.busy = true
	c.query = q
	c.superStepNumber = 0
	c.reached = NewReachedTargets()
	c.lastCheckpointNumber = 0
	c.lastWorkerCheckpoints = make(map[uint32]uint64)
	c.workerFailedCh = make(chan uint32, len(c.workers))
	err = c.assignQueryWorkers()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.queryWorkers = nil
		c.queryWorkersCallbook = nil
		c.query = Query{}
		c.workerFailedCh = nil
		c.mu.Unlock()
	}()

	if err != nil {
		reply.Error = err.Error()
		queriesTotal.WithLabelValues("failed").Inc()
		return nil
	}

	log.Infof("StartQuery: source=%v target=%v (%v) over table %v with %d workers",
		q.Spec.SourceId, q.Spec.TargetId, comp.Spec.Quantity, q.TableName, len(c.queryWorkers))

	if err := c.startWorkers(q); err != nil {
		reply.Error = err.Error()
		queriesTotal.WithLabelValues("failed").Inc()
		return nil
	}

	supersteps, err := c.runSupersteps()
	if err != nil {
		reply.Error = err.Error()
		queriesTotal.WithLabelValues("failed").Inc()
		return nil
	}

	paths, err := c.collectResults(comp)
	if err != nil {
		reply.Error = err.Error()
		queriesTotal.WithLabelValues("failed").Inc()
		return nil
	}

	reply.Paths = paths
	reply.Supersteps = supersteps
	queriesTotal.WithLabelValues("completed").Inc()
	log.Infof("StartQuery: converged after %d supersteps, %d result paths",
		supersteps, len(paths))
	return nil
}

// validateSource checks the source vertex exists before burning supersteps
// on a query that cannot reach anything.
func (c *Coord) validateSource(tableName string, sourceId string) error {
	source, err := database.OpenSource(c.graphBackend, c.graphAddr)
	if err != nil {
		return err
	}
	if _, err := source.GetVertexById(tableName, sourceId); err != nil {
		return fmt.Errorf("source vertex validation failed: %w", err)
	}
	return nil
}

// assignQueryWorkers gives every joined worker a dense logical id and an
// RPC client. Caller holds c.mu.
func (c *Coord) assignQueryWorkers() error {
	c.queryWorkers = make(map[uint32]WorkerNode)
	c.queryWorkersCallbook = make(WorkerCallBook)

	configIds := make([]uint32, 0, len(c.workers))
	for id := range c.workers {
		configIds = append(configIds, id)
	}
	sort.Slice(configIds, func(i, j int) bool { return configIds[i] < configIds[j] })

	logicalId := uint32(0)
	for _, configId := range configIds {
		node := c.workers[configId]
		node.WorkerLogicalId = logicalId

		client, err := util.DialRPC(node.WorkerListenAddr)
		if err != nil {
			return fmt.Errorf("cannot create client for worker %v addr %v: %w",
				configId, node.WorkerListenAddr, err)
		}
		c.queryWorkers[logicalId] = node
		c.queryWorkersCallbook[logicalId] = client
		logicalId++
	}
	return nil
}

func (c *Coord) workerDirectory() WorkerDirectory {
	directory := make(WorkerDirectory)
	for logicalId, node := range c.queryWorkers {
		directory[logicalId] = node.WorkerListenAddr
	}
	return directory
}

// startWorkers loads partitions everywhere; the fail-fast option errors
// also surface here when a worker rejects the query spec.
func (c *Coord) startWorkers(q Query) error {
	numWorkers := len(c.queryWorkers)
	directory := c.workerDirectory()
	done := make(chan *rpc.Call, numWorkers)

	for logicalId, client := range c.queryWorkersCallbook {
		args := StartSuperStep{
			NumWorkers:      uint8(numWorkers),
			WorkerLogicalId: logicalId,
			WorkerDirectory: directory,
			Query:           q,
		}
		client.Go("Worker.StartQuery", args, new(StartSuperStepResult), done)
	}

	for i := 0; i < numWorkers; i++ {
		call := <-done
		if call.Error != nil {
			return fmt.Errorf("worker failed to start query: %w", call.Error)
		}
		result := call.Reply.(*StartSuperStepResult)
		if result.Error != "" {
			return fmt.Errorf("worker %d rejected query: %s", result.WorkerLogicalId, result.Error)
		}
		log.Infof("startWorkers: worker %d loaded %d vertices",
			result.WorkerLogicalId, result.VertexCount)
	}
	return nil
}

// runSupersteps drives the barrier loop until no worker sends a message.
func (c *Coord) runSupersteps() (uint64, error) {
	numWorkers := len(c.queryWorkers)

	for ssn := uint64(0); ssn < maxSuperSteps; ssn++ {
		c.mu.Lock()
		c.superStepNumber = ssn
		reachedIds := c.reached.Ids()
		failedCh := c.workerFailedCh
		c.mu.Unlock()

		shouldCheckpoint := c.checkpointFrequency > 0 && ssn > 0 &&
			ssn%c.checkpointFrequency == 0
		args := ProgressSuperStep{
			SuperStepNum:   ssn,
			IsCheckpoint:   shouldCheckpoint,
			ReachedTargets: reachedIds,
		}

		done := make(chan *rpc.Call, numWorkers)
		for _, client := range c.queryWorkersCallbook {
			client.Go("Worker.ComputeVertices", args, new(ProgressSuperStepResult), done)
		}

		totalSent := uint64(0)
		totalActive := uint64(0)
		reverted := false
		for i := 0; i < numWorkers && !reverted; i++ {
			select {
			case call := <-done:
				if call.Error != nil {
					return ssn, fmt.Errorf("superstep %d: worker rpc failed: %w", ssn, call.Error)
				}
				result := call.Reply.(*ProgressSuperStepResult)
				if result.Error != "" {
					return ssn, fmt.Errorf("superstep %d: worker %d aborted: %s",
						ssn, result.WorkerId, result.Error)
				}
				totalSent += result.MessagesSent
				totalActive += result.ActiveVertices

				c.mu.Lock()
				c.reached.Union(ReachedTargetsFromIds(result.ReachedTargets))
				c.mu.Unlock()
			case failed := <-failedCh:
				log.Errorf("superstep %d: worker %d failed, reverting to last checkpoint", ssn, failed)
				restartSsn, err := c.restartFromCheckpoint()
				if err != nil {
					return ssn, fmt.Errorf("superstep %d: worker %d failed and recovery is impossible: %w",
						ssn, failed, err)
				}
				ssn = restartSsn
				reverted = true
			}
		}
		if reverted {
			// the loop increment resumes at the superstep after the
			// restored one, whose pending inbox the checkpoint carries
			continue
		}

		superstepsTotal.Inc()
		messagesRoutedTotal.Add(float64(totalSent))
		activeVertices.Set(float64(totalActive))
		c.mu.Lock()
		reachedTargetsGauge.Set(float64(c.reached.Size()))
		c.mu.Unlock()

		log.Debugf("superstep %d: %d active vertices, %d messages sent",
			ssn, totalActive, totalSent)

		if totalSent == 0 {
			return ssn + 1, nil
		}
	}
	return maxSuperSteps, fmt.Errorf("query exceeded %d supersteps", uint64(maxSuperSteps))
}

// restartFromCheckpoint reverts every query worker to the last globally
// durable checkpoint and rebuilds the global reached set from the
// per-worker snapshots. Recovery needs the pool back at full strength: the
// failed worker must rejoin with its config id and checkpoint database
// before its partition can be restored.
func (c *Coord) restartFromCheckpoint() (uint64, error) {
	c.mu.Lock()
	checkpointNumber := c.lastCheckpointNumber
	numWorkers := len(c.queryWorkers)
	query := c.query
	c.mu.Unlock()

	deadline := time.Now().Add(workerRejoinTimeout)
	for {
		c.mu.Lock()
		joined := len(c.workers)
		c.mu.Unlock()
		if joined >= numWorkers {
			break
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("pool has %d of the %d workers the query needs", joined, numWorkers)
		}
		time.Sleep(time.Second)
	}

	c.mu.Lock()
	err := c.assignQueryWorkers()
	directory := c.workerDirectory()
	callbook := c.queryWorkersCallbook
	c.reached = NewReachedTargets()
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}

	done := make(chan *rpc.Call, numWorkers)
	for logicalId, client := range callbook {
		args := RestartSuperStep{
			SuperStepNumber: checkpointNumber,
			NumWorkers:      uint8(numWorkers),
			WorkerLogicalId: logicalId,
			WorkerDirectory: directory,
			Query:           query,
		}
		client.Go("Worker.RevertToLastCheckpoint", args, new(RestartSuperStep), done)
	}

	for i := 0; i < numWorkers; i++ {
		call := <-done
		if call.Error != nil {
			return 0, fmt.Errorf("worker could not revert to checkpoint %d: %w",
				checkpointNumber, call.Error)
		}
		result := call.Reply.(*RestartSuperStep)
		c.mu.Lock()
		c.reached.Union(ReachedTargetsFromIds(result.ReachedTargets))
		c.mu.Unlock()
	}

	log.Infof("restartFromCheckpoint: all %d workers reverted to superstep %d",
		numWorkers, checkpointNumber)
	return checkpointNumber, nil
}

// collectResults merges each worker's final path values. Targets nobody
// reached (or that do not exist in the graph) come back explicitly
// unreachable.
func (c *Coord) collectResults(comp *Computation) (map[string]PathResult, error) {
	numWorkers := len(c.queryWorkers)
	args := EndQuery{
		CollectAll: comp.Spec.Quantity == QuantityAll,
		TargetIds:  comp.Spec.TargetIds(),
	}

	done := make(chan *rpc.Call, numWorkers)
	for _, client := range c.queryWorkersCallbook {
		client.Go("Worker.EndQuery", args, new(EndQueryResult), done)
	}

	paths := make(map[string]PathResult)
	for i := 0; i < numWorkers; i++ {
		call := <-done
		if call.Error != nil {
			return nil, fmt.Errorf("collecting results: %w", call.Error)
		}
		result := call.Reply.(*EndQueryResult)
		for id, path := range result.Paths {
			paths[id] = path
		}
	}

	if !args.CollectAll {
		for _, id := range args.TargetIds {
			if _, ok := paths[id]; !ok {
				paths[id] = PathResult{Reachable: false, TotalWeight: math.Inf(1)}
			}
		}
	}
	return paths, nil
}
