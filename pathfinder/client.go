package pathfinder

import (
	"net"
	"net/rpc"

	log "github.com/sirupsen/logrus"

	"waypoint/util"
)

// ClientConfig is read from config/client_config.json.
type ClientConfig struct {
	ClientId   string
	CoordAddr  string
	ClientAddr string
}

// GraphClient submits shortest-path queries to the coord and delivers
// results on a notify channel.
type GraphClient struct {
	clientId    string
	coordClient *rpc.Client
	coordConn   *net.TCPConn
	notifyCh    chan QueryResult
}

func NewClient() *GraphClient {
	return &GraphClient{}
}

// Start connects to the coord. Returns the channel query results arrive on.
func (c *GraphClient) Start(clientId string, coordAddr string, clientAddr string) (chan QueryResult, error) {
	c.clientId = clientId

	lAddr := util.IPEmptyPortOnly(clientAddr)
	conn, err := util.DialTCPCustom(lAddr, coordAddr)
	if err != nil {
		return nil, err
	}
	c.coordConn = conn
	c.coordClient = rpc.NewClient(conn)

	c.notifyCh = make(chan QueryResult, 1)
	return c.notifyCh, nil
}

// SendQuery validates the query spec locally and submits it. The result
// arrives asynchronously on the notify channel.
func (c *GraphClient) SendQuery(query Query) error {
	// same fail-fast validation the coord will do, but without the round trip
	if _, err := NewComputation(query.Spec); err != nil {
		return err
	}

	query.ClientId = c.clientId
	log.Infof("SendQuery: query queued: source=%v target=%v",
		query.Spec.SourceId, query.Spec.TargetId)
	go c.doQuery(query)
	return nil
}

func (c *GraphClient) doQuery(query Query) {
	var result QueryResult
	err := c.coordClient.Call("Coord.StartQuery", query, &result)
	if err != nil {
		log.Errorf("doQuery: error calling Coord.StartQuery: %v", err)
		result = QueryResult{Query: query, Error: err.Error()}
	}

	if result.Error != "" {
		log.Errorf("doQuery: received error: %v", result.Error)
	}

	c.notifyCh <- result
}

// Stop closes the coord connection.
func (c *GraphClient) Stop() {
	if c.coordClient != nil {
		c.coordClient.Close()
	}
}
