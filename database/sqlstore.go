package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"

	"waypoint/util"
)

// SQLSource reads graphs out of SQL Server. Each table row is one vertex:
//
//	srcVertex NVARCHAR primary key, edges NVARCHAR(MAX)
//
// with edges holding the JSON-encoded outgoing edge list.
type SQLSource struct {
	db *sql.DB
}

func NewSQLSource(connString string) (*SQLSource, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, fmt.Errorf("error creating connection pool: %w", err)
	}
	return &SQLSource{db: db}, nil
}

func (s *SQLSource) GetVertexById(table string, vertexId string) (VertexRecord, error) {
	var id string
	var edgesJSON string

	qs := fmt.Sprintf("SELECT srcVertex, edges FROM %s WHERE srcVertex = @p1;", table)
	if err := s.db.QueryRow(qs, vertexId).Scan(&id, &edgesJSON); err != nil {
		if err == sql.ErrNoRows {
			return VertexRecord{}, fmt.Errorf("vertex %s: unknown ID", vertexId)
		}
		return VertexRecord{}, err
	}
	return decodeRow(id, edgesJSON)
}

// Partition streams the whole table and keeps the rows hashed to this
// worker, the same modulo split every other backend uses.
func (s *SQLSource) Partition(table string, workerId uint32, numWorkers uint8) ([]VertexRecord, error) {
	rows, err := s.db.Query(fmt.Sprintf("SELECT srcVertex, edges FROM %s;", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vertices []VertexRecord
	for rows.Next() {
		var id string
		var edgesJSON string
		if err := rows.Scan(&id, &edgesJSON); err != nil {
			return nil, err
		}
		if util.AssignedWorker(id, numWorkers) != workerId {
			continue
		}
		vertex, err := decodeRow(id, edgesJSON)
		if err != nil {
			return nil, err
		}
		vertices = append(vertices, vertex)
	}
	return vertices, rows.Err()
}

func decodeRow(id string, edgesJSON string) (VertexRecord, error) {
	vertex := VertexRecord{ID: id}
	if edgesJSON == "" {
		return vertex, nil
	}
	if err := json.Unmarshal([]byte(edgesJSON), &vertex.Edges); err != nil {
		return VertexRecord{}, fmt.Errorf("vertex %s: bad edges payload: %w", id, err)
	}
	return vertex, nil
}
