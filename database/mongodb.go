package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"waypoint/util"
)

const mongoDatabase = "waypoint"

// mongoVertex is the BSON shape of a stored vertex.
type mongoVertex struct {
	ID    string      `bson:"_id"`
	Edges []mongoEdge `bson:"edges"`
}

type mongoEdge struct {
	Target     string                 `bson:"target"`
	Properties map[string]interface{} `bson:"properties,omitempty"`
}

type MongoSource struct {
	client *mongo.Client
}

func NewMongoSource(uri string) (*MongoSource, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return &MongoSource{client: client}, nil
}

func (s *MongoSource) collection(table string) *mongo.Collection {
	return s.client.Database(mongoDatabase).Collection(table)
}

func (s *MongoSource) GetVertexById(table string, vertexId string) (VertexRecord, error) {
	var v mongoVertex
	err := s.collection(table).FindOne(
		context.Background(), bson.M{"_id": vertexId},
	).Decode(&v)
	if err != nil {
		return VertexRecord{}, err
	}
	return toRecord(v), nil
}

// Partition reads every vertex and keeps the ones hashed to this worker.
// Mongo deployments here are small validation mirrors; the scan is fine.
func (s *MongoSource) Partition(table string, workerId uint32, numWorkers uint8) ([]VertexRecord, error) {
	cursor, err := s.collection(table).Find(context.TODO(), bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(context.TODO())

	var vertices []VertexRecord
	for cursor.Next(context.TODO()) {
		var v mongoVertex
		if err := cursor.Decode(&v); err != nil {
			return nil, err
		}
		if util.AssignedWorker(v.ID, numWorkers) == workerId {
			vertices = append(vertices, toRecord(v))
		}
	}
	return vertices, cursor.Err()
}

// InsertVertices mirrors a graph into mongo, mostly used by tests and the
// coord-side validation deployment.
func (s *MongoSource) InsertVertices(table string, vertices []VertexRecord) error {
	docs := make([]interface{}, 0, len(vertices))
	for _, record := range vertices {
		v := mongoVertex{ID: record.ID}
		for _, e := range record.Edges {
			v.Edges = append(v.Edges, mongoEdge{Target: e.Target, Properties: e.Properties})
		}
		docs = append(docs, v)
	}
	_, err := s.collection(table).InsertMany(context.TODO(), docs)
	return err
}

func toRecord(v mongoVertex) VertexRecord {
	record := VertexRecord{ID: v.ID}
	for _, e := range v.Edges {
		record.Edges = append(record.Edges, EdgeRecord{
			Target:     e.Target,
			Properties: e.Properties,
		})
	}
	return record
}
