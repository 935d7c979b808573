package database

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"waypoint/util"
)

const DEFAULT_REGION = "us-east-2"

// EdgeRecord is one stored outgoing edge. Properties carries arbitrary
// edge attributes; the weight property a query names is looked up here.
type EdgeRecord struct {
	Target     string
	Properties map[string]interface{}
}

// VertexRecord is the storage form of a vertex and its outgoing edges.
type VertexRecord struct {
	ID    string
	Edges []EdgeRecord
}

// Source reads one worker's slice of a stored graph. Ownership is by id
// hash modulo the worker count, so every backend returns the same
// partitioning for the same cluster size.
type Source interface {
	Partition(table string, workerId uint32, numWorkers uint8) ([]VertexRecord, error)
	GetVertexById(table string, vertexId string) (VertexRecord, error)
}

// OpenSource builds a graph source for the configured backend. addr is the
// backend connection string: a DynamoDB endpoint override ("" for the real
// service), a MongoDB URI, or a SQL Server connection string.
func OpenSource(backend string, addr string) (Source, error) {
	switch strings.ToLower(backend) {
	case "dynamodb", "":
		return NewDynamoSource(addr), nil
	case "mongodb":
		return NewMongoSource(addr)
	case "sqlserver":
		return NewSQLSource(addr)
	default:
		return nil, fmt.Errorf("unknown graph backend: %s", backend)
	}
}

type DynamoSource struct {
	svc *dynamodb.Client
}

// NewDynamoSource connects to DynamoDB. A non-empty endpoint points the
// client at a local instance with static credentials, which is how the
// integration environment runs.
func NewDynamoSource(endpoint string) *DynamoSource {
	return &DynamoSource{svc: GetDynamoClient(endpoint)}
}

func GetDynamoClient(endpoint string) *dynamodb.Client {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(DEFAULT_REGION),
	}
	if endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		log.Fatalf("unable to load SDK config %v", err)
	}

	if endpoint != "" {
		return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.EndpointResolver = dynamodb.EndpointResolverFromURL(endpoint)
		})
	}
	return dynamodb.NewFromConfig(cfg)
}

func (s *DynamoSource) GetVertexById(table string, vertexId string) (VertexRecord, error) {
	res, err := s.svc.GetItem(context.TODO(), &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: vertexId},
		},
	})
	if err != nil {
		return VertexRecord{}, err
	}
	if res.Item == nil {
		return VertexRecord{}, fmt.Errorf("vertex %s: unknown ID", vertexId)
	}

	vertex := VertexRecord{}
	if err := attributevalue.UnmarshalMap(res.Item, &vertex); err != nil {
		return VertexRecord{}, err
	}
	return vertex, nil
}

// Partition scans the table and keeps the vertices hashed to this worker.
func (s *DynamoSource) Partition(table string, workerId uint32, numWorkers uint8) ([]VertexRecord, error) {
	p := dynamodb.NewScanPaginator(s.svc, &dynamodb.ScanInput{
		TableName: aws.String(table),
	})

	var vertices []VertexRecord
	for p.HasMorePages() {
		page, err := p.NextPage(context.TODO())
		if err != nil {
			return nil, err
		}

		var pageVertices []VertexRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageVertices); err != nil {
			return nil, err
		}
		for _, v := range pageVertices {
			if util.AssignedWorker(v.ID, numWorkers) == workerId {
				vertices = append(vertices, v)
			}
		}
	}
	return vertices, nil
}
