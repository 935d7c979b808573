package database

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const MAXIMUM_ITEMS_PER_BATCH = 25

// CreateTable creates a graph table keyed by vertex id and blocks until it
// is usable.
func CreateTable(ctx context.Context, svc *dynamodb.Client, tableName string) error {
	definition := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("ID"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("ID"),
				KeyType:       types.KeyTypeHash,
			},
		},
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
	}

	if _, err := svc.CreateTable(ctx, definition); err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return err
		}
	}
	return waitForTable(ctx, svc, tableName)
}

func waitForTable(ctx context.Context, db *dynamodb.Client, tn string) error {
	w := dynamodb.NewTableExistsWaiter(db)
	return w.Wait(ctx,
		&dynamodb.DescribeTableInput{
			TableName: aws.String(tn),
		},
		2*time.Minute,
	)
}

// AddGraph parses a weighted edge-list file and batch inserts the vertices.
func AddGraph(svc *dynamodb.Client, filePath string, tableName string, weightProperty string) error {
	vertices, err := ParseInputGraph(filePath, weightProperty)
	if err != nil {
		return err
	}
	return BatchInsertVertices(svc, tableName, CreateBatches(vertices))
}

// ParseInputGraph reads a graph file with one edge per line:
//
//	srcId dstId [weight]
//
// Vertices that only ever appear as destinations still get a record, so
// a query can terminate at them.
func ParseInputGraph(filePath string, weightProperty string) ([]VertexRecord, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	edges := make(map[string][]EdgeRecord)
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: expected 'src dst [weight]', got %q",
				filePath, lineNum, line)
		}

		src, dst := fields[0], fields[1]
		seen[src] = struct{}{}
		seen[dst] = struct{}{}

		edge := EdgeRecord{Target: dst}
		if len(fields) >= 3 && weightProperty != "" {
			weight, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad weight %q: %v",
					filePath, lineNum, fields[2], err)
			}
			edge.Properties = map[string]interface{}{weightProperty: weight}
		}
		edges[src] = append(edges[src], edge)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	vertices := make([]VertexRecord, 0, len(seen))
	for id := range seen {
		vertices = append(vertices, VertexRecord{ID: id, Edges: edges[id]})
	}
	return vertices, nil
}

// CreateBatches splits the vertices into chunks DynamoDB accepts per batch
// write.
func CreateBatches(vertices []VertexRecord) [][]VertexRecord {
	var batches [][]VertexRecord
	for start := 0; start < len(vertices); start += MAXIMUM_ITEMS_PER_BATCH {
		end := start + MAXIMUM_ITEMS_PER_BATCH
		if end > len(vertices) {
			end = len(vertices)
		}
		batches = append(batches, vertices[start:end])
	}
	return batches
}

func BatchInsertVertices(svc *dynamodb.Client, tableName string, batches [][]VertexRecord) error {
	for _, batch := range batches {
		requests := make([]types.WriteRequest, 0, len(batch))
		for _, vertex := range batch {
			item, err := attributevalue.MarshalMap(vertex)
			if err != nil {
				return err
			}
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		_, err := svc.BatchWriteItem(context.TODO(), &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				tableName: requests,
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
