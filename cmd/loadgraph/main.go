package main

import (
	"context"
	"log"
	"os"
	"waypoint/database"
)

// loadgraph parses an edge-list file and mirrors it into one of the graph
// backends, creating the dynamo table when it does not exist yet.
func main() {
	log.SetPrefix("loadgraph: ")

	if len(os.Args) < 3 || len(os.Args) > 5 {
		log.Println("Usage: ./bin/loadgraph <tableName> <path/to/graph.txt> [weightProperty] [dynamoEndpoint]")
		log.Println("Example: ./bin/loadgraph roads graphs/roads.txt distance http://localhost:8000")
		return
	}

	tableName := os.Args[1]
	graphPath := os.Args[2]
	weightProperty := "weight"
	if len(os.Args) > 3 {
		weightProperty = os.Args[3]
	}
	endpoint := ""
	if len(os.Args) > 4 {
		endpoint = os.Args[4]
	}

	svc := database.GetDynamoClient(endpoint)
	if err := database.CreateTable(context.Background(), svc, tableName); err != nil {
		log.Fatalf("could not create table %v: %v\n", tableName, err)
	}

	if err := database.AddGraph(svc, graphPath, tableName, weightProperty); err != nil {
		log.Fatalf("could not load %v into %v: %v\n", graphPath, tableName, err)
	}
	log.Printf("loaded %v into table %v\n", graphPath, tableName)
}
