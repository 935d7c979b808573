package main

import (
	"log"
	"math"
	"os"
	"strconv"
	"waypoint/pathfinder"
	"waypoint/util"
)

const usage = `Usage: ./bin/client <table> <sourceId> <targetId> [weightProperty] [defaultWeight]
Example: ./bin/client roads A F
Example: ./bin/client roads A "F,G,H" distance 1.5
Example: ./bin/client roads A "*" distance`

func main() {
	var config pathfinder.ClientConfig
	err := util.ReadJSONConfig("config/client_config.json", &config)
	util.CheckErr(err, "Error reading client config: %v\n", err)

	log.SetPrefix(config.ClientId + ": ")

	if len(os.Args) < 4 || len(os.Args) > 6 {
		log.Fatalln(usage)
	}

	query := pathfinder.Query{
		ClientId:  config.ClientId,
		TableName: os.Args[1],
		Spec: pathfinder.QuerySpec{
			SourceId: os.Args[2],
			TargetId: os.Args[3],
		},
	}
	if len(os.Args) > 4 {
		query.Spec.WeightProperty = os.Args[4]
	}
	if len(os.Args) > 5 {
		defaultWeight, err := strconv.ParseFloat(os.Args[5], 64)
		if err != nil {
			log.Println("Provided default weight could not be converted to float")
			log.Fatalln(usage)
		}
		query.Spec.DefaultWeight = defaultWeight
	}

	client := pathfinder.NewClient()
	notifyCh, err := client.Start(config.ClientId, config.CoordAddr, config.ClientAddr)
	util.CheckErr(err, "Error connecting to coord: %v\n", err)
	defer client.Stop()

	err = client.SendQuery(query)
	util.CheckErr(err, "Error sending query: %v\n", err)
	log.Printf("sent query: source=%v target=%v table=%v\n",
		query.Spec.SourceId, query.Spec.TargetId, query.TableName)

	result := <-notifyCh
	if result.Error != "" {
		log.Fatalf("query failed: %v\n", result.Error)
	}

	log.Printf("query converged after %v supersteps\n", result.Supersteps)
	for vertexId, path := range result.Paths {
		if !path.Reachable {
			log.Printf("%v: unreachable (weight %v)\n", vertexId, math.Inf(1))
			continue
		}
		log.Printf("%v: weight=%v path=%v\n", vertexId, path.TotalWeight, path.Path)
	}
}
