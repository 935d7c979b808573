package main

import (
	"fmt"
	"os"
	"waypoint/pathfinder"
	"waypoint/util"
)

func main() {
	configPath := "config/worker1_config.json"
	if len(os.Args) > 1 {
		configPath = fmt.Sprintf("config/worker%v_config.json", os.Args[1])
	}

	var config pathfinder.WorkerConfig
	err := util.ReadJSONConfig(configPath, &config)
	util.CheckErr(err, "Error reading worker config %v: %v\n", configPath, err)

	worker := pathfinder.NewWorker(config)
	err = worker.Start()
	util.CheckErr(err, "Worker %v stopped: %v\n", config.WorkerId, err)
}
