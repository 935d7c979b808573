package main

import (
	"waypoint/pathfinder"
	"waypoint/util"
)

func main() {
	var config pathfinder.CoordConfig
	err := util.ReadJSONConfig("config/coord_config.json", &config)
	util.CheckErr(err, "Error reading coord config: %v\n", err)

	err = util.SynchronizeConfigs()
	util.CheckErr(err, "Error synchronizing configs: %v\n", err)

	coord := pathfinder.NewCoord()
	err = coord.Start(config)
	util.CheckErr(err, "Coord stopped: %v\n", err)
}
