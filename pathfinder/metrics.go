package pathfinder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waypoint_queries_total",
		Help: "Shortest-path queries by terminal status.",
	}, []string{"status"})

	superstepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waypoint_supersteps_total",
		Help: "Supersteps driven across all queries.",
	})

	messagesRoutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waypoint_messages_routed_total",
		Help: "Combined relaxation messages routed between supersteps.",
	})

	activeVertices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waypoint_active_vertices",
		Help: "Vertices that computed in the last superstep.",
	})

	reachedTargetsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waypoint_reached_targets",
		Help: "Size of the merged reached-target set for the running query.",
	})

	joinedWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waypoint_joined_workers",
		Help: "Workers currently joined to the coord.",
	})
)
