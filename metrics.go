package gridpath

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const tracerName = "github.com/pdrpinto/gridpath"

const (
	resultFound    = "found"
	resultNotFound = "not_found"
	resultError    = "error"
)

var (
	// pathRequestsTotal counts completed path requests by outcome
	pathRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridpath_path_requests_total",
		Help: "Completed path requests by result",
	}, []string{"result"})

	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridpath_search_duration_seconds",
		Help:    "A* search duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14), // 50µs to ~400ms
	})

	searchExpandedNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridpath_search_expanded_nodes",
		Help:    "Nodes expanded per search",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	searchesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridpath_searches_in_flight",
		Help: "Searches currently holding a worker slot",
	})

	gridRegenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridpath_grid_regenerations_total",
		Help: "Grid regenerations by result",
	}, []string{"result"})

	// gridNodes reports the published grid's cell counts
	gridNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridpath_grid_nodes",
		Help: "Cells in the published grid by walkability",
	}, []string{"walkable"})
)

func observeGrid(grid *Grid) {
	gridNodes.WithLabelValues("true").Set(float64(grid.WalkableCount()))
	gridNodes.WithLabelValues("false").Set(float64(grid.MaxSize() - grid.WalkableCount()))
}
