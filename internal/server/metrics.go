package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts HTTP requests by method, path, and status.
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fablerag_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"method", "path", "status"})

	// generateDuration tracks end-to-end generation latency per backend.
	generateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fablerag_generate_duration_seconds",
		Help:    "Time spent answering a generate request.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider"})

	// retrievedPassages tracks how many fables each search returns.
	retrievedPassages = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fablerag_retrieved_passages",
		Help:    "Number of fables returned per retrieval.",
		Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
	})
)
