package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatRequests counts answered questions.
	// Labels: outcome (answered, no_data, unavailable, error)
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finchat",
			Subsystem: "rag",
			Name:      "chat_requests_total",
			Help:      "Total number of chat questions by outcome",
		},
		[]string{"outcome"},
	)

	// CallDuration tracks provider call latency including retries.
	// Labels: op (embed, generate), result (success, error)
	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "finchat",
			Subsystem: "rag",
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of embedding and generation calls in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"op", "result"},
	)

	// CallRetries counts retried provider calls.
	CallRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finchat",
			Subsystem: "rag",
			Name:      "provider_call_retries_total",
			Help:      "Total number of retried embedding and generation calls",
		},
		[]string{"op"},
	)

	// IndexSyncs counts vector index rebuilds per company.
	// Labels: result (rebuilt, unchanged, error)
	IndexSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finchat",
			Subsystem: "rag",
			Name:      "index_syncs_total",
			Help:      "Total number of retrieval index synchronizations",
		},
		[]string{"result"},
	)
)
