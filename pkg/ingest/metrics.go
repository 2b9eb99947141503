package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsTotal counts ingested documents.
	// Labels: status (success, failed, error)
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finchat",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Total number of uploaded documents by status",
		},
		[]string{"status"},
	)

	FactsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "finchat",
			Subsystem: "ingest",
			Name:      "facts_written_total",
			Help:      "Total number of facts inserted or overwritten by uploads",
		},
	)
)
