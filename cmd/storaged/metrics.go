package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"deepstore.ai/internal/persistence/indexdb"
	"deepstore.ai/internal/persistence/r2s3"
	"deepstore.ai/internal/transport/observer"
)

// registerSinkMetrics exposes queue health of the journal sinks. idx and
// mirror may be nil when disabled.
func registerSinkMetrics(reg prometheus.Registerer, idx *indexdb.SQLiteIndex, mirror *r2s3.Mirror, obs *observer.Server) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "deepstore_observer_subscribers",
			Help: "Connected ledger stream subscribers.",
		}, func() float64 { return float64(obs.Subscribers()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "deepstore_observer_dropped_total",
			Help: "Ledger messages dropped for slow subscribers.",
		}, func() float64 { return float64(obs.Dropped()) }),
	)

	if idx != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "deepstore_index_queue_depth",
				Help: "Entries waiting for the sqlite index writer.",
			}, func() float64 { return float64(idx.Stats().QueueDepth) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "deepstore_index_dropped_total",
				Help: "Entries the sqlite index dropped on a full queue.",
			}, func() float64 { return float64(idx.Stats().DropEntryTotal) }),
		)
	}

	if mirror != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "deepstore_archive_queue_depth",
				Help: "Ledger files waiting for upload.",
			}, func() float64 { return float64(mirror.Stats().QueueDepth) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "deepstore_archive_uploads_total",
				Help: "Ledger files uploaded.",
			}, func() float64 { return float64(mirror.Stats().Uploaded) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "deepstore_archive_upload_failures_total",
				Help: "Ledger uploads that failed after retries.",
			}, func() float64 { return float64(mirror.Stats().Failed) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "deepstore_archive_dropped_total",
				Help: "Ledger files dropped on a saturated upload queue.",
			}, func() float64 { return float64(mirror.Stats().Dropped) }),
		)
	}
}
