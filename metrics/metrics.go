// Package metrics provides Prometheus metrics for news-engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollsTotal counts feed poll cycles by outcome.
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsengine",
			Name:      "polls_total",
			Help:      "Total number of feed poll cycles",
		},
		[]string{"source", "status"},
	)

	// NoveltyTotal counts novelty events per source.
	NoveltyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsengine",
			Name:      "novelty_total",
			Help:      "Total number of new feed entries observed",
		},
		[]string{"source"},
	)

	// ExtractionsTotal counts extraction jobs by outcome.
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsengine",
			Name:      "extractions_total",
			Help:      "Total number of article extraction jobs",
		},
		[]string{"status"},
	)

	// PublishTotal counts downstream publish attempts by outcome.
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsengine",
			Name:      "publish_total",
			Help:      "Total number of publish operations",
		},
		[]string{"status"},
	)

	// PublishQueueDepth tracks the publisher FIFO depth.
	PublishQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "newsengine",
			Name:      "publish_queue_depth",
			Help:      "Number of messages waiting in the publisher queue",
		},
	)

	// PoolSocketsInUse tracks checked-out sockets per connection pool.
	PoolSocketsInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "newsengine",
			Name:      "pool_sockets_in_use",
			Help:      "Number of IPC sockets currently checked out",
		},
		[]string{"pool"},
	)

	// SinkRowsTotal counts rows appended to the fallback table.
	SinkRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "newsengine",
			Name:      "sink_rows_total",
			Help:      "Total number of rows written to the fallback table sink",
		},
	)
)
