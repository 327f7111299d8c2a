package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtm_signaling_active_connections",
		Help: "Number of connected participants",
	})
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtm_signaling_active_rooms",
		Help: "Number of rooms with at least one member",
	})
)

// Counters
var (
	JoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtm_signaling_joins_total",
		Help: "Total create-or-join requests by outcome",
	}, []string{"outcome"})
	RelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtm_signaling_relayed_messages_total",
		Help: "Total relayed messages by channel",
	}, []string{"channel"})
	TranslationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtm_signaling_translations_total",
		Help: "Total translation requests by outcome",
	}, []string{"outcome"})
)

// Histograms
var (
	TranslationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rtm_signaling_translation_duration_ms",
		Help:    "Translation provider round-trip in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000},
	})
)
