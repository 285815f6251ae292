package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Adapter metrics.
var (
	RepliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_replies_total",
		Help: "Replies returned to users by outcome",
	}, []string{"outcome"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatrelay_llm_request_duration_seconds",
		Help:    "Completion call duration in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider"})

	MemoryEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_memory_evictions_total",
		Help: "Conversation turns dropped by FIFO eviction",
	})

	TrackedUsers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chatrelay_tracked_users",
		Help: "Users with in-memory state, by store",
	}, []string{"store"})

	IdleUsersSwept = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_idle_users_swept_total",
		Help: "Users dropped for inactivity, by store",
	}, []string{"store"})
)

// Bot metrics.
var (
	JobsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_jobs_dropped_total",
		Help: "Inbound messages answered with a busy notice because the queue was full",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatrelay_queue_depth",
		Help: "Inbound messages waiting for a worker",
	})
)
