// Package metrics exposes delivery counters on the default Prometheus
// registry; cmd/server serves them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Per-device send outcomes across all campaigns
	DevicesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_deliveries_total",
		Help: "Total number of successful per-device push deliveries",
	})

	DevicesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_delivery_failures_total",
		Help: "Total number of failed per-device push deliveries",
	})

	// Campaign completions partitioned by terminal status
	CampaignsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campaigns_completed_total",
		Help: "Total number of campaigns that reached a terminal status",
	}, []string{"status"})

	// Scheduler task retries and abandonments
	TaskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_task_retries_total",
		Help: "Total number of delivery task retry attempts",
	})

	TasksAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_tasks_abandoned_total",
		Help: "Total number of delivery tasks abandoned after retry exhaustion",
	})
)
