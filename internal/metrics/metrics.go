package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Webhooks
	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_callbacks_total",
			Help: "Provider callbacks by kind and reconciliation outcome",
		},
		[]string{"kind", "outcome"}, // stk|b2c ; no_match|completed|failed|skipped|invalid|error
	)
	BalanceCreditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_balance_credits_total",
			Help: "Balance increments applied by reconciliation",
		},
		[]string{"reason"}, // deposit|refund
	)

	// Outbound
	STKPushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_stk_push_total",
			Help: "STK push initiations by result",
		},
		[]string{"result"}, // accepted|rejected|invalid|auth_error|upstream_error
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_events_total",
			Help: "Settlement events by publish result",
		},
		[]string{"result"}, // published|failed|dropped
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

// /metrics endpoint handler
var Handler = promhttp.Handler

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestsTotal)
		prometheus.MustRegister(CallbacksTotal)
		prometheus.MustRegister(BalanceCreditsTotal)
		prometheus.MustRegister(STKPushTotal)
		prometheus.MustRegister(EventsPublished)
		prometheus.MustRegister(WorkerQueueDepth)
	})
}
