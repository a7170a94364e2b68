package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/baharkarakas/mpesa-backend/internal/metrics"
	"github.com/baharkarakas/mpesa-backend/internal/models"
	"github.com/baharkarakas/mpesa-backend/internal/worker"
)

// Dispatcher hands events to the worker pool so publishing never holds up a
// webhook response. Events are best effort: a full queue drops them.
type Dispatcher struct {
	pub     Publisher
	pool    *worker.Pool
	timeout time.Duration
}

func NewDispatcher(pub Publisher, pool *worker.Pool) *Dispatcher {
	return &Dispatcher{pub: pub, pool: pool, timeout: 5 * time.Second}
}

func (d *Dispatcher) Dispatch(ev models.SettlementEvent) {
	ok := d.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.pub.Publish(ctx, ev); err != nil {
			metrics.EventsPublished.WithLabelValues("failed").Inc()
			slog.Error("publish settlement", "txn_id", ev.TransactionID, "err", err)
			return
		}
		metrics.EventsPublished.WithLabelValues("published").Inc()
	})
	if !ok {
		metrics.EventsPublished.WithLabelValues("dropped").Inc()
		slog.Warn("settlement event dropped", "txn_id", ev.TransactionID)
	}
}
