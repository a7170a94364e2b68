package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/mpesa-backend/internal/models"
	"github.com/baharkarakas/mpesa-backend/internal/worker"
)

type recordingPublisher struct {
	mu  sync.Mutex
	got []models.SettlementEvent
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.SettlementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func sampleEvent() models.SettlementEvent {
	return models.SettlementEvent{
		TransactionID: "t1",
		UserID:        "u1",
		Type:          models.TxnDeposit,
		Status:        models.TxnCompleted,
		Amount:        decimal.NewFromInt(500),
		BalanceDelta:  decimal.NewFromInt(500),
		CorrelationID: "abc",
		SettledAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDispatcherPublishesOnPool(t *testing.T) {
	pub := &recordingPublisher{}
	pool := worker.NewPool(1, 4)
	d := NewDispatcher(pub, pool)

	d.Dispatch(sampleEvent())
	pool.Stop()

	require.Len(t, pub.got, 1)
	assert.Equal(t, "t1", pub.got[0].TransactionID)
}

func TestDispatcherSurvivesPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	pool := worker.NewPool(1, 4)
	d := NewDispatcher(pub, pool)

	assert.NotPanics(t, func() { d.Dispatch(sampleEvent()) })
	pool.Stop()
	assert.Len(t, pub.got, 1)
}

func TestDispatcherDropsAfterStop(t *testing.T) {
	pub := &recordingPublisher{}
	pool := worker.NewPool(1, 4)
	pool.Stop()

	NewDispatcher(pub, pool).Dispatch(sampleEvent())
	assert.Empty(t, pub.got)
}

func TestMessage(t *testing.T) {
	msg, err := Message(sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, []byte("t1"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "transaction.completed", string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "500", decoded["amount"])
	assert.Equal(t, "abc", decoded["correlation_id"])
}
