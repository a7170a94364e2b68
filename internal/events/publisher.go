// Package events publishes committed settlements to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/baharkarakas/mpesa-backend/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, ev models.SettlementEvent) error
	Close() error
}

// KafkaPublisher writes one message per settlement, keyed by transaction id
// so all events of a transaction land on the same partition.
type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	addrs := strings.Split(brokers, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.SettlementEvent) error {
	msg, err := Message(ev)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// Message encodes ev as a kafka message.
func Message(ev models.SettlementEvent) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode settlement event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.TransactionID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("transaction." + string(ev.Status))},
		},
		Time: ev.SettledAt,
	}, nil
}

// LogPublisher is used when no broker is configured.
type LogPublisher struct{ Log *slog.Logger }

func (p LogPublisher) Publish(_ context.Context, ev models.SettlementEvent) error {
	p.Log.Info("settlement", "txn_id", ev.TransactionID, "status", ev.Status, "balance_delta", ev.BalanceDelta.String())
	return nil
}

func (LogPublisher) Close() error { return nil }
