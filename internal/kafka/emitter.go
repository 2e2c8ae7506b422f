package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

// Emitter membungkus payload ke Envelope v1 lalu publish dengan key = kode transaksi.
type Emitter struct {
	P        *Producer
	Producer string
	Now      func() time.Time
}

// Emit mengembalikan event_id supaya caller bisa mencatatnya sebagai referensi pesan UI.
func (e *Emitter) Emit(ctx context.Context, topic, eventType, code string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      e.Producer,
		CorrelationID: code,
		Payload:       raw,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	err = e.P.Publish(topic, orders.PartitionKey(code), b,
		kafka.Header{Key: "event_type", Value: []byte(eventType)},
		kafka.Header{Key: "event_id", Value: []byte(env.EventID)},
	)
	if err != nil {
		return "", err
	}
	return env.EventID, nil
}
