package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.KafkaConfig{DomainTopic: "kartmitra-domain-events"})
	if err != nil {
		t.Fatalf("NewEventRegistry failed: %v", err)
	}
	return reg
}

func envelopeRow(t *testing.T, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, data any) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       payload,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   uuid.New(),
		Payload:       envelope,
	}
}

func TestResolve_DecodesTypedPayload(t *testing.T) {
	reg := testRegistry(t)

	row := envelopeRow(t, enums.EventOrderCancelled, enums.AggregateOrder, payloads.OrderCancelledEvent{
		OrderID:     uuid.New(),
		OrderNumber: "ORD20260831XYZ001",
		Reason:      "payment timeout",
	})

	resolved, err := reg.Resolve(row)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Descriptor.Topic != "kartmitra-domain-events" {
		t.Fatalf("unexpected topic %s", resolved.Descriptor.Topic)
	}
	cancelled, ok := resolved.Payload.(*payloads.OrderCancelledEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if cancelled.Reason != "payment timeout" {
		t.Fatalf("unexpected reason %q", cancelled.Reason)
	}
}

func TestResolve_RejectsUnknownEventType(t *testing.T) {
	reg := testRegistry(t)

	row := envelopeRow(t, enums.OutboxEventType("moon_landing"), enums.AggregateOrder, struct{}{})
	_, err := reg.Resolve(row)
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
	var nonRetryable NonRetryableError
	if !errors.As(err, &nonRetryable) {
		t.Fatalf("expected NonRetryableError, got %T", err)
	}
}

func TestResolve_RejectsAggregateMismatch(t *testing.T) {
	reg := testRegistry(t)

	row := envelopeRow(t, enums.EventOrderPlaced, enums.AggregatePayment, payloads.OrderPlacedEvent{})
	_, err := reg.Resolve(row)
	if err == nil {
		t.Fatal("expected error for aggregate mismatch")
	}
}

func TestResolve_RejectsEmptyPayload(t *testing.T) {
	reg := testRegistry(t)

	row := envelopeRow(t, enums.EventStockLow, enums.AggregateInventoryItem, nil)
	_, err := reg.Resolve(row)
	if err == nil {
		t.Fatal("expected error for null payload")
	}
}

func TestNewEventRegistry_RequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.KafkaConfig{}); err == nil {
		t.Fatal("expected error without domain topic")
	}
}
