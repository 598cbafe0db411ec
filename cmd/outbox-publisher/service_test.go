package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/pkg/broker"
	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox/payloads"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox/registry"
)

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	events := f.events
	f.events = nil
	return events, nil
}

func (f *fakeRepo) MarkPublished(id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminal(id uuid.UUID, err error, maxAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakePublisher struct {
	errs     []error
	messages []broker.Message
}

func (f *fakePublisher) Publish(ctx context.Context, msg broker.Message) error {
	f.messages = append(f.messages, msg)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func newTestService(t *testing.T, repo outboxRepository, pub messagePublisher) *Service {
	t.Helper()
	eventRegistry, err := registry.NewEventRegistry(config.KafkaConfig{DomainTopic: "kartmitra.domain-events"})
	if err != nil {
		t.Fatalf("registry.NewEventRegistry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Config: &config.Config{
			Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 5, MaxAttempts: 3},
		},
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		Registry:   eventRegistry,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

func reservationEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payloads.ReservationReleasedEvent{
		OrderID:    uuid.New(),
		ReleasedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventReservationReleased,
		AggregateType: enums.AggregateReservation,
		AggregateID:   uuid.New(),
		Payload:       envelope,
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  attempts,
	}
}

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	first := reservationEvent(t, 0)
	second := reservationEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{errs: []error{errors.New("transient")}}
	service := newTestService(t, repo, pub)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("expected first event marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("expected second event marked published, got %v", repo.published)
	}
}

func TestProcessBatchSetsOrderingKeyAndHeaders(t *testing.T) {
	event := reservationEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Topic != "kartmitra.domain-events" {
		t.Fatalf("unexpected topic %q", msg.Topic)
	}
	if msg.Key != event.AggregateID.String() {
		t.Fatalf("expected key %s, got %s", event.AggregateID, msg.Key)
	}
	if msg.Headers["event_type"] != string(enums.EventReservationReleased) {
		t.Fatalf("unexpected event_type header %q", msg.Headers["event_type"])
	}
	if msg.Headers["aggregate_id"] != event.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id header %q", msg.Headers["aggregate_id"])
	}
	if msg.Headers["event_id"] == "" {
		t.Fatal("expected event_id header")
	}
}

func TestProcessBatchParksUnresolvableEvents(t *testing.T) {
	event := reservationEvent(t, 0)
	event.EventType = "inventory.snapshot_taken"
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected no publish attempts, got %d", len(pub.messages))
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected event parked terminally, got %v", repo.terminal)
	}
}

func TestProcessBatchParksAfterMaxAttempts(t *testing.T) {
	// Attempt count is one shy of the configured maximum of 3.
	event := reservationEvent(t, 2)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{errs: []error{errors.New("broker down")}}
	service := newTestService(t, repo, pub)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("expected no retryable failure, got %v", repo.failed)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected event parked terminally, got %v", repo.terminal)
	}
}

func TestProcessBatchReportsIdle(t *testing.T) {
	repo := &fakeRepo{}
	service := newTestService(t, repo, &fakePublisher{})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatal("expected idle batch")
	}
}
