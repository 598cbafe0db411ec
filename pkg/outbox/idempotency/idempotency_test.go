package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	return f.data[key], nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, exists := f.data[key]; exists {
		return false, nil
	}
	f.data[key] = "1"
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "km:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func TestCheckAndMarkProcessed(t *testing.T) {
	mgr, err := NewManager(newFakeStore(), time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	ctx := context.Background()
	eventID := uuid.New()

	seen, err := mgr.CheckAndMarkProcessed(ctx, "notification-worker", eventID)
	if err != nil {
		t.Fatalf("first check failed: %v", err)
	}
	if seen {
		t.Fatal("first check must report unseen")
	}

	seen, err = mgr.CheckAndMarkProcessed(ctx, "notification-worker", eventID)
	if err != nil {
		t.Fatalf("second check failed: %v", err)
	}
	if !seen {
		t.Fatal("second check must report already processed")
	}
}

func TestCheckAndMarkProcessed_ScopedPerConsumer(t *testing.T) {
	mgr, err := NewManager(newFakeStore(), time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	ctx := context.Background()
	eventID := uuid.New()

	if _, err := mgr.CheckAndMarkProcessed(ctx, "worker-a", eventID); err != nil {
		t.Fatalf("worker-a check failed: %v", err)
	}
	seen, err := mgr.CheckAndMarkProcessed(ctx, "worker-b", eventID)
	if err != nil {
		t.Fatalf("worker-b check failed: %v", err)
	}
	if seen {
		t.Fatal("different consumer must not share processed markers")
	}
}

func TestDeleteAllowsReprocessing(t *testing.T) {
	mgr, err := NewManager(newFakeStore(), time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	ctx := context.Background()
	eventID := uuid.New()

	if _, err := mgr.CheckAndMarkProcessed(ctx, "worker", eventID); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if err := mgr.Delete(ctx, "worker", eventID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	seen, err := mgr.CheckAndMarkProcessed(ctx, "worker", eventID)
	if err != nil {
		t.Fatalf("recheck failed: %v", err)
	}
	if seen {
		t.Fatal("delete must clear the processed marker")
	}
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewManager(newFakeStore(), -time.Second); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}
