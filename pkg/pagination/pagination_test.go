package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	if got := NormalizeLimit(0); got != DefaultLimit {
		t.Fatalf("expected default for zero, got %d", got)
	}
	if got := NormalizeLimit(-5); got != DefaultLimit {
		t.Fatalf("expected default for negative, got %d", got)
	}
	if got := NormalizeLimit(10); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
	if got := NormalizeLimit(500); got != MaxLimit {
		t.Fatalf("expected cap at %d, got %d", MaxLimit, got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{
		CreatedAt: time.Date(2026, 8, 31, 12, 0, 0, 123456000, time.UTC),
		ID:        uuid.New(),
	}
	encoded := EncodeCursor(want)

	got, err := ParseCursor(encoded)
	if err != nil {
		t.Fatalf("ParseCursor failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cursor, got nil")
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.ID != want.ID {
		t.Fatalf("round trip mismatch: %+v != %+v", got, want)
	}
}

func TestParseCursor_EmptyMeansFirstPage(t *testing.T) {
	got, err := ParseCursor("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil cursor for blank input")
	}
}

func TestParseCursor_RejectsGarbage(t *testing.T) {
	if _, err := ParseCursor("not-base64!!"); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := ParseCursor("bm8tc2VwYXJhdG9y"); err == nil {
		t.Fatal("expected format error")
	}
}

func TestTrimPage(t *testing.T) {
	rows := []int{1, 2, 3, 4}
	page, hasMore := TrimPage(rows, 3)
	if !hasMore {
		t.Fatal("expected overflow to report more pages")
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(page))
	}

	page, hasMore = TrimPage(rows[:2], 3)
	if hasMore {
		t.Fatal("expected no more pages")
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
}
