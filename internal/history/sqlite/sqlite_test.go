package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/loykin/warden/internal/history"
)

func TestSinkRoundTrip(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = s.Close() }()

	ev := history.Event{
		Type:       history.EventProbe,
		OccurredAt: time.Now(),
		Session:    "s-1",
		Name:       "endpoint",
		Outcome:    "healthy",
	}
	if err := s.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var count int
	row := s.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM session_events WHERE session = ? AND outcome = ?`, "s-1", "healthy")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestPrefixStripped(t *testing.T) {
	s, err := New("sqlite://:memory:")
	if err != nil {
		t.Fatalf("New with prefix: %v", err)
	}
	_ = s.Close()
}
