package factory

import (
	"path/filepath"
	"testing"
)

func TestSQLiteSelectedByPrefixAndDefault(t *testing.T) {
	s, err := NewSinkFromDSN("sqlite://:memory:")
	if err != nil {
		t.Fatalf("sqlite prefix: %v", err)
	}
	_ = s.Close()

	path := filepath.Join(t.TempDir(), "events.db")
	s, err = NewSinkFromDSN(path)
	if err != nil {
		t.Fatalf("bare path: %v", err)
	}
	_ = s.Close()
}

func TestEmptyAndUnknownDSNRejected(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatalf("empty DSN must error")
	}
	if _, err := NewSinkFromDSN("mongodb://localhost"); err == nil {
		t.Fatalf("unknown scheme must error")
	}
}
