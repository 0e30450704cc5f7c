package storage

import (
	"testing"
	"time"
)

func TestMemoryStorageSetAfterCloseStartsNoTimer(t *testing.T) {
	now := time.Now()
	s := NewMemory(WithClock(func() time.Time { return now }))

	s.Set("before", "v", time.Hour)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if len(s.timers) != 0 {
		t.Fatalf("timers after Close = %d, want 0", len(s.timers))
	}

	if err := s.Set("after", "v", time.Hour); err != nil {
		t.Fatalf("Set() after Close error = %v", err)
	}
	if len(s.timers) != 0 {
		t.Errorf("Set() after Close started %d timers, want 0", len(s.timers))
	}

	// expiry still applies on read
	now = now.Add(2 * time.Hour)
	if _, exists, _ := s.Get("after"); exists {
		t.Error("expired key still readable after Close")
	}
}
