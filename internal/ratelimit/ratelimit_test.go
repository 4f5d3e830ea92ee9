package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestReserveRespectsBurst(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(2, 3)
	l.now = func() time.Time { return now }
	l.lastUpdate = now

	for i := 0; i < 3; i++ {
		if ok, _ := l.reserve(); !ok {
			t.Fatalf("token %d should be available from the burst", i)
		}
	}
	ok, wait := l.reserve()
	if ok {
		t.Fatal("bucket should be empty")
	}
	if wait != 500*time.Millisecond {
		t.Errorf("wait = %v, want 500ms at 2 rps", wait)
	}

	now = now.Add(500 * time.Millisecond)
	if ok, _ := l.reserve(); !ok {
		t.Error("one token should refill after 500ms at 2 rps")
	}
	if ok, _ := l.reserve(); ok {
		t.Error("only one token should have refilled")
	}

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		if ok, _ := l.reserve(); !ok {
			t.Fatalf("refill should cap at burst, token %d missing", i)
		}
	}
	if ok, _ := l.reserve(); ok {
		t.Error("refill should not exceed burst")
	}
}

func TestNewClampsInvalidSettings(t *testing.T) {
	l := New(0, 0)
	if l.rate != 1 || l.burst != 1 {
		t.Errorf("rate/burst = %v/%v, want 1/1", l.rate, l.burst)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(0.01, 1)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait should not block: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() = %v, want deadline exceeded", err)
	}
}
