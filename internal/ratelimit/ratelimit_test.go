package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestBurstThenLimit(t *testing.T) {
	now := time.Now()
	l := New(Config{RequestsPerMinute: 60, BurstSize: 3}).WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if err := l.Allow(100); err != nil {
			t.Fatalf("request %d should pass: %v", i, err)
		}
	}
	if err := l.Allow(100); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("fourth request should be limited, got %v", err)
	}
}

func TestRefillOverTime(t *testing.T) {
	now := time.Now()
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1}).WithClock(func() time.Time { return now })

	if err := l.Allow(1); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow(1); !errors.Is(err, ErrRateLimited) {
		t.Fatal("bucket should be empty")
	}

	now = now.Add(1100 * time.Millisecond)
	if err := l.Allow(1); err != nil {
		t.Fatalf("token should have refilled: %v", err)
	}
}

func TestChatsAreIndependent(t *testing.T) {
	now := time.Now()
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1}).WithClock(func() time.Time { return now })

	if err := l.Allow(1); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow(2); err != nil {
		t.Fatalf("chat 2 must not be affected by chat 1: %v", err)
	}
}

func TestUnlimitedWhenZero(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow(5); err != nil {
			t.Fatalf("unlimited mode must always allow: %v", err)
		}
	}
}
