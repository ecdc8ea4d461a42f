package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_SleepAdvances(t *testing.T) {
	f := NewFake(baseTime)
	if err := f.Sleep(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	f.Advance(time.Second)
	if got := f.Now().Sub(baseTime); got != 4*time.Second {
		t.Errorf("elapsed = %v, want 4s", got)
	}
	if s := f.Sleeps(); len(s) != 1 || s[0] != 3*time.Second {
		t.Errorf("Sleeps = %v, want [3s]", s)
	}
}

func TestFake_SleepCancelled(t *testing.T) {
	f := NewFake(baseTime)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Sleep(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep err = %v, want context.Canceled", err)
	}
	if !f.Now().Equal(baseTime) {
		t.Error("cancelled sleep should not advance the clock")
	}
}

func TestReal_SleepInterrupted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Real{}.Sleep(ctx, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Sleep err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Sleep did not return promptly on cancellation")
	}
}
