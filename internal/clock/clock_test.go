package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFake_SleepAdvancesAndRecords(t *testing.T) {
	f := NewFake()
	start := f.Now()

	if err := f.Sleep(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	if err := f.Sleep(context.Background(), 2*time.Second); err != nil {
		t.Fatal(err)
	}

	if got := f.Now().Sub(start); got != 3*time.Second {
		t.Errorf("virtual time advanced by %v, want 3s", got)
	}
	slept := f.Slept()
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Errorf("recorded sleeps %v", slept)
	}
}

func TestFake_SleepCancelledContext(t *testing.T) {
	f := NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.Sleep(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(f.Slept()) != 0 {
		t.Error("cancelled sleep must not be recorded")
	}
}

func TestSystem_SleepCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := (System{}).Sleep(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
