package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 15 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2026, 10, 17, 9, 7, 30, 0, time.UTC)
	if got, want := s.NextTick(now), time.Date(2026, 10, 17, 9, 15, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("next tick = %v, want %v", got, want)
	}

	boundary := time.Date(2026, 10, 17, 9, 15, 0, 0, time.UTC)
	if got, want := s.NextTick(boundary), time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("tick on boundary should advance, got %v want %v", got, want)
	}
	if got := s.SlotStart(now); !got.Equal(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("slot start = %v", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())
	now := time.Date(2026, 10, 17, 9, 7, 30, 0, time.UTC)

	if got := s.NextTick(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("next tick = %v", got)
	}
	if got := s.SlotStart(now); !got.Equal(now) {
		t.Fatalf("slot start = %v", got)
	}
}

func TestRunOnStartAndCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, slot time.Time) error {
			calls.Add(1)
			cancel()
			return errors.New("logged, not fatal")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one immediate evaluation, got %d", calls.Load())
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
