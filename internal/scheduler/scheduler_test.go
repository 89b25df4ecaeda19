package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCleaner struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCleaner) CleanupExpiredSessions(context.Context) (int64, error) {
	f.calls.Add(1)
	return 2, f.err
}

func waitForCalls(t *testing.T, f *fakeCleaner, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least %d cleanup calls, got %d", n, f.calls.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSchedulerPurgesImmediately(t *testing.T) {
	cleaner := &fakeCleaner{}
	s := New(cleaner, time.Hour)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	waitForCalls(t, cleaner, 1)
}

func TestSchedulerSurvivesErrors(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("database is locked")}
	s := New(cleaner, time.Second)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	waitForCalls(t, cleaner, 1)
}

func TestNewDefaultsInterval(t *testing.T) {
	if s := New(&fakeCleaner{}, 0); s.every != time.Hour {
		t.Errorf("every = %v, want 1h", s.every)
	}
}
