// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// SessionCleaner removes expired admin sessions.
type SessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

// Scheduler manages scheduled tasks for the server.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sessions  SessionCleaner
	every     time.Duration
}

// New creates a scheduler that purges expired sessions every interval.
func New(sessions SessionCleaner, every time.Duration) *Scheduler {
	if every <= 0 {
		every = time.Hour
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		sessions:  sessions,
		every:     every,
	}
}

// Start schedules the jobs and runs them in the background. The first run
// happens immediately.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.every).Do(s.purgeSessions); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) purgeSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		slog.Error("failed to purge expired sessions", "error", err)
		return
	}
	if n > 0 {
		slog.Info("purged expired sessions", "count", n)
	}
}
