package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/portal/internal/auth/store"
)

type lastLoginWrite struct {
	profileID string
	at        time.Time
}

// LastLoginRecorder writes profile last-login timestamps on a background
// worker so sign-in never waits on the profile store. Failed writes are
// logged and counted, never retried.
type LastLoginRecorder struct {
	Profiles store.Profiles
	Logger   *slog.Logger
	Metrics  *Metrics
	Timeout  time.Duration // per write

	queue    chan lastLoginWrite
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewLastLoginRecorder creates a recorder holding up to buffer pending
// writes. A buffer below one is raised to one.
func NewLastLoginRecorder(profiles store.Profiles, logger *slog.Logger, metrics *Metrics, buffer int) *LastLoginRecorder {
	if buffer < 1 {
		buffer = 1
	}
	return &LastLoginRecorder{
		Profiles: profiles,
		Logger:   logger,
		Metrics:  metrics,
		Timeout:  5 * time.Second,
		queue:    make(chan lastLoginWrite, buffer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the worker.
func (r *LastLoginRecorder) Start() {
	go r.run()
}

// Stop flushes queued writes and waits for the worker to exit.
func (r *LastLoginRecorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.doneCh
	})
}

// Record queues a write. It reports false when the queue is full or the
// recorder is stopped.
func (r *LastLoginRecorder) Record(profileID string, at time.Time) bool {
	select {
	case <-r.stopCh:
		r.Metrics.lastLogin("dropped")
		return false
	default:
	}

	select {
	case r.queue <- lastLoginWrite{profileID: profileID, at: at}:
		return true
	default:
		r.Metrics.lastLogin("dropped")
		return false
	}
}

func (r *LastLoginRecorder) run() {
	defer close(r.doneCh)

	for {
		select {
		case w := <-r.queue:
			r.write(w)
		case <-r.stopCh:
			for {
				select {
				case w := <-r.queue:
					r.write(w)
				default:
					return
				}
			}
		}
	}
}

func (r *LastLoginRecorder) write(w lastLoginWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	if err := r.Profiles.UpdateLastLogin(ctx, w.profileID, w.at); err != nil {
		r.Metrics.lastLogin("error")
		r.Logger.Warn("failed to update last login",
			slog.String("profile_id", w.profileID),
			slog.Any("error", err),
		)
		return
	}
	r.Metrics.lastLogin("ok")
}
