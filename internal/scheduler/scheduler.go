// Package scheduler runs recurring cron jobs and keyed one-shot timers.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron *cron.Cron

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		timers: make(map[string]*time.Timer),
	}
}

// AddRecurring registers a cron job. Must be called before Start.
func (s *Scheduler) AddRecurring(spec string, fn func()) error {
	_, err := s.cron.AddFunc(spec, fn)
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Scheduler started")
}

// Stop cancels every pending one-shot timer and stops the cron loop.
func (s *Scheduler) Stop() {
	s.cron.Stop()

	s.mu.Lock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	slog.Info("Scheduler stopped")
}

// ScheduleOnce arms a one-shot timer under key, replacing any timer already
// armed under the same key. The callback runs on its own goroutine; the key
// is released before fn fires, so fn may re-arm itself.
func (s *Scheduler) ScheduleOnce(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[key]; ok {
		old.Stop()
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// Cancel disarms the timer under key. Returns false when nothing was armed.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, key)
	return true
}

// Pending reports how many one-shot timers are currently armed.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
