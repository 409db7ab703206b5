// Package scheduler wraps go-co-op/gocron for the engine's two cross-trade
// periodic sweeps: RFQ-lock pruning and channel hygiene.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/satsbridge/swapd/internal/core/ports"
)

type service struct {
	mu        sync.Mutex
	scheduler *gocron.Scheduler
	jobs      map[string]*gocron.Job
}

// NewScheduler returns a ports.SchedulerService backed by gocron, running
// jobs on a UTC clock.
func NewScheduler() ports.SchedulerService {
	return &service{
		scheduler: gocron.NewScheduler(time.UTC),
		jobs:      make(map[string]*gocron.Job),
	}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

func (s *service) Every(name string, interval int, unit ports.TimeUnit, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[name]; ok {
		s.scheduler.Remove(old)
	}

	scheduled := s.scheduler.Every(interval)
	switch unit {
	case ports.Seconds:
		scheduled = scheduled.Seconds()
	case ports.Minutes:
		scheduled = scheduled.Minutes()
	default:
		return fmt.Errorf("scheduler: unknown time unit %d", unit)
	}

	job, err := scheduled.Do(fn)
	if err != nil {
		return fmt.Errorf("scheduler: schedule %q: %w", name, err)
	}
	s.jobs[name] = job
	return nil
}

func (s *service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[name]; ok {
		s.scheduler.Remove(job)
		delete(s.jobs, name)
	}
}
