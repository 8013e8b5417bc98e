// Package sched runs the periodic GC heartbeat spec.md §9 calls for: a
// background sweep that gives try_gc a chance to run even during a quiet
// period with no foreground writes. Grounded on the teacher's
// cron-based Scheduler (internal/storage/scheduler.go), trimmed down from
// a general job catalog to the one job this FTL needs.
package sched

import (
	"context"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// GCFunc is the background collection entry point, normally FTL.tryGC
// wrapped with a fixed telemetry tag by the caller.
type GCFunc func(ctx context.Context) error

// Scheduler drives GCFunc on a cron schedule until Stop is called.
type Scheduler struct {
	cron *cron.Cron
	gc   GCFunc

	mu      sync.Mutex
	running bool
}

// New builds a Scheduler. spec like "@every 1s" or a standard 5-field cron
// expression is accepted, matching robfig/cron's own parser.
func New(gc GCFunc) *Scheduler {
	return &Scheduler{cron: cron.New(), gc: gc}
}

// Start registers the heartbeat at the given cron spec and begins running
// it. Returns an error if spec doesn't parse.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.runOnce)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight heartbeat to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runOnce() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return // previous heartbeat still in flight; skip this tick
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.gc(context.Background()); err != nil {
		log.Printf("sched: background GC heartbeat failed: %v", err)
	}
}
