package queue

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/cronexpr"
)

// Schedule is one registered recurring job.
type Schedule struct {
	Name    string
	Expr    string
	Queue   string
	Message Message

	expr    *cronexpr.Expression
	lastRun time.Time // minute of the last enqueue, zero if never
}

// Scheduler evaluates cron expressions once per minute and enqueues the due
// jobs through a driver. Each schedule fires at most once per minute even if
// ticks arrive late or doubled.
type Scheduler struct {
	driver Driver

	mu        sync.Mutex
	schedules map[string]*Schedule
}

// NewScheduler creates a scheduler over the given driver.
func NewScheduler(driver Driver) *Scheduler {
	return &Scheduler{
		driver:    driver,
		schedules: make(map[string]*Schedule),
	}
}

// Add registers a schedule. The expression accepts the 5-field cron syntax
// with ranges, steps and lists, plus @hourly/@daily/@weekly/@monthly/@yearly.
// Re-adding a name replaces the previous schedule.
func (s *Scheduler) Add(name, expr, queue string, msg Message) error {
	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	if queue == "" {
		queue = DefaultQueue
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[name] = &Schedule{
		Name:    name,
		Expr:    expr,
		Queue:   queue,
		Message: msg,
		expr:    parsed,
	}
	return nil
}

// Remove unregisters a schedule. Unknown names are a no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, name)
}

// Names lists registered schedule names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.schedules))
	for name := range s.schedules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run ticks every minute until the context is cancelled. The first tick is
// aligned to the next minute boundary.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("scheduler: running %d schedule(s)", len(s.Names()))

	for {
		now := time.Now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case tick := <-timer.C:
			s.Tick(ctx, tick)
		}
	}
}

// Tick enqueues every schedule due at the given instant's minute. Exported
// so callers can drive evaluation with a synthetic clock.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	minute := now.Truncate(time.Minute)

	s.mu.Lock()
	due := make([]*Schedule, 0)
	for _, sched := range s.schedules {
		if sched.lastRun.Equal(minute) {
			continue
		}
		// Due when the expression's next firing from just before this
		// minute lands exactly on it.
		if sched.expr.Next(minute.Add(-time.Second)).Equal(minute) {
			sched.lastRun = minute
			due = append(due, sched)
		}
	}
	s.mu.Unlock()

	for _, sched := range due {
		uuid, err := s.driver.Push(ctx, sched.Queue, sched.Message)
		if err != nil {
			log.Printf("scheduler: enqueue %q failed: %v", sched.Name, err)
			continue
		}
		log.Printf("scheduler: enqueued %q as %s on %q", sched.Name, uuid, sched.Queue)
	}
}
