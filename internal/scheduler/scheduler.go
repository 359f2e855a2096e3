// Package scheduler runs the prefetch and betting passes on cron schedules,
// plus on demand through trigger channels.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one pass. Its error is logged; it never stops the scheduler.
type Job func(ctx context.Context) error

type entry struct {
	name    string
	spec    string
	job     Job
	trigger chan struct{}
}

// Runner owns the cron instance. Jobs never overlap: a run that finds
// another pass in progress is skipped.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex // serializes passes
	entries map[string]*entry
	order   []string
}

// New creates a Runner evaluating schedules in loc (UTC when nil).
func New(loc *time.Location, logger *slog.Logger) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	logger = logger.With(slog.String("component", "scheduler"))
	return &Runner{
		cron:    cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{logger})),
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Add registers job under name with a standard five-field cron spec.
func (r *Runner) Add(name, spec string, job Job) error {
	if _, dup := r.entries[name]; dup {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("scheduler: job %q: invalid spec %q: %w", name, spec, err)
	}
	r.entries[name] = &entry{name: name, spec: spec, job: job, trigger: make(chan struct{}, 1)}
	r.order = append(r.order, name)
	return nil
}

// Trigger returns the channel that requests an immediate run of name, or nil
// when no such job exists.
func (r *Runner) Trigger(name string) chan<- struct{} {
	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	return e.trigger
}

// Run starts the schedules and blocks until ctx is cancelled, then waits for
// a running pass to finish.
func (r *Runner) Run(ctx context.Context) error {
	for _, name := range r.order {
		e := r.entries[name]
		if _, err := r.cron.AddFunc(e.spec, func() { r.run(ctx, e, "cron") }); err != nil {
			return fmt.Errorf("scheduler: add %q: %w", name, err)
		}
	}

	r.cron.Start()
	r.logger.Info("scheduler started", slog.Int("jobs", len(r.order)))

	var wg sync.WaitGroup
	for _, name := range r.order {
		e := r.entries[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-e.trigger:
					r.run(ctx, e, "trigger")
				}
			}
		}()
	}

	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
	wg.Wait()
	r.logger.Info("scheduler stopped")
	return nil
}

// RunNow executes name synchronously, respecting the no-overlap rule.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return r.run(ctx, e, "manual")
}

// ErrBusy is returned by RunNow when another pass is in progress.
var ErrBusy = errors.New("scheduler: another pass is running")

func (r *Runner) run(ctx context.Context, e *entry, source string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log := r.logger.With(slog.String("job", e.name), slog.String("source", source))
	if !r.mu.TryLock() {
		log.Warn("pass skipped, another pass is running")
		return ErrBusy
	}
	defer r.mu.Unlock()

	start := time.Now()
	log.Info("pass starting")
	if err := e.job(ctx); err != nil {
		log.Error("pass failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return err
	}
	log.Info("pass finished", slog.Duration("duration", time.Since(start)))
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
