// Package scheduler enqueues the periodic subscription jobs on a cron
// schedule. The work itself runs on the job queue workers.
package scheduler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/ManuelReschke/Marketly/internal/pkg/env"
	"github.com/ManuelReschke/Marketly/internal/pkg/jobqueue"
)

const (
	DefaultSweepSchedule    = "*/15 * * * *"
	DefaultReminderSchedule = "0 9 * * *"
)

// Config holds standard five-field cron expressions (or @every descriptors).
type Config struct {
	SweepSchedule    string
	ReminderSchedule string
}

// ConfigFromEnv reads SWEEP_SCHEDULE and REMINDER_SCHEDULE.
func ConfigFromEnv() Config {
	return Config{
		SweepSchedule:    env.GetEnv("SWEEP_SCHEDULE", DefaultSweepSchedule),
		ReminderSchedule: env.GetEnv("REMINDER_SCHEDULE", DefaultReminderSchedule),
	}
}

type printfLogger struct{}

func (printfLogger) Printf(format string, args ...interface{}) {
	log.Infof("[Scheduler] "+format, args...)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   jobqueue.Enqueuer
	config Config
}

// New creates a scheduler that enqueues onto jobs.
func New(jobs jobqueue.Enqueuer, cfg Config) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(printfLogger{}))))
	return &Scheduler{cron: c, jobs: jobs, config: cfg}
}

// Start registers the jobs and starts the cron scheduler. An empty schedule
// disables that job.
func (s *Scheduler) Start() error {
	if err := s.add("subscription sweep", s.config.SweepSchedule, s.EnqueueSweep); err != nil {
		return err
	}
	if err := s.add("subscription reminder", s.config.ReminderSchedule, s.EnqueueReminder); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) add(name, spec string, fn func()) error {
	if spec == "" {
		log.Infof("[Scheduler] %s disabled", name)
		return nil
	}
	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	log.Infof("[Scheduler] Scheduled %s (%s)", name, spec)
	return nil
}

// Stop stops the cron scheduler. The returned context is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// EnqueueSweep queues one subscription sweep.
func (s *Scheduler) EnqueueSweep() {
	if _, err := s.jobs.EnqueueJob(jobqueue.JobTypeSubscriptionSweep, jobqueue.SweepJobPayload{Trigger: "cron"}.ToMap()); err != nil {
		log.Errorf("[Scheduler] Failed to enqueue sweep: %v", err)
	}
}

// EnqueueReminder queues one reminder run.
func (s *Scheduler) EnqueueReminder() {
	if _, err := s.jobs.EnqueueJob(jobqueue.JobTypeSubscriptionReminder, map[string]interface{}{}); err != nil {
		log.Errorf("[Scheduler] Failed to enqueue reminders: %v", err)
	}
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
