package services

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic jobs. A job still running when its next tick
// comes is skipped for that tick.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler(loc *time.Location) *Scheduler {
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Schedule registers job under a standard cron expression or a descriptor such
// as "@hourly" or "@every 30s".
func (s *Scheduler) Schedule(expr string, job func()) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(expr, job)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return id, nil
}

// ScheduleInterval registers a job every interval, rounded to seconds.
func (s *Scheduler) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.Schedule(fmt.Sprintf("@every %ds", seconds), job)
}

// Next reports when entry id runs next. It is zero before Start.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
