package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/webhook-cronjob/internal/model"
)

var parser = cron.NewParser(standardFields)

// CronScheduler runs jobs on cron schedules. Every tick runs in its own
// goroutine; a tick that fires while the previous one is still running is
// not skipped.
type CronScheduler struct {
	logger   *zap.Logger
	cron     *cron.Cron
	entryIDs sync.Map
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewCronScheduler creates a new scheduler
func NewCronScheduler(logger *zap.Logger) *CronScheduler {
	logger = logger.Named("scheduler")
	cronLogger := &cronLogger{logger: logger.Named("cron").Sugar()}

	return &CronScheduler{
		logger: logger,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
	}
}

// Parse validates a schedule and returns it bound to its timezone. An empty
// timezone means UTC.
func Parse(cfg model.ScheduleConfig) (cron.Schedule, error) {
	expression := strings.TrimSpace(cfg.Expression)
	if expression == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	if strings.HasPrefix(expression, timezonePrefix) || strings.HasPrefix(expression, "TZ=") {
		return nil, fmt.Errorf("%w: %q carries a timezone prefix, set the schedule timezone instead", ErrInvalidExpression, expression)
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidTimezone, cfg.Timezone, err)
	}

	schedule, err := parser.Parse(timezonePrefix + location.String() + " " + expression)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidExpression, expression, err)
	}

	return schedule, nil
}

// AddSchedule validates the schedule and registers fn under name. Nothing is
// registered when validation fails. Registering an existing name replaces it.
func (s *CronScheduler) AddSchedule(name string, cfg model.ScheduleConfig, fn func()) error {
	schedule, err := Parse(cfg)
	if err != nil {
		return err
	}

	if _, ok := s.entryIDs.Load(name); ok {
		if err := s.RemoveSchedule(name); err != nil {
			return err
		}
	}

	entryID := s.cron.Schedule(schedule, &cronJob{
		scheduler: s,
		name:      name,
		schedule:  schedule,
		fn:        fn,
	})
	s.entryIDs.Store(name, entryID)

	s.logger.Info("Added schedule",
		zap.String("name", name),
		zap.String("expression", cfg.Expression),
		zap.String("timezone", cfg.Timezone),
		zap.Time("next_run", schedule.Next(time.Now())))

	return nil
}

// RemoveSchedule removes a schedule
func (s *CronScheduler) RemoveSchedule(name string) error {
	entryIDVal, ok := s.entryIDs.LoadAndDelete(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, name)
	}

	s.cron.Remove(entryIDVal.(cron.EntryID))

	s.logger.Info("Removed schedule", zap.String("name", name))
	return nil
}

// NextRun returns the next fire time of a schedule
func (s *CronScheduler) NextRun(name string) (time.Time, error) {
	entryIDVal, ok := s.entryIDs.Load(name)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrScheduleNotFound, name)
	}

	entry := s.cron.Entry(entryIDVal.(cron.EntryID))
	if !entry.Valid() {
		return time.Time{}, fmt.Errorf("%w: %s", ErrScheduleNotFound, name)
	}
	if entry.Next.IsZero() {
		// Not started yet
		return entry.Schedule.Next(time.Now()), nil
	}
	return entry.Next, nil
}

// Start starts the scheduler
func (s *CronScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop stops the scheduler from firing. Jobs already running are not
// awaited; the returned context is done once they have finished.
func (s *CronScheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.logger.Info("Scheduler stopped")
	return ctx
}

// cronJob implements cron.Job
type cronJob struct {
	scheduler *CronScheduler
	name      string
	schedule  cron.Schedule
	fn        func()
}

// Run implements cron.Job
func (j *cronJob) Run() {
	now := time.Now()

	j.scheduler.logger.Info("Executing schedule",
		zap.String("name", j.name),
		zap.Time("executed_at", now),
		zap.Time("next_run", j.schedule.Next(now)))

	j.fn()
}
