package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// Job is one run of a batch task.
type Job func(ctx context.Context) error

// Scheduler reruns batch jobs on a fixed interval. Runs of the same job
// never overlap.
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	log       logrus.FieldLogger
}

// New creates a Scheduler whose job contexts derive from ctx.
func New(ctx context.Context, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		ctx:       ctx,
		log:       log,
	}
}

// Every registers job to run now and then every interval. timeout bounds a
// single run; zero means no limit.
func (s *Scheduler) Every(name string, interval, timeout time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: interval for %s must be positive", name)
	}
	log := s.log.WithField("job", name)

	_, err := s.scheduler.Every(interval).SingletonMode().Do(func() {
		ctx, cancel := s.ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(s.ctx, timeout)
		}
		defer cancel()

		started := time.Now()
		log.Info("scheduler: running job")
		if err := job(ctx); err != nil {
			log.WithError(err).Error("scheduler: job failed")
			return
		}
		log.WithField("took", time.Since(started).String()).Info("scheduler: job completed")
	})
	return err
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Run schedules job and blocks until ctx is done.
func Run(ctx context.Context, log logrus.FieldLogger, name string, interval, timeout time.Duration, job Job) error {
	s := New(ctx, log)
	if err := s.Every(name, interval, timeout, job); err != nil {
		return err
	}
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}
