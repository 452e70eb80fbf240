// Package refresh runs the background jobs that keep local storage current:
// periodic chain-snapshot capture and implied-volatility sampling across the
// configured watchlist.
package refresh

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a named unit of scheduled work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Logger
}

// NewScheduler creates a scheduler using standard 5-field cron expressions.
func NewScheduler(logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Refresh scheduler started")
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Refresh scheduler stopped")
}

// AddJob registers a job with a cron schedule.
// Schedule examples:
//   - "*/15 9-16 * * 1-5"  - Every 15 minutes during market hours, weekdays
//   - "5 17 * * 1-5"       - 17:05 weekdays
//   - "@hourly"            - Every hour
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.logger.WithField("job", job.Name()).Debug("Running job")
		if err := job.Run(); err != nil {
			s.logger.WithError(err).WithField("job", job.Name()).Error("Job failed")
			return
		}
		s.logger.WithField("job", job.Name()).Debug("Job completed")
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"job":      job.Name(),
		"schedule": schedule,
	}).Info("Job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.logger.WithField("job", job.Name()).Info("Running job immediately")
	return job.Run()
}
