package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pruner deletes lifecycle events older than a cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventRetentionJob periodically removes old session events.
type EventRetentionJob struct {
	pruner    Pruner
	logger    *logrus.Logger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewEventRetentionJob creates a job that keeps retention worth of events.
// A zero interval defaults to one hour.
func NewEventRetentionJob(p Pruner, logger *logrus.Logger, retention, interval time.Duration) *EventRetentionJob {
	if interval == 0 {
		interval = 1 * time.Hour
	}
	return &EventRetentionJob{
		pruner:    p,
		logger:    logger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background job.
func (j *EventRetentionJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.WithFields(logrus.Fields{
		"interval":  j.interval,
		"retention": j.retention,
	}).Info("EventRetentionJob: started")
}

// Stop gracefully stops the background job.
func (j *EventRetentionJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Info("EventRetentionJob: stopped")
}

func (j *EventRetentionJob) run() {
	defer j.wg.Done()

	// Run immediately on start
	j.prune()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.prune()
		case <-j.stopCh:
			return
		}
	}
}

func (j *EventRetentionJob) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := j.now().Add(-j.retention)
	n, err := j.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		j.logger.WithError(err).Warn("EventRetentionJob: prune failed")
		return
	}
	if n > 0 {
		j.logger.WithFields(logrus.Fields{
			"deleted": n,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("EventRetentionJob: pruned session events")
	}
}
