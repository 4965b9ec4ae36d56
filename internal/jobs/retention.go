package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dkurian/surtitle/internal/store"
)

// RetentionJob deletes caption records older than the retention window.
// Runs on a configurable interval (default: 1 hour). Audio is never
// persisted, so this is the only stored data with a lifetime to manage.
type RetentionJob struct {
	store     *store.Store
	logger    *log.Logger
	retention time.Duration
	interval  time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewRetentionJob creates a new retention job. A zero retention disables
// deletion entirely; the job still starts but does nothing.
func NewRetentionJob(s *store.Store, logger *log.Logger, retention, interval time.Duration) *RetentionJob {
	if interval == 0 {
		interval = 1 * time.Hour
	}
	return &RetentionJob{
		store:     s,
		logger:    logger,
		retention: retention,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background job.
func (j *RetentionJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Printf("RetentionJob: started (retention=%v interval=%v)", j.retention, j.interval)
}

// Stop gracefully stops the background job.
func (j *RetentionJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Println("RetentionJob: stopped")
}

func (j *RetentionJob) run() {
	defer j.wg.Done()

	// Run immediately on start
	j.sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopCh:
			return
		}
	}
}

func (j *RetentionJob) sweep() {
	if j.retention <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.retention)
	n, err := j.store.DeleteRecordsBefore(ctx, cutoff)
	if err != nil {
		j.logger.Printf("RetentionJob: sweep failed: %v", err)
		return
	}
	if n > 0 {
		j.logger.Printf("RetentionJob: deleted %d records older than %v", n, cutoff.Format(time.RFC3339))
	}
}
