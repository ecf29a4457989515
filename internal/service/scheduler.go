package service

import (
	"errors"
	"log"
	"time"

	"partsight/internal/repository"
)

// RetryScheduler periodically re-submits failed analysis jobs that are
// still under the retry cap. Each retry consumes an attempt whether or
// not the owner can pay for it, so an unfunded job ages out of the sweep
// set once the cap is hit.
type RetryScheduler struct {
	jobs       *repository.AnalysisJobRepository
	users      *repository.UserRepository
	analysis   *AnalysisService
	interval   time.Duration
	batchSize  int
	maxRetries int

	stop chan struct{}
	done chan struct{}
}

func NewRetryScheduler(
	jobs *repository.AnalysisJobRepository,
	users *repository.UserRepository,
	analysis *AnalysisService,
	interval time.Duration,
	batchSize, maxRetries int,
) *RetryScheduler {
	return &RetryScheduler{
		jobs:       jobs,
		users:      users,
		analysis:   analysis,
		interval:   interval,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *RetryScheduler) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		log.Printf("[scheduler] retry sweep every %s (batch %d, max retries %d)", s.interval, s.batchSize, s.maxRetries)
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *RetryScheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep runs one pass over retryable jobs. Per-job failures never abort
// the sweep.
func (s *RetryScheduler) Sweep() {
	jobs, err := s.jobs.ListRetryable(s.maxRetries, s.batchSize)
	if err != nil {
		log.Printf("[scheduler] listing retryable jobs failed: %v", err)
		return
	}
	for i := range jobs {
		job := jobs[i]
		u, err := s.users.GetByID(job.UserID)
		if err != nil {
			log.Printf("[scheduler] job %s: owner lookup failed: %v", job.ID, err)
			continue
		}
		if err := s.analysis.Retry(&job, u.Email); err != nil {
			if errors.Is(err, ErrInsufficientCredits) {
				log.Printf("[scheduler] job %s: owner has no credits, attempt %d consumed", job.ID, job.RetryCount)
				continue
			}
			log.Printf("[scheduler] job %s: retry failed: %v", job.ID, err)
		}
	}
}
