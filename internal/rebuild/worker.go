package rebuild

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/engine/internal/store"
)

// WorkerConfig configures the background rebuild worker.
type WorkerConfig struct {
	PollInterval time.Duration
	WorkerID     string
	Enabled      bool
	MaxUsersPerPoll int
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:    5 * time.Second,
		WorkerID:        "rebuild-" + uuid.New().String()[:8],
		Enabled:         true,
		MaxUsersPerPoll: 20,
	}
}

// Worker drains the rebuild job queue: each poll, it discovers every user
// with a pending job and runs one rebuild per user, claimed through
// RebuildJobStore so two workers never claim the same job.
type Worker struct {
	config  WorkerConfig
	service *Service
	jobs    *store.RebuildJobStore
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewWorker(config WorkerConfig, service *Service, jobs *store.RebuildJobStore) *Worker {
	return &Worker{
		config:  config,
		service: service,
		jobs:    jobs,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	if !w.config.Enabled {
		log.Println("rebuild worker is disabled")
		close(w.doneCh)
		return
	}

	log.Printf("starting rebuild worker (poll interval: %v, worker ID: %s)", w.config.PollInterval, w.config.WorkerID)

	go func() {
		defer close(w.doneCh)

		w.poll(ctx)

		ticker := time.NewTicker(w.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.poll(ctx)
			case <-w.stopCh:
				log.Println("rebuild worker stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) poll(ctx context.Context) {
	userIDs, err := w.jobs.ListUsersWithPendingJobs(ctx, w.config.MaxUsersPerPoll)
	if err != nil {
		log.Printf("rebuild worker: error listing pending users: %v", err)
		return
	}

	for _, userID := range userIDs {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		job, err := w.jobs.ClaimNextForUser(ctx, userID, w.config.WorkerID)
		if err != nil {
			log.Printf("rebuild worker: error claiming job for user %s: %v", userID, err)
			continue
		}
		if job == nil {
			continue // another worker claimed it first
		}

		if err := w.service.RunForUser(ctx, userID, time.Now().UTC()); err != nil {
			log.Printf("rebuild worker: job %s failed: %v", job.ID, err)
			if markErr := w.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
				log.Printf("rebuild worker: failed to mark job failed: %v", markErr)
			}
			continue
		}

		if err := w.jobs.MarkCompleted(ctx, job.ID); err != nil {
			log.Printf("rebuild worker: failed to mark job completed: %v", err)
		}
	}
}
