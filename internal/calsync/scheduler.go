package calsync

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/engine/internal/store"
)

// SchedulerConfig configures the background incremental-refresh poller.
type SchedulerConfig struct {
	PollInterval       time.Duration
	StalenessThreshold time.Duration
	Enabled            bool
	MaxCalendarsPerPoll int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PollInterval:        2 * time.Minute,
		StalenessThreshold:  10 * time.Minute,
		Enabled:             true,
		MaxCalendarsPerPoll: 50,
	}
}

// Scheduler periodically finds calendars that haven't synced recently
// and runs the synchronizer for their owning connection — the calendar
// analogue of internal/rebuild's job-queue worker, except there's no
// explicit queue: staleness against last_synced_at is the work list.
type Scheduler struct {
	config  SchedulerConfig
	sync    *Synchronizer
	calendars *store.CalendarStore
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewScheduler(config SchedulerConfig, sync *Synchronizer, calendars *store.CalendarStore) *Scheduler {
	return &Scheduler{
		config: config, sync: sync, calendars: calendars,
		stopCh: make(chan struct{}), doneCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if !s.config.Enabled {
		log.Println("calsync scheduler is disabled")
		close(s.doneCh)
		return
	}

	log.Printf("starting calsync scheduler (poll interval: %v, staleness threshold: %v)",
		s.config.PollInterval, s.config.StalenessThreshold)

	go func() {
		defer close(s.doneCh)

		s.poll(ctx)

		ticker := time.NewTicker(s.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.poll(ctx)
			case <-s.stopCh:
				log.Println("calsync scheduler stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) poll(ctx context.Context) {
	cals, err := s.calendars.ListNeedingSync(ctx, s.config.StalenessThreshold)
	if err != nil {
		log.Printf("calsync scheduler: list needing sync: %v", err)
		return
	}

	seen := make(map[uuid.UUID]bool)
	synced := 0
	for _, cal := range cals {
		if synced >= s.config.MaxCalendarsPerPoll {
			break
		}
		if seen[cal.ConnectionID] {
			continue // one RunForConnection call covers every calendar on it
		}
		seen[cal.ConnectionID] = true
		synced++

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if err := s.sync.RunForConnection(ctx, cal.ConnectionID); err != nil {
			log.Printf("calsync scheduler: connection %s: %v", cal.ConnectionID, err)
		}
	}
}
