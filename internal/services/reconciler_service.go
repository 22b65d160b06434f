package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"taskhive/internal/models"
	"taskhive/internal/repositories"
)

// ReconcilerService is the recurring background pass that un-sticks dispatch:
// it re-matches tasks still pending and returns stale assignments (provider
// offline, capability dropped, or accept timeout exceeded) to the pending
// pool. It is stateless between ticks; the task store is the only source of
// truth, queried fresh at every tick.
type ReconcilerService struct {
	repo      repositories.TaskRepository
	providers repositories.ProviderRepository
	matcher   MatcherService
	events    EventPublisher

	interval      time.Duration
	acceptTimeout time.Duration
	concurrency   int

	running int32 // 0 idle, 1 tick in flight
}

func NewReconcilerService(
	repo repositories.TaskRepository,
	providers repositories.ProviderRepository,
	matcher MatcherService,
	events EventPublisher,
	interval, acceptTimeout time.Duration,
	concurrency int,
) *ReconcilerService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ReconcilerService{
		repo:          repo,
		providers:     providers,
		matcher:       matcher,
		events:        events,
		interval:      interval,
		acceptTimeout: acceptTimeout,
		concurrency:   concurrency,
	}
}

// Start runs the tick loop until ctx is cancelled. Overlapping ticks are
// forbidden: if a tick is still in flight when the next is due, the next one
// is skipped and logged.
func (s *ReconcilerService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	log.Printf("[reconciler] started, interval=%s accept_timeout=%s", s.interval, s.acceptTimeout)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[reconciler] stopped: %v", ctx.Err())
				return
			case <-ticker.C:
				if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
					log.Printf("[reconciler][warn] previous tick still running, skipping this one")
					continue
				}
				go func() {
					defer atomic.StoreInt32(&s.running, 0)
					s.RunTick(ctx)
				}()
			}
		}
	}()
}

// RunTick performs one reconciliation pass: the staleness sweep over assigned
// tasks, then the pending sweep. Each task is handled independently; one
// task's failure never aborts the sweep.
func (s *ReconcilerService) RunTick(ctx context.Context) {
	start := time.Now()

	// both sweeps work the snapshot taken at tick start; a task recovered by
	// the staleness sweep below waits until the next tick for re-matching
	assigned, aerr := s.repo.FindByStatus(ctx, models.StatusAssigned)
	if aerr != nil {
		log.Printf("[reconciler][staleness][err] listing assigned tasks: %v", aerr)
	}
	pending, perr := s.repo.FindByStatus(ctx, models.StatusPending)
	if perr != nil {
		log.Printf("[reconciler][pending][err] listing pending tasks: %v", perr)
	}

	if aerr == nil {
		s.fanOut(ctx, assigned, s.sweepAssigned)
	}
	if perr == nil {
		s.fanOut(ctx, pending, s.sweepPending)
	}

	log.Printf("[reconciler][tick] assigned=%d pending=%d took=%s", len(assigned), len(pending), time.Since(start))
}

func (s *ReconcilerService) fanOut(ctx context.Context, tasks []models.Task, fn func(ctx context.Context, task models.Task)) {
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(t models.Task) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(ctx, t)
		}(task)
	}
	wg.Wait()
}

// sweepAssigned returns a stale assignment to pending. A conflict is retried
// once against a fresh read; anything still conflicting waits for the next
// tick.
func (s *ReconcilerService) sweepAssigned(ctx context.Context, task models.Task) {
	reason, stale := s.staleness(ctx, &task)
	if !stale {
		return
	}

	formerProvider := task.ProviderID
	err := s.repo.Unassign(ctx, task.ID, models.StatusAssigned)
	if errors.Is(err, repositories.ErrStatusConflict) {
		fresh, rerr := s.repo.FindByID(ctx, task.ID)
		if rerr != nil || fresh.Status != models.StatusAssigned {
			return // someone else moved the task, nothing to recover
		}
		if _, again := s.staleness(ctx, fresh); !again {
			return
		}
		formerProvider = fresh.ProviderID
		err = s.repo.Unassign(ctx, task.ID, models.StatusAssigned)
	}
	if err != nil {
		log.Printf("[reconciler][staleness][err] task=%s: %v", task.ID, err)
		return
	}

	log.Printf("[reconciler][unassigned] task=%s provider=%s reason=%s", task.ID, formerProvider, reason)
	s.events.Publish(Event{
		Topic:   TopicUnassigned,
		TaskID:  task.ID,
		Message: "task returned to the pending pool: " + reason,
	}, task.RequesterID, formerProvider)
}

// staleness evaluates the recovery conditions for an assigned task. An
// unreachable liveness oracle means "not verifiable": the task is left alone
// rather than recovered on bad information.
func (s *ReconcilerService) staleness(ctx context.Context, task *models.Task) (string, bool) {
	if task.AssignedAt != nil && time.Since(*task.AssignedAt) > s.acceptTimeout {
		return "provider did not accept in time", true
	}

	snap, err := s.providers.Snapshot(ctx, task.ProviderID)
	if err != nil {
		if errors.Is(err, repositories.ErrProviderNotFound) {
			return "provider is unknown", true
		}
		log.Printf("[reconciler][staleness][err] task=%s liveness not verifiable: %v", task.ID, err)
		return "", false
	}
	if !snap.Online {
		return "provider went offline", true
	}
	if !snap.HasCapability(task.Capability) {
		return "provider no longer offers the capability", true
	}
	return "", false
}

// sweepPending re-runs the matcher for a task stuck in pending. A conflict is
// retried once against a fresh read.
func (s *ReconcilerService) sweepPending(ctx context.Context, task models.Task) {
	hadHistory := len(task.PrevProviderIDs) > 0

	updated, err := s.matcher.Match(ctx, &task)
	if errors.Is(err, ErrConflict) {
		fresh, rerr := s.repo.FindByID(ctx, task.ID)
		if rerr != nil || fresh.Status != models.StatusPending {
			return
		}
		updated, err = s.matcher.Match(ctx, fresh)
	}
	switch {
	case err == nil:
		if hadHistory {
			s.events.Publish(Event{
				Topic:   TopicReassign,
				TaskID:  task.ID,
				Data:    updated,
				Message: "task was reassigned to a new provider",
			}, updated.RequesterID, updated.ProviderID)
		}
	case errors.Is(err, ErrNoCandidate), errors.Is(err, ErrConflict):
		// stays pending; next tick tries again
	default:
		log.Printf("[reconciler][pending][err] task=%s: %v", task.ID, err)
	}
}
