package services

import (
	"context"
	"errors"
	"log"
	"time"

	"taskhive/internal/models"
	"taskhive/internal/repositories"
)

// MatcherService selects a provider for a pending task. The same code path
// serves the synchronous attempt right after creation and the reconciler's
// periodic re-matching; there is no special-cased first attempt.
type MatcherService interface {
	// Match assigns the nearest eligible provider to the task. It returns
	// ErrNoCandidate when nobody qualifies (the task stays pending and a
	// no-provider notification goes out) and ErrConflict when another actor
	// changed the task concurrently (no side effects, no retry here).
	Match(ctx context.Context, task *models.Task) (*models.Task, error)
}

type matcherService struct {
	repo          repositories.TaskRepository
	providers     repositories.ProviderRepository
	events        EventPublisher
	searchRadiusM float64
	geoTimeout    time.Duration
}

func NewMatcherService(repo repositories.TaskRepository, providers repositories.ProviderRepository, events EventPublisher, searchRadiusM float64, geoTimeout time.Duration) MatcherService {
	return &matcherService{
		repo:          repo,
		providers:     providers,
		events:        events,
		searchRadiusM: searchRadiusM,
		geoTimeout:    geoTimeout,
	}
}

func (s *matcherService) Match(ctx context.Context, task *models.Task) (*models.Task, error) {
	if task.Status != models.StatusPending {
		return nil, ErrInvalidTransition
	}

	// The geo query runs under a hard deadline; an unreachable or slow index
	// degrades to "no candidates found", never to a dispatch failure.
	qctx, cancel := context.WithTimeout(ctx, s.geoTimeout)
	defer cancel()
	candidates, err := s.providers.NearbyOnline(qctx, task.Capability, task.Origin, s.searchRadiusM)
	if err != nil {
		log.Printf("[matcher][geo][err] task=%s capability=%s: %v", task.ID, task.Capability, err)
		candidates = nil
	}

	var chosen *models.Candidate
	for i := range candidates {
		if task.HasPrevProvider(candidates[i].ProviderID) {
			continue
		}
		chosen = &candidates[i]
		break
	}

	if chosen == nil {
		log.Printf("[matcher][no-candidate] task=%s capability=%s radius=%.0fm", task.ID, task.Capability, s.searchRadiusM)
		s.events.Publish(Event{
			Topic:   TopicNoProvider,
			TaskID:  task.ID,
			Message: "no provider is currently available for this task",
		}, task.RequesterID)
		return nil, ErrNoCandidate
	}

	if err := s.repo.Assign(ctx, task.ID, chosen.ProviderID); err != nil {
		if errors.Is(err, repositories.ErrStatusConflict) {
			log.Printf("[matcher][conflict] task=%s lost the race, aborting", task.ID)
			return nil, ErrConflict
		}
		return nil, err
	}
	log.Printf("[matcher][assigned] task=%s provider=%s dist=%.0fm", task.ID, chosen.ProviderID, chosen.DistanceM)

	updated, err := s.repo.FindByID(ctx, task.ID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	s.events.Publish(Event{
		Topic:   TopicAssigned,
		TaskID:  task.ID,
		Data:    updated,
		Message: "a provider has been assigned to your task",
	}, updated.RequesterID, chosen.ProviderID)
	return updated, nil
}
