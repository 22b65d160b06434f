// internal/services/task_service.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"taskhive/internal/geo"
	"taskhive/internal/models"
	"taskhive/internal/repositories"
)

// TaskService is the task state machine. Every mutation below is a single
// conditional update keyed on (task id, expected current status); a lost race
// surfaces as ErrConflict and leaves no side effects. Provider-only and
// requester-only actions verify the acting party here, not in the handlers.
type TaskService interface {
	Create(ctx context.Context, task *models.Task) (*models.Task, error)
	GetByID(ctx context.Context, id string) (*models.Task, error)
	GetAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)

	// Provider actions.
	Accept(ctx context.Context, id, providerID string) (*models.Task, error)
	Reject(ctx context.Context, id, providerID string) (*models.Task, error)
	Start(ctx context.Context, id, providerID string) (*models.Task, error)
	Complete(ctx context.Context, id, providerID string) (*models.Task, error)

	// Requester actions.
	Approve(ctx context.Context, id, requesterID string) (*models.Task, error)
	Cancel(ctx context.Context, id, requesterID string) (*models.Task, error)
}

type taskService struct {
	repo           repositories.TaskRepository
	providers      repositories.ProviderRepository
	events         EventPublisher
	arrivalRadiusM float64
}

// NewTaskService creates a new instance of TaskService. arrivalRadiusM is the
// maximum distance from the task origin at which a provider may start work.
func NewTaskService(repo repositories.TaskRepository, providers repositories.ProviderRepository, events EventPublisher, arrivalRadiusM float64) TaskService {
	return &taskService{
		repo:           repo,
		providers:      providers,
		events:         events,
		arrivalRadiusM: arrivalRadiusM,
	}
}

func (s *taskService) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Status = models.StatusPending
	task.ProviderID = ""
	task.AssignedAt = nil
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := s.repo.Store(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *taskService) GetByID(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return task, nil
}

func (s *taskService) GetAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	return s.repo.FindAll(ctx, filter)
}

func (s *taskService) Accept(ctx context.Context, id, providerID string) (*models.Task, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.StatusAssigned || task.ProviderID != providerID {
		return nil, ErrInvalidTransition
	}

	if err := s.repo.Accept(ctx, id, providerID); err != nil {
		return nil, mapRepoErr(err)
	}
	log.Printf("[task][accept][ok] id=%s provider=%s", id, providerID)

	updated, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Publish(Event{
		Topic:   TopicAccepted,
		TaskID:  id,
		Data:    updated,
		Message: "provider accepted the task",
	}, updated.RequesterID, providerID)
	return updated, nil
}

func (s *taskService) Reject(ctx context.Context, id, providerID string) (*models.Task, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.ProviderID != providerID ||
		(task.Status != models.StatusAssigned && task.Status != models.StatusAccepted) {
		return nil, ErrInvalidTransition
	}

	if err := s.repo.Unassign(ctx, id, task.Status); err != nil {
		return nil, mapRepoErr(err)
	}
	log.Printf("[task][reject][ok] id=%s provider=%s from=%s", id, providerID, task.Status)

	updated, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Publish(Event{
		Topic:   TopicRejected,
		TaskID:  id,
		Data:    updated,
		Message: "provider declined the task",
	}, updated.RequesterID, providerID)
	return updated, nil
}

func (s *taskService) Start(ctx context.Context, id, providerID string) (*models.Task, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.StatusAccepted || task.ProviderID != providerID {
		return nil, ErrInvalidTransition
	}

	// Arrival gate: the provider's last reported position must be within the
	// configured radius of the task origin.
	snap, err := s.providers.Snapshot(ctx, providerID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	dist := geo.DistanceM(snap.LastPosition, task.Origin)
	if dist > s.arrivalRadiusM {
		return nil, &PreconditionError{DistanceM: dist, RadiusM: s.arrivalRadiusM}
	}

	if err := s.repo.UpdateStatusByProvider(ctx, id, models.StatusAccepted, models.StatusInProgress, providerID); err != nil {
		return nil, mapRepoErr(err)
	}
	log.Printf("[task][start][ok] id=%s provider=%s dist=%.1fm", id, providerID, dist)

	updated, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Publish(Event{
		Topic:   TopicInProgress,
		TaskID:  id,
		Data:    updated,
		Message: "work has started",
	}, updated.RequesterID, providerID)
	return updated, nil
}

func (s *taskService) Complete(ctx context.Context, id, providerID string) (*models.Task, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.StatusInProgress || task.ProviderID != providerID {
		return nil, ErrInvalidTransition
	}

	if err := s.repo.UpdateStatusByProvider(ctx, id, models.StatusInProgress, models.StatusReady, providerID); err != nil {
		return nil, mapRepoErr(err)
	}
	log.Printf("[task][complete][ok] id=%s provider=%s", id, providerID)

	updated, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Publish(Event{
		Topic:   TopicReady,
		TaskID:  id,
		Data:    updated,
		Message: "work is ready for approval",
	}, updated.RequesterID, providerID)
	return updated, nil
}

func (s *taskService) Approve(ctx context.Context, id, requesterID string) (*models.Task, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.RequesterID != requesterID || task.Status != models.StatusReady {
		return nil, ErrInvalidTransition
	}
	formerProvider := task.ProviderID

	if err := s.repo.Finish(ctx, id, models.StatusReady, models.StatusApproved); err != nil {
		return nil, mapRepoErr(err)
	}
	log.Printf("[task][approve][ok] id=%s requester=%s", id, requesterID)

	updated, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Publish(Event{
		Topic:   TopicApproved,
		TaskID:  id,
		Data:    updated,
		Message: "requester approved the work",
	}, requesterID, formerProvider)
	return updated, nil
}

func (s *taskService) Cancel(ctx context.Context, id, requesterID string) (*models.Task, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.RequesterID != requesterID {
		return nil, ErrInvalidTransition
	}
	if !canTransition(task.Status, models.StatusCancelled) {
		// covers in_progress and the terminal states
		return nil, ErrInvalidTransition
	}
	formerProvider := task.ProviderID

	if err := s.repo.Finish(ctx, id, task.Status, models.StatusCancelled); err != nil {
		return nil, mapRepoErr(err)
	}
	log.Printf("[task][cancel][ok] id=%s requester=%s from=%s", id, requesterID, task.Status)

	updated, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Publish(Event{
		Topic:   TopicCancelled,
		TaskID:  id,
		Data:    updated,
		Message: "requester cancelled the task",
	}, requesterID, formerProvider)
	return updated, nil
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repositories.ErrTaskNotFound), errors.Is(err, repositories.ErrProviderNotFound):
		return ErrNotFound
	case errors.Is(err, repositories.ErrStatusConflict):
		return ErrConflict
	default:
		return err
	}
}
