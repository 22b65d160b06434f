package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhive/internal/models"
)

var (
	taskOrigin = models.Point{Lon: 9.76, Lat: 4.05}
	// roughly 50 meters north of taskOrigin
	fiftyMetersOut = models.Point{Lon: 9.76, Lat: 4.05045}
	// within a meter of taskOrigin
	atOrigin = models.Point{Lon: 9.76, Lat: 4.050009}
)

func newTestTaskService(arrivalRadiusM float64) (TaskService, *fakeTaskRepo, *fakeProviderRepo, *fakeEvents) {
	repo := newFakeTaskRepo()
	providers := newFakeProviderRepo()
	events := &fakeEvents{}
	svc := NewTaskService(repo, providers, events, arrivalRadiusM)
	return svc, repo, providers, events
}

func seedTask(repo *fakeTaskRepo, status models.TaskStatus, providerID string, prev ...string) *models.Task {
	now := time.Now()
	t := &models.Task{
		ID:              "task-1",
		Capability:      "cleaning",
		RequesterID:     "user-1",
		ProviderID:      providerID,
		PrevProviderIDs: prev,
		Status:          status,
		Origin:          taskOrigin,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if providerID != "" {
		t.AssignedAt = &now
	}
	repo.put(t)
	return t
}

func TestCreateStartsPending(t *testing.T) {
	svc, repo, _, _ := newTestTaskService(2)

	created, err := svc.Create(context.Background(), &models.Task{
		Capability:  "cleaning",
		RequesterID: "user-1",
		Origin:      taskOrigin,
		Status:      models.StatusAssigned, // caller-supplied status is ignored
		ProviderID:  "sneaky",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Empty(t, created.ProviderID)
	assert.Nil(t, created.AssignedAt)
	assert.Equal(t, models.StatusPending, repo.get(created.ID).Status)
}

func TestAcceptGivesSecondChance(t *testing.T) {
	svc, repo, _, events := newTestTaskService(2)
	seedTask(repo, models.StatusAssigned, "prov-1", "prov-1", "prov-2")

	updated, err := svc.Accept(context.Background(), "task-1", "prov-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusAccepted, updated.Status)
	assert.Equal(t, "prov-1", updated.ProviderID)
	// a provider who accepts is struck from the history list
	assert.Equal(t, []string{"prov-2"}, updated.PrevProviderIDs)
	assert.Equal(t, 1, events.count(TopicAccepted))
}

func TestAcceptByWrongProvider(t *testing.T) {
	svc, repo, _, _ := newTestTaskService(2)
	seedTask(repo, models.StatusAssigned, "prov-1")

	_, err := svc.Accept(context.Background(), "task-1", "prov-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.StatusAssigned, repo.get("task-1").Status)
}

func TestRejectReturnsTaskToPending(t *testing.T) {
	svc, repo, _, events := newTestTaskService(2)
	seedTask(repo, models.StatusAssigned, "prov-1")

	updated, err := svc.Reject(context.Background(), "task-1", "prov-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, updated.Status)
	assert.Empty(t, updated.ProviderID)
	assert.Nil(t, updated.AssignedAt)
	assert.Contains(t, updated.PrevProviderIDs, "prov-1")
	assert.Equal(t, 1, events.count(TopicRejected))

	ev, ok := events.last(TopicRejected)
	require.True(t, ok)
	assert.Contains(t, ev.Recipients, "user-1")
	assert.Contains(t, ev.Recipients, "prov-1")
}

func TestRejectAfterAccept(t *testing.T) {
	svc, repo, _, _ := newTestTaskService(2)
	seedTask(repo, models.StatusAccepted, "prov-1")

	updated, err := svc.Reject(context.Background(), "task-1", "prov-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, updated.Status)
	assert.Contains(t, updated.PrevProviderIDs, "prov-1")
}

func TestStartRequiresArrival(t *testing.T) {
	svc, repo, providers, _ := newTestTaskService(2)
	seedTask(repo, models.StatusAccepted, "prov-1")
	providers.add("prov-1", true, fiftyMetersOut, "cleaning")

	_, err := svc.Start(context.Background(), "task-1", "prov-1")

	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.InDelta(t, 50, pre.DistanceM, 5)
	assert.Equal(t, float64(2), pre.RadiusM)
	assert.Equal(t, models.StatusAccepted, repo.get("task-1").Status)
}

func TestStartAtTaskLocation(t *testing.T) {
	svc, repo, providers, events := newTestTaskService(2)
	seedTask(repo, models.StatusAccepted, "prov-1")
	providers.add("prov-1", true, atOrigin, "cleaning")

	updated, err := svc.Start(context.Background(), "task-1", "prov-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, 1, events.count(TopicInProgress))
}

func TestCompleteThenApprove(t *testing.T) {
	svc, repo, _, events := newTestTaskService(2)
	seedTask(repo, models.StatusInProgress, "prov-1")

	updated, err := svc.Complete(context.Background(), "task-1", "prov-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, updated.Status)

	updated, err = svc.Approve(context.Background(), "task-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, updated.Status)
	assert.Empty(t, updated.ProviderID)
	assert.Equal(t, 1, events.count(TopicReady))
	assert.Equal(t, 1, events.count(TopicApproved))

	// the approved event still reaches the provider who did the work
	ev, ok := events.last(TopicApproved)
	require.True(t, ok)
	assert.Contains(t, ev.Recipients, "prov-1")
}

func TestCancelForbiddenWhileInProgress(t *testing.T) {
	svc, repo, _, events := newTestTaskService(2)
	seedTask(repo, models.StatusInProgress, "prov-1")

	_, err := svc.Cancel(context.Background(), "task-1", "user-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.StatusInProgress, repo.get("task-1").Status)
	assert.Equal(t, 0, events.count(TopicCancelled))
}

func TestCancelClearsProvider(t *testing.T) {
	svc, repo, _, events := newTestTaskService(2)
	seedTask(repo, models.StatusAssigned, "prov-1")

	updated, err := svc.Cancel(context.Background(), "task-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)
	assert.Empty(t, updated.ProviderID)
	assert.Nil(t, updated.AssignedAt)

	ev, ok := events.last(TopicCancelled)
	require.True(t, ok)
	assert.Contains(t, ev.Recipients, "prov-1")
}

func TestCancelByWrongRequester(t *testing.T) {
	svc, repo, _, _ := newTestTaskService(2)
	seedTask(repo, models.StatusPending, "")

	_, err := svc.Cancel(context.Background(), "task-1", "user-2")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	for _, status := range []models.TaskStatus{models.StatusApproved, models.StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			svc, repo, providers, _ := newTestTaskService(2)
			seedTask(repo, status, "")
			providers.add("prov-1", true, atOrigin, "cleaning")

			_, err := svc.Cancel(context.Background(), "task-1", "user-1")
			assert.ErrorIs(t, err, ErrInvalidTransition)
			_, err = svc.Approve(context.Background(), "task-1", "user-1")
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, status, repo.get("task-1").Status)
		})
	}
}

// Every (state, action) pair outside the transition table must fail with
// ErrInvalidTransition and leave the status untouched.
func TestTransitionTableCompleteness(t *testing.T) {
	type action struct {
		name string
		run  func(svc TaskService) error
	}
	actions := []action{
		{"accept", func(svc TaskService) error {
			_, err := svc.Accept(context.Background(), "task-1", "prov-1")
			return err
		}},
		{"reject", func(svc TaskService) error {
			_, err := svc.Reject(context.Background(), "task-1", "prov-1")
			return err
		}},
		{"start", func(svc TaskService) error {
			_, err := svc.Start(context.Background(), "task-1", "prov-1")
			return err
		}},
		{"complete", func(svc TaskService) error {
			_, err := svc.Complete(context.Background(), "task-1", "prov-1")
			return err
		}},
		{"approve", func(svc TaskService) error {
			_, err := svc.Approve(context.Background(), "task-1", "user-1")
			return err
		}},
		{"cancel", func(svc TaskService) error {
			_, err := svc.Cancel(context.Background(), "task-1", "user-1")
			return err
		}},
	}
	allowed := map[models.TaskStatus]map[string]bool{
		models.StatusPending:    {"cancel": true},
		models.StatusAssigned:   {"accept": true, "reject": true, "cancel": true},
		models.StatusAccepted:   {"start": true, "reject": true, "cancel": true},
		models.StatusInProgress: {"complete": true},
		models.StatusReady:      {"approve": true, "cancel": true},
		models.StatusApproved:   {},
		models.StatusCancelled:  {},
	}

	for status, ok := range allowed {
		for _, a := range actions {
			t.Run(string(status)+"/"+a.name, func(t *testing.T) {
				svc, repo, providers, _ := newTestTaskService(2)
				providerID := ""
				if status == models.StatusAssigned || status == models.StatusAccepted ||
					status == models.StatusInProgress || status == models.StatusReady {
					providerID = "prov-1"
				}
				seedTask(repo, status, providerID)
				providers.add("prov-1", true, atOrigin, "cleaning")

				err := a.run(svc)
				if ok[a.name] {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, ErrInvalidTransition)
					assert.Equal(t, status, repo.get("task-1").Status)
				}
			})
		}
	}
}

// providerId must be set exactly in the dispatchable states.
func TestProviderInvariantAcrossLifecycle(t *testing.T) {
	svc, repo, providers, _ := newTestTaskService(2)
	providers.add("prov-1", true, atOrigin, "cleaning")

	created, err := svc.Create(context.Background(), &models.Task{
		Capability:  "cleaning",
		RequesterID: "user-1",
		Origin:      taskOrigin,
	})
	require.NoError(t, err)

	check := func() {
		cur := repo.get(created.ID)
		holds := cur.Status == models.StatusAssigned || cur.Status == models.StatusAccepted ||
			cur.Status == models.StatusInProgress || cur.Status == models.StatusReady
		assert.Equal(t, holds, cur.ProviderID != "", "status=%s provider=%q", cur.Status, cur.ProviderID)
	}

	check()
	require.NoError(t, repo.Assign(context.Background(), created.ID, "prov-1"))
	check()
	_, err = svc.Accept(context.Background(), created.ID, "prov-1")
	require.NoError(t, err)
	check()
	_, err = svc.Start(context.Background(), created.ID, "prov-1")
	require.NoError(t, err)
	check()
	_, err = svc.Complete(context.Background(), created.ID, "prov-1")
	require.NoError(t, err)
	check()
	_, err = svc.Approve(context.Background(), created.ID, "user-1")
	require.NoError(t, err)
	check()
}
