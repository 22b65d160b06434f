package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskhive/internal/geo"
	"taskhive/internal/models"
	"taskhive/internal/repositories"
)

// fakeTaskRepo is an in-memory TaskRepository with real compare-and-set
// semantics, so race and idempotence behavior can be exercised without a
// database.
type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*models.Task

	// fault injection
	unassignConflicts int // fail the next N Unassign calls with a conflict
	listBlock         chan struct{}

	assignCalls   int
	unassignCalls int
	listCalls     int
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[string]*models.Task)}
}

func (r *fakeTaskRepo) put(t *models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.ID] = &cp
}

func (r *fakeTaskRepo) get(id string) *models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.tasks[id]
	return &cp
}

func (r *fakeTaskRepo) Store(ctx context.Context, task *models.Task) error {
	r.put(task)
	return nil
}

func (r *fakeTaskRepo) FindByID(ctx context.Context, id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, repositories.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTaskRepo) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range r.tasks {
		if filter.RequesterID != nil && t.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.ProviderID != nil && t.ProviderID != *filter.ProviderID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *fakeTaskRepo) FindByStatus(ctx context.Context, status models.TaskStatus) ([]models.Task, error) {
	if r.listBlock != nil {
		<-r.listBlock
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []models.Task
	for _, t := range r.tasks {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeTaskRepo) Assign(ctx context.Context, id, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignCalls++
	t, ok := r.tasks[id]
	if !ok || t.Status != models.StatusPending {
		return repositories.ErrStatusConflict
	}
	now := time.Now()
	t.Status = models.StatusAssigned
	t.ProviderID = providerID
	t.AssignedAt = &now
	t.UpdatedAt = now
	return nil
}

func (r *fakeTaskRepo) Accept(ctx context.Context, id, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status != models.StatusAssigned || t.ProviderID != providerID {
		return repositories.ErrStatusConflict
	}
	var prev []string
	for _, p := range t.PrevProviderIDs {
		if p != providerID {
			prev = append(prev, p)
		}
	}
	t.PrevProviderIDs = prev
	t.Status = models.StatusAccepted
	t.UpdatedAt = time.Now()
	return nil
}

func (r *fakeTaskRepo) Unassign(ctx context.Context, id string, from models.TaskStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unassignCalls++
	if r.unassignConflicts > 0 {
		r.unassignConflicts--
		return repositories.ErrStatusConflict
	}
	t, ok := r.tasks[id]
	if !ok || t.Status != from || t.ProviderID == "" {
		return repositories.ErrStatusConflict
	}
	if !t.HasPrevProvider(t.ProviderID) {
		t.PrevProviderIDs = append(t.PrevProviderIDs, t.ProviderID)
	}
	t.Status = models.StatusPending
	t.ProviderID = ""
	t.AssignedAt = nil
	t.UpdatedAt = time.Now()
	return nil
}

func (r *fakeTaskRepo) Finish(ctx context.Context, id string, from, to models.TaskStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status != from {
		return repositories.ErrStatusConflict
	}
	t.Status = to
	t.ProviderID = ""
	t.AssignedAt = nil
	t.UpdatedAt = time.Now()
	return nil
}

func (r *fakeTaskRepo) UpdateStatus(ctx context.Context, id string, from, to models.TaskStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status != from {
		return repositories.ErrStatusConflict
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return nil
}

func (r *fakeTaskRepo) UpdateStatusByProvider(ctx context.Context, id string, from, to models.TaskStatus, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status != from || t.ProviderID != providerID {
		return repositories.ErrStatusConflict
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return nil
}

// fakeProviderRepo mirrors the Redis read model: snapshots plus a distance
// query computed with the same great-circle function the engine uses.
type fakeProviderRepo struct {
	mu    sync.Mutex
	snaps map[string]*models.ProviderSnapshot

	nearbyErr   error
	snapshotErr error
}

func newFakeProviderRepo() *fakeProviderRepo {
	return &fakeProviderRepo{snaps: make(map[string]*models.ProviderSnapshot)}
}

func (r *fakeProviderRepo) add(id string, online bool, pos models.Point, capabilities ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[id] = &models.ProviderSnapshot{
		ID:           id,
		Online:       online,
		Capabilities: capabilities,
		LastPosition: pos,
		UpdatedAt:    time.Now(),
	}
}

func (r *fakeProviderRepo) SetOnline(ctx context.Context, snap *models.ProviderSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap.Online = true
	r.snaps[snap.ID] = snap
	return nil
}

func (r *fakeProviderRepo) Heartbeat(ctx context.Context, providerID string) error { return nil }

func (r *fakeProviderRepo) UpdatePosition(ctx context.Context, providerID string, pos models.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.snaps[providerID]; ok {
		s.LastPosition = pos
	}
	return nil
}

func (r *fakeProviderRepo) SetOffline(ctx context.Context, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.snaps[providerID]; ok {
		s.Online = false
	}
	return nil
}

func (r *fakeProviderRepo) Snapshot(ctx context.Context, providerID string) (*models.ProviderSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshotErr != nil {
		return nil, r.snapshotErr
	}
	s, ok := r.snaps[providerID]
	if !ok {
		return nil, repositories.ErrProviderNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeProviderRepo) NearbyOnline(ctx context.Context, capability string, origin models.Point, radiusM float64) ([]models.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nearbyErr != nil {
		return nil, r.nearbyErr
	}
	var out []models.Candidate
	for _, s := range r.snaps {
		if !s.Online || !s.HasCapability(capability) {
			continue
		}
		d := geo.DistanceM(origin, s.LastPosition)
		if d > radiusM {
			continue
		}
		out = append(out, models.Candidate{ProviderID: s.ID, DistanceM: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	return out, nil
}

// fakeEvents records every published event.
type fakeEvents struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Event      Event
	Recipients []string
}

func (f *fakeEvents) Publish(event Event, accountIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Event: event, Recipients: accountIDs})
}

func (f *fakeEvents) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.Event.Topic)
	}
	return out
}

func (f *fakeEvents) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Event.Topic == topic {
			n++
		}
	}
	return n
}

func (f *fakeEvents) last(topic string) (publishedEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Event.Topic == topic {
			return f.events[i], true
		}
	}
	return publishedEvent{}, false
}
