// internal/models/task.go
package models

import "time"

// TaskStatus defines the possible statuses for a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusAssigned   TaskStatus = "assigned"
	StatusAccepted   TaskStatus = "accepted"
	StatusInProgress TaskStatus = "in_progress"
	StatusReady      TaskStatus = "ready"
	StatusApproved   TaskStatus = "approved"
	StatusCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusCancelled
}

// PriceRange is immutable business data carried through dispatch untouched.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Task represents the unit of work the dispatch engine moves between
// a requester and a provider.
type Task struct {
	ID              string     `json:"id"`
	Capability      string     `json:"capability"`
	RequesterID     string     `json:"requester_id"`
	ProviderID      string     `json:"provider_id,omitempty"`
	PrevProviderIDs []string   `json:"prev_provider_ids,omitempty"`
	Status          TaskStatus `json:"status"`
	Origin          Point      `json:"origin"`
	Price           PriceRange `json:"price"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
}

// HasPrevProvider reports whether the provider already held and
// relinquished this task.
func (t *Task) HasPrevProvider(providerID string) bool {
	for _, id := range t.PrevProviderIDs {
		if id == providerID {
			return true
		}
	}
	return false
}

// TaskFilter defines the available parameters for filtering tasks.
type TaskFilter struct {
	RequesterID *string
	ProviderID  *string
	Status      *TaskStatus
}
