package services

import "taskhive/internal/models"

// Allowed status transitions.
// NB: "rejected" is an action, not a resting state; a provider reject (or a
// staleness timeout) runs the assigned/accepted -> pending edge atomically.
// approved and cancelled are terminal.
var TaskTransitions = map[models.TaskStatus]map[models.TaskStatus]bool{
	models.StatusPending:    {models.StatusAssigned: true, models.StatusCancelled: true},
	models.StatusAssigned:   {models.StatusAccepted: true, models.StatusPending: true, models.StatusCancelled: true},
	models.StatusAccepted:   {models.StatusInProgress: true, models.StatusPending: true, models.StatusCancelled: true},
	models.StatusInProgress: {models.StatusReady: true}, // cancel is forbidden mid-work
	models.StatusReady:      {models.StatusApproved: true, models.StatusCancelled: true},
	models.StatusApproved:   {},
	models.StatusCancelled:  {},
}

func canTransition(from, to models.TaskStatus) bool {
	nexts, ok := TaskTransitions[from]
	if !ok {
		return false
	}
	return nexts[to]
}
