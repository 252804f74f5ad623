// Package scheduler implements the task/subtask state machine and the
// NextTask selection algorithm (C4), grounded on the teacher's repository
// layer for reads and the contextengine package for the optional
// include_context attachment.
package scheduler

import (
	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
)

// transitions enumerates the legal task status graph of spec.md §4.4.
// reopen is handled separately since it is allowed only from done/cancelled
// within a grace window, not a plain table entry.
var transitions = map[models.TaskStatus]map[models.TaskStatus]bool{
	models.TaskTodo:       {models.TaskInProgress: true, models.TaskBlocked: true, models.TaskCancelled: true, models.TaskArchived: true},
	models.TaskInProgress: {models.TaskReview: true, models.TaskBlocked: true, models.TaskCancelled: true, models.TaskArchived: true},
	models.TaskReview:     {models.TaskTesting: true, models.TaskBlocked: true, models.TaskCancelled: true, models.TaskArchived: true},
	models.TaskTesting:    {models.TaskDone: true, models.TaskBlocked: true, models.TaskCancelled: true, models.TaskArchived: true},
	models.TaskBlocked:    {models.TaskTodo: true, models.TaskInProgress: true, models.TaskReview: true, models.TaskTesting: true, models.TaskCancelled: true, models.TaskArchived: true},
	models.TaskDone:       {models.TaskArchived: true},
	models.TaskCancelled:  {models.TaskArchived: true},
	models.TaskArchived:   {},
}

// ValidateTransition enforces spec.md §4.4's state machine, rejecting any
// edge not in the table with apperr.Invalid.
func ValidateTransition(from, to models.TaskStatus) error {
	if from == to {
		return nil
	}
	if transitions[from][to] {
		return nil
	}
	return apperr.New("scheduler.ValidateTransition", apperr.Invalid, "illegal task status transition").
		WithDetails(map[string]any{"from": from, "to": to})
}

// CanReopen reports whether a terminal task may use the explicit reopen
// action, per spec.md §4.4's grace-window carve-out.
func CanReopen(status models.TaskStatus) bool {
	return status == models.TaskDone || status == models.TaskCancelled
}
