package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
)

// Reopen implements spec.md §4.4's explicit reopen action: a done or
// cancelled task returns to todo and has its completion_summary cleared,
// but only within graceWindow of its last update.
func (s *Scheduler) Reopen(ctx context.Context, taskID uuid.UUID, graceWindow time.Duration) error {
	ctx, span := s.Tracer(ctx, "scheduler.Reopen")
	defer span.End()

	t, err := s.Tasks.GetForUpdate(ctx, taskID)
	if err != nil {
		return err
	}
	if !CanReopen(t.Status) {
		return apperr.New("scheduler.Reopen", apperr.Invalid, "only done or cancelled tasks may be reopened")
	}
	if time.Since(t.UpdatedAt) > graceWindow {
		return apperr.New("scheduler.Reopen", apperr.Forbidden, "reopen grace window has elapsed").
			WithDetails(map[string]any{"updated_at": t.UpdatedAt, "grace_window_seconds": graceWindow.Seconds()})
	}

	t.Status = models.TaskTodo
	t.CompletionSummary = ""
	return s.Tasks.Update(ctx, t)
}
