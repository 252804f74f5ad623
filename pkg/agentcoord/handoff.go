package agentcoord

import (
	"context"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
)

// OpenHandoff implements spec.md §4.5.
func (c *Coordinator) OpenHandoff(ctx context.Context, taskID uuid.UUID, fromAgent, toAgent, reason string, data map[string]interface{}) (*models.WorkHandoff, error) {
	ctx, span := c.Tracer(ctx, "agentcoord.OpenHandoff")
	defer span.End()

	h := &models.WorkHandoff{ID: uuid.New(), TaskID: taskID, FromAgent: fromAgent, ToAgent: toAgent, Reason: reason, Data: data, Status: models.HandoffPending}
	if err := c.Coordination.CreateHandoff(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// AcceptHandoff marks the handoff accepted, rejecting any transition that
// doesn't start from pending.
func (c *Coordinator) AcceptHandoff(ctx context.Context, id uuid.UUID) error {
	ctx, span := c.Tracer(ctx, "agentcoord.AcceptHandoff")
	defer span.End()
	h, err := c.Coordination.GetHandoff(ctx, id)
	if err != nil {
		return err
	}
	if h.Status != models.HandoffPending {
		return apperr.New("agentcoord.AcceptHandoff", apperr.Invalid, "handoff is not pending")
	}
	return c.Coordination.UpdateHandoffStatus(ctx, id, models.HandoffAccepted)
}

// CompleteHandoff marks the handoff completed and writes a task-level
// ContextInsight with category=handoff, per spec.md §4.5.
func (c *Coordinator) CompleteHandoff(ctx context.Context, id uuid.UUID) error {
	ctx, span := c.Tracer(ctx, "agentcoord.CompleteHandoff")
	defer span.End()

	h, err := c.Coordination.GetHandoff(ctx, id)
	if err != nil {
		return err
	}
	if h.Status != models.HandoffAccepted {
		return apperr.New("agentcoord.CompleteHandoff", apperr.Invalid, "handoff must be accepted before it can be completed")
	}
	if err := c.Coordination.UpdateHandoffStatus(ctx, id, models.HandoffCompleted); err != nil {
		return err
	}

	insight := &models.ContextInsight{
		ID: uuid.New(), ContextID: h.TaskID.String(), ContextLevel: models.LevelTask,
		Content: "work handed off from " + h.FromAgent + " to " + h.ToAgent + ": " + h.Reason,
		Category: "handoff", Importance: models.ImportanceMedium, SourceAgent: h.ToAgent, SourceType: "agent",
		RelatedTaskID: &h.TaskID,
	}
	if err := c.ContextRepo.AddInsight(ctx, insight); err != nil {
		c.Logger.Warn("agentcoord: failed to record handoff insight", map[string]interface{}{"handoff_id": id, "error": err.Error()})
	}
	return nil
}
