package agentcoord

import (
	"context"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/models"
)

// RecordConflict implements spec.md §4.5.
func (c *Coordinator) RecordConflict(ctx context.Context, taskID *uuid.UUID, conflictType string, agents []string, details string) (*models.ConflictRecord, error) {
	ctx, span := c.Tracer(ctx, "agentcoord.RecordConflict")
	defer span.End()

	cr := &models.ConflictRecord{
		ID: uuid.New(), TaskID: taskID, Type: conflictType, Agents: models.NewStringSet(agents...),
		Details: details, IsResolved: false,
	}
	if err := c.Coordination.CreateConflict(ctx, cr); err != nil {
		return nil, err
	}
	return cr, nil
}

// ResolveConflict implements spec.md §4.5.
func (c *Coordinator) ResolveConflict(ctx context.Context, id uuid.UUID, strategy string) error {
	ctx, span := c.Tracer(ctx, "agentcoord.ResolveConflict")
	defer span.End()
	return c.Coordination.ResolveConflict(ctx, id, strategy)
}
