package agentcoord

import (
	"context"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/models"
)

// SendMessage implements spec.md §4.5.
func (c *Coordinator) SendMessage(ctx context.Context, from string, to []string, taskID *uuid.UUID, msgType, content string, priority models.Priority) (*models.AgentCommunication, error) {
	ctx, span := c.Tracer(ctx, "agentcoord.SendMessage")
	defer span.End()

	m := &models.AgentCommunication{
		ID: uuid.New(), From: from, To: models.NewStringSet(to...), TaskID: taskID,
		Type: msgType, Content: content, Priority: priority,
	}
	if err := c.Coordination.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// InboxFor returns the messages sent to or from agent, newest first.
func (c *Coordinator) InboxFor(ctx context.Context, agent string, limit int) ([]*models.AgentCommunication, error) {
	ctx, span := c.Tracer(ctx, "agentcoord.InboxFor")
	defer span.End()
	return c.Coordination.ListMessagesFor(ctx, agent, limit)
}
