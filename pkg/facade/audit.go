package facade

import (
	"context"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/models"
)

// audit appends one AuditEntry per mutating call (SPEC_FULL.md §4). A
// logging failure here never fails the underlying operation — the mutation
// already committed — it only gets logged, matching CompleteHandoff's
// best-effort insight write in pkg/agentcoord.
func (f *Facade) audit(ctx context.Context, operation string, req Request, result interface{}) {
	entityType, entityID := auditEntitySubject(req.Params, result)
	entry := &models.AuditEntry{
		ID: uuid.New(), RequestID: req.RequestID, Action: operation, Actor: req.Actor,
		EntityType: entityType, EntityID: entityID,
		After: map[string]interface{}{"params": req.Params},
	}
	if err := f.Audit.Append(ctx, entry); err != nil {
		f.Logger.Warn("facade: failed to append audit entry", map[string]interface{}{"operation": operation, "error": err.Error()})
	}
}

// auditEntitySubject picks the clearest identifier for the audit row: the
// id the caller supplied, falling back to one minted by the operation
// itself (e.g. project create, which has no caller-supplied id to audit).
func auditEntitySubject(params map[string]interface{}, result interface{}) (entityType, entityID string) {
	for _, key := range []string{"task_id", "subtask_id", "branch_id", "agent_id", "project_id", "delegation_id"} {
		if v, ok := params[key].(string); ok && v != "" {
			return key, v
		}
	}
	if m, ok := result.(map[string]interface{}); ok {
		if id, ok := m["id"].(string); ok {
			return "id", id
		}
	}
	return "", ""
}
