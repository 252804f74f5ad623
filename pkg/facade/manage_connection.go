package facade

import (
	"context"
	"time"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
)

// toolActions enumerates the dispatch surface for the capabilities action;
// kept as a literal table rather than derived via reflection so the
// advertised surface matches exactly what route() accepts.
var toolActions = map[string][]string{
	"manage_project":    {"create", "list", "get", "update", "archive", "delete"},
	"manage_git_branch": {"create", "list", "get", "update", "delete", "assign_agent"},
	"manage_task":       {"create", "list", "get", "update", "next", "complete", "reopen", "search", "add_dependency", "remove_dependency"},
	"manage_subtask":    {"create", "list", "get", "update", "complete"},
	"manage_agent":      {"register", "list", "get", "update", "assign", "rebalance", "unregister"},
	"manage_context":    {"resolve", "update", "delegate", "add_insight", "list_delegations", "approve_delegation", "invalidate_cache"},
	"manage_connection": {"health_check", "capabilities"},
	"manage_compliance": {"validate_compliance", "get_audit_trail"},
}

func (f *Facade) dispatchConnection(ctx context.Context, req Request) (interface{}, string, error) {
	switch req.Action {
	case "health_check":
		const probeKey = "facade:health:probe"
		probe := time.Now().Format(time.RFC3339Nano)
		status := "ok"
		if err := f.Idempotency.Set(ctx, probeKey, probe, time.Minute); err != nil {
			status = "degraded"
		} else {
			var readBack string
			if err := f.Idempotency.Get(ctx, probeKey, &readBack); err != nil || readBack != probe {
				status = "degraded"
			}
		}
		return map[string]interface{}{"status": status, "server_time": time.Now().Format(time.RFC3339Nano)}, "", nil

	case "capabilities":
		return map[string]interface{}{"tools": toolActions}, "", nil

	default:
		return nil, "", apperr.New("facade.manage_connection", apperr.Invalid, "unknown action: "+req.Action)
	}
}
