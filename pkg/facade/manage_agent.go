package facade

import (
	"context"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
)

func (f *Facade) dispatchAgent(ctx context.Context, req Request) (interface{}, string, error) {
	switch req.Action {
	case "register":
		projectID, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		a, err := f.Coordinator.RegisterAgent(ctx, projectID, paramString(req.Params, "id"), paramString(req.Params, "name"),
			paramStringSlice(req.Params, "capabilities"), paramInt(req.Params, "max_concurrent_tasks", 1))
		if err != nil {
			return nil, "", err
		}
		return a, "assign this agent to a branch next with manage_agent.assign", nil

	case "list":
		projectID, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		agents, err := f.Agents.List(ctx, projectID)
		if err != nil {
			return nil, "", err
		}
		return agents, "", nil

	case "get":
		projectID, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		a, err := f.Agents.Get(ctx, projectID, paramString(req.Params, "agent_id"))
		if err != nil {
			return nil, "", err
		}
		return a, "", nil

	case "update":
		projectID, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		a, err := f.Agents.Get(ctx, projectID, paramString(req.Params, "agent_id"))
		if err != nil {
			return nil, "", err
		}
		if v := paramString(req.Params, "name"); v != "" {
			a.Name = v
		}
		if v := paramStringSlice(req.Params, "capabilities"); v != nil {
			a.Capabilities = models.NewStringSet(v...)
		}
		if v := paramString(req.Params, "status"); v != "" {
			a.Status = models.AgentStatus(v)
		}
		if _, ok := req.Params["max_concurrent_tasks"]; ok {
			a.MaxConcurrentTasks = paramInt(req.Params, "max_concurrent_tasks", a.MaxConcurrentTasks)
		}
		if err := f.Agents.Update(ctx, a); err != nil {
			return nil, "", err
		}
		return a, "", nil

	case "assign":
		projectID, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		branchID, err := paramUUID(req.Params, "branch_id")
		if err != nil {
			return nil, "", err
		}
		if err := f.Coordinator.AssignAgentToBranch(ctx, projectID, paramString(req.Params, "agent_id"), branchID); err != nil {
			return nil, "", err
		}
		return map[string]interface{}{"agent_id": paramString(req.Params, "agent_id"), "branch_id": branchID.String(), "assigned": true}, "", nil

	case "rebalance":
		projectID, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		plans, err := f.Coordinator.Rebalance(ctx, projectID, paramBool(req.Params, "dry_run"))
		if err != nil {
			return nil, "", err
		}
		return plans, "", nil

	case "unregister":
		projectID, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		agentID := paramString(req.Params, "agent_id")
		if err := f.Agents.Delete(ctx, projectID, agentID); err != nil {
			return nil, "", err
		}
		return map[string]interface{}{"agent_id": agentID, "deleted": true}, "", nil

	default:
		return nil, "", apperr.New("facade.manage_agent", apperr.Invalid, "unknown action: "+req.Action)
	}
}
