package facade

import (
	"context"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
)

func (f *Facade) dispatchBranch(ctx context.Context, req Request) (interface{}, string, error) {
	switch req.Action {
	case "create":
		projectID, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		b := &models.Branch{
			ID: uuid.New(), ProjectID: projectID, Name: paramString(req.Params, "name"),
			Description: paramString(req.Params, "description"),
			Priority:    paramPriority(req.Params, "priority", models.PriorityMedium),
			Status:      models.BranchTodo,
		}
		if err := f.Branches.Create(ctx, b); err != nil {
			return nil, "", err
		}
		return b, "add tasks next with manage_task.create", nil

	case "list":
		projectID, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		branches, err := f.Branches.List(ctx, projectID)
		if err != nil {
			return nil, "", err
		}
		return branches, "", nil

	case "get":
		id, err := paramUUID(req.Params, "branch_id")
		if err != nil {
			return nil, "", err
		}
		b, err := f.Branches.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return b, "", nil

	case "update":
		id, err := paramUUID(req.Params, "branch_id")
		if err != nil {
			return nil, "", err
		}
		b, err := f.Branches.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		if v := paramString(req.Params, "name"); v != "" {
			b.Name = v
		}
		if v, ok := req.Params["description"].(string); ok {
			b.Description = v
		}
		if v := paramString(req.Params, "priority"); v != "" {
			b.Priority = models.Priority(v)
		}
		if err := f.Branches.Update(ctx, b); err != nil {
			return nil, "", err
		}
		return b, "", nil

	case "delete":
		projectID, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		branchID, err := paramUUID(req.Params, "branch_id")
		if err != nil {
			return nil, "", err
		}
		deleted, err := f.Branches.Delete(ctx, projectID, branchID)
		if err != nil {
			return nil, "", err
		}
		return map[string]interface{}{"id": branchID.String(), "tasks_deleted": deleted}, "", nil

	case "assign_agent":
		projectID, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		branchID, err := paramUUID(req.Params, "branch_id")
		if err != nil {
			return nil, "", err
		}
		agentID := paramString(req.Params, "agent_id")
		if err := f.Coordinator.AssignAgentToBranch(ctx, projectID, agentID, branchID); err != nil {
			return nil, "", err
		}
		b, err := f.Branches.Get(ctx, branchID)
		if err != nil {
			return nil, "", err
		}
		return b, "", nil

	default:
		return nil, "", apperr.New("facade.manage_git_branch", apperr.Invalid, "unknown action: "+req.Action)
	}
}
