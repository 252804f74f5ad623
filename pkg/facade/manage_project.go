package facade

import (
	"context"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
)

func (f *Facade) dispatchProject(ctx context.Context, req Request) (interface{}, string, error) {
	switch req.Action {
	case "create":
		p := &models.Project{
			ID: uuid.New(), Name: paramString(req.Params, "name"), Description: paramString(req.Params, "description"),
			Status: models.ProjectActive, UserID: orDefault(paramString(req.Params, "user_id"), req.Actor),
		}
		if err := f.Projects.Create(ctx, p); err != nil {
			return nil, "", err
		}
		return p, "create a main branch next with manage_git_branch.create", nil

	case "list":
		userID := paramString(req.Params, "user_id")
		if userID == "" {
			userID = req.Actor
		}
		projects, err := f.Projects.List(ctx, userID)
		if err != nil {
			return nil, "", err
		}
		return projects, "", nil

	case "get":
		id, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		p, err := f.Projects.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return p, "", nil

	case "update":
		id, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		p, err := f.Projects.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		if v := paramString(req.Params, "name"); v != "" {
			p.Name = v
		}
		if v, ok := req.Params["description"].(string); ok {
			p.Description = v
		}
		if err := f.Projects.Update(ctx, p); err != nil {
			return nil, "", err
		}
		return p, "", nil

	case "archive":
		id, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		if err := f.Projects.Archive(ctx, id); err != nil {
			return nil, "", err
		}
		return map[string]interface{}{"id": id.String(), "status": string(models.ProjectArchived)}, "", nil

	case "delete":
		id, err := paramUUID(req.Params, "project_id")
		if err != nil {
			return nil, "", err
		}
		if err := f.Projects.Delete(ctx, id); err != nil {
			return nil, "", err
		}
		return map[string]interface{}{"id": id.String(), "deleted": true}, "", nil

	default:
		return nil, "", apperr.New("facade.manage_project", apperr.Invalid, "unknown action: "+req.Action)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
