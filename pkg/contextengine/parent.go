package contextengine

import (
	"context"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

// ParentResolver finds the structural parent of a context tier, which the
// hierarchy walk needs whenever a tier's own ContextRecord hasn't been
// created yet (create-on-write means a task can be resolved before anyone
// ever wrote to its context). It is backed by the entity tables themselves
// (task.branch_id, branch.project_id) rather than a copy of the hierarchy
// kept on ContextRecord.ParentID, so it can never drift from the source of
// truth.
type ParentResolver interface {
	ParentOf(ctx context.Context, level models.ContextLevel, entityID string) (parentLevel models.ContextLevel, parentID string, ok bool)
}

// EntityParentResolver is the production ParentResolver.
type EntityParentResolver struct {
	Tasks    repository.TaskRepository
	Branches repository.BranchRepository
}

func NewEntityParentResolver(tasks repository.TaskRepository, branches repository.BranchRepository) *EntityParentResolver {
	return &EntityParentResolver{Tasks: tasks, Branches: branches}
}

func (p *EntityParentResolver) ParentOf(ctx context.Context, level models.ContextLevel, entityID string) (models.ContextLevel, string, bool) {
	switch level {
	case models.LevelTask:
		id, err := uuid.Parse(entityID)
		if err != nil {
			return "", "", false
		}
		t, err := p.Tasks.Get(ctx, id)
		if err != nil {
			return "", "", false
		}
		return models.LevelBranch, t.BranchID.String(), true
	case models.LevelBranch:
		id, err := uuid.Parse(entityID)
		if err != nil {
			return "", "", false
		}
		b, err := p.Branches.Get(ctx, id)
		if err != nil {
			return "", "", false
		}
		return models.LevelProject, b.ProjectID.String(), true
	case models.LevelProject:
		return models.LevelGlobal, "", true
	default:
		return "", "", false
	}
}
