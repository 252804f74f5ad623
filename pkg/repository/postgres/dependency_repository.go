package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

// DependencyRepository implements repository.DependencyRepository, the
// Dependency & Label Graph (C3). WouldCycle walks the project's dependency
// edges in Go rather than a recursive CTE, keeping the cycle check testable
// against go-sqlmock the way the teacher tests its repository logic.
type DependencyRepository struct {
	*BaseRepository
}

func NewDependencyRepository(base *BaseRepository) repository.DependencyRepository {
	return &DependencyRepository{BaseRepository: base}
}

func (r *DependencyRepository) Add(ctx context.Context, taskID, dependsOn uuid.UUID, depType models.DependencyType) error {
	ctx, span := r.Tracer(ctx, "DependencyRepository.Add")
	defer span.End()

	if taskID == dependsOn {
		return apperr.New("DependencyRepository.Add", apperr.Invalid, "a task cannot depend on itself")
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err := r.WriteDB.ExecContext(ctx, `INSERT INTO dependencies (task_id, depends_on_task_id, type, created_at)
		VALUES ($1, $2, $3, $4) ON CONFLICT (task_id, depends_on_task_id) DO UPDATE SET type = EXCLUDED.type`,
		taskID, dependsOn, depType, time.Now())
	if err != nil {
		return ClassifyConstraint("DependencyRepository.Add", err)
	}
	return nil
}

func (r *DependencyRepository) Remove(ctx context.Context, taskID, dependsOn uuid.UUID) error {
	ctx, span := r.Tracer(ctx, "DependencyRepository.Remove")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.ExecContext(ctx, `DELETE FROM dependencies WHERE task_id=$1 AND depends_on_task_id=$2`, taskID, dependsOn)
	if err != nil {
		return apperr.Wrap("DependencyRepository.Remove", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("DependencyRepository.Remove", apperr.NotFound, "dependency edge not found")
	}
	return nil
}

func (r *DependencyRepository) DependenciesOf(ctx context.Context, taskID uuid.UUID) ([]models.Dependency, error) {
	ctx, span := r.Tracer(ctx, "DependencyRepository.DependenciesOf")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var deps []models.Dependency
	err := r.ReadDB.SelectContext(ctx, &deps, `SELECT * FROM dependencies WHERE task_id=$1`, taskID)
	if err != nil {
		return nil, apperr.Wrap("DependencyRepository.DependenciesOf", apperr.Internal, err)
	}
	return deps, nil
}

func (r *DependencyRepository) DependentsOf(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	ctx, span := r.Tracer(ctx, "DependencyRepository.DependentsOf")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var ids []uuid.UUID
	err := r.ReadDB.SelectContext(ctx, &ids, `SELECT task_id FROM dependencies WHERE depends_on_task_id=$1`, taskID)
	if err != nil {
		return nil, apperr.Wrap("DependencyRepository.DependentsOf", apperr.Internal, err)
	}
	return ids, nil
}

// WouldCycle reports whether adding the edge taskID -> dependsOn would close
// a cycle in the project's dependency DAG (P2). It loads the project's full
// edge set and does a depth-first search from dependsOn looking for a path
// back to taskID — if one exists, the new edge completes a cycle.
func (r *DependencyRepository) WouldCycle(ctx context.Context, projectID, taskID, dependsOn uuid.UUID) (bool, error) {
	ctx, span := r.Tracer(ctx, "DependencyRepository.WouldCycle")
	defer span.End()

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	type edge struct {
		TaskID    uuid.UUID `db:"task_id"`
		DependsOn uuid.UUID `db:"depends_on_task_id"`
	}
	var edges []edge
	err := r.ReadDB.SelectContext(ctx, &edges, `SELECT d.task_id, d.depends_on_task_id FROM dependencies d
		JOIN tasks t ON t.id = d.task_id
		JOIN branches b ON b.id = t.branch_id
		WHERE b.project_id = $1`, projectID)
	if err != nil {
		return false, apperr.Wrap("DependencyRepository.WouldCycle", apperr.Internal, err)
	}

	adjacency := make(map[uuid.UUID][]uuid.UUID, len(edges))
	for _, e := range edges {
		adjacency[e.TaskID] = append(adjacency[e.TaskID], e.DependsOn)
	}
	adjacency[taskID] = append(adjacency[taskID], dependsOn)

	visited := make(map[uuid.UUID]bool)
	var visit func(uuid.UUID) bool
	visit = func(n uuid.UUID) bool {
		if n == taskID {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for _, next := range adjacency[n] {
			if visit(next) {
				return true
			}
		}
		return false
	}
	return visit(dependsOn), nil
}
