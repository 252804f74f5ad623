package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

// BranchRepository implements repository.BranchRepository. task_count and
// completed_task_count are kept current by the trg_tasks_branch_count
// trigger of migration 000002; RecomputeCounters recomputes them, plus the
// derived branch status, on demand.
type BranchRepository struct {
	*BaseRepository
}

func NewBranchRepository(base *BaseRepository) repository.BranchRepository {
	return &BranchRepository{BaseRepository: base}
}

func (r *BranchRepository) Create(ctx context.Context, b *models.Branch) error {
	ctx, span := r.Tracer(ctx, "BranchRepository.Create")
	defer span.End()

	if b.Name == "" {
		return apperr.New("BranchRepository.Create", apperr.Invalid, "name must not be empty")
	}

	var exists bool
	ctx2, cancel := r.WithTimeout(ctx)
	err := r.ReadDB.GetContext(ctx2, &exists, `SELECT EXISTS(SELECT 1 FROM projects WHERE id=$1)`, b.ProjectID)
	cancel()
	if err != nil {
		return apperr.Wrap("BranchRepository.Create", apperr.Internal, err)
	}
	if !exists {
		return apperr.New("BranchRepository.Create", apperr.NotFound, "project not found")
	}

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.Status == "" {
		b.Status = models.BranchTodo
	}
	if b.Priority == "" {
		b.Priority = models.PriorityMedium
	}

	ctx3, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err = r.WriteDB.NamedExecContext(ctx3, `INSERT INTO branches
		(id, project_id, name, description, assigned_agent_id, priority, status, task_count, completed_task_count, created_at, updated_at)
		VALUES (:id, :project_id, :name, :description, :assigned_agent_id, :priority, :status, 0, 0, :created_at, :updated_at)`, b)
	if err != nil {
		return ClassifyConstraint("BranchRepository.Create", err)
	}
	return nil
}

func (r *BranchRepository) Get(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	ctx, span := r.Tracer(ctx, "BranchRepository.Get")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var b models.Branch
	err := r.ReadDB.GetContext(ctx, &b, `SELECT * FROM branches WHERE id=$1`, id)
	if err != nil {
		return nil, ClassifyNotFound("BranchRepository.Get", err)
	}
	return &b, nil
}

func (r *BranchRepository) GetByName(ctx context.Context, projectID uuid.UUID, name string) (*models.Branch, error) {
	ctx, span := r.Tracer(ctx, "BranchRepository.GetByName")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var b models.Branch
	err := r.ReadDB.GetContext(ctx, &b, `SELECT * FROM branches WHERE project_id=$1 AND name=$2`, projectID, name)
	if err != nil {
		return nil, ClassifyNotFound("BranchRepository.GetByName", err)
	}
	return &b, nil
}

func (r *BranchRepository) List(ctx context.Context, projectID uuid.UUID) ([]*models.Branch, error) {
	ctx, span := r.Tracer(ctx, "BranchRepository.List")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var branches []*models.Branch
	err := r.ReadDB.SelectContext(ctx, &branches, `SELECT * FROM branches WHERE project_id=$1 ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, apperr.Wrap("BranchRepository.List", apperr.Internal, err)
	}
	return branches, nil
}

func (r *BranchRepository) Update(ctx context.Context, b *models.Branch) error {
	ctx, span := r.Tracer(ctx, "BranchRepository.Update")
	defer span.End()
	b.UpdatedAt = time.Now()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.NamedExecContext(ctx, `UPDATE branches SET name=:name, description=:description,
		assigned_agent_id=:assigned_agent_id, priority=:priority, status=:status, updated_at=:updated_at WHERE id=:id`, b)
	if err != nil {
		return apperr.Wrap("BranchRepository.Update", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("BranchRepository.Update", apperr.NotFound, "branch not found")
	}
	return nil
}

func (r *BranchRepository) Delete(ctx context.Context, projectID, branchID uuid.UUID) (int, error) {
	ctx, span := r.Tracer(ctx, "BranchRepository.Delete")
	defer span.End()

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var name string
	if err := r.ReadDB.GetContext(ctx, &name, `SELECT name FROM branches WHERE id=$1 AND project_id=$2`, branchID, projectID); err != nil {
		return 0, ClassifyNotFound("BranchRepository.Delete", err)
	}
	if name == models.MainBranchName {
		return 0, apperr.New("BranchRepository.Delete", apperr.Forbidden, "the main branch cannot be deleted")
	}

	tx, err := r.WriteDB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperr.Wrap("BranchRepository.Delete", apperr.Internal, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE branch_id=$1`, branchID)
	if err != nil {
		return 0, apperr.Wrap("BranchRepository.Delete", apperr.Internal, err)
	}
	deleted, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM branches WHERE id=$1`, branchID); err != nil {
		return 0, apperr.Wrap("BranchRepository.Delete", apperr.Internal, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, apperr.Wrap("BranchRepository.Delete", apperr.Internal, err)
	}
	return int(deleted), nil
}

// RecomputeCounters recalculates task_count, completed_task_count, and the
// derived branch.status transitions of spec.md §4.4 from the authoritative
// tasks table. It runs its own queries outside any caller's transaction;
// the trg_tasks_branch_count trigger maintains the two counters but not
// status.
func (r *BranchRepository) RecomputeCounters(ctx context.Context, branchID uuid.UUID) error {
	ctx, span := r.Tracer(ctx, "BranchRepository.RecomputeCounters")
	defer span.End()

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var total, completed, inProgress, blocked int
	if err := r.ReadDB.GetContext(ctx, &total, `SELECT count(*) FROM tasks WHERE branch_id=$1`, branchID); err != nil {
		return apperr.Wrap("BranchRepository.RecomputeCounters", apperr.Internal, err)
	}
	if err := r.ReadDB.GetContext(ctx, &completed, `SELECT count(*) FROM tasks WHERE branch_id=$1 AND status=$2`, branchID, models.TaskDone); err != nil {
		return apperr.Wrap("BranchRepository.RecomputeCounters", apperr.Internal, err)
	}
	if err := r.ReadDB.GetContext(ctx, &inProgress, `SELECT count(*) FROM tasks WHERE branch_id=$1 AND status=$2`, branchID, models.TaskInProgress); err != nil {
		return apperr.Wrap("BranchRepository.RecomputeCounters", apperr.Internal, err)
	}
	if err := r.ReadDB.GetContext(ctx, &blocked, `SELECT count(*) FROM tasks WHERE branch_id=$1 AND status=$2`, branchID, models.TaskBlocked); err != nil {
		return apperr.Wrap("BranchRepository.RecomputeCounters", apperr.Internal, err)
	}

	status := deriveBranchStatus(total, completed, inProgress, blocked)

	res, err := r.WriteDB.ExecContext(ctx, `UPDATE branches SET task_count=$1, completed_task_count=$2, status=$3, updated_at=$4 WHERE id=$5`,
		total, completed, status, time.Now(), branchID)
	if err != nil {
		return apperr.Wrap("BranchRepository.RecomputeCounters", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("BranchRepository.RecomputeCounters", apperr.NotFound, "branch not found")
	}
	_ = r.Cache.Delete(ctx, fmt.Sprintf("branch:%s", branchID))
	return nil
}

// deriveBranchStatus implements the branch aggregation rules of spec.md §4.4.
func deriveBranchStatus(total, completed, inProgress, blocked int) models.BranchStatus {
	switch {
	case total == 0:
		return models.BranchTodo
	case completed == total:
		return models.BranchDone
	case blocked > 0 && inProgress == 0:
		return models.BranchBlocked
	default:
		return models.BranchActive
	}
}
