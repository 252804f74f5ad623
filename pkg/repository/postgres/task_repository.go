package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

// TaskRepository implements repository.TaskRepository, grounded on the
// teacher's pkg/repository/postgres/task_repository.go: cache-first Get,
// FOR UPDATE row locking ahead of status transitions, retried writes, and
// a cache bust that mirrors the teacher's invalidation key scheme.
type TaskRepository struct {
	*BaseRepository
}

func NewTaskRepository(base *BaseRepository) repository.TaskRepository {
	return &TaskRepository{BaseRepository: base}
}

func (r *TaskRepository) Create(ctx context.Context, t *models.Task) error {
	ctx, span := r.Tracer(ctx, "TaskRepository.Create")
	defer span.End()

	if t.Title == "" {
		return apperr.New("TaskRepository.Create", apperr.Invalid, "title must not be empty")
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = models.TaskTodo
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}

	err := r.RetryWrite(ctx, "TaskRepository.Create", func() error {
		ctx, cancel := r.WithTimeout(ctx)
		defer cancel()
		_, execErr := r.WriteDB.NamedExecContext(ctx, `INSERT INTO tasks
			(id, branch_id, title, description, status, priority, details, estimated_effort,
			 due_date, context_id, completion_summary, assignees, labels, created_at, updated_at)
			VALUES (:id, :branch_id, :title, :description, :status, :priority, :details, :estimated_effort,
			 :due_date, :context_id, :completion_summary, :assignees, :labels, :created_at, :updated_at)`, t)
		return execErr
	})
	if err != nil {
		return ClassifyConstraint("TaskRepository.Create", err)
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	ctx, span := r.Tracer(ctx, "TaskRepository.Get")
	defer span.End()

	cacheKey := fmt.Sprintf("task:%s", id)
	var t models.Task
	if err := r.Cache.Get(ctx, cacheKey, &t); err == nil {
		return &t, nil
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	if err := r.ReadDB.GetContext(ctx, &t, `SELECT * FROM tasks WHERE id=$1`, id); err != nil {
		return nil, ClassifyNotFound("TaskRepository.Get", err)
	}
	if err := r.loadDependencies(ctx, &t); err != nil {
		return nil, err
	}
	_ = r.Cache.Set(ctx, cacheKey, &t, 2*time.Minute)
	return &t, nil
}

// GetForUpdate takes a row lock ahead of a status transition, mirroring the
// teacher's GetForUpdate used before optimistic-conflict-prone writes.
func (r *TaskRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	ctx, span := r.Tracer(ctx, "TaskRepository.GetForUpdate")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var t models.Task
	err := r.WriteDB.GetContext(ctx, &t, `SELECT * FROM tasks WHERE id=$1 FOR UPDATE`, id)
	if err != nil {
		return nil, ClassifyNotFound("TaskRepository.GetForUpdate", err)
	}
	if err := r.loadDependencies(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepository) loadDependencies(ctx context.Context, t *models.Task) error {
	var rows []uuid.UUID
	if err := r.ReadDB.SelectContext(ctx, &rows, `SELECT depends_on_task_id FROM dependencies WHERE task_id=$1`, t.ID); err != nil {
		return apperr.Wrap("TaskRepository.loadDependencies", apperr.Internal, err)
	}
	t.Dependencies = models.NewUUIDSet(rows...)
	return nil
}

func (r *TaskRepository) List(ctx context.Context, filter repository.TaskFilter) ([]*models.Task, error) {
	ctx, span := r.Tracer(ctx, "TaskRepository.List")
	defer span.End()

	var conds []string
	var args []interface{}
	argN := 1
	add := func(cond string, val interface{}) {
		conds = append(conds, fmt.Sprintf(cond, argN))
		args = append(args, val)
		argN++
	}

	if filter.BranchID != nil {
		add("branch_id = $%d", *filter.BranchID)
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, s)
			argN++
		}
		conds = append(conds, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priority) > 0 {
		placeholders := make([]string, len(filter.Priority))
		for i, p := range filter.Priority {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, p)
			argN++
		}
		conds = append(conds, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Label != "" {
		add("$%d = ANY(labels)", filter.Label)
	}
	if filter.Assignee != "" {
		add("$%d = ANY(assignees)", filter.Assignee)
	}
	if filter.DueBefore != nil {
		add("due_date < $%d", *filter.DueBefore)
	}
	if filter.DueAfter != nil {
		add("due_date > $%d", *filter.DueAfter)
	}

	query := "SELECT * FROM tasks"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var tasks []*models.Task
	if err := r.ReadDB.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, apperr.Wrap("TaskRepository.List", apperr.Internal, err)
	}
	for _, t := range tasks {
		if err := r.loadDependencies(ctx, t); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (r *TaskRepository) Update(ctx context.Context, t *models.Task) error {
	ctx, span := r.Tracer(ctx, "TaskRepository.Update")
	defer span.End()
	t.UpdatedAt = time.Now()

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.NamedExecContext(ctx, `UPDATE tasks SET title=:title, description=:description,
		status=:status, priority=:priority, details=:details, estimated_effort=:estimated_effort,
		due_date=:due_date, context_id=:context_id, completion_summary=:completion_summary,
		assignees=:assignees, labels=:labels, updated_at=:updated_at WHERE id=:id`, t)
	if err != nil {
		return apperr.Wrap("TaskRepository.Update", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("TaskRepository.Update", apperr.NotFound, "task not found")
	}
	_ = r.Cache.Delete(ctx, fmt.Sprintf("task:%s", t.ID))
	return nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus) error {
	ctx, span := r.Tracer(ctx, "TaskRepository.UpdateStatus")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.ExecContext(ctx, `UPDATE tasks SET status=$1, updated_at=$2 WHERE id=$3`, status, time.Now(), id)
	if err != nil {
		return apperr.Wrap("TaskRepository.UpdateStatus", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("TaskRepository.UpdateStatus", apperr.NotFound, "task not found")
	}
	_ = r.Cache.Delete(ctx, fmt.Sprintf("task:%s", id))
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := r.Tracer(ctx, "TaskRepository.Delete")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return apperr.Wrap("TaskRepository.Delete", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("TaskRepository.Delete", apperr.NotFound, "task not found")
	}
	_ = r.Cache.Delete(ctx, fmt.Sprintf("task:%s", id))
	return nil
}
