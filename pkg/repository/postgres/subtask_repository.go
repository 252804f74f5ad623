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

// SubtaskRepository implements repository.SubtaskRepository. Subtask rows
// back the parent-task progress aggregation spec.md §4.1 assigns to the
// scheduler, so completion timestamps are stamped here rather than left to
// the caller.
type SubtaskRepository struct {
	*BaseRepository
}

func NewSubtaskRepository(base *BaseRepository) repository.SubtaskRepository {
	return &SubtaskRepository{BaseRepository: base}
}

func (r *SubtaskRepository) Create(ctx context.Context, s *models.Subtask) error {
	ctx, span := r.Tracer(ctx, "SubtaskRepository.Create")
	defer span.End()

	if s.Title == "" {
		return apperr.New("SubtaskRepository.Create", apperr.Invalid, "title must not be empty")
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	if s.Status == "" {
		s.Status = models.TaskTodo
	}
	if s.Priority == "" {
		s.Priority = models.PriorityMedium
	}

	var exists bool
	ctx2, cancel := r.WithTimeout(ctx)
	err := r.ReadDB.GetContext(ctx2, &exists, `SELECT EXISTS(SELECT 1 FROM tasks WHERE id=$1)`, s.TaskID)
	cancel()
	if err != nil {
		return apperr.Wrap("SubtaskRepository.Create", apperr.Internal, err)
	}
	if !exists {
		return apperr.New("SubtaskRepository.Create", apperr.NotFound, "parent task not found")
	}

	ctx3, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err = r.WriteDB.NamedExecContext(ctx3, `INSERT INTO subtasks
		(id, task_id, title, description, status, priority, assignees, estimated_effort,
		 progress_percentage, progress_notes, blockers, completion_summary, current_session_summary,
		 impact_on_parent, created_at, updated_at)
		VALUES (:id, :task_id, :title, :description, :status, :priority, :assignees, :estimated_effort,
		 :progress_percentage, :progress_notes, :blockers, :completion_summary, :current_session_summary,
		 :impact_on_parent, :created_at, :updated_at)`, s)
	if err != nil {
		return ClassifyConstraint("SubtaskRepository.Create", err)
	}
	return nil
}

func (r *SubtaskRepository) Get(ctx context.Context, id uuid.UUID) (*models.Subtask, error) {
	ctx, span := r.Tracer(ctx, "SubtaskRepository.Get")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var s models.Subtask
	if err := r.ReadDB.GetContext(ctx, &s, `SELECT * FROM subtasks WHERE id=$1`, id); err != nil {
		return nil, ClassifyNotFound("SubtaskRepository.Get", err)
	}
	return &s, nil
}

func (r *SubtaskRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Subtask, error) {
	ctx, span := r.Tracer(ctx, "SubtaskRepository.ListByTask")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var subtasks []*models.Subtask
	err := r.ReadDB.SelectContext(ctx, &subtasks, `SELECT * FROM subtasks WHERE task_id=$1 ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, apperr.Wrap("SubtaskRepository.ListByTask", apperr.Internal, err)
	}
	return subtasks, nil
}

func (r *SubtaskRepository) Update(ctx context.Context, s *models.Subtask) error {
	ctx, span := r.Tracer(ctx, "SubtaskRepository.Update")
	defer span.End()
	s.UpdatedAt = time.Now()
	if s.Status == models.TaskDone && s.CompletedAt == nil {
		now := time.Now()
		s.CompletedAt = &now
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.NamedExecContext(ctx, `UPDATE subtasks SET title=:title, description=:description,
		status=:status, priority=:priority, assignees=:assignees, estimated_effort=:estimated_effort,
		progress_percentage=:progress_percentage, progress_notes=:progress_notes, blockers=:blockers,
		completion_summary=:completion_summary, current_session_summary=:current_session_summary,
		impact_on_parent=:impact_on_parent, updated_at=:updated_at, completed_at=:completed_at WHERE id=:id`, s)
	if err != nil {
		return apperr.Wrap("SubtaskRepository.Update", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("SubtaskRepository.Update", apperr.NotFound, "subtask not found")
	}
	_ = r.Cache.Delete(ctx, fmt.Sprintf("subtask:%s", s.ID))
	return nil
}

func (r *SubtaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := r.Tracer(ctx, "SubtaskRepository.Delete")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.ExecContext(ctx, `DELETE FROM subtasks WHERE id=$1`, id)
	if err != nil {
		return apperr.Wrap("SubtaskRepository.Delete", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("SubtaskRepository.Delete", apperr.NotFound, "subtask not found")
	}
	return nil
}
