package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

// ProjectRepository implements repository.ProjectRepository.
type ProjectRepository struct {
	*BaseRepository
}

// NewProjectRepository creates a production ProjectRepository.
func NewProjectRepository(base *BaseRepository) repository.ProjectRepository {
	return &ProjectRepository{BaseRepository: base}
}

func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) error {
	ctx, span := r.Tracer(ctx, "ProjectRepository.Create")
	defer span.End()

	if p.Name == "" {
		return apperr.New("ProjectRepository.Create", apperr.Invalid, "name must not be empty")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = models.ProjectActive
	}

	raw, err := json.Marshal(p.Metadata)
	if err != nil {
		return apperr.Wrap("ProjectRepository.Create", apperr.Internal, err)
	}
	p.MetadataRaw = raw

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	query := `INSERT INTO projects (id, name, description, status, user_id, metadata, created_at, updated_at)
		VALUES (:id, :name, :description, :status, :user_id, :metadata, :created_at, :updated_at)`
	stmt, err := r.Prepared(ctx, "create_project", query)
	if err != nil {
		return apperr.Wrap("ProjectRepository.Create", apperr.Internal, err)
	}
	if _, err := stmt.ExecContext(ctx, p); err != nil {
		return ClassifyConstraint("ProjectRepository.Create", err)
	}
	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	ctx, span := r.Tracer(ctx, "ProjectRepository.Get")
	defer span.End()

	cacheKey := fmt.Sprintf("project:%s", id)
	var p models.Project
	if err := r.Cache.Get(ctx, cacheKey, &p); err == nil {
		return &p, nil
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	err := r.ReadDB.GetContext(ctx, &p, `SELECT id, name, description, status, user_id, metadata, created_at, updated_at
		FROM projects WHERE id = $1`, id)
	if err != nil {
		return nil, ClassifyNotFound("ProjectRepository.Get", err)
	}
	_ = json.Unmarshal(p.MetadataRaw, &p.Metadata)
	_ = r.Cache.Set(ctx, cacheKey, &p, 5*time.Minute)
	return &p, nil
}

func (r *ProjectRepository) List(ctx context.Context, userID string) ([]*models.Project, error) {
	ctx, span := r.Tracer(ctx, "ProjectRepository.List")
	defer span.End()

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var projects []*models.Project
	err := r.ReadDB.SelectContext(ctx, &projects, `SELECT id, name, description, status, user_id, metadata, created_at, updated_at
		FROM projects WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, apperr.Wrap("ProjectRepository.List", apperr.Internal, err)
	}
	return projects, nil
}

func (r *ProjectRepository) Update(ctx context.Context, p *models.Project) error {
	ctx, span := r.Tracer(ctx, "ProjectRepository.Update")
	defer span.End()

	p.UpdatedAt = time.Now()
	raw, err := json.Marshal(p.Metadata)
	if err != nil {
		return apperr.Wrap("ProjectRepository.Update", apperr.Internal, err)
	}
	p.MetadataRaw = raw

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.NamedExecContext(ctx, `UPDATE projects SET name=:name, description=:description,
		status=:status, metadata=:metadata, updated_at=:updated_at WHERE id=:id`, p)
	if err != nil {
		return apperr.Wrap("ProjectRepository.Update", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("ProjectRepository.Update", apperr.NotFound, "project not found")
	}
	_ = r.Cache.Delete(ctx, fmt.Sprintf("project:%s", p.ID))
	return nil
}

func (r *ProjectRepository) Archive(ctx context.Context, id uuid.UUID) error {
	ctx, span := r.Tracer(ctx, "ProjectRepository.Archive")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.ExecContext(ctx, `UPDATE projects SET status=$1, updated_at=$2 WHERE id=$3`,
		models.ProjectArchived, time.Now(), id)
	if err != nil {
		return apperr.Wrap("ProjectRepository.Archive", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("ProjectRepository.Archive", apperr.NotFound, "project not found")
	}
	_ = r.Cache.Delete(ctx, fmt.Sprintf("project:%s", id))
	return nil
}

func (r *ProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := r.Tracer(ctx, "ProjectRepository.Delete")
	defer span.End()

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var branchCount int
	if err := r.ReadDB.GetContext(ctx, &branchCount, `SELECT count(*) FROM branches WHERE project_id=$1`, id); err != nil {
		return apperr.Wrap("ProjectRepository.Delete", apperr.Internal, err)
	}
	if branchCount > 0 {
		return apperr.New("ProjectRepository.Delete", apperr.Conflict, "project has branches; delete them first or use cascade").
			WithDetails(map[string]any{"branch_count": branchCount})
	}

	res, err := r.WriteDB.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, id)
	if err != nil {
		return apperr.Wrap("ProjectRepository.Delete", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("ProjectRepository.Delete", apperr.NotFound, "project not found")
	}
	_ = r.Cache.Delete(ctx, fmt.Sprintf("project:%s", id))
	return nil
}
