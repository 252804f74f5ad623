package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

// AgentRepository implements repository.AgentRepository, grounded on the
// teacher's pkg/repository/agent package (Core+API method sets on one
// struct, driver-aware table access). AdjustWorkload keeps P6's capacity
// bound race-free with a single guarded UPDATE rather than a transaction.
type AgentRepository struct {
	*BaseRepository
}

func NewAgentRepository(base *BaseRepository) repository.AgentRepository {
	return &AgentRepository{BaseRepository: base}
}

func (r *AgentRepository) Create(ctx context.Context, a *models.Agent) error {
	ctx, span := r.Tracer(ctx, "AgentRepository.Create")
	defer span.End()

	if a.ID == "" || a.Name == "" {
		return apperr.New("AgentRepository.Create", apperr.Invalid, "id and name must not be empty")
	}
	if a.MaxConcurrentTasks <= 0 {
		a.MaxConcurrentTasks = 1
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.Status == "" {
		a.Status = models.AgentAvailable
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err := r.WriteDB.NamedExecContext(ctx, `INSERT INTO agents
		(id, project_id, name, description, call_agent, capabilities, specializations, status,
		 max_concurrent_tasks, current_workload, completed_tasks, success_rate, created_at, updated_at)
		VALUES (:id, :project_id, :name, :description, :call_agent, :capabilities, :specializations, :status,
		 :max_concurrent_tasks, 0, 0, 0, :created_at, :updated_at)`, a)
	if err != nil {
		return ClassifyConstraint("AgentRepository.Create", err)
	}
	return nil
}

func (r *AgentRepository) Get(ctx context.Context, projectID uuid.UUID, id string) (*models.Agent, error) {
	ctx, span := r.Tracer(ctx, "AgentRepository.Get")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var a models.Agent
	err := r.ReadDB.GetContext(ctx, &a, `SELECT * FROM agents WHERE project_id=$1 AND id=$2`, projectID, id)
	if err != nil {
		return nil, ClassifyNotFound("AgentRepository.Get", err)
	}
	return &a, nil
}

func (r *AgentRepository) List(ctx context.Context, projectID uuid.UUID) ([]*models.Agent, error) {
	ctx, span := r.Tracer(ctx, "AgentRepository.List")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var agents []*models.Agent
	err := r.ReadDB.SelectContext(ctx, &agents, `SELECT * FROM agents WHERE project_id=$1 ORDER BY name ASC`, projectID)
	if err != nil {
		return nil, apperr.Wrap("AgentRepository.List", apperr.Internal, err)
	}
	return agents, nil
}

func (r *AgentRepository) Update(ctx context.Context, a *models.Agent) error {
	ctx, span := r.Tracer(ctx, "AgentRepository.Update")
	defer span.End()
	a.UpdatedAt = time.Now()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.NamedExecContext(ctx, `UPDATE agents SET name=:name, description=:description,
		call_agent=:call_agent, capabilities=:capabilities, specializations=:specializations, status=:status,
		max_concurrent_tasks=:max_concurrent_tasks, success_rate=:success_rate, updated_at=:updated_at
		WHERE id=:id AND project_id=:project_id`, a)
	if err != nil {
		return apperr.Wrap("AgentRepository.Update", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("AgentRepository.Update", apperr.NotFound, "agent not found")
	}
	return nil
}

func (r *AgentRepository) Delete(ctx context.Context, projectID uuid.UUID, id string) error {
	ctx, span := r.Tracer(ctx, "AgentRepository.Delete")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.ExecContext(ctx, `DELETE FROM agents WHERE project_id=$1 AND id=$2`, projectID, id)
	if err != nil {
		return apperr.Wrap("AgentRepository.Delete", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("AgentRepository.Delete", apperr.NotFound, "agent not found")
	}
	return nil
}

// AdjustWorkload changes current_workload by delta inside a single UPDATE
// guarded by a capacity-respecting WHERE clause, so the check-then-set race
// the teacher's plain read-modify-write would have is closed without an
// explicit row lock (P6).
func (r *AgentRepository) AdjustWorkload(ctx context.Context, projectID uuid.UUID, id string, delta int) error {
	ctx, span := r.Tracer(ctx, "AgentRepository.AdjustWorkload")
	defer span.End()

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	if delta >= 0 {
		res, err := r.WriteDB.ExecContext(ctx, `UPDATE agents SET current_workload = current_workload + $1, updated_at=$2
			WHERE project_id=$3 AND id=$4 AND current_workload + $1 <= max_concurrent_tasks`,
			delta, time.Now(), projectID, id)
		if err != nil {
			return apperr.Wrap("AgentRepository.AdjustWorkload", apperr.Internal, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, getErr := r.Get(ctx, projectID, id); getErr != nil {
				return getErr
			}
			return apperr.New("AgentRepository.AdjustWorkload", apperr.Capacity, "agent is at max_concurrent_tasks")
		}
		return nil
	}

	res, err := r.WriteDB.ExecContext(ctx, `UPDATE agents SET current_workload = current_workload + $1, updated_at=$2
		WHERE project_id=$3 AND id=$4 AND current_workload + $1 >= 0`,
		delta, time.Now(), projectID, id)
	if err != nil {
		return apperr.Wrap("AgentRepository.AdjustWorkload", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := r.Get(ctx, projectID, id); getErr != nil {
			return getErr
		}
		return apperr.New("AgentRepository.AdjustWorkload", apperr.Invalid, "workload cannot go below zero")
	}
	return nil
}

func (r *AgentRepository) AssignToBranch(ctx context.Context, a models.AgentBranchAssignment) error {
	ctx, span := r.Tracer(ctx, "AgentRepository.AssignToBranch")
	defer span.End()
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now()
	}
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err := r.WriteDB.NamedExecContext(ctx, `INSERT INTO agent_branch_assignments (project_id, agent_id, branch_id, assigned_at)
		VALUES (:project_id, :agent_id, :branch_id, :assigned_at)
		ON CONFLICT (project_id, agent_id, branch_id) DO NOTHING`, a)
	if err != nil {
		return ClassifyConstraint("AgentRepository.AssignToBranch", err)
	}
	return nil
}

func (r *AgentRepository) BranchesOf(ctx context.Context, projectID uuid.UUID, agentID string) ([]uuid.UUID, error) {
	ctx, span := r.Tracer(ctx, "AgentRepository.BranchesOf")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var ids []uuid.UUID
	err := r.ReadDB.SelectContext(ctx, &ids, `SELECT branch_id FROM agent_branch_assignments WHERE project_id=$1 AND agent_id=$2`, projectID, agentID)
	if err != nil {
		return nil, apperr.Wrap("AgentRepository.BranchesOf", apperr.Internal, err)
	}
	return ids, nil
}

func (r *AgentRepository) AgentsOf(ctx context.Context, projectID, branchID uuid.UUID) ([]string, error) {
	ctx, span := r.Tracer(ctx, "AgentRepository.AgentsOf")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var ids []string
	err := r.ReadDB.SelectContext(ctx, &ids, `SELECT agent_id FROM agent_branch_assignments WHERE project_id=$1 AND branch_id=$2`, projectID, branchID)
	if err != nil {
		return nil, apperr.Wrap("AgentRepository.AgentsOf", apperr.Internal, err)
	}
	return ids, nil
}
