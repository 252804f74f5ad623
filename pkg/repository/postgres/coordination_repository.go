package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

// CoordinationRepository implements repository.CoordinationRepository:
// handoffs, conflicts, and inter-agent messages (C5's supporting tables).
type CoordinationRepository struct {
	*BaseRepository
}

func NewCoordinationRepository(base *BaseRepository) repository.CoordinationRepository {
	return &CoordinationRepository{BaseRepository: base}
}

func (r *CoordinationRepository) CreateHandoff(ctx context.Context, h *models.WorkHandoff) error {
	ctx, span := r.Tracer(ctx, "CoordinationRepository.CreateHandoff")
	defer span.End()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	now := time.Now()
	h.CreatedAt, h.UpdatedAt = now, now
	if h.Status == "" {
		h.Status = models.HandoffPending
	}
	raw, err := json.Marshal(h.Data)
	if err != nil {
		return apperr.Wrap("CoordinationRepository.CreateHandoff", apperr.Internal, err)
	}
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err = r.WriteDB.ExecContext(ctx, `INSERT INTO work_handoffs
		(id, task_id, from_agent, to_agent, reason, data, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		h.ID, h.TaskID, h.FromAgent, h.ToAgent, h.Reason, raw, h.Status, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return apperr.Wrap("CoordinationRepository.CreateHandoff", apperr.Internal, err)
	}
	return nil
}

func (r *CoordinationRepository) GetHandoff(ctx context.Context, id uuid.UUID) (*models.WorkHandoff, error) {
	ctx, span := r.Tracer(ctx, "CoordinationRepository.GetHandoff")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	var row struct {
		models.WorkHandoff
		DataRaw []byte `db:"data"`
	}
	err := r.ReadDB.GetContext(ctx, &row, `SELECT id, task_id, from_agent, to_agent, reason, data, status, created_at, updated_at
		FROM work_handoffs WHERE id=$1`, id)
	if err != nil {
		return nil, ClassifyNotFound("CoordinationRepository.GetHandoff", err)
	}
	h := row.WorkHandoff
	_ = json.Unmarshal(row.DataRaw, &h.Data)
	return &h, nil
}

func (r *CoordinationRepository) UpdateHandoffStatus(ctx context.Context, id uuid.UUID, status models.HandoffStatus) error {
	ctx, span := r.Tracer(ctx, "CoordinationRepository.UpdateHandoffStatus")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.ExecContext(ctx, `UPDATE work_handoffs SET status=$1, updated_at=$2 WHERE id=$3`, status, time.Now(), id)
	if err != nil {
		return apperr.Wrap("CoordinationRepository.UpdateHandoffStatus", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("CoordinationRepository.UpdateHandoffStatus", apperr.NotFound, "handoff not found")
	}
	return nil
}

func (r *CoordinationRepository) CreateConflict(ctx context.Context, c *models.ConflictRecord) error {
	ctx, span := r.Tracer(ctx, "CoordinationRepository.CreateConflict")
	defer span.End()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err := r.WriteDB.NamedExecContext(ctx, `INSERT INTO conflict_records
		(id, task_id, type, agents, details, is_resolved, strategy, created_at, resolved_at)
		VALUES (:id, :task_id, :type, :agents, :details, :is_resolved, :strategy, :created_at, :resolved_at)`, c)
	if err != nil {
		return apperr.Wrap("CoordinationRepository.CreateConflict", apperr.Internal, err)
	}
	return nil
}

func (r *CoordinationRepository) ResolveConflict(ctx context.Context, id uuid.UUID, strategy string) error {
	ctx, span := r.Tracer(ctx, "CoordinationRepository.ResolveConflict")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	now := time.Now()
	res, err := r.WriteDB.ExecContext(ctx, `UPDATE conflict_records SET is_resolved=true, strategy=$1, resolved_at=$2 WHERE id=$3`, strategy, now, id)
	if err != nil {
		return apperr.Wrap("CoordinationRepository.ResolveConflict", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("CoordinationRepository.ResolveConflict", apperr.NotFound, "conflict not found")
	}
	return nil
}

func (r *CoordinationRepository) GetConflict(ctx context.Context, id uuid.UUID) (*models.ConflictRecord, error) {
	ctx, span := r.Tracer(ctx, "CoordinationRepository.GetConflict")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var c models.ConflictRecord
	err := r.ReadDB.GetContext(ctx, &c, `SELECT * FROM conflict_records WHERE id=$1`, id)
	if err != nil {
		return nil, ClassifyNotFound("CoordinationRepository.GetConflict", err)
	}
	return &c, nil
}

func (r *CoordinationRepository) CreateMessage(ctx context.Context, m *models.AgentCommunication) error {
	ctx, span := r.Tracer(ctx, "CoordinationRepository.CreateMessage")
	defer span.End()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Priority == "" {
		m.Priority = models.PriorityMedium
	}
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err := r.WriteDB.NamedExecContext(ctx, `INSERT INTO agent_communications
		(id, from_agent, to_agents, task_id, type, content, priority, created_at)
		VALUES (:id, :from_agent, :to_agents, :task_id, :type, :content, :priority, :created_at)`, m)
	if err != nil {
		return apperr.Wrap("CoordinationRepository.CreateMessage", apperr.Internal, err)
	}
	return nil
}

func (r *CoordinationRepository) ListMessagesFor(ctx context.Context, agent string, limit int) ([]*models.AgentCommunication, error) {
	ctx, span := r.Tracer(ctx, "CoordinationRepository.ListMessagesFor")
	defer span.End()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var messages []*models.AgentCommunication
	err := r.ReadDB.SelectContext(ctx, &messages, `SELECT * FROM agent_communications
		WHERE $1 = ANY(to_agents) OR from_agent = $1 ORDER BY created_at DESC LIMIT $2`, agent, limit)
	if err != nil {
		return nil, apperr.Wrap("CoordinationRepository.ListMessagesFor", apperr.Internal, err)
	}
	return messages, nil
}
