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

// AuditRepository implements repository.AuditRepository, the supplemented
// compliance trail SPEC_FULL.md §4 adds on top of the distilled spec. It is
// append-only: no Update or Delete method exists on the interface.
type AuditRepository struct {
	*BaseRepository
}

func NewAuditRepository(base *BaseRepository) repository.AuditRepository {
	return &AuditRepository{BaseRepository: base}
}

type auditRow struct {
	ID         uuid.UUID `db:"id"`
	RequestID  string    `db:"request_id"`
	Action     string    `db:"action"`
	Actor      string    `db:"actor"`
	EntityType string    `db:"entity_type"`
	EntityID   string    `db:"entity_id"`
	Before     []byte    `db:"before"`
	After      []byte    `db:"after"`
	At         time.Time `db:"at"`
}

func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	ctx, span := r.Tracer(ctx, "AuditRepository.Append")
	defer span.End()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	before, err := json.Marshal(entry.Before)
	if err != nil {
		return apperr.Wrap("AuditRepository.Append", apperr.Internal, err)
	}
	after, err := json.Marshal(entry.After)
	if err != nil {
		return apperr.Wrap("AuditRepository.Append", apperr.Internal, err)
	}

	row := auditRow{
		ID: entry.ID, RequestID: entry.RequestID, Action: entry.Action, Actor: entry.Actor,
		EntityType: entry.EntityType, EntityID: entry.EntityID, Before: before, After: after, At: entry.At,
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err = r.WriteDB.NamedExecContext(ctx, `INSERT INTO audit_entries
		(id, request_id, action, actor, entity_type, entity_id, before, after, at)
		VALUES (:id, :request_id, :action, :actor, :entity_type, :entity_id, :before, :after, :at)`, row)
	if err != nil {
		return apperr.Wrap("AuditRepository.Append", apperr.Internal, err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditEntry, error) {
	ctx, span := r.Tracer(ctx, "AuditRepository.List")
	defer span.End()
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var rows []auditRow
	err := r.ReadDB.SelectContext(ctx, &rows, `SELECT id, request_id, action, actor, entity_type, entity_id, before, after, at
		FROM audit_entries WHERE entity_type=$1 AND entity_id=$2 ORDER BY at DESC LIMIT $3`, entityType, entityID, limit)
	if err != nil {
		return nil, apperr.Wrap("AuditRepository.List", apperr.Internal, err)
	}

	entries := make([]*models.AuditEntry, 0, len(rows))
	for _, row := range rows {
		e := &models.AuditEntry{
			ID: row.ID, RequestID: row.RequestID, Action: row.Action, Actor: row.Actor,
			EntityType: row.EntityType, EntityID: row.EntityID, At: row.At,
		}
		_ = json.Unmarshal(row.Before, &e.Before)
		_ = json.Unmarshal(row.After, &e.After)
		entries = append(entries, e)
	}
	return entries, nil
}
