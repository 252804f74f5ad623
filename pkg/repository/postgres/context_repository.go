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

// ContextRepository implements repository.ContextRepository: raw
// persistence for the four-tier context records and their append-only
// insight/delegation/propagation logs. The Context Engine (pkg/contextengine)
// owns the inheritance-merge and cache-coherence logic on top of this.
type ContextRepository struct {
	*BaseRepository
}

func NewContextRepository(base *BaseRepository) repository.ContextRepository {
	return &ContextRepository{BaseRepository: base}
}

type contextRecordRow struct {
	ID                  uuid.UUID `db:"id"`
	Level               string    `db:"level"`
	EntityID            string    `db:"entity_id"`
	ParentID            string    `db:"parent_id"`
	Data                []byte    `db:"data"`
	GlobalOverrides     []byte    `db:"global_overrides"`
	LocalOverrides      []byte    `db:"local_overrides"`
	InheritanceDisabled bool      `db:"inheritance_disabled"`
	ForceLocalOnly      bool      `db:"force_local_only"`
	Version             int       `db:"version"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

func rowFromRecord(rec *models.ContextRecord) (contextRecordRow, error) {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return contextRecordRow{}, err
	}
	globalOv, err := json.Marshal(rec.GlobalOverrides.Slice())
	if err != nil {
		return contextRecordRow{}, err
	}
	localOv, err := json.Marshal(rec.LocalOverrides.Slice())
	if err != nil {
		return contextRecordRow{}, err
	}
	return contextRecordRow{
		ID: rec.ID, Level: string(rec.Level), EntityID: rec.EntityID, ParentID: rec.ParentID,
		Data: data, GlobalOverrides: globalOv, LocalOverrides: localOv,
		InheritanceDisabled: rec.InheritanceDisabled, ForceLocalOnly: rec.ForceLocalOnly,
		Version: rec.Version, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
	}, nil
}

func recordFromRow(row contextRecordRow) (*models.ContextRecord, error) {
	rec := &models.ContextRecord{
		ID: row.ID, Level: models.ContextLevel(row.Level), EntityID: row.EntityID, ParentID: row.ParentID,
		InheritanceDisabled: row.InheritanceDisabled, ForceLocalOnly: row.ForceLocalOnly,
		Version: row.Version, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Data, &rec.Data); err != nil {
		return nil, err
	}
	var globalOv, localOv []string
	if len(row.GlobalOverrides) > 0 {
		if err := json.Unmarshal(row.GlobalOverrides, &globalOv); err != nil {
			return nil, err
		}
	}
	if len(row.LocalOverrides) > 0 {
		if err := json.Unmarshal(row.LocalOverrides, &localOv); err != nil {
			return nil, err
		}
	}
	rec.GlobalOverrides = models.NewStringSet(globalOv...)
	rec.LocalOverrides = models.NewStringSet(localOv...)
	return rec, nil
}

func (r *ContextRepository) GetRecord(ctx context.Context, level models.ContextLevel, entityID string) (*models.ContextRecord, error) {
	ctx, span := r.Tracer(ctx, "ContextRepository.GetRecord")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var row contextRecordRow
	err := r.ReadDB.GetContext(ctx, &row, `SELECT * FROM context_records WHERE level=$1 AND entity_id=$2`, level, entityID)
	if err != nil {
		return nil, ClassifyNotFound("ContextRepository.GetRecord", err)
	}
	return recordFromRow(row)
}

func (r *ContextRepository) UpsertRecord(ctx context.Context, rec *models.ContextRecord) error {
	ctx, span := r.Tracer(ctx, "ContextRepository.UpsertRecord")
	defer span.End()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	row, err := rowFromRecord(rec)
	if err != nil {
		return apperr.Wrap("ContextRepository.UpsertRecord", apperr.Internal, err)
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err = r.WriteDB.NamedExecContext(ctx, `INSERT INTO context_records
		(id, level, entity_id, parent_id, data, global_overrides, local_overrides,
		 inheritance_disabled, force_local_only, version, created_at, updated_at)
		VALUES (:id, :level, :entity_id, :parent_id, :data, :global_overrides, :local_overrides,
		 :inheritance_disabled, :force_local_only, :version, :created_at, :updated_at)
		ON CONFLICT (level, entity_id) DO UPDATE SET
			parent_id=EXCLUDED.parent_id, data=EXCLUDED.data, global_overrides=EXCLUDED.global_overrides,
			local_overrides=EXCLUDED.local_overrides, inheritance_disabled=EXCLUDED.inheritance_disabled,
			force_local_only=EXCLUDED.force_local_only, version=EXCLUDED.version, updated_at=EXCLUDED.updated_at`, row)
	if err != nil {
		return apperr.Wrap("ContextRepository.UpsertRecord", apperr.Internal, err)
	}
	return nil
}

// UpdateRecordVersioned implements the optimistic-lock compare-and-swap the
// teacher's UpdateWithVersion applies to tasks, here guarding context
// mutation against the lost-update race spec.md §4.2.2/P3 calls out.
func (r *ContextRepository) UpdateRecordVersioned(ctx context.Context, rec *models.ContextRecord, expectedVersion int) error {
	ctx, span := r.Tracer(ctx, "ContextRepository.UpdateRecordVersioned")
	defer span.End()

	rec.UpdatedAt = time.Now()
	rec.Version = expectedVersion + 1
	row, err := rowFromRecord(rec)
	if err != nil {
		return apperr.Wrap("ContextRepository.UpdateRecordVersioned", apperr.Internal, err)
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	res, err := r.WriteDB.NamedExecContext(ctx, `UPDATE context_records SET
		data=:data, global_overrides=:global_overrides, local_overrides=:local_overrides,
		inheritance_disabled=:inheritance_disabled, force_local_only=:force_local_only,
		version=:version, updated_at=:updated_at
		WHERE level=:level AND entity_id=:entity_id AND version = :version - 1`, row)
	if err != nil {
		return apperr.Wrap("ContextRepository.UpdateRecordVersioned", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("ContextRepository.UpdateRecordVersioned", apperr.VersionConflict,
			"context record was modified concurrently").WithDetails(map[string]any{"expected_version": expectedVersion})
	}
	return nil
}

func (r *ContextRepository) AddInsight(ctx context.Context, insight *models.ContextInsight) error {
	ctx, span := r.Tracer(ctx, "ContextRepository.AddInsight")
	defer span.End()
	if insight.ID == uuid.Nil {
		insight.ID = uuid.New()
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = time.Now()
	}
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err := r.WriteDB.NamedExecContext(ctx, `INSERT INTO context_insights
		(id, context_id, context_level, content, category, importance, confidence, source_agent, source_type,
		 related_task_id, actionable, action_taken, expires_at, accessed_count, last_accessed, created_at)
		VALUES (:id, :context_id, :context_level, :content, :category, :importance, :confidence, :source_agent, :source_type,
		 :related_task_id, :actionable, :action_taken, :expires_at, 0, NULL, :created_at)`, insight)
	if err != nil {
		return apperr.Wrap("ContextRepository.AddInsight", apperr.Internal, err)
	}
	return nil
}

func (r *ContextRepository) ListInsights(ctx context.Context, level models.ContextLevel, entityID string, limit int) ([]*models.ContextInsight, error) {
	ctx, span := r.Tracer(ctx, "ContextRepository.ListInsights")
	defer span.End()
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	var insights []*models.ContextInsight
	err := r.ReadDB.SelectContext(ctx, &insights, `SELECT * FROM context_insights
		WHERE context_level=$1 AND context_id=$2 ORDER BY created_at DESC LIMIT $3`, level, entityID, limit)
	if err != nil {
		return nil, apperr.Wrap("ContextRepository.ListInsights", apperr.Internal, err)
	}
	return insights, nil
}

func (r *ContextRepository) CreateDelegation(ctx context.Context, d *models.ContextDelegation) error {
	ctx, span := r.Tracer(ctx, "ContextRepository.CreateDelegation")
	defer span.End()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.ImplementationStatus == "" {
		d.ImplementationStatus = models.ImplPending
	}

	raw, err := json.Marshal(d.DelegatedData)
	if err != nil {
		return apperr.Wrap("ContextRepository.CreateDelegation", apperr.Internal, err)
	}

	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err = r.WriteDB.ExecContext(ctx, `INSERT INTO context_delegations
		(id, source_level, source_id, target_level, target_id, delegated_data, reason, trigger_type,
		 confidence, auto_delegated, processed, implementation_status, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		d.ID, d.SourceLevel, d.SourceID, d.TargetLevel, d.TargetID, raw, d.Reason, d.TriggerType,
		d.Confidence, d.AutoDelegated, d.Processed, d.ImplementationStatus, d.CreatedBy, d.CreatedAt)
	if err != nil {
		return apperr.Wrap("ContextRepository.CreateDelegation", apperr.Internal, err)
	}
	return nil
}

func (r *ContextRepository) ListPendingDelegations(ctx context.Context, targetLevel models.ContextLevel, targetID string) ([]*models.ContextDelegation, error) {
	ctx, span := r.Tracer(ctx, "ContextRepository.ListPendingDelegations")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()

	type row struct {
		models.ContextDelegation
		DelegatedDataRaw []byte `db:"delegated_data"`
	}
	var rows []row
	err := r.ReadDB.SelectContext(ctx, &rows, `SELECT id, source_level, source_id, target_level, target_id,
		delegated_data, reason, trigger_type, confidence, auto_delegated, processed, approved,
		rejected_reason, impact_assessment, implementation_status, created_by, processed_by, created_at, processed_at
		FROM context_delegations WHERE target_level=$1 AND target_id=$2 AND processed=false
		ORDER BY created_at ASC`, targetLevel, targetID)
	if err != nil {
		return nil, apperr.Wrap("ContextRepository.ListPendingDelegations", apperr.Internal, err)
	}

	out := make([]*models.ContextDelegation, 0, len(rows))
	for _, rr := range rows {
		d := rr.ContextDelegation
		_ = json.Unmarshal(rr.DelegatedDataRaw, &d.DelegatedData)
		out = append(out, &d)
	}
	return out, nil
}

func (r *ContextRepository) MarkDelegationProcessed(ctx context.Context, id uuid.UUID, approved bool, status models.ImplementationStatus, processedBy, rejectedReason string) error {
	ctx, span := r.Tracer(ctx, "ContextRepository.MarkDelegationProcessed")
	defer span.End()
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	now := time.Now()
	res, err := r.WriteDB.ExecContext(ctx, `UPDATE context_delegations SET processed=true, approved=$1,
		implementation_status=$2, processed_by=$3, rejected_reason=$4, processed_at=$5 WHERE id=$6`,
		approved, status, processedBy, rejectedReason, now, id)
	if err != nil {
		return apperr.Wrap("ContextRepository.MarkDelegationProcessed", apperr.Internal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New("ContextRepository.MarkDelegationProcessed", apperr.NotFound, "delegation not found")
	}
	return nil
}

func (r *ContextRepository) RecordPropagation(ctx context.Context, p *models.PropagationRecord) error {
	ctx, span := r.Tracer(ctx, "ContextRepository.RecordPropagation")
	defer span.End()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	ctx, cancel := r.WithTimeout(ctx)
	defer cancel()
	_, err := r.WriteDB.NamedExecContext(ctx, `INSERT INTO propagation_records
		(id, source_level, source_id, change_type, status, duration_ms, created_at, completed_at)
		VALUES (:id, :source_level, :source_id, :change_type, :status, :duration_ms, :created_at, :completed_at)`, p)
	if err != nil {
		return apperr.Wrap("ContextRepository.RecordPropagation", apperr.Internal, err)
	}
	return nil
}
