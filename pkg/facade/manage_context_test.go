package facade_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/contextengine"
	"github.com/S-Corkum/agentmesh/pkg/facade"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/observability"
)

// fakeContextStore mirrors pkg/contextengine's own hand-written fake; test
// helpers aren't exported across packages so each package keeps its own.
type fakeContextStore struct {
	mu          sync.Mutex
	records     map[string]*models.ContextRecord
	insights    []*models.ContextInsight
	delegations map[uuid.UUID]*models.ContextDelegation
	propagated  []*models.PropagationRecord
}

func newFakeContextStore() *fakeContextStore {
	return &fakeContextStore{
		records:     map[string]*models.ContextRecord{},
		delegations: map[uuid.UUID]*models.ContextDelegation{},
	}
}

func ctxRecKey(level models.ContextLevel, entityID string) string {
	return string(level) + ":" + entityID
}

func (f *fakeContextStore) seed(rec *models.ContextRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.records[ctxRecKey(rec.Level, rec.EntityID)] = &cp
}

func (f *fakeContextStore) GetRecord(_ context.Context, level models.ContextLevel, entityID string) (*models.ContextRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[ctxRecKey(level, entityID)]
	if !ok {
		return nil, apperr.New("fakeContextStore.GetRecord", apperr.NotFound, "context record not found")
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeContextStore) UpsertRecord(_ context.Context, rec *models.ContextRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.records[ctxRecKey(rec.Level, rec.EntityID)] = &cp
	return nil
}

func (f *fakeContextStore) UpdateRecordVersioned(_ context.Context, rec *models.ContextRecord, expectedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ctxRecKey(rec.Level, rec.EntityID)
	existing, ok := f.records[key]
	if !ok {
		return apperr.New("fakeContextStore.UpdateRecordVersioned", apperr.NotFound, "context record not found")
	}
	if existing.Version != expectedVersion {
		return apperr.New("fakeContextStore.UpdateRecordVersioned", apperr.VersionConflict, "version mismatch")
	}
	cp := *rec
	cp.Version = expectedVersion + 1
	f.records[key] = &cp
	return nil
}

func (f *fakeContextStore) AddInsight(_ context.Context, insight *models.ContextInsight) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *insight
	f.insights = append(f.insights, &cp)
	return nil
}

func (f *fakeContextStore) ListInsights(_ context.Context, level models.ContextLevel, entityID string, limit int) ([]*models.ContextInsight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ContextInsight
	for _, i := range f.insights {
		if i.ContextLevel == level && i.ContextID == entityID {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeContextStore) CreateDelegation(_ context.Context, d *models.ContextDelegation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.delegations[d.ID] = &cp
	return nil
}

func (f *fakeContextStore) ListPendingDelegations(_ context.Context, targetLevel models.ContextLevel, targetID string) ([]*models.ContextDelegation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ContextDelegation
	for _, d := range f.delegations {
		if !d.Processed && d.TargetLevel == targetLevel && d.TargetID == targetID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeContextStore) MarkDelegationProcessed(_ context.Context, id uuid.UUID, approved bool, status models.ImplementationStatus, processedBy, rejectedReason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.delegations[id]
	if !ok {
		return apperr.New("fakeContextStore.MarkDelegationProcessed", apperr.NotFound, "delegation not found")
	}
	d.Processed = true
	d.Approved = &approved
	d.ImplementationStatus = status
	d.ProcessedBy = processedBy
	d.RejectedReason = rejectedReason
	return nil
}

func (f *fakeContextStore) RecordPropagation(_ context.Context, p *models.PropagationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.propagated = append(f.propagated, &cp)
	return nil
}

// leafOnlyResolver reports no parent for anything, so Resolve never walks
// past the requested tier.
type leafOnlyResolver struct{}

func (leafOnlyResolver) ParentOf(context.Context, models.ContextLevel, string) (models.ContextLevel, string, bool) {
	return "", "", false
}

func facadeWithContext(store *fakeContextStore) (*facade.Facade, *contextengine.Engine) {
	engine := contextengine.New(store, newFakeCache(), leafOnlyResolver{}, observability.NoopLogger{}, observability.NoopMetrics{}, observability.NoopTracer(), time.Minute)
	f := facade.New(
		nil, nil, nil, nil, nil, nil, newFakeAuditRepo(),
		engine, nil, nil,
		newFakeCache(), facade.NewValidator(),
		observability.NoopLogger{}, observability.NoopTracer(), observability.NoopMetrics{},
	)
	return f, engine
}

func TestDispatchContext_ResolveReturnsLeafRecord(t *testing.T) {
	store := newFakeContextStore()
	store.seed(&models.ContextRecord{Level: models.LevelTask, EntityID: "task-1", Data: map[string]interface{}{"k": "v"}})
	f, _ := facadeWithContext(store)

	env := f.Dispatch(context.Background(), "manage_context", facade.Request{
		Action: "resolve", Params: map[string]interface{}{"level": "task", "entity_id": "task-1"},
	})
	require.True(t, env.Success)
	resolved := env.Data.(*models.ResolvedContext)
	assert.Equal(t, "v", resolved.Merged["k"])
}

func TestDispatchContext_UpdateMergesPatchAndReturnsResolved(t *testing.T) {
	store := newFakeContextStore()
	store.seed(&models.ContextRecord{Level: models.LevelTask, EntityID: "task-1", Data: map[string]interface{}{"k": "v"}})
	f, _ := facadeWithContext(store)

	env := f.Dispatch(context.Background(), "manage_context", facade.Request{
		Action: "update",
		Params: map[string]interface{}{"level": "task", "entity_id": "task-1", "patch": map[string]interface{}{"k2": "v2"}},
	})
	require.True(t, env.Success)
	resolved := env.Data.(*models.ResolvedContext)
	assert.Equal(t, "v", resolved.Merged["k"])
	assert.Equal(t, "v2", resolved.Merged["k2"])
}

func TestDispatchContext_AddInsightDefaultsImportanceAndSourceAgent(t *testing.T) {
	store := newFakeContextStore()
	f, _ := facadeWithContext(store)

	env := f.Dispatch(context.Background(), "manage_context", facade.Request{
		Action: "add_insight", Actor: "agent-x",
		Params: map[string]interface{}{"level": "task", "entity_id": "task-1", "content": "useful", "category": "note"},
	})
	require.True(t, env.Success)
	insight := env.Data.(*models.ContextInsight)
	assert.Equal(t, models.ImportanceMedium, insight.Importance)
	assert.Equal(t, "agent-x", insight.SourceAgent)
}

func TestDispatchContext_DelegateIsManualAndNeedsApproval(t *testing.T) {
	store := newFakeContextStore()
	f, _ := facadeWithContext(store)

	env := f.Dispatch(context.Background(), "manage_context", facade.Request{
		Action: "delegate",
		Params: map[string]interface{}{
			"source_level": "task", "source_id": "task-1",
			"target_level": "branch", "target_id": "branch-1",
			"data": map[string]interface{}{"learned": "x"}, "reason": "share it",
		},
	})
	require.True(t, env.Success)
	delegation := env.Data.(*models.ContextDelegation)
	assert.Equal(t, models.TriggerManual, delegation.TriggerType)
	assert.Equal(t, "a pending manual delegation requires manage_context.approve_delegation at the target tier", env.Meta.WorkflowGuidance)
}

func TestDispatchContext_ApproveDelegationAppliesDataOnApproval(t *testing.T) {
	store := newFakeContextStore()
	store.seed(&models.ContextRecord{Level: models.LevelBranch, EntityID: "branch-1", Data: map[string]interface{}{}})
	f, engine := facadeWithContext(store)

	delegation, err := engine.Delegate(context.Background(), models.LevelTask, "task-1", models.LevelBranch, "branch-1",
		map[string]interface{}{"learned": "use retries=3"}, "share it", models.TriggerManual, "agent-1")
	require.NoError(t, err)

	env := f.Dispatch(context.Background(), "manage_context", facade.Request{
		Action: "approve_delegation",
		Params: map[string]interface{}{
			"delegation_id": delegation.ID.String(), "target_level": "branch", "target_id": "branch-1", "approved": true,
		},
	})
	require.True(t, env.Success)

	resolved, err := engine.Resolve(context.Background(), models.LevelBranch, "branch-1", true)
	require.NoError(t, err)
	assert.Equal(t, "use retries=3", resolved.Merged["learned"])
}

func TestDispatchContext_ApproveDelegationUnknownIDIsNotFound(t *testing.T) {
	store := newFakeContextStore()
	f, _ := facadeWithContext(store)

	env := f.Dispatch(context.Background(), "manage_context", facade.Request{
		Action: "approve_delegation",
		Params: map[string]interface{}{
			"delegation_id": uuid.New().String(), "target_level": "branch", "target_id": "branch-1", "approved": true,
		},
	})
	require.False(t, env.Success)
	assert.Equal(t, apperr.NotFound, env.Error.Kind)
}
