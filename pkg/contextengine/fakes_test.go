package contextengine_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
)

// fakeContextStore is an in-memory repository.ContextRepository, grounded on
// the same hand-written-fake idiom as pkg/scheduler's tests.
type fakeContextStore struct {
	mu          sync.Mutex
	records     map[string]*models.ContextRecord // key: level:entityID
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

func recKey(level models.ContextLevel, entityID string) string {
	return string(level) + ":" + entityID
}

func (f *fakeContextStore) seed(rec *models.ContextRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.records[recKey(rec.Level, rec.EntityID)] = &cp
}

func (f *fakeContextStore) GetRecord(_ context.Context, level models.ContextLevel, entityID string) (*models.ContextRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[recKey(level, entityID)]
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
	f.records[recKey(rec.Level, rec.EntityID)] = &cp
	return nil
}

func (f *fakeContextStore) UpdateRecordVersioned(_ context.Context, rec *models.ContextRecord, expectedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := recKey(rec.Level, rec.EntityID)
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
		if limit > 0 && len(out) >= limit {
			break
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

// fakeCache is an in-memory cache.Cache, round-tripping values through JSON
// the same way RedisCache does, so tests exercise the real (de)serialization
// boundary rather than sharing pointers.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[string][]byte{}} }

func (f *fakeCache) Get(_ context.Context, key string, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.store[key]
	if !ok {
		return apperr.New("fakeCache.Get", apperr.NotFound, "cache miss")
	}
	return json.Unmarshal(raw, value)
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = raw
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.store, key)
	return nil
}

func (f *fakeCache) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.store[key]
	return ok, nil
}

func (f *fakeCache) Flush(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store = map[string][]byte{}
	return nil
}

func (f *fakeCache) Close() error { return nil }

// staticParentResolver reports a fixed hierarchy, independent of any live
// task/branch repository, for tests that only care about the merge/cache
// behavior above a known chain.
type staticParentResolver struct {
	parents map[string]models.TierRef // key: level:entityID
}

func (p *staticParentResolver) ParentOf(_ context.Context, level models.ContextLevel, entityID string) (models.ContextLevel, string, bool) {
	ref, ok := p.parents[recKey(level, entityID)]
	if !ok {
		return "", "", false
	}
	return ref.Level, ref.ID, true
}
