// Package contextengine implements the Context Engine (C2): the four-tier
// inheritance resolver, optimistic-locked updates with propagation, and
// upward delegation. It sits on top of pkg/repository's ContextRepository
// for raw persistence and pkg/cache for the resolved-view cache, the same
// layering the teacher uses between its repository and cache packages.
package contextengine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/cache"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/observability"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

// Engine implements Resolve/Update/Delegate/AddInsight over a
// repository.ContextRepository, with a process-local striped-lock guard
// against recompute stampedes on cache misses (spec.md §5).
type Engine struct {
	Store    repository.ContextRepository
	Cache    cache.Cache
	Parents  ParentResolver
	Logger   observability.Logger
	Metrics  observability.MetricsClient
	Tracer   observability.StartSpanFunc
	CacheTTL time.Duration

	locks *stripedLocks
}

func New(store repository.ContextRepository, c cache.Cache, parents ParentResolver, logger observability.Logger, metrics observability.MetricsClient, tracer observability.StartSpanFunc, cacheTTL time.Duration) *Engine {
	return &Engine{
		Store: store, Cache: c, Parents: parents, Logger: logger, Metrics: metrics, Tracer: tracer,
		CacheTTL: cacheTTL, locks: newStripedLocks(256),
	}
}

func cacheKey(level models.ContextLevel, entityID string) string {
	return "ctxresolved:" + string(level) + ":" + entityID
}

// buildChain walks from the requested (level, entityID) up to global,
// collecting each tier's ContextRecord (or a zero-value stand-in for tiers
// that exist structurally but have no record yet — create-on-write applies
// to writes, not to the read-side walk), then reverses it to root-to-leaf
// order for merge. The walk stops early at a tier with inheritance_disabled.
func (e *Engine) buildChain(ctx context.Context, level models.ContextLevel, entityID string) (chain, error) {
	var leafToRoot chain

	curLevel, curID := level, entityID
	for {
		rec, err := e.Store.GetRecord(ctx, curLevel, curID)
		if err != nil {
			if apperr.Is(err, apperr.NotFound) {
				rec = &models.ContextRecord{Level: curLevel, EntityID: curID, Data: map[string]interface{}{}}
			} else {
				return nil, err
			}
		}
		leafToRoot = append(leafToRoot, rec)

		if rec.InheritanceDisabled {
			break
		}
		if curLevel == models.LevelGlobal {
			break
		}
		parentLevel, parentID, ok := e.Parents.ParentOf(ctx, curLevel, curID)
		if !ok {
			break
		}
		curLevel, curID = parentLevel, parentID
	}

	rootToLeaf := make(chain, len(leafToRoot))
	for i, rec := range leafToRoot {
		rootToLeaf[len(leafToRoot)-1-i] = rec
	}
	return rootToLeaf, nil
}

// Resolve implements spec.md §4.2.2.
func (e *Engine) Resolve(ctx context.Context, level models.ContextLevel, entityID string, forceRefresh bool) (*models.ResolvedContext, error) {
	ctx, span := e.Tracer(ctx, "contextengine.Resolve")
	defer span.End()

	key := cacheKey(level, entityID)

	c, err := e.buildChain(ctx, level, entityID)
	if err != nil {
		return nil, apperr.Wrap("contextengine.Resolve", apperr.Internal, err)
	}
	hash := dependenciesHash(c)

	if !forceRefresh {
		var entry models.InheritanceCacheEntry
		if getErr := e.Cache.Get(ctx, key, &entry); getErr == nil {
			if !entry.Invalidated && entry.ExpiresAt.After(time.Now()) && entry.DependenciesHash == hash {
				entry.HitCount++
				entry.LastHit = time.Now()
				entry.ResolvedContext.FromCache = true
				_ = e.Cache.Set(ctx, key, &entry, time.Until(entry.ExpiresAt))
				e.Metrics.RecordCounter("context_cache_hit_total", 1, map[string]string{"level": string(level)})
				return entry.ResolvedContext, nil
			}
		}
	}

	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	// Re-check after acquiring the stripe lock: another goroutine may have
	// just recomputed this exact key while we were waiting.
	if !forceRefresh {
		var entry models.InheritanceCacheEntry
		if getErr := e.Cache.Get(ctx, key, &entry); getErr == nil {
			if !entry.Invalidated && entry.ExpiresAt.After(time.Now()) && entry.DependenciesHash == hash {
				return entry.ResolvedContext, nil
			}
		}
	}

	e.Metrics.RecordCounter("context_cache_miss_total", 1, map[string]string{"level": string(level)})

	merged, path := c.merge()
	resolved := &models.ResolvedContext{
		ContextID:        entityID,
		Level:            level,
		Merged:           merged,
		ResolutionPath:   path,
		DependenciesHash: hash,
		FromCache:        false,
	}

	entry := models.InheritanceCacheEntry{
		ContextID:        entityID,
		Level:            level,
		ResolvedContext:  resolved,
		DependenciesHash: hash,
		ResolutionPath:   path,
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(e.CacheTTL),
		HitCount:         0,
		LastHit:          time.Now(),
	}
	_ = e.Cache.Set(ctx, key, &entry, e.CacheTTL)
	return resolved, nil
}

// Update implements spec.md §4.2.3: optimistic-locked patch write, followed
// by best-effort invalidation of the affected cache set when propagate=true.
func (e *Engine) Update(ctx context.Context, level models.ContextLevel, entityID string, patch map[string]interface{}, propagate bool) error {
	ctx, span := e.Tracer(ctx, "contextengine.Update")
	defer span.End()
	start := time.Now()

	rec, err := e.Store.GetRecord(ctx, level, entityID)
	if err != nil {
		if !apperr.Is(err, apperr.NotFound) {
			return err
		}
		if level == models.LevelGlobal {
			return apperr.New("contextengine.Update", apperr.NotFound, "global context record must be created explicitly")
		}
		rec = &models.ContextRecord{
			ID: uuid.New(), Level: level, EntityID: entityID,
			Data: map[string]interface{}{}, GlobalOverrides: models.NewStringSet(), LocalOverrides: models.NewStringSet(),
		}
		if err := e.Store.UpsertRecord(ctx, rec); err != nil {
			return err
		}
	}

	rec.Data = deepMerge(cloneMap(rec.Data), patch)
	if err := e.Store.UpdateRecordVersioned(ctx, rec, rec.Version); err != nil {
		return err
	}

	if !propagate {
		return nil
	}

	affected, err := e.affectedKeys(ctx, level, entityID)
	if err != nil {
		e.Logger.Warn("failed to compute propagation set", map[string]interface{}{"level": level, "entity_id": entityID, "error": err.Error()})
		return nil
	}

	prop := &models.PropagationRecord{
		SourceLevel: level, SourceID: entityID, ChangeType: "update",
		AffectedContexts: affected, Status: "pending",
	}
	for _, ref := range affected {
		var entry models.InheritanceCacheEntry
		key := cacheKey(ref.Level, ref.ID)
		if getErr := e.Cache.Get(ctx, key, &entry); getErr == nil {
			entry.Invalidated = true
			entry.InvalidationReason = "propagated from " + string(level) + ":" + entityID
			_ = e.Cache.Set(ctx, key, &entry, time.Until(entry.ExpiresAt))
		}
	}
	prop.Status = "completed"
	now := time.Now()
	prop.CompletedAt = &now
	prop.DurationMS = time.Since(start).Milliseconds()
	if err := e.Store.RecordPropagation(ctx, prop); err != nil {
		e.Logger.Warn("failed to record propagation", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

// affectedKeys computes the propagation target set for a change at
// (level, entityID), per the rules of spec.md §4.2.3.
func (e *Engine) affectedKeys(ctx context.Context, level models.ContextLevel, entityID string) ([]models.TierRef, error) {
	switch level {
	case models.LevelTask:
		return []models.TierRef{{Level: level, ID: entityID}}, nil
	case models.LevelBranch:
		affected := []models.TierRef{{Level: level, ID: entityID}}
		taskIDs, err := e.tasksInBranch(ctx, entityID)
		if err != nil {
			return nil, err
		}
		for _, id := range taskIDs {
			affected = append(affected, models.TierRef{Level: models.LevelTask, ID: id})
		}
		return affected, nil
	case models.LevelProject, models.LevelGlobal:
		// Global and project updates mark only their own entry; descendant
		// branch and task entries are not marked invalidated. A later
		// Resolve of a descendant still recomputes, because the changed
		// tier's updated_at is part of the chain's dependencies hash.
		return []models.TierRef{{Level: level, ID: entityID}}, nil
	default:
		return []models.TierRef{{Level: level, ID: entityID}}, nil
	}
}

func (e *Engine) tasksInBranch(ctx context.Context, branchID string) ([]string, error) {
	id, err := uuid.Parse(branchID)
	if err != nil {
		return nil, nil
	}
	resolver, ok := e.Parents.(*EntityParentResolver)
	if !ok || resolver.Tasks == nil {
		return nil, nil
	}
	tasks, err := resolver.Tasks.List(ctx, repository.TaskFilter{BranchID: &id})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID.String())
	}
	return ids, nil
}

// InvalidateBroad marks the cache entry of each given ref invalidated. The
// facade calls it only from manage_context's invalidate_cache action, with
// a single ref; it does not enumerate descendants.
func (e *Engine) InvalidateBroad(ctx context.Context, refs []models.TierRef, reason string) {
	for _, ref := range refs {
		var entry models.InheritanceCacheEntry
		key := cacheKey(ref.Level, ref.ID)
		if err := e.Cache.Get(ctx, key, &entry); err == nil {
			entry.Invalidated = true
			entry.InvalidationReason = reason
			_ = e.Cache.Set(ctx, key, &entry, time.Until(entry.ExpiresAt))
		}
	}
}

// Delegate implements spec.md §4.2.4's direction check and record creation;
// the auto-merge processing itself runs in the background worker (worker.go).
func (e *Engine) Delegate(ctx context.Context, sourceLevel models.ContextLevel, sourceID string, targetLevel models.ContextLevel, targetID string, data map[string]interface{}, reason string, trigger models.DelegationTrigger, createdBy string) (*models.ContextDelegation, error) {
	ctx, span := e.Tracer(ctx, "contextengine.Delegate")
	defer span.End()

	if !targetLevel.Above(sourceLevel) {
		return nil, apperr.New("contextengine.Delegate", apperr.Invalid, "target_level must be strictly above source_level")
	}

	d := &models.ContextDelegation{
		ID: uuid.New(), SourceLevel: sourceLevel, SourceID: sourceID, TargetLevel: targetLevel, TargetID: targetID,
		DelegatedData: data, Reason: reason, TriggerType: trigger, AutoDelegated: trigger != models.TriggerManual,
		ImplementationStatus: models.ImplPending, CreatedBy: createdBy,
	}
	if err := e.Store.CreateDelegation(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// AddInsight implements spec.md §4.2.5.
func (e *Engine) AddInsight(ctx context.Context, level models.ContextLevel, entityID, content, category string, importance models.Importance, confidence float64, sourceAgent string, relatedTaskID *uuid.UUID) (*models.ContextInsight, error) {
	ctx, span := e.Tracer(ctx, "contextengine.AddInsight")
	defer span.End()

	insight := &models.ContextInsight{
		ID: uuid.New(), ContextID: entityID, ContextLevel: level, Content: content, Category: category,
		Importance: importance, Confidence: confidence, SourceAgent: sourceAgent, SourceType: "agent",
		RelatedTaskID: relatedTaskID,
	}
	if err := e.Store.AddInsight(ctx, insight); err != nil {
		return nil, err
	}
	return insight, nil
}
