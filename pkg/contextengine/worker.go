package contextengine

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/observability"
)

// delegationWorkItem is pushed onto the worker's bounded in-process channel
// by Notify. When the channel is full the item is dropped; the worker does
// not sweep context_delegations on its own.
type delegationWorkItem struct {
	TargetLevel models.ContextLevel
	TargetID    string
}

// DelegationWorker drains pending ContextDelegation rows and auto-merges the
// ones trigger_type ∈ {auto_threshold, auto_pattern} permit, strictly in
// insertion order per (target_level, target_id) (spec.md §4.2.4, §5).
type DelegationWorker struct {
	engine      *Engine
	parallelism int
	sweepEvery  time.Duration

	queue chan delegationWorkItem

	mu       sync.Mutex
	perKey   map[string]chan struct{} // one slot per (level,id) key, enforces strict ordering
	breakers map[string]*gobreaker.CircuitBreaker // one per target, opens on repeated auto-merge failures
	metrics  observability.MetricsClient
	logger   observability.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewDelegationWorker builds a worker with a bounded channel. parallelism
// bounds concurrent (target_level,target_id) groups in flight, not total
// goroutines — work items targeting the same key are always serialized.
func NewDelegationWorker(engine *Engine, parallelism int, sweepEvery time.Duration) *DelegationWorker {
	if parallelism <= 0 {
		parallelism = 4
	}
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Second
	}
	return &DelegationWorker{
		engine: engine, parallelism: parallelism, sweepEvery: sweepEvery,
		queue:    make(chan delegationWorkItem, parallelism*8),
		perKey:   make(map[string]chan struct{}),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		metrics:  engine.Metrics, logger: engine.Logger,
		stop: make(chan struct{}),
	}
}

// breakerFor returns the target's circuit breaker, creating it on first use.
// Opening trips after 3 consecutive auto-merge failures against the same
// (level, id) target and cools down for 30s before allowing a probe.
func (w *DelegationWorker) breakerFor(key string) *gobreaker.CircuitBreaker {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.breakers[key]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "delegation-merge:" + key,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	w.breakers[key] = b
	return b
}

// Notify enqueues a hint that (targetLevel, targetID) has new pending
// delegations. If the channel is full it drops the hint and only counts it in
// delegation_worker_channel_full_total. No table sweep picks the row up
// afterwards: it stays pending until a later Notify for the same target, or a
// manual approve_delegation, reaches it.
func (w *DelegationWorker) Notify(targetLevel models.ContextLevel, targetID string) {
	select {
	case w.queue <- delegationWorkItem{TargetLevel: targetLevel, TargetID: targetID}:
	default:
		w.metrics.RecordCounter("delegation_worker_channel_full_total", 1, nil)
	}
}

// Run starts the worker loop; it blocks until ctx is cancelled or Stop is called.
func (w *DelegationWorker) Run(ctx context.Context) {
	sem := make(chan struct{}, w.parallelism)
	ticker := time.NewTicker(w.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return
		case <-w.stop:
			w.wg.Wait()
			return
		case item := <-w.queue:
			w.dispatch(ctx, sem, item)
		case <-ticker.C:
			// The tick does no work. The worker keeps no list of targets and
			// never queries context_delegations on its own, so pending rows
			// are processed only for targets named by Notify.
		}
	}
}

func (w *DelegationWorker) dispatch(ctx context.Context, sem chan struct{}, item delegationWorkItem) {
	key := string(item.TargetLevel) + ":" + item.TargetID

	w.mu.Lock()
	slot, ok := w.perKey[key]
	if !ok {
		slot = make(chan struct{}, 1)
		w.perKey[key] = slot
	}
	w.mu.Unlock()

	select {
	case slot <- struct{}{}:
	default:
		// Another goroutine is already processing this exact target; the
		// in-flight run will pick up anything newly pending since it
		// re-lists before returning.
		return
	}

	sem <- struct{}{}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-sem }()
		defer func() { <-slot }()
		w.processTarget(ctx, item.TargetLevel, item.TargetID)
	}()
}

func (w *DelegationWorker) processTarget(ctx context.Context, level models.ContextLevel, id string) {
	seen := map[string]bool{}
	for {
		pending, err := w.engine.Store.ListPendingDelegations(ctx, level, id)
		if err != nil {
			w.logger.Error("delegation worker: list pending failed", map[string]interface{}{"error": err.Error()})
			return
		}
		fresh := false
		for _, d := range pending {
			if seen[d.ID.String()] {
				continue
			}
			seen[d.ID.String()] = true
			fresh = true
			w.processOne(ctx, d)
		}
		if !fresh {
			return
		}
	}
}

func (w *DelegationWorker) processOne(ctx context.Context, d *models.ContextDelegation) {
	if d.TriggerType != models.TriggerAutoThreshold && d.TriggerType != models.TriggerAutoPattern {
		return // manual delegations wait for an explicit approve_delegation call
	}

	key := string(d.TargetLevel) + ":" + d.TargetID
	_, err := w.breakerFor(key).Execute(func() (interface{}, error) {
		return nil, w.engine.Update(ctx, d.TargetLevel, d.TargetID, d.DelegatedData, true)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			w.metrics.RecordCounter("delegation_auto_merge_circuit_open_total", 1, map[string]string{"target_level": string(d.TargetLevel)})
			return
		}
		reason := err.Error()
		if ae := apperr.KindOf(err); ae == apperr.VersionConflict {
			reason = "version conflict on target; will not auto-retry"
		}
		if markErr := w.engine.Store.MarkDelegationProcessed(ctx, d.ID, false, models.ImplRejected, "delegation-worker", reason); markErr != nil {
			w.logger.Error("delegation worker: mark rejected failed", map[string]interface{}{"error": markErr.Error()})
		}
		w.metrics.RecordCounter("delegation_auto_merge_failed_total", 1, map[string]string{"target_level": string(d.TargetLevel)})
		return
	}

	if markErr := w.engine.Store.MarkDelegationProcessed(ctx, d.ID, true, models.ImplImplemented, "delegation-worker", ""); markErr != nil {
		w.logger.Error("delegation worker: mark implemented failed", map[string]interface{}{"error": markErr.Error()})
	}
	w.metrics.RecordCounter("delegation_auto_merge_total", 1, map[string]string{"target_level": string(d.TargetLevel)})
}

// Stop signals Run to exit after finishing in-flight work.
func (w *DelegationWorker) Stop() { close(w.stop) }
