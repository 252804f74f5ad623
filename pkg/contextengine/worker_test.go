package contextengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/S-Corkum/agentmesh/pkg/contextengine"
	"github.com/S-Corkum/agentmesh/pkg/models"
)

// A manual-trigger delegation is never touched by the worker; it waits for
// an explicit approve_delegation call outside this package.
func TestDelegationWorker_IgnoresManualTrigger(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newFakeContextStore()
	store.seed(&models.ContextRecord{Level: models.LevelBranch, EntityID: "branch-1", Data: map[string]interface{}{}})
	e := newTestEngine(store, newFakeCache(), &staticParentResolver{})
	w := contextengine.NewDelegationWorker(e, 2, 50*time.Millisecond)

	d := &models.ContextDelegation{
		ID: uuid.New(), SourceLevel: models.LevelTask, SourceID: "task-1",
		TargetLevel: models.LevelBranch, TargetID: "branch-1",
		DelegatedData: map[string]interface{}{"k": "v"}, TriggerType: models.TriggerManual,
		ImplementationStatus: models.ImplPending,
	}
	require.NoError(t, store.CreateDelegation(context.Background(), d))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	w.Notify(models.LevelBranch, "branch-1")
	go w.Run(ctx)
	time.Sleep(120 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	stored := store.delegations[d.ID]
	assert.False(t, stored.Processed, "manual delegation must not be auto-merged")
}

// An auto_threshold delegation is merged into the target and marked
// implemented once the worker picks it up.
func TestDelegationWorker_AutoMergesThresholdDelegation(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newFakeContextStore()
	store.seed(&models.ContextRecord{Level: models.LevelBranch, EntityID: "branch-1", Data: map[string]interface{}{}})
	e := newTestEngine(store, newFakeCache(), &staticParentResolver{})
	w := contextengine.NewDelegationWorker(e, 2, 50*time.Millisecond)

	d := &models.ContextDelegation{
		ID: uuid.New(), SourceLevel: models.LevelTask, SourceID: "task-1",
		TargetLevel: models.LevelBranch, TargetID: "branch-1",
		DelegatedData: map[string]interface{}{"learned": "use retries=3"}, TriggerType: models.TriggerAutoThreshold,
		ImplementationStatus: models.ImplPending,
	}
	require.NoError(t, store.CreateDelegation(context.Background(), d))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	w.Notify(models.LevelBranch, "branch-1")
	go w.Run(ctx)
	time.Sleep(150 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	stored := store.delegations[d.ID]
	require.True(t, stored.Processed)
	require.NotNil(t, stored.Approved)
	assert.True(t, *stored.Approved)
	assert.Equal(t, models.ImplImplemented, stored.ImplementationStatus)

	rec, err := store.GetRecord(context.Background(), models.LevelBranch, "branch-1")
	require.NoError(t, err)
	assert.Equal(t, "use retries=3", rec.Data["learned"])
}

// Stop() lets Run return promptly without leaking the goroutine spawned by
// go w.Run(ctx) in these tests.
func TestDelegationWorker_StopEndsRunPromptly(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newFakeContextStore()
	e := newTestEngine(store, newFakeCache(), &staticParentResolver{})
	w := contextengine.NewDelegationWorker(e, 1, time.Hour)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestNewDelegationWorker_AcceptsZeroParallelismAndSweepInterval(t *testing.T) {
	e := newTestEngine(newFakeContextStore(), newFakeCache(), &staticParentResolver{})
	w := contextengine.NewDelegationWorker(e, 0, 0)
	assert.NotNil(t, w)
}
