package facade_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/facade"
	"github.com/S-Corkum/agentmesh/pkg/observability"
)

// fakeCache is a minimal in-memory cache.Cache for facade tests, round-
// tripping values through JSON the way the real tiers do.
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

func minimalFacade() *facade.Facade {
	return facade.New(
		nil, nil, nil, nil, nil, nil, nil,
		nil, nil, nil,
		newFakeCache(), facade.NewValidator(),
		observability.NoopLogger{}, observability.NoopTracer(), observability.NoopMetrics{},
	)
}

func TestOk_BuildsSuccessEnvelope(t *testing.T) {
	env := facade.Ok("req-1", "manage_task.get", map[string]interface{}{"id": "t1"}, "do the next thing")
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.Equal(t, "req-1", env.Meta.RequestID)
	assert.Equal(t, "manage_task.get", env.Meta.Operation)
	assert.Equal(t, "do the next thing", env.Meta.WorkflowGuidance)
}

func TestFail_NeverLeaksRawErrorString(t *testing.T) {
	structured := apperr.New("Scheduler.NextTask", apperr.Conflict, "task already claimed").
		WithDetails(map[string]any{"task_id": "t1"})
	env := facade.Fail("req-2", "manage_task.next", structured)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.Conflict, env.Error.Kind)
	assert.Equal(t, "task already claimed", env.Error.Message)
	assert.Equal(t, "t1", env.Error.Details["task_id"])
}

func TestFail_UnstructuredErrorBecomesInternal(t *testing.T) {
	env := facade.Fail("req-3", "manage_task.get", context.DeadlineExceeded)
	assert.Equal(t, apperr.Internal, env.Error.Kind)
}

func TestDispatch_HealthCheckReturnsOkEnvelope(t *testing.T) {
	f := minimalFacade()
	env := f.Dispatch(context.Background(), "manage_connection", facade.Request{Action: "health_check"})
	require.True(t, env.Success)
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
}

func TestDispatch_UnknownToolIsInvalid(t *testing.T) {
	f := minimalFacade()
	env := f.Dispatch(context.Background(), "manage_nonexistent", facade.Request{Action: "list"})
	require.False(t, env.Success)
	assert.Equal(t, apperr.Invalid, env.Error.Kind)
}

func TestDispatch_UnknownConnectionActionIsInvalid(t *testing.T) {
	f := minimalFacade()
	env := f.Dispatch(context.Background(), "manage_connection", facade.Request{Action: "reticulate_splines"})
	require.False(t, env.Success)
	assert.Equal(t, apperr.Invalid, env.Error.Kind)
}

// Identical idempotency key on the same tool replays the first response
// verbatim, without recomputing server_time.
func TestDispatch_IdempotencyKeyReplaysFirstResponse(t *testing.T) {
	f := minimalFacade()
	req := facade.Request{Action: "health_check", IdempotencyKey: "req-key-1", RequestID: "req-4"}

	first := f.Dispatch(context.Background(), "manage_connection", req)
	time.Sleep(2 * time.Millisecond)
	second := f.Dispatch(context.Background(), "manage_connection", req)

	firstData := first.Data.(map[string]interface{})
	secondData := second.Data.(map[string]interface{})
	assert.Equal(t, firstData["server_time"], secondData["server_time"])
}

// A different idempotency key is never replayed against another key's entry.
func TestDispatch_DifferentIdempotencyKeysAreIndependent(t *testing.T) {
	f := minimalFacade()
	a := f.Dispatch(context.Background(), "manage_connection", facade.Request{Action: "health_check", IdempotencyKey: "key-a"})
	time.Sleep(2 * time.Millisecond)
	b := f.Dispatch(context.Background(), "manage_connection", facade.Request{Action: "health_check", IdempotencyKey: "key-b"})

	aData := a.Data.(map[string]interface{})
	bData := b.Data.(map[string]interface{})
	assert.NotEqual(t, aData["server_time"], bData["server_time"])
}

func TestDispatch_CapabilitiesListsEveryTool(t *testing.T) {
	f := minimalFacade()
	env := f.Dispatch(context.Background(), "manage_connection", facade.Request{Action: "capabilities"})
	require.True(t, env.Success)
	data := env.Data.(map[string]interface{})
	tools := data["tools"].(map[string][]string)
	assert.Contains(t, tools, "manage_task")
}

func TestValidator_RejectsUnknownField(t *testing.T) {
	v := facade.NewValidator()
	err := v.Validate("manage_project", "create", map[string]interface{}{"name": "demo", "typo_field": true})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Invalid))
}

func TestValidator_RejectsMissingRequiredField(t *testing.T) {
	v := facade.NewValidator()
	err := v.Validate("manage_project", "create", map[string]interface{}{"description": "no name given"})
	require.Error(t, err)
}

func TestValidator_AcceptsWellFormedParams(t *testing.T) {
	v := facade.NewValidator()
	err := v.Validate("manage_project", "create", map[string]interface{}{"name": "demo"})
	assert.NoError(t, err)
}

func TestValidator_PassesThroughUnregisteredAction(t *testing.T) {
	v := facade.NewValidator()
	err := v.Validate("manage_project", "list", map[string]interface{}{"anything": "goes"})
	assert.NoError(t, err)
}

func TestDispatch_ValidationFailureNeverReachesRoute(t *testing.T) {
	f := minimalFacade()
	env := f.Dispatch(context.Background(), "manage_project", facade.Request{Action: "create", Params: map[string]interface{}{}})
	require.False(t, env.Success)
	assert.Equal(t, apperr.Invalid, env.Error.Kind)
}
