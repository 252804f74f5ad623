package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
)

func TestNew_CarriesKindAndMessage(t *testing.T) {
	err := apperr.New("Facade.Dispatch", apperr.Invalid, "unknown action")
	assert.Equal(t, apperr.Invalid, err.Kind)
	assert.Equal(t, "Facade.Dispatch", err.Op)
	assert.Equal(t, "Facade.Dispatch: unknown action", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrap_PreservesUnderlyingErrorForUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperr.Wrap("TaskRepository.Get", apperr.Internal, cause)
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, err.Kind)
	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilCauseReturnsNil(t *testing.T) {
	assert.Nil(t, apperr.Wrap("op", apperr.Internal, nil))
}

// Wrap re-wrapping an already-classified *apperr.Error must keep the
// original Kind rather than overwriting it with the caller's default.
func TestWrap_PreservesOriginalKindWhenReWrapping(t *testing.T) {
	inner := apperr.New("BranchRepository.Get", apperr.NotFound, "branch not found")
	outer := apperr.Wrap("Scheduler.NextTask", apperr.Internal, inner)
	assert.Equal(t, apperr.NotFound, outer.Kind)
}

func TestWithDetails_DoesNotMutateOriginal(t *testing.T) {
	base := apperr.New("op", apperr.Conflict, "conflict")
	withDetails := base.WithDetails(map[string]any{"task_id": "abc"})
	assert.Nil(t, base.Details)
	assert.Equal(t, "abc", withDetails.Details["task_id"])
}

func TestIs_MatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("dispatch failed: %w", apperr.New("op", apperr.Cycle, "cycle detected"))
	assert.True(t, apperr.Is(err, apperr.Cycle))
	assert.False(t, apperr.Is(err, apperr.Conflict))
}

func TestIs_FalseForUnstructuredError(t *testing.T) {
	assert.False(t, apperr.Is(errors.New("plain"), apperr.Internal))
}

func TestKindOf_DefaultsToInternalForUnstructuredError(t *testing.T) {
	assert.Equal(t, apperr.Internal, apperr.KindOf(errors.New("plain")))
}

func TestKindOf_ExtractsWrappedKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", apperr.New("op", apperr.Capacity, "at capacity"))
	assert.Equal(t, apperr.Capacity, apperr.KindOf(err))
}
