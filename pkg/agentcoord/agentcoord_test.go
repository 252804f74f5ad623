package agentcoord_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S-Corkum/agentmesh/pkg/agentcoord"
	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/observability"
)

func newTestCoordinator(agents *fakeAgentRepo, branches *fakeBranchRepo, tasks *fakeTaskRepo) *agentcoord.Coordinator {
	return agentcoord.New(agents, branches, tasks, nil, nil, observability.NoopLogger{}, observability.NoopTracer(), observability.NoopMetrics{})
}

func TestRegisterAgent_StartsAvailableWithEmptySpecializations(t *testing.T) {
	agents := newFakeAgentRepo()
	c := newTestCoordinator(agents, newFakeBranchRepo(), newFakeTaskRepo())
	projectID := uuid.New()

	a, err := c.RegisterAgent(context.Background(), projectID, "agent-1", "Agent One", []string{"backend", "go"}, 3)
	require.NoError(t, err)
	assert.Equal(t, models.AgentAvailable, a.Status)
	assert.True(t, a.Capabilities.Has("backend"))
	assert.Empty(t, a.Specializations)
}

func TestAssignAgentToBranch_SetsOwnerOnlyWhenUnset(t *testing.T) {
	agents := newFakeAgentRepo()
	branches := newFakeBranchRepo()
	c := newTestCoordinator(agents, branches, newFakeTaskRepo())
	projectID := uuid.New()

	_, err := c.RegisterAgent(context.Background(), projectID, "agent-1", "A1", nil, 3)
	require.NoError(t, err)
	branch := &models.Branch{ID: uuid.New(), ProjectID: projectID, Name: "feature"}
	require.NoError(t, branches.Create(context.Background(), branch))

	require.NoError(t, c.AssignAgentToBranch(context.Background(), projectID, "agent-1", branch.ID))
	updated, err := branches.Get(context.Background(), branch.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedAgentID)
	assert.Equal(t, "agent-1", *updated.AssignedAgentID)

	// Assigning a second agent records the join row but never steals
	// ownership from the first.
	_, err = c.RegisterAgent(context.Background(), projectID, "agent-2", "A2", nil, 3)
	require.NoError(t, err)
	require.NoError(t, c.AssignAgentToBranch(context.Background(), projectID, "agent-2", branch.ID))
	updated2, err := branches.Get(context.Background(), branch.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", *updated2.AssignedAgentID)
}

func TestAssignAgentToBranch_UnknownAgentIsNotFound(t *testing.T) {
	branches := newFakeBranchRepo()
	c := newTestCoordinator(newFakeAgentRepo(), branches, newFakeTaskRepo())
	branch := &models.Branch{ID: uuid.New(), ProjectID: uuid.New()}
	require.NoError(t, branches.Create(context.Background(), branch))

	err := c.AssignAgentToBranch(context.Background(), branch.ProjectID, "ghost", branch.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

// Rebalance proposes moving a branch from a 100%-loaded owner to the
// least-loaded agent sharing a required capability, and in dry-run mode
// writes nothing back.
func TestRebalance_DryRunProposesWithoutMutating(t *testing.T) {
	agents := newFakeAgentRepo()
	branches := newFakeBranchRepo()
	tasks := newFakeTaskRepo()
	c := newTestCoordinator(agents, branches, tasks)
	projectID := uuid.New()

	overloaded := &models.Agent{ID: "overloaded", ProjectID: projectID, MaxConcurrentTasks: 2, CurrentWorkload: 2, Status: models.AgentAvailable, Capabilities: models.NewStringSet("backend")}
	idle := &models.Agent{ID: "idle", ProjectID: projectID, MaxConcurrentTasks: 2, CurrentWorkload: 0, Status: models.AgentAvailable, Capabilities: models.NewStringSet("backend")}
	require.NoError(t, agents.Create(context.Background(), overloaded))
	require.NoError(t, agents.Create(context.Background(), idle))

	branch := &models.Branch{ID: uuid.New(), ProjectID: projectID, AssignedAgentID: strPtr("overloaded")}
	require.NoError(t, branches.Create(context.Background(), branch))
	task := &models.Task{ID: uuid.New(), BranchID: branch.ID, Labels: models.NewStringSet("backend")}
	require.NoError(t, tasks.Create(context.Background(), task))

	plans, err := c.Rebalance(context.Background(), projectID, true)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "overloaded", plans[0].FromAgent)
	assert.Equal(t, "idle", plans[0].ToAgent)

	unchanged, err := branches.Get(context.Background(), branch.ID)
	require.NoError(t, err)
	require.NotNil(t, unchanged.AssignedAgentID)
	assert.Equal(t, "overloaded", *unchanged.AssignedAgentID, "dry run must not mutate branch ownership")
}

func TestRebalance_AppliesReassignmentWhenNotDryRun(t *testing.T) {
	agents := newFakeAgentRepo()
	branches := newFakeBranchRepo()
	tasks := newFakeTaskRepo()
	c := newTestCoordinator(agents, branches, tasks)
	projectID := uuid.New()

	overloaded := &models.Agent{ID: "overloaded", ProjectID: projectID, MaxConcurrentTasks: 1, CurrentWorkload: 1, Status: models.AgentAvailable}
	idle := &models.Agent{ID: "idle", ProjectID: projectID, MaxConcurrentTasks: 2, CurrentWorkload: 0, Status: models.AgentAvailable}
	require.NoError(t, agents.Create(context.Background(), overloaded))
	require.NoError(t, agents.Create(context.Background(), idle))
	branch := &models.Branch{ID: uuid.New(), ProjectID: projectID, AssignedAgentID: strPtr("overloaded")}
	require.NoError(t, branches.Create(context.Background(), branch))

	plans, err := c.Rebalance(context.Background(), projectID, false)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	updated, err := branches.Get(context.Background(), branch.ID)
	require.NoError(t, err)
	assert.Equal(t, "idle", *updated.AssignedAgentID)
}

// An agent below the load threshold is left alone.
func TestRebalance_SkipsAgentBelowLoadThreshold(t *testing.T) {
	agents := newFakeAgentRepo()
	branches := newFakeBranchRepo()
	tasks := newFakeTaskRepo()
	c := newTestCoordinator(agents, branches, tasks)
	projectID := uuid.New()

	owner := &models.Agent{ID: "owner", ProjectID: projectID, MaxConcurrentTasks: 4, CurrentWorkload: 1, Status: models.AgentAvailable}
	require.NoError(t, agents.Create(context.Background(), owner))
	branch := &models.Branch{ID: uuid.New(), ProjectID: projectID, AssignedAgentID: strPtr("owner")}
	require.NoError(t, branches.Create(context.Background(), branch))

	plans, err := c.Rebalance(context.Background(), projectID, true)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

// Offline agents are never selected as a rebalance target.
func TestRebalance_NeverPicksOfflineAgent(t *testing.T) {
	agents := newFakeAgentRepo()
	branches := newFakeBranchRepo()
	tasks := newFakeTaskRepo()
	c := newTestCoordinator(agents, branches, tasks)
	projectID := uuid.New()

	overloaded := &models.Agent{ID: "overloaded", ProjectID: projectID, MaxConcurrentTasks: 1, CurrentWorkload: 1, Status: models.AgentAvailable}
	offline := &models.Agent{ID: "offline", ProjectID: projectID, MaxConcurrentTasks: 2, CurrentWorkload: 0, Status: models.AgentOffline}
	require.NoError(t, agents.Create(context.Background(), overloaded))
	require.NoError(t, agents.Create(context.Background(), offline))
	branch := &models.Branch{ID: uuid.New(), ProjectID: projectID, AssignedAgentID: strPtr("overloaded")}
	require.NoError(t, branches.Create(context.Background(), branch))

	plans, err := c.Rebalance(context.Background(), projectID, true)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestAdjustWorkload_PushesNewFigureWhenPusherConfigured(t *testing.T) {
	agents := newFakeAgentRepo()
	c := newTestCoordinator(agents, newFakeBranchRepo(), newFakeTaskRepo())
	pusher := &fakeWorkloadPusher{}
	c.Push = pusher
	projectID := uuid.New()

	require.NoError(t, agents.Create(context.Background(), &models.Agent{ID: "agent-1", ProjectID: projectID, MaxConcurrentTasks: 5, CurrentWorkload: 1}))
	require.NoError(t, c.AdjustWorkload(context.Background(), projectID, "agent-1", 2))

	require.Len(t, pusher.calls, 1)
	assert.Equal(t, 3, pusher.calls[0].CurrentWorkload)
}

func TestAdjustWorkload_RejectsOverCapacity(t *testing.T) {
	agents := newFakeAgentRepo()
	c := newTestCoordinator(agents, newFakeBranchRepo(), newFakeTaskRepo())
	projectID := uuid.New()
	require.NoError(t, agents.Create(context.Background(), &models.Agent{ID: "agent-1", ProjectID: projectID, MaxConcurrentTasks: 1, CurrentWorkload: 1}))

	err := c.AdjustWorkload(context.Background(), projectID, "agent-1", 1)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Capacity))
}

func strPtr(s string) *string { return &s }
