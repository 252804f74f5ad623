// Package agentcoord implements the Agent Coordinator (C5): registration,
// branch assignment, workload-aware rebalancing, handoffs, conflicts, and
// inter-agent messaging. It is grounded on the teacher's pkg/repository/agent
// package for the storage shape; the optional gRPC workload-push stream
// lives in grpc.go.
package agentcoord

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/observability"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

// Coordinator implements every C5 operation over the repository layer.
type Coordinator struct {
	Agents       repository.AgentRepository
	Branches     repository.BranchRepository
	Tasks        repository.TaskRepository
	ContextRepo  repository.ContextRepository
	Coordination repository.CoordinationRepository
	Logger       observability.Logger
	Tracer       observability.StartSpanFunc
	Metrics      observability.MetricsClient

	// Push, if non-nil, streams workload deltas to subscribed agents over
	// the optional gRPC coordination channel (SPEC_FULL.md §3).
	Push WorkloadPusher
}

// WorkloadPusher is implemented by the gRPC streaming server in
// pkg/agentcoord/grpc.go; it is an interface here so the coordinator's core
// logic stays transport-agnostic and unit-testable without a live stream.
type WorkloadPusher interface {
	PushWorkload(projectID uuid.UUID, agentID string, currentWorkload, maxConcurrent int)
}

func New(agents repository.AgentRepository, branches repository.BranchRepository, tasks repository.TaskRepository, ctxRepo repository.ContextRepository, coordination repository.CoordinationRepository, logger observability.Logger, tracer observability.StartSpanFunc, metrics observability.MetricsClient) *Coordinator {
	return &Coordinator{Agents: agents, Branches: branches, Tasks: tasks, ContextRepo: ctxRepo, Coordination: coordination, Logger: logger, Tracer: tracer, Metrics: metrics}
}

// RegisterAgent implements spec.md §4.5.
func (c *Coordinator) RegisterAgent(ctx context.Context, projectID uuid.UUID, id, name string, capabilities []string, maxConcurrent int) (*models.Agent, error) {
	ctx, span := c.Tracer(ctx, "agentcoord.RegisterAgent")
	defer span.End()

	a := &models.Agent{
		ID: id, ProjectID: projectID, Name: name, Capabilities: models.NewStringSet(capabilities...),
		Specializations: models.NewStringSet(), MaxConcurrentTasks: maxConcurrent, Status: models.AgentAvailable,
	}
	if err := c.Agents.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// AssignAgentToBranch implements spec.md §4.5: appends the join row and sets
// branch.assigned_agent_id only if it isn't already set.
func (c *Coordinator) AssignAgentToBranch(ctx context.Context, projectID uuid.UUID, agentID string, branchID uuid.UUID) error {
	ctx, span := c.Tracer(ctx, "agentcoord.AssignAgentToBranch")
	defer span.End()

	if _, err := c.Agents.Get(ctx, projectID, agentID); err != nil {
		return err
	}
	branch, err := c.Branches.Get(ctx, branchID)
	if err != nil {
		return err
	}

	if err := c.Agents.AssignToBranch(ctx, models.AgentBranchAssignment{ProjectID: projectID, AgentID: agentID, BranchID: branchID, AssignedAt: time.Now()}); err != nil {
		return err
	}

	if branch.AssignedAgentID == nil {
		branch.AssignedAgentID = &agentID
		if err := c.Branches.Update(ctx, branch); err != nil {
			return err
		}
	}
	return nil
}

// rebalanceThreshold is the workload ratio at or above which a branch's
// owning agent is considered overloaded for Rebalance (spec.md §4.5: "at
// workload ≥ 100%").
const rebalanceThreshold = 1.0

// RebalancePlan is one proposed or applied reassignment.
type RebalancePlan struct {
	BranchID uuid.UUID `json:"branch_id"`
	FromAgent string   `json:"from_agent"`
	ToAgent   string    `json:"to_agent"`
}

// Rebalance implements spec.md §4.5's redistribution rule. When dryRun is
// true (SPEC_FULL.md §4's supplemented dry-run mode) it returns the
// proposed plan without writing anything.
func (c *Coordinator) Rebalance(ctx context.Context, projectID uuid.UUID, dryRun bool) ([]RebalancePlan, error) {
	ctx, span := c.Tracer(ctx, "agentcoord.Rebalance")
	defer span.End()

	agents, err := c.Agents.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	branches, err := c.Branches.List(ctx, projectID)
	if err != nil {
		return nil, err
	}

	agentByID := make(map[string]*models.Agent, len(agents))
	for _, a := range agents {
		agentByID[a.ID] = a
	}

	var plans []RebalancePlan
	for _, b := range branches {
		if b.AssignedAgentID == nil {
			continue
		}
		owner, ok := agentByID[*b.AssignedAgentID]
		if !ok || owner.MaxConcurrentTasks == 0 {
			continue
		}
		load := float64(owner.CurrentWorkload) / float64(owner.MaxConcurrentTasks)
		if load < rebalanceThreshold {
			continue
		}

		requiredCaps, err := c.branchRequiredCapabilities(ctx, b.ID)
		if err != nil {
			return nil, err
		}

		best := pickLeastLoadedCandidate(agents, owner.ID, requiredCaps)
		if best == nil {
			continue
		}

		plans = append(plans, RebalancePlan{BranchID: b.ID, FromAgent: owner.ID, ToAgent: best.ID})

		if !dryRun {
			b.AssignedAgentID = &best.ID
			if err := c.Branches.Update(ctx, b); err != nil {
				return nil, err
			}
			if err := c.Agents.AssignToBranch(ctx, models.AgentBranchAssignment{ProjectID: projectID, AgentID: best.ID, BranchID: b.ID, AssignedAt: time.Now()}); err != nil {
				return nil, err
			}
		}
	}
	return plans, nil
}

func (c *Coordinator) branchRequiredCapabilities(ctx context.Context, branchID uuid.UUID) (models.StringSet, error) {
	id := branchID
	tasks, err := c.Tasks.List(ctx, repository.TaskFilter{BranchID: &id})
	if err != nil {
		return nil, err
	}
	caps := models.NewStringSet()
	for _, t := range tasks {
		for _, l := range t.Labels.Slice() {
			caps.Add(l)
		}
	}
	return caps, nil
}

// pickLeastLoadedCandidate implements the deterministic tie-break by agent
// id spec.md §4.5 requires, selecting among agents sharing ≥1 capability
// with the branch's required set.
func pickLeastLoadedCandidate(agents []*models.Agent, excludeID string, requiredCaps models.StringSet) *models.Agent {
	candidates := make([]*models.Agent, 0, len(agents))
	for _, a := range agents {
		if a.ID == excludeID || a.Status == models.AgentOffline {
			continue
		}
		if len(requiredCaps) > 0 && !sharesCapability(a.Capabilities, requiredCaps) {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		li := loadRatio(candidates[i])
		lj := loadRatio(candidates[j])
		if li != lj {
			return li < lj
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0]
}

func sharesCapability(have, want models.StringSet) bool {
	for k := range want {
		if have.Has(k) {
			return true
		}
	}
	return false
}

func loadRatio(a *models.Agent) float64 {
	if a.MaxConcurrentTasks == 0 {
		return 1
	}
	return float64(a.CurrentWorkload) / float64(a.MaxConcurrentTasks)
}

// AdjustWorkload wraps repository.AgentRepository.AdjustWorkload and pushes
// the new figure over the optional gRPC stream.
func (c *Coordinator) AdjustWorkload(ctx context.Context, projectID uuid.UUID, agentID string, delta int) error {
	if err := c.Agents.AdjustWorkload(ctx, projectID, agentID, delta); err != nil {
		return err
	}
	if c.Push != nil {
		if a, err := c.Agents.Get(ctx, projectID, agentID); err == nil {
			c.Push.PushWorkload(projectID, agentID, a.CurrentWorkload, a.MaxConcurrentTasks)
		}
	}
	return nil
}
