package agentcoord_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

type fakeAgentRepo struct {
	mu     sync.Mutex
	agents map[string]*models.Agent // key: projectID:id
	joins  []models.AgentBranchAssignment
}

func newFakeAgentRepo() *fakeAgentRepo {
	return &fakeAgentRepo{agents: map[string]*models.Agent{}}
}

func agentKey(projectID uuid.UUID, id string) string { return projectID.String() + ":" + id }

func (f *fakeAgentRepo) Create(_ context.Context, a *models.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.agents[agentKey(a.ProjectID, a.ID)] = &cp
	return nil
}

func (f *fakeAgentRepo) Get(_ context.Context, projectID uuid.UUID, id string) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentKey(projectID, id)]
	if !ok {
		return nil, apperr.New("fakeAgentRepo.Get", apperr.NotFound, "agent not found")
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAgentRepo) List(_ context.Context, projectID uuid.UUID) ([]*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Agent
	for _, a := range f.agents {
		if a.ProjectID == projectID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAgentRepo) Update(_ context.Context, a *models.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.agents[agentKey(a.ProjectID, a.ID)] = &cp
	return nil
}

func (f *fakeAgentRepo) Delete(_ context.Context, projectID uuid.UUID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.agents, agentKey(projectID, id))
	return nil
}

func (f *fakeAgentRepo) AdjustWorkload(_ context.Context, projectID uuid.UUID, id string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentKey(projectID, id)]
	if !ok {
		return apperr.New("fakeAgentRepo.AdjustWorkload", apperr.NotFound, "agent not found")
	}
	next := a.CurrentWorkload + delta
	if next < 0 || (a.MaxConcurrentTasks > 0 && next > a.MaxConcurrentTasks) {
		return apperr.New("fakeAgentRepo.AdjustWorkload", apperr.Capacity, "workload out of range")
	}
	a.CurrentWorkload = next
	return nil
}

func (f *fakeAgentRepo) AssignToBranch(_ context.Context, a models.AgentBranchAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, a)
	return nil
}

func (f *fakeAgentRepo) BranchesOf(_ context.Context, projectID uuid.UUID, agentID string) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for _, j := range f.joins {
		if j.ProjectID == projectID && j.AgentID == agentID {
			out = append(out, j.BranchID)
		}
	}
	return out, nil
}

func (f *fakeAgentRepo) AgentsOf(_ context.Context, projectID, branchID uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, j := range f.joins {
		if j.ProjectID == projectID && j.BranchID == branchID {
			out = append(out, j.AgentID)
		}
	}
	return out, nil
}

type fakeBranchRepo struct {
	mu       sync.Mutex
	branches map[uuid.UUID]*models.Branch
}

func newFakeBranchRepo() *fakeBranchRepo { return &fakeBranchRepo{branches: map[uuid.UUID]*models.Branch{}} }

func (f *fakeBranchRepo) Create(_ context.Context, b *models.Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *b
	f.branches[b.ID] = &cp
	return nil
}

func (f *fakeBranchRepo) Get(_ context.Context, id uuid.UUID) (*models.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.branches[id]
	if !ok {
		return nil, apperr.New("fakeBranchRepo.Get", apperr.NotFound, "branch not found")
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBranchRepo) GetByName(_ context.Context, projectID uuid.UUID, name string) (*models.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.branches {
		if b.ProjectID == projectID && b.Name == name {
			cp := *b
			return &cp, nil
		}
	}
	return nil, apperr.New("fakeBranchRepo.GetByName", apperr.NotFound, "branch not found")
}

func (f *fakeBranchRepo) List(_ context.Context, projectID uuid.UUID) ([]*models.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Branch
	for _, b := range f.branches {
		if b.ProjectID == projectID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeBranchRepo) Update(_ context.Context, b *models.Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *b
	f.branches[b.ID] = &cp
	return nil
}

func (f *fakeBranchRepo) Delete(_ context.Context, _, branchID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.branches, branchID)
	return 0, nil
}

func (f *fakeBranchRepo) RecomputeCounters(_ context.Context, _ uuid.UUID) error { return nil }

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func newFakeTaskRepo() *fakeTaskRepo { return &fakeTaskRepo{tasks: map[uuid.UUID]*models.Task{}} }

func (f *fakeTaskRepo) Create(_ context.Context, t *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}

func (f *fakeTaskRepo) Get(_ context.Context, id uuid.UUID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, apperr.New("fakeTaskRepo.Get", apperr.NotFound, "task not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTaskRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return f.Get(ctx, id)
}

func (f *fakeTaskRepo) List(_ context.Context, filter repository.TaskFilter) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Task
	for _, t := range f.tasks {
		if filter.BranchID != nil && t.BranchID != *filter.BranchID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeTaskRepo) Update(_ context.Context, t *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}

func (f *fakeTaskRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return apperr.New("fakeTaskRepo.UpdateStatus", apperr.NotFound, "task not found")
	}
	t.Status = status
	return nil
}

func (f *fakeTaskRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	return nil
}

// fakeCoordinationRepo is an in-memory repository.CoordinationRepository.
type fakeCoordinationRepo struct {
	mu        sync.Mutex
	handoffs  map[uuid.UUID]*models.WorkHandoff
	conflicts map[uuid.UUID]*models.ConflictRecord
	messages  []*models.AgentCommunication
}

func newFakeCoordinationRepo() *fakeCoordinationRepo {
	return &fakeCoordinationRepo{handoffs: map[uuid.UUID]*models.WorkHandoff{}, conflicts: map[uuid.UUID]*models.ConflictRecord{}}
}

func (f *fakeCoordinationRepo) CreateHandoff(_ context.Context, h *models.WorkHandoff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *h
	f.handoffs[h.ID] = &cp
	return nil
}

func (f *fakeCoordinationRepo) GetHandoff(_ context.Context, id uuid.UUID) (*models.WorkHandoff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handoffs[id]
	if !ok {
		return nil, apperr.New("fakeCoordinationRepo.GetHandoff", apperr.NotFound, "handoff not found")
	}
	cp := *h
	return &cp, nil
}

func (f *fakeCoordinationRepo) UpdateHandoffStatus(_ context.Context, id uuid.UUID, status models.HandoffStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handoffs[id]
	if !ok {
		return apperr.New("fakeCoordinationRepo.UpdateHandoffStatus", apperr.NotFound, "handoff not found")
	}
	h.Status = status
	return nil
}

func (f *fakeCoordinationRepo) CreateConflict(_ context.Context, c *models.ConflictRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.conflicts[c.ID] = &cp
	return nil
}

func (f *fakeCoordinationRepo) ResolveConflict(_ context.Context, id uuid.UUID, strategy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conflicts[id]
	if !ok {
		return apperr.New("fakeCoordinationRepo.ResolveConflict", apperr.NotFound, "conflict not found")
	}
	c.IsResolved = true
	c.Strategy = strategy
	return nil
}

func (f *fakeCoordinationRepo) GetConflict(_ context.Context, id uuid.UUID) (*models.ConflictRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conflicts[id]
	if !ok {
		return nil, apperr.New("fakeCoordinationRepo.GetConflict", apperr.NotFound, "conflict not found")
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCoordinationRepo) CreateMessage(_ context.Context, m *models.AgentCommunication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeCoordinationRepo) ListMessagesFor(_ context.Context, agent string, limit int) ([]*models.AgentCommunication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AgentCommunication
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if m.From == agent || m.To.Has(agent) {
			out = append(out, m)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fakeContextRepo is a minimal repository.ContextRepository stub, enough for
// CompleteHandoff's best-effort AddInsight call.
type fakeContextRepo struct {
	mu       sync.Mutex
	insights []*models.ContextInsight
}

func newFakeContextRepo() *fakeContextRepo { return &fakeContextRepo{} }

func (f *fakeContextRepo) GetRecord(context.Context, models.ContextLevel, string) (*models.ContextRecord, error) {
	return nil, apperr.New("fakeContextRepo.GetRecord", apperr.NotFound, "not implemented")
}
func (f *fakeContextRepo) UpsertRecord(context.Context, *models.ContextRecord) error { return nil }
func (f *fakeContextRepo) UpdateRecordVersioned(context.Context, *models.ContextRecord, int) error {
	return nil
}

func (f *fakeContextRepo) AddInsight(_ context.Context, insight *models.ContextInsight) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *insight
	f.insights = append(f.insights, &cp)
	return nil
}
func (f *fakeContextRepo) ListInsights(context.Context, models.ContextLevel, string, int) ([]*models.ContextInsight, error) {
	return nil, nil
}
func (f *fakeContextRepo) CreateDelegation(context.Context, *models.ContextDelegation) error {
	return nil
}
func (f *fakeContextRepo) ListPendingDelegations(context.Context, models.ContextLevel, string) ([]*models.ContextDelegation, error) {
	return nil, nil
}
func (f *fakeContextRepo) MarkDelegationProcessed(context.Context, uuid.UUID, bool, models.ImplementationStatus, string, string) error {
	return nil
}
func (f *fakeContextRepo) RecordPropagation(context.Context, *models.PropagationRecord) error {
	return nil
}

// fakeWorkloadPusher records every PushWorkload call for assertion.
type fakeWorkloadPusher struct {
	mu    sync.Mutex
	calls []pushCall
}

type pushCall struct {
	ProjectID       uuid.UUID
	AgentID         string
	CurrentWorkload int
	MaxConcurrent   int
}

func (p *fakeWorkloadPusher) PushWorkload(projectID uuid.UUID, agentID string, currentWorkload, maxConcurrent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, pushCall{projectID, agentID, currentWorkload, maxConcurrent})
}
