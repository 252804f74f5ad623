package scheduler_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

// fakeTaskRepo is an in-memory repository.TaskRepository, grounded on the
// teacher's use of hand-written fakes (rather than generated mocks) for
// pure-logic package tests that don't need SQL assertions.
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
		if len(filter.Status) > 0 && !containsStatus(filter.Status, t.Status) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func containsStatus(set []models.TaskStatus, s models.TaskStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func (f *fakeTaskRepo) Update(_ context.Context, t *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[t.ID]; !ok {
		return apperr.New("fakeTaskRepo.Update", apperr.NotFound, "task not found")
	}
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

// fakeSubtaskRepo is an in-memory repository.SubtaskRepository.
type fakeSubtaskRepo struct {
	mu       sync.Mutex
	subtasks map[uuid.UUID]*models.Subtask
}

func newFakeSubtaskRepo() *fakeSubtaskRepo {
	return &fakeSubtaskRepo{subtasks: map[uuid.UUID]*models.Subtask{}}
}

func (f *fakeSubtaskRepo) Create(_ context.Context, s *models.Subtask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.subtasks[s.ID] = &cp
	return nil
}

func (f *fakeSubtaskRepo) Get(_ context.Context, id uuid.UUID) (*models.Subtask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subtasks[id]
	if !ok {
		return nil, apperr.New("fakeSubtaskRepo.Get", apperr.NotFound, "subtask not found")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubtaskRepo) ListByTask(_ context.Context, taskID uuid.UUID) ([]*models.Subtask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Subtask
	for _, s := range f.subtasks {
		if s.TaskID == taskID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSubtaskRepo) Update(_ context.Context, s *models.Subtask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.subtasks[s.ID] = &cp
	return nil
}

func (f *fakeSubtaskRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subtasks, id)
	return nil
}

// fakeDependencyRepo is an in-memory repository.DependencyRepository.
type fakeDependencyRepo struct {
	mu   sync.Mutex
	deps []models.Dependency
}

func newFakeDependencyRepo() *fakeDependencyRepo { return &fakeDependencyRepo{} }

func (f *fakeDependencyRepo) Add(_ context.Context, taskID, dependsOn uuid.UUID, depType models.DependencyType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deps = append(f.deps, models.Dependency{TaskID: taskID, DependsOnTask: dependsOn, Type: depType})
	return nil
}

func (f *fakeDependencyRepo) Remove(_ context.Context, taskID, dependsOn uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.deps[:0]
	for _, d := range f.deps {
		if d.TaskID == taskID && d.DependsOnTask == dependsOn {
			continue
		}
		out = append(out, d)
	}
	f.deps = out
	return nil
}

func (f *fakeDependencyRepo) DependenciesOf(_ context.Context, taskID uuid.UUID) ([]models.Dependency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Dependency
	for _, d := range f.deps {
		if d.TaskID == taskID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDependencyRepo) DependentsOf(_ context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for _, d := range f.deps {
		if d.DependsOnTask == taskID {
			out = append(out, d.TaskID)
		}
	}
	return out, nil
}

func (f *fakeDependencyRepo) WouldCycle(_ context.Context, _, taskID, dependsOn uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// BFS from dependsOn forward through existing edges looking for taskID.
	visited := map[uuid.UUID]bool{}
	queue := []uuid.UUID{dependsOn}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == taskID {
			return true, nil
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, d := range f.deps {
			if d.TaskID == cur {
				queue = append(queue, d.DependsOnTask)
			}
		}
	}
	return false, nil
}

// fakeBranchRepo is a minimal in-memory repository.BranchRepository.
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
