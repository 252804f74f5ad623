package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/contextengine"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/observability"
	"github.com/S-Corkum/agentmesh/pkg/repository"
)

// TaskCandidate is NextTask's result: the chosen task plus the advisory
// workflow_guidance spec.md §4.4 step 5 describes.
type TaskCandidate struct {
	Task             *models.Task              `json:"task"`
	Context          *models.ResolvedContext   `json:"context,omitempty"`
	WorkflowGuidance *WorkflowGuidance         `json:"workflow_guidance,omitempty"`
}

// WorkflowGuidance is a pure, deterministic function of the chosen task.
type WorkflowGuidance struct {
	RecommendedAgent string   `json:"recommended_agent,omitempty"`
	Checklist        []string `json:"checklist"`
	UnblocksOnDone   []string `json:"unblocks_on_done"`
}

// NoReadyTask is the diagnostic returned alongside a nil candidate when no
// task in the branch is ready (spec.md §4.4 step 4).
type NoReadyTask struct {
	Blockers []string `json:"blockers"`
}

func (n *NoReadyTask) Error() string { return "no ready task in branch" }

// Scheduler implements NextTask and the progress/branch aggregation rules.
type Scheduler struct {
	Tasks        repository.TaskRepository
	Subtasks     repository.SubtaskRepository
	Dependencies repository.DependencyRepository
	Branches     repository.BranchRepository
	Engine       *contextengine.Engine
	Logger       observability.Logger
	Tracer       observability.StartSpanFunc

	// LabelAgentMap is the pure mapping table from task label to a
	// recommended agent name, configured at startup (spec.md §4.4 step 5).
	LabelAgentMap map[string]string

	// PollRateLimit, if non-zero, bounds how often a single agent may call
	// NextTask — a defensive measure against a misbehaving agent runtime
	// busy-polling a branch, mirroring the teacher's per-adapter rate
	// limiting. Zero disables limiting.
	PollRateLimit rate.Limit
	PollBurst     int

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

func (s *Scheduler) limiterFor(agent string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	if s.limiters == nil {
		s.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := s.limiters[agent]
	if !ok {
		burst := s.PollBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(s.PollRateLimit, burst)
		s.limiters[agent] = l
	}
	return l
}

// NextTask implements spec.md §4.4's selection algorithm.
func (s *Scheduler) NextTask(ctx context.Context, branchID uuid.UUID, requestingAgent string, includeContext bool) (*TaskCandidate, error) {
	if requestingAgent != "" && s.PollRateLimit > 0 {
		if err := s.limiterFor(requestingAgent).Wait(ctx); err != nil {
			return nil, apperr.Wrap("scheduler.NextTask", apperr.Cancelled, err)
		}
	}

	ctx, span := s.Tracer(ctx, "scheduler.NextTask")
	defer span.End()

	tasks, err := s.Tasks.List(ctx, repository.TaskFilter{
		BranchID: &branchID,
		Status:   []models.TaskStatus{models.TaskTodo, models.TaskInProgress},
	})
	if err != nil {
		return nil, apperr.Wrap("scheduler.NextTask", apperr.Internal, err)
	}

	branch, err := s.Branches.Get(ctx, branchID)
	if err != nil {
		return nil, err
	}

	var blockers []string
	var ready []*models.Task

	for _, t := range tasks {
		ok, reason := s.isReady(ctx, t, branch, requestingAgent)
		if ok {
			ready = append(ready, t)
		} else if reason != "" {
			blockers = append(blockers, reason)
		}
	}

	if len(ready) == 0 {
		if len(blockers) == 0 {
			blockers = []string{"branch has no todo/in_progress tasks"}
		}
		return nil, &NoReadyTask{Blockers: blockers}
	}

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if (a.DueDate == nil) != (b.DueDate == nil) {
			return a.DueDate != nil // non-nil due dates sort before nil
		}
		if a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate) {
			return a.DueDate.Before(*b.DueDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	chosen := ready[0]
	candidate := &TaskCandidate{Task: chosen}

	if includeContext {
		resolved, err := s.Engine.Resolve(ctx, models.LevelTask, chosen.ID.String(), false)
		if err != nil {
			s.Logger.Warn("NextTask: context resolve failed", map[string]interface{}{"task_id": chosen.ID, "error": err.Error()})
		} else {
			candidate.Context = resolved
		}
	}

	candidate.WorkflowGuidance = s.guidanceFor(ctx, chosen)
	return candidate, nil
}

// isReady implements spec.md §4.4 step 2.
func (s *Scheduler) isReady(ctx context.Context, t *models.Task, branch *models.Branch, requestingAgent string) (bool, string) {
	if t.Status == models.TaskBlocked {
		return false, "task " + t.ID.String() + " is blocked"
	}

	deps, err := s.Dependencies.DependenciesOf(ctx, t.ID)
	if err != nil {
		return false, "task " + t.ID.String() + " dependency lookup failed"
	}
	for _, d := range deps {
		if d.Type != models.DependencyBlocks {
			continue
		}
		dep, err := s.Tasks.Get(ctx, d.DependsOnTask)
		if err != nil || dep.Status != models.TaskDone {
			return false, "task " + t.ID.String() + " waits on dependency " + d.DependsOnTask.String()
		}
	}

	if requestingAgent != "" {
		assignedToOther := len(t.Assignees) > 0 && !t.Assignees.Has(requestingAgent)
		branchOwnerMatches := branch.AssignedAgentID != nil && *branch.AssignedAgentID == requestingAgent
		if assignedToOther && !branchOwnerMatches {
			return false, "task " + t.ID.String() + " assigned to a different agent"
		}
	}

	return true, ""
}

func (s *Scheduler) guidanceFor(ctx context.Context, t *models.Task) *WorkflowGuidance {
	g := &WorkflowGuidance{
		Checklist: []string{
			"move to in_progress before starting work",
			"update subtask progress as work proceeds",
			"move to review when implementation is complete",
			"move to testing once reviewed",
			"complete the task to mark it done",
		},
	}

	for _, label := range t.Labels.Slice() {
		if agent, ok := s.LabelAgentMap[label]; ok {
			g.RecommendedAgent = agent
			break
		}
	}
	if g.RecommendedAgent == "" {
		if names := t.Assignees.Slice(); len(names) > 0 {
			g.RecommendedAgent = names[0]
		}
	}

	dependents, err := s.Dependencies.DependentsOf(ctx, t.ID)
	if err == nil {
		for _, id := range dependents {
			g.UnblocksOnDone = append(g.UnblocksOnDone, id.String())
		}
	}
	return g
}

// ApplySubtaskUpdate implements spec.md §4.4's parent-status rule: parent
// status moves todo->in_progress on the first in_progress subtask, but never
// auto-completes. It does not compute or store parent progress; that figure
// (the unweighted average of subtask progress) comes from AverageProgress.
func (s *Scheduler) ApplySubtaskUpdate(ctx context.Context, taskID uuid.UUID) error {
	ctx, span := s.Tracer(ctx, "scheduler.ApplySubtaskUpdate")
	defer span.End()

	subtasks, err := s.Subtasks.ListByTask(ctx, taskID)
	if err != nil {
		return apperr.Wrap("scheduler.ApplySubtaskUpdate", apperr.Internal, err)
	}
	if len(subtasks) == 0 {
		return nil
	}

	task, err := s.Tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}

	anyInProgress := false
	for _, st := range subtasks {
		if st.Status == models.TaskInProgress {
			anyInProgress = true
			break
		}
	}

	if anyInProgress && task.Status == models.TaskTodo {
		if err := ValidateTransition(task.Status, models.TaskInProgress); err == nil {
			return s.Tasks.UpdateStatus(ctx, taskID, models.TaskInProgress)
		}
	}
	// all-subtasks-done is intentionally not auto-applied to the parent;
	// completion requires an explicit CompleteTask call.
	return nil
}

// AverageProgress computes avg(subtask.progress_percentage), weighted
// equally, for display purposes (spec.md §4.4).
func AverageProgress(subtasks []*models.Subtask) int {
	if len(subtasks) == 0 {
		return 0
	}
	total := 0
	for _, st := range subtasks {
		total += st.ProgressPercentage
	}
	return total / len(subtasks)
}
