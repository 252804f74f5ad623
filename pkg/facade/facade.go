package facade

import (
	"context"
	"time"

	"github.com/S-Corkum/agentmesh/pkg/agentcoord"
	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/cache"
	"github.com/S-Corkum/agentmesh/pkg/contextengine"
	"github.com/S-Corkum/agentmesh/pkg/observability"
	"github.com/S-Corkum/agentmesh/pkg/repository"
	"github.com/S-Corkum/agentmesh/pkg/scheduler"
)

// Facade is the Tool Dispatch Facade (C6): it holds everything a manage_*
// call needs and has no state of its own beyond the idempotency cache,
// mirroring the teacher's api handler structs that wrap services rather
// than reimplement them.
type Facade struct {
	Projects     repository.ProjectRepository
	Branches     repository.BranchRepository
	Tasks        repository.TaskRepository
	Subtasks     repository.SubtaskRepository
	Dependencies repository.DependencyRepository
	Agents       repository.AgentRepository
	Audit        repository.AuditRepository

	Engine      *contextengine.Engine
	Scheduler   *scheduler.Scheduler
	Coordinator *agentcoord.Coordinator

	Idempotency cache.Cache
	Validator   *Validator

	Logger  observability.Logger
	Tracer  observability.StartSpanFunc
	Metrics observability.MetricsClient

	// ToolCallTimeout bounds every manage_* call; NextTaskTimeout replaces
	// it for manage_task's next action with a tighter bound (SPEC_FULL.md's
	// config.CoreConfig fields).
	ToolCallTimeout time.Duration
	NextTaskTimeout time.Duration

	// IdempotencyWindow bounds how long an idempotency key's response (per tool) is replayed
	// verbatim instead of re-executing the underlying mutation.
	IdempotencyWindow time.Duration

	// ReopenGrace bounds manage_task.reopen's window past a task's last
	// update (spec.md §4.4, config.CoreConfig.ReopenGraceSeconds).
	ReopenGrace time.Duration
}

func New(
	projects repository.ProjectRepository,
	branches repository.BranchRepository,
	tasks repository.TaskRepository,
	subtasks repository.SubtaskRepository,
	dependencies repository.DependencyRepository,
	agents repository.AgentRepository,
	audit repository.AuditRepository,
	engine *contextengine.Engine,
	sched *scheduler.Scheduler,
	coord *agentcoord.Coordinator,
	idempotency cache.Cache,
	validator *Validator,
	logger observability.Logger,
	tracer observability.StartSpanFunc,
	metrics observability.MetricsClient,
) *Facade {
	return &Facade{
		Projects: projects, Branches: branches, Tasks: tasks, Subtasks: subtasks,
		Dependencies: dependencies, Agents: agents, Audit: audit,
		Engine: engine, Scheduler: sched, Coordinator: coord,
		Idempotency: idempotency, Validator: validator,
		Logger: logger, Tracer: tracer, Metrics: metrics,
		ToolCallTimeout:   30 * time.Second,
		NextTaskTimeout:   5 * time.Second,
		IdempotencyWindow: 10 * time.Minute,
		ReopenGrace:       24 * time.Hour,
	}
}

// Request is the uniform shape every manage_* entry point receives: the
// dispatched action name, its raw JSON-decoded params, the caller's
// identity for audit attribution, and an optional idempotency key.
type Request struct {
	Action         string
	Params         map[string]interface{}
	Actor          string
	RequestID      string
	IdempotencyKey string
}

// Dispatch is the single point every transport (gin handler, gRPC handler,
// stdio tool call) funnels through: it resolves idempotency, runs the
// requested tool+action, audits mutations, and always returns an Envelope,
// never a raw error.
func (f *Facade) Dispatch(ctx context.Context, tool string, req Request) Envelope {
	ctx, span := f.Tracer(ctx, "facade.Dispatch."+tool+"."+req.Action)
	defer span.End()

	operation := tool + "." + req.Action

	if req.IdempotencyKey != "" {
		if cached, ok := f.replayIfSeen(ctx, tool, req.IdempotencyKey); ok {
			return cached
		}
	}

	timeout := f.ToolCallTimeout
	if tool == "manage_task" && req.Action == "next" {
		timeout = f.NextTaskTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := f.Validator.Validate(tool, req.Action, req.Params); err != nil {
		return Fail(req.RequestID, operation, err)
	}

	data, guidance, err := f.route(ctx, tool, req)
	var env Envelope
	if err != nil {
		env = Fail(req.RequestID, operation, err)
	} else {
		env = Ok(req.RequestID, operation, data, guidance)
	}

	if req.IdempotencyKey != "" {
		f.rememberReplay(ctx, tool, req.IdempotencyKey, env)
	}
	if err == nil && isMutating(req.Action) {
		f.audit(ctx, operation, req, data)
	}
	return env
}

func (f *Facade) route(ctx context.Context, tool string, req Request) (interface{}, string, error) {
	switch tool {
	case "manage_project":
		return f.dispatchProject(ctx, req)
	case "manage_git_branch":
		return f.dispatchBranch(ctx, req)
	case "manage_task":
		return f.dispatchTask(ctx, req)
	case "manage_subtask":
		return f.dispatchSubtask(ctx, req)
	case "manage_agent":
		return f.dispatchAgent(ctx, req)
	case "manage_context":
		return f.dispatchContext(ctx, req)
	case "manage_connection":
		return f.dispatchConnection(ctx, req)
	case "manage_compliance":
		return f.dispatchCompliance(ctx, req)
	default:
		return nil, "", apperr.New("facade.Dispatch", apperr.Invalid, "unknown tool: "+tool)
	}
}

func isMutating(action string) bool {
	switch action {
	case "list", "get", "next", "health_check", "capabilities", "get_audit_trail",
		"list_delegations", "search", "resolve", "validate_compliance":
		return false
	default:
		return true
	}
}
