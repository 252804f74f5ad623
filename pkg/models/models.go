// Package models defines the persisted entities of the orchestration core:
// projects, branches, tasks, subtasks, agents, dependency edges, and the
// four-tier context records. Field tags follow sqlx's `db` convention, the
// teacher's convention throughout pkg/repository/postgres.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

// Project is the top-level container owning branches.
type Project struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	Name        string                 `db:"name" json:"name"`
	Description string                 `db:"description" json:"description"`
	Status      ProjectStatus          `db:"status" json:"status"`
	UserID      string                 `db:"user_id" json:"user_id"`
	Metadata    map[string]interface{} `db:"-" json:"metadata,omitempty"`
	MetadataRaw []byte                 `db:"metadata" json:"-"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `db:"updated_at" json:"updated_at"`
}

// Priority is shared by branches, tasks, and subtasks.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

// priorityRank gives the scheduler's composite sort key a numeric order;
// higher ranks sort first.
var priorityRank = map[Priority]int{
	PriorityCritical: 5,
	PriorityUrgent:   4,
	PriorityHigh:     3,
	PriorityMedium:   2,
	PriorityLow:      1,
}

// Rank returns p's numeric priority rank, 0 for an unrecognized value.
func (p Priority) Rank() int { return priorityRank[p] }

// BranchStatus is the lifecycle state of a Branch.
type BranchStatus string

const (
	BranchTodo     BranchStatus = "todo"
	BranchActive   BranchStatus = "active"
	BranchBlocked  BranchStatus = "blocked"
	BranchDone     BranchStatus = "done"
	BranchArchived BranchStatus = "archived"
)

// MainBranchName is protected from deletion (spec.md B2).
const MainBranchName = "main"

// Branch is a named grouping of tasks inside a project; the unit of agent
// ownership and the scope of NextTask.
type Branch struct {
	ID                  uuid.UUID    `db:"id" json:"id"`
	ProjectID           uuid.UUID    `db:"project_id" json:"project_id"`
	Name                string       `db:"name" json:"name"`
	Description         string       `db:"description" json:"description"`
	AssignedAgentID     *string      `db:"assigned_agent_id" json:"assigned_agent_id,omitempty"`
	Priority            Priority     `db:"priority" json:"priority"`
	Status              BranchStatus `db:"status" json:"status"`
	TaskCount           int          `db:"task_count" json:"task_count"`
	CompletedTaskCount  int          `db:"completed_task_count" json:"completed_task_count"`
	CreatedAt           time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updated_at"`
}

// TaskStatus is the task state-machine's state (pkg/scheduler/statemachine.go
// owns the transition table).
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskTesting    TaskStatus = "testing"
	TaskDone       TaskStatus = "done"
	TaskBlocked    TaskStatus = "blocked"
	TaskCancelled  TaskStatus = "cancelled"
	TaskArchived   TaskStatus = "archived"
)

// Task is a unit of work owned by exactly one branch (immutable BranchID).
type Task struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	BranchID         uuid.UUID  `db:"branch_id" json:"branch_id"`
	Title            string     `db:"title" json:"title"`
	Description      string     `db:"description" json:"description"`
	Status           TaskStatus `db:"status" json:"status"`
	Priority         Priority   `db:"priority" json:"priority"`
	Details          string     `db:"details" json:"details,omitempty"`
	EstimatedEffort  string     `db:"estimated_effort" json:"estimated_effort,omitempty"`
	DueDate          *time.Time `db:"due_date" json:"due_date,omitempty"`
	ContextID        *uuid.UUID `db:"context_id" json:"context_id,omitempty"`
	CompletionSummary string    `db:"completion_summary" json:"completion_summary,omitempty"`
	Assignees        StringSet  `db:"assignees" json:"assignees"`
	Labels           StringSet  `db:"labels" json:"labels"`
	Dependencies     UUIDSet    `db:"-" json:"dependencies"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// SubtaskStatus mirrors TaskStatus's vocabulary for subtasks (spec.md §3).
type SubtaskStatus = TaskStatus

// Subtask is a child unit of work tracked for progress aggregation into its
// parent Task.
type Subtask struct {
	ID                 uuid.UUID      `db:"id" json:"id"`
	TaskID             uuid.UUID      `db:"task_id" json:"task_id"`
	Title              string         `db:"title" json:"title"`
	Description        string         `db:"description" json:"description"`
	Status             SubtaskStatus  `db:"status" json:"status"`
	Priority           Priority       `db:"priority" json:"priority"`
	Assignees          StringSet      `db:"assignees" json:"assignees"`
	EstimatedEffort    string         `db:"estimated_effort" json:"estimated_effort,omitempty"`
	ProgressPercentage int            `db:"progress_percentage" json:"progress_percentage"`
	ProgressNotes      string         `db:"progress_notes" json:"progress_notes,omitempty"`
	Blockers           string         `db:"blockers" json:"blockers,omitempty"`
	CompletionSummary  string         `db:"completion_summary" json:"completion_summary,omitempty"`
	// CurrentSessionSummary is the legacy field spec.md §9 keeps as a
	// read-only display fallback; writes must always target CompletionSummary.
	CurrentSessionSummary string    `db:"current_session_summary" json:"current_session_summary,omitempty"`
	ImpactOnParent        string    `db:"impact_on_parent" json:"impact_on_parent,omitempty"`
	InsightsFound         []string  `db:"-" json:"insights_found,omitempty"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
	CompletedAt           *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// DependencyType distinguishes a hard blocking edge from an informational one.
type DependencyType string

const (
	DependencyBlocks  DependencyType = "blocks"
	DependencyRelated DependencyType = "related"
)

// Dependency is a directed edge task_id -> depends_on_task_id.
type Dependency struct {
	TaskID        uuid.UUID      `db:"task_id" json:"task_id"`
	DependsOnTask uuid.UUID      `db:"depends_on_task_id" json:"depends_on_task_id"`
	Type          DependencyType `db:"type" json:"type"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// CrossBranchDependency is the project-scoped analogue of Dependency,
// recorded when prerequisite and dependent tasks live in different branches.
type CrossBranchDependency struct {
	ProjectID         uuid.UUID `db:"project_id" json:"project_id"`
	DependentTaskID   uuid.UUID `db:"dependent_task_id" json:"dependent_task_id"`
	PrerequisiteTaskID uuid.UUID `db:"prerequisite_task_id" json:"prerequisite_task_id"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// AgentStatus is the availability state of an Agent.
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentOffline   AgentStatus = "offline"
)

// Agent is a named capability recorded and routed to; it never executes
// inside the core (spec.md §1 Non-goals).
type Agent struct {
	ID                 string      `db:"id" json:"id"`
	ProjectID           uuid.UUID   `db:"project_id" json:"project_id"`
	Name                string      `db:"name" json:"name"`
	Description         string      `db:"description" json:"description"`
	CallAgent           string      `db:"call_agent" json:"call_agent"`
	Capabilities        StringSet   `db:"capabilities" json:"capabilities"`
	Specializations     StringSet   `db:"specializations" json:"specializations"`
	Status              AgentStatus `db:"status" json:"status"`
	MaxConcurrentTasks  int         `db:"max_concurrent_tasks" json:"max_concurrent_tasks"`
	CurrentWorkload     int         `db:"current_workload" json:"current_workload"`
	CompletedTasks      int         `db:"completed_tasks" json:"completed_tasks"`
	SuccessRate         float64     `db:"success_rate" json:"success_rate"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updated_at"`
}

// AgentBranchAssignment is the many-to-many agent<->branch join row.
type AgentBranchAssignment struct {
	ProjectID  uuid.UUID `db:"project_id" json:"project_id"`
	AgentID    string    `db:"agent_id" json:"agent_id"`
	BranchID   uuid.UUID `db:"branch_id" json:"branch_id"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
}
