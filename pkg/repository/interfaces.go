// Package repository defines the storage contracts for the Identity &
// Entity Store (C1), the Dependency & Label Graph (C3), and the raw
// persistence the Context Engine (C2) and Agent Coordinator (C5) sit on
// top of. Concrete implementations live in pkg/repository/postgres,
// following the teacher's pkg/repository/interfaces + pkg/repository/postgres
// split.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/models"
)

// TaskFilter narrows ListTasks results (spec.md §4.1).
type TaskFilter struct {
	BranchID   *uuid.UUID
	Status     []models.TaskStatus
	Priority   []models.Priority
	Label      string
	Assignee   string
	DueBefore  *time.Time
	DueAfter   *time.Time
	Limit      int
	Offset     int
}

// ProjectRepository is the CRUD contract for Project entities.
type ProjectRepository interface {
	Create(ctx context.Context, p *models.Project) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	List(ctx context.Context, userID string) ([]*models.Project, error)
	Update(ctx context.Context, p *models.Project) error
	Archive(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// BranchRepository is the CRUD contract for Branch entities, plus the
// trigger-equivalent counter maintenance spec.md §3/P1 requires.
type BranchRepository interface {
	Create(ctx context.Context, b *models.Branch) error
	Get(ctx context.Context, id uuid.UUID) (*models.Branch, error)
	GetByName(ctx context.Context, projectID uuid.UUID, name string) (*models.Branch, error)
	List(ctx context.Context, projectID uuid.UUID) ([]*models.Branch, error)
	Update(ctx context.Context, b *models.Branch) error
	Delete(ctx context.Context, projectID, branchID uuid.UUID) (tasksDeleted int, err error)
	// RecomputeCounters recalculates task_count/completed_task_count and
	// branch status from the authoritative task rows (P1).
	RecomputeCounters(ctx context.Context, branchID uuid.UUID) error
}

// TaskRepository is the CRUD contract for Task entities.
type TaskRepository interface {
	Create(ctx context.Context, t *models.Task) error
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]*models.Task, error)
	Update(ctx context.Context, t *models.Task) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SubtaskRepository is the CRUD contract for Subtask entities.
type SubtaskRepository interface {
	Create(ctx context.Context, s *models.Subtask) error
	Get(ctx context.Context, id uuid.UUID) (*models.Subtask, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Subtask, error)
	Update(ctx context.Context, s *models.Subtask) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// DependencyRepository is the Dependency & Label Graph contract (C3).
type DependencyRepository interface {
	Add(ctx context.Context, taskID, dependsOn uuid.UUID, depType models.DependencyType) error
	Remove(ctx context.Context, taskID, dependsOn uuid.UUID) error
	DependenciesOf(ctx context.Context, taskID uuid.UUID) ([]models.Dependency, error)
	DependentsOf(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error)
	// WouldCycle reports whether adding taskID -> dependsOn would create a
	// cycle in the project's dependency DAG (P2).
	WouldCycle(ctx context.Context, projectID, taskID, dependsOn uuid.UUID) (bool, error)
}

// AgentRepository is the CRUD + workload-accounting contract for Agent
// entities (C5).
type AgentRepository interface {
	Create(ctx context.Context, a *models.Agent) error
	Get(ctx context.Context, projectID uuid.UUID, id string) (*models.Agent, error)
	List(ctx context.Context, projectID uuid.UUID) ([]*models.Agent, error)
	Update(ctx context.Context, a *models.Agent) error
	Delete(ctx context.Context, projectID uuid.UUID, id string) error
	// AdjustWorkload atomically changes current_workload by delta, rejecting
	// with apperr.Capacity if the result would exceed max_concurrent_tasks
	// and with apperr.Invalid if it would fall below zero (P6).
	AdjustWorkload(ctx context.Context, projectID uuid.UUID, id string, delta int) error

	AssignToBranch(ctx context.Context, a models.AgentBranchAssignment) error
	BranchesOf(ctx context.Context, projectID uuid.UUID, agentID string) ([]uuid.UUID, error)
	AgentsOf(ctx context.Context, projectID, branchID uuid.UUID) ([]string, error)
}

// AuditRepository appends to the supplemented compliance audit trail
// (SPEC_FULL.md §4).
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditEntry, error)
}

// CoordinationRepository persists the agent-to-agent coordination
// primitives: handoffs, conflicts, and messages.
type CoordinationRepository interface {
	CreateHandoff(ctx context.Context, h *models.WorkHandoff) error
	GetHandoff(ctx context.Context, id uuid.UUID) (*models.WorkHandoff, error)
	UpdateHandoffStatus(ctx context.Context, id uuid.UUID, status models.HandoffStatus) error

	CreateConflict(ctx context.Context, c *models.ConflictRecord) error
	ResolveConflict(ctx context.Context, id uuid.UUID, strategy string) error
	GetConflict(ctx context.Context, id uuid.UUID) (*models.ConflictRecord, error)

	CreateMessage(ctx context.Context, m *models.AgentCommunication) error
	ListMessagesFor(ctx context.Context, agent string, limit int) ([]*models.AgentCommunication, error)
}

// ContextRepository is the raw persistence layer the Context Engine (C2)
// sits on top of: one row per (level, entity_id) tier, plus the append-only
// insight/delegation/propagation logs.
type ContextRepository interface {
	GetRecord(ctx context.Context, level models.ContextLevel, entityID string) (*models.ContextRecord, error)
	UpsertRecord(ctx context.Context, rec *models.ContextRecord) error
	// UpdateRecordVersioned applies a compare-and-swap on Version, returning
	// apperr.VersionConflict if expectedVersion doesn't match the stored row.
	UpdateRecordVersioned(ctx context.Context, rec *models.ContextRecord, expectedVersion int) error

	AddInsight(ctx context.Context, insight *models.ContextInsight) error
	ListInsights(ctx context.Context, level models.ContextLevel, entityID string, limit int) ([]*models.ContextInsight, error)

	CreateDelegation(ctx context.Context, d *models.ContextDelegation) error
	ListPendingDelegations(ctx context.Context, targetLevel models.ContextLevel, targetID string) ([]*models.ContextDelegation, error)
	MarkDelegationProcessed(ctx context.Context, id uuid.UUID, approved bool, status models.ImplementationStatus, processedBy, rejectedReason string) error

	RecordPropagation(ctx context.Context, p *models.PropagationRecord) error
}
