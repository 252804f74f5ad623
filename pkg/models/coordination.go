package models

import (
	"time"

	"github.com/google/uuid"
)

// HandoffStatus is the lifecycle of a WorkHandoff.
type HandoffStatus string

const (
	HandoffPending   HandoffStatus = "pending"
	HandoffAccepted  HandoffStatus = "accepted"
	HandoffCompleted HandoffStatus = "completed"
	HandoffDeclined  HandoffStatus = "declined"
)

// WorkHandoff is a structured transfer of task responsibility between agents.
type WorkHandoff struct {
	ID        uuid.UUID              `db:"id" json:"id"`
	TaskID    uuid.UUID              `db:"task_id" json:"task_id"`
	FromAgent string                 `db:"from_agent" json:"from_agent"`
	ToAgent   string                 `db:"to_agent" json:"to_agent"`
	Reason    string                 `db:"reason" json:"reason"`
	Data      map[string]interface{} `db:"-" json:"data"`
	Status    HandoffStatus          `db:"status" json:"status"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt time.Time              `db:"updated_at" json:"updated_at"`
}

// ConflictRecord tracks a detected disagreement between agents working a task.
type ConflictRecord struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	TaskID     *uuid.UUID `db:"task_id" json:"task_id,omitempty"`
	Type       string     `db:"type" json:"type"`
	Agents     StringSet  `db:"agents" json:"agents"`
	Details    string     `db:"details" json:"details"`
	IsResolved bool       `db:"is_resolved" json:"is_resolved"`
	Strategy   string     `db:"strategy" json:"strategy,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// AgentCommunication is a structured message between agents, optionally
// scoped to a task.
type AgentCommunication struct {
	ID        uuid.UUID `db:"id" json:"id"`
	From      string    `db:"from_agent" json:"from"`
	To        StringSet `db:"to_agents" json:"to"`
	TaskID    *uuid.UUID `db:"task_id" json:"task_id,omitempty"`
	Type      string    `db:"type" json:"type"`
	Content   string    `db:"content" json:"content"`
	Priority  Priority  `db:"priority" json:"priority"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AuditEntry is the supplemented compliance audit trail row (SPEC_FULL §4):
// every mutating facade call appends one.
type AuditEntry struct {
	ID         uuid.UUID              `db:"id" json:"id"`
	RequestID  string                 `db:"request_id" json:"request_id"`
	Action     string                 `db:"action" json:"action"`
	Actor      string                 `db:"actor" json:"actor"`
	EntityType string                 `db:"entity_type" json:"entity_type"`
	EntityID   string                 `db:"entity_id" json:"entity_id"`
	Before     map[string]interface{} `db:"-" json:"before,omitempty"`
	After      map[string]interface{} `db:"-" json:"after,omitempty"`
	At         time.Time              `db:"at" json:"at"`
}
