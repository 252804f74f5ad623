package models

import (
	"time"

	"github.com/google/uuid"
)

// ContextLevel is one of the four strictly ordered inheritance tiers,
// task < branch < project < global (spec.md §4.2.1).
type ContextLevel string

const (
	LevelGlobal  ContextLevel = "global"
	LevelProject ContextLevel = "project"
	LevelBranch  ContextLevel = "branch"
	LevelTask    ContextLevel = "task"
)

// levelRank gives the strict hierarchy order used by P3 (delegation
// direction) and the inheritance walk.
var levelRank = map[ContextLevel]int{
	LevelTask:    0,
	LevelBranch:  1,
	LevelProject: 2,
	LevelGlobal:  3,
}

// Rank returns l's position in the hierarchy; higher ranks sit above lower
// ones. Unrecognized levels rank -1 so comparisons against them always fail.
func (l ContextLevel) Rank() int {
	r, ok := levelRank[l]
	if !ok {
		return -1
	}
	return r
}

// Above reports whether l sits strictly above other in the hierarchy.
func (l ContextLevel) Above(other ContextLevel) bool {
	return l.Rank() > other.Rank()
}

// ContextRecord is the generic persisted shape of a single tier's context,
// parameterized by level. The Data map holds tier-specific keys (team
// preferences, security policies, delegation rules, ...); unknown keys are
// preserved verbatim per spec.md §9's forward-compatibility note.
type ContextRecord struct {
	ID                 uuid.UUID              `db:"id" json:"id"`
	Level              ContextLevel           `db:"level" json:"level"`
	EntityID           string                 `db:"entity_id" json:"entity_id"` // project_id/branch_id/task_id as string, "" for the global singleton
	ParentID           string                 `db:"parent_id" json:"parent_id,omitempty"`
	Data               map[string]interface{} `db:"-" json:"data"`
	GlobalOverrides    StringSet              `db:"global_overrides" json:"global_overrides,omitempty"`
	LocalOverrides     StringSet              `db:"local_overrides" json:"local_overrides,omitempty"`
	InheritanceDisabled bool                  `db:"inheritance_disabled" json:"inheritance_disabled"`
	ForceLocalOnly     bool                   `db:"force_local_only" json:"force_local_only"`
	Version            int                    `db:"version" json:"version"`
	CreatedAt          time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time              `db:"updated_at" json:"updated_at"`
}

// ResolvedContext is the output of the inheritance walk (spec.md §4.2.2).
type ResolvedContext struct {
	ContextID        string                 `json:"context_id"`
	Level            ContextLevel           `json:"level"`
	Merged           map[string]interface{} `json:"merged"`
	ResolutionPath    []TierRef              `json:"resolution_path"`
	DependenciesHash string                 `json:"dependencies_hash"`
	FromCache        bool                   `json:"from_cache"`
}

// TierRef identifies one tier walked during resolution.
type TierRef struct {
	Level ContextLevel `json:"level"`
	ID    string       `json:"id"`
}

// InheritanceCacheEntry is the persisted/in-memory cache row for a resolved
// view, keyed by (context_id, level).
type InheritanceCacheEntry struct {
	ContextID           string       `json:"context_id"`
	Level               ContextLevel `json:"level"`
	ResolvedContext     *ResolvedContext `json:"resolved_context"`
	DependenciesHash    string       `json:"dependencies_hash"`
	ResolutionPath      []TierRef    `json:"resolution_path"`
	CreatedAt           time.Time    `json:"created_at"`
	ExpiresAt           time.Time    `json:"expires_at"`
	HitCount            int64        `json:"hit_count"`
	LastHit             time.Time    `json:"last_hit"`
	SizeBytes           int          `json:"size_bytes"`
	Invalidated         bool         `json:"invalidated"`
	InvalidationReason  string       `json:"invalidation_reason,omitempty"`
}

// Importance is an insight's priority for human/agent review.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// ContextInsight is an append-only learned fact attached to a context tier.
type ContextInsight struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	ContextID      string       `db:"context_id" json:"context_id"`
	ContextLevel   ContextLevel `db:"context_level" json:"context_level"`
	Content        string       `db:"content" json:"content"`
	Category       string       `db:"category" json:"category"`
	Importance     Importance   `db:"importance" json:"importance"`
	Confidence     float64      `db:"confidence" json:"confidence"`
	SourceAgent    string       `db:"source_agent" json:"source_agent"`
	SourceType     string       `db:"source_type" json:"source_type"`
	RelatedTaskID  *uuid.UUID   `db:"related_task_id" json:"related_task_id,omitempty"`
	Actionable     bool         `db:"actionable" json:"actionable"`
	ActionTaken    bool         `db:"action_taken" json:"action_taken"`
	ExpiresAt      *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
	AccessedCount  int64        `db:"accessed_count" json:"accessed_count"`
	LastAccessed   *time.Time   `db:"last_accessed" json:"last_accessed,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// DelegationTrigger distinguishes why a delegation was created.
type DelegationTrigger string

const (
	TriggerManual        DelegationTrigger = "manual"
	TriggerAutoThreshold DelegationTrigger = "auto_threshold"
	TriggerAutoPattern   DelegationTrigger = "auto_pattern"
	TriggerAIInitiated   DelegationTrigger = "ai_initiated"
)

// ImplementationStatus tracks a delegation's processing outcome.
type ImplementationStatus string

const (
	ImplPending     ImplementationStatus = "pending"
	ImplImplemented ImplementationStatus = "implemented"
	ImplRejected    ImplementationStatus = "rejected"
	ImplExpired     ImplementationStatus = "expired"
)

// ContextDelegation is an upward write from a lower tier to a higher one.
type ContextDelegation struct {
	ID                   uuid.UUID              `db:"id" json:"id"`
	SourceLevel          ContextLevel           `db:"source_level" json:"source_level"`
	SourceID             string                 `db:"source_id" json:"source_id"`
	TargetLevel          ContextLevel           `db:"target_level" json:"target_level"`
	TargetID             string                 `db:"target_id" json:"target_id"`
	DelegatedData        map[string]interface{} `db:"-" json:"delegated_data"`
	Reason               string                 `db:"reason" json:"reason"`
	TriggerType          DelegationTrigger      `db:"trigger_type" json:"trigger_type"`
	Confidence           *float64               `db:"confidence" json:"confidence,omitempty"`
	AutoDelegated        bool                   `db:"auto_delegated" json:"auto_delegated"`
	Processed            bool                   `db:"processed" json:"processed"`
	Approved             *bool                  `db:"approved" json:"approved,omitempty"`
	RejectedReason       string                 `db:"rejected_reason" json:"rejected_reason,omitempty"`
	ImpactAssessment     string                 `db:"impact_assessment" json:"impact_assessment,omitempty"`
	ImplementationStatus ImplementationStatus   `db:"implementation_status" json:"implementation_status"`
	CreatedBy            string                 `db:"created_by" json:"created_by"`
	ProcessedBy          string                 `db:"processed_by" json:"processed_by,omitempty"`
	CreatedAt            time.Time              `db:"created_at" json:"created_at"`
	ProcessedAt          *time.Time             `db:"processed_at" json:"processed_at,omitempty"`
}

// PropagationRecord audits a cascading invalidation triggered by an Update.
type PropagationRecord struct {
	ID               uuid.UUID    `db:"id" json:"id"`
	SourceLevel      ContextLevel `db:"source_level" json:"source_level"`
	SourceID         string       `db:"source_id" json:"source_id"`
	ChangeType       string       `db:"change_type" json:"change_type"`
	AffectedContexts []TierRef    `db:"-" json:"affected_contexts"`
	Status           string       `db:"status" json:"status"` // pending|completed|failed
	DurationMS       int64        `db:"duration_ms" json:"duration_ms"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}
