package facade

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
)

// Validator holds one compiled gojsonschema schema per (tool, action) pair
// and rejects both missing required fields and unknown ones, since an
// unrecognized field is almost always a caller typo rather than forward
// compatibility (spec.md §7).
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator compiles the facade's action schemas. It panics on a bad
// schema literal, the same way the teacher panics on a bad embedded
// migration or template at startup: a malformed schema is a programmer
// error, never a runtime condition.
func NewValidator() *Validator {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema)}
	for key, raw := range actionSchemas {
		loader := gojsonschema.NewStringLoader(raw)
		schema, err := gojsonschema.NewSchema(loader)
		if err != nil {
			panic(fmt.Sprintf("facade: invalid schema for %s: %v", key, err))
		}
		v.schemas[key] = schema
	}
	return v
}

// Validate checks params against the schema registered for tool.action, if
// any. Tool/action pairs without a registered schema (the read-only actions,
// plus manage_agent.update and manage_context.invalidate_cache) pass through
// unchecked.
func (v *Validator) Validate(tool, action string, params map[string]interface{}) error {
	key := tool + "." + action
	schema, ok := v.schemas[key]
	if !ok {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	doc, err := json.Marshal(params)
	if err != nil {
		return apperr.Wrap("facade.Validate", apperr.Invalid, err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return apperr.Wrap("facade.Validate", apperr.Invalid, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return apperr.New("facade.Validate", apperr.Invalid, "invalid parameters for "+key).
		WithDetails(map[string]any{"violations": msgs, "joined": strings.Join(msgs, "; ")})
}

// actionSchemas registers strict (additionalProperties: false) schemas for
// the mutating actions listed below. manage_agent.update and
// manage_context.invalidate_cache have no entry and, like the read-only
// actions, rely on Go-level zero-value defaults instead.
var actionSchemas = map[string]string{
	"manage_project.create": `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"user_id": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_project.update": `{
		"type": "object",
		"required": ["project_id"],
		"properties": {
			"project_id": {"type": "string"},
			"name": {"type": "string"},
			"description": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_project.archive": `{
		"type": "object",
		"required": ["project_id"],
		"properties": {"project_id": {"type": "string"}},
		"additionalProperties": false
	}`,
	"manage_project.delete": `{
		"type": "object",
		"required": ["project_id"],
		"properties": {"project_id": {"type": "string"}},
		"additionalProperties": false
	}`,
	"manage_git_branch.create": `{
		"type": "object",
		"required": ["project_id", "name"],
		"properties": {
			"project_id": {"type": "string"},
			"name": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"priority": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_git_branch.update": `{
		"type": "object",
		"required": ["branch_id"],
		"properties": {
			"branch_id": {"type": "string"},
			"name": {"type": "string"},
			"description": {"type": "string"},
			"priority": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_git_branch.delete": `{
		"type": "object",
		"required": ["project_id", "branch_id"],
		"properties": {"project_id": {"type": "string"}, "branch_id": {"type": "string"}},
		"additionalProperties": false
	}`,
	"manage_git_branch.assign_agent": `{
		"type": "object",
		"required": ["project_id", "branch_id", "agent_id"],
		"properties": {
			"project_id": {"type": "string"},
			"branch_id": {"type": "string"},
			"agent_id": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_task.create": `{
		"type": "object",
		"required": ["branch_id", "title"],
		"properties": {
			"branch_id": {"type": "string"},
			"title": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"priority": {"type": "string"},
			"details": {"type": "string"},
			"estimated_effort": {"type": "string"},
			"due_date": {"type": "string"},
			"assignees": {"type": "array", "items": {"type": "string"}},
			"labels": {"type": "array", "items": {"type": "string"}}
		},
		"additionalProperties": false
	}`,
	"manage_task.update": `{
		"type": "object",
		"required": ["task_id"],
		"properties": {
			"task_id": {"type": "string"},
			"title": {"type": "string"},
			"description": {"type": "string"},
			"status": {"type": "string"},
			"priority": {"type": "string"},
			"details": {"type": "string"},
			"due_date": {"type": "string"},
			"assignees": {"type": "array", "items": {"type": "string"}},
			"labels": {"type": "array", "items": {"type": "string"}}
		},
		"additionalProperties": false
	}`,
	"manage_task.complete": `{
		"type": "object",
		"required": ["task_id", "completion_summary"],
		"properties": {
			"task_id": {"type": "string"},
			"completion_summary": {"type": "string", "minLength": 1},
			"testing_notes": {"type": "string"},
			"force": {"type": "boolean"}
		},
		"additionalProperties": false
	}`,
	"manage_task.reopen": `{
		"type": "object",
		"required": ["task_id"],
		"properties": {"task_id": {"type": "string"}},
		"additionalProperties": false
	}`,
	"manage_task.add_dependency": `{
		"type": "object",
		"required": ["task_id", "depends_on_task_id"],
		"properties": {
			"task_id": {"type": "string"},
			"depends_on_task_id": {"type": "string"},
			"type": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_task.remove_dependency": `{
		"type": "object",
		"required": ["task_id", "depends_on_task_id"],
		"properties": {
			"task_id": {"type": "string"},
			"depends_on_task_id": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_subtask.create": `{
		"type": "object",
		"required": ["task_id", "title"],
		"properties": {
			"task_id": {"type": "string"},
			"title": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"priority": {"type": "string"},
			"assignees": {"type": "array", "items": {"type": "string"}}
		},
		"additionalProperties": false
	}`,
	"manage_subtask.update": `{
		"type": "object",
		"required": ["subtask_id"],
		"properties": {
			"subtask_id": {"type": "string"},
			"status": {"type": "string"},
			"progress_percentage": {"type": "integer", "minimum": 0, "maximum": 100},
			"progress_notes": {"type": "string"},
			"blockers": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_subtask.complete": `{
		"type": "object",
		"required": ["subtask_id", "completion_summary"],
		"properties": {
			"subtask_id": {"type": "string"},
			"completion_summary": {"type": "string", "minLength": 1}
		},
		"additionalProperties": false
	}`,
	"manage_agent.register": `{
		"type": "object",
		"required": ["project_id", "id", "name"],
		"properties": {
			"project_id": {"type": "string"},
			"id": {"type": "string", "minLength": 1},
			"name": {"type": "string", "minLength": 1},
			"capabilities": {"type": "array", "items": {"type": "string"}},
			"max_concurrent_tasks": {"type": "integer", "minimum": 1}
		},
		"additionalProperties": false
	}`,
	"manage_agent.assign": `{
		"type": "object",
		"required": ["project_id", "agent_id", "branch_id"],
		"properties": {
			"project_id": {"type": "string"},
			"agent_id": {"type": "string"},
			"branch_id": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_agent.rebalance": `{
		"type": "object",
		"required": ["project_id"],
		"properties": {
			"project_id": {"type": "string"},
			"dry_run": {"type": "boolean"}
		},
		"additionalProperties": false
	}`,
	"manage_agent.unregister": `{
		"type": "object",
		"required": ["project_id", "agent_id"],
		"properties": {"project_id": {"type": "string"}, "agent_id": {"type": "string"}},
		"additionalProperties": false
	}`,
	"manage_context.update": `{
		"type": "object",
		"required": ["level", "entity_id", "patch"],
		"properties": {
			"level": {"type": "string", "enum": ["global", "project", "branch", "task"]},
			"entity_id": {"type": "string"},
			"patch": {"type": "object"},
			"propagate": {"type": "boolean"}
		},
		"additionalProperties": false
	}`,
	"manage_context.delegate": `{
		"type": "object",
		"required": ["source_level", "source_id", "target_level", "target_id", "data", "reason"],
		"properties": {
			"source_level": {"type": "string"},
			"source_id": {"type": "string"},
			"target_level": {"type": "string"},
			"target_id": {"type": "string"},
			"data": {"type": "object"},
			"reason": {"type": "string"},
			"created_by": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_context.add_insight": `{
		"type": "object",
		"required": ["level", "entity_id", "content", "category"],
		"properties": {
			"level": {"type": "string"},
			"entity_id": {"type": "string"},
			"content": {"type": "string", "minLength": 1},
			"category": {"type": "string"},
			"importance": {"type": "string"},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1},
			"source_agent": {"type": "string"},
			"related_task_id": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_context.approve_delegation": `{
		"type": "object",
		"required": ["delegation_id", "target_level", "target_id", "approved"],
		"properties": {
			"delegation_id": {"type": "string"},
			"target_level": {"type": "string"},
			"target_id": {"type": "string"},
			"approved": {"type": "boolean"},
			"processed_by": {"type": "string"},
			"rejected_reason": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	"manage_compliance.validate_compliance": `{
		"type": "object",
		"required": ["entity_type", "entity_id"],
		"properties": {
			"entity_type": {"type": "string"},
			"entity_id": {"type": "string"}
		},
		"additionalProperties": false
	}`,
}
