package facade

import (
	"context"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
)

// ComplianceReport is the supplemented compliance surface's read model
// (SPEC_FULL.md §4): a lightweight summary over the audit trail rather than
// a policy engine, since policy evaluation itself is out of scope.
type ComplianceReport struct {
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	EntryCount  int    `json:"entry_count"`
	HasAuditLog bool   `json:"has_audit_log"`
}

func (f *Facade) dispatchCompliance(ctx context.Context, req Request) (interface{}, string, error) {
	switch req.Action {
	case "validate_compliance":
		entityType := paramString(req.Params, "entity_type")
		entityID := paramString(req.Params, "entity_id")
		entries, err := f.Audit.List(ctx, entityType, entityID, 1)
		if err != nil {
			return nil, "", err
		}
		full, err := f.Audit.List(ctx, entityType, entityID, 500)
		if err != nil {
			return nil, "", err
		}
		return ComplianceReport{EntityType: entityType, EntityID: entityID, EntryCount: len(full), HasAuditLog: len(entries) > 0}, "", nil

	case "get_audit_trail":
		entries, err := f.Audit.List(ctx, paramString(req.Params, "entity_type"), paramString(req.Params, "entity_id"), paramInt(req.Params, "limit", 100))
		if err != nil {
			return nil, "", err
		}
		return entries, "", nil

	default:
		return nil, "", apperr.New("facade.manage_compliance", apperr.Invalid, "unknown action: "+req.Action)
	}
}
