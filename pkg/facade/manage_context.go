package facade

import (
	"context"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
)

func (f *Facade) dispatchContext(ctx context.Context, req Request) (interface{}, string, error) {
	switch req.Action {
	case "resolve":
		level := paramLevel(req.Params, "level")
		resolved, err := f.Engine.Resolve(ctx, level, paramString(req.Params, "entity_id"), paramBool(req.Params, "force_refresh"))
		if err != nil {
			return nil, "", err
		}
		return resolved, "", nil

	case "update":
		level := paramLevel(req.Params, "level")
		entityID := paramString(req.Params, "entity_id")
		propagate := true
		if v, ok := req.Params["propagate"].(bool); ok {
			propagate = v
		}
		if err := f.Engine.Update(ctx, level, entityID, paramMap(req.Params, "patch"), propagate); err != nil {
			return nil, "", err
		}
		resolved, err := f.Engine.Resolve(ctx, level, entityID, true)
		if err != nil {
			return nil, "", err
		}
		return resolved, "", nil

	case "delegate":
		sourceLevel := models.ContextLevel(paramString(req.Params, "source_level"))
		targetLevel := models.ContextLevel(paramString(req.Params, "target_level"))
		d, err := f.Engine.Delegate(ctx, sourceLevel, paramString(req.Params, "source_id"), targetLevel,
			paramString(req.Params, "target_id"), paramMap(req.Params, "data"), paramString(req.Params, "reason"),
			models.TriggerManual, orDefault(paramString(req.Params, "created_by"), req.Actor))
		if err != nil {
			return nil, "", err
		}
		return d, "a pending manual delegation requires manage_context.approve_delegation at the target tier", nil

	case "add_insight":
		relatedTaskID, err := paramOptUUID(req.Params, "related_task_id")
		if err != nil {
			return nil, "", err
		}
		importance := models.Importance(paramString(req.Params, "importance"))
		if importance == "" {
			importance = models.ImportanceMedium
		}
		insight, err := f.Engine.AddInsight(ctx, paramLevel(req.Params, "level"), paramString(req.Params, "entity_id"),
			paramString(req.Params, "content"), paramString(req.Params, "category"), importance,
			paramFloat(req.Params, "confidence", 1.0), orDefault(paramString(req.Params, "source_agent"), req.Actor), relatedTaskID)
		if err != nil {
			return nil, "", err
		}
		return insight, "", nil

	case "list_delegations":
		targetLevel := paramLevel(req.Params, "target_level")
		delegations, err := f.Engine.Store.ListPendingDelegations(ctx, targetLevel, paramString(req.Params, "target_id"))
		if err != nil {
			return nil, "", err
		}
		return delegations, "", nil

	case "approve_delegation":
		id, err := paramUUID(req.Params, "delegation_id")
		if err != nil {
			return nil, "", err
		}
		targetLevel := paramLevel(req.Params, "target_level")
		targetID := paramString(req.Params, "target_id")
		pending, err := f.Engine.Store.ListPendingDelegations(ctx, targetLevel, targetID)
		if err != nil {
			return nil, "", err
		}
		var found *models.ContextDelegation
		for _, d := range pending {
			if d.ID == id {
				found = d
				break
			}
		}
		if found == nil {
			return nil, "", apperr.New("facade.manage_context.approve_delegation", apperr.NotFound, "no pending delegation with that id at the given target")
		}

		approved := paramBool(req.Params, "approved")
		status := models.ImplRejected
		if approved {
			status = models.ImplImplemented
		}
		processedBy := orDefault(paramString(req.Params, "processed_by"), req.Actor)
		if err := f.Engine.Store.MarkDelegationProcessed(ctx, id, approved, status, processedBy, paramString(req.Params, "rejected_reason")); err != nil {
			return nil, "", err
		}
		if approved {
			if err := f.Engine.Update(ctx, found.TargetLevel, found.TargetID, found.DelegatedData, true); err != nil {
				return nil, "", err
			}
		}
		return map[string]interface{}{"delegation_id": id.String(), "approved": approved}, "", nil

	case "invalidate_cache":
		level := paramLevel(req.Params, "level")
		entityID := paramString(req.Params, "entity_id")
		f.Engine.InvalidateBroad(ctx, []models.TierRef{{Level: level, ID: entityID}}, orDefault(paramString(req.Params, "reason"), "manual invalidation via manage_context"))
		return map[string]interface{}{"level": string(level), "entity_id": entityID, "invalidated": true}, "", nil

	default:
		return nil, "", apperr.New("facade.manage_context", apperr.Invalid, "unknown action: "+req.Action)
	}
}
