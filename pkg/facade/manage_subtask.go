package facade

import (
	"context"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
)

func (f *Facade) dispatchSubtask(ctx context.Context, req Request) (interface{}, string, error) {
	switch req.Action {
	case "create":
		taskID, err := paramUUID(req.Params, "task_id")
		if err != nil {
			return nil, "", err
		}
		s := &models.Subtask{
			ID: uuid.New(), TaskID: taskID, Title: paramString(req.Params, "title"),
			Description: paramString(req.Params, "description"), Status: models.TaskTodo,
			Priority:  paramPriority(req.Params, "priority", models.PriorityMedium),
			Assignees: models.NewStringSet(paramStringSlice(req.Params, "assignees")...),
		}
		if err := f.Subtasks.Create(ctx, s); err != nil {
			return nil, "", err
		}
		return s, "", nil

	case "list":
		taskID, err := paramUUID(req.Params, "task_id")
		if err != nil {
			return nil, "", err
		}
		subtasks, err := f.Subtasks.ListByTask(ctx, taskID)
		if err != nil {
			return nil, "", err
		}
		return subtasks, "", nil

	case "get":
		id, err := paramUUID(req.Params, "subtask_id")
		if err != nil {
			return nil, "", err
		}
		s, err := f.Subtasks.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return s, "", nil

	case "update":
		return f.updateSubtask(ctx, req, "")

	case "complete":
		return f.updateSubtask(ctx, req, paramString(req.Params, "completion_summary"))

	default:
		return nil, "", apperr.New("facade.manage_subtask", apperr.Invalid, "unknown action: "+req.Action)
	}
}

func (f *Facade) updateSubtask(ctx context.Context, req Request, forceCompletionSummary string) (interface{}, string, error) {
	id, err := paramUUID(req.Params, "subtask_id")
	if err != nil {
		return nil, "", err
	}
	s, err := f.Subtasks.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if forceCompletionSummary != "" {
		s.Status = models.TaskDone
		s.ProgressPercentage = 100
		s.CompletionSummary = forceCompletionSummary
	} else {
		if v := paramString(req.Params, "status"); v != "" {
			s.Status = models.SubtaskStatus(v)
		}
		if _, ok := req.Params["progress_percentage"]; ok {
			s.ProgressPercentage = paramInt(req.Params, "progress_percentage", s.ProgressPercentage)
		}
		if v, ok := req.Params["progress_notes"].(string); ok {
			s.ProgressNotes = v
		}
		if v, ok := req.Params["blockers"].(string); ok {
			s.Blockers = v
		}
	}
	if err := f.Subtasks.Update(ctx, s); err != nil {
		return nil, "", err
	}
	if err := f.Scheduler.ApplySubtaskUpdate(ctx, s.TaskID); err != nil {
		f.Logger.Warn("facade: ApplySubtaskUpdate failed", map[string]interface{}{"subtask_id": s.ID, "error": err.Error()})
	}
	return s, "", nil
}
