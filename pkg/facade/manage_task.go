package facade

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/models"
	"github.com/S-Corkum/agentmesh/pkg/repository"
	"github.com/S-Corkum/agentmesh/pkg/scheduler"
)

func (f *Facade) dispatchTask(ctx context.Context, req Request) (interface{}, string, error) {
	switch req.Action {
	case "create":
		branchID, err := paramUUID(req.Params, "branch_id")
		if err != nil {
			return nil, "", err
		}
		dueDate, err := paramTime(req.Params, "due_date")
		if err != nil {
			return nil, "", err
		}
		t := &models.Task{
			ID: uuid.New(), BranchID: branchID, Title: paramString(req.Params, "title"),
			Description: paramString(req.Params, "description"), Status: models.TaskTodo,
			Priority: paramPriority(req.Params, "priority", models.PriorityMedium),
			Details:  paramString(req.Params, "details"), EstimatedEffort: paramString(req.Params, "estimated_effort"),
			DueDate:   dueDate,
			Assignees: models.NewStringSet(paramStringSlice(req.Params, "assignees")...),
			Labels:    models.NewStringSet(paramStringSlice(req.Params, "labels")...),
		}
		if err := f.Tasks.Create(ctx, t); err != nil {
			return nil, "", err
		}
		return t, "call manage_task.next on its branch once ready", nil

	case "list", "search":
		filter, err := taskFilterFromParams(req.Params)
		if err != nil {
			return nil, "", err
		}
		tasks, err := f.Tasks.List(ctx, filter)
		if err != nil {
			return nil, "", err
		}
		return tasks, "", nil

	case "get":
		id, err := paramUUID(req.Params, "task_id")
		if err != nil {
			return nil, "", err
		}
		t, err := f.Tasks.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return t, "", nil

	case "update":
		return f.updateTask(ctx, req)

	case "complete":
		return f.completeTask(ctx, req)

	case "reopen":
		id, err := paramUUID(req.Params, "task_id")
		if err != nil {
			return nil, "", err
		}
		if err := f.Scheduler.Reopen(ctx, id, f.ReopenGrace); err != nil {
			return nil, "", err
		}
		t, err := f.Tasks.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		return t, "", nil

	case "next":
		branchID, err := paramUUID(req.Params, "branch_id")
		if err != nil {
			return nil, "", err
		}
		candidate, err := f.Scheduler.NextTask(ctx, branchID, paramString(req.Params, "requesting_agent"), paramBool(req.Params, "include_context"))
		if err != nil {
			var noReady *scheduler.NoReadyTask
			if errors.As(err, &noReady) {
				return map[string]interface{}{"task": nil, "blockers": noReady.Blockers}, "", nil
			}
			return nil, "", err
		}
		return candidate, "", nil

	case "add_dependency":
		return f.addDependency(ctx, req)

	case "remove_dependency":
		taskID, err := paramUUID(req.Params, "task_id")
		if err != nil {
			return nil, "", err
		}
		dependsOn, err := paramUUID(req.Params, "depends_on_task_id")
		if err != nil {
			return nil, "", err
		}
		if err := f.Dependencies.Remove(ctx, taskID, dependsOn); err != nil {
			return nil, "", err
		}
		return map[string]interface{}{"task_id": taskID.String(), "depends_on_task_id": dependsOn.String(), "removed": true}, "", nil

	default:
		return nil, "", apperr.New("facade.manage_task", apperr.Invalid, "unknown action: "+req.Action)
	}
}

func (f *Facade) updateTask(ctx context.Context, req Request) (interface{}, string, error) {
	id, err := paramUUID(req.Params, "task_id")
	if err != nil {
		return nil, "", err
	}
	t, err := f.Tasks.GetForUpdate(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if v := paramString(req.Params, "title"); v != "" {
		t.Title = v
	}
	if v, ok := req.Params["description"].(string); ok {
		t.Description = v
	}
	if v := paramString(req.Params, "priority"); v != "" {
		t.Priority = models.Priority(v)
	}
	if v, ok := req.Params["details"].(string); ok {
		t.Details = v
	}
	if v := paramStringSlice(req.Params, "assignees"); v != nil {
		t.Assignees = models.NewStringSet(v...)
	}
	if v := paramStringSlice(req.Params, "labels"); v != nil {
		t.Labels = models.NewStringSet(v...)
	}
	if dueDate, err := paramTime(req.Params, "due_date"); err != nil {
		return nil, "", err
	} else if dueDate != nil {
		t.DueDate = dueDate
	}
	if v := paramString(req.Params, "status"); v != "" {
		newStatus := models.TaskStatus(v)
		if err := scheduler.ValidateTransition(t.Status, newStatus); err != nil {
			return nil, "", err
		}
		t.Status = newStatus
	}
	if err := f.Tasks.Update(ctx, t); err != nil {
		return nil, "", err
	}
	if err := f.Scheduler.ApplySubtaskUpdate(ctx, t.ID); err != nil {
		f.Logger.Warn("facade: ApplySubtaskUpdate failed after task update", map[string]interface{}{"task_id": t.ID, "error": err.Error()})
	}
	return t, "", nil
}

func (f *Facade) completeTask(ctx context.Context, req Request) (interface{}, string, error) {
	id, err := paramUUID(req.Params, "task_id")
	if err != nil {
		return nil, "", err
	}
	t, err := f.Tasks.GetForUpdate(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := scheduler.ValidateTransition(t.Status, models.TaskDone); err != nil {
		return nil, "", err
	}

	deps, err := f.Dependencies.DependenciesOf(ctx, id)
	if err != nil {
		return nil, "", err
	}
	for _, d := range deps {
		if d.Type != models.DependencyBlocks {
			continue
		}
		blocker, err := f.Tasks.Get(ctx, d.DependsOnTask)
		if err != nil {
			return nil, "", err
		}
		if blocker.Status != models.TaskDone {
			return nil, "", apperr.New("facade.manage_task.complete", apperr.Conflict, "task has an unfinished dependency").
				WithDetails(map[string]any{"task_id": id, "depends_on_task_id": blocker.ID})
		}
	}

	force := paramBool(req.Params, "force")
	if !force {
		subtasks, err := f.Subtasks.ListByTask(ctx, id)
		if err != nil {
			return nil, "", err
		}
		for _, s := range subtasks {
			if s.Status != models.TaskDone {
				return nil, "", apperr.New("facade.manage_task.complete", apperr.Conflict, "task has open subtasks; pass force=true to override").
					WithDetails(map[string]any{"task_id": id, "subtask_id": s.ID})
			}
		}
	}

	t.Status = models.TaskDone
	t.CompletionSummary = paramString(req.Params, "completion_summary")
	if err := f.Tasks.Update(ctx, t); err != nil {
		return nil, "", err
	}

	patch := map[string]interface{}{"completion_summary": t.CompletionSummary}
	if notes := paramString(req.Params, "testing_notes"); notes != "" {
		patch["testing_notes"] = notes
	}
	if err := f.Engine.Update(ctx, models.LevelTask, t.ID.String(), patch, false); err != nil {
		f.Logger.Warn("facade: failed to persist completion summary into task context", map[string]interface{}{"task_id": t.ID, "error": err.Error()})
	}

	return t, "", nil
}

func (f *Facade) addDependency(ctx context.Context, req Request) (interface{}, string, error) {
	taskID, err := paramUUID(req.Params, "task_id")
	if err != nil {
		return nil, "", err
	}
	dependsOn, err := paramUUID(req.Params, "depends_on_task_id")
	if err != nil {
		return nil, "", err
	}
	depType := models.DependencyType(paramString(req.Params, "type"))
	if depType == "" {
		depType = models.DependencyBlocks
	}

	t, err := f.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, "", err
	}
	branch, err := f.Branches.Get(ctx, t.BranchID)
	if err != nil {
		return nil, "", err
	}

	if depType == models.DependencyBlocks {
		cycle, err := f.Dependencies.WouldCycle(ctx, branch.ProjectID, taskID, dependsOn)
		if err != nil {
			return nil, "", err
		}
		if cycle {
			return nil, "", apperr.New("facade.manage_task.add_dependency", apperr.Cycle, "adding this dependency would create a cycle").
				WithDetails(map[string]any{"task_id": taskID, "depends_on_task_id": dependsOn})
		}
	}

	if err := f.Dependencies.Add(ctx, taskID, dependsOn, depType); err != nil {
		return nil, "", err
	}
	return map[string]interface{}{"task_id": taskID.String(), "depends_on_task_id": dependsOn.String(), "type": string(depType)}, "", nil
}

func taskFilterFromParams(p map[string]interface{}) (repository.TaskFilter, error) {
	var filter repository.TaskFilter
	if id, err := paramOptUUID(p, "branch_id"); err != nil {
		return filter, err
	} else {
		filter.BranchID = id
	}
	if v := paramString(p, "status"); v != "" {
		filter.Status = []models.TaskStatus{models.TaskStatus(v)}
	}
	if v := paramString(p, "priority"); v != "" {
		filter.Priority = []models.Priority{models.Priority(v)}
	}
	filter.Label = paramString(p, "label")
	filter.Assignee = paramString(p, "assignee")
	if t, err := paramTime(p, "due_before"); err != nil {
		return filter, err
	} else {
		filter.DueBefore = t
	}
	if t, err := paramTime(p, "due_after"); err != nil {
		return filter, err
	} else {
		filter.DueAfter = t
	}
	filter.Limit = paramInt(p, "limit", 50)
	filter.Offset = paramInt(p, "offset", 0)
	return filter, nil
}
