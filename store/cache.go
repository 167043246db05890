package store

import (
	"slices"

	"github.com/CrowderSoup/planner/recurrence"
	"github.com/CrowderSoup/planner/tasks"
)

func cloneAll(list []tasks.Task) []tasks.Task {
	if list == nil {
		return nil
	}
	out := make([]tasks.Task, len(list))
	for i, t := range list {
		out[i] = t.Clone()
	}
	return out
}

// find returns the first task with id at any depth.
func find(list []tasks.Task, id string) (tasks.Task, bool) {
	for _, t := range list {
		if t.ID == id {
			return t, true
		}
		if st, ok := find(t.Subtasks, id); ok {
			return st, true
		}
	}
	return tasks.Task{}, false
}

// update calls fn on every task with id at any depth and reports whether
// any matched.
func update(list []tasks.Task, id string, fn func(*tasks.Task)) bool {
	matched := false
	for i := range list {
		if list[i].ID == id {
			fn(&list[i])
			matched = true
		}
		if update(list[i].Subtasks, id, fn) {
			matched = true
		}
	}
	return matched
}

// removal remembers where a task sat so a failed delete can put it back.
type removal struct {
	parentID string
	index    int
	task     tasks.Task
}

// remove drops every task for which match is true, at any depth.
func remove(list []tasks.Task, parentID string, match func(tasks.Task) bool) ([]tasks.Task, []removal) {
	var removed []removal
	kept := make([]tasks.Task, 0, len(list))
	for i, t := range list {
		if match(t) {
			removed = append(removed, removal{parentID: parentID, index: i, task: t})
			continue
		}
		var sub []removal
		t.Subtasks, sub = remove(t.Subtasks, t.ID, match)
		removed = append(removed, sub...)
		kept = append(kept, t)
	}
	return kept, removed
}

// restore reinserts removals at their original positions. Removals must be
// in the order remove produced them.
func restore(list []tasks.Task, removed []removal) []tasks.Task {
	for _, r := range removed {
		if r.parentID == "" {
			list = slices.Insert(list, min(r.index, len(list)), r.task)
			continue
		}
		update(list, r.parentID, func(p *tasks.Task) {
			p.Subtasks = slices.Insert(p.Subtasks, min(r.index, len(p.Subtasks)), r.task)
		})
	}
	return list
}

// seriesID maps an occurrence id onto its template id. Other ids pass
// through unchanged.
func seriesID(t tasks.Task) string {
	if !t.IsRecurring {
		return t.ID
	}
	if base, _, ok := recurrence.SplitOccurrenceID(t.ID); ok {
		return base
	}
	return t.ID
}

func patternEqual(a, b *tasks.RecurringPattern) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type || a.Interval != b.Interval {
		return false
	}
	if a.EndDate == nil || b.EndDate == nil {
		return a.EndDate == b.EndDate
	}
	return a.EndDate.Equal(*b.EndDate)
}

// revert undoes the fields p touched, but only where cur still holds the
// value this mutation wrote. Fields a later mutation has since changed are
// left alone.
func revert(cur *tasks.Task, before, applied tasks.Task, p tasks.Patch) {
	if p.Title != nil && cur.Title == applied.Title {
		cur.Title = before.Title
	}
	if p.Description != nil && cur.Description == applied.Description {
		cur.Description = before.Description
	}
	if p.Date != nil && cur.Date.Equal(applied.Date) {
		cur.Date = before.Date
	}
	if p.Completed != nil && cur.Completed == applied.Completed {
		cur.Completed = before.Completed
	}
	if p.Color != nil && cur.Color == applied.Color {
		cur.Color = before.Color
	}
	if p.Position != nil && cur.Position == applied.Position {
		cur.Position = before.Position
	}
	if p.ParentTaskID != nil && cur.ParentTaskID == applied.ParentTaskID {
		cur.ParentTaskID = before.ParentTaskID
	}
	if (p.IsRecurring != nil || p.RecurringPattern != nil) &&
		cur.IsRecurring == applied.IsRecurring && patternEqual(cur.RecurringPattern, applied.RecurringPattern) {
		cur.IsRecurring = before.IsRecurring
		cur.RecurringPattern = before.RecurringPattern
	}
	if cur.UpdatedAt.Equal(applied.UpdatedAt) {
		cur.UpdatedAt = before.UpdatedAt
	}
}
