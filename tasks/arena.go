package tasks

import "sort"

// Arena stores tasks as flat records linked by ParentTaskID. Nested
// Subtasks views are derived on demand by Tree.
type Arena struct {
	records  map[string]*Task
	order    []string
	children map[string][]string
}

// NewArena flattens tasks, including any inline subtasks, into an arena.
func NewArena(list []Task) *Arena {
	a := &Arena{records: make(map[string]*Task)}
	for _, t := range list {
		a.add(t, "")
	}
	a.index()
	return a
}

func (a *Arena) add(t Task, parentID string) {
	subtasks := t.Subtasks
	rec := t.Clone()
	rec.Subtasks = nil
	if parentID != "" {
		rec.ParentTaskID = parentID
	}
	if _, exists := a.records[rec.ID]; !exists {
		a.order = append(a.order, rec.ID)
	}
	a.records[rec.ID] = &rec
	for _, st := range subtasks {
		a.add(st, rec.ID)
	}
}

// index groups child ids under their parent, ordered by position.
func (a *Arena) index() {
	a.children = make(map[string][]string)
	for _, id := range a.order {
		if parent := a.records[id].ParentTaskID; parent != "" && parent != id {
			a.children[parent] = append(a.children[parent], id)
		}
	}
	for _, ids := range a.children {
		sort.SliceStable(ids, func(i, j int) bool {
			return a.records[ids[i]].Position < a.records[ids[j]].Position
		})
	}
}

// Descendants returns the ids below id, depth first.
func (a *Arena) Descendants(id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	var walk func(string)
	walk = func(parent string) {
		for _, cid := range a.children[parent] {
			if seen[cid] {
				continue
			}
			seen[cid] = true
			out = append(out, cid)
			walk(cid)
		}
	}
	walk(id)
	return out
}

// Tree derives the nested view. Records whose parent is missing are roots;
// records caught in a parent cycle are surfaced as roots too.
func (a *Arena) Tree() []Task {
	visited := make(map[string]bool, len(a.order))
	var build func(rec *Task) Task
	build = func(rec *Task) Task {
		visited[rec.ID] = true
		t := rec.Clone()
		for _, cid := range a.children[rec.ID] {
			if visited[cid] {
				continue
			}
			t.Subtasks = append(t.Subtasks, build(a.records[cid]))
		}
		return t
	}

	var roots []Task
	for _, id := range a.order {
		rec := a.records[id]
		if _, hasParent := a.records[rec.ParentTaskID]; rec.ParentTaskID == "" || !hasParent {
			roots = append(roots, build(rec))
		}
	}
	for _, id := range a.order {
		if !visited[id] {
			roots = append(roots, build(a.records[id]))
		}
	}
	return roots
}
