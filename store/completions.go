package store

import (
	"context"
	"errors"

	"github.com/CrowderSoup/planner/recurrence"
	"github.com/CrowderSoup/planner/tasks"
)

// toggle is a completion flip that has not been persisted yet.
type toggle struct {
	id        string
	original  bool
	completed bool
	seq       uint64
}

// ToggleTaskComplete flips the completion of a cached task locally. The
// change is not sent to the repository; it is queued until FlushCompletions
// and re-applied over any window reload in the meantime. Toggling twice
// before a flush cancels out.
func (s *Store) ToggleTaskComplete(id string) error {
	s.mu.Lock()
	cur, ok := find(s.state.CachedTasks, id)
	if !ok {
		s.mu.Unlock()
		return tasks.Errorf(tasks.NotFound, "toggle", "task %s is not in view", id)
	}
	completed := !cur.Completed
	now := s.now()
	update(s.state.CachedTasks, id, func(t *tasks.Task) {
		t.Completed = completed
		t.UpdatedAt = now
	})
	if sel := s.state.SelectedTask; sel != nil && sel.ID == id {
		sel.Completed = completed
		sel.UpdatedAt = now
	}

	if p, queued := s.pending[id]; queued {
		if completed == p.original {
			delete(s.pending, id)
		} else {
			s.toggleSeq++
			p.completed = completed
			p.seq = s.toggleSeq
		}
	} else {
		s.toggleSeq++
		s.pending[id] = &toggle{id: id, original: cur.Completed, completed: completed, seq: s.toggleSeq}
	}
	s.unlockAndNotify()
	return nil
}

// PendingCompletions is the number of toggles waiting for a flush.
func (s *Store) PendingCompletions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// FlushCompletions persists queued toggles. Occurrences of recurring tasks
// are recorded per day with SetCompletion; other tasks are updated. A toggle
// that fails to persist is rolled back in the cache and its error is
// returned; toggles are not retried automatically.
func (s *Store) FlushCompletions(ctx context.Context) error {
	s.mu.Lock()
	batch := make([]toggle, 0, len(s.pending))
	for _, p := range s.pending {
		batch = append(batch, *p)
	}
	s.mu.Unlock()

	var errs []error
	for _, p := range batch {
		err := s.persistToggle(ctx, p)

		s.mu.Lock()
		cur, queued := s.pending[p.id]
		switch {
		case queued && cur.seq == p.seq:
			delete(s.pending, p.id)
			if err != nil {
				errs = append(errs, err)
				update(s.state.CachedTasks, p.id, func(t *tasks.Task) { t.Completed = p.original })
				if sel := s.state.SelectedTask; sel != nil && sel.ID == p.id {
					sel.Completed = p.original
				}
				s.unlockAndNotify()
				continue
			}
		case err != nil:
			// Toggled again while in flight. The repository still holds the
			// original value, which any newer entry already records.
			errs = append(errs, err)
		case queued:
			// Newer toggle queued while this one landed: it now starts from
			// the value just persisted.
			cur.original = p.completed
			if cur.completed == cur.original {
				delete(s.pending, p.id)
			}
		default:
			// Toggled back while in flight; the repository now disagrees
			// with the cache, so queue the difference.
			if t, ok := find(s.state.CachedTasks, p.id); ok && t.Completed != p.completed {
				s.toggleSeq++
				s.pending[p.id] = &toggle{id: p.id, original: p.completed, completed: t.Completed, seq: s.toggleSeq}
			}
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (s *Store) persistToggle(ctx context.Context, p toggle) error {
	if base, day, ok := recurrence.SplitOccurrenceID(p.id); ok {
		s.mu.Lock()
		cur, found := find(s.state.CachedTasks, p.id)
		s.mu.Unlock()
		if !found || cur.IsRecurring {
			return s.call(ctx, "complete occurrence", func(ctx context.Context) error {
				return s.repo.SetCompletion(ctx, base, day, p.completed)
			})
		}
	}
	completed := p.completed
	return s.call(ctx, "complete", func(ctx context.Context) error {
		return s.repo.Update(ctx, p.id, tasks.Patch{Completed: &completed})
	})
}

// overlayPendingLocked re-applies queued toggles to freshly fetched tasks.
func (s *Store) overlayPendingLocked(list []tasks.Task) {
	for id, p := range s.pending {
		update(list, id, func(t *tasks.Task) { t.Completed = p.completed })
	}
}
