// Package store keeps the current calendar view's tasks in memory and syncs
// them with a Repository: window fetches on navigation, optimistic
// mutations with rollback, and batched completion toggles.
package store

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/CrowderSoup/planner/recurrence"
	"github.com/CrowderSoup/planner/tasks"
	"github.com/CrowderSoup/planner/view"
)

// Status is the lifecycle of the current window load.
type Status int

const (
	Idle Status = iota
	Loading
	Loaded
	Failed
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// State is a snapshot of the store. Callers get copies and never mutate the
// store through them.
type State struct {
	CurrentDate  time.Time
	ViewType     view.Type
	CachedTasks  []tasks.Task
	SearchQuery  string
	IsLoading    bool
	SelectedTask *tasks.Task
	Editing      bool

	Status Status
	// Err is the failure of the last window load, kept until the next
	// successful one. The cache keeps its previous contents meanwhile.
	Err        error
	Generation uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCallTimeout bounds every repository call. Expiry surfaces as a
// TransientFailure. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithLogger sets the logger used for background diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithView sets the initial date and view type.
func WithView(current time.Time, vt view.Type) Option {
	return func(s *Store) {
		s.state.CurrentDate = tasks.Day(current)
		s.state.ViewType = vt
	}
}

const defaultCallTimeout = 10 * time.Second

// Store is the state container for one session. Create it with New and
// share the pointer with whatever renders or mutates the calendar.
type Store struct {
	repo    Repository
	ownerID string
	now     func() time.Time
	timeout time.Duration
	logger  *log.Logger

	mu        sync.Mutex
	state     State
	gen       uint64
	pending   map[string]*toggle
	toggleSeq uint64
	subs      map[int]func(State)
	nextSub   int
}

// New creates a store for ownerID in the Idle state. Nothing is fetched
// until Refresh or a navigation call.
func New(repo Repository, ownerID string, opts ...Option) *Store {
	s := &Store{
		repo:    repo,
		ownerID: ownerID,
		now:     time.Now,
		timeout: defaultCallTimeout,
		logger:  log.Default(),
		pending: make(map[string]*toggle),
		subs:    make(map[int]func(State)),
	}
	s.state.ViewType = view.Week
	for _, opt := range opts {
		opt(s)
	}
	if s.state.CurrentDate.IsZero() {
		s.state.CurrentDate = tasks.Day(s.now())
	}
	return s
}

// State returns a deep copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := s.state
	st.CachedTasks = cloneAll(s.state.CachedTasks)
	if s.state.SelectedTask != nil {
		sel := s.state.SelectedTask.Clone()
		st.SelectedTask = &sel
	}
	return st
}

// Window returns the query window of the current view.
func (s *Store) Window() view.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return view.ComputeWindow(s.state.CurrentDate, s.state.ViewType)
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that made the change.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// unlockAndNotify releases the lock and fans a snapshot out to subscribers.
func (s *Store) unlockAndNotify() {
	snap := s.snapshotLocked()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// call runs a repository operation under the owner identity and timeout.
// Untyped failures are reported as transient.
func (s *Store) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx = tasks.WithOwner(ctx, s.ownerID)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	err := fn(ctx)
	if err == nil {
		return nil
	}
	err = tasks.Wrap(op, err)
	if tasks.KindOf(err) == tasks.KindUnknown {
		err = &tasks.Error{Kind: tasks.TransientFailure, Op: op, Err: errors.Unwrap(err)}
	}
	return err
}

// SetCurrentDate moves the view to date and loads its window.
func (s *Store) SetCurrentDate(ctx context.Context, date time.Time) error {
	s.mu.Lock()
	s.state.CurrentDate = tasks.Day(date)
	s.mu.Unlock()
	return s.load(ctx)
}

// SetViewType switches the layout and loads its window.
func (s *Store) SetViewType(ctx context.Context, vt view.Type) error {
	s.mu.Lock()
	s.state.ViewType = vt
	s.mu.Unlock()
	return s.load(ctx)
}

// Next moves one view period forward.
func (s *Store) Next(ctx context.Context) error {
	s.mu.Lock()
	s.state.CurrentDate = view.Next(s.state.CurrentDate, s.state.ViewType)
	s.mu.Unlock()
	return s.load(ctx)
}

// Previous moves one view period back.
func (s *Store) Previous(ctx context.Context) error {
	s.mu.Lock()
	s.state.CurrentDate = view.Previous(s.state.CurrentDate, s.state.ViewType)
	s.mu.Unlock()
	return s.load(ctx)
}

// Refresh reloads the current window.
func (s *Store) Refresh(ctx context.Context) error {
	return s.load(ctx)
}

// load fetches the current window. Each load takes a new generation; a
// result is applied only if no newer load has been issued since, so a slow
// fetch for an old view can never overwrite a newer one.
func (s *Store) load(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	w := view.ComputeWindow(s.state.CurrentDate, s.state.ViewType)
	s.state.Status = Loading
	s.state.IsLoading = true
	s.state.Generation = gen
	s.unlockAndNotify()

	var list []tasks.Task
	err := s.call(ctx, "list", func(ctx context.Context) error {
		var err error
		list, err = s.repo.List(ctx, s.ownerID, w.Start, w.End)
		return err
	})

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Printf("store: discarding superseded fetch %d for %s", gen, w)
		return nil
	}
	s.state.IsLoading = false
	if err != nil {
		s.state.Status = Failed
		s.state.Err = err
		s.unlockAndNotify()
		return err
	}

	cached := recurrence.Expand(list, w.Start, w.End)
	s.overlayPendingLocked(cached)
	view.SortTasks(cached)
	s.state.CachedTasks = cached
	s.state.Status = Loaded
	s.state.Err = nil
	if sel := s.state.SelectedTask; sel != nil {
		if t, ok := find(cached, sel.ID); ok {
			s.state.SelectedTask = &t
		} else {
			s.state.SelectedTask = nil
			s.state.Editing = false
		}
	}
	s.unlockAndNotify()
	return nil
}

// refreshAfter reconciles with the server after a successful mutation. A
// failed refresh is recorded in State.Err, not returned, because the
// mutation itself went through.
func (s *Store) refreshAfter(ctx context.Context, op string) {
	if err := s.load(ctx); err != nil {
		s.logger.Printf("store: refresh after %s: %v", op, err)
	}
}

// SetSearchQuery sets the client-side filter.
func (s *Store) SetSearchQuery(query string) {
	s.mu.Lock()
	s.state.SearchQuery = query
	s.unlockAndNotify()
}

// FilteredTasks returns cached tasks matching the search query.
func (s *Store) FilteredTasks() []tasks.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(view.Filter(s.state.CachedTasks, s.state.SearchQuery))
}

// SelectTask selects the cached task with id. An empty id clears the
// selection.
func (s *Store) SelectTask(id string) error {
	return s.selectTask(id, false)
}

func (s *Store) selectTask(id string, editing bool) error {
	s.mu.Lock()
	if id == "" {
		s.state.SelectedTask = nil
		s.state.Editing = false
		s.unlockAndNotify()
		return nil
	}
	t, ok := find(s.state.CachedTasks, id)
	if !ok {
		s.mu.Unlock()
		return tasks.Errorf(tasks.NotFound, "select", "task %s is not in view", id)
	}
	s.state.SelectedTask = &t
	s.state.Editing = editing
	s.unlockAndNotify()
	return nil
}

// AddTask creates a task, places it in the cache and reloads the window.
// Invalid drafts are rejected before reaching the repository. A created
// subtask is attached under its cached parent; a recurring task is expanded
// into the occurrences of the current window.
func (s *Store) AddTask(ctx context.Context, draft tasks.Draft) (tasks.Task, error) {
	if err := draft.Validate(); err != nil {
		return tasks.Task{}, err
	}

	var created tasks.Task
	err := s.call(ctx, "create", func(ctx context.Context) error {
		var err error
		created, err = s.repo.Create(ctx, draft)
		return err
	})
	if err != nil {
		return tasks.Task{}, err
	}

	s.mu.Lock()
	if created.ParentTaskID != "" {
		update(s.state.CachedTasks, created.ParentTaskID, func(p *tasks.Task) {
			p.Subtasks = append(p.Subtasks, created.Clone())
		})
	} else {
		w := view.ComputeWindow(s.state.CurrentDate, s.state.ViewType)
		s.state.CachedTasks = append(s.state.CachedTasks, recurrence.Expand([]tasks.Task{created}, w.Start, w.End)...)
		view.SortTasks(s.state.CachedTasks)
	}
	s.unlockAndNotify()

	s.refreshAfter(ctx, "create")
	return created, nil
}

// UpdateTask applies patch to the cached task immediately, then persists
// it. On failure the patched fields are rolled back; on success the window
// is reloaded. Patching an occurrence edits its whole series, except for
// Completed, which is recorded for that occurrence alone.
func (s *Store) UpdateTask(ctx context.Context, id string, patch tasks.Patch) error {
	if patch.Empty() {
		return nil
	}

	s.mu.Lock()
	target := id
	cur, cached := find(s.state.CachedTasks, id)
	var before, applied tasks.Task
	if cached {
		target = seriesID(cur)
		if p := patch.ParentTaskID; p != nil && *p != "" {
			if *p == id || slices.Contains(tasks.NewArena(s.state.CachedTasks).Descendants(id), *p) {
				s.mu.Unlock()
				return tasks.Errorf(tasks.ValidationFailed, "update", "task %s cannot move under its own subtree", id)
			}
		}
		before = cur.Clone()
		applied = cur.Clone()
		patch.Apply(&applied, s.now())
		if err := applied.Validate(); err != nil {
			s.mu.Unlock()
			return err
		}
		update(s.state.CachedTasks, id, func(t *tasks.Task) {
			subtasks := t.Subtasks
			*t = applied.Clone()
			t.Subtasks = subtasks
		})
		s.unlockAndNotify()
	} else {
		s.mu.Unlock()
	}

	rollback := func(p tasks.Patch) {
		if !cached {
			return
		}
		s.mu.Lock()
		update(s.state.CachedTasks, id, func(t *tasks.Task) { revert(t, before, applied, p) })
		s.unlockAndNotify()
	}

	series := patch
	if cached && target != id && patch.Completed != nil {
		_, day, _ := recurrence.SplitOccurrenceID(id)
		completed := *patch.Completed
		err := s.call(ctx, "complete occurrence", func(ctx context.Context) error {
			return s.repo.SetCompletion(ctx, target, day, completed)
		})
		if err != nil {
			rollback(patch)
			return err
		}
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		series.Completed = nil
	}

	if !series.Empty() {
		err := s.call(ctx, "update", func(ctx context.Context) error {
			return s.repo.Update(ctx, target, series)
		})
		if err != nil {
			rollback(series)
			return err
		}
	}

	s.refreshAfter(ctx, "update")
	return nil
}

// DeleteTask removes the task (and its subtasks) from the cache at once,
// then deletes it in the repository, restoring it on failure. Deleting an
// occurrence deletes its series.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	target := id
	if cur, ok := find(s.state.CachedTasks, id); ok {
		target = seriesID(cur)
	}
	var removed []removal
	s.state.CachedTasks, removed = remove(s.state.CachedTasks, "", func(t tasks.Task) bool {
		return t.ID == id || seriesID(t) == target
	})
	if sel := s.state.SelectedTask; sel != nil && len(removed) > 0 {
		if _, still := find(s.state.CachedTasks, sel.ID); !still {
			s.state.SelectedTask = nil
			s.state.Editing = false
		}
	}
	s.unlockAndNotify()

	err := s.call(ctx, "delete", func(ctx context.Context) error {
		return s.repo.Delete(ctx, target)
	})
	if err != nil {
		if len(removed) > 0 {
			s.mu.Lock()
			s.state.CachedTasks = restore(s.state.CachedTasks, removed)
			s.unlockAndNotify()
		}
		return err
	}

	s.mu.Lock()
	for _, r := range removed {
		delete(s.pending, r.task.ID)
	}
	s.mu.Unlock()
	return nil
}
