package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/CrowderSoup/planner/recurrence"
	"github.com/CrowderSoup/planner/tasks"
	"github.com/CrowderSoup/planner/view"
)

// fakeRepo is an in-memory Repository. Hooks let tests block or fail
// individual calls.
type fakeRepo struct {
	mu          sync.Mutex
	tasks       []tasks.Task
	completions map[string]bool
	nextID      int
	calls       []string

	listHook   func(ctx context.Context, start, end time.Time) error
	createErr  error
	updateErr  error
	deleteErr  error
	setCompErr error
}

func newFakeRepo(list ...tasks.Task) *fakeRepo {
	return &fakeRepo{tasks: list, completions: make(map[string]bool)}
}

func (r *fakeRepo) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *fakeRepo) callCount(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (r *fakeRepo) List(ctx context.Context, ownerID string, start, end time.Time) ([]tasks.Task, error) {
	r.record("list " + tasks.ISODay(start))
	if r.listHook != nil {
		if err := r.listHook(ctx, start, end); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tasks.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		t = t.Clone()
		if t.IsRecurring {
			for key, done := range r.completions {
				base, day, ok := recurrence.SplitOccurrenceID(key)
				if ok && base == t.ID && done {
					t.CompletedOccurrences = append(t.CompletedOccurrences, tasks.ISODay(day))
				}
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeRepo) Create(ctx context.Context, d tasks.Draft) (tasks.Task, error) {
	r.record("create")
	if r.createErr != nil {
		return tasks.Task{}, r.createErr
	}
	owner, _ := tasks.OwnerFrom(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t := d.Task(fmt.Sprintf("new-%d", r.nextID), owner, time.Now())
	r.tasks = append(r.tasks, t)
	return t.Clone(), nil
}

func (r *fakeRepo) Update(ctx context.Context, id string, p tasks.Patch) error {
	r.record("update " + id)
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tasks {
		if r.tasks[i].ID == id {
			p.Apply(&r.tasks[i], time.Now())
			return nil
		}
	}
	return tasks.Errorf(tasks.NotFound, "update", "task %s not found", id)
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	r.record("delete " + id)
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tasks {
		if r.tasks[i].ID == id {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			return nil
		}
	}
	return tasks.Errorf(tasks.NotFound, "delete", "task %s not found", id)
}

func (r *fakeRepo) SetCompletion(ctx context.Context, id string, day time.Time, completed bool) error {
	r.record("complete " + recurrence.OccurrenceID(id, day))
	if r.setCompErr != nil {
		return r.setCompErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions[recurrence.OccurrenceID(id, day)] = completed
	return nil
}

var (
	monday = tasks.Date(2024, time.January, 1)
	quiet  = log.New(io.Discard, "", 0)
)

func task(id, title string, day time.Time) tasks.Task {
	return tasks.Task{ID: id, OwnerID: "u1", Title: title, Date: day, Color: tasks.ColorDefault}
}

func newStore(t *testing.T, repo Repository, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{
		WithView(monday, view.Week),
		WithLogger(quiet),
		WithClock(func() time.Time { return monday.Add(9 * time.Hour) }),
	}, opts...)
	return New(repo, "u1", opts...)
}

func loaded(t *testing.T, s *Store) {
	t.Helper()
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}

func cachedTitle(t *testing.T, s *Store, id string) string {
	t.Helper()
	got, ok := find(s.State().CachedTasks, id)
	if !ok {
		t.Fatalf("task %s not cached", id)
	}
	return got.Title
}

func TestNewDefaults(t *testing.T) {
	s := New(newFakeRepo(), "u1", WithClock(func() time.Time {
		return time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)
	}))
	st := s.State()
	if st.ViewType != view.Week || st.Status != Idle {
		t.Fatalf("got view %v status %v", st.ViewType, st.Status)
	}
	if !st.CurrentDate.Equal(tasks.Date(2024, 3, 6)) {
		t.Fatalf("current date = %v", st.CurrentDate)
	}
}

func TestRefreshLoadsWindowAndSomeday(t *testing.T) {
	repo := newFakeRepo(
		task("a", "in week", monday.AddDate(0, 0, 2)),
		task("b", "next week", monday.AddDate(0, 0, 8)),
		task("c", "someday", tasks.Someday),
	)
	s := newStore(t, repo)
	loaded(t, s)

	st := s.State()
	if st.Status != Loaded || st.IsLoading {
		t.Fatalf("status = %v loading = %v", st.Status, st.IsLoading)
	}
	var ids []string
	for _, c := range st.CachedTasks {
		ids = append(ids, c.ID)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Fatalf("cached ids = %v, want [a c]", ids)
	}
}

func TestRefreshExpandsRecurringTasks(t *testing.T) {
	weekly := task("r", "standup", monday)
	weekly.IsRecurring = true
	weekly.RecurringPattern = &tasks.RecurringPattern{Type: tasks.Daily, Interval: 2}
	repo := newFakeRepo(weekly)
	repo.completions["r-2024-01-03"] = true

	s := newStore(t, repo)
	loaded(t, s)

	st := s.State()
	if len(st.CachedTasks) != 4 {
		t.Fatalf("got %d occurrences, want 4", len(st.CachedTasks))
	}
	occ, ok := find(st.CachedTasks, "r-2024-01-03")
	if !ok || !occ.Completed {
		t.Fatalf("occurrence r-2024-01-03 = %+v, %v", occ, ok)
	}
	if first, _ := find(st.CachedTasks, "r-2024-01-01"); first.Completed {
		t.Fatal("r-2024-01-01 should not be completed")
	}
}

func TestFailedFetchKeepsCache(t *testing.T) {
	repo := newFakeRepo(task("a", "kept", monday))
	s := newStore(t, repo)
	loaded(t, s)

	repo.listHook = func(context.Context, time.Time, time.Time) error {
		return errors.New("connection reset")
	}
	err := s.Next(context.Background())
	if !errors.Is(err, tasks.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
	st := s.State()
	if st.Status != Failed || st.Err == nil {
		t.Fatalf("status = %v err = %v", st.Status, st.Err)
	}
	if len(st.CachedTasks) != 1 || st.CachedTasks[0].ID != "a" {
		t.Fatalf("cache changed after failed fetch: %+v", st.CachedTasks)
	}
}

func TestUnauthorizedFetchKeepsKind(t *testing.T) {
	repo := newFakeRepo()
	repo.listHook = func(context.Context, time.Time, time.Time) error {
		return tasks.Errorf(tasks.Unauthorized, "list", "session expired")
	}
	s := newStore(t, repo)
	if err := s.Refresh(context.Background()); !errors.Is(err, tasks.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	repo := newFakeRepo(
		task("jan", "january", tasks.Date(2024, 1, 2)),
		task("feb", "february", tasks.Date(2024, 2, 6)),
	)
	release := make(chan struct{})
	started := make(chan struct{})
	januaryWeek := view.StartOfWeek(tasks.Date(2024, 1, 2))
	repo.listHook = func(ctx context.Context, start, _ time.Time) error {
		if start.Equal(januaryWeek) {
			close(started)
			<-release
		}
		return nil
	}
	s := newStore(t, repo)

	done := make(chan error, 1)
	go func() { done <- s.SetCurrentDate(context.Background(), tasks.Date(2024, 1, 2)) }()
	<-started

	if err := s.SetCurrentDate(context.Background(), tasks.Date(2024, 2, 6)); err != nil {
		t.Fatalf("second navigation: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first navigation: %v", err)
	}

	st := s.State()
	if len(st.CachedTasks) != 1 || st.CachedTasks[0].ID != "feb" {
		t.Fatalf("cache = %+v, want only feb", st.CachedTasks)
	}
	if !st.CurrentDate.Equal(tasks.Date(2024, 2, 6)) {
		t.Fatalf("current date = %v", st.CurrentDate)
	}
	if st.Status != Loaded {
		t.Fatalf("status = %v", st.Status)
	}
}

func TestNavigation(t *testing.T) {
	repo := newFakeRepo()
	s := newStore(t, repo)
	ctx := context.Background()

	if err := s.Next(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.State().CurrentDate; !got.Equal(tasks.Date(2024, 1, 8)) {
		t.Fatalf("after Next = %v", got)
	}
	if err := s.SetViewType(ctx, view.Month); err != nil {
		t.Fatal(err)
	}
	if err := s.Previous(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.State().CurrentDate; !got.Equal(tasks.Date(2023, 12, 1)) {
		t.Fatalf("after Previous = %v", got)
	}
	w := s.Window()
	if !w.Start.Equal(tasks.Date(2023, 12, 1)) || !w.End.Equal(tasks.Date(2024, 1, 1)) {
		t.Fatalf("window = %v", w)
	}
	if n := repo.callCount("list"); n != 3 {
		t.Fatalf("list called %d times, want 3", n)
	}
}

func TestAddTaskAppendsAndRefreshes(t *testing.T) {
	repo := newFakeRepo()
	s := newStore(t, repo)
	loaded(t, s)

	var seen []int
	unsubscribe := s.Subscribe(func(st State) { seen = append(seen, len(st.CachedTasks)) })
	defer unsubscribe()

	created, err := s.AddTask(context.Background(), tasks.Draft{Title: "  Write report ", Date: monday})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if created.Title != "Write report" || created.OwnerID != "u1" {
		t.Fatalf("created = %+v", created)
	}
	if cachedTitle(t, s, created.ID) != "Write report" {
		t.Fatal("created task missing from cache")
	}
	if len(seen) == 0 || seen[0] != 1 {
		t.Fatalf("first notification should show the appended task, got %v", seen)
	}
	if n := repo.callCount("list"); n != 2 {
		t.Fatalf("list called %d times, want 2", n)
	}
}

func TestAddTaskRejectsInvalidDraft(t *testing.T) {
	repo := newFakeRepo()
	s := newStore(t, repo)

	cases := []tasks.Draft{
		{Title: "   ", Date: monday},
		{Title: "bad color", Date: monday, Color: "teal"},
		{Title: "no pattern", Date: monday, IsRecurring: true},
		{Title: "zero interval", Date: monday, IsRecurring: true,
			RecurringPattern: &tasks.RecurringPattern{Type: tasks.Daily}},
	}
	for _, d := range cases {
		if _, err := s.AddTask(context.Background(), d); !errors.Is(err, tasks.ErrValidation) {
			t.Errorf("AddTask(%q) err = %v, want validation", d.Title, err)
		}
	}
	if n := repo.callCount("create"); n != 0 {
		t.Fatalf("repository called %d times for invalid drafts", n)
	}
}

func TestAddTaskFailureLeavesCache(t *testing.T) {
	repo := newFakeRepo(task("a", "existing", monday))
	s := newStore(t, repo)
	loaded(t, s)
	repo.createErr = errors.New("boom")

	_, err := s.AddTask(context.Background(), tasks.Draft{Title: "new", Date: monday})
	if !errors.Is(err, tasks.ErrTransient) {
		t.Fatalf("err = %v", err)
	}
	if got := len(s.State().CachedTasks); got != 1 {
		t.Fatalf("cache has %d tasks, want 1", got)
	}
}

func TestUpdateTaskRollsBack(t *testing.T) {
	repo := newFakeRepo(task("a", "Old", monday))
	s := newStore(t, repo)
	loaded(t, s)

	block := make(chan struct{})
	entered := make(chan struct{})
	repo.updateErr = errors.New("503")
	updating := &blockingRepo{Repository: repo, entered: entered, release: block}
	s.repo = updating

	title := "New"
	done := make(chan error, 1)
	go func() { done <- s.UpdateTask(context.Background(), "a", tasks.Patch{Title: &title}) }()
	<-entered
	if got := cachedTitle(t, s, "a"); got != "New" {
		t.Fatalf("optimistic title = %q", got)
	}
	close(block)

	err := <-done
	if !errors.Is(err, tasks.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
	if got := cachedTitle(t, s, "a"); got != "Old" {
		t.Fatalf("title after rollback = %q", got)
	}
}

// blockingRepo holds the first Update until release is closed and then
// fails it with err, if set. Later updates pass straight through.
type blockingRepo struct {
	Repository
	entered chan struct{}
	release chan struct{}
	err     error
	once    sync.Once
}

func (b *blockingRepo) Update(ctx context.Context, id string, p tasks.Patch) error {
	first := false
	b.once.Do(func() { first = true })
	if !first {
		return b.Repository.Update(ctx, id, p)
	}
	close(b.entered)
	<-b.release
	if b.err != nil {
		return b.err
	}
	return b.Repository.Update(ctx, id, p)
}

func TestOverlappingUpdatesRollBackOnlyOwnFields(t *testing.T) {
	repo := newFakeRepo(task("a", "Old", monday))
	s := newStore(t, repo)
	loaded(t, s)

	block := make(chan struct{})
	entered := make(chan struct{})
	s.repo = &blockingRepo{Repository: repo, entered: entered, release: block, err: errors.New("503")}
	ctx := context.Background()

	first, red := "First", tasks.ColorRed
	done := make(chan error, 1)
	go func() { done <- s.UpdateTask(ctx, "a", tasks.Patch{Title: &first, Color: &red}) }()
	<-entered

	second, desc := "Second", "notes"
	if err := s.UpdateTask(ctx, "a", tasks.Patch{Title: &second, Description: &desc}); err != nil {
		t.Fatalf("second UpdateTask: %v", err)
	}
	if got := cachedTitle(t, s, "a"); got != "Second" {
		t.Fatalf("title after second update = %q", got)
	}

	close(block)
	if err := <-done; !errors.Is(err, tasks.ErrTransient) {
		t.Fatalf("first update err = %v", err)
	}
	got, _ := find(s.State().CachedTasks, "a")
	if got.Title != "Second" || got.Description != "notes" {
		t.Fatalf("failed update clobbered newer one: %+v", got)
	}
	if got.Color != tasks.ColorDefault {
		t.Fatalf("color = %s, want the persisted default", got.Color)
	}
}

func TestOverlappingUpdatesRollBackBeforeRefresh(t *testing.T) {
	repo := newFakeRepo(task("a", "Old", monday))
	s := newStore(t, repo)
	loaded(t, s)

	block := make(chan struct{})
	entered := make(chan struct{})
	s.repo = &blockingRepo{Repository: repo, entered: entered, release: block, err: errors.New("503")}
	ctx := context.Background()

	first, red := "First", tasks.ColorRed
	done := make(chan error, 1)
	go func() { done <- s.UpdateTask(ctx, "a", tasks.Patch{Title: &first, Color: &red}) }()
	<-entered

	pos := 3
	repo.updateErr = errors.New("down")
	if err := s.UpdateTask(ctx, "a", tasks.Patch{Position: &pos}); !errors.Is(err, tasks.ErrTransient) {
		t.Fatalf("second update err = %v", err)
	}

	close(block)
	<-done
	got, _ := find(s.State().CachedTasks, "a")
	if got.Title != "Old" || got.Color != tasks.ColorDefault || got.Position != 0 {
		t.Fatalf("after both failures = %+v", got)
	}
}

func TestUpdateTaskSuccessRefreshes(t *testing.T) {
	repo := newFakeRepo(task("a", "Old", monday))
	s := newStore(t, repo)
	loaded(t, s)

	title := "New"
	if err := s.UpdateTask(context.Background(), "a", tasks.Patch{Title: &title}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got := cachedTitle(t, s, "a"); got != "New" {
		t.Fatalf("title = %q", got)
	}
	if n := repo.callCount("list"); n != 2 {
		t.Fatalf("list called %d times, want 2", n)
	}
}

func TestUpdateTaskValidatesBeforeCall(t *testing.T) {
	repo := newFakeRepo(task("a", "Old", monday))
	s := newStore(t, repo)
	loaded(t, s)

	empty := ""
	err := s.UpdateTask(context.Background(), "a", tasks.Patch{Title: &empty})
	if !errors.Is(err, tasks.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	if repo.callCount("update") != 0 {
		t.Fatal("repository should not be called")
	}
	if got := cachedTitle(t, s, "a"); got != "Old" {
		t.Fatalf("title = %q", got)
	}
}

func TestUpdateOccurrenceTargetsSeries(t *testing.T) {
	daily := task("r", "water plants", monday)
	daily.IsRecurring = true
	daily.RecurringPattern = &tasks.RecurringPattern{Type: tasks.Daily, Interval: 1}
	repo := newFakeRepo(daily)
	s := newStore(t, repo)
	loaded(t, s)

	title := "Water plants"
	if err := s.UpdateTask(context.Background(), "r-2024-01-03", tasks.Patch{Title: &title}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if repo.callCount("update r") != 1 || repo.callCount("update r-") != 0 {
		t.Fatalf("calls = %v", repo.calls)
	}
	for _, c := range s.State().CachedTasks {
		if c.Title != title {
			t.Fatalf("occurrence %s title = %q", c.ID, c.Title)
		}
	}
}

func dailySeries(id string) tasks.Task {
	t := task(id, "water plants", monday)
	t.IsRecurring = true
	t.RecurringPattern = &tasks.RecurringPattern{Type: tasks.Daily, Interval: 1}
	return t
}

func TestCompletingOccurrenceRecordsThatDay(t *testing.T) {
	repo := newFakeRepo(dailySeries("r"))
	s := newStore(t, repo)
	loaded(t, s)

	done := true
	if err := s.UpdateTask(context.Background(), "r-2024-01-03", tasks.Patch{Completed: &done}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if repo.callCount("complete r-2024-01-03") != 1 || repo.callCount("update") != 0 {
		t.Fatalf("calls = %v", repo.calls)
	}
	st := s.State()
	if occ, _ := find(st.CachedTasks, "r-2024-01-03"); !occ.Completed {
		t.Fatal("occurrence lost its completion after refresh")
	}
	if occ, _ := find(st.CachedTasks, "r-2024-01-04"); occ.Completed {
		t.Fatal("completion spread to another occurrence")
	}
	if repo.tasks[0].Completed {
		t.Fatal("series template marked completed")
	}
}

func TestOccurrencePatchSplitsCompletionFromSeries(t *testing.T) {
	repo := newFakeRepo(dailySeries("r"))
	s := newStore(t, repo)
	loaded(t, s)

	done, title := true, "Water the plants"
	if err := s.UpdateTask(context.Background(), "r-2024-01-02", tasks.Patch{Completed: &done, Title: &title}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if repo.callCount("complete r-2024-01-02") != 1 || repo.callCount("update r") != 1 {
		t.Fatalf("calls = %v", repo.calls)
	}
	if repo.tasks[0].Completed || repo.tasks[0].Title != title {
		t.Fatalf("template = %+v", repo.tasks[0])
	}
}

func TestCompletingOccurrenceFailureRollsBack(t *testing.T) {
	repo := newFakeRepo(dailySeries("r"))
	s := newStore(t, repo)
	loaded(t, s)
	repo.setCompErr = errors.New("offline")

	done, title := true, "renamed"
	err := s.UpdateTask(context.Background(), "r-2024-01-03", tasks.Patch{Completed: &done, Title: &title})
	if !errors.Is(err, tasks.ErrTransient) {
		t.Fatalf("err = %v", err)
	}
	occ, _ := find(s.State().CachedTasks, "r-2024-01-03")
	if occ.Completed || occ.Title != "water plants" {
		t.Fatalf("occurrence after failure = %+v", occ)
	}
	if repo.callCount("update") != 0 {
		t.Fatal("series updated after the completion failed")
	}
}

func TestUpdateRejectsMoveIntoOwnSubtree(t *testing.T) {
	parent := task("p", "Plan trip", monday)
	parent.Subtasks = []tasks.Task{{ID: "c", OwnerID: "u1", Title: "Book", Date: monday, ParentTaskID: "p", Color: tasks.ColorDefault}}
	repo := newFakeRepo(parent)
	s := newStore(t, repo)
	loaded(t, s)

	for _, dst := range []string{"p", "c"} {
		dst := dst
		if err := s.UpdateTask(context.Background(), "p", tasks.Patch{ParentTaskID: &dst}); !errors.Is(err, tasks.ErrValidation) {
			t.Errorf("move under %s err = %v", dst, err)
		}
	}
	if repo.callCount("update") != 0 {
		t.Fatal("repository called for a cyclic move")
	}
}

func TestAddTaskPlacesSubtaskAndOccurrences(t *testing.T) {
	repo := newFakeRepo(task("p", "Plan trip", monday))
	s := newStore(t, repo)
	loaded(t, s)
	repo.listHook = func(context.Context, time.Time, time.Time) error { return errors.New("offline") }
	ctx := context.Background()

	sub, err := s.AddTask(ctx, tasks.Draft{Title: "Book hotel", Date: monday, ParentTaskID: "p"})
	if err != nil {
		t.Fatalf("AddTask subtask: %v", err)
	}
	st := s.State()
	if len(st.CachedTasks) != 1 || len(st.CachedTasks[0].Subtasks) != 1 || st.CachedTasks[0].Subtasks[0].ID != sub.ID {
		t.Fatalf("subtask not under its parent: %+v", st.CachedTasks)
	}

	series, err := s.AddTask(ctx, tasks.Draft{
		Title:            "stretch",
		Date:             monday,
		IsRecurring:      true,
		RecurringPattern: &tasks.RecurringPattern{Type: tasks.Daily, Interval: 1},
	})
	if err != nil {
		t.Fatalf("AddTask series: %v", err)
	}
	st = s.State()
	if _, ok := find(st.CachedTasks, series.ID); ok {
		t.Fatal("series template cached as a task")
	}
	for i := 0; i < 7; i++ {
		id := recurrence.OccurrenceID(series.ID, monday.AddDate(0, 0, i))
		if _, ok := find(st.CachedTasks, id); !ok {
			t.Fatalf("occurrence %s missing", id)
		}
	}
	if st.Err == nil {
		t.Fatal("failed refresh not recorded")
	}
}

func TestDeleteTaskTwice(t *testing.T) {
	repo := newFakeRepo(task("a", "doomed", monday), task("b", "kept", monday))
	s := newStore(t, repo)
	loaded(t, s)
	ctx := context.Background()

	if err := s.DeleteTask(ctx, "a"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	err := s.DeleteTask(ctx, "a")
	if !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("second delete err = %v, want not found", err)
	}
	st := s.State()
	if len(st.CachedTasks) != 1 || st.CachedTasks[0].ID != "b" {
		t.Fatalf("cache = %+v", st.CachedTasks)
	}
}

func TestDeleteTaskRestoresOnFailure(t *testing.T) {
	parent := task("p", "parent", monday)
	parent.Subtasks = []tasks.Task{task("c", "child", monday)}
	parent.Subtasks[0].ParentTaskID = "p"
	repo := newFakeRepo(task("a", "first", monday), parent, task("z", "last", monday))
	s := newStore(t, repo)
	loaded(t, s)
	if err := s.SelectTask("c"); err != nil {
		t.Fatal(err)
	}
	before := s.State().CachedTasks

	repo.deleteErr = errors.New("unreachable")
	if err := s.DeleteTask(context.Background(), "c"); !errors.Is(err, tasks.ErrTransient) {
		t.Fatalf("err = %v", err)
	}
	after := s.State().CachedTasks
	if len(after) != len(before) {
		t.Fatalf("cache len = %d, want %d", len(after), len(before))
	}
	for i := range before {
		if after[i].ID != before[i].ID || len(after[i].Subtasks) != len(before[i].Subtasks) {
			t.Fatalf("cache[%d] = %s/%d, want %s/%d", i, after[i].ID, len(after[i].Subtasks),
				before[i].ID, len(before[i].Subtasks))
		}
	}
}

func TestDeleteClearsSelection(t *testing.T) {
	repo := newFakeRepo(task("a", "doomed", monday))
	s := newStore(t, repo)
	loaded(t, s)
	if err := s.Dispatch(context.Background(), EditRequest{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if st := s.State(); st.SelectedTask == nil || !st.Editing {
		t.Fatalf("selection = %+v editing = %v", st.SelectedTask, st.Editing)
	}
	if err := s.DeleteTask(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if st := s.State(); st.SelectedTask != nil || st.Editing {
		t.Fatal("selection should be cleared")
	}
}

func TestToggleIsLocalUntilFlush(t *testing.T) {
	repo := newFakeRepo(task("a", "plain", monday))
	s := newStore(t, repo)
	loaded(t, s)

	if err := s.ToggleTaskComplete("a"); err != nil {
		t.Fatal(err)
	}
	if got, _ := find(s.State().CachedTasks, "a"); !got.Completed {
		t.Fatal("toggle not applied locally")
	}
	if repo.callCount("update") != 0 {
		t.Fatal("toggle should not reach the repository")
	}
	if s.PendingCompletions() != 1 {
		t.Fatalf("pending = %d", s.PendingCompletions())
	}

	// A reload before the flush keeps the local value.
	loaded(t, s)
	if got, _ := find(s.State().CachedTasks, "a"); !got.Completed {
		t.Fatal("reload dropped pending toggle")
	}

	if err := s.FlushCompletions(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if s.PendingCompletions() != 0 {
		t.Fatal("pending not drained")
	}
	if !repo.tasks[0].Completed {
		t.Fatal("completion not persisted")
	}
}

func TestToggleTwiceCancels(t *testing.T) {
	repo := newFakeRepo(task("a", "plain", monday))
	s := newStore(t, repo)
	loaded(t, s)

	for i := 0; i < 2; i++ {
		if err := s.Dispatch(context.Background(), ToggleComplete{ID: "a"}); err != nil {
			t.Fatal(err)
		}
	}
	if s.PendingCompletions() != 0 {
		t.Fatalf("pending = %d", s.PendingCompletions())
	}
	if got, _ := find(s.State().CachedTasks, "a"); got.Completed {
		t.Fatal("double toggle should restore original")
	}
}

func TestToggleUnknownTask(t *testing.T) {
	s := newStore(t, newFakeRepo())
	if err := s.ToggleTaskComplete("missing"); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestFlushOccurrenceUsesSetCompletion(t *testing.T) {
	daily := task("r", "stretch", monday)
	daily.IsRecurring = true
	daily.RecurringPattern = &tasks.RecurringPattern{Type: tasks.Daily, Interval: 1}
	repo := newFakeRepo(daily)
	s := newStore(t, repo)
	loaded(t, s)

	if err := s.ToggleTaskComplete("r-2024-01-02"); err != nil {
		t.Fatal(err)
	}
	if err := s.FlushCompletions(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !repo.completions["r-2024-01-02"] {
		t.Fatalf("completions = %v", repo.completions)
	}
	if repo.callCount("update") != 0 {
		t.Fatal("occurrence completion should not update the template")
	}

	loaded(t, s)
	if got, _ := find(s.State().CachedTasks, "r-2024-01-02"); !got.Completed {
		t.Fatal("reloaded occurrence lost completion")
	}
	if got, _ := find(s.State().CachedTasks, "r-2024-01-03"); got.Completed {
		t.Fatal("other occurrences must stay incomplete")
	}
}

func TestFlushFailureRollsBack(t *testing.T) {
	repo := newFakeRepo(task("a", "plain", monday))
	s := newStore(t, repo)
	loaded(t, s)
	repo.updateErr = errors.New("offline")

	if err := s.ToggleTaskComplete("a"); err != nil {
		t.Fatal(err)
	}
	err := s.FlushCompletions(context.Background())
	if !errors.Is(err, tasks.ErrTransient) {
		t.Fatalf("err = %v", err)
	}
	if got, _ := find(s.State().CachedTasks, "a"); got.Completed {
		t.Fatal("failed flush should roll back the toggle")
	}
	if s.PendingCompletions() != 0 {
		t.Fatal("failed toggle should not be retried")
	}
}

func TestCallTimeoutIsTransient(t *testing.T) {
	repo := newFakeRepo()
	repo.listHook = func(ctx context.Context, _, _ time.Time) error {
		<-ctx.Done()
		return ctx.Err()
	}
	s := newStore(t, repo, WithCallTimeout(10*time.Millisecond))
	err := s.Refresh(context.Background())
	if !errors.Is(err, tasks.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestRepositorySeesOwner(t *testing.T) {
	repo := newFakeRepo()
	var owner string
	repo.listHook = func(ctx context.Context, _, _ time.Time) error {
		owner, _ = tasks.OwnerFrom(ctx)
		return nil
	}
	s := newStore(t, repo)
	loaded(t, s)
	if owner != "u1" {
		t.Fatalf("owner = %q", owner)
	}
}

func TestFilteredTasks(t *testing.T) {
	repo := newFakeRepo(
		task("a", "Team meeting", monday),
		task("b", "Groceries", monday),
		task("c", "someday", tasks.Someday),
	)
	repo.tasks[2].Description = "Meet the neighbours"
	s := newStore(t, repo)
	loaded(t, s)

	if err := s.Dispatch(context.Background(), SetSearch{Query: "meet"}); err != nil {
		t.Fatal(err)
	}
	got := s.FilteredTasks()
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("filtered = %+v", got)
	}
	if s.State().SearchQuery != "meet" {
		t.Fatal("query not stored")
	}
}

func TestSelectionFollowsReload(t *testing.T) {
	repo := newFakeRepo(task("a", "first", monday))
	s := newStore(t, repo)
	loaded(t, s)
	if err := s.Dispatch(context.Background(), SelectTask{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	repo.tasks[0].Title = "renamed"
	loaded(t, s)
	if sel := s.State().SelectedTask; sel == nil || sel.Title != "renamed" {
		t.Fatalf("selection = %+v", sel)
	}

	repo.tasks = nil
	loaded(t, s)
	if s.State().SelectedTask != nil {
		t.Fatal("selection should clear when the task leaves the view")
	}
	if err := s.SelectTask("a"); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestDispatchNavigation(t *testing.T) {
	repo := newFakeRepo(task("x", "in march", tasks.Date(2024, 3, 20)))
	s := newStore(t, repo)
	ctx := context.Background()

	cmds := []Command{
		SetViewType{View: view.Month},
		SetCurrentDate{Date: tasks.Date(2024, 3, 15)},
	}
	for _, c := range cmds {
		if err := s.Dispatch(ctx, c); err != nil {
			t.Fatalf("%T: %v", c, err)
		}
	}
	st := s.State()
	if st.ViewType != view.Month || len(st.CachedTasks) != 1 {
		t.Fatalf("state = %+v", st)
	}
	if err := s.Dispatch(ctx, AddTask{Draft: tasks.Draft{Title: "later"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Dispatch(ctx, DeleteTask{ID: "x"}); err != nil {
		t.Fatal(err)
	}
	title := "renamed"
	if err := s.Dispatch(ctx, UpdateTask{ID: "new-1", Patch: tasks.Patch{Title: &title}}); err != nil {
		t.Fatal(err)
	}
	if cachedTitle(t, s, "new-1") != "renamed" {
		t.Fatal("update via dispatch did not apply")
	}
}

func TestUnsubscribe(t *testing.T) {
	s := newStore(t, newFakeRepo())
	calls := 0
	unsubscribe := s.Subscribe(func(State) { calls++ })
	s.SetSearchQuery("a")
	unsubscribe()
	s.SetSearchQuery("b")
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
