package store

import (
	"context"
	"time"

	"github.com/CrowderSoup/planner/tasks"
	"github.com/CrowderSoup/planner/view"
)

// Command is a typed request from a UI component to the store. Components
// send commands straight to Dispatch instead of broadcasting events.
type Command interface {
	Execute(ctx context.Context, s *Store) error
}

// Dispatch executes cmd against the store.
func (s *Store) Dispatch(ctx context.Context, cmd Command) error {
	return cmd.Execute(ctx, s)
}

type AddTask struct{ Draft tasks.Draft }

func (c AddTask) Execute(ctx context.Context, s *Store) error {
	_, err := s.AddTask(ctx, c.Draft)
	return err
}

type UpdateTask struct {
	ID    string
	Patch tasks.Patch
}

func (c UpdateTask) Execute(ctx context.Context, s *Store) error {
	return s.UpdateTask(ctx, c.ID, c.Patch)
}

type DeleteTask struct{ ID string }

func (c DeleteTask) Execute(ctx context.Context, s *Store) error {
	return s.DeleteTask(ctx, c.ID)
}

type ToggleComplete struct{ ID string }

func (c ToggleComplete) Execute(_ context.Context, s *Store) error {
	return s.ToggleTaskComplete(c.ID)
}

type SetCurrentDate struct{ Date time.Time }

func (c SetCurrentDate) Execute(ctx context.Context, s *Store) error {
	return s.SetCurrentDate(ctx, c.Date)
}

type SetViewType struct{ View view.Type }

func (c SetViewType) Execute(ctx context.Context, s *Store) error {
	return s.SetViewType(ctx, c.View)
}

type SetSearch struct{ Query string }

func (c SetSearch) Execute(_ context.Context, s *Store) error {
	s.SetSearchQuery(c.Query)
	return nil
}

type SelectTask struct{ ID string }

func (c SelectTask) Execute(_ context.Context, s *Store) error {
	return s.SelectTask(c.ID)
}

// EditRequest asks for a task to be opened in the editor. It selects the
// task and marks the selection as being edited.
type EditRequest struct{ ID string }

func (c EditRequest) Execute(_ context.Context, s *Store) error {
	return s.selectTask(c.ID, true)
}
