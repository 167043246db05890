package store

import (
	"context"
	"time"

	"github.com/CrowderSoup/planner/tasks"
)

// Repository is the persistence contract the store syncs against. Every
// call is scoped to the owner carried by ctx (see tasks.WithOwner); List
// takes the owner explicitly as well. Implementations report failures as
// *tasks.Error values.
type Repository interface {
	// List returns the owner's tasks dated in [start, end), every someday
	// task, and recurring templates anchored before end. A zero window
	// lists everything.
	List(ctx context.Context, ownerID string, start, end time.Time) ([]tasks.Task, error)
	Create(ctx context.Context, draft tasks.Draft) (tasks.Task, error)
	Update(ctx context.Context, id string, patch tasks.Patch) error
	Delete(ctx context.Context, id string) error
	// SetCompletion records completion of a recurring task's occurrence on day.
	SetCompletion(ctx context.Context, id string, day time.Time, completed bool) error
}
