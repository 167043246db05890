package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CrowderSoup/planner/recurrence"
	"github.com/CrowderSoup/planner/tasks"
)

var somedayDay = tasks.ISODay(tasks.Someday)

// TaskRepository persists tasks per owner. Recurring tasks are stored as
// templates; occurrences are expanded by the caller.
type TaskRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db, now: time.Now}
}

// List returns the owner's root tasks dated in [start, end), every someday
// task and every recurring template anchored before end, each with its
// subtask tree. Templates carry the occurrence completions recorded in the
// window. A zero window returns everything.
func (r *TaskRepository) List(ctx context.Context, ownerID string, start, end time.Time) ([]tasks.Task, error) {
	if ownerID == "" {
		return nil, tasks.Errorf(tasks.Unauthorized, "list", "no owner")
	}
	bounded := !start.IsZero() || !end.IsZero()

	where := "user_id = ? AND parent_task_id IS NULL"
	args := []any{ownerID}
	if bounded {
		lo, hi := tasks.ISODay(start), tasks.ISODay(end)
		where += ` AND ((date >= ? AND date < ?) OR date = ? OR (is_recurring = 1 AND date < ?))`
		args = append(args, lo, hi, somedayDay, hi)
	}

	query := `
		WITH RECURSIVE picked(id) AS (
			SELECT id FROM tasks WHERE ` + where + `
			UNION
			SELECT t.id FROM tasks t JOIN picked p ON t.parent_task_id = p.id
		)
		SELECT ` + taskColumns + ` FROM tasks WHERE id IN (SELECT id FROM picked)
		ORDER BY date, position, created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var flat []tasks.Task
	recurring := make(map[string]int)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if t.IsRecurring {
			recurring[t.ID] = len(flat)
		}
		flat = append(flat, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}

	if len(recurring) > 0 {
		if err := r.attachCompletions(ctx, ownerID, flat, recurring, start, end, bounded); err != nil {
			return nil, err
		}
	}

	tree := tasks.NewArena(flat).Tree()
	if tree == nil {
		tree = []tasks.Task{}
	}
	return tree, nil
}

func (r *TaskRepository) attachCompletions(ctx context.Context, ownerID string, flat []tasks.Task,
	recurring map[string]int, start, end time.Time, bounded bool) error {
	query := `SELECT c.task_id, c.completion_date FROM task_completions c
		JOIN tasks t ON t.id = c.task_id
		WHERE t.user_id = ? AND t.is_recurring = 1`
	args := []any{ownerID}
	if bounded {
		query += " AND c.completion_date >= ? AND c.completion_date < ?"
		args = append(args, tasks.ISODay(start), tasks.ISODay(end))
	}
	query += " ORDER BY c.completion_date"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, day string
		if err := rows.Scan(&id, &day); err != nil {
			return fmt.Errorf("failed to scan completion: %w", err)
		}
		if i, ok := recurring[id]; ok {
			flat[i].CompletedOccurrences = append(flat[i].CompletedOccurrences, day)
		}
	}
	return rows.Err()
}

// Create stores draft and its subtasks for the owner in ctx.
func (r *TaskRepository) Create(ctx context.Context, draft tasks.Draft) (tasks.Task, error) {
	ownerID, err := tasks.RequireOwner(ctx, "create")
	if err != nil {
		return tasks.Task{}, err
	}
	if err := draft.Validate(); err != nil {
		return tasks.Task{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if draft.ParentTaskID != "" {
		if _, err := getTask(ctx, tx, ownerID, draft.ParentTaskID); err != nil {
			if errors.Is(err, tasks.ErrNotFound) {
				return tasks.Task{}, tasks.Errorf(tasks.ValidationFailed, "create",
					"parent task %s does not exist", draft.ParentTaskID)
			}
			return tasks.Task{}, err
		}
	}

	created, err := r.insertDraft(ctx, tx, ownerID, draft, draft.ParentTaskID, r.now().UTC())
	if err != nil {
		return tasks.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return tasks.Task{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return created, nil
}

func (r *TaskRepository) insertDraft(ctx context.Context, tx *sql.Tx, ownerID string, d tasks.Draft,
	parentID string, now time.Time) (tasks.Task, error) {
	t := d.Task(uuid.NewString(), ownerID, now)
	t.ParentTaskID = parentID
	if err := insertTask(ctx, tx, t); err != nil {
		return tasks.Task{}, err
	}
	for _, sd := range d.Subtasks {
		st, err := r.insertDraft(ctx, tx, ownerID, sd, t.ID, now)
		if err != nil {
			return tasks.Task{}, err
		}
		t.Subtasks = append(t.Subtasks, st)
	}
	return t, nil
}

func insertTask(ctx context.Context, tx *sql.Tx, t tasks.Task) error {
	row, err := rowOf(t)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		row.ID, row.UserID, row.Title, row.Description, row.Date, row.Completed, row.Color,
		row.Position, row.ParentID, row.IsRecurring, row.Pattern, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Update applies patch to the owner's task id.
func (r *TaskRepository) Update(ctx context.Context, id string, patch tasks.Patch) error {
	ownerID, err := tasks.RequireOwner(ctx, "update")
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cur, err := getTask(ctx, tx, ownerID, id)
	if err != nil {
		return err
	}
	patch.Apply(&cur, r.now().UTC())
	if err := cur.Validate(); err != nil {
		return err
	}
	if patch.ParentTaskID != nil && cur.ParentTaskID != "" {
		if err := checkParent(ctx, tx, ownerID, id, cur.ParentTaskID); err != nil {
			return err
		}
	}

	row, err := rowOf(cur)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET
			title=?, description=?, date=?, completed=?, color=?, position=?,
			parent_task_id=?, is_recurring=?, recurring_pattern=?, updated_at=?
		WHERE id=? AND user_id=?`,
		row.Title, row.Description, row.Date, row.Completed, row.Color, row.Position,
		row.ParentID, row.IsRecurring, row.Pattern, row.UpdatedAt,
		id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n == 0 {
		return tasks.Errorf(tasks.NotFound, "update", "task %s not found", id)
	}
	if !cur.IsRecurring {
		if _, err := tx.ExecContext(ctx, "DELETE FROM task_completions WHERE task_id = ?", id); err != nil {
			return fmt.Errorf("failed to clear completions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// checkParent rejects a parent that does not exist or sits below id.
func checkParent(ctx context.Context, tx *sql.Tx, ownerID, id, parentID string) error {
	if parentID == id {
		return tasks.Errorf(tasks.ValidationFailed, "update", "task %s cannot be its own parent", id)
	}
	if _, err := getTask(ctx, tx, ownerID, parentID); err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			return tasks.Errorf(tasks.ValidationFailed, "update", "parent task %s does not exist", parentID)
		}
		return err
	}
	below, err := subtreeIDs(ctx, tx, ownerID, id)
	if err != nil {
		return err
	}
	for _, d := range below {
		if d == parentID {
			return tasks.Errorf(tasks.ValidationFailed, "update", "task %s cannot move below its own subtask", id)
		}
	}
	return nil
}

// Delete removes the owner's task id with its subtasks and completions.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	ownerID, err := tasks.RequireOwner(ctx, "delete")
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids, err := subtreeIDs(ctx, tx, ownerID, id)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return tasks.Errorf(tasks.NotFound, "delete", "task %s not found", id)
	}

	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, v := range ids {
		args[i] = v
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM task_completions WHERE task_id IN ("+marks+")", args...); err != nil {
		return fmt.Errorf("failed to delete completions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id IN ("+marks+")", args...); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetCompletion records or clears the completion of the owner's recurring
// task id on day. The day must be one of the task's occurrences.
func (r *TaskRepository) SetCompletion(ctx context.Context, id string, day time.Time, completed bool) error {
	ownerID, err := tasks.RequireOwner(ctx, "set completion")
	if err != nil {
		return err
	}
	t, err := getTask(ctx, r.db, ownerID, id)
	if err != nil {
		return err
	}
	if !t.IsRecurring {
		return tasks.Errorf(tasks.ValidationFailed, "set completion", "task %s is not recurring", id)
	}
	if !completed {
		_, err := r.db.ExecContext(ctx,
			"DELETE FROM task_completions WHERE task_id = ? AND completion_date = ?", id, tasks.ISODay(day))
		if err != nil {
			return fmt.Errorf("failed to clear completion: %w", err)
		}
		return nil
	}
	if !recurrence.OccursOn(t, day) {
		return tasks.Errorf(tasks.ValidationFailed, "set completion",
			"task %s does not occur on %s", id, tasks.ISODay(day))
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO task_completions (task_id, completion_date, created_at)
		VALUES (?, ?, ?) ON CONFLICT(task_id, completion_date) DO NOTHING`,
		id, tasks.ISODay(day), r.now().UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	return nil
}

// querier is implemented by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getTask(ctx context.Context, q querier, ownerID, id string) (tasks.Task, error) {
	row := q.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ? AND user_id = ?", id, ownerID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tasks.Task{}, tasks.Errorf(tasks.NotFound, "get", "task %s not found", id)
	}
	if err != nil {
		return tasks.Task{}, fmt.Errorf("failed to query task: %w", err)
	}
	return t, nil
}

// subtreeIDs returns id and the ids of every task below it, or nothing when
// the owner has no task id.
func subtreeIDs(ctx context.Context, q querier, ownerID, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		WITH RECURSIVE sub(id) AS (
			SELECT id FROM tasks WHERE id = ? AND user_id = ?
			UNION
			SELECT t.id FROM tasks t JOIN sub s ON t.parent_task_id = s.id
		)
		SELECT id FROM sub`, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtasks: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan subtask: %w", err)
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}
