package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CrowderSoup/planner/tasks"
)

const timestampLayout = time.RFC3339Nano

const taskColumns = `id, user_id, title, description, date, completed, color, position,
	parent_task_id, is_recurring, recurring_pattern, created_at, updated_at`

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// taskRow mirrors a row of the tasks table.
type taskRow struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Date        string
	Completed   bool
	Color       string
	Position    int
	ParentID    sql.NullString
	IsRecurring bool
	Pattern     sql.NullString
	CreatedAt   string
	UpdatedAt   string
}

func scanTask(s scanner) (tasks.Task, error) {
	var r taskRow
	err := s.Scan(&r.ID, &r.UserID, &r.Title, &r.Description, &r.Date, &r.Completed,
		&r.Color, &r.Position, &r.ParentID, &r.IsRecurring, &r.Pattern, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return tasks.Task{}, err
	}
	return r.task()
}

func (r taskRow) task() (tasks.Task, error) {
	date, err := time.Parse(tasks.DayLayout, r.Date)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("failed to parse date of task %s: %w", r.ID, err)
	}
	t := tasks.Task{
		ID:           r.ID,
		OwnerID:      r.UserID,
		Title:        r.Title,
		Description:  r.Description,
		Date:         tasks.NormalizeDate(date),
		Completed:    r.Completed,
		Color:        tasks.Color(r.Color),
		Position:     r.Position,
		ParentTaskID: r.ParentID.String,
		IsRecurring:  r.IsRecurring,
	}
	if r.Pattern.Valid && r.Pattern.String != "" {
		var p tasks.RecurringPattern
		if err := json.Unmarshal([]byte(r.Pattern.String), &p); err != nil {
			return tasks.Task{}, fmt.Errorf("failed to unmarshal pattern of task %s: %w", r.ID, err)
		}
		t.RecurringPattern = &p
	}
	if t.CreatedAt, err = time.Parse(timestampLayout, r.CreatedAt); err != nil {
		return tasks.Task{}, fmt.Errorf("failed to parse created_at of task %s: %w", r.ID, err)
	}
	if t.UpdatedAt, err = time.Parse(timestampLayout, r.UpdatedAt); err != nil {
		return tasks.Task{}, fmt.Errorf("failed to parse updated_at of task %s: %w", r.ID, err)
	}
	return t, nil
}

// rowOf converts a task into column values.
func rowOf(t tasks.Task) (taskRow, error) {
	r := taskRow{
		ID:          t.ID,
		UserID:      t.OwnerID,
		Title:       t.Title,
		Description: t.Description,
		Date:        tasks.ISODay(tasks.NormalizeDate(t.Date)),
		Completed:   t.Completed,
		Color:       string(t.Color),
		Position:    t.Position,
		IsRecurring: t.IsRecurring,
		CreatedAt:   t.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAt:   t.UpdatedAt.UTC().Format(timestampLayout),
	}
	if t.ParentTaskID != "" {
		r.ParentID = sql.NullString{String: t.ParentTaskID, Valid: true}
	}
	if t.RecurringPattern != nil {
		b, err := json.Marshal(t.RecurringPattern)
		if err != nil {
			return taskRow{}, fmt.Errorf("failed to marshal pattern: %w", err)
		}
		r.Pattern = sql.NullString{String: string(b), Valid: true}
	}
	return r, nil
}
