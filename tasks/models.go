package tasks

import (
	"slices"
	"strings"
	"time"
)

// Color is the display color key of a task.
type Color string

const (
	ColorDefault Color = "default"
	ColorRed     Color = "red"
	ColorAmber   Color = "amber"
	ColorEmerald Color = "emerald"
	ColorBlue    Color = "blue"
	ColorPurple  Color = "purple"
)

// Colors lists the task colors in display order.
var Colors = []Color{ColorDefault, ColorRed, ColorAmber, ColorEmerald, ColorBlue, ColorPurple}

// Swatch holds the hex colors a renderer uses for a task color.
type Swatch struct {
	Background string `json:"bg"`
	Border     string `json:"border"`
	Text       string `json:"text"`
}

var palette = map[Color]Swatch{
	ColorDefault: {Background: "#F3F4F6", Border: "#E5E7EB", Text: "#374151"},
	ColorRed:     {Background: "#FEF2F2", Border: "#FEE2E2", Text: "#991B1B"},
	ColorAmber:   {Background: "#FFFBEB", Border: "#FDE68A", Text: "#92400E"},
	ColorEmerald: {Background: "#ECFDF5", Border: "#A7F3D0", Text: "#065F46"},
	ColorBlue:    {Background: "#EFF6FF", Border: "#BFDBFE", Text: "#1E40AF"},
	ColorPurple:  {Background: "#F5F3FF", Border: "#DDD6FE", Text: "#5B21B6"},
}

// Valid reports whether c is one of the known colors.
func (c Color) Valid() bool {
	_, ok := palette[c]
	return ok
}

// Swatch returns the palette entry, falling back to the default color.
func (c Color) Swatch() Swatch {
	if s, ok := palette[c]; ok {
		return s
	}
	return palette[ColorDefault]
}

// PatternType is the unit a recurring task advances by.
type PatternType string

const (
	Daily   PatternType = "daily"
	Weekly  PatternType = "weekly"
	Monthly PatternType = "monthly"
)

// RecurringPattern governs how occurrences are generated from a template task.
type RecurringPattern struct {
	Type     PatternType
	Interval int
	EndDate  *time.Time
}

func (p *RecurringPattern) clone() *RecurringPattern {
	if p == nil {
		return nil
	}
	cp := *p
	if p.EndDate != nil {
		end := *p.EndDate
		cp.EndDate = &end
	}
	return &cp
}

// Validate checks the pattern type and interval.
func (p *RecurringPattern) Validate() error {
	switch p.Type {
	case Daily, Weekly, Monthly:
	default:
		return Errorf(ValidationFailed, "pattern", "unknown recurrence type %q", p.Type)
	}
	if p.Interval < 1 {
		return Errorf(ValidationFailed, "pattern", "interval must be at least 1, got %d", p.Interval)
	}
	return nil
}

// Task is a dated (or someday) item owned by a single user.
type Task struct {
	ID               string
	OwnerID          string
	Title            string
	Description      string
	Date             time.Time
	Completed        bool
	Color            Color
	Position         int
	ParentTaskID     string
	IsRecurring      bool
	RecurringPattern *RecurringPattern
	Subtasks         []Task

	// CompletedOccurrences lists the yyyy-mm-dd days on which occurrences of a
	// recurring template were completed.
	CompletedOccurrences []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsSomeday reports whether the task has no fixed date.
func (t Task) IsSomeday() bool { return IsSomeday(t.Date) }

// Clone returns a deep copy.
func (t Task) Clone() Task {
	cp := t
	cp.RecurringPattern = t.RecurringPattern.clone()
	cp.CompletedOccurrences = slices.Clone(t.CompletedOccurrences)
	if t.Subtasks != nil {
		cp.Subtasks = make([]Task, len(t.Subtasks))
		for i, st := range t.Subtasks {
			cp.Subtasks[i] = st.Clone()
		}
	}
	return cp
}

// OccurrenceCompleted reports whether the occurrence on day was completed.
func (t Task) OccurrenceCompleted(day time.Time) bool {
	return slices.Contains(t.CompletedOccurrences, ISODay(day))
}

// Validate checks the persisted-task invariants.
func (t Task) Validate() error {
	return validateFields("task", t.Title, t.Color, t.Date, t.IsRecurring, t.RecurringPattern)
}

// Draft is a task as submitted for creation: no id, owner or timestamps.
type Draft struct {
	Title            string
	Description      string
	Date             time.Time
	Color            Color
	Position         int
	ParentTaskID     string
	IsRecurring      bool
	RecurringPattern *RecurringPattern
	Subtasks         []Draft
}

// Validate checks the draft and its subtasks.
func (d Draft) Validate() error {
	color := d.Color
	if color == "" {
		color = ColorDefault
	}
	if err := validateFields("draft", d.Title, color, d.Date, d.IsRecurring, d.RecurringPattern); err != nil {
		return err
	}
	for _, st := range d.Subtasks {
		if err := st.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Task materializes the draft. Subtasks inherit the owner and get their
// parent id filled in once ids are assigned by the caller.
func (d Draft) Task(id, ownerID string, now time.Time) Task {
	t := Task{
		ID:               id,
		OwnerID:          ownerID,
		Title:            strings.TrimSpace(d.Title),
		Description:      d.Description,
		Date:             NormalizeDate(d.Date),
		Color:            d.Color,
		Position:         d.Position,
		ParentTaskID:     d.ParentTaskID,
		IsRecurring:      d.IsRecurring,
		RecurringPattern: d.RecurringPattern.clone(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if t.Color == "" {
		t.Color = ColorDefault
	}
	if t.RecurringPattern != nil && t.RecurringPattern.EndDate != nil {
		end := Day(*t.RecurringPattern.EndDate)
		t.RecurringPattern.EndDate = &end
	}
	return t
}

// Patch carries the fields of a partial update. Nil fields are untouched.
// Setting IsRecurring to false clears the pattern.
type Patch struct {
	Title            *string
	Description      *string
	Date             *time.Time
	Completed        *bool
	Color            *Color
	Position         *int
	ParentTaskID     *string
	IsRecurring      *bool
	RecurringPattern *RecurringPattern
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Date == nil && p.Completed == nil &&
		p.Color == nil && p.Position == nil && p.ParentTaskID == nil &&
		p.IsRecurring == nil && p.RecurringPattern == nil
}

// Apply writes the patch onto t and bumps UpdatedAt.
func (p Patch) Apply(t *Task, now time.Time) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = NormalizeDate(*p.Date)
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
	if p.ParentTaskID != nil {
		t.ParentTaskID = *p.ParentTaskID
	}
	if p.RecurringPattern != nil {
		t.RecurringPattern = p.RecurringPattern.clone()
		t.IsRecurring = true
	}
	if p.IsRecurring != nil {
		t.IsRecurring = *p.IsRecurring
		if !t.IsRecurring {
			t.RecurringPattern = nil
		}
	}
	t.UpdatedAt = now
}

func validateFields(op, title string, color Color, date time.Time, recurring bool, pattern *RecurringPattern) error {
	if strings.TrimSpace(title) == "" {
		return Errorf(ValidationFailed, op, "title is required")
	}
	if !color.Valid() {
		return Errorf(ValidationFailed, op, "unknown color %q", color)
	}
	if recurring != (pattern != nil) {
		return Errorf(ValidationFailed, op, "isRecurring must be set exactly when a pattern is present")
	}
	if pattern == nil {
		return nil
	}
	if err := pattern.Validate(); err != nil {
		return err
	}
	if IsSomeday(date) {
		return Errorf(ValidationFailed, op, "recurring tasks need an anchor date")
	}
	if pattern.EndDate != nil && Day(*pattern.EndDate).Before(Day(date)) {
		return Errorf(ValidationFailed, op, "recurrence ends before it starts")
	}
	return nil
}
