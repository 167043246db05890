package tasks

import (
	"encoding/json"
	"fmt"
)

type wirePattern struct {
	Type     PatternType `json:"type"`
	Interval int         `json:"interval"`
	EndDate  string      `json:"endDate,omitempty"`
}

func (p RecurringPattern) MarshalJSON() ([]byte, error) {
	w := wirePattern{Type: p.Type, Interval: p.Interval}
	if p.EndDate != nil {
		w.EndDate = FormatDate(*p.EndDate)
	}
	return json.Marshal(w)
}

func (p *RecurringPattern) UnmarshalJSON(data []byte) error {
	var w wirePattern
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Type = w.Type
	p.Interval = w.Interval
	p.EndDate = nil
	if w.EndDate != "" {
		end, err := ParseDate(w.EndDate)
		if err != nil {
			return fmt.Errorf("endDate: %w", err)
		}
		p.EndDate = &end
	}
	return nil
}

type wireTask struct {
	ID                   string            `json:"id"`
	OwnerID              string            `json:"ownerId"`
	Title                string            `json:"title"`
	Description          string            `json:"description,omitempty"`
	Date                 string            `json:"date"`
	Completed            bool              `json:"completed"`
	Color                Color             `json:"color"`
	Position             int               `json:"position"`
	ParentTaskID         string            `json:"parentTaskId,omitempty"`
	IsRecurring          bool              `json:"isRecurring"`
	RecurringPattern     *RecurringPattern `json:"recurringPattern,omitempty"`
	Subtasks             []Task            `json:"subtasks"`
	CompletedOccurrences []string          `json:"completedOccurrences,omitempty"`
	CreatedAt            string            `json:"createdAt"`
	UpdatedAt            string            `json:"updatedAt"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	subtasks := t.Subtasks
	if subtasks == nil {
		subtasks = []Task{}
	}
	return json.Marshal(wireTask{
		ID:                   t.ID,
		OwnerID:              t.OwnerID,
		Title:                t.Title,
		Description:          t.Description,
		Date:                 FormatDate(t.Date),
		Completed:            t.Completed,
		Color:                t.Color,
		Position:             t.Position,
		ParentTaskID:         t.ParentTaskID,
		IsRecurring:          t.IsRecurring,
		RecurringPattern:     t.RecurringPattern,
		Subtasks:             subtasks,
		CompletedOccurrences: t.CompletedOccurrences,
		CreatedAt:            formatTimestamp(t.CreatedAt),
		UpdatedAt:            formatTimestamp(t.UpdatedAt),
	})
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	date, err := ParseDate(w.Date)
	if err != nil {
		return err
	}
	created, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return err
	}
	updated, err := parseTimestamp(w.UpdatedAt)
	if err != nil {
		return err
	}
	if w.Color == "" {
		w.Color = ColorDefault
	}
	*t = Task{
		ID:                   w.ID,
		OwnerID:              w.OwnerID,
		Title:                w.Title,
		Description:          w.Description,
		Date:                 date,
		Completed:            w.Completed,
		Color:                w.Color,
		Position:             w.Position,
		ParentTaskID:         w.ParentTaskID,
		IsRecurring:          w.IsRecurring,
		RecurringPattern:     w.RecurringPattern,
		Subtasks:             w.Subtasks,
		CompletedOccurrences: w.CompletedOccurrences,
		CreatedAt:            created,
		UpdatedAt:            updated,
	}
	return nil
}

type wireDraft struct {
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Date             string            `json:"date"`
	Color            Color             `json:"color,omitempty"`
	Position         int               `json:"position"`
	ParentTaskID     string            `json:"parentTaskId,omitempty"`
	IsRecurring      bool              `json:"isRecurring"`
	RecurringPattern *RecurringPattern `json:"recurringPattern,omitempty"`
	Subtasks         []Draft           `json:"subtasks,omitempty"`
}

func (d Draft) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDraft{
		Title:            d.Title,
		Description:      d.Description,
		Date:             FormatDate(d.Date),
		Color:            d.Color,
		Position:         d.Position,
		ParentTaskID:     d.ParentTaskID,
		IsRecurring:      d.IsRecurring,
		RecurringPattern: d.RecurringPattern,
		Subtasks:         d.Subtasks,
	})
}

func (d *Draft) UnmarshalJSON(data []byte) error {
	var w wireDraft
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	date, err := ParseDate(w.Date)
	if err != nil {
		return err
	}
	*d = Draft{
		Title:            w.Title,
		Description:      w.Description,
		Date:             date,
		Color:            w.Color,
		Position:         w.Position,
		ParentTaskID:     w.ParentTaskID,
		IsRecurring:      w.IsRecurring,
		RecurringPattern: w.RecurringPattern,
		Subtasks:         w.Subtasks,
	}
	return nil
}

type wirePatch struct {
	Title            *string           `json:"title,omitempty"`
	Description      *string           `json:"description,omitempty"`
	Date             *string           `json:"date,omitempty"`
	Completed        *bool             `json:"completed,omitempty"`
	Color            *Color            `json:"color,omitempty"`
	Position         *int              `json:"position,omitempty"`
	ParentTaskID     *string           `json:"parentTaskId,omitempty"`
	IsRecurring      *bool             `json:"isRecurring,omitempty"`
	RecurringPattern *RecurringPattern `json:"recurringPattern,omitempty"`
}

func (p Patch) MarshalJSON() ([]byte, error) {
	w := wirePatch{
		Title:            p.Title,
		Description:      p.Description,
		Completed:        p.Completed,
		Color:            p.Color,
		Position:         p.Position,
		ParentTaskID:     p.ParentTaskID,
		IsRecurring:      p.IsRecurring,
		RecurringPattern: p.RecurringPattern,
	}
	if p.Date != nil {
		s := FormatDate(*p.Date)
		w.Date = &s
	}
	return json.Marshal(w)
}

func (p *Patch) UnmarshalJSON(data []byte) error {
	var w wirePatch
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Patch{
		Title:            w.Title,
		Description:      w.Description,
		Completed:        w.Completed,
		Color:            w.Color,
		Position:         w.Position,
		ParentTaskID:     w.ParentTaskID,
		IsRecurring:      w.IsRecurring,
		RecurringPattern: w.RecurringPattern,
	}
	if w.Date != nil {
		date, err := ParseDate(*w.Date)
		if err != nil {
			return err
		}
		p.Date = &date
	}
	return nil
}
