// Package recurrence expands recurring task templates into dated occurrences.
package recurrence

import (
	"time"

	"github.com/CrowderSoup/planner/tasks"
)

// Step returns the n-th occurrence date counted from anchor. Monthly steps
// are computed from the anchor each time, so a 31st anchor clamps to the end
// of short months without drifting in later months.
func Step(anchor time.Time, p tasks.RecurringPattern, n int) time.Time {
	anchor = tasks.Day(anchor)
	k := n * p.Interval
	switch p.Type {
	case tasks.Daily:
		return anchor.AddDate(0, 0, k)
	case tasks.Weekly:
		return anchor.AddDate(0, 0, 7*k)
	case tasks.Monthly:
		return addMonthsClamped(anchor, k)
	}
	return anchor
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysInMonth(first.Month(), first.Year()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(month time.Month, year int) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// OccurrenceID is the id of the occurrence of baseID on day.
func OccurrenceID(baseID string, day time.Time) string {
	return baseID + "-" + tasks.ISODay(day)
}

// SplitOccurrenceID reverses OccurrenceID.
func SplitOccurrenceID(id string) (string, time.Time, bool) {
	const suffix = len("-2006-01-02")
	if len(id) <= suffix || id[len(id)-suffix] != '-' {
		return "", time.Time{}, false
	}
	day, err := time.Parse(tasks.DayLayout, id[len(id)-suffix+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return id[:len(id)-suffix], day, true
}

// GenerateOccurrences returns the occurrences of base inside [start, end),
// ordered by date. Occurrences start out incomplete regardless of the
// template.
func GenerateOccurrences(base tasks.Task, p tasks.RecurringPattern, start, end time.Time) []tasks.Task {
	if p.Interval < 1 || base.IsSomeday() {
		return nil
	}
	start, end = tasks.Day(start), tasks.Day(end)
	if !start.Before(end) {
		return nil
	}
	anchor := tasks.Day(base.Date)
	var until time.Time
	if p.EndDate != nil {
		until = tasks.Day(*p.EndDate)
		if until.Before(start) {
			return nil
		}
	}

	var out []tasks.Task
	for n := firstIndex(anchor, p, start); ; n++ {
		cursor := Step(anchor, p, n)
		if !cursor.Before(end) {
			break
		}
		if !until.IsZero() && cursor.After(until) {
			break
		}
		if cursor.Before(start) {
			continue
		}
		occ := base.Clone()
		occ.ID = OccurrenceID(base.ID, cursor)
		occ.Date = cursor
		occ.Completed = false
		occ.CompletedOccurrences = nil
		out = append(out, occ)
	}
	return out
}

// firstIndex skips the steps that certainly fall before start.
func firstIndex(anchor time.Time, p tasks.RecurringPattern, start time.Time) int {
	if !anchor.Before(start) {
		return 0
	}
	var n int
	switch p.Type {
	case tasks.Daily:
		n = int(start.Sub(anchor).Hours()/24) / p.Interval
	case tasks.Weekly:
		n = int(start.Sub(anchor).Hours()/24) / (7 * p.Interval)
	case tasks.Monthly:
		months := (start.Year()-anchor.Year())*12 + int(start.Month()-anchor.Month())
		n = months / p.Interval
	}
	for n > 0 && !Step(anchor, p, n-1).Before(start) {
		n--
	}
	return n
}

// IsDue reports whether task falls on day. Plain tasks are due on their own
// date. Recurring tasks are due from their anchor until the pattern's end:
// daily always, weekly on the anchor weekday, monthly on the anchor
// day-of-month clamped to the month's length.
func IsDue(task tasks.Task, day time.Time) bool {
	day = tasks.Day(day)
	if !task.IsRecurring || task.RecurringPattern == nil {
		return !task.IsSomeday() && tasks.Day(task.Date).Equal(day)
	}
	if task.IsSomeday() {
		return false
	}
	p := task.RecurringPattern
	anchor := tasks.Day(task.Date)
	if day.Before(anchor) {
		return false
	}
	if p.EndDate != nil && day.After(tasks.Day(*p.EndDate)) {
		return false
	}
	switch p.Type {
	case tasks.Daily:
		return true
	case tasks.Weekly:
		return day.Weekday() == anchor.Weekday()
	case tasks.Monthly:
		want := anchor.Day()
		if last := daysInMonth(day.Month(), day.Year()); want > last {
			want = last
		}
		return day.Day() == want
	}
	return false
}

// OccursOn reports whether the series generates an occurrence on day. Unlike
// IsDue it honours the pattern's interval.
func OccursOn(task tasks.Task, day time.Time) bool {
	if !task.IsRecurring || task.RecurringPattern == nil || task.IsSomeday() {
		return false
	}
	day = tasks.Day(day)
	return len(GenerateOccurrences(task, *task.RecurringPattern, day, day.AddDate(0, 0, 1))) == 1
}

// NextOccurrence returns the occurrence following task.Date. It reports
// false for non-recurring tasks and when the next date is past the end.
func NextOccurrence(task tasks.Task) (time.Time, bool) {
	p := task.RecurringPattern
	if !task.IsRecurring || p == nil || p.Interval < 1 || task.IsSomeday() {
		return time.Time{}, false
	}
	next := Step(task.Date, *p, 1)
	if p.EndDate != nil && next.After(tasks.Day(*p.EndDate)) {
		return time.Time{}, false
	}
	return next, true
}

// Expand replaces recurring templates in list with their occurrences inside
// [start, end). Occurrence completion comes from the template's recorded
// completions. Plain tasks outside the window are dropped, someday tasks are
// always kept. A zero window returns a copy of list unchanged.
func Expand(list []tasks.Task, start, end time.Time) []tasks.Task {
	out := make([]tasks.Task, 0, len(list))
	if start.IsZero() && end.IsZero() {
		for _, t := range list {
			out = append(out, t.Clone())
		}
		return out
	}
	start, end = tasks.Day(start), tasks.Day(end)
	for _, t := range list {
		switch {
		case t.IsRecurring && t.RecurringPattern != nil && !t.IsSomeday():
			for _, occ := range GenerateOccurrences(t, *t.RecurringPattern, start, end) {
				occ.Completed = t.OccurrenceCompleted(occ.Date)
				out = append(out, occ)
			}
		case t.IsSomeday():
			out = append(out, t.Clone())
		default:
			d := tasks.Day(t.Date)
			if !d.Before(start) && d.Before(end) {
				out = append(out, t.Clone())
			}
		}
	}
	return out
}
