// Package view maps calendar navigation state onto task query windows.
package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/CrowderSoup/planner/tasks"
)

// Type is the calendar layout being shown.
type Type string

const (
	Week   Type = "week"
	Month  Type = "month"
	Custom Type = "custom"
)

// ParseType validates a view type name.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case Week, Month, Custom:
		return t, nil
	}
	return "", fmt.Errorf("unknown view type %q", s)
}

// Window is a half-open range of calendar days [Start, End). The zero
// Window is unbounded and means "every task".
type Window struct {
	Start time.Time
	End   time.Time
}

// Unbounded reports whether w has no date limits.
func (w Window) Unbounded() bool { return w.Start.IsZero() && w.End.IsZero() }

// Contains reports whether day lies inside w. Someday dates are never
// inside a bounded window.
func (w Window) Contains(day time.Time) bool {
	if w.Unbounded() {
		return true
	}
	if tasks.IsSomeday(day) {
		return false
	}
	d := tasks.Day(day)
	return !d.Before(w.Start) && d.Before(w.End)
}

func (w Window) String() string {
	if w.Unbounded() {
		return "[all]"
	}
	return fmt.Sprintf("[%s, %s)", tasks.ISODay(w.Start), tasks.ISODay(w.End))
}

// ComputeWindow returns the query window for a view. Weeks run Monday to
// Monday; months from the 1st to the 1st of the next month. Custom views are
// unbounded.
func ComputeWindow(current time.Time, vt Type) Window {
	d := tasks.Day(current)
	switch vt {
	case Week:
		start := StartOfWeek(d)
		return Window{Start: start, End: start.AddDate(0, 0, 7)}
	case Month:
		start := tasks.Date(d.Year(), d.Month(), 1)
		return Window{Start: start, End: start.AddDate(0, 1, 0)}
	}
	return Window{}
}

// StartOfWeek returns the Monday of the ISO week containing day.
func StartOfWeek(day time.Time) time.Time {
	d := tasks.Day(day)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// Next moves current forward by one view period.
func Next(current time.Time, vt Type) time.Time { return shift(current, vt, 1) }

// Previous moves current back by one view period.
func Previous(current time.Time, vt Type) time.Time { return shift(current, vt, -1) }

func shift(current time.Time, vt Type, dir int) time.Time {
	d := tasks.Day(current)
	switch vt {
	case Week:
		return d.AddDate(0, 0, 7*dir)
	case Month:
		// Land on the 1st so Jan 31 + 1 month is February, not March.
		first := tasks.Date(d.Year(), d.Month(), 1)
		return first.AddDate(0, dir, 0)
	}
	return d
}

// MonthGrid is the Monday-first padded range of full weeks covering the
// month of current.
func MonthGrid(current time.Time) Window {
	m := ComputeWindow(current, Month)
	start := StartOfWeek(m.Start)
	end := StartOfWeek(m.End.AddDate(0, 0, -1)).AddDate(0, 0, 7)
	return Window{Start: start, End: end}
}

// Days enumerates the days of a bounded window.
func Days(w Window) []time.Time {
	if w.Unbounded() {
		return nil
	}
	var out []time.Time
	for d := tasks.Day(w.Start); d.Before(w.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// fold builds a fresh Caser per call; Casers are not safe for concurrent use.
func fold(s string) string { return cases.Fold().String(s) }

// Matches reports whether query occurs in the task's title or description,
// ignoring case. An empty query matches everything.
func Matches(t tasks.Task, query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return true
	}
	q = fold(q)
	return strings.Contains(fold(t.Title), q) ||
		strings.Contains(fold(t.Description), q)
}

// Filter returns the tasks matching query.
func Filter(list []tasks.Task, query string) []tasks.Task {
	var out []tasks.Task
	for _, t := range list {
		if Matches(t, query) {
			out = append(out, t)
		}
	}
	return out
}

// Partition splits tasks into dated and someday tasks.
func Partition(list []tasks.Task) (dated, someday []tasks.Task) {
	for _, t := range list {
		if t.IsSomeday() {
			someday = append(someday, t)
		} else {
			dated = append(dated, t)
		}
	}
	return dated, someday
}

// SortTasks orders tasks by date, then position, then title. Someday tasks
// sort last.
func SortTasks(list []tasks.Task) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.IsSomeday() != b.IsSomeday() {
			return b.IsSomeday()
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.Title < b.Title
	})
}

// DayGroup is the set of tasks falling on one day.
type DayGroup struct {
	Day   time.Time
	Tasks []tasks.Task
}

// GroupByDay buckets dated tasks by day, newest day first. Someday tasks
// are left out.
func GroupByDay(list []tasks.Task) []DayGroup {
	byDay := make(map[time.Time][]tasks.Task)
	for _, t := range list {
		if t.IsSomeday() {
			continue
		}
		d := tasks.Day(t.Date)
		byDay[d] = append(byDay[d], t)
	}
	groups := make([]DayGroup, 0, len(byDay))
	for d, ts := range byDay {
		SortTasks(ts)
		groups = append(groups, DayGroup{Day: d, Tasks: ts})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Day.After(groups[j].Day) })
	return groups
}

// OnDay returns the tasks dated on day.
func OnDay(list []tasks.Task, day time.Time) []tasks.Task {
	d := tasks.Day(day)
	var out []tasks.Task
	for _, t := range list {
		if !t.IsSomeday() && tasks.Day(t.Date).Equal(d) {
			out = append(out, t)
		}
	}
	return out
}
