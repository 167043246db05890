package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/CrowderSoup/planner/store"
	"github.com/CrowderSoup/planner/tasks"
)

// Notifier tells an owner's other sessions that their tasks changed.
type Notifier interface {
	TasksChanged(ownerID string)
}

// TaskHandler serves the task endpoints for the authenticated owner.
type TaskHandler struct {
	repo     store.Repository
	notifier Notifier
}

func NewTaskHandler(repo store.Repository, notifier Notifier) *TaskHandler {
	return &TaskHandler{repo: repo, notifier: notifier}
}

// List returns the owner's tasks in [startDate, endDate) plus someday tasks
// and recurring templates. Without dates every task is returned.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tasks.RequireOwner(r.Context(), "list")
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	if id := q.Get("ownerId"); id != "" && id != ownerID {
		writeError(w, tasks.Errorf(tasks.Unauthorized, "list", "cannot list tasks of another owner"))
		return
	}

	start, end, err := parseWindow(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := h.repo.List(r.Context(), ownerID, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

func parseWindow(startParam, endParam string) (time.Time, time.Time, error) {
	if startParam == "" && endParam == "" {
		return time.Time{}, time.Time{}, nil
	}
	if startParam == "" || endParam == "" {
		return time.Time{}, time.Time{}, tasks.Errorf(tasks.ValidationFailed, "list",
			"startDate and endDate must be given together")
	}
	start, err := tasks.ParseDate(startParam)
	if err != nil {
		return time.Time{}, time.Time{}, tasks.Errorf(tasks.ValidationFailed, "list", "startDate: %v", err)
	}
	end, err := tasks.ParseDate(endParam)
	if err != nil {
		return time.Time{}, time.Time{}, tasks.Errorf(tasks.ValidationFailed, "list", "endDate: %v", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, tasks.Errorf(tasks.ValidationFailed, "list", "endDate is before startDate")
	}
	return start, end, nil
}

// Create stores the draft in the request body and returns the created task.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tasks.RequireOwner(r.Context(), "create")
	if err != nil {
		writeError(w, err)
		return
	}
	var draft tasks.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, tasks.Errorf(tasks.ValidationFailed, "create", "invalid request body: %v", err))
		return
	}

	created, err := h.repo.Create(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	h.notifier.TasksChanged(ownerID)
	writeJSON(w, http.StatusCreated, created)
}

// Update applies the partial task in the request body to ?id=.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tasks.RequireOwner(r.Context(), "update")
	if err != nil {
		writeError(w, err)
		return
	}
	id, ok := requireID(w, r, "update")
	if !ok {
		return
	}
	var patch tasks.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, tasks.Errorf(tasks.ValidationFailed, "update", "invalid request body: %v", err))
		return
	}

	if err := h.repo.Update(r.Context(), id, patch); err != nil {
		writeError(w, err)
		return
	}
	h.notifier.TasksChanged(ownerID)
	writeSuccess(w)
}

// Delete removes ?id= and its subtasks.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tasks.RequireOwner(r.Context(), "delete")
	if err != nil {
		writeError(w, err)
		return
	}
	id, ok := requireID(w, r, "delete")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.notifier.TasksChanged(ownerID)
	writeSuccess(w)
}

// SetCompletion records ?completed= for the occurrence of ?id= on ?date=.
func (h *TaskHandler) SetCompletion(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tasks.RequireOwner(r.Context(), "set completion")
	if err != nil {
		writeError(w, err)
		return
	}
	id, ok := requireID(w, r, "set completion")
	if !ok {
		return
	}
	q := r.URL.Query()
	day, err := tasks.ParseDate(q.Get("date"))
	if err != nil || tasks.IsSomeday(day) {
		writeError(w, tasks.Errorf(tasks.ValidationFailed, "set completion", "a valid date is required"))
		return
	}
	completed, err := strconv.ParseBool(q.Get("completed"))
	if err != nil {
		writeError(w, tasks.Errorf(tasks.ValidationFailed, "set completion", "completed must be true or false"))
		return
	}

	if err := h.repo.SetCompletion(r.Context(), id, day, completed); err != nil {
		writeError(w, err)
		return
	}
	h.notifier.TasksChanged(ownerID)
	writeSuccess(w)
}

func requireID(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, tasks.Errorf(tasks.ValidationFailed, op, "missing id"))
		return "", false
	}
	return id, true
}

type colorEntry struct {
	Name tasks.Color `json:"name"`
	tasks.Swatch
}

// Colors lists the task color palette for renderers.
func Colors(w http.ResponseWriter, r *http.Request) {
	out := make([]colorEntry, 0, len(tasks.Colors))
	for _, c := range tasks.Colors {
		out = append(out, colorEntry{Name: c, Swatch: c.Swatch()})
	}
	writeJSON(w, http.StatusOK, out)
}
