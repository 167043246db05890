// Package client implements the task repository over the planner HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/CrowderSoup/planner/tasks"
)

// Repository talks to a planner server with a session token.
type Repository struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Repository)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Repository) { r.http = c }
}

func New(baseURL, token string, opts ...Option) *Repository {
	r := &Repository{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) List(ctx context.Context, ownerID string, start, end time.Time) ([]tasks.Task, error) {
	q := url.Values{}
	if ownerID != "" {
		q.Set("ownerId", ownerID)
	}
	if !start.IsZero() || !end.IsZero() {
		q.Set("startDate", tasks.FormatDate(start))
		q.Set("endDate", tasks.FormatDate(end))
	}
	var out []tasks.Task
	if err := r.do(ctx, "list", http.MethodGet, "/api/tasks", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) Create(ctx context.Context, draft tasks.Draft) (tasks.Task, error) {
	var created tasks.Task
	if err := r.do(ctx, "create", http.MethodPost, "/api/tasks", nil, draft, &created); err != nil {
		return tasks.Task{}, err
	}
	return created, nil
}

func (r *Repository) Update(ctx context.Context, id string, patch tasks.Patch) error {
	return r.do(ctx, "update", http.MethodPut, "/api/tasks", url.Values{"id": {id}}, patch, nil)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.do(ctx, "delete", http.MethodDelete, "/api/tasks", url.Values{"id": {id}}, nil, nil)
}

func (r *Repository) SetCompletion(ctx context.Context, id string, day time.Time, completed bool) error {
	q := url.Values{
		"id":        {id},
		"date":      {tasks.ISODay(day)},
		"completed": {strconv.FormatBool(completed)},
	}
	return r.do(ctx, "set completion", http.MethodPut, "/api/tasks/completions", q, nil, nil)
}

func (r *Repository) do(ctx context.Context, op, method, path string, q url.Values, body, out any) error {
	u := r.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return &tasks.Error{Kind: tasks.TransientFailure, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return responseError(op, resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &tasks.Error{Kind: tasks.TransientFailure, Op: op, Msg: "malformed response", Err: err}
	}
	return nil
}

func responseError(op string, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = resp.Status
	}
	return &tasks.Error{Kind: kindOf(resp.StatusCode), Op: op, Msg: msg}
}

func kindOf(status int) tasks.Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return tasks.Unauthorized
	case status == http.StatusNotFound:
		return tasks.NotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return tasks.ValidationFailed
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return tasks.TransientFailure
	}
	return tasks.KindUnknown
}

// IsUnauthorized reports whether err means the session token was rejected.
func IsUnauthorized(err error) bool {
	return errors.Is(err, tasks.ErrUnauthorized)
}

// Whoami returns the owner id behind the session token.
func (r *Repository) Whoami(ctx context.Context) (string, error) {
	var out struct {
		OwnerID string `json:"ownerId"`
	}
	if err := r.do(ctx, "whoami", http.MethodGet, "/api/auth/verify", nil, nil, &out); err != nil {
		return "", err
	}
	return out.OwnerID, nil
}
