// Package client talks to a running reminders server over its JSON API.
//
// With a shared secret the client uses the assistant surface under
// /api/external; otherwise it uses the regular API, optionally with a
// bearer token.
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

	"github.com/inaciog/reminders-app/internal/backup"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
)

var (
	ErrUnauthorized = errors.New("client: unauthorized")
	ErrNotFound     = errors.New("client: not found")
	ErrBadRequest   = errors.New("client: bad request")
	ErrAssistant    = errors.New("client: not available with an assistant secret")
)

// APIError is a non-2xx response.
type APIError struct {
	Status   int
	Message  string
	LoginURL string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest
	}
	return false
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken sends the token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithSecret switches the client to the assistant endpoints.
func WithSecret(secret string) Option {
	return func(c *Client) { c.secret = secret }
}

type Client struct {
	base   string
	http   *http.Client
	token  string
	secret string
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.base }

// Assistant reports whether requests go through the shared-secret surface.
func (c *Client) Assistant() bool { return c.secret != "" }

// Reminder is a reminder as listed by the server, with the computed
// overdue flag.
type Reminder struct {
	model.Reminder
	Overdue bool `json:"overdue,omitempty"`
}

type ListOptions struct {
	Folder    string
	Completed *bool
	Tag       string
	Search    string
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Folder != "" {
		q.Set("folder", o.Folder)
	}
	if o.Completed != nil {
		q.Set("completed", strconv.FormatBool(*o.Completed))
	}
	if o.Tag != "" {
		q.Set("tag", o.Tag)
	}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	return q
}

type NewReminder struct {
	Title     string           `json:"title"`
	Notes     string           `json:"notes,omitempty"`
	FolderID  string           `json:"folderId,omitempty"`
	DueDate   *model.Timestamp `json:"dueDate,omitempty"`
	Priority  model.Priority   `json:"priority,omitempty"`
	Recurring model.Recurrence `json:"recurring,omitempty"`
	Subtasks  []string         `json:"subtasks,omitempty"`
}

type BackupResult struct {
	Success      bool   `json:"success"`
	File         string `json:"file"`
	Bytes        int64  `json:"bytes"`
	Pruned       int    `json:"pruned"`
	RemoteStatus string `json:"remoteStatus"`
	RemoteError  string `json:"remoteError,omitempty"`
}

type RestoreResult struct {
	Success   bool `json:"success"`
	Folders   int  `json:"folders"`
	Reminders int  `json:"reminders"`
}

type Health struct {
	Status    string `json:"status"`
	Reminders int    `json:"reminders"`
	Folders   int    `json:"folders"`
	LastSaved *int64 `json:"lastSaved"`
	Uptime    int64  `json:"uptime"`
}

// ─── Reminders ──────────────────────────────────────────────────────────────

func (c *Client) ListReminders(ctx context.Context, opts ListOptions) ([]Reminder, error) {
	path := "/api/reminders"
	if c.Assistant() {
		path = "/api/external/reminders"
	}
	var out []Reminder
	err := c.do(ctx, http.MethodGet, path, opts.query(), nil, &out)
	return out, err
}

// Today lists reminders due today plus overdue ones. The assistant surface
// has no today endpoint, so the today smart folder is used there.
func (c *Client) Today(ctx context.Context) ([]Reminder, error) {
	if c.Assistant() {
		return c.ListReminders(ctx, ListOptions{Folder: model.TodayID})
	}
	var out []Reminder
	err := c.do(ctx, http.MethodGet, "/api/reminders/today", nil, nil, &out)
	return out, err
}

func (c *Client) GetReminder(ctx context.Context, id string) (model.Reminder, error) {
	if c.Assistant() {
		return model.Reminder{}, ErrAssistant
	}
	var out model.Reminder
	err := c.do(ctx, http.MethodGet, "/api/reminders/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateReminder(ctx context.Context, in NewReminder) (model.Reminder, error) {
	var out model.Reminder
	if c.Assistant() {
		body := struct {
			NewReminder
			Secret string `json:"secret"`
		}{in, c.secret}
		err := c.do(ctx, http.MethodPost, "/api/external/reminder", nil, body, &out)
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/api/reminders", nil, in, &out)
	return out, err
}

// UpdateReminder sends a partial update. A nil value clears the field.
func (c *Client) UpdateReminder(ctx context.Context, id string, patch map[string]any) (model.Reminder, error) {
	if c.Assistant() {
		return model.Reminder{}, ErrAssistant
	}
	var out model.Reminder
	err := c.do(ctx, http.MethodPatch, "/api/reminders/"+url.PathEscape(id), nil, patch, &out)
	return out, err
}

func (c *Client) DeleteReminder(ctx context.Context, id string) error {
	if c.Assistant() {
		_, err := c.Bulk(ctx, repository.BulkDelete, []string{id}, "")
		return err
	}
	return c.do(ctx, http.MethodDelete, "/api/reminders/"+url.PathEscape(id), nil, nil, nil)
}

// SetCompleted marks reminders complete or incomplete and returns how many
// were changed.
func (c *Client) SetCompleted(ctx context.Context, done bool, ids ...string) (int, error) {
	action := repository.BulkComplete
	if !done {
		action = repository.BulkUncomplete
	}
	return c.Bulk(ctx, action, ids, "")
}

func (c *Client) Bulk(ctx context.Context, action repository.BulkAction, ids []string, folderID string) (int, error) {
	body := map[string]any{"action": action, "ids": ids}
	if folderID != "" {
		body["folderId"] = folderID
	}
	path := "/api/bulk"
	if c.Assistant() {
		path = "/api/external/bulk"
		body["secret"] = c.secret
	}
	var out struct {
		Updated int `json:"updated"`
	}
	err := c.do(ctx, http.MethodPost, path, nil, body, &out)
	return out.Updated, err
}

func (c *Client) AddSubtask(ctx context.Context, id, title string) (model.Reminder, error) {
	if c.Assistant() {
		return model.Reminder{}, ErrAssistant
	}
	var out model.Reminder
	err := c.do(ctx, http.MethodPost, "/api/reminders/"+url.PathEscape(id)+"/subtasks", nil, map[string]string{"title": title}, &out)
	return out, err
}

func (c *Client) ToggleSubtask(ctx context.Context, id, subtaskID string, done bool) (model.Reminder, error) {
	if c.Assistant() {
		return model.Reminder{}, ErrAssistant
	}
	var out model.Reminder
	path := "/api/reminders/" + url.PathEscape(id) + "/subtasks/" + url.PathEscape(subtaskID)
	err := c.do(ctx, http.MethodPatch, path, nil, map[string]bool{"completed": done}, &out)
	return out, err
}

// ─── Folders, tags, stats ───────────────────────────────────────────────────

func (c *Client) Folders(ctx context.Context) ([]model.Folder, error) {
	if c.Assistant() {
		return nil, ErrAssistant
	}
	var out []model.Folder
	err := c.do(ctx, http.MethodGet, "/api/folders", nil, nil, &out)
	return out, err
}

func (c *Client) CreateFolder(ctx context.Context, name, color, icon string) (model.Folder, error) {
	if c.Assistant() {
		return model.Folder{}, ErrAssistant
	}
	var out model.Folder
	err := c.do(ctx, http.MethodPost, "/api/folders", nil, map[string]string{"name": name, "color": color, "icon": icon}, &out)
	return out, err
}

func (c *Client) DeleteFolder(ctx context.Context, id string) (int, error) {
	if c.Assistant() {
		return 0, ErrAssistant
	}
	var out struct {
		Moved int `json:"moved"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/folders/"+url.PathEscape(id), nil, nil, &out)
	return out.Moved, err
}

func (c *Client) Tags(ctx context.Context) ([]repository.TagCount, error) {
	if c.Assistant() {
		return nil, ErrAssistant
	}
	var out []repository.TagCount
	err := c.do(ctx, http.MethodGet, "/api/tags", nil, nil, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context) (repository.Stats, error) {
	path := "/api/stats"
	if c.Assistant() {
		path = "/api/external/stats"
	}
	var out repository.Stats
	err := c.do(ctx, http.MethodGet, path, nil, nil, &out)
	return out, err
}

// ─── Backups and health ─────────────────────────────────────────────────────

func (c *Client) Backup(ctx context.Context) (BackupResult, error) {
	var out BackupResult
	err := c.do(ctx, http.MethodPost, "/api/backup", nil, nil, &out)
	return out, err
}

func (c *Client) Backups(ctx context.Context) ([]backup.File, error) {
	var out []backup.File
	err := c.do(ctx, http.MethodGet, "/api/backups", nil, nil, &out)
	return out, err
}

func (c *Client) Restore(ctx context.Context, file string) (RestoreResult, error) {
	var out RestoreResult
	err := c.do(ctx, http.MethodPost, "/api/restore", nil, map[string]string{"backupFile": file}, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out)
	return out, err
}

// ─── Transport ──────────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.Assistant() && strings.HasPrefix(path, "/api/external/") && method == http.MethodGet {
		if query == nil {
			query = url.Values{}
		}
		query.Set("secret", c.secret)
	}
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error    string `json:"error"`
			LoginURL string `json:"loginUrl"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err == nil {
			apiErr.Message = payload.Error
			apiErr.LoginURL = payload.LoginURL
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
