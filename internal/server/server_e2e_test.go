package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/inaciog/reminders-app/internal/auth"
	"github.com/inaciog/reminders-app/internal/backup"
	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
	"github.com/inaciog/reminders-app/internal/storage"
)

const testSecret = "s3cret"

type e2e struct {
	repo  *repository.Repository
	store *storage.Store
	ts    *httptest.Server
	now   time.Time
}

func newE2EServer(t *testing.T, gate *auth.Gate) *e2e {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }
	logger := log.New(io.Discard)

	repo := repository.New(repository.WithClock(clock))
	store := storage.NewStore(filepath.Join(dir, "reminders.json"), filepath.Join(dir, "backups"), repo, logger, storage.WithStoreClock(clock))
	if err := store.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	repo.SetOnChange(func(reason string) {
		if reason == "replace" {
			return
		}
		if err := store.Save(); err != nil {
			t.Errorf("save after %s: %v", reason, err)
		}
	})
	backups := backup.New(backup.Config{
		DataFile:  store.Path(),
		Dir:       store.BackupDir(),
		Retention: 180 * 24 * time.Hour,
	}, logger, backup.WithClock(clock))

	srv := New(Deps{
		Repo:            repo,
		Store:           store,
		Backups:         backups,
		Gate:            gate,
		AssistantSecret: testSecret,
		Logger:          logger,
		Now:             clock,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &e2e{repo: repo, store: store, ts: ts, now: now}
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	return sendJSON(t, client, http.MethodPost, url, body)
}

func sendJSON(t *testing.T, client *http.Client, method, url string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func getJSON(t *testing.T, client *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return out
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func TestHealthAndAuthDebug(t *testing.T) {
	e := newE2EServer(t, nil)
	client := e.ts.Client()

	resp := getJSON(t, client, e.ts.URL+"/health")
	expectStatus(t, resp, http.StatusOK)
	health := decodeJSON[map[string]any](t, resp)
	if health["status"] != "ok" || health["folders"] != float64(5) || health["reminders"] != float64(0) {
		t.Fatalf("unexpected health: %v", health)
	}
	if health["lastSaved"] != nil {
		t.Fatalf("expected null lastSaved before first save, got %v", health["lastSaved"])
	}

	req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/auth-debug", nil)
	req.Header.Set("Authorization", "Bearer abc")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("auth-debug: %v", err)
	}
	dbg := decodeJSON[map[string]any](t, resp)
	if dbg["authEnabled"] != false || dbg["tokenFound"] != true || dbg["hasBearer"] != true {
		t.Fatalf("unexpected auth-debug: %v", dbg)
	}
}

func TestReminderLifecycleE2E(t *testing.T) {
	e := newE2EServer(t, nil)
	client := e.ts.Client()

	due := time.Date(2026, 3, 2, 18, 0, 0, 0, time.Local).UnixMilli()
	resp := postJSON(t, client, e.ts.URL+"/api/reminders", map[string]any{
		"title":     "Call mom #family",
		"dueDate":   due,
		"priority":  "high",
		"recurring": "weekly",
		"subtasks":  []any{"dial", map[string]string{"title": "talk"}},
	})
	expectStatus(t, resp, http.StatusCreated)
	created := decodeJSON[model.Reminder](t, resp)
	if created.FolderID != model.InboxID || created.Priority != model.PriorityHigh || len(created.Subtasks) != 2 {
		t.Fatalf("unexpected reminder: %+v", created)
	}
	if created.DueDate == nil || created.DueDate.UnixMilli() != due {
		t.Fatalf("expected due %d, got %v", due, created.DueDate)
	}

	today := decodeJSON[[]map[string]any](t, getJSON(t, client, e.ts.URL+"/api/reminders/today"))
	if len(today) != 1 || today[0]["id"] != created.ID {
		t.Fatalf("expected reminder in today view, got %v", today)
	}

	resp = sendJSON(t, client, http.MethodPatch, e.ts.URL+"/api/reminders/"+created.ID, map[string]any{
		"notes":     "before dinner",
		"dueDate":   nil,
		"recurring": nil,
	})
	expectStatus(t, resp, http.StatusOK)
	updated := decodeJSON[model.Reminder](t, resp)
	if updated.DueDate != nil || updated.Recurring != model.RecurrenceNone {
		t.Fatalf("expected due date and recurrence cleared, got %+v", updated)
	}
	if updated.Title != created.Title || updated.Priority != model.PriorityHigh {
		t.Fatalf("omitted fields changed: %+v", updated)
	}

	for _, st := range updated.Subtasks {
		resp = sendJSON(t, client, http.MethodPatch, e.ts.URL+"/api/reminders/"+created.ID+"/subtasks/"+st.ID, map[string]any{"completed": true})
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
	got := decodeJSON[model.Reminder](t, getJSON(t, client, e.ts.URL+"/api/reminders/"+created.ID))
	if !got.Completed || got.CompletedAt == nil {
		t.Fatalf("expected parent completed after all subtasks, got %+v", got)
	}

	resp = sendJSON(t, client, http.MethodDelete, e.ts.URL+"/api/reminders/"+created.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	resp = getJSON(t, client, e.ts.URL+"/api/reminders/"+created.ID)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	if e.store.LastSaved().IsZero() {
		t.Fatalf("expected mutations to persist")
	}
}

func TestValidationErrors(t *testing.T) {
	e := newE2EServer(t, nil)
	client := e.ts.Client()

	cases := []struct {
		name string
		path string
		body any
	}{
		{"missing title", "/api/reminders", map[string]any{"notes": "x"}},
		{"bad priority", "/api/reminders", map[string]any{"title": "x", "priority": "urgent"}},
		{"bad recurrence", "/api/reminders", map[string]any{"title": "x", "recurring": "yearly"}},
		{"missing folder name", "/api/folders", map[string]any{"color": "#fff"}},
		{"empty bulk", "/api/bulk", map[string]any{"action": "complete", "ids": []string{}}},
		{"unknown bulk action", "/api/bulk", map[string]any{"action": "archive", "ids": []string{"x"}}},
		{"restore without file", "/api/restore", map[string]any{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, client, e.ts.URL+tc.path, tc.body)
			expectStatus(t, resp, http.StatusBadRequest)
			body := decodeJSON[map[string]string](t, resp)
			if body["error"] == "" {
				t.Fatalf("expected error message")
			}
		})
	}

	resp, err := client.Post(e.ts.URL+"/api/reminders", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestFoldersE2E(t *testing.T) {
	e := newE2EServer(t, nil)
	client := e.ts.Client()

	resp := postJSON(t, client, e.ts.URL+"/api/folders", map[string]any{"name": "Work"})
	expectStatus(t, resp, http.StatusCreated)
	folder := decodeJSON[model.Folder](t, resp)

	for _, title := range []string{"a", "b"} {
		resp = postJSON(t, client, e.ts.URL+"/api/reminders", map[string]any{"title": title, "folderId": folder.ID})
		expectStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}

	resp = sendJSON(t, client, http.MethodPatch, e.ts.URL+"/api/folders/"+folder.ID, map[string]any{"name": "Office"})
	expectStatus(t, resp, http.StatusOK)
	renamed := decodeJSON[model.Folder](t, resp)
	if renamed.Name != "Office" || renamed.Color != folder.Color {
		t.Fatalf("unexpected rename result: %+v", renamed)
	}

	resp = sendJSON(t, client, http.MethodDelete, e.ts.URL+"/api/folders/"+model.InboxID, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = sendJSON(t, client, http.MethodDelete, e.ts.URL+"/api/folders/"+folder.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	deleted := decodeJSON[map[string]any](t, resp)
	if deleted["moved"] != float64(2) {
		t.Fatalf("expected 2 moved reminders, got %v", deleted)
	}

	inbox := decodeJSON[[]model.Reminder](t, getJSON(t, client, e.ts.URL+"/api/reminders?folder=inbox"))
	if len(inbox) != 2 {
		t.Fatalf("expected reminders moved to inbox, got %d", len(inbox))
	}
}

func TestListFiltersAndSmartFolders(t *testing.T) {
	e := newE2EServer(t, nil)
	client := e.ts.Client()

	due := time.Date(2026, 3, 5, 9, 0, 0, 0, time.Local).UnixMilli()
	for _, body := range []map[string]any{
		{"title": "milk #grocery"},
		{"title": "eggs #grocery", "dueDate": due},
		{"title": "report #work"},
	} {
		resp := postJSON(t, client, e.ts.URL+"/api/reminders", body)
		expectStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}
	report := e.repo.ListReminders(repository.Filter{Search: "report"})[0]
	done := true
	if _, err := e.repo.UpdateReminder(report.ID, repository.ReminderPatch{Completed: &done}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	count := func(query string) int {
		t.Helper()
		resp := getJSON(t, client, e.ts.URL+"/api/reminders"+query)
		expectStatus(t, resp, http.StatusOK)
		return len(decodeJSON[[]model.Reminder](t, resp))
	}
	checks := map[string]int{
		"":                  3,
		"?tag=GROCERY":      2,
		"?search=EGG":       1,
		"?completed=true":   1,
		"?folder=all":       2,
		"?folder=completed": 1,
		"?folder=scheduled": 1,
	}
	for query, want := range checks {
		if got := count(query); got != want {
			t.Fatalf("%q: expected %d, got %d", query, want, got)
		}
	}

	resp := getJSON(t, client, e.ts.URL+"/api/reminders?completed=maybe")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	tags := decodeJSON[[]repository.TagCount](t, getJSON(t, client, e.ts.URL+"/api/tags"))
	if len(tags) != 2 || tags[0].Tag != "#grocery" || tags[0].Count != 2 {
		t.Fatalf("unexpected tags: %+v", tags)
	}

	stats := decodeJSON[repository.Stats](t, getJSON(t, client, e.ts.URL+"/api/stats"))
	if stats.Total != 3 || stats.Completed != 1 || stats.Pending != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestBulkE2E(t *testing.T) {
	e := newE2EServer(t, nil)
	client := e.ts.Client()

	var ids []string
	for _, title := range []string{"one", "two"} {
		resp := postJSON(t, client, e.ts.URL+"/api/reminders", map[string]any{"title": title})
		ids = append(ids, decodeJSON[model.Reminder](t, resp).ID)
	}

	resp := postJSON(t, client, e.ts.URL+"/api/bulk", map[string]any{"action": "complete", "ids": append(ids, "missing")})
	expectStatus(t, resp, http.StatusOK)
	out := decodeJSON[map[string]any](t, resp)
	if out["updated"] != float64(2) || out["success"] != true {
		t.Fatalf("unexpected bulk result: %v", out)
	}
	stats := e.repo.Stats()
	if stats.Completed != 2 {
		t.Fatalf("expected 2 completed, got %d", stats.Completed)
	}
}

func TestBackupAndRestoreE2E(t *testing.T) {
	e := newE2EServer(t, nil)
	client := e.ts.Client()

	resp := postJSON(t, client, e.ts.URL+"/api/reminders", map[string]any{"title": "keep me"})
	kept := decodeJSON[model.Reminder](t, resp)

	resp = postJSON(t, client, e.ts.URL+"/api/backup", nil)
	expectStatus(t, resp, http.StatusOK)
	result := decodeJSON[map[string]any](t, resp)
	file, _ := result["file"].(string)
	if file == "" || result["remoteStatus"] != backup.RemoteSkipped {
		t.Fatalf("unexpected backup result: %v", result)
	}

	list := decodeJSON[[]backup.File](t, getJSON(t, client, e.ts.URL+"/api/backups"))
	if len(list) != 1 || list[0].Name != file {
		t.Fatalf("expected backup %s listed, got %+v", file, list)
	}

	resp = sendJSON(t, client, http.MethodDelete, e.ts.URL+"/api/reminders/"+kept.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = postJSON(t, client, e.ts.URL+"/api/restore", map[string]string{"backupFile": "../reminders.json"})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = postJSON(t, client, e.ts.URL+"/api/restore", map[string]string{"backupFile": file})
	expectStatus(t, resp, http.StatusOK)
	restored := decodeJSON[map[string]any](t, resp)
	if restored["reminders"] != float64(1) || restored["folders"] != float64(5) {
		t.Fatalf("unexpected restore result: %v", restored)
	}
	if _, err := e.repo.GetReminder(kept.ID); err != nil {
		t.Fatalf("expected restored reminder: %v", err)
	}
}

func TestExternalRequiresSecret(t *testing.T) {
	e := newE2EServer(t, nil)
	client := e.ts.Client()

	resp := postJSON(t, client, e.ts.URL+"/api/external/reminder", map[string]any{"title": "x", "secret": "wrong"})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = postJSON(t, client, e.ts.URL+"/api/external/reminder", map[string]any{"title": "from assistant", "secret": testSecret})
	expectStatus(t, resp, http.StatusCreated)
	rem := decodeJSON[model.Reminder](t, resp)
	if rem.Source != model.SourceAssistant {
		t.Fatalf("expected assistant source, got %q", rem.Source)
	}

	resp = getJSON(t, client, e.ts.URL+"/api/external/reminders")
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	items := decodeJSON[[]model.Reminder](t, getJSON(t, client, e.ts.URL+"/api/external/reminders?secret="+testSecret))
	if len(items) != 1 {
		t.Fatalf("expected 1 reminder, got %d", len(items))
	}

	req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/api/external/stats", nil)
	req.Header.Set("X-Assistant-Secret", testSecret)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	expectStatus(t, resp, http.StatusOK)
	stats := decodeJSON[repository.Stats](t, resp)
	if stats.Total != 1 {
		t.Fatalf("expected total 1, got %d", stats.Total)
	}

	resp = postJSON(t, client, e.ts.URL+"/api/external/bulk", map[string]any{"secret": testSecret, "action": "delete", "ids": []string{rem.ID}})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	if _, reminders := e.repo.Counts(); reminders != 0 {
		t.Fatalf("expected reminder deleted, %d left", reminders)
	}
}

func TestAuthGateE2E(t *testing.T) {
	verifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": true, "user": map[string]string{"id": "u1"}})
	}))
	t.Cleanup(verifier.Close)

	gate := auth.NewGate(auth.Config{
		Enabled:   true,
		VerifyURL: verifier.URL,
		LoginURL:  "https://login.example.com/",
	}, log.New(io.Discard))
	e := newE2EServer(t, gate)
	client := e.ts.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp := getJSON(t, client, e.ts.URL+"/api/folders")
	expectStatus(t, resp, http.StatusUnauthorized)
	body := decodeJSON[map[string]string](t, resp)
	if !strings.HasPrefix(body["loginUrl"], "https://login.example.com/?redirect=") {
		t.Fatalf("unexpected login url: %q", body["loginUrl"])
	}

	resp = getJSON(t, client, e.ts.URL+"/")
	expectStatus(t, resp, http.StatusFound)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, e.ts.URL+"/api/folders", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: "good"})
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("get folders: %v", err)
	}
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = getJSON(t, client, e.ts.URL+"/health")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestIndexServed(t *testing.T) {
	e := newE2EServer(t, nil)
	resp := getJSON(t, e.ts.Client(), e.ts.URL+"/")
	expectStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
}
