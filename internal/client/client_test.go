package client

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harlequingg/taskd/internal/api"
	"github.com/harlequingg/taskd/internal/config"
	"github.com/harlequingg/taskd/internal/storage"
)

type testServer struct {
	*httptest.Server
	failing atomic.Bool
}

// newTestServer runs the task API against a throwaway SQLite database. While
// failing is set every request is answered with 503.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := storage.OpenDB(storage.DBConfig{
		Driver:             storage.DriverSQLite,
		DSN:                filepath.Join(t.TempDir(), "tasks.db") + "?_foreign_keys=on",
		MaxOpenConnections: 1,
		MaxIdleConnections: 1,
		MaxIdleTime:        time.Minute,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := storage.New(db, storage.DriverSQLite, storage.WithClock(steppingClock()))
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{Port: 3000, Env: "production"}
	routes := api.New(cfg, store, log.New(io.Discard, "", 0)).Routes()

	ts := &testServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ts.failing.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"error":"service unavailable"}`)
			return
		}
		routes.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func steppingClock() func() time.Time {
	var (
		mu sync.Mutex
		n  int
	)
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func ptr[T any](v T) *T { return &v }

func TestClientRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL + "/")
	ctx := context.Background()

	created, err := c.CreateTask(ctx, NewTask{
		Title:     "Write report",
		UserID:    "u1",
		UserEmail: "ana@example.com",
		DueDate:   "2025-03-10",
		Priority:  "high",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Priority != storage.PriorityHigh || created.Category != storage.DefaultCategory {
		t.Errorf("created = %+v", created)
	}
	if created.User == nil || created.User.Email != "ana@example.com" || created.User.Name != "ana" {
		t.Errorf("user = %+v", created.User)
	}

	got, err := c.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != created.ID || got.DueDate == nil {
		t.Errorf("get = %+v", got)
	}

	updated, err := c.UpdateTask(ctx, created.ID, Update{Completed: ptr(true), DueDate: ptr("")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Completed || updated.DueDate != nil || updated.Title != "Write report" {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := c.CreateTask(ctx, NewTask{Title: "Second", UserID: "u1"}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	tasks, err := c.ListTasks(ctx, ListOptions{UserID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Title != "Second" {
		t.Errorf("list = %+v", tasks)
	}
	pending, err := c.ListTasks(ctx, ListOptions{UserID: "u1", Status: storage.StatusPending})
	if err != nil || len(pending) != 1 {
		t.Errorf("pending = %+v, %v", pending, err)
	}
	page, err := c.ListTasks(ctx, ListOptions{UserID: "u1", Limit: 1, Offset: 1})
	if err != nil || len(page) != 1 || page[0].ID != created.ID {
		t.Errorf("page = %+v, %v", page, err)
	}

	stats, err := c.Stats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if *stats != (storage.TaskStats{Total: 2, Completed: 1, Active: 1, CompletionPercentage: 50}) {
		t.Errorf("stats = %+v", stats)
	}

	n, err := c.ClearCompleted(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("clear completed = %d, %v", n, err)
	}

	if err := c.DeleteTask(ctx, tasks[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	tasks, err = c.ListTasks(ctx, ListOptions{UserID: "u1"})
	if err != nil || len(tasks) != 0 {
		t.Errorf("after delete = %+v, %v", tasks, err)
	}
}

func TestClientAPIErrors(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL)
	ctx := context.Background()

	tests := []struct {
		name    string
		call    func() error
		status  int
		message string
	}{
		{
			name:    "missing task",
			call:    func() error { _, err := c.GetTask(ctx, "nope"); return err },
			status:  http.StatusNotFound,
			message: "task not found",
		},
		{
			name:    "missing owner",
			call:    func() error { _, err := c.CreateTask(ctx, NewTask{Title: "x"}); return err },
			status:  http.StatusUnauthorized,
			message: "a user is required to create a task",
		},
		{
			name:   "bad priority",
			call:   func() error { _, err := c.CreateTask(ctx, NewTask{Title: "x", UserID: "u1", UserEmail: "u1@example.com", Priority: "urgent"}); return err },
			status: http.StatusBadRequest,
		},
		{
			name:    "delete missing",
			call:    func() error { return c.DeleteTask(ctx, "nope") },
			status:  http.StatusNotFound,
			message: "task not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Status != tt.status {
				t.Errorf("status = %d, want %d", apiErr.Status, tt.status)
			}
			if tt.message != "" && apiErr.Message != tt.message {
				t.Errorf("message = %q, want %q", apiErr.Message, tt.message)
			}
		})
	}
}

func TestClientSendsToken(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		io.WriteString(w, `[]`)
	}))
	defer ts.Close()

	c := New(ts.URL, WithToken("abc"), WithHTTPClient(ts.Client()))
	if _, err := c.ListTasks(context.Background(), ListOptions{}); err != nil {
		t.Fatal(err)
	}
	if got != "Bearer abc" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestErrorMessageFallsBackToBody(t *testing.T) {
	if got := errorMessage([]byte("bad gateway\n")); got != "bad gateway" {
		t.Errorf("got %q", got)
	}
	if got := errorMessage([]byte(`{"error":"boom"}`)); got != "boom" {
		t.Errorf("got %q", got)
	}
}
