package client

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/harlequingg/taskd/internal/storage"
)

type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

var (
	ErrSignInToCreate = errors.New("you must sign in to create tasks")
	ErrSignInToClear  = errors.New("you must sign in to delete tasks")
)

type Identity struct {
	ID    string
	Email string
}

// View keeps the task list of the signed-in user in step with the server.
// Local state only changes from server responses; a failed call records its
// error and leaves the tasks as they were.
type View struct {
	client *Client

	mu       sync.Mutex
	identity *Identity
	tasks    []storage.Task
	loading  bool
	err      string
	filter   Filter
}

func NewView(c *Client) *View {
	return &View{client: c, filter: FilterAll}
}

// A nil identity clears the list.
func (v *View) SetIdentity(ctx context.Context, id *Identity) error {
	v.mu.Lock()
	v.identity = id
	v.mu.Unlock()
	return v.Refresh(ctx)
}

func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	id := v.identity
	if id == nil {
		v.tasks = nil
		v.loading = false
		v.mu.Unlock()
		return nil
	}
	v.loading = true
	v.mu.Unlock()

	tasks, err := v.client.ListTasks(ctx, ListOptions{UserID: id.ID})

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = false
	if err != nil {
		v.err = err.Error()
		return err
	}
	v.tasks = tasks
	v.err = ""
	return nil
}

func (v *View) AddTask(ctx context.Context, in NewTask) error {
	id := v.currentIdentity()
	if id == nil {
		return v.fail(ErrSignInToCreate)
	}
	in.UserID = id.ID
	in.UserEmail = id.Email

	task, err := v.client.CreateTask(ctx, in)
	if err != nil {
		return v.fail(err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.tasks = append([]storage.Task{*task}, v.tasks...)
	v.err = ""
	return nil
}

func (v *View) UpdateTask(ctx context.Context, id string, u Update) error {
	task, err := v.client.UpdateTask(ctx, id, u)
	if err != nil {
		return v.fail(err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.tasks {
		if v.tasks[i].ID == id {
			v.tasks[i] = *task
		}
	}
	v.err = ""
	return nil
}

func (v *View) ToggleTask(ctx context.Context, id string) error {
	v.mu.Lock()
	var (
		completed bool
		found     bool
	)
	for _, t := range v.tasks {
		if t.ID == id {
			completed, found = !t.Completed, true
			break
		}
	}
	v.mu.Unlock()
	if !found {
		return v.fail(storage.ErrNotFound)
	}
	return v.UpdateTask(ctx, id, Update{Completed: &completed})
}

func (v *View) DeleteTask(ctx context.Context, id string) error {
	if err := v.client.DeleteTask(ctx, id); err != nil {
		return v.fail(err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.tasks[:0:0]
	for _, t := range v.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	v.tasks = kept
	v.err = ""
	return nil
}

// ClearCompleted deletes the completed tasks on the server, reloads, and
// returns the server's count. Nothing is sent when no loaded task is completed.
func (v *View) ClearCompleted(ctx context.Context) (int64, error) {
	v.mu.Lock()
	hasCompleted := false
	for _, t := range v.tasks {
		if t.Completed {
			hasCompleted = true
			break
		}
	}
	id := v.identity
	v.mu.Unlock()

	if !hasCompleted {
		return 0, nil
	}
	if id == nil {
		return 0, v.fail(ErrSignInToClear)
	}
	n, err := v.client.ClearCompleted(ctx, id.ID)
	if err != nil {
		return 0, v.fail(err)
	}
	return n, v.Refresh(ctx)
}

func (v *View) SetFilter(f Filter) {
	switch f {
	case FilterActive, FilterCompleted:
	default:
		f = FilterAll
	}
	v.mu.Lock()
	v.filter = f
	v.mu.Unlock()
}

func (v *View) Visible() []storage.Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]storage.Task, 0, len(v.tasks))
	for _, t := range v.tasks {
		switch {
		case v.filter == FilterActive && t.Completed:
		case v.filter == FilterCompleted && !t.Completed:
		default:
			out = append(out, t)
		}
	}
	return out
}

// Stats ignores the filter.
func (v *View) Stats() storage.TaskStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	var s storage.TaskStats
	for _, t := range v.tasks {
		s.Total++
		if t.Completed {
			s.Completed++
		}
	}
	s.Active = s.Total - s.Completed
	if s.Total > 0 {
		s.CompletionPercentage = int(math.Round(float64(s.Completed) / float64(s.Total) * 100))
	}
	return s
}

func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

func (v *View) ErrorMessage() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *View) DismissError() {
	v.mu.Lock()
	v.err = ""
	v.mu.Unlock()
}

func (v *View) currentIdentity() *Identity {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.identity
}

func (v *View) fail(err error) error {
	v.mu.Lock()
	v.err = err.Error()
	v.mu.Unlock()
	return err
}
