package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/harlequingg/taskd/internal/storage"
)

func (app *Application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	heathCheck := struct {
		Status      string `json:"status"`
		Environment string `json:"environment"`
		Version     string `json:"version"`
	}{
		Status:      "available",
		Environment: app.config.Env,
		Version:     version,
	}
	err := writeJSON(w, http.StatusOK, heathCheck, nil)
	if err != nil {
		app.serverError(w, r, "health check", "", err)
	}
}

func (app *Application) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	v := newValidator()

	filter := storage.ListFilter{
		OwnerID:        qs.Get("userId"),
		UnassignedOnly: qs.Get("unassigned") == "true",
		Status:         storage.Status(qs.Get("status")),
		Limit:          readInt(qs, "limit", 0, v),
		Offset:         readInt(qs, "offset", 0, v),
	}
	v.checkCond(permittedValue(filter.Status, "", storage.StatusAll, storage.StatusCompleted, storage.StatusPending), "status", "must be one of all, completed or pending")
	v.checkCond(filter.Limit >= 0, "limit", "must not be negative")
	v.checkCond(filter.Offset >= 0, "offset", "must not be negative")
	if v.hasErrors() {
		writeError(w, v.toError(), http.StatusBadRequest)
		return
	}

	owner, ok := requestOwner(r, filter.OwnerID)
	if !ok {
		forbidden(w)
		return
	}
	filter.OwnerID = owner

	tasks, err := app.storage.ListTasks(r.Context(), filter)
	if err != nil {
		app.storageError(w, r, "list tasks", filter.OwnerID, err)
		return
	}
	err = writeJSON(w, http.StatusOK, tasks, nil)
	if err != nil {
		app.serverError(w, r, "list tasks", filter.OwnerID, err)
	}
}

func (app *Application) taskStatsHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := requestOwner(r, r.URL.Query().Get("userId"))
	if !ok {
		forbidden(w)
		return
	}

	stats, err := app.storage.TaskStats(r.Context(), owner)
	if err != nil {
		app.storageError(w, r, "task stats", owner, err)
		return
	}
	err = writeJSON(w, http.StatusOK, stats, nil)
	if err != nil {
		app.serverError(w, r, "task stats", owner, err)
	}
}

func (app *Application) getTaskHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	task, err := app.storage.GetTask(r.Context(), id)
	if err != nil {
		app.storageError(w, r, "get task", id, err)
		return
	}
	if a := accountFromRequest(r); a != nil && task.UserID != a.ID {
		writeError(w, storage.ErrNotFound, http.StatusNotFound)
		return
	}
	err = writeJSON(w, http.StatusOK, task, nil)
	if err != nil {
		app.serverError(w, r, "get task", id, err)
	}
}

func (app *Application) createTaskHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Title     string `json:"title"`
		UserID    string `json:"userId"`
		UserEmail string `json:"userEmail"`
		DueDate   string `json:"dueDate"`
		Priority  string `json:"priority"`
		Category  string `json:"category"`
	}
	err := readJSON(w, r, &input)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	owner, ok := requestOwner(r, input.UserID)
	if !ok {
		forbidden(w)
		return
	}
	if a := accountFromRequest(r); a != nil && input.UserEmail == "" {
		input.UserEmail = a.Email
	}

	// Without an owner the store answers first: blank title, then unauthorized.
	if strings.TrimSpace(owner) != "" {
		v := newValidator()
		v.checkTitle(input.Title)
		v.checkEmail("userEmail", input.UserEmail)
		if v.hasErrors() {
			writeError(w, v.toError(), http.StatusBadRequest)
			return
		}
	}

	task, err := app.storage.CreateTask(r.Context(), storage.CreateTaskInput{
		Title:     input.Title,
		UserID:    owner,
		UserEmail: input.UserEmail,
		DueDate:   input.DueDate,
		Priority:  input.Priority,
		Category:  input.Category,
	})
	if err != nil {
		var se *storage.StorageError
		if errors.As(err, &se) && app.config.Env == "development" {
			app.logger.Printf("%s %s: create task (id=%q): %v", r.Method, r.URL.Path, owner, err)
			writeError(w, fmt.Errorf("could not create task: %v", err), http.StatusInternalServerError)
			return
		}
		app.storageError(w, r, "create task", owner, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", "/tasks/"+task.ID)
	err = writeJSON(w, http.StatusCreated, task, headers)
	if err != nil {
		app.serverError(w, r, "create task", task.ID, err)
	}
}

func (app *Application) updateTaskHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var input struct {
		Title     *string         `json:"title"`
		Completed *bool           `json:"completed"`
		DueDate   json.RawMessage `json:"dueDate"`
		Priority  *string         `json:"priority"`
		Category  *string         `json:"category"`

		// Read-only fields clients echo back from a previous response.
		ID        json.RawMessage `json:"id"`
		UserID    json.RawMessage `json:"userId"`
		CreatedAt json.RawMessage `json:"createdAt"`
		User      json.RawMessage `json:"user"`
	}
	err := readJSON(w, r, &input)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	patch := storage.TaskPatch{
		Title:     input.Title,
		Completed: input.Completed,
		Priority:  input.Priority,
		Category:  input.Category,
	}
	v := newValidator()
	if input.Title != nil {
		v.checkTitle(*input.Title)
	}
	if input.DueDate != nil {
		var due *string
		if err := json.Unmarshal(input.DueDate, &due); err != nil {
			v.checkCond(false, "dueDate", "must be a date string or null")
		}
		if due == nil {
			due = new(string)
		}
		patch.DueDate = due
	}
	if v.hasErrors() {
		writeError(w, v.toError(), http.StatusBadRequest)
		return
	}

	owner, _ := requestOwner(r, "")
	task, err := app.storage.UpdateTask(r.Context(), id, owner, patch)
	if err != nil {
		app.storageError(w, r, "update task", id, err)
		return
	}
	err = writeJSON(w, http.StatusOK, task, nil)
	if err != nil {
		app.serverError(w, r, "update task", id, err)
	}
}

func (app *Application) deleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	owner, _ := requestOwner(r, "")
	err := app.storage.DeleteTask(r.Context(), id, owner)
	if err != nil {
		app.storageError(w, r, "delete task", id, err)
		return
	}
	err = writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": "task deleted successfully",
	}, nil)
	if err != nil {
		app.serverError(w, r, "delete task", id, err)
	}
}

func (app *Application) deleteCompletedTasksHandler(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	if qs.Get("clearCompleted") != "true" {
		writeError(w, errors.New("unsupported operation: set clearCompleted=true to delete completed tasks"), http.StatusBadRequest)
		return
	}

	owner, ok := requestOwner(r, qs.Get("userId"))
	if !ok {
		forbidden(w)
		return
	}

	n, err := app.storage.DeleteCompletedTasks(r.Context(), owner)
	if err != nil {
		app.storageError(w, r, "delete completed tasks", owner, err)
		return
	}
	err = writeJSON(w, http.StatusOK, envelope{
		"success":      true,
		"deletedCount": n,
		"message":      fmt.Sprintf("deleted %d completed tasks", n),
	}, nil)
	if err != nil {
		app.serverError(w, r, "delete completed tasks", owner, err)
	}
}
