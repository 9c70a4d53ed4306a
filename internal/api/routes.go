package api

import (
	"log"
	"net/http"

	"github.com/harlequingg/taskd/internal/config"
	"github.com/harlequingg/taskd/internal/storage"
)

const version = "1.0.0"

type Application struct {
	config  *config.Config
	storage *storage.Storage
	logger  *log.Logger
}

func New(cfg *config.Config, store *storage.Storage, logger *log.Logger) *Application {
	return &Application{
		config:  cfg,
		storage: store,
		logger:  logger,
	}
}

func (app *Application) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthcheck", app.healthCheckHandler)

	mux.HandleFunc("GET /tasks", app.listTasksHandler)
	mux.HandleFunc("GET /tasks/stats", app.taskStatsHandler)
	mux.HandleFunc("POST /tasks", app.createTaskHandler)
	mux.HandleFunc("DELETE /tasks", app.deleteCompletedTasksHandler)
	mux.HandleFunc("GET /tasks/{id}", app.getTaskHandler)
	mux.HandleFunc("PUT /tasks/{id}", app.updateTaskHandler)
	mux.HandleFunc("DELETE /tasks/{id}", app.deleteTaskHandler)

	var h http.Handler = mux
	if app.config.JWT.Secret != "" {
		h = app.authenticate(h)
	}
	if app.config.Limiter.Enabled {
		h = app.rateLimit(h)
	}
	return app.recoverPanic(app.logRequest(app.enableCORS(h)))
}
