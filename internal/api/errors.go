package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/harlequingg/taskd/internal/storage"
)

func composeJSONError(err error) string {
	jsonError := map[string]string{
		"error": err.Error(),
	}
	result, err := json.Marshal(jsonError)
	if err != nil {
		log.Println(err)
		return ""
	}
	return string(result)
}

func writeError(w http.ResponseWriter, err error, statusCode int) {
	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	fmt.Fprintln(w, composeJSONError(err))
}

// serverError logs the cause with the operation and entity id, and answers
// with a generic message.
func (app *Application) serverError(w http.ResponseWriter, r *http.Request, op, id string, err error) {
	app.logger.Printf("%s %s: %s (id=%q): %v", r.Method, r.URL.Path, op, id, err)
	writeError(w, errors.New("internal server error"), http.StatusInternalServerError)
}

// storageError maps the store's error taxonomy onto HTTP statuses.
func (app *Application) storageError(w http.ResponseWriter, r *http.Request, op, id string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, storage.ErrNotFound, http.StatusNotFound)
	case errors.Is(err, storage.ErrUnauthorized):
		writeError(w, storage.ErrUnauthorized, http.StatusUnauthorized)
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, err, http.StatusBadRequest)
	default:
		app.serverError(w, r, op, id, err)
	}
}

func forbidden(w http.ResponseWriter) {
	writeError(w, errors.New("you may only access your own tasks"), http.StatusForbidden)
}

func invalidAuthenticationToken(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, errors.New("invalid or missing authentication token"), http.StatusUnauthorized)
}
