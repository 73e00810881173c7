package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"campaignforge/internal/domain"
	"campaignforge/internal/infra"
)

// App holds the dependencies shared by the HTTP handlers.
type App struct {
	Jobs   domain.JobStore
	Brains domain.BrainStore
	Logger *infra.Logger
}

func NewApp(jobs domain.JobStore, brains domain.BrainStore, logger *infra.Logger) *App {
	return &App{Jobs: jobs, Brains: brains, Logger: infra.LoggerOrDiscard(logger)}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]errorBody{"error": {Code: errCode, Message: message}})
}

// fail maps domain errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	default:
		infra.LoggerOrDiscard(a.Logger).Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
