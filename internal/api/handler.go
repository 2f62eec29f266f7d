package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/sitesum/internal/workflow"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SubmitRequest is the body of POST /workflow/submit.
type SubmitRequest struct {
	URL string `json:"url"`
}

type AppDeps struct {
	Machine *workflow.Machine
	Token   string
}

// NewAppHandler returns the workflow REST API. Everything except /health
// requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/workflow", handleGetRun(deps))
		r.Post("/workflow/submit", handleSubmit(deps))
		r.Post("/workflow/reset", handleReset(deps))
		r.Post("/workflow/cleanup", handleCleanup(deps))
		r.Get("/workflow/artifacts", handleListArtifacts(deps))
		r.Get("/workflow/calls", handleListCalls(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleGetRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Machine.Snapshot())
	}
}

// handleSubmit starts a run and answers 202 with the Processing state. With
// ?wait=true it answers once the run has finished.
func handleSubmit(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
		if !wait {
			run, err := deps.Machine.Start(r.Context(), req.URL)
			if err != nil {
				writeRunError(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, run)
			return
		}

		// A waiting client that disconnects should not cancel the run.
		run, err := deps.Machine.Submit(context.WithoutCancel(r.Context()), req.URL)
		if err != nil {
			writeRunError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func writeRunError(w http.ResponseWriter, err error) {
	var verr *workflow.ValidationError
	var serr *workflow.StageError
	switch {
	case errors.As(err, &verr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", verr.Message)
	case errors.As(err, &serr):
		httpError(w, http.StatusBadGateway, "upstream_error", "%s", serr.Message)
	case errors.Is(err, workflow.ErrSuperseded):
		httpError(w, http.StatusConflict, "conflict", "run was reset or replaced before it finished")
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func handleReset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Machine.Reset())
	}
}

func handleCleanup(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Deletions continue even if the client goes away; the ledger is
		// cleared either way.
		report := deps.Machine.Cleanup(context.WithoutCancel(r.Context()))
		writeJSON(w, http.StatusOK, report)
	}
}

func handleListArtifacts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Machine.Artifacts())
	}
}

func handleListCalls(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Machine.Calls())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
