package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zeusync/boardsync/internal/collab"
	"github.com/zeusync/boardsync/internal/collab/memapi"
	"github.com/zeusync/boardsync/internal/core/model"
)

// MoveRequest is the body of POST /v1/{kind}/{id}/move.
type MoveRequest struct {
	ContainerID string `json:"container_id"`
	Order       int    `json:"order"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler returns the full HTTP surface.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": s.GetStats().ClientCount})
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	mount(v1, "tasks", s.api.Tasks)
	mount(v1, "columns", s.api.Columns)
	mount(v1, "boards", s.api.Boards)
	v1.HandleFunc("/boards/{board}/ws", s.handleWebSocket).Methods(http.MethodGet)

	r.Use(actorMiddleware)
	return r
}

func mount[T any](r *mux.Router, path string, table *memapi.Table[T]) {
	sub := r.PathPrefix("/" + path).Subrouter()

	sub.HandleFunc("", func(w http.ResponseWriter, req *http.Request) {
		list, err := table.List(req.Context(), req.URL.Query().Get("board_id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}).Methods(http.MethodGet)

	sub.HandleFunc("", func(w http.ResponseWriter, req *http.Request) {
		var v T
		if !decode(w, req, &v) {
			return
		}
		rec, err := table.Create(req.Context(), v)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}).Methods(http.MethodPost)

	sub.HandleFunc("/reorder", func(w http.ResponseWriter, req *http.Request) {
		var items []model.OrderedItem
		if !decode(w, req, &items) {
			return
		}
		if err := table.Reorder(req.Context(), items); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	sub.HandleFunc("/{id}", func(w http.ResponseWriter, req *http.Request) {
		var patch model.Patch[T]
		if !decode(w, req, &patch) {
			return
		}
		rec, err := table.Update(req.Context(), mux.Vars(req)["id"], patch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}).Methods(http.MethodPatch)

	sub.HandleFunc("/{id}", func(w http.ResponseWriter, req *http.Request) {
		if err := table.Delete(req.Context(), mux.Vars(req)["id"]); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	sub.HandleFunc("/{id}/move", func(w http.ResponseWriter, req *http.Request) {
		var body MoveRequest
		if !decode(w, req, &body) {
			return
		}
		if err := table.Move(req.Context(), mux.Vars(req)["id"], body.ContainerID, body.Order); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, fmt.Errorf("%w: %v", collab.ErrValidation, err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps collaborator errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, collab.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, collab.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, collab.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, collab.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, collab.ErrUnavailable), errors.Is(err, ErrMaxClientsReached):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), ErrorResponse{Error: err.Error()})
}
