// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/nexus/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// HeaderActorID carries the caller id set by the fronting auth gateway.
const HeaderActorID = "X-Actor-ID"

// HeaderActorRole carries the caller role set by the fronting auth gateway.
const HeaderActorRole = "X-Actor-Role"

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	tasks         common.TaskService
	projects      common.ProjectService
	notifications common.NotificationReader
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter. Project and notification services are optional.
func NewHandler(tasks common.TaskService, projects common.ProjectService, notifications common.NotificationReader) *Handler {
	return &Handler{
		tasks:         tasks,
		projects:      projects,
		notifications: notifications,
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "unauthenticated",
			Message: "actor identity is required",
			Hint:    "Requests must carry " + HeaderActorID + " and " + HeaderActorRole + " headers.",
		})
		return
	}

	segments := strings.Split(normalizePath(r.URL.Path), "/")
	switch {
	case len(segments) == 1 && segments[0] == "tasks":
		switch r.Method {
		case http.MethodGet:
			h.handleListBoard(w, r)
		case http.MethodPost:
			h.handleCreateTask(w, r, actor)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(segments) == 2 && segments[0] == "tasks":
		switch r.Method {
		case http.MethodGet:
			h.handleGetTask(w, r, segments[1])
		case http.MethodDelete:
			h.handleDeleteTask(w, r, actor, segments[1])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodDelete)
		}
	case len(segments) == 3 && segments[0] == "tasks":
		h.routeTaskAction(w, r, actor, segments[1], segments[2])
	case len(segments) == 1 && segments[0] == "notifications":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListNotifications(w, r, actor)
	case len(segments) == 1 && segments[0] == "projects":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleCreateProject(w, r, actor)
	case len(segments) == 3 && segments[0] == "projects" && segments[2] == "members":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAddProjectMember(w, r, actor, segments[1])
	default:
		writeNotFound(w)
	}
}

// routeTaskAction dispatches `/tasks/{id}/{action}` routes.
func (h *Handler) routeTaskAction(w http.ResponseWriter, r *http.Request, actor common.Actor, taskID, action string) {
	switch action {
	case "status":
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w, http.MethodPatch)
			return
		}
		h.handleTransitionStatus(w, r, actor, taskID)
	case "restore":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleRestoreTask(w, r, actor, taskID)
	case "comments":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListBlockReasons(w, r, taskID)
	case "activity":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListTaskActivity(w, r, taskID)
	default:
		writeNotFound(w)
	}
}

// handleListBoard serves GET `/tasks?project_id=`.
func (h *Handler) handleListBoard(w http.ResponseWriter, r *http.Request) {
	if !h.requireTasks(w) {
		return
	}
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "project_id is required",
		})
		return
	}
	tasks, err := h.tasks.ListBoard(r.Context(), projectID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
	})
}

// handleCreateTask serves POST `/tasks`.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request, actor common.Actor) {
	if !h.requireTasks(w) {
		return
	}
	var req common.CreateTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	task, err := h.tasks.CreateTask(r.Context(), actor, req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleGetTask serves GET `/tasks/{id}`.
func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if !h.requireTasks(w) {
		return
	}
	task, err := h.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleTransitionStatus serves PATCH `/tasks/{id}/status`.
func (h *Handler) handleTransitionStatus(w http.ResponseWriter, r *http.Request, actor common.Actor, taskID string) {
	if !h.requireTasks(w) {
		return
	}
	var req common.TransitionRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "status is required",
		})
		return
	}
	req.TaskID = taskID
	result, err := h.tasks.TransitionTaskStatus(r.Context(), actor, req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Task)
}

// handleDeleteTask serves DELETE `/tasks/{id}`.
func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request, actor common.Actor, taskID string) {
	if !h.requireTasks(w) {
		return
	}
	task, err := h.tasks.DeleteTask(r.Context(), actor, taskID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleRestoreTask serves POST `/tasks/{id}/restore`.
func (h *Handler) handleRestoreTask(w http.ResponseWriter, r *http.Request, actor common.Actor, taskID string) {
	if !h.requireTasks(w) {
		return
	}
	task, err := h.tasks.RestoreTask(r.Context(), actor, taskID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleListBlockReasons serves GET `/tasks/{id}/comments`.
func (h *Handler) handleListBlockReasons(w http.ResponseWriter, r *http.Request, taskID string) {
	if !h.requireTasks(w) {
		return
	}
	comments, err := h.tasks.ListBlockReasons(r.Context(), taskID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"comments": comments,
	})
}

// handleListTaskActivity serves GET `/tasks/{id}/activity`.
func (h *Handler) handleListTaskActivity(w http.ResponseWriter, r *http.Request, taskID string) {
	if !h.requireTasks(w) {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	events, err := h.tasks.ListTaskActivity(r.Context(), taskID, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
	})
}

// handleListNotifications serves GET `/notifications`.
func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request, actor common.Actor) {
	if h.notifications == nil {
		writeNotImplemented(w, "notification APIs are not available")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	items, err := h.notifications.ListNotifications(r.Context(), actor, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": items,
	})
}

// handleCreateProject serves POST `/projects`.
func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request, actor common.Actor) {
	if h.projects == nil {
		writeNotImplemented(w, "project APIs are not available")
		return
	}
	var req common.CreateProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.projects.CreateProject(r.Context(), actor, req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// handleAddProjectMember serves POST `/projects/{id}/members`.
func (h *Handler) handleAddProjectMember(w http.ResponseWriter, r *http.Request, actor common.Actor, projectID string) {
	if h.projects == nil {
		writeNotImplemented(w, "project APIs are not available")
		return
	}
	var req common.AddProjectMemberRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = projectID
	membership, err := h.projects.AddProjectMember(r.Context(), actor, req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, membership)
}

// requireTasks writes 503 when no task service is wired.
func (h *Handler) requireTasks(w http.ResponseWriter) bool {
	if h.tasks != nil {
		return true
	}
	writeJSONError(w, http.StatusServiceUnavailable, APIError{
		Code:    "service_unavailable",
		Message: "task service is not configured",
	})
	return false
}

// actorFromRequest reads the gateway-injected identity headers.
func actorFromRequest(r *http.Request) (common.Actor, bool) {
	actor := common.Actor{
		ID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
		Role: strings.TrimSpace(r.Header.Get(HeaderActorRole)),
	}
	if actor.ID == "" || actor.Role == "" {
		return common.Actor{}, false
	}
	return actor, true
}

// parseLimit reads an optional non-negative `limit` query value.
func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer: %w", common.ErrInvalidRequest)
	}
	return limit, nil
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	var rejection *common.RejectionError
	if errors.As(err, &rejection) {
		apiErr := APIError{
			Code:    rejection.Code,
			Message: rejection.Message,
		}
		if errors.Is(err, common.ErrNotFound) {
			apiErr.Hint = "Refresh the board; the task may have been deleted."
		}
		writeJSONError(w, statusFor(err), apiErr)
		return
	}

	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrUnauthenticated):
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "unauthenticated",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, APIError{
			Code:    "forbidden",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// statusFor returns the HTTP status for one transport sentinel.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeNotFound writes the structured unknown-endpoint response.
func writeNotFound(w http.ResponseWriter) {
	writeJSONError(w, http.StatusNotFound, APIError{
		Code:    "not_found",
		Message: "endpoint not found",
	})
}

// writeNotImplemented writes a structured 501 response.
func writeNotImplemented(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusNotImplemented, APIError{
		Code:    "not_implemented",
		Message: message,
	})
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
