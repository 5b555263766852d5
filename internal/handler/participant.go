package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/choreflow/internal/chore"
	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/store"
)

type ParticipantHandler struct {
	store  *store.ParticipantStore
	engine *chore.Engine
	logger *slog.Logger
}

func NewParticipantHandler(s *store.ParticipantStore, e *chore.Engine, logger *slog.Logger) *ParticipantHandler {
	return &ParticipantHandler{store: s, engine: e, logger: logger}
}

func (h *ParticipantHandler) List(w http.ResponseWriter, r *http.Request) {
	participants, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("list participants", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list participants"})
		return
	}
	if participants == nil {
		participants = []model.Participant{}
	}
	writeJSON(w, http.StatusOK, participants)
}

func (h *ParticipantHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetParticipant(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get participant"})
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "participant not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Put creates the participant or updates their name and role.
func (h *ParticipantHandler) Put(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}

	var req struct {
		Name string     `json:"name"`
		Role model.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.Role == "" {
		req.Role = model.RoleParticipant
	}
	if !req.Role.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be participant or approver"})
		return
	}

	p, err := h.store.Upsert(r.Context(), id, req.Name, req.Role)
	if err != nil {
		h.logger.Error("upsert participant", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save participant"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete unassigns the participant from every chore before removing them.
func (h *ParticipantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := h.store.GetParticipant(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get participant"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "participant not found"})
		return
	}

	if err := h.engine.RemoveParticipant(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete participant", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete participant"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ParticipantHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.PIN) < 4 || len(req.PIN) > 8 || !isDigits(req.PIN) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "PIN must be 4 to 8 digits"})
		return
	}

	if !h.exists(w, r, id) {
		return
	}
	if err := h.store.SetPIN(r.Context(), id, req.PIN); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to set PIN"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

func (h *ParticipantHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.exists(w, r, id) {
		return
	}
	if err := h.store.SetPIN(r.Context(), id, ""); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to clear PIN"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "pin cleared"})
}

func (h *ParticipantHandler) VerifyPIN(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if !h.exists(w, r, id) {
		return
	}
	ok, err := h.store.VerifyPIN(r.Context(), id, req.PIN)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to verify PIN"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "incorrect PIN"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (h *ParticipantHandler) exists(w http.ResponseWriter, r *http.Request, id string) bool {
	p, err := h.store.GetParticipant(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get participant"})
		return false
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "participant not found"})
		return false
	}
	return true
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps engine error codes to HTTP statuses. Anything without a
// code is logged and reported as a 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := chore.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	var ce *chore.Error
	msg := err.Error()
	if errors.As(err, &ce) && ce.Message != "" {
		msg = ce.Message
	}
	writeJSON(w, status, map[string]string{"error": msg, "code": string(code)})
}

func statusFor(code chore.Code) int {
	switch code {
	case chore.CodeConfiguration:
		return http.StatusBadRequest
	case chore.CodePermissionDenied:
		return http.StatusForbidden
	case chore.CodeInvalidTransition, chore.CodeStateConflict:
		return http.StatusConflict
	case chore.CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
