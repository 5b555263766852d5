package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/choreflow/internal/auth"
	"github.com/dukerupert/choreflow/internal/chore"
	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/recurrence"
)

type ChoreHandler struct {
	engine *chore.Engine
	logger *slog.Logger
}

func NewChoreHandler(e *chore.Engine, logger *slog.Logger) *ChoreHandler {
	return &ChoreHandler{engine: e, logger: logger}
}

type defineRequest struct {
	Description        string                   `json:"description"`
	Reward             float64                  `json:"reward"`
	CompletionCriteria model.CompletionCriteria `json:"completion_criteria"`
	Recurrence         recurrence.Spec          `json:"recurrence"`
	ApplicableDays     *recurrence.Weekdays     `json:"applicable_days"`
	ResetType          model.ResetType          `json:"approval_reset_type"`
	PendingClaimAction model.PendingClaimAction `json:"pending_claim_action"`
	OverdueHandling    model.OverdueHandling    `json:"overdue_handling_type"`
	DueDate            *time.Time               `json:"due_date"`
	Assignees          []model.Assignment       `json:"assignees"`
}

// Define creates or replaces the chore named in the path. Omitted
// applicable days mean every day.
func (h *ChoreHandler) Define(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	var req defineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	def := model.ChoreDefinition{
		Name:               name,
		Description:        req.Description,
		Reward:             req.Reward,
		CompletionCriteria: req.CompletionCriteria,
		Recurrence:         req.Recurrence,
		ApplicableDays:     model.Effective(req.ApplicableDays, recurrence.AllDays),
		ResetType:          req.ResetType,
		PendingClaimAction: req.PendingClaimAction,
		OverdueHandling:    req.OverdueHandling,
		DueDate:            req.DueDate,
		Assignees:          req.Assignees,
	}

	saved, err := h.engine.Define(r.Context(), def)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *ChoreHandler) List(w http.ResponseWriter, r *http.Request) {
	defs, err := h.engine.Definitions(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if defs == nil {
		defs = []model.ChoreDefinition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

func (h *ChoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	def, err := h.engine.Definition(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *ChoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Remove(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Instances lists every participant's view of the chore, or one view when
// ?participant= is given.
func (h *ChoreHandler) Instances(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if pid := r.URL.Query().Get("participant"); pid != "" {
		v, err := h.engine.ViewOf(r.Context(), name, pid)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, []chore.View{v})
		return
	}

	views, err := h.engine.Instances(r.Context(), name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

type transitionRequest struct {
	ParticipantID string   `json:"participant_id"`
	Amount        *float64 `json:"amount,omitempty"`
	DueDate       string   `json:"due_date,omitempty"`
}

// decodeTransition reads an optional body. Claim, approve and disapprove
// default the participant to the actor.
func decodeTransition(w http.ResponseWriter, r *http.Request) (transitionRequest, bool) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return req, false
	}
	req.ParticipantID = strings.TrimSpace(req.ParticipantID)
	return req, true
}

func (h *ChoreHandler) Claim(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}
	actor := auth.ActorID(r.Context())
	if req.ParticipantID == "" {
		req.ParticipantID = actor
	}

	v, err := h.engine.Claim(r.Context(), r.PathValue("name"), req.ParticipantID, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *ChoreHandler) Approve(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}
	if req.ParticipantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "participant_id is required"})
		return
	}

	v, err := h.engine.Approve(r.Context(), r.PathValue("name"), req.ParticipantID, auth.ActorID(r.Context()), req.Amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *ChoreHandler) Disapprove(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}
	actor := auth.ActorID(r.Context())
	if req.ParticipantID == "" {
		req.ParticipantID = actor
	}

	v, err := h.engine.Disapprove(r.Context(), r.PathValue("name"), req.ParticipantID, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SetDueDate overrides the due date. An empty due_date clears it; an empty
// participant_id applies to every instance of the chore.
func (h *ChoreHandler) SetDueDate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}

	views, err := h.engine.SetDueDate(r.Context(), r.PathValue("name"), req.ParticipantID, req.DueDate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ChoreHandler) Skip(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}

	views, err := h.engine.SkipToNextOccurrence(r.Context(), r.PathValue("name"), req.ParticipantID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// ResetOverdue clears overdue state for the chore in the path, or for every
// chore when routed without one.
func (h *ChoreHandler) ResetOverdue(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}

	views, err := h.engine.ResetOverdue(r.Context(), r.PathValue("name"), req.ParticipantID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if views == nil {
		views = []chore.View{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ChoreHandler) ResetAll(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResetAll(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Tick runs the reset and overdue pass immediately.
func (h *ChoreHandler) Tick(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Tick(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
