package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/store"
)

type EventHandler struct {
	events       *store.EventStore
	participants *store.ParticipantStore
	logger       *slog.Logger
}

func NewEventHandler(es *store.EventStore, ps *store.ParticipantStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: es, participants: ps, logger: logger}
}

// List returns recorded events, newest first. Supports chore, participant,
// type, since (RFC 3339) and limit query parameters.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.EventFilter{
		Chore:       q.Get("chore"),
		Participant: q.Get("participant"),
		Type:        model.EventType(q.Get("type")),
	}

	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be an RFC 3339 timestamp"})
			return
		}
		f.Since = since
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
			return
		}
		f.Limit = n
	}

	events, err := h.events.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list events"})
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Points(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	p, err := h.participants.GetParticipant(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get participant"})
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "participant not found"})
		return
	}

	balance, err := h.events.PointBalance(r.Context(), id)
	if err != nil {
		h.logger.Error("point balance", "participant", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get point balance"})
		return
	}
	writeJSON(w, http.StatusOK, balance)
}
