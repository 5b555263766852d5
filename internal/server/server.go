package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/choreflow/internal/chore"
	"github.com/dukerupert/choreflow/internal/handler"
	"github.com/dukerupert/choreflow/internal/middleware"
	"github.com/dukerupert/choreflow/internal/observability"
	"github.com/dukerupert/choreflow/internal/store"
	ws "github.com/dukerupert/choreflow/internal/websocket"
)

// Options tune the engine and scheduler the server builds.
type Options struct {
	Location     *time.Location
	LockTimeout  time.Duration
	TickInterval time.Duration
	// Clock defaults to the system clock.
	Clock chore.Clock
}

type Server struct {
	hub              *ws.Hub
	metrics          *observability.ChoreMetrics
	engine           *chore.Engine
	scheduler        *chore.Scheduler
	participantStore *store.ParticipantStore
	participantH     *handler.ParticipantHandler
	choreH           *handler.ChoreHandler
	eventH           *handler.EventHandler
	rateLimiter      *middleware.RateLimiter
	logger           *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	metrics := observability.NewChoreMetrics()

	participantStore := store.NewParticipantStore(db)
	choreStore := store.NewChoreStore(db)
	eventStore := store.NewEventStore(db)

	sink := chore.MultiSink{eventStore, hub, metrics}
	engine := chore.New(choreStore, participantStore, sink, opts.Clock, chore.Config{
		Location:    opts.Location,
		LockTimeout: opts.LockTimeout,
	}, logger.With("component", "chore"))

	scheduler := chore.NewScheduler(engine, opts.TickInterval, logger.With("component", "scheduler"))
	scheduler.OnTick = metrics.ObserveTick

	return &Server{
		hub:              hub,
		metrics:          metrics,
		engine:           engine,
		scheduler:        scheduler,
		participantStore: participantStore,
		participantH:     handler.NewParticipantHandler(participantStore, engine, logger.With("component", "participant")),
		choreH:           handler.NewChoreHandler(engine, logger.With("component", "chore_handler")),
		eventH:           handler.NewEventHandler(eventStore, participantStore, logger.With("component", "event")),
		rateLimiter:      middleware.NewRateLimiter(),
		logger:           logger,
	}
}

// Engine returns the chore engine.
func (s *Server) Engine() *chore.Engine {
	return s.engine
}

// Scheduler returns the periodic reset and overdue driver.
func (s *Server) Scheduler() *chore.Scheduler {
	return s.scheduler
}

// ParticipantStore returns the participant registry for startup seeding.
func (s *Server) ParticipantStore() *store.ParticipantStore {
	return s.participantStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	mux.HandleFunc("GET /api/participants", s.participantH.List)
	mux.HandleFunc("GET /api/participants/{id}", s.participantH.Get)
	mux.HandleFunc("GET /api/participants/{id}/points", s.eventH.Points)
	mux.HandleFunc("POST /api/participants/{id}/pin/verify", s.rateLimited(10, pinKey, s.participantH.VerifyPIN))

	mux.HandleFunc("GET /api/chores", s.choreH.List)
	mux.HandleFunc("GET /api/chores/{name}", s.choreH.Get)
	mux.HandleFunc("GET /api/chores/{name}/instances", s.choreH.Instances)
	mux.HandleFunc("GET /api/events", s.eventH.List)

	// Workflow routes; the engine checks who may act on whom.
	mux.Handle("POST /api/chores/{name}/claim", s.actor(s.choreH.Claim))
	mux.Handle("POST /api/chores/{name}/approve", s.actor(s.choreH.Approve))
	mux.Handle("POST /api/chores/{name}/disapprove", s.actor(s.choreH.Disapprove))

	// Administration routes
	mux.Handle("PUT /api/chores/{name}", s.approver(s.choreH.Define))
	mux.Handle("DELETE /api/chores/{name}", s.approver(s.choreH.Delete))
	mux.Handle("PUT /api/chores/{name}/due-date", s.approver(s.choreH.SetDueDate))
	mux.Handle("POST /api/chores/{name}/skip", s.approver(s.choreH.Skip))
	mux.Handle("POST /api/chores/{name}/reset-overdue", s.approver(s.choreH.ResetOverdue))
	mux.Handle("POST /api/reset-overdue", s.approver(s.choreH.ResetOverdue))
	mux.Handle("POST /api/reset-all", s.approver(s.choreH.ResetAll))
	mux.Handle("POST /api/tick", s.approver(s.choreH.Tick))

	mux.Handle("PUT /api/participants/{id}", s.approver(s.participantH.Put))
	mux.Handle("DELETE /api/participants/{id}", s.approver(s.participantH.Delete))
	mux.Handle("POST /api/participants/{id}/pin", s.approver(s.participantH.SetPIN))
	mux.Handle("DELETE /api/participants/{id}/pin", s.approver(s.participantH.ClearPIN))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "clients": s.hub.ClientCount()})
}

func (s *Server) rateLimited(limit int, key func(*http.Request) string, h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, key, limit, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}

// actor verifies X-Actor-ID and X-Actor-PIN before h runs.
func (s *Server) actor(h http.HandlerFunc) http.Handler {
	return s.rateLimited(60, middleware.ActorKey, middleware.RequireActor(s.participantStore)(h).ServeHTTP)
}

func (s *Server) approver(h http.HandlerFunc) http.Handler {
	return s.actor(middleware.RequireApprover(h).ServeHTTP)
}

func pinKey(r *http.Request) string {
	return "pin:" + r.PathValue("id") + "@" + middleware.RealIP(r)
}
