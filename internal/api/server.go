// Package api exposes availability to the reservation widget and schedule management to
// the admin back-office over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"tablebook/internal/availability"
	"tablebook/internal/database"
	"tablebook/internal/model"
	"tablebook/internal/service"
)

const (
	// DefaultMaxRangeDays caps the public range query and the export.
	DefaultMaxRangeDays = 90

	msgUnavailable = "unable to load availability"
)

// AvailabilityProvider answers availability queries.
type AvailabilityProvider interface {
	Day(ctx context.Context, date string) (availability.Day, error)
	Calendar(ctx context.Context, start, end string) ([]availability.Day, error)
}

// AdminStore manages the weekly template and date overrides.
type AdminStore interface {
	GetWeeklyTemplate(ctx context.Context) (model.WeeklyTemplate, error)
	UpdateWeeklyDay(ctx context.Context, d model.WeeklyScheduleDay) error
	GetDateOverride(ctx context.Context, date string) (*model.DateOverride, error)
	ListDateOverrides(ctx context.Context, from, to string) ([]model.DateOverride, error)
	UpsertDateOverride(ctx context.Context, o *model.DateOverride) error
	DeleteDateOverride(ctx context.Context, date string) error
	SetDayOff(ctx context.Context, date, reason string) error
	SetSpecialHours(ctx context.Context, date, opening, closing, reason string) error
	SetSplitHours(ctx context.Context, date string, morning, afternoon model.Window, reason string) error
}

// Config holds HTTP-level settings.
type Config struct {
	AdminAPIKey        string
	RateLimitPerSecond float64
	RateLimitBurst     int
	MaxRangeDays       int
}

// Server routes HTTP requests to the availability service and the settings store.
type Server struct {
	avail    AvailabilityProvider
	store    AdminStore
	cfg      Config
	logger   *zerolog.Logger
	validate *validator.Validate
	limiter  *ipRateLimiter
	router   chi.Router
}

func NewServer(avail AvailabilityProvider, store AdminStore, cfg Config, logger *zerolog.Logger) *Server {
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = DefaultMaxRangeDays
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	s := &Server{
		avail:    avail,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		validate: newValidator(),
		limiter:  newIPRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/availability", func(r chi.Router) {
		r.Use(s.limiter.Limit)
		r.Get("/", s.handleAvailabilityRange)
		r.Get("/{date}", s.handleAvailabilityDay)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/weekly", s.handleGetWeekly)
		r.Put("/weekly/{day}", s.handlePutWeeklyDay)
		r.Get("/overrides", s.handleListOverrides)
		r.Get("/overrides/{date}", s.handleGetOverride)
		r.Put("/overrides/{date}", s.handlePutOverride)
		r.Delete("/overrides/{date}", s.handleDeleteOverride)
		r.Post("/overrides/{date}/close", s.handleCloseDate)
		r.Post("/overrides/{date}/hours", s.handleSpecialHours)
		r.Post("/overrides/{date}/split", s.handleSplitHours)
		r.Get("/export", s.handleExport)
	})

	return r
}

// writeAvailabilityError maps service and resolver errors to responses.
func (s *Server) writeAvailabilityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, availability.ErrInvalidDateFormat):
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
	case errors.Is(err, service.ErrAvailabilityUnavailable):
		writeError(w, http.StatusServiceUnavailable, msgUnavailable)
	default:
		s.logger.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("availability query failed")
		writeError(w, http.StatusInternalServerError, msgUnavailable)
	}
}

// writeStoreError maps settings store errors to responses.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("settings store failed")
	writeError(w, http.StatusServiceUnavailable, "settings store unavailable")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
