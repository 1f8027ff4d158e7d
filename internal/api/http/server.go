package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/scan-hub/scan-hub/internal/apperr"
	appExecutor "github.com/scan-hub/scan-hub/internal/application/executor"
	appReview "github.com/scan-hub/scan-hub/internal/application/review"
	appTask "github.com/scan-hub/scan-hub/internal/application/task"
	"github.com/scan-hub/scan-hub/internal/domain/engine"
	"github.com/scan-hub/scan-hub/internal/infrastructure/connection"
	"github.com/scan-hub/scan-hub/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	executorSvc *appExecutor.Service
	taskSvc     *appTask.Service
	reviewSvc   *appReview.AIReviewService
	engines     *engine.Registry
	conns       *connection.Registry
	sseHub      *sse.Hub
	upgrader    *websocket.Upgrader
	handshakes  *rate.Limiter
	logger      zerolog.Logger
}

func NewServer(
	executorSvc *appExecutor.Service,
	taskSvc *appTask.Service,
	reviewSvc *appReview.AIReviewService,
	engines *engine.Registry,
	conns *connection.Registry,
	sseHub *sse.Hub,
	handshakes *rate.Limiter,
	logger zerolog.Logger,
) *Server {
	if handshakes == nil {
		handshakes = rate.NewLimiter(rate.Inf, 0)
	}
	return &Server{
		executorSvc: executorSvc,
		taskSvc:     taskSvc,
		reviewSvc:   reviewSvc,
		engines:     engines,
		conns:       conns,
		sseHub:      sseHub,
		upgrader:    connection.NewUpgrader(),
		handshakes:  handshakes,
		logger:      logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router. Long-lived streams sit outside the request
// timeout.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/executors/connect", s.connectExecutor)
		r.Get("/tenants/{tenantId}/events", s.streamTenant)
		r.Get("/tenants/{tenantId}/tasks/{taskId}/stream", s.streamTask)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/engines", s.listEngines)

			r.Route("/tenants/{tenantId}", func(r chi.Router) {
				r.Route("/executors", func(r chi.Router) {
					r.Post("/", s.createExecutor)
					r.Get("/", s.listExecutors)
					r.Get("/{executorId}", s.getExecutor)
					r.Post("/{executorId}/tokens", s.issueExecutorToken)
				})

				r.Route("/tasks", func(r chi.Router) {
					r.Post("/", s.submitTask)
					r.Get("/", s.listTasks)
					r.Get("/{taskId}", s.getTask)
					r.Get("/{taskId}/stages", s.listStages)
					r.Get("/{taskId}/logs", s.listLogs)
				})

				r.Route("/ai-reviews", func(r chi.Router) {
					r.Post("/", s.submitReview)
					r.Get("/{jobId}", s.getReviewTicket)
				})

				r.Post("/broadcast", s.broadcast)
			})
		})
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondServiceError maps application errors onto status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), errorCode(err), err.Error())
}

func errorCode(err error) string {
	switch {
	case apperr.IsNotFound(err):
		return "NOT_FOUND"
	case apperr.IsValidation(err):
		return "INVALID_PARAM"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}

func statusFor(err error) int {
	switch errorCode(err) {
	case "NOT_FOUND":
		return http.StatusNotFound
	case "INVALID_PARAM":
		return http.StatusBadRequest
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func tenantParam(r *http.Request) string {
	return chi.URLParam(r, "tenantId")
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func contextFromRequest(r *http.Request) context.Context {
	return r.Context()
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Server) listEngines(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"engines": s.engines.IDs(), "default": engine.Default})
}
