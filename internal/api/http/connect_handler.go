package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/scan-hub/scan-hub/internal/apperr"
	appExecutor "github.com/scan-hub/scan-hub/internal/application/executor"
	"github.com/scan-hub/scan-hub/internal/domain/dispatch"
	"github.com/scan-hub/scan-hub/internal/domain/executor"
	"github.com/scan-hub/scan-hub/internal/infrastructure/connection"
)

// connectExecutor authenticates an executor, upgrades to a websocket and
// registers the connection until the executor goes away.
func (s *Server) connectExecutor(w http.ResponseWriter, r *http.Request) {
	if !s.handshakes.Allow() {
		respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many executor handshakes")
		return
	}
	token := bearerToken(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing executor token")
		return
	}
	exec, err := s.executorSvc.Authenticate(contextFromRequest(r), token)
	if err != nil {
		if errors.Is(err, appExecutor.ErrInvalidToken) || apperr.IsNotFound(err) {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		respondServiceError(w, err)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("executor", exec.Identity().String()).Msg("websocket upgrade failed")
		return
	}
	conn := connection.NewWSConn(ws, 0)
	id := exec.Identity()
	log := s.logger.With().Str("tenant_id", id.TenantID).Str("executor_id", id.ExecutorID).Logger()

	ctx := context.Background()
	if err := s.executorSvc.UpdateStatus(ctx, id.TenantID, id.ExecutorID, executor.StatusReady); err != nil {
		log.Error().Err(err).Msg("mark executor ready")
		_ = conn.Close()
		return
	}
	s.conns.Register(id, conn)
	log.Info().Msg("executor connected")

	defer func() {
		// A superseded connection must not take its replacement offline.
		if s.conns.RemoveIf(id, conn) {
			if err := s.executorSvc.UpdateStatus(ctx, id.TenantID, id.ExecutorID, executor.StatusOffline); err != nil {
				log.Warn().Err(err).Msg("mark executor offline")
			}
		}
		_ = conn.Close()
		log.Info().Msg("executor disconnected")
	}()

	for {
		data, err := conn.Read()
		if err != nil {
			return
		}
		kind, payload, err := dispatch.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("discard executor message")
			s.notify(conn, err)
			continue
		}
		if err := s.taskSvc.HandleReport(ctx, id, kind, payload); err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("executor report rejected")
			s.notify(conn, err)
		}
	}
}

func (s *Server) notify(conn connection.Conn, cause error) {
	payload, err := dispatch.Encode(dispatch.KindNotice, dispatch.Notice{Message: cause.Error()})
	if err != nil {
		return
	}
	_ = conn.Write(payload)
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}
