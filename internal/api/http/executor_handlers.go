package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/scan-hub/scan-hub/internal/domain/dispatch"
	"github.com/scan-hub/scan-hub/internal/domain/executor"
)

type createExecutorRequest struct {
	ExecutorID   string   `json:"executorId"`
	DisplayName  string   `json:"displayName"`
	Capabilities []string `json:"capabilityTags,omitempty"`
}

func (s *Server) createExecutor(w http.ResponseWriter, r *http.Request) {
	var req createExecutorRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	model := &executor.Executor{
		TenantID:     tenantParam(r),
		ExecutorID:   req.ExecutorID,
		DisplayName:  req.DisplayName,
		Capabilities: req.Capabilities,
	}
	if err := s.executorSvc.Create(contextFromRequest(r), model); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, model)
}

func (s *Server) listExecutors(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 100, 200)
	execs, err := s.executorSvc.List(contextFromRequest(r), tenantParam(r), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"executors": execs})
}

func (s *Server) getExecutor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executorId")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid executorId")
		return
	}
	exec, err := s.executorSvc.Get(contextFromRequest(r), tenantParam(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	connected := s.conns.Get(exec.Identity()) != nil
	respondJSON(w, http.StatusOK, map[string]interface{}{"executor": exec, "connected": connected})
}

// issueExecutorToken returns the plaintext token once; only its hash is kept.
func (s *Server) issueExecutorToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executorId")
	tok, plaintext, err := s.executorSvc.IssueToken(contextFromRequest(r), tenantParam(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"tokenId":   tok.TokenID,
		"token":     plaintext,
		"expiresAt": tok.ExpiresAt,
	})
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "message is required")
		return
	}
	payload, err := dispatch.Encode(dispatch.KindNotice, dispatch.Notice{Message: req.Message})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	delivered := s.conns.BroadcastTenant(tenantParam(r), payload)
	respondJSON(w, http.StatusOK, map[string]interface{}{"delivered": delivered})
}
