package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	appTask "github.com/scan-hub/scan-hub/internal/application/task"
	"github.com/scan-hub/scan-hub/internal/domain/task"
	"github.com/scan-hub/scan-hub/internal/infrastructure/sse"
)

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req appTask.SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	req.TenantID = tenantParam(r)
	t, err := s.taskSvc.Submit(contextFromRequest(r), req)
	if err != nil {
		// A remote dispatch that fails after persisting still reports the task.
		if t != nil {
			respondJSON(w, statusFor(err), map[string]interface{}{
				"task":    t,
				"error":   errorCode(err),
				"message": err.Error(),
			})
			return
		}
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, t)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var status *task.Status
	if st := r.URL.Query().Get("status"); st != "" {
		s := task.Status(st)
		status = &s
	}
	limit, offset := parseLimitOffset(r, 100, 200)
	tasks, err := s.taskSvc.List(contextFromRequest(r), tenantParam(r), status, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	t, err := s.taskSvc.Get(contextFromRequest(r), tenantParam(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) listStages(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	stages, err := s.taskSvc.Stages(contextFromRequest(r), tenantParam(r), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"stages": stages})
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	limit := 500
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 5000 {
			limit = l
		}
	}
	logs, err := s.taskSvc.Logs(contextFromRequest(r), tenantParam(r), id, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func (s *Server) streamTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	if _, err := s.taskSvc.Get(contextFromRequest(r), tenantParam(r), id); err != nil {
		respondServiceError(w, err)
		return
	}
	s.stream(w, r, sse.NewClient(tenantParam(r), &id))
}

func (s *Server) streamTenant(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, sse.NewClient(tenantParam(r), nil))
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, client *sse.Client) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(client.ClientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg, ok := <-client.MessageChan:
			if !ok {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", msg.ID, msg.Event, payload)
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
