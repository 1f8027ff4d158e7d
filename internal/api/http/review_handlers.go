package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/scan-hub/scan-hub/internal/domain/review"
)

type submitReviewRequest struct {
	TaskID string       `json:"taskId"`
	Review review.Input `json:"review"`
}

func (s *Server) submitReview(w http.ResponseWriter, r *http.Request) {
	var req submitReviewRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid taskId")
		return
	}
	ticket, err := s.reviewSvc.SubmitReview(contextFromRequest(r), tenantParam(r), taskID, req.Review)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, ticket)
}

func (s *Server) getReviewTicket(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseUUIDParam(r, "jobId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid jobId")
		return
	}
	ticket, err := s.reviewSvc.Ticket(contextFromRequest(r), tenantParam(r), jobID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ticket)
}
