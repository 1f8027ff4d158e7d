package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scan-hub/scan-hub/internal/domain/review"
	"github.com/scan-hub/scan-hub/internal/domain/stage"
)

// DefaultRunner is a stub runner for demos and local runs. Disabled reviews
// are reported as skipped.
type DefaultRunner struct{}

func (r *DefaultRunner) Run(ctx context.Context, tenantID string, taskID, stageID uuid.UUID, req review.Request) (*stage.Summary, error) {
	_ = ctx
	now := time.Now().UTC()
	status := stage.StatusSucceeded
	if !req.AIReviewEnabled {
		status = stage.StatusSkipped
	}
	return &stage.Summary{
		StageID:   stageID,
		TaskID:    taskID,
		StageType: stage.TypeAIReview,
		Status:    status,
		Artifacts: map[string]string{"mode": req.AIReviewMode},
		StartedAt: &now,
		EndedAt:   &now,
	}, nil
}

// HTTPRunner delegates the review stage to an external AI review service.
type HTTPRunner struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRunner(baseURL string, client *http.Client) *HTTPRunner {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPRunner{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type runRequest struct {
	TenantID string         `json:"tenantId"`
	TaskID   uuid.UUID      `json:"taskId"`
	StageID  uuid.UUID      `json:"stageId"`
	Request  review.Request `json:"request"`
}

func (r *HTTPRunner) Run(ctx context.Context, tenantID string, taskID, stageID uuid.UUID, req review.Request) (*stage.Summary, error) {
	body, err := json.Marshal(runRequest{TenantID: tenantID, TaskID: taskID, StageID: stageID, Request: req})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/reviews", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ai review request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ai review service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var summary stage.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("decode ai review summary: %w", err)
	}
	return &summary, nil
}
