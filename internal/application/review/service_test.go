package review

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scan-hub/scan-hub/internal/apperr"
	appAIJob "github.com/scan-hub/scan-hub/internal/application/aijob"
	"github.com/scan-hub/scan-hub/internal/domain/aijob"
	"github.com/scan-hub/scan-hub/internal/domain/review"
	"github.com/scan-hub/scan-hub/internal/domain/stage"
	"github.com/scan-hub/scan-hub/internal/domain/task"
	"github.com/scan-hub/scan-hub/internal/infrastructure/memory"
)

// MockRunner is a mock implementation of review.Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, tenantID string, taskID, stageID uuid.UUID, req review.Request) (*stage.Summary, error) {
	args := m.Called(ctx, tenantID, taskID, stageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stage.Summary), args.Error(1)
}

func strPtr(s string) *string { return &s }

func TestService_ReviewNormalizesAndRelays(t *testing.T) {
	runner := new(MockRunner)
	svc := NewService(runner, zerolog.Nop())
	taskID := uuid.New()
	summary := &stage.Summary{StageType: stage.TypeAIReview, Status: stage.StatusPartial}

	expected := review.Request{
		AutoTicket:           false,
		TicketProvider:       review.StubTicketProvider,
		Labels:               []string{},
		AIReviewEnabled:      true,
		AIReviewMode:         "full",
		AIReviewDataFlowMode: strPtr("strict"),
	}
	runner.On("Run", mock.Anything, "tenant-a", taskID, mock.AnythingOfType("uuid.UUID"), expected).Return(summary, nil)

	got, err := svc.Review(context.Background(), "tenant-a", taskID, review.Input{
		Enabled:      true,
		Mode:         "  FULL ",
		DataFlowMode: strPtr(" Strict"),
	})

	require.NoError(t, err)
	assert.Same(t, summary, got)
	runner.AssertExpectations(t)
}

func TestService_ReviewMintsStageIDPerCall(t *testing.T) {
	runner := new(MockRunner)
	svc := NewService(runner, zerolog.Nop())
	taskID := uuid.New()

	var seen []uuid.UUID
	runner.On("Run", mock.Anything, "tenant-a", taskID, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			seen = append(seen, args.Get(3).(uuid.UUID))
		}).
		Return(&stage.Summary{}, nil)

	for i := 0; i < 2; i++ {
		_, err := svc.Review(context.Background(), "tenant-a", taskID, review.Input{Mode: "quick"})
		require.NoError(t, err)
	}

	require.Len(t, seen, 2)
	assert.NotEqual(t, seen[0], seen[1])
	assert.NotEqual(t, uuid.Nil, seen[0])
}

func TestService_ReviewKeepsAbsentDataFlowMode(t *testing.T) {
	runner := new(MockRunner)
	svc := NewService(runner, zerolog.Nop())

	runner.On("Run", mock.Anything, "tenant-a", mock.Anything, mock.Anything,
		mock.MatchedBy(func(req review.Request) bool { return req.AIReviewDataFlowMode == nil })).
		Return(&stage.Summary{}, nil)

	_, err := svc.Review(context.Background(), "tenant-a", uuid.New(), review.Input{Enabled: true, Mode: "Full"})
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestService_ReviewPropagatesRunnerError(t *testing.T) {
	runner := new(MockRunner)
	svc := NewService(runner, zerolog.Nop())
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("model overloaded"))

	_, err := svc.Review(context.Background(), "tenant-a", uuid.New(), review.Input{})
	assert.EqualError(t, err, "model overloaded")

	_, err = svc.Review(context.Background(), "", uuid.New(), review.Input{})
	assert.True(t, apperr.IsValidation(err))
}

func TestDefaultRunner(t *testing.T) {
	r := &DefaultRunner{}
	taskID, stageID := uuid.New(), uuid.New()

	got, err := r.Run(context.Background(), "tenant-a", taskID, stageID, review.Request{AIReviewEnabled: true, AIReviewMode: "full"})
	require.NoError(t, err)
	assert.Equal(t, stageID, got.StageID)
	assert.Equal(t, taskID, got.TaskID)
	assert.Equal(t, stage.StatusSucceeded, got.Status)

	got, err = r.Run(context.Background(), "tenant-a", taskID, stageID, review.Request{})
	require.NoError(t, err)
	assert.Equal(t, stage.StatusSkipped, got.Status)
}

func TestHTTPRunner(t *testing.T) {
	stageID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/reviews", r.URL.Path)
		var body runRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.TenantID == "broken" {
			http.Error(w, "upstream exploded", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(stage.Summary{
			StageID:   body.StageID,
			TaskID:    body.TaskID,
			StageType: stage.TypeAIReview,
			Status:    stage.StatusSucceeded,
			Artifacts: map[string]string{"report": "s3://reviews/" + body.StageID.String()},
		})
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.URL+"/", srv.Client())

	got, err := r.Run(context.Background(), "tenant-a", uuid.New(), stageID, review.Normalize(review.Input{Enabled: true}))
	require.NoError(t, err)
	assert.Equal(t, stageID, got.StageID)
	assert.Equal(t, stage.StatusSucceeded, got.Status)

	_, err = r.Run(context.Background(), "broken", uuid.New(), stageID, review.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestAIReviewService_SubmitReview(t *testing.T) {
	tracker := appAIJob.NewTracker(memory.NewTicketRepository(), 2, zerolog.Nop())
	defer tracker.Close()
	tasks := memory.NewTaskRepository()
	svc := NewAIReviewService(NewService(&DefaultRunner{}, zerolog.Nop()), tracker, tasks)
	taskID := uuid.New()
	require.NoError(t, tasks.Create(context.Background(), &task.Task{TaskID: taskID, TenantID: "tenant-a", Type: task.TypeAIReview, Status: task.StatusPending}))

	_, err := svc.SubmitReview(context.Background(), "tenant-a", uuid.New(), review.Input{Enabled: true})
	assert.True(t, apperr.IsNotFound(err))
	_, err = svc.SubmitReview(context.Background(), "tenant-b", taskID, review.Input{Enabled: true})
	assert.True(t, apperr.IsNotFound(err))

	ticket, err := svc.SubmitReview(context.Background(), "tenant-a", taskID, review.Input{Enabled: true, Mode: "Quick"})
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusCreated, ticket.Status)

	tracker.Wait()

	got, err := svc.Ticket(context.Background(), "tenant-a", ticket.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusSucceeded, got.Status)

	var summary stage.Summary
	require.NoError(t, json.Unmarshal(got.Result, &summary))
	assert.Equal(t, taskID, summary.TaskID)
	assert.Equal(t, "quick", summary.Artifacts["mode"])
}
