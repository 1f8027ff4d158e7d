package review

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/scan-hub/scan-hub/internal/domain/stage"
)

// StubTicketProvider disables issue-tracker ticketing for review stages.
const StubTicketProvider = "stub"

// Input is what a client supplies when asking for an AI review.
type Input struct {
	Enabled      bool    `json:"enabled"`
	Mode         string  `json:"mode"`
	DataFlowMode *string `json:"dataFlowMode,omitempty"`
}

// Request is the normalized form handed to a Runner.
type Request struct {
	AutoTicket           bool     `json:"autoTicket"`
	TicketProvider       string   `json:"ticketProvider"`
	Labels               []string `json:"labels"`
	AIReviewEnabled      bool     `json:"aiReviewEnabled"`
	AIReviewMode         string   `json:"aiReviewMode"`
	AIReviewDataFlowMode *string  `json:"aiReviewDataFlowMode,omitempty"`
}

// Normalize trims and lowercases the mode fields and pins ticketing to the
// disabled stub. An absent data-flow mode stays absent.
func Normalize(in Input) Request {
	req := Request{
		AutoTicket:      false,
		TicketProvider:  StubTicketProvider,
		Labels:          []string{},
		AIReviewEnabled: in.Enabled,
		AIReviewMode:    strings.ToLower(strings.TrimSpace(in.Mode)),
	}
	if in.DataFlowMode != nil {
		dfm := strings.ToLower(strings.TrimSpace(*in.DataFlowMode))
		req.AIReviewDataFlowMode = &dfm
	}
	return req
}

// Runner executes a review stage. Implementations live outside the core.
type Runner interface {
	Run(ctx context.Context, tenantID string, taskID, stageID uuid.UUID, req Request) (*stage.Summary, error)
}
