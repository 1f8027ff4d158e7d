// Package dispatch defines the envelopes exchanged with executors over their
// connection. Only fields that affect dispatch and result tracking are fixed
// here; executors may send additional fields, which are ignored.
package dispatch

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/scan-hub/scan-hub/internal/domain/engine"
	"github.com/scan-hub/scan-hub/internal/domain/executor"
	"github.com/scan-hub/scan-hub/internal/domain/stage"
	"github.com/scan-hub/scan-hub/internal/domain/task"
)

// Kind identifies an envelope.
type Kind string

const (
	// control plane -> executor
	KindDispatch Kind = "dispatch"
	KindNotice   Kind = "notice"

	// executor -> control plane
	KindStatus      Kind = "status"
	KindLog         Kind = "log"
	KindStageResult Kind = "stage_result"
	KindTaskResult  Kind = "task_result"
)

var ErrUnknownKind = errors.New("unknown message kind")

// Envelope wraps every message on the wire.
type Envelope struct {
	Kind    Kind            `json:"type"`
	SentAt  time.Time       `json:"sentAt"`
	Payload json.RawMessage `json:"payload"`
}

// Dispatch asks an executor to run a task.
type Dispatch struct {
	TaskID       uuid.UUID       `json:"taskId"`
	TenantID     string          `json:"tenantId"`
	RepositoryID string          `json:"repositoryId"`
	TaskType     task.Type       `json:"taskType"`
	Engine       *string         `json:"engine,omitempty"`
	Target       engine.Target   `json:"target"`
	Context      json.RawMessage `json:"context,omitempty"`
}

// Notice is a fleet-wide informational message.
type Notice struct {
	Message string `json:"message"`
}

// StatusReport carries an executor's own status.
type StatusReport struct {
	Status executor.Status `json:"status"`
}

// LogReport carries log lines for a task.
type LogReport struct {
	TaskID uuid.UUID `json:"taskId"`
	Lines  []string  `json:"lines"`
}

// StageReport carries a completed stage.
type StageReport struct {
	Summary stage.Summary `json:"summary"`
}

// TaskReport carries the final outcome of a task.
type TaskReport struct {
	TaskID    uuid.UUID `json:"taskId"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
}

// Encode wraps payload in an envelope of the given kind.
func Encode(kind Kind, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: kind, SentAt: time.Now().UTC(), Payload: body})
}

// Decode parses an envelope and its payload into the matching report type.
func Decode(data []byte) (Kind, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, err
	}
	var out interface{}
	switch env.Kind {
	case KindStatus:
		out = &StatusReport{}
	case KindLog:
		out = &LogReport{}
	case KindStageResult:
		out = &StageReport{}
	case KindTaskResult:
		out = &TaskReport{}
	case KindDispatch:
		out = &Dispatch{}
	case KindNotice:
		out = &Notice{}
	default:
		return env.Kind, nil, ErrUnknownKind
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, out); err != nil {
			return env.Kind, nil, err
		}
	}
	return env.Kind, out, nil
}
