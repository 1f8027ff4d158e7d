package executor

import (
	"time"

	"github.com/google/uuid"
)

// Status represents executor status.
type Status string

const (
	StatusRegistered Status = "REGISTERED"
	StatusReady      Status = "READY"
	StatusBusy       Status = "BUSY"
	StatusOffline    Status = "OFFLINE"
	StatusError      Status = "ERROR"
)

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusRegistered, StatusReady, StatusBusy, StatusOffline, StatusError:
		return true
	default:
		return false
	}
}

// IsDispatchable reports whether tasks may target an executor in this status.
// REGISTERED counts: executors are assignable before the readiness handshake.
func (s Status) IsDispatchable() bool {
	return s == StatusReady || s == StatusRegistered
}

// Identity addresses an executor. Executor IDs are only unique within a tenant.
type Identity struct {
	TenantID   string `json:"tenantId"`
	ExecutorID string `json:"executorId"`
}

func (i Identity) String() string {
	return i.TenantID + "/" + i.ExecutorID
}

// Executor represents a remote scan worker.
type Executor struct {
	TenantID     string     `json:"tenantId"`
	ExecutorID   string     `json:"executorId"`
	DisplayName  string     `json:"displayName"`
	Capabilities []string   `json:"capabilityTags,omitempty"`
	Status       Status     `json:"status"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Identity returns the tenant-qualified identity.
func (e *Executor) Identity() Identity {
	return Identity{TenantID: e.TenantID, ExecutorID: e.ExecutorID}
}

// Token is an access token an executor presents during the connection
// handshake. Only a bcrypt hash of the secret is stored.
type Token struct {
	TokenID    uuid.UUID `json:"tokenId"`
	TenantID   string    `json:"tenantId"`
	ExecutorID string    `json:"executorId"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (t *Token) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
