package connection

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/scan-hub/scan-hub/internal/apperr"
	"github.com/scan-hub/scan-hub/internal/domain/executor"
)

var ErrClosed = errors.New("connection closed")

// Conn is a live bidirectional channel to one executor.
type Conn interface {
	IsOpen() bool
	Write(payload []byte) error
	Close() error
}

// Registry tracks at most one live connection per executor identity. It holds
// runtime state only; executors re-register after a restart.
type Registry struct {
	mu     sync.RWMutex
	conns  map[executor.Identity]Conn
	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[executor.Identity]Conn),
		logger: logger.With().Str("component", "connection_registry").Logger(),
	}
}

// Register stores conn for id. The last registration wins; a superseded
// connection is closed so its owner observes the replacement.
func (r *Registry) Register(id executor.Identity, conn Conn) {
	r.mu.Lock()
	prev := r.conns[id]
	r.conns[id] = conn
	r.mu.Unlock()

	if prev != nil && prev != conn {
		if err := prev.Close(); err != nil {
			r.logger.Debug().Err(err).Str("executor", id.String()).Msg("close superseded connection")
		}
		r.logger.Info().Str("executor", id.String()).Msg("executor connection replaced")
	}
}

// Remove deregisters and closes the connection for id, if any.
func (r *Registry) Remove(id executor.Identity) {
	r.mu.Lock()
	conn := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// RemoveIf deregisters id only while conn is still the registered connection.
// Teardown of a superseded connection therefore leaves its replacement alone.
func (r *Registry) RemoveIf(id executor.Identity, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[id]; ok && cur == conn {
		delete(r.conns, id)
		return true
	}
	return false
}

// Get returns the registered connection or nil.
func (r *Registry) Get(id executor.Identity) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Identities lists the executors with a registered connection.
func (r *Registry) Identities() []executor.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]executor.Identity, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// Send writes payload to one executor.
func (r *Registry) Send(id executor.Identity, payload []byte) error {
	conn := r.Get(id)
	if conn == nil || !conn.IsOpen() {
		return apperr.NotFound("executor connection", id.String())
	}
	return conn.Write(payload)
}

// Broadcast writes payload to every open connection and returns how many
// writes succeeded. Closed or failing connections are skipped.
func (r *Registry) Broadcast(payload []byte) int {
	return r.fanOut(r.snapshot(func(executor.Identity) bool { return true }), payload)
}

// BroadcastTenant is Broadcast restricted to one tenant's executors.
func (r *Registry) BroadcastTenant(tenantID string, payload []byte) int {
	return r.fanOut(r.snapshot(func(id executor.Identity) bool { return id.TenantID == tenantID }), payload)
}

// Close closes every connection and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[executor.Identity]Conn)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

type target struct {
	id   executor.Identity
	conn Conn
}

// snapshot copies matching entries so writes happen outside the lock.
func (r *Registry) snapshot(match func(executor.Identity) bool) []target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]target, 0, len(r.conns))
	for id, c := range r.conns {
		if match(id) {
			out = append(out, target{id: id, conn: c})
		}
	}
	return out
}

func (r *Registry) fanOut(targets []target, payload []byte) int {
	delivered := 0
	for _, t := range targets {
		if !t.conn.IsOpen() {
			continue
		}
		if err := t.conn.Write(payload); err != nil {
			r.logger.Debug().Err(err).Str("executor", t.id.String()).Msg("broadcast write skipped")
			continue
		}
		delivered++
	}
	return delivered
}
