package connection

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/scan-hub/scan-hub/internal/apperr"
	"github.com/scan-hub/scan-hub/internal/domain/executor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConn struct {
	mu       sync.Mutex
	open     atomic.Bool
	writeErr error
	received [][]byte
	closes   int
}

func newFakeConn() *fakeConn {
	c := &fakeConn{}
	c.open.Store(true)
	return c
}

func (c *fakeConn) IsOpen() bool { return c.open.Load() }

func (c *fakeConn) Write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.received = append(c.received, payload)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.open.Store(false)
	return nil
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.received...)
}

func id(tenant, exec string) executor.Identity {
	return executor.Identity{TenantID: tenant, ExecutorID: exec}
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	first := newFakeConn()
	second := newFakeConn()

	reg.Register(id("t1", "e1"), first)
	reg.Register(id("t1", "e1"), second)

	assert.Same(t, second, reg.Get(id("t1", "e1")))
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, 1, first.closes)
	assert.False(t, first.IsOpen())
	assert.Equal(t, 0, second.closes)
}

func TestRegistry_ReRegisterSameConnDoesNotClose(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	conn := newFakeConn()

	reg.Register(id("t1", "e1"), conn)
	reg.Register(id("t1", "e1"), conn)

	assert.Equal(t, 0, conn.closes)
}

func TestRegistry_IdentitiesAreTenantScoped(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	a := newFakeConn()
	b := newFakeConn()

	reg.Register(id("t1", "e1"), a)
	reg.Register(id("t2", "e1"), b)

	assert.Same(t, a, reg.Get(id("t1", "e1")))
	assert.Same(t, b, reg.Get(id("t2", "e1")))
	assert.Nil(t, reg.Get(id("t3", "e1")))
	assert.ElementsMatch(t, []executor.Identity{id("t1", "e1"), id("t2", "e1")}, reg.Identities())
}

func TestRegistry_RemoveAndRemoveIf(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	old := newFakeConn()
	cur := newFakeConn()

	reg.Register(id("t1", "e1"), old)
	reg.Register(id("t1", "e1"), cur)

	assert.False(t, reg.RemoveIf(id("t1", "e1"), old))
	assert.Same(t, cur, reg.Get(id("t1", "e1")))

	assert.True(t, reg.RemoveIf(id("t1", "e1"), cur))
	assert.Nil(t, reg.Get(id("t1", "e1")))

	other := newFakeConn()
	reg.Register(id("t1", "e2"), other)
	reg.Remove(id("t1", "e2"))
	assert.Nil(t, reg.Get(id("t1", "e2")))
	assert.Equal(t, 1, other.closes)

	reg.Remove(id("t1", "missing"))
}

func TestRegistry_Send(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	conn := newFakeConn()
	reg.Register(id("t1", "e1"), conn)

	require.NoError(t, reg.Send(id("t1", "e1"), []byte("hello")))
	assert.Equal(t, [][]byte{[]byte("hello")}, conn.messages())

	err := reg.Send(id("t1", "nobody"), []byte("hello"))
	assert.True(t, apperr.IsNotFound(err))

	conn.open.Store(false)
	err = reg.Send(id("t1", "e1"), []byte("again"))
	assert.True(t, apperr.IsNotFound(err))
}

func TestRegistry_BroadcastSkipsClosed(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	open := newFakeConn()
	closed := newFakeConn()
	closed.open.Store(false)

	reg.Register(id("t1", "open"), open)
	reg.Register(id("t1", "closed"), closed)

	delivered := reg.Broadcast([]byte("ping"))

	assert.Equal(t, 1, delivered)
	assert.Equal(t, [][]byte{[]byte("ping")}, open.messages())
	assert.Empty(t, closed.messages())
}

func TestRegistry_BroadcastSwallowsWriteErrors(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	failing := newFakeConn()
	failing.writeErr = errors.New("broken pipe")
	healthy := newFakeConn()

	reg.Register(id("t1", "failing"), failing)
	reg.Register(id("t1", "healthy"), healthy)

	assert.Equal(t, 1, reg.Broadcast([]byte("ping")))
	assert.Len(t, healthy.messages(), 1)
}

func TestRegistry_BroadcastTenant(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	a := newFakeConn()
	b := newFakeConn()
	reg.Register(id("t1", "e1"), a)
	reg.Register(id("t2", "e1"), b)

	assert.Equal(t, 1, reg.BroadcastTenant("t1", []byte("only-t1")))
	assert.Len(t, a.messages(), 1)
	assert.Empty(t, b.messages())
}

func TestRegistry_Close(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	a := newFakeConn()
	reg.Register(id("t1", "e1"), a)

	reg.Close()

	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, 1, a.closes)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := id("t1", fmt.Sprintf("e%d", i%10))
				conn := newFakeConn()
				switch (w + i) % 4 {
				case 0:
					reg.Register(key, conn)
				case 1:
					reg.RemoveIf(key, reg.Get(key))
				case 2:
					reg.Broadcast([]byte("tick"))
				case 3:
					if c := reg.Get(key); c != nil {
						_ = c.Close()
					}
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, reg.Count(), 10)
}
