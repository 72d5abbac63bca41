package connguard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

type fakeConn struct {
	lock       sync.Mutex
	connected  bool
	connectErr error
	pingErr    error
	connects   int
	pings      int
}

func (c *fakeConn) IsConnected(context.Context) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connected
}

func (c *fakeConn) Connect(context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.connects++
	if c.connectErr != nil {
		c.connected = false
		return c.connectErr
	}
	c.connected = true
	c.pingErr = nil
	return nil
}

func (c *fakeConn) Ping(context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.pings++
	return c.pingErr
}

func TestDoConnectsOnce(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{}
	g := New("test", conn)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		var got *fakeConn
		err := g.Do(ctx, func(c *fakeConn) error {
			got = c
			return nil
		})
		require.NoError(t, err)
		require.Same(t, conn, got)
	}
	require.Equal(t, 1, conn.connects)
	require.Equal(t, 2, conn.pings)
}

func TestDoReturnsFnError(t *testing.T) {
	t.Parallel()
	g := New("test", &fakeConn{})

	err := g.Do(context.Background(), func(*fakeConn) error { return errDown })
	require.Same(t, errDown, err)
}

func TestDoReconnectsOnFailedPing(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{connected: true, pingErr: errDown}
	g := New("test", conn)

	err := g.Do(context.Background(), func(*fakeConn) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 1, conn.pings)
	require.Equal(t, 1, conn.connects)
}

func TestDoReconnectsExactlyOnce(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{connected: true, pingErr: errDown, connectErr: errDown}
	g := New("test", conn)

	called := false
	err := g.Do(context.Background(), func(*fakeConn) error {
		called = true
		return nil
	})
	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "test", connErr.Name)
	require.ErrorIs(t, err, errDown)
	require.False(t, called)
	require.Equal(t, 1, conn.connects)
}

func TestDoBusy(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{}
	g := New("test", conn)
	ctx := context.Background()

	err := g.Do(ctx, func(*fakeConn) error {
		err := g.Do(ctx, func(*fakeConn) error {
			t.Fatal("nested call must not get the connection")
			return nil
		})
		require.ErrorIs(t, err, ErrBusy)
		return nil
	})
	require.NoError(t, err)

	// Released afterwards.
	err = g.Do(ctx, func(*fakeConn) error { return nil })
	require.NoError(t, err)
}

func TestDoConcurrent(t *testing.T) {
	t.Parallel()
	g := New("test", &fakeConn{})
	ctx := context.Background()

	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = g.Do(ctx, func(*fakeConn) error {
			close(held)
			<-hold
			return nil
		})
	}()
	<-held

	var wg sync.WaitGroup
	busy := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			busy <- g.Do(ctx, func(*fakeConn) error { return nil })
		}()
	}
	wg.Wait()
	close(busy)
	for err := range busy {
		require.ErrorIs(t, err, ErrBusy)
	}
	close(hold)
}

func TestDoPanicPoisons(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{}
	g := New("test", conn)
	ctx := context.Background()

	require.Panics(t, func() {
		_ = g.Do(ctx, func(*fakeConn) error { panic("boom") })
	})
	require.Equal(t, 1, conn.connects)

	// The guard is usable again and the next holder reconnects without pinging.
	err := g.Do(ctx, func(*fakeConn) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 2, conn.connects)
	require.Equal(t, 0, conn.pings)

	err = g.Do(ctx, func(*fakeConn) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 2, conn.connects)
	require.Equal(t, 1, conn.pings)
}

func TestDoPoisonedReconnectFailureKeepsPoison(t *testing.T) {
	t.Parallel()
	conn := &fakeConn{}
	g := New("test", conn)
	ctx := context.Background()

	require.Panics(t, func() {
		_ = g.Do(ctx, func(*fakeConn) error { panic("boom") })
	})

	conn.lock.Lock()
	conn.connectErr = errDown
	conn.lock.Unlock()
	err := g.Do(ctx, func(*fakeConn) error { return nil })
	require.ErrorIs(t, err, errDown)

	conn.lock.Lock()
	conn.connectErr = nil
	conn.lock.Unlock()
	err = g.Do(ctx, func(*fakeConn) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 3, conn.connects)
}
