// Package connguard shares a single stateful connection between concurrent requests.
//
// A Guard never queues callers: if the connection is held by another request, Do fails
// immediately with ErrBusy. Whoever gets the connection checks it before use: a
// disconnected handle is connected, a connected one is pinged and, if the ping fails,
// reconnected exactly once.
package connguard

import (
	"context"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pikapool/pikapool-api/metrics"
	"github.com/pikapool/pikapool-api/sempool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var log = logging.Logger("connguard")

// ErrBusy is returned when the connection is held by another caller.
var ErrBusy = errors.New("connection is busy")

// Connectable is a stateful connection to an external service.
type Connectable interface {
	IsConnected(ctx context.Context) bool
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Pool gives exclusive access to a connection for the duration of fn.
type Pool[T Connectable] interface {
	Do(ctx context.Context, fn func(T) error) error
}

// ConnectError is returned when the connection couldn't be (re)established.
type ConnectError struct {
	Name string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting %s: %s", e.Name, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Guard implements Pool over a single connection.
type Guard[T Connectable] struct {
	name string
	conn T

	// Holding the only token of sem means owning conn.
	sem *sempool.Semaphore
	// poisoned is only accessed while holding sem.
	poisoned bool

	metricConnects metric.Int64Counter
}

var _ Pool[Connectable] = (*Guard[Connectable])(nil)

// New returns a Guard for conn. name is used in logs and metrics.
func New[T Connectable](name string, conn T) *Guard[T] {
	meter := otel.Meter("github.com/pikapool/pikapool-api/connguard")
	connects, err := meter.Int64Counter("connguard_connects_total")
	if err != nil {
		log.Errorf("creating connects counter: %s", err)
	}
	return &Guard[T]{
		name:           name,
		conn:           conn,
		sem:            sempool.NewSemaphore(1),
		metricConnects: connects,
	}
}

// Do runs fn with exclusive access to a live connection. Errors returned by fn are
// returned unchanged. If fn panics the connection is considered poisoned and the next
// caller reconnects before using it.
func (g *Guard[T]) Do(ctx context.Context, fn func(T) error) error {
	if !g.sem.TryAcquire() {
		return fmt.Errorf("%s: %w", g.name, ErrBusy)
	}
	defer g.sem.Release()

	if err := g.ensureConnected(ctx); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			g.poisoned = true
			panic(r)
		}
	}()
	return fn(g.conn)
}

func (g *Guard[T]) ensureConnected(ctx context.Context) error {
	if g.poisoned {
		log.Warnf("%s connection was left by a panicking holder, forcing reconnect", g.name)
		return g.connect(ctx)
	}
	if !g.conn.IsConnected(ctx) {
		log.Infof("establishing new %s connection", g.name)
		return g.connect(ctx)
	}
	if err := g.conn.Ping(ctx); err != nil {
		log.Warnf("%s ping failed: %s, attempting to reconnect", g.name, err)
		return g.connect(ctx)
	}
	log.Debugf("reusing %s connection", g.name)
	return nil
}

func (g *Guard[T]) connect(ctx context.Context) (err error) {
	defer func() {
		if g.metricConnects != nil {
			metrics.MetricIncrCounter(ctx, err, g.metricConnects, attribute.String("conn", g.name))
		}
	}()
	if err := g.conn.Connect(ctx); err != nil {
		return &ConnectError{Name: g.name, Err: err}
	}
	g.poisoned = false
	return nil
}
