package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/melkeydev/mcp-tables/databases"
	"github.com/melkeydev/mcp-tables/metrics"
	"github.com/melkeydev/mcp-tables/types"
)

// Catalog is the allow-list every operation is checked against.
type Catalog interface {
	IsKnown(name string) bool
	ListNames() []string
	Describe(name string) (types.TableMetadata, bool)
}

// Limits bounds what a single call may ask of the store.
type Limits struct {
	// DefaultLimit is used by query_table when no limit is given.
	DefaultLimit int
	// MaxLimit caps the limit accepted by query_table.
	MaxLimit int
	// ResourceLimit is the number of rows fetched for a resource read.
	ResourceLimit int
	// SampleSize is how many of the fetched rows are repeated as the sample.
	SampleSize int
	// Timeout bounds each store invocation. Zero disables it.
	Timeout time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		DefaultLimit:  20,
		MaxLimit:      1000,
		ResourceLimit: 50,
		SampleSize:    10,
		Timeout:       30 * time.Second,
	}
}

// Dispatcher turns MCP requests into catalog-checked store calls. It keeps
// no per-call state, so one value serves any number of requests.
//
// Failures come back as response content, never as a Go error.
type Dispatcher struct {
	catalog Catalog
	store   databases.Store
	limits  Limits
	logger  *slog.Logger
	metrics *metrics.Recorder
}

type Option func(*Dispatcher)

func WithLimits(l Limits) Option {
	return func(d *Dispatcher) {
		d.limits = l
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func NewDispatcher(catalog Catalog, store databases.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog: catalog,
		store:   store,
		limits:  DefaultLimits(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// storeCall runs fn under the configured timeout. A store that ignores its
// context is abandoned once the deadline passes, and a panic inside fn is
// reported as an error.
func (d *Dispatcher) storeCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if d.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.limits.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		d.metrics.ObserveStore(op, time.Since(start))
	}()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%s panicked: %v", op, r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s: %w", op, d.limits.Timeout, err)
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s", op, d.limits.Timeout)
		}
		return ctx.Err()
	}
}

func (d *Dispatcher) knownTables() string {
	return strings.Join(d.catalog.ListNames(), ", ")
}

func marshalIndent(v any) (string, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}
	return string(jsonData), nil
}
