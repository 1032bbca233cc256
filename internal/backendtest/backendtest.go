// Package backendtest provides a scriptable backend for pool and scheduler tests.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eak1mov/go-seedtiles/backend"
	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/relief"
	"github.com/eak1mov/go-seedtiles/tile"
)

var ErrInjected = errors.New("backendtest: injected failure")

// Factory creates fake backends and records everything they do. Its hook
// fields must be set before the first call.
type Factory struct {
	// FailCreate makes creation of the given slot fail.
	FailCreate func(slot int) bool
	// FailConfigure makes Configure fail on the given slot.
	FailConfigure func(slot int, params backend.Params) error
	// Classify overrides the classification result for a call.
	Classify func(ctx context.Context, slot int, region tile.Region) error
	// Gate, when set, blocks every Classify call until it can receive or
	// the gate is closed.
	Gate chan struct{}
	// ResourceKey turns the fakes into resource consumers.
	ResourceKey string

	Created   atomic.Int64
	Calls     atomic.Int64
	Overlaps  atomic.Int64
	Resources atomic.Int64

	mu       sync.Mutex
	backends []*Backend
}

func (f *Factory) New(ctx context.Context, slot int) (backend.Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.Created.Add(1)
	if f.FailCreate != nil && f.FailCreate(slot) {
		return nil, fmt.Errorf("%w: create slot %d", ErrInjected, slot)
	}
	b := &Backend{factory: f, slot: slot}
	f.mu.Lock()
	f.backends = append(f.backends, b)
	f.mu.Unlock()
	if f.ResourceKey != "" {
		return &consumer{b}, nil
	}
	return b, nil
}

// Backends returns every backend created so far.
func (f *Factory) Backends() []*Backend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Backend(nil), f.backends...)
}

// Backend paints every cell with the class equal to the configured seed, so
// tests can tell which configuration produced a tile.
type Backend struct {
	factory *Factory
	slot    int

	mu         sync.Mutex
	params     backend.Params
	configured bool
	closed     bool
	resource   string
	busy       atomic.Int32
}

func (b *Backend) Slot() int {
	return b.slot
}

func (b *Backend) Params() (backend.Params, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.params, b.configured
}

func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Backend) Resource() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resource
}

func (b *Backend) enter() func() {
	if b.busy.Add(1) > 1 {
		b.factory.Overlaps.Add(1)
	}
	return func() { b.busy.Add(-1) }
}

func (b *Backend) Configure(ctx context.Context, params backend.Params) error {
	defer b.enter()()
	if f := b.factory.FailConfigure; f != nil {
		if err := f(b.slot, params); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return backend.ErrClosed
	}
	b.params = params
	b.configured = true
	return nil
}

func (b *Backend) Classify(ctx context.Context, region tile.Region, y int) (*biome.Grid, error) {
	defer b.enter()()
	b.factory.Calls.Add(1)
	if gate := b.factory.Gate; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f := b.factory.Classify; f != nil {
		if err := f(ctx, b.slot, region); err != nil {
			return nil, err
		}
	}
	params, ok := b.Params()
	if !ok {
		return nil, backend.ErrNotConfigured
	}
	if !region.Valid() {
		return nil, backend.ErrInvalidRegion
	}
	w, h := region.Cells()
	grid := biome.NewGrid(w, h)
	for i := range grid.IDs {
		grid.IDs[i] = biome.ID(params.Seed)
	}
	return grid, nil
}

func (b *Backend) SampleElevation(ctx context.Context, area relief.Area) (*relief.Grid, error) {
	defer b.enter()()
	grid := relief.NewGrid(area)
	for i := range grid.Values {
		grid.Values[i] = 70
	}
	return grid, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type consumer struct {
	*Backend
}

func (c *consumer) ResourceKey() string {
	return c.factory.ResourceKey
}

func (c *consumer) LoadResource(key string, data []byte) error {
	c.factory.Resources.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resource = key + ":" + string(data)
	return nil
}
