package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/eak1mov/go-seedtiles/backend"
	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/relief"
	"github.com/eak1mov/go-seedtiles/tile"
)

// Member is one backend slot of the pool. Calls on a member are serialized:
// a configuration change waits for the member's in-flight task.
type Member struct {
	slot   int
	gen    uint64
	handle backend.Backend
	sem    chan struct{}

	// Guarded by Pool.mu.
	busy bool
	task uint64
}

func newMember(slot int, gen uint64, handle backend.Backend) *Member {
	return &Member{slot: slot, gen: gen, handle: handle, sem: make(chan struct{}, 1)}
}

func (m *Member) Slot() int {
	return m.slot
}

func (m *Member) Classify(ctx context.Context, region tile.Region, y int) (*biome.Grid, error) {
	return call(ctx, m, func(b backend.Backend) (*biome.Grid, error) {
		return b.Classify(ctx, region, y)
	})
}

func (m *Member) SampleElevation(ctx context.Context, area relief.Area) (*relief.Grid, error) {
	return call(ctx, m, func(b backend.Backend) (*relief.Grid, error) {
		return b.SampleElevation(ctx, area)
	})
}

// configure applies params, giving up when ctx ends even if the backend
// does not return.
func (m *Member) configure(ctx context.Context, params backend.Params) error {
	done := make(chan error, 1)
	go func() {
		_, err := call(ctx, m, func(b backend.Backend) (struct{}, error) {
			return struct{}{}, b.Configure(ctx, params)
		})
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: slot %d", ErrConfigTimeout, m.slot)
		}
		return ctx.Err()
	}
}

func (m *Member) resourceKey(ctx context.Context) (string, bool) {
	c, ok := m.handle.(backend.ResourceConsumer)
	if !ok {
		return "", false
	}
	key, err := call(ctx, m, func(backend.Backend) (string, error) {
		return c.ResourceKey(), nil
	})
	return key, err == nil && key != ""
}

func (m *Member) loadResource(ctx context.Context, key string, data []byte) error {
	c, ok := m.handle.(backend.ResourceConsumer)
	if !ok {
		return nil
	}
	_, err := call(ctx, m, func(backend.Backend) (struct{}, error) {
		return struct{}{}, c.LoadResource(key, data)
	})
	return err
}

// call runs fn with exclusive access to the member's backend. A panic in the
// backend is reported as backend.ErrRuntime.
func call[T any](ctx context.Context, m *Member, fn func(backend.Backend) (T, error)) (result T, err error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return result, ctx.Err()
	}
	defer func() { <-m.sem }()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: slot %d: %v", backend.ErrRuntime, m.slot, r)
		}
	}()
	return fn(m.handle)
}
