// Package pool manages a fixed-size set of generation backends: parallel
// startup that tolerates partial failure, reconfiguration of every member,
// and rate-limited recovery by rebuilding the whole pool.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/eak1mov/go-seedtiles/backend"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInitFailed    = errors.New("seedtiles: no backend could be started")
	ErrConfigTimeout = errors.New("seedtiles: backend configuration timed out")
	ErrClosed        = errors.New("seedtiles: pool is closed")
	ErrSuperseded    = errors.New("seedtiles: pool initialization superseded")
)

const (
	DefaultConfigureTimeout = 3 * time.Second
	DefaultResetInterval    = 5 * time.Second
	MaxSize                 = 16
)

// DefaultSize leaves one CPU for the caller.
func DefaultSize() int {
	return max(1, min(MaxSize, runtime.NumCPU()-1))
}

// Factory creates the backend for a slot.
type Factory func(ctx context.Context, slot int) (backend.Backend, error)

// KindFactory returns a Factory for the built-in backend variants.
func KindFactory(kind backend.Kind) Factory {
	return func(ctx context.Context, slot int) (backend.Backend, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return backend.New(kind)
	}
}

type config struct {
	Size             int
	Logger           *slog.Logger
	ConfigureTimeout time.Duration
	ResetInterval    time.Duration
	Clock            func() time.Time
}

type Option func(*config)

func WithSize(size int) Option {
	return func(c *config) { c.Size = size }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.Logger = logger }
}

func WithConfigureTimeout(timeout time.Duration) Option {
	return func(c *config) { c.ConfigureTimeout = timeout }
}

// WithResetInterval sets the minimum time between two rate-limited recoveries.
func WithResetInterval(interval time.Duration) Option {
	return func(c *config) { c.ResetInterval = interval }
}

func WithClock(now func() time.Time) Option {
	return func(c *config) { c.Clock = now }
}

// Pool owns the backends. All methods are safe for concurrent use.
type Pool struct {
	factory Factory
	config  config
	logger  *slog.Logger

	mu        sync.Mutex
	members   []*Member
	gen       uint64
	ready     bool
	resetting bool
	lastReset time.Time
	closed    bool
}

func New(factory Factory, opts ...Option) *Pool {
	c := config{
		Size:             DefaultSize(),
		Logger:           slog.New(slog.DiscardHandler),
		ConfigureTimeout: DefaultConfigureTimeout,
		ResetInterval:    DefaultResetInterval,
		Clock:            time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.Size = max(1, c.Size)
	return &Pool{factory: factory, config: c, logger: c.Logger}
}

func (p *Pool) Size() int {
	return p.config.Size
}

// Initialize starts every slot in parallel and configures it with params.
// Slots that fail are dropped; the pool is usable with any positive number
// of members. It fails with ErrInitFailed when no slot starts.
func (p *Pool) Initialize(ctx context.Context, params backend.Params) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	p.gen++
	gen := p.gen
	p.ready = false
	p.mu.Unlock()

	p.logger.Debug("seedtiles: starting pool", "size", p.config.Size)
	started := make([]*Member, p.config.Size)
	var wg sync.WaitGroup
	for slot := range p.config.Size {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := p.start(ctx, slot, gen, params)
			if err != nil {
				p.logger.Warn("seedtiles: backend failed to start", "slot", slot, "error", err)
				return
			}
			started[slot] = m
		}()
	}
	wg.Wait()

	var members []*Member
	for _, m := range started {
		if m != nil {
			members = append(members, m)
		}
	}

	p.mu.Lock()
	if p.closed || p.gen != gen {
		p.mu.Unlock()
		for _, m := range members {
			m.handle.Close()
		}
		if p.closed {
			return 0, ErrClosed
		}
		return 0, ErrSuperseded
	}
	p.members = members
	p.ready = len(members) > 0
	p.mu.Unlock()

	if len(members) == 0 {
		p.logger.Error("seedtiles: pool failed to start", "size", p.config.Size)
		return 0, ErrInitFailed
	}
	p.logger.Info("seedtiles: pool ready", "members", len(members), "size", p.config.Size)
	return len(members), nil
}

func (p *Pool) start(ctx context.Context, slot int, gen uint64, params backend.Params) (*Member, error) {
	handle, err := p.factory(ctx, slot)
	if err != nil {
		return nil, err
	}
	m := newMember(slot, gen, handle)
	cctx, cancel := context.WithTimeout(ctx, p.config.ConfigureTimeout)
	defer cancel()
	if err := m.configure(cctx, params); err != nil {
		handle.Close()
		return nil, err
	}
	return m, nil
}

// ReconfigureAll applies params to every member and waits for all of them,
// at most for the configure timeout. The caller must not dispatch tasks
// while it runs.
func (p *Pool) ReconfigureAll(ctx context.Context, params backend.Params) error {
	members := p.Members()
	if len(members) == 0 {
		return ErrInitFailed
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.ConfigureTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range members {
		g.Go(func() error {
			return m.configure(gctx, params)
		})
	}
	return g.Wait()
}

// ResourceKey returns the resource the members need, if any.
func (p *Pool) ResourceKey(ctx context.Context) (string, bool) {
	for _, m := range p.Members() {
		if key, ok := m.resourceKey(ctx); ok {
			return key, true
		}
	}
	return "", false
}

// DistributeResource hands a loaded resource to every member that uses one.
func (p *Pool) DistributeResource(ctx context.Context, key string, data []byte) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range p.Members() {
		g.Go(func() error {
			return m.loadResource(gctx, key, data)
		})
	}
	return g.Wait()
}

// TerminateAll closes every backend immediately, without waiting for
// in-flight calls. The pool is not ready afterwards.
func (p *Pool) TerminateAll() {
	p.mu.Lock()
	members := p.members
	p.members = nil
	p.ready = false
	p.gen++
	p.mu.Unlock()

	for _, m := range members {
		if err := m.handle.Close(); err != nil {
			p.logger.Warn("seedtiles: backend close failed", "slot", m.slot, "error", err)
		}
	}
	if len(members) > 0 {
		p.logger.Debug("seedtiles: pool terminated", "members", len(members))
	}
}

// Close terminates the pool for good.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.TerminateAll()
}

func (p *Pool) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Members returns a snapshot of the live members.
func (p *Pool) Members() []*Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Member(nil), p.members...)
}

// Busy returns the number of members running a task.
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.members {
		if m.busy {
			n++
		}
	}
	return n
}

// FindIdle returns an idle member without claiming it, or nil.
func (p *Pool) FindIdle() *Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findIdle()
}

func (p *Pool) findIdle() *Member {
	if !p.ready {
		return nil
	}
	for _, m := range p.members {
		if !m.busy {
			return m
		}
	}
	return nil
}

// Acquire claims an idle member for the task, or returns nil when every
// member is busy or the pool is not ready.
func (p *Pool) Acquire(task uint64) *Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.findIdle()
	if m != nil {
		m.busy = true
		m.task = task
		p.logger.Debug("seedtiles: task dispatched", "slot", m.slot, "task", task)
	}
	return m
}

// Release returns a member claimed by Acquire. Members of a torn-down pool
// generation are ignored.
func (p *Pool) Release(m *Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.gen != p.gen {
		return
	}
	m.busy = false
	m.task = 0
}

// Recover rebuilds the pool after a backend failure. It does nothing and
// reports false when a rebuild is already running or the previous one
// started less than the reset interval ago. prepare, when set, runs after
// the decision and before teardown.
func (p *Pool) Recover(ctx context.Context, reason string, params func() backend.Params, prepare func()) (bool, error) {
	return p.rebuild(ctx, reason, true, params, prepare)
}

// Reset rebuilds the pool like Recover but ignores the reset interval.
func (p *Pool) Reset(ctx context.Context, reason string, params func() backend.Params, prepare func()) (bool, error) {
	return p.rebuild(ctx, reason, false, params, prepare)
}

func (p *Pool) rebuild(ctx context.Context, reason string, limited bool, params func() backend.Params, prepare func()) (bool, error) {
	p.mu.Lock()
	now := p.config.Clock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return false, ErrClosed
	case p.resetting,
		limited && !p.lastReset.IsZero() && now.Sub(p.lastReset) < p.config.ResetInterval:
		p.mu.Unlock()
		p.logger.Debug("seedtiles: pool reset suppressed", "reason", reason)
		return false, nil
	}
	p.resetting = true
	p.lastReset = now
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.resetting = false
		p.mu.Unlock()
	}()

	p.logger.Warn("seedtiles: resetting pool", "reason", reason)
	if prepare != nil {
		prepare()
	}
	p.TerminateAll()
	_, err := p.Initialize(ctx, params())
	return true, err
}
