// Package scheduler queues tile requests, hands them to idle backends and
// resolves every request exactly once. Results made obsolete by a view
// change or a reconfiguration are dropped before they are painted.
package scheduler

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"

	"github.com/eak1mov/go-seedtiles/backend"
	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/pool"
	"github.com/eak1mov/go-seedtiles/raster"
	"github.com/eak1mov/go-seedtiles/relief"
	"github.com/eak1mov/go-seedtiles/resource"
	"github.com/eak1mov/go-seedtiles/tile"
)

var (
	ErrDisposed = errors.New("seedtiles: scheduler disposed")
	// ErrRecovering fails tasks that were queued when the pool was reset.
	ErrRecovering = errors.New("seedtiles: backends restarting")
)

// DefaultElevationSpacing is the finest elevation lattice requested, in
// blocks.
const DefaultElevationSpacing = 4

// View holds the display settings that change what a tile looks like.
type View struct {
	Relief bool
	YLevel int
	// Highlight leaves every biome outside the set blank. An empty set
	// shows all biomes.
	Highlight biome.Set
	Water     bool
	// ContourInterval is the height between contour lines in blocks. Zero
	// disables contours.
	ContourInterval float64
}

// Redraw tells the display to drop its tiles and request them again.
type Redraw struct {
	Epoch   uint64
	Version uint64
}

type config struct {
	Logger           *slog.Logger
	Geometry         tile.Geometry
	Renderer         Renderer
	Resources        *resource.Cache
	OnRedraw         func(Redraw)
	View             View
	ElevationSpacing int
}

type Option func(*config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.Logger = logger }
}

func WithGeometry(g tile.Geometry) Option {
	return func(c *config) { c.Geometry = g }
}

func WithRenderer(r Renderer) Option {
	return func(c *config) { c.Renderer = r }
}

// WithResources makes the scheduler fetch and distribute the resource the
// backends ask for after every (re)configuration.
func WithResources(cache *resource.Cache) Option {
	return func(c *config) { c.Resources = cache }
}

// WithRedraw sets the callback run after every invalidation. It must not
// block.
func WithRedraw(fn func(Redraw)) Option {
	return func(c *config) { c.OnRedraw = fn }
}

func WithView(v View) Option {
	return func(c *config) { c.View = v }
}

func WithElevationSpacing(blocks int) Option {
	return func(c *config) { c.ElevationSpacing = blocks }
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	pool   *pool.Pool
	config config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// configMu orders reconfigurations so the last update wins on every
	// member.
	configMu sync.Mutex

	mu          sync.Mutex
	params      backend.Params
	view        View
	queue       []*Task
	inflight    map[uint64]*Task
	nextID      uint64
	epoch       uint64
	version     uint64
	updateToken uint64
	pauses      int
	pending     bool
	failed      bool
	disposed    bool
	settled     chan struct{}
	isSettled   bool
}

func New(p *pool.Pool, params backend.Params, opts ...Option) *Scheduler {
	c := config{
		Logger:           slog.New(slog.DiscardHandler),
		Geometry:         tile.Geometry{TileSize: tile.BaseTileSize},
		ElevationSpacing: DefaultElevationSpacing,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.Renderer == nil {
		c.Renderer = &Compositor{Assembler: raster.NewAssembler(raster.DefaultPalette())}
	}
	c.ElevationSpacing = max(1, c.ElevationSpacing)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		pool:     p,
		config:   c,
		logger:   c.Logger,
		ctx:      ctx,
		cancel:   cancel,
		params:   params,
		view:     c.View,
		inflight: make(map[uint64]*Task),
		settled:  make(chan struct{}),
	}
}

// Start initializes the pool in the background. Tasks submitted before the
// pool is ready wait in the queue.
func (s *Scheduler) Start() {
	params := s.Params()
	go func() {
		_, err := s.pool.Initialize(s.ctx, params)
		s.afterInit(err)
	}()
}

// WaitReady blocks until the current pool (re)initialization finishes.
func (s *Scheduler) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	settled := s.settled
	s.mu.Unlock()
	select {
	case <-settled:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.disposed:
		return ErrDisposed
	case s.failed:
		return pool.ErrInitFailed
	}
	return nil
}

func (s *Scheduler) afterInit(err error) {
	if err != nil {
		s.mu.Lock()
		if errors.Is(err, pool.ErrInitFailed) {
			s.failed = true
		}
		// A superseded initialization leaves the pending update to the one
		// that replaced it.
		if s.pending && !errors.Is(err, pool.ErrSuperseded) {
			s.pending = false
			s.pauses--
		}
		drained := s.drainLocked()
		s.settleLocked()
		s.mu.Unlock()
		for _, t := range drained {
			t.resolve(StateFailed, nil, err)
		}
		if !errors.Is(err, pool.ErrClosed) && !errors.Is(err, pool.ErrSuperseded) {
			s.logger.Error("seedtiles: backends unavailable", "error", err)
		}
		return
	}

	s.mu.Lock()
	s.failed = false
	pending := s.pending
	s.pending = false
	s.mu.Unlock()

	if pending {
		s.configMu.Lock()
		err := s.pool.ReconfigureAll(s.ctx, s.Params())
		s.configMu.Unlock()
		if err != nil {
			s.logger.Warn("seedtiles: pending configuration failed", "error", err)
			s.mu.Lock()
			s.pauses--
			s.settleLocked()
			s.mu.Unlock()
			go s.recover("pending configuration failed", false)
			return
		}
	}
	s.syncResources(s.ctx)

	s.mu.Lock()
	if pending {
		s.pauses--
	}
	s.settleLocked()
	s.mu.Unlock()
	s.processQueue()
}

func (s *Scheduler) settleLocked() {
	if !s.isSettled {
		close(s.settled)
		s.isSettled = true
	}
}

// Submit queues a tile request. The returned task is already resolved when
// the request cannot be served.
func (s *Scheduler) Submit(c tile.Coord) *Task {
	return s.SubmitFunc(c, nil)
}

// SubmitFunc is Submit with a callback run once the task resolves.
func (s *Scheduler) SubmitFunc(c tile.Coord, onDone func(*Task)) *Task {
	region, regionErr := s.config.Geometry.Region(c)

	s.mu.Lock()
	s.nextID++
	t := newTask(s.nextID, c, region, s.epoch, s.version, onDone)
	var err error
	switch {
	case s.disposed:
		err = ErrDisposed
	case regionErr != nil:
		err = regionErr
	case s.failed:
		err = pool.ErrInitFailed
	default:
		s.queue = append(s.queue, t)
	}
	s.mu.Unlock()

	if err != nil {
		t.resolve(StateFailed, nil, err)
		return t
	}
	s.processQueue()
	return t
}

// processQueue dispatches queued tasks in submission order while idle
// members remain.
func (s *Scheduler) processQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.pauses > 0 {
		return
	}
	for len(s.queue) > 0 {
		t := s.queue[0]
		if t.State().Resolved() {
			s.queue = s.queue[1:]
			continue
		}
		m := s.pool.Acquire(t.ID)
		if m == nil {
			return
		}
		s.queue[0] = nil
		s.queue = s.queue[1:]
		if !t.dispatch() {
			s.pool.Release(m)
			continue
		}
		s.inflight[t.ID] = t
		go s.execute(m, t, s.view)
	}
}

func (s *Scheduler) execute(m *pool.Member, t *Task, view View) {
	img, err := s.run(m, t, view)
	s.pool.Release(m)

	s.mu.Lock()
	delete(s.inflight, t.ID)
	stale := s.staleLocked(t)
	s.mu.Unlock()

	switch {
	case err != nil:
		if errors.Is(err, backend.ErrRuntime) {
			s.logger.Error("seedtiles: backend failed", "slot", m.Slot(), "tile", t.Coord, "error", err)
			go s.recover("backend runtime failure", true)
		} else if !stale {
			s.logger.Warn("seedtiles: tile failed", "tile", t.Coord, "error", err)
		}
		if stale {
			t.resolve(StateStale, nil, nil)
		} else {
			t.resolve(StateFailed, nil, err)
		}
	case stale || img == nil:
		t.resolve(StateStale, nil, nil)
	default:
		t.resolve(StateDone, img, nil)
	}
	s.processQueue()
}

// run returns a nil image without error when the task went stale.
func (s *Scheduler) run(m *pool.Member, t *Task, view View) (*image.NRGBA, error) {
	if s.isStale(t) {
		return nil, nil
	}
	classes, err := m.Classify(s.ctx, t.Region, view.YLevel)
	if err != nil {
		return nil, err
	}
	var elevation *relief.Grid
	if view.Relief {
		area := relief.AreaFor(t.Region, max(s.config.ElevationSpacing, t.Region.SampleStride))
		elevation, err = m.SampleElevation(s.ctx, area)
		switch {
		case errors.Is(err, backend.ErrRuntime):
			return nil, err
		case err != nil:
			s.logger.Debug("seedtiles: relief unavailable", "tile", t.Coord, "error", err)
			elevation = nil
		}
	}
	if s.isStale(t) {
		return nil, nil
	}
	pixels := s.config.Geometry.TileSize
	return s.config.Renderer.Render(Job{
		Region:         t.Region,
		Pixels:         pixels,
		BlocksPerPixel: float64(t.Region.BlockWidth) / float64(pixels),
		View:           view,
		Classes:        classes,
		Elevation:      elevation,
	}), nil
}

func (s *Scheduler) isStale(t *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleLocked(t)
}

func (s *Scheduler) staleLocked(t *Task) bool {
	return s.disposed || t.Epoch != s.epoch || t.Version != s.version
}

func (s *Scheduler) drainLocked() []*Task {
	drained := s.queue
	s.queue = nil
	return drained
}

// recover rebuilds the pool. Limited recoveries honor the pool's reset
// interval; forced ones do not.
func (s *Scheduler) recover(reason string, limited bool) {
	prepare := func() {
		s.mu.Lock()
		drained := s.drainLocked()
		if s.isSettled {
			s.settled = make(chan struct{})
			s.isSettled = false
		}
		s.mu.Unlock()
		for _, t := range drained {
			t.resolve(StateFailed, nil, ErrRecovering)
		}
		if s.config.Resources != nil {
			s.config.Resources.Invalidate()
		}
	}
	rebuild := s.pool.Recover
	if !limited {
		rebuild = s.pool.Reset
	}
	ok, err := rebuild(s.ctx, reason, s.Params, prepare)
	if !ok {
		if err != nil && !errors.Is(err, pool.ErrClosed) {
			s.logger.Warn("seedtiles: recovery skipped", "reason", reason, "error", err)
		}
		return
	}
	s.afterInit(err)
	if err == nil {
		s.Invalidate()
	}
}

// Invalidate starts a new epoch: queued tasks resolve empty, running ones
// are discarded when they finish, and the display is asked to redraw.
func (s *Scheduler) Invalidate() {
	s.mu.Lock()
	s.epoch++
	drained := s.drainLocked()
	r := Redraw{Epoch: s.epoch, Version: s.version}
	disposed := s.disposed
	s.mu.Unlock()

	for _, t := range drained {
		t.resolve(StateStale, nil, nil)
	}
	if !disposed && s.config.OnRedraw != nil {
		s.config.OnRedraw(r)
	}
}

func (s *Scheduler) SetRelief(enabled bool) {
	s.mu.Lock()
	changed := s.view.Relief != enabled
	s.view.Relief = enabled
	s.mu.Unlock()
	if changed {
		s.Invalidate()
	}
}

func (s *Scheduler) SetYLevel(y int) {
	s.mu.Lock()
	changed := s.view.YLevel != y
	s.view.YLevel = y
	s.mu.Unlock()
	if changed {
		s.Invalidate()
	}
}

// SetHighlight shows only the given biomes. An empty set shows all of
// them.
func (s *Scheduler) SetHighlight(ids biome.Set) {
	s.mu.Lock()
	changed := s.view.Highlight != ids
	s.view.Highlight = ids
	s.mu.Unlock()
	if changed {
		s.Invalidate()
	}
}

func (s *Scheduler) SetWater(enabled bool) {
	s.mu.Lock()
	changed := s.view.Water != enabled
	s.view.Water = enabled
	s.mu.Unlock()
	if changed {
		s.Invalidate()
	}
}

func (s *Scheduler) SetContourInterval(blocks float64) {
	blocks = max(0, blocks)
	s.mu.Lock()
	changed := s.view.ContourInterval != blocks
	s.view.ContourInterval = blocks
	s.mu.Unlock()
	if changed {
		s.Invalidate()
	}
}

func (s *Scheduler) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Scheduler) Params() backend.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// UpdateConfig applies a partial configuration change to every backend.
// Dispatch is paused while the backends reconfigure, so no task runs
// against a half-configured pool. When several updates overlap only the
// last one bumps the version. A failed reconfiguration forces a pool
// reset with the merged parameters.
//
// The reconfiguration runs to completion even when ctx ends first; ctx
// only bounds how long the caller waits for it.
func (s *Scheduler) UpdateConfig(ctx context.Context, u backend.Update) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.updateToken++
	token := s.updateToken
	s.params = u.Apply(s.params)

	done := make(chan struct{})
	if !s.pool.Ready() {
		if s.failed {
			s.mu.Unlock()
			return pool.ErrInitFailed
		}
		if !s.pending {
			s.pending = true
			s.pauses++
		}
		settled := s.settled
		s.mu.Unlock()
		s.logger.Debug("seedtiles: configuration deferred until backends are ready")
		go func() {
			defer close(done)
			select {
			case <-settled:
				s.finishUpdate(token)
			case <-s.ctx.Done():
			}
		}()
	} else {
		s.pauses++
		s.mu.Unlock()
		go func() {
			defer close(done)
			s.reconfigure(token)
		}()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) reconfigure(token uint64) {
	s.configMu.Lock()
	err := s.pool.ReconfigureAll(s.ctx, s.Params())
	s.configMu.Unlock()
	if err == nil {
		s.syncResources(s.ctx)
	}

	s.mu.Lock()
	s.pauses--
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("seedtiles: reconfiguration failed", "error", err)
		s.recover("configuration failed", false)
	}
	s.finishUpdate(token)
}

func (s *Scheduler) finishUpdate(token uint64) {
	s.mu.Lock()
	current := !s.disposed && token == s.updateToken
	if current {
		s.version++
	}
	s.mu.Unlock()
	if current {
		s.Invalidate()
	}
	s.processQueue()
}

// syncResources loads the resource the backends need, unless it is
// already loaded. Failures leave the backends on their built-in data.
func (s *Scheduler) syncResources(ctx context.Context) {
	cache := s.config.Resources
	if cache == nil {
		return
	}
	key, ok := s.pool.ResourceKey(ctx)
	if !ok || key == cache.Committed() {
		return
	}
	load := cache.Begin(key)
	data, err := load.Fetch(ctx)
	if err != nil {
		s.logger.Warn("seedtiles: resource unavailable", "key", key, "error", err)
		return
	}
	if !load.Current() {
		s.logger.Debug("seedtiles: resource load superseded", "key", key)
		return
	}
	if err := s.pool.DistributeResource(ctx, key, data); err != nil {
		s.logger.Warn("seedtiles: resource rejected", "key", key, "error", err)
		return
	}
	if err := load.Commit(); err != nil {
		s.logger.Debug("seedtiles: resource load superseded", "key", key)
	}
}

// Status is a snapshot of the scheduler.
type Status struct {
	Ready    bool
	Failed   bool
	Members  int
	Busy     int
	Queued   int
	InFlight int
	Epoch    uint64
	Version  uint64
	View     View
	Params   backend.Params
}

func (s *Scheduler) Status() Status {
	members, busy, ready := len(s.pool.Members()), s.pool.Busy(), s.pool.Ready()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Ready:    ready && !s.disposed,
		Failed:   s.failed,
		Members:  members,
		Busy:     busy,
		Queued:   len(s.queue),
		InFlight: len(s.inflight),
		Epoch:    s.epoch,
		Version:  s.version,
		View:     s.view,
		Params:   s.params,
	}
}

// Dispose resolves every outstanding task empty and terminates the
// backends. The scheduler cannot be used afterwards.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	tasks := s.drainLocked()
	for _, t := range s.inflight {
		tasks = append(tasks, t)
	}
	clear(s.inflight)
	s.settleLocked()
	s.mu.Unlock()

	s.cancel()
	for _, t := range tasks {
		t.resolve(StateFailed, nil, ErrDisposed)
	}
	s.pool.Close()
	s.logger.Debug("seedtiles: scheduler disposed", "tasks", len(tasks))
}
