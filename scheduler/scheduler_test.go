package scheduler

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eak1mov/go-seedtiles/backend"
	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/internal/backendtest"
	"github.com/eak1mov/go-seedtiles/pool"
	"github.com/eak1mov/go-seedtiles/raster"
	"github.com/eak1mov/go-seedtiles/relief"
	"github.com/eak1mov/go-seedtiles/resource"
	"github.com/eak1mov/go-seedtiles/tile"
)

const waitFor = 5 * time.Second

type recordingRenderer struct {
	calls atomic.Int64

	mu   sync.Mutex
	jobs []Job
}

func (r *recordingRenderer) Render(job Job) *image.NRGBA {
	r.calls.Add(1)
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	return image.NewNRGBA(image.Rect(0, 0, job.Pixels, job.Pixels))
}

func (r *recordingRenderer) last() Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[len(r.jobs)-1]
}

type redraws struct {
	mu     sync.Mutex
	events []Redraw
}

func (r *redraws) record(ev Redraw) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *redraws) list() []Redraw {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Redraw(nil), r.events...)
}

func newPool(f *backendtest.Factory, size int) *pool.Pool {
	return pool.New(f.New, pool.WithSize(size), pool.WithResetInterval(time.Hour))
}

func start(t *testing.T, f *backendtest.Factory, size int, opts ...Option) (*Scheduler, *recordingRenderer) {
	t.Helper()
	r := &recordingRenderer{}
	opts = append([]Option{WithRenderer(r)}, opts...)
	s := New(newPool(f, size), backend.Params{Seed: 3}, opts...)
	t.Cleanup(s.Dispose)
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.WaitReady(ctx))
	return s, r
}

func wait(t *testing.T, task *Task) *image.NRGBA {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	img, err := task.Wait(ctx)
	require.NoError(t, err)
	return img
}

func TestSubmitRenders(t *testing.T) {
	t.Parallel()
	f := &backendtest.Factory{}
	s, r := start(t, f, 2)

	task := s.Submit(tile.Coord{Z: 0, X: 1, Y: -2})
	img := wait(t, task)
	require.NotNil(t, img)
	assert.Equal(t, StateDone, task.State())
	assert.NoError(t, task.Err())
	assert.Equal(t, image.Rect(0, 0, 256, 256), img.Bounds())

	job := r.last()
	assert.Equal(t, biome.ID(3), job.Classes.At(0, 0))
	assert.Equal(t, tile.Region{OriginX: 256, OriginZ: -512, BlockWidth: 256, BlockHeight: 256, SampleStride: 1}, job.Region)
	assert.Nil(t, job.Elevation)
}

func TestSubmitInvalidCoord(t *testing.T) {
	t.Parallel()
	s, r := start(t, &backendtest.Factory{}, 1)

	task := s.Submit(tile.Coord{Z: 40})
	require.Equal(t, StateFailed, task.State())
	assert.ErrorIs(t, task.Err(), tile.ErrInvalidCoord)
	assert.Nil(t, task.Result())
	assert.Zero(t, r.calls.Load())
}

func TestDispatchOrder(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var order []int
	f := &backendtest.Factory{
		Gate: make(chan struct{}),
		Classify: func(ctx context.Context, slot int, region tile.Region) error {
			mu.Lock()
			order = append(order, region.OriginX/256)
			mu.Unlock()
			return nil
		},
	}
	s, _ := start(t, f, 1)

	var tasks []*Task
	for x := range 5 {
		tasks = append(tasks, s.Submit(tile.Coord{X: x}))
	}
	close(f.Gate)
	for _, task := range tasks {
		require.NotNil(t, wait(t, task))
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, order); diff != "" {
		t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidateDropsStaleTasks(t *testing.T) {
	t.Parallel()
	f := &backendtest.Factory{Gate: make(chan struct{})}
	var rd redraws
	s, r := start(t, f, 1, WithRedraw(rd.record))

	running := s.Submit(tile.Coord{X: 0})
	queued := s.Submit(tile.Coord{X: 1})
	require.Eventually(t, func() bool { return f.Calls.Load() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, StateDispatched, running.State())

	s.Invalidate()
	assert.Equal(t, StateStale, queued.State())
	assert.Equal(t, []Redraw{{Epoch: 1}}, rd.list())

	close(f.Gate)
	assert.Nil(t, wait(t, running))
	assert.Equal(t, StateStale, running.State())
	assert.Zero(t, r.calls.Load())

	fresh := s.Submit(tile.Coord{X: 2})
	assert.NotNil(t, wait(t, fresh))
	assert.Equal(t, uint64(1), fresh.Epoch)
}

func TestViewChanges(t *testing.T) {
	t.Parallel()
	var rd redraws
	s, r := start(t, &backendtest.Factory{}, 1, WithRedraw(rd.record), WithView(View{YLevel: 64}))

	s.SetYLevel(64)
	s.SetRelief(false)
	assert.Empty(t, rd.list())

	s.SetRelief(true)
	s.SetYLevel(-20)
	assert.Len(t, rd.list(), 2)
	assert.Equal(t, View{Relief: true, YLevel: -20}, s.View())

	require.NotNil(t, wait(t, s.Submit(tile.Coord{Z: -4})))
	job := r.last()
	require.NotNil(t, job.Elevation)
	assert.Equal(t, -20, job.View.YLevel)
	assert.Equal(t, 16, job.Elevation.Spacing)
	assert.InDelta(t, 16.0, job.BlocksPerPixel, 1e-9)
}

func TestDisplayToggles(t *testing.T) {
	t.Parallel()
	var rd redraws
	s, r := start(t, &backendtest.Factory{}, 1, WithRedraw(rd.record),
		WithView(View{Water: true, ContourInterval: 16}))

	s.SetWater(true)
	s.SetContourInterval(16)
	s.SetHighlight(biome.Set{})
	assert.Empty(t, rd.list())

	desert := biome.NewSet(biome.Desert)
	s.SetHighlight(desert)
	s.SetHighlight(desert)
	s.SetWater(false)
	s.SetContourInterval(-5)
	assert.Len(t, rd.list(), 3)
	want := View{Highlight: desert, ContourInterval: 0}
	if diff := cmp.Diff(want, s.View(), cmp.AllowUnexported(biome.Set{})); diff != "" {
		t.Errorf("View() mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, wait(t, s.Submit(tile.Coord{})))
	job := r.last()
	assert.True(t, job.View.Highlight.Has(biome.Desert))
	assert.False(t, job.View.Highlight.Has(biome.Plains))
	assert.False(t, job.View.Water)
}

func TestElevationSpacingFloor(t *testing.T) {
	t.Parallel()
	s, r := start(t, &backendtest.Factory{}, 1, WithView(View{Relief: true}), WithElevationSpacing(8))

	require.NotNil(t, wait(t, s.Submit(tile.Coord{})))
	assert.Equal(t, 8, r.last().Elevation.Spacing)
}

func TestResolvesExactlyOnce(t *testing.T) {
	t.Parallel()
	f := &backendtest.Factory{}
	s, _ := start(t, f, 3)

	var mu sync.Mutex
	counts := make(map[uint64]int)
	onDone := func(task *Task) {
		mu.Lock()
		counts[task.ID]++
		mu.Unlock()
	}

	var tasks []*Task
	for i := range 200 {
		tasks = append(tasks, s.SubmitFunc(tile.Coord{X: i % 7, Y: i / 7}, onDone))
		if i%17 == 0 {
			s.Invalidate()
		}
	}
	s.Dispose()
	tasks = append(tasks, s.SubmitFunc(tile.Coord{}, onDone))

	for _, task := range tasks {
		select {
		case <-task.Done():
		default:
			t.Fatalf("task %d not resolved", task.ID)
		}
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(counts) == len(tasks)
	}, waitFor, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for id, n := range counts {
		assert.Equal(t, 1, n, "task %d", id)
	}
}

func TestUpdateConfigPausesDispatch(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	f := &backendtest.Factory{
		FailConfigure: func(slot int, params backend.Params) error {
			if params.Seed == 9 {
				entered <- struct{}{}
				<-release
			}
			return nil
		},
	}
	var rd redraws
	s, r := start(t, f, 2, WithRedraw(rd.record))

	seed := int64(9)
	done := make(chan error, 1)
	go func() {
		done <- s.UpdateConfig(context.Background(), backend.Update{Seed: &seed})
	}()
	<-entered

	old := s.Submit(tile.Coord{})
	assert.Equal(t, StateQueued, old.State())
	assert.Equal(t, 1, s.Status().Queued)
	assert.Zero(t, f.Calls.Load())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateStale, old.State())
	assert.Zero(t, f.Overlaps.Load())
	assert.Equal(t, []Redraw{{Epoch: 1, Version: 1}}, rd.list())

	task := s.Submit(tile.Coord{})
	require.NotNil(t, wait(t, task))
	assert.Equal(t, uint64(1), task.Version)
	assert.Equal(t, biome.ID(9), r.last().Classes.At(0, 0))
}

func TestOverlappingUpdatesBumpVersionOnce(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	f := &backendtest.Factory{
		FailConfigure: func(slot int, params backend.Params) error {
			if params.Seed == 9 {
				entered <- struct{}{}
				<-release
			}
			return nil
		},
	}
	var rd redraws
	s, _ := start(t, f, 1, WithRedraw(rd.record))

	first, second := int64(9), int64(10)
	large := true
	errs := make(chan error, 2)
	go func() {
		errs <- s.UpdateConfig(context.Background(), backend.Update{Seed: &first})
	}()
	<-entered
	go func() {
		errs <- s.UpdateConfig(context.Background(), backend.Update{Seed: &second, LargeBiomes: &large})
	}()
	require.Eventually(t, func() bool { return s.Params().Seed == 10 }, waitFor, time.Millisecond)
	close(release)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.Equal(t, uint64(1), s.Status().Version)
	assert.Len(t, rd.list(), 1)
	for _, b := range f.Backends() {
		params, ok := b.Params()
		require.True(t, ok)
		assert.Equal(t, backend.Params{Seed: 10, LargeBiomes: true}, params)
	}
}

func TestUpdateConfigDuringInit(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	f := &backendtest.Factory{
		FailConfigure: func(slot int, params backend.Params) error {
			if params.Seed == 3 {
				<-release
			}
			return nil
		},
	}
	s := New(newPool(f, 2), backend.Params{Seed: 3}, WithRenderer(&recordingRenderer{}))
	t.Cleanup(s.Dispose)
	s.Start()

	seed := int64(5)
	done := make(chan error, 1)
	go func() {
		done <- s.UpdateConfig(context.Background(), backend.Update{Seed: &seed})
	}()
	require.Eventually(t, func() bool { return s.Params().Seed == 5 }, waitFor, time.Millisecond)
	close(release)

	require.NoError(t, <-done)
	assert.Equal(t, uint64(1), s.Status().Version)
	for _, b := range f.Backends() {
		params, _ := b.Params()
		assert.Equal(t, int64(5), params.Seed)
	}
}

func TestDeferredUpdateHoldsDispatch(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	hold := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	f := &backendtest.Factory{
		FailConfigure: func(slot int, params backend.Params) error {
			switch params.Seed {
			case 3:
				<-release
			case 5:
				once.Do(func() { close(entered) })
				<-hold
			}
			return nil
		},
	}
	r := &recordingRenderer{}
	s := New(newPool(f, 2), backend.Params{Seed: 3}, WithRenderer(r))
	t.Cleanup(s.Dispose)
	s.Start()

	seed := int64(5)
	done := make(chan error, 1)
	go func() {
		done <- s.UpdateConfig(context.Background(), backend.Update{Seed: &seed})
	}()
	require.Eventually(t, func() bool { return s.Params().Seed == 5 }, waitFor, time.Millisecond)
	close(release)
	<-entered

	task := s.Submit(tile.Coord{})
	require.Never(t, func() bool { return task.State() != StateQueued }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Zero(t, s.Status().Busy)
	assert.Zero(t, f.Calls.Load())

	close(hold)
	require.NoError(t, <-done)
	wait(t, task)
	require.NotNil(t, wait(t, s.Submit(tile.Coord{})))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		assert.Equal(t, biome.ID(5), job.Classes.At(0, 0))
	}
}

func TestUpdateConfigOutlivesCallerContext(t *testing.T) {
	t.Parallel()
	f := &backendtest.Factory{
		FailConfigure: func(slot int, params backend.Params) error {
			if params.Seed == 9 {
				time.Sleep(100 * time.Millisecond)
			}
			return nil
		},
	}
	s, _ := start(t, f, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	seed := int64(9)
	require.ErrorIs(t, s.UpdateConfig(ctx, backend.Update{Seed: &seed}), context.DeadlineExceeded)

	require.Eventually(t, func() bool { return s.Status().Version == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, int64(2), f.Created.Load())
	for _, b := range f.Backends() {
		params, ok := b.Params()
		require.True(t, ok)
		assert.Equal(t, int64(9), params.Seed)
	}
}

func TestFailedReconfigurationResetsPool(t *testing.T) {
	t.Parallel()
	var fail atomic.Bool
	f := &backendtest.Factory{
		FailConfigure: func(slot int, params backend.Params) error {
			if fail.CompareAndSwap(true, false) {
				return backendtest.ErrInjected
			}
			return nil
		},
	}
	s, r := start(t, f, 2)

	fail.Store(true)
	seed := int64(7)
	require.NoError(t, s.UpdateConfig(context.Background(), backend.Update{Seed: &seed}))
	assert.Equal(t, int64(4), f.Created.Load())
	assert.True(t, s.Status().Ready)

	require.NotNil(t, wait(t, s.Submit(tile.Coord{})))
	assert.Equal(t, biome.ID(7), r.last().Classes.At(0, 0))
}

func TestRuntimeFailureRecoversOnce(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	f := &backendtest.Factory{
		Classify: func(ctx context.Context, slot int, region tile.Region) error {
			if calls.Add(1) <= 2 {
				return fmt.Errorf("%w: injected", backend.ErrRuntime)
			}
			return nil
		},
	}
	var rd redraws
	s, _ := start(t, f, 2, WithRedraw(rd.record))

	a := s.Submit(tile.Coord{X: 0})
	b := s.Submit(tile.Coord{X: 1})
	assert.Nil(t, wait(t, a))
	assert.Nil(t, wait(t, b))
	assert.Contains(t, []State{StateFailed, StateStale}, a.State())

	require.Eventually(t, func() bool {
		return f.Created.Load() == 4 && s.Status().Ready && len(rd.list()) == 1
	}, waitFor, time.Millisecond)
	require.Never(t, func() bool { return f.Created.Load() > 4 }, 50*time.Millisecond, 5*time.Millisecond)

	require.NotNil(t, wait(t, s.Submit(tile.Coord{X: 2})))
}

func TestDisposeResolvesEverything(t *testing.T) {
	t.Parallel()
	f := &backendtest.Factory{Gate: make(chan struct{})}
	s, r := start(t, f, 1)

	tasks := []*Task{
		s.Submit(tile.Coord{X: 0}),
		s.Submit(tile.Coord{X: 1}),
		s.Submit(tile.Coord{X: 2}),
	}
	require.Eventually(t, func() bool { return f.Calls.Load() == 1 }, waitFor, time.Millisecond)

	s.Dispose()
	for _, task := range tasks {
		assert.Nil(t, wait(t, task))
		assert.ErrorIs(t, task.Err(), ErrDisposed)
	}
	after := s.Submit(tile.Coord{})
	assert.ErrorIs(t, after.Err(), ErrDisposed)
	assert.ErrorIs(t, s.UpdateConfig(context.Background(), backend.Update{}), ErrDisposed)
	for _, b := range f.Backends() {
		assert.True(t, b.Closed())
	}
	assert.Zero(t, r.calls.Load())
}

func TestInitFailure(t *testing.T) {
	t.Parallel()
	f := &backendtest.Factory{FailCreate: func(int) bool { return true }}
	s := New(newPool(f, 2), backend.DefaultParams())
	t.Cleanup(s.Dispose)

	queued := s.Submit(tile.Coord{})
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.ErrorIs(t, s.WaitReady(ctx), pool.ErrInitFailed)

	assert.Nil(t, wait(t, queued))
	assert.ErrorIs(t, queued.Err(), pool.ErrInitFailed)
	later := s.Submit(tile.Coord{})
	assert.Equal(t, StateFailed, later.State())
	assert.ErrorIs(t, later.Err(), pool.ErrInitFailed)
	assert.True(t, s.Status().Failed)
}

func TestDegradedStart(t *testing.T) {
	t.Parallel()
	f := &backendtest.Factory{FailCreate: func(slot int) bool { return slot != 0 }}
	s, _ := start(t, f, 4)

	st := s.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, 1, st.Members)
	require.NotNil(t, wait(t, s.Submit(tile.Coord{})))
}

func TestResourcesDistributed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "climate.bin"), []byte("table"), 0o644))
	cache := resource.NewCache(resource.DirLoader{Root: dir})
	f := &backendtest.Factory{ResourceKey: "climate.bin"}
	s, _ := start(t, f, 2, WithResources(cache))

	assert.Equal(t, "climate.bin", cache.Committed())
	for _, b := range f.Backends() {
		assert.Equal(t, "climate.bin:table", b.Resource())
	}

	seed := int64(1)
	require.NoError(t, s.UpdateConfig(context.Background(), backend.Update{Seed: &seed}))
	assert.Equal(t, int64(2), f.Resources.Load())
}

func TestCompositorPaintsClasses(t *testing.T) {
	t.Parallel()
	region := tile.Region{BlockWidth: 256, BlockHeight: 256, SampleStride: 4}
	classes := biome.NewGrid(region.Cells())
	for i := range classes.IDs {
		classes.IDs[i] = biome.Plains
	}
	elevation := relief.NewGrid(relief.AreaFor(region, 4))
	for i := range elevation.Values {
		elevation.Values[i] = 80
	}
	elevation.Surface = true

	palette := raster.DefaultPalette()
	c := &Compositor{Assembler: raster.NewAssembler(palette)}
	img := c.Render(Job{
		Region:         region,
		Pixels:         64,
		BlocksPerPixel: 4,
		Classes:        classes,
		Elevation:      elevation,
		View:           View{YLevel: 64},
	})

	want := palette.Color(biome.Plains)
	got := img.NRGBAAt(10, 20)
	assert.Equal(t, [3]uint8{want.R, want.G, want.B}, [3]uint8{got.R, got.G, got.B})
}
