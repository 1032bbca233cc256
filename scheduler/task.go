package scheduler

import (
	"context"
	"image"
	"sync/atomic"

	"github.com/eak1mov/go-seedtiles/tile"
)

// State is the lifecycle stage of a Task.
type State int32

const (
	StateQueued State = iota
	StateDispatched
	// StateDone tasks carry an image.
	StateDone
	// StateStale tasks were superseded by a view change or reconfiguration.
	StateStale
	// StateFailed tasks could not be rendered; Err tells why.
	StateFailed
)

var stateNames = [...]string{"queued", "dispatched", "done", "stale", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) Resolved() bool {
	return s >= StateDone
}

// Task is one tile request. It resolves exactly once, with an image or
// without one.
type Task struct {
	ID      uint64
	Coord   tile.Coord
	Region  tile.Region
	Epoch   uint64
	Version uint64

	state  atomic.Int32
	done   chan struct{}
	image  *image.NRGBA
	err    error
	onDone func(*Task)
}

func newTask(id uint64, c tile.Coord, r tile.Region, epoch, version uint64, onDone func(*Task)) *Task {
	return &Task{
		ID:      id,
		Coord:   c,
		Region:  r,
		Epoch:   epoch,
		Version: version,
		done:    make(chan struct{}),
		onDone:  onDone,
	}
}

func (t *Task) State() State {
	return State(t.state.Load())
}

func (t *Task) dispatch() bool {
	return t.state.CompareAndSwap(int32(StateQueued), int32(StateDispatched))
}

// resolve settles the task. Only the first call has any effect.
func (t *Task) resolve(state State, img *image.NRGBA, err error) bool {
	for {
		cur := t.state.Load()
		if State(cur).Resolved() {
			return false
		}
		if t.state.CompareAndSwap(cur, int32(state)) {
			break
		}
	}
	t.image, t.err = img, err
	close(t.done)
	if t.onDone != nil {
		t.onDone(t)
	}
	return true
}

// Done is closed when the task resolves.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result returns the rendered tile, or nil when the task resolved without
// one or has not resolved yet.
func (t *Task) Result() *image.NRGBA {
	select {
	case <-t.done:
		return t.image
	default:
		return nil
	}
}

// Err returns the failure cause of a StateFailed task.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task resolves or ctx ends.
func (t *Task) Wait(ctx context.Context) (*image.NRGBA, error) {
	select {
	case <-t.done:
		return t.image, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
