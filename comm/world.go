// Package comm is the message passing layer shared by the field, particle
// and transform packages. A World is a fixed set of ranks that run as
// goroutines inside one process; each rank talks to the others only
// through its Communicator, never through shared particle or field storage.
//
// The call pattern mirrors MPI: point to point messages are matched on
// {source, tag}, sends are non-blocking and complete once the receiver has
// consumed them, and collectives (Barrier, Window fences, Allgather) must be
// entered by every rank of the world in the same order.
package comm

import (
	"fmt"
	"math"
	"sync"
)

// DefaultMaxMessageSize is the largest message the transport will carry,
// matching the 32 bit count limit of MPI.
const DefaultMaxMessageSize = math.MaxInt32

type World struct {
	size           int
	maxMessageSize int
	comms          []*Communicator
	boxes          []*mailbox
	barrier        *barrier

	mu      sync.Mutex // Guards windows and slots
	windows map[int]*sharedWindow
	slots   [][]byte

	abortMu  sync.Mutex
	abortErr error
	aborted  chan struct{}
}

type WorldOption func(w *World)

// WithMaxMessageSize overrides the transport message ceiling, mostly useful
// for exercising the size checks in tests.
func WithMaxMessageSize(n int) WorldOption {
	return func(w *World) {
		w.maxMessageSize = n
	}
}

// NewWorld creates a world of size ranks. Communicators are created up front
// and live for the lifetime of the world.
func NewWorld(size int, opts ...WorldOption) (w *World) {
	if size < 1 {
		panic(fmt.Sprintf("world size must be positive, have %d", size))
	}
	w = &World{
		size:           size,
		maxMessageSize: DefaultMaxMessageSize,
		comms:          make([]*Communicator, size),
		boxes:          make([]*mailbox, size),
		barrier:        newBarrier(size),
		windows:        make(map[int]*sharedWindow),
		slots:          make([][]byte, size),
		aborted:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	for r := 0; r < size; r++ {
		w.boxes[r] = newMailbox()
		w.comms[r] = newCommunicator(w, r)
	}
	return
}

func (w *World) Size() int { return w.size }

// Comm returns the communicator of a rank, for callers that drive ranks
// themselves instead of using Run.
func (w *World) Comm(rank int) *Communicator {
	return w.comms[rank]
}

// Run executes fn once per rank, each on its own goroutine, and waits for all
// of them. A rank that returns an error or panics aborts the world so that
// peers blocked in the transport are released. The first error in rank order
// is returned, preferring the error that caused an abort.
func (w *World) Run(fn func(c *Communicator) error) (err error) {
	var (
		wg   = sync.WaitGroup{}
		errs = make([]error, w.size)
	)
	for r := 0; r < w.size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					errs[r] = fmt.Errorf("rank %d panicked: %v", r, p)
					w.Abort(errs[r])
				}
			}()
			if errs[r] = fn(w.comms[r]); errs[r] != nil {
				w.Abort(errs[r])
			}
		}(r)
	}
	wg.Wait()
	if cause := w.abortCause(); cause != nil {
		return cause
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// Abort marks the world as failed and wakes every rank blocked in a receive,
// barrier, fence or wait. Only the first cause is kept.
func (w *World) Abort(cause error) {
	w.abortMu.Lock()
	if w.abortErr != nil {
		w.abortMu.Unlock()
		return
	}
	if cause == nil {
		cause = fmt.Errorf("abort requested")
	}
	w.abortErr = cause
	close(w.aborted)
	w.abortMu.Unlock()

	for _, mb := range w.boxes {
		mb.wake()
	}
	w.barrier.wake()
}

func (w *World) abortCause() error {
	w.abortMu.Lock()
	defer w.abortMu.Unlock()
	return w.abortErr
}

func (w *World) abortError() error {
	if cause := w.abortCause(); cause != nil {
		return fmt.Errorf("%w: %w", ErrAborted, cause)
	}
	return nil
}

type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	size  int
	count int
	gen   int
}

func newBarrier(size int) (b *barrier) {
	b = &barrier{size: size}
	b.cond = sync.NewCond(&b.mu)
	return
}

func (b *barrier) wait(w *World) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := w.abortError(); err != nil {
		return err
	}
	gen := b.gen
	b.count++
	if b.count == b.size {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return nil
	}
	for gen == b.gen {
		if err := w.abortError(); err != nil {
			return err
		}
		b.cond.Wait()
	}
	return nil
}

func (b *barrier) wake() {
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}
