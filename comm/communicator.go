package comm

import (
	"errors"
	"fmt"
)

var (
	ErrAborted         = errors.New("communicator aborted")
	ErrMessageTooLarge = errors.New("message exceeds transport size limit")
	ErrSizeMismatch    = errors.New("received message size does not match expected size")
	ErrRankOutOfRange  = errors.New("rank out of range")
)

// Communicator is the per rank handle into a World. It is the explicit
// context passed to every component that communicates; a Communicator must
// only be used from the goroutine of its own rank.
type Communicator struct {
	world   *World
	rank    int
	tags    map[int]int
	buffers map[int][]byte
	winSeq  int
}

func newCommunicator(w *World, rank int) *Communicator {
	return &Communicator{
		world:   w,
		rank:    rank,
		tags:    make(map[int]int),
		buffers: make(map[int][]byte),
	}
}

func (c *Communicator) Rank() int { return c.rank }

func (c *Communicator) Size() int { return c.world.size }

func (c *Communicator) MaxMessageSize() int { return c.world.maxMessageSize }

// Abort fails the whole world; see World.Abort.
func (c *Communicator) Abort(cause error) { c.world.Abort(cause) }

// Request tracks an outstanding non-blocking send.
type Request struct {
	dest, tag int
	done      chan struct{}
}

// Isend posts buf to dest. The transport owns buf until the request has
// completed, the caller must not modify it before Waitall returns.
func (c *Communicator) Isend(dest, tag int, buf []byte) (req *Request, err error) {
	if err = c.checkRank(dest); err != nil {
		return
	}
	if len(buf) > c.world.maxMessageSize {
		err = fmt.Errorf("%w: %d bytes from rank %d to rank %d, limit %d",
			ErrMessageTooLarge, len(buf), c.rank, dest, c.world.maxMessageSize)
		return
	}
	if err = c.world.abortError(); err != nil {
		return
	}
	req = &Request{
		dest: dest,
		tag:  tag,
		done: make(chan struct{}),
	}
	c.world.boxes[dest].post(c.rank, tag, &message{data: buf, done: req.done})
	return
}

// Recv blocks until the next message from src with tag arrives and copies it
// into buf. The message size must equal len(buf).
func (c *Communicator) Recv(src, tag int, buf []byte) (err error) {
	var msg *message
	if err = c.checkRank(src); err != nil {
		return
	}
	if msg, err = c.world.boxes[c.rank].take(c.world, src, tag); err != nil {
		return
	}
	defer close(msg.done)
	if len(msg.data) != len(buf) {
		err = fmt.Errorf("%w: rank %d expected %d bytes from rank %d (tag %d), got %d",
			ErrSizeMismatch, c.rank, len(buf), src, tag, len(msg.data))
		return
	}
	copy(buf, msg.data)
	return
}

// Waitall blocks until every request has been consumed by its receiver.
func (c *Communicator) Waitall(reqs []*Request) (err error) {
	for _, req := range reqs {
		if req == nil {
			continue
		}
		select {
		case <-req.done:
		case <-c.world.aborted:
			return c.world.abortError()
		}
	}
	return
}

// Barrier blocks until every rank of the world has entered it.
func (c *Communicator) Barrier() error {
	return c.world.barrier.wait(c.world)
}

// NextTag draws the next tag of the pool starting at base. Tags cycle
// through base, base+1, ..., base+cycle-1 so that a new round never reuses
// the tag of the round before it. Every rank must draw from a pool in the
// same sequence.
func (c *Communicator) NextTag(base, cycle int) (tag int) {
	if cycle < 1 {
		cycle = 1
	}
	tag = base + c.tags[base]%cycle
	c.tags[base]++
	return
}

// Buffer returns a reusable byte buffer of exactly size bytes for the given
// buffer id. Contents are not cleared. Capacity grows by an over-allocation
// factor so that buffers settle after a few rounds.
func (c *Communicator) Buffer(id, size int) []byte {
	buf := c.buffers[id]
	if cap(buf) < size {
		buf = make([]byte, size, size+size/4)
		c.buffers[id] = buf
	}
	return buf[:size]
}

// Pending reports how many messages are queued for this rank and not yet
// received.
func (c *Communicator) Pending() int {
	return c.world.boxes[c.rank].pending()
}

func (c *Communicator) checkRank(r int) error {
	if r < 0 || r >= c.world.size {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrRankOutOfRange, r, c.world.size)
	}
	return nil
}
