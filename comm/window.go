package comm

import "fmt"

type sharedWindow struct {
	data [][]int64 // One table per rank
	refs int
}

// Window is a small table of int64 on every rank that any rank may write
// into with Put. Access is only well defined between two fences: every rank
// calls Fence, then issues its puts, then calls Fence again, after which each
// rank reads its own table with Local.
type Window struct {
	c      *Communicator
	id     int
	shared *sharedWindow
}

// NewWindow collectively creates a window of n entries per rank. All ranks
// must create windows in the same order.
func (c *Communicator) NewWindow(n int) (win *Window, err error) {
	if n < 0 {
		err = fmt.Errorf("window size must be non-negative, have %d", n)
		return
	}
	w := c.world
	id := c.winSeq
	c.winSeq++
	w.mu.Lock()
	sw, ok := w.windows[id]
	if !ok {
		sw = &sharedWindow{data: make([][]int64, w.size)}
		w.windows[id] = sw
	}
	sw.data[c.rank] = make([]int64, n)
	sw.refs++
	w.mu.Unlock()
	win = &Window{c: c, id: id, shared: sw}
	return
}

// Fence is a collective synchronization point for the window.
func (win *Window) Fence() error {
	return win.c.Barrier()
}

// Put writes value into entry disp of target's table.
func (win *Window) Put(value int64, target, disp int) (err error) {
	if err = win.c.checkRank(target); err != nil {
		return
	}
	w := win.c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	tbl := win.shared.data[target]
	if tbl == nil {
		return fmt.Errorf("rank %d has not joined window %d", target, win.id)
	}
	if disp < 0 || disp >= len(tbl) {
		return fmt.Errorf("window displacement %d out of range [0,%d)", disp, len(tbl))
	}
	tbl[disp] = value
	return
}

// Local returns this rank's table. Only read it after a closing fence.
func (win *Window) Local() []int64 {
	w := win.c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	return win.shared.data[win.c.rank]
}

// Free releases this rank's reference; the shared table is dropped once all
// ranks have freed it.
func (win *Window) Free() {
	w := win.c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	win.shared.refs--
	if win.shared.refs == 0 {
		delete(w.windows, win.id)
	}
}
