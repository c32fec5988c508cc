package field

import (
	"encoding/binary"
	"fmt"

	"github.com/notargets/gopic/comm"
)

// Bounds is a half open box [lo, hi) per axis in ghosted local indices.
type Bounds [comm.MaxDim][2]int

func (b Bounds) Size() (n int) {
	n = 1
	for d := range b {
		n *= b[d][1] - b[d][0]
	}
	return
}

// HaloCells moves ghost layers between neighboring blocks. For every axis d
// and side s the face index is 2*d+s. Slabs on axis d span the complete
// ghosted extent of the other axes, so exchanging the axes one after another
// also fills edge and corner ghosts.
type HaloCells[T Number] struct {
	nghost  int
	ext     [comm.MaxDim]int
	dim     int
	sized   bool
	halo    [2 * comm.MaxDim]Bounds
	inner   [2 * comm.MaxDim]Bounds
	scratch []T
}

func NewHaloCells[T Number]() *HaloCells[T] {
	return &HaloCells[T]{}
}

// Resize recomputes the face tables for f. Calling it again with an
// unchanged shape does nothing.
func (h *HaloCells[T]) Resize(f *Field[T]) {
	if h.sized && h.nghost == f.nghost && h.ext == f.ext && h.dim == f.Dim() {
		return
	}
	h.nghost, h.ext, h.dim = f.nghost, f.ext, f.Dim()
	for d := 0; d < h.dim; d++ {
		h.halo[2*d] = h.fillBounds(d, 0, 0)
		h.halo[2*d+1] = h.fillBounds(d, 1, 0)
		h.inner[2*d] = h.fillBounds(d, 0, h.nghost)
		h.inner[2*d+1] = h.fillBounds(d, 1, h.nghost)
	}
	h.sized = true
}

// fillBounds returns the slab of width nghost on the given side of axis d,
// moved shift layers towards the interior.
func (h *HaloCells[T]) fillBounds(d, side, shift int) (b Bounds) {
	for dd := 0; dd < comm.MaxDim; dd++ {
		b[dd] = [2]int{0, h.ext[dd]}
	}
	if side == 0 {
		b[d] = [2]int{shift, shift + h.nghost}
	} else {
		b[d] = [2]int{h.ext[d] - h.nghost - shift, h.ext[d] - shift}
	}
	return
}

func (h *HaloCells[T]) LowerHalo(d int) Bounds { return h.halo[2*d] }

func (h *HaloCells[T]) UpperHalo(d int) Bounds { return h.halo[2*d+1] }

func (h *HaloCells[T]) LowerInternal(d int) Bounds { return h.inner[2*d] }

func (h *HaloCells[T]) UpperInternal(d int) Bounds { return h.inner[2*d+1] }

func (h *HaloCells[T]) check(f *Field[T], layout *Layout, nghost int) (err error) {
	if nghost != f.nghost {
		return fmt.Errorf("%w: exchange of %d layers on a field with %d",
			ErrGhostWidth, nghost, f.nghost)
	}
	// Every rank tests every block, so all of them refuse the exchange
	// together instead of leaving neighbors in Recv.
	for r, lDom := range layout.HostLocalDomains() {
		for d := 0; d < layout.Dim(); d++ {
			if lDom[d].Length() < nghost {
				return fmt.Errorf("%w: %d layers on the block of rank %d with %d points along axis %d",
					ErrGhostWidth, nghost, r, lDom[d].Length(), d)
			}
		}
	}
	h.Resize(f)
	return
}

// ExchangeHalo overwrites the ghost layers of f with the owned values of the
// neighboring blocks. Ghosts on a non-periodic global boundary are left as
// they are.
func (h *HaloCells[T]) ExchangeHalo(f *Field[T], layout *Layout, nghost int) (err error) {
	if err = h.check(f, layout, nghost); err != nil || nghost == 0 {
		return
	}
	c := layout.Comm()
	tag := c.NextTag(comm.HaloFaceTag, comm.HaloCycle)
	for d := 0; d < layout.Dim(); d++ {
		if err = h.exchangeAxis(f, layout, d, tag, false); err != nil {
			return
		}
	}
	return
}

// AccumulateHalo is the reverse of ExchangeHalo: the ghost layers of every
// block are added onto the owned values of the neighbor they mirror. Used
// after scattering particle data into ghost cells.
func (h *HaloCells[T]) AccumulateHalo(f *Field[T], layout *Layout, nghost int) (err error) {
	if err = h.check(f, layout, nghost); err != nil || nghost == 0 {
		return
	}
	c := layout.Comm()
	tag := c.NextTag(comm.HaloFaceTag, comm.HaloCycle)
	for d := 0; d < layout.Dim(); d++ {
		if err = h.exchangeAxis(f, layout, d, tag, true); err != nil {
			return
		}
	}
	return
}

// exchangeAxis runs both faces of axis d. A message travelling upward
// carries face tag 2*d+1, downward 2*d.
// For an exchange the sent slab is internal and the received one is halo,
// for an accumulation the roles swap and received values are added.
func (h *HaloCells[T]) exchangeAxis(f *Field[T], layout *Layout, d, tag int,
	accumulate bool) (err error) {
	var (
		c     = layout.Comm()
		lower = layout.Neighbor(d, 0)
		upper = layout.Neighbor(d, 1)
		reqs  []*comm.Request
	)
	from, to := h.inner, h.halo
	if accumulate {
		from, to = h.halo, h.inner
	}
	up, down := 2*d+1, 2*d
	if lower == c.Rank() && upper == c.Rank() {
		// Single block along a periodic axis
		h.copySlab(f, from[up], to[down], accumulate)
		h.copySlab(f, from[down], to[up], accumulate)
		return
	}
	send := func(face, dest int) error {
		if dest < 0 {
			return nil
		}
		buf := h.pack(c, f, from[face], comm.HaloSendBuffer+face)
		req, err := c.Isend(dest, tag+face*comm.HaloCycle, buf)
		if err != nil {
			return err
		}
		reqs = append(reqs, req)
		return nil
	}
	recv := func(face, src int, into Bounds) error {
		if src < 0 {
			return nil
		}
		buf := c.Buffer(comm.HaloRecvBuffer+face, into.Size()*elemSize[T]())
		if err := c.Recv(src, tag+face*comm.HaloCycle, buf); err != nil {
			return err
		}
		return h.unpack(f, buf, into, accumulate)
	}
	if err = send(up, upper); err != nil {
		return
	}
	if err = send(down, lower); err != nil {
		return
	}
	if err = recv(up, lower, to[down]); err != nil {
		return
	}
	if err = recv(down, upper, to[up]); err != nil {
		return
	}
	return c.Waitall(reqs)
}

// FillHalo sets every ghost value of f to v.
func (h *HaloCells[T]) FillHalo(f *Field[T], v T) (err error) {
	h.Resize(f)
	for face := 0; face < 2*h.dim; face++ {
		forEach(f, h.halo[face], func(k int) { f.Data[k] = v })
	}
	return
}

func forEach[T Number](f *Field[T], b Bounds, fn func(k int)) {
	for k := b[2][0]; k < b[2][1]; k++ {
		for j := b[1][0]; j < b[1][1]; j++ {
			for i := b[0][0]; i < b[0][1]; i++ {
				fn(f.Index(i, j, k))
			}
		}
	}
}

func (h *HaloCells[T]) copySlab(f *Field[T], from, to Bounds, accumulate bool) {
	h.scratch = h.scratch[:0]
	forEach(f, from, func(k int) { h.scratch = append(h.scratch, f.Data[k]) })
	n := 0
	forEach(f, to, func(k int) {
		if accumulate {
			f.Data[k] += h.scratch[n]
		} else {
			f.Data[k] = h.scratch[n]
		}
		n++
	})
}

func (h *HaloCells[T]) pack(c *comm.Communicator, f *Field[T], b Bounds, id int) (buf []byte) {
	h.scratch = h.scratch[:0]
	forEach(f, b, func(k int) { h.scratch = append(h.scratch, f.Data[k]) })
	buf = c.Buffer(id, len(h.scratch)*elemSize[T]())
	if _, err := binary.Encode(buf, binary.LittleEndian, h.scratch); err != nil {
		panic(err)
	}
	return
}

func (h *HaloCells[T]) unpack(f *Field[T], buf []byte, b Bounds, accumulate bool) (err error) {
	n := b.Size()
	if cap(h.scratch) < n {
		h.scratch = make([]T, n)
	}
	h.scratch = h.scratch[:n]
	if _, err = binary.Decode(buf, binary.LittleEndian, h.scratch); err != nil {
		return
	}
	i := 0
	forEach(f, b, func(k int) {
		if accumulate {
			f.Data[k] += h.scratch[i]
		} else {
			f.Data[k] = h.scratch[i]
		}
		i++
	})
	return
}

func elemSize[T Number]() int {
	var v T
	return binary.Size(v)
}
