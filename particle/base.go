package particle

import (
	"fmt"

	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/types"
)

// InvalidID marks a slot whose particle has left the rank.
const InvalidID int64 = -1

// Base is the rank local particle collection. Every particle has an ID and
// a position R; further attributes are registered with AddAttribute and
// travel with the particle in registration order.
type Base struct {
	ID *Attrib[int64]
	R  *Attrib[types.Vector]

	comm     *comm.Communicator
	dim      int
	attribs  []Attribute
	localNum int
	created  int64 // IDs handed out by this rank so far
}

func NewBase(c *comm.Communicator, dim int) (p *Base) {
	p = &Base{
		ID:   NewAttrib[int64]("ID"),
		R:    NewAttrib[types.Vector]("R"),
		comm: c,
		dim:  dim,
	}
	p.attribs = []Attribute{p.ID, p.R}
	return
}

func (p *Base) Comm() *comm.Communicator { return p.comm }

func (p *Base) Dim() int { return p.dim }

// AddAttribute registers a and sizes it to the current particle count.
func (p *Base) AddAttribute(a Attribute) error {
	for _, b := range p.attribs {
		if b.Name() == a.Name() {
			return fmt.Errorf("attribute %s already registered", a.Name())
		}
	}
	a.Resize(p.localNum)
	p.attribs = append(p.attribs, a)
	return nil
}

func (p *Base) Attributes() []Attribute { return p.attribs }

func (p *Base) LocalNum() int { return p.localNum }

// TotalNum is the particle count summed over all ranks. Collective.
func (p *Base) TotalNum() (int, error) {
	n, err := p.comm.AllreduceInt64(int64(p.localNum), comm.Sum)
	return int(n), err
}

// Create appends n particles with zeroed attributes. IDs are unique across
// ranks: rank r hands out r, r+size, r+2*size...
func (p *Base) Create(n int) {
	old := p.localNum
	p.resize(old + n)
	rank, size := int64(p.comm.Rank()), int64(p.comm.Size())
	for i := old; i < old+n; i++ {
		p.ID.Data[i] = rank + size*p.created
		p.created++
	}
}

func (p *Base) resize(n int) {
	for _, a := range p.attribs {
		a.Resize(n)
	}
	p.localNum = n
}

// Destroy removes the count particles flagged in invalid. Holes below the
// surviving count are filled from the valid particles at the tail, so the
// pass is O(n) and the order of survivors is not kept.
func (p *Base) Destroy(invalid []bool, count int) (err error) {
	if len(invalid) != p.localNum {
		return fmt.Errorf("invalid flags cover %d particles, have %d", len(invalid), p.localNum)
	}
	keep := p.localNum - count
	if count < 0 || keep < 0 {
		return fmt.Errorf("cannot destroy %d of %d particles", count, p.localNum)
	}
	tail := p.localNum - 1
	for i := 0; i < keep; i++ {
		if !invalid[i] {
			continue
		}
		for tail >= keep && invalid[tail] {
			tail--
		}
		if tail < keep {
			return fmt.Errorf("%d particles flagged invalid, expected %d", countTrue(invalid), count)
		}
		for _, a := range p.attribs {
			a.Move(i, tail)
		}
		tail--
	}
	for ; tail >= keep; tail-- {
		if !invalid[tail] {
			return fmt.Errorf("%d particles flagged invalid, expected %d", countTrue(invalid), count)
		}
	}
	p.resize(keep)
	return
}

func countTrue(b []bool) (n int) {
	for _, v := range b {
		if v {
			n++
		}
	}
	return
}

// PackedSize is the message size in bytes of n particles.
func (p *Base) PackedSize(n int) (size int) {
	for _, a := range p.attribs {
		size += n * a.ElemSize()
	}
	return
}

// Pack appends the particles at the indices of hash to dst, attribute after
// attribute.
func (p *Base) Pack(dst []byte, hash []int) (out []byte, err error) {
	out = dst
	for _, a := range p.attribs {
		if out, err = a.Pack(out, hash); err != nil {
			return
		}
	}
	return
}

// Unpack appends n particles decoded from buf, which must hold exactly
// PackedSize(n) bytes.
func (p *Base) Unpack(buf []byte, n int) (err error) {
	if len(buf) != p.PackedSize(n) {
		return fmt.Errorf("%w: %d particles need %d bytes, have %d",
			comm.ErrSizeMismatch, n, p.PackedSize(n), len(buf))
	}
	rest := buf
	for _, a := range p.attribs {
		if rest, err = a.Unpack(rest, n); err != nil {
			return
		}
	}
	p.localNum += n
	return
}
