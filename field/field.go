package field

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gopic/comm"
)

var (
	ErrGhostWidth    = errors.New("invalid ghost width")
	ErrShapeMismatch = errors.New("field shapes do not match")
)

// Number is the set of element types a Field can hold and exchange.
type Number interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~complex64 | ~complex128
}

// Field is the local block of a distributed array, padded with nghost ghost
// layers on both sides of every axis of the layout. Storage is flat with
// axis 0 varying fastest; unused trailing axes have extent one.
type Field[T Number] struct {
	Data   []T
	layout *Layout
	mesh   *Mesh
	nghost int
	ext    [comm.MaxDim]int
	stride [comm.MaxDim]int
	halo   *HaloCells[T]
}

func NewField[T Number](mesh *Mesh, layout *Layout, nghost int) (f *Field[T], err error) {
	if nghost < 0 {
		err = fmt.Errorf("%w: %d", ErrGhostWidth, nghost)
		return
	}
	if mesh.Dim() != layout.Dim() {
		err = fmt.Errorf("%w: mesh dimension %d, layout dimension %d",
			ErrShapeMismatch, mesh.Dim(), layout.Dim())
		return
	}
	f = &Field[T]{
		layout: layout,
		mesh:   mesh,
		nghost: nghost,
	}
	lDom := layout.LocalNDIndex()
	size := 1
	for d := 0; d < comm.MaxDim; d++ {
		f.ext[d] = 1
		if d < layout.Dim() {
			f.ext[d] = lDom[d].Length() + 2*nghost
		}
		f.stride[d] = size
		size *= f.ext[d]
	}
	f.Data = make([]T, size)
	return
}

// NewFieldLike allocates a field of another element type on the same mesh,
// layout and ghost width as f.
func NewFieldLike[T, U Number](f *Field[U]) (*Field[T], error) {
	return NewField[T](f.mesh, f.layout, f.nghost)
}

func (f *Field[T]) Layout() *Layout { return f.layout }

func (f *Field[T]) Mesh() *Mesh { return f.mesh }

func (f *Field[T]) Nghost() int { return f.nghost }

func (f *Field[T]) Dim() int { return f.layout.Dim() }

// Extents of the ghosted local storage.
func (f *Field[T]) Extents() [comm.MaxDim]int { return f.ext }

// InteriorSize is the number of owned, non-ghost points.
func (f *Field[T]) InteriorSize() int {
	return f.layout.LocalNDIndex().Size()
}

// Index maps ghosted local indices (ghost layers start at 0) to the flat
// storage offset. Missing trailing indices are zero.
func (f *Field[T]) Index(idx ...int) (k int) {
	for d, i := range idx {
		k += i * f.stride[d]
	}
	return
}

func (f *Field[T]) At(idx ...int) T { return f.Data[f.Index(idx...)] }

func (f *Field[T]) Set(v T, idx ...int) { f.Data[f.Index(idx...)] = v }

// Fill sets every element, ghosts included.
func (f *Field[T]) Fill(v T) {
	for i := range f.Data {
		f.Data[i] = v
	}
}

// InteriorBounds is the owned block in ghosted local indices.
func (f *Field[T]) InteriorBounds() (b Bounds) {
	for d := 0; d < comm.MaxDim; d++ {
		b[d] = [2]int{0, 1}
		if d < f.Dim() {
			b[d] = [2]int{f.nghost, f.ext[d] - f.nghost}
		}
	}
	return
}

// ForEachInterior visits the owned points in storage order. local holds the
// ghosted local indices, global the global grid indices.
func (f *Field[T]) ForEachInterior(fn func(k int, local, global [comm.MaxDim]int)) {
	var (
		b    = f.InteriorBounds()
		lDom = f.layout.LocalNDIndex()
		off  [comm.MaxDim]int
	)
	for d := 0; d < f.Dim(); d++ {
		off[d] = lDom[d].First - f.nghost
	}
	for k := b[2][0]; k < b[2][1]; k++ {
		for j := b[1][0]; j < b[1][1]; j++ {
			for i := b[0][0]; i < b[0][1]; i++ {
				local := [comm.MaxDim]int{i, j, k}
				global := [comm.MaxDim]int{i + off[0], j + off[1], k + off[2]}
				fn(f.Index(i, j, k), local, global)
			}
		}
	}
}

// CopyInterior writes the owned points into dst, ghost free and contiguous
// with axis 0 fastest.
func (f *Field[T]) CopyInterior(dst []T) (err error) {
	if len(dst) != f.InteriorSize() {
		return fmt.Errorf("%w: interior has %d points, buffer %d",
			ErrShapeMismatch, f.InteriorSize(), len(dst))
	}
	n := 0
	f.ForEachInterior(func(k int, _, _ [comm.MaxDim]int) {
		dst[n] = f.Data[k]
		n++
	})
	return
}

// SetInterior is the inverse of CopyInterior; ghosts are untouched.
func (f *Field[T]) SetInterior(src []T) (err error) {
	if len(src) != f.InteriorSize() {
		return fmt.Errorf("%w: interior has %d points, buffer %d",
			ErrShapeMismatch, f.InteriorSize(), len(src))
	}
	n := 0
	f.ForEachInterior(func(k int, _, _ [comm.MaxDim]int) {
		f.Data[k] = src[n]
		n++
	})
	return
}

// Halo returns the halo engine of the field, sized for its ghost width.
func (f *Field[T]) Halo() *HaloCells[T] {
	if f.halo == nil {
		f.halo = NewHaloCells[T]()
	}
	return f.halo
}

func (f *Field[T]) ExchangeHalo() error {
	return f.Halo().ExchangeHalo(f, f.layout, f.nghost)
}

func (f *Field[T]) AccumulateHalo() error {
	return f.Halo().AccumulateHalo(f, f.layout, f.nghost)
}

func (f *Field[T]) FillHalo(v T) error {
	return f.Halo().FillHalo(f, v)
}

// Sum returns the global sum of the owned points of a real field.
func Sum(f *Field[float64]) (float64, error) {
	buf := make([]float64, f.InteriorSize())
	if err := f.CopyInterior(buf); err != nil {
		return 0, err
	}
	return f.layout.Comm().AllreduceFloat64(floats.Sum(buf), comm.Sum)
}

// MaxAbs returns the global max norm of the owned points of a real field.
func MaxAbs(f *Field[float64]) (float64, error) {
	var local float64
	buf := make([]float64, f.InteriorSize())
	if err := f.CopyInterior(buf); err != nil {
		return 0, err
	}
	if len(buf) != 0 {
		local = max(floats.Max(buf), -floats.Min(buf))
	}
	return f.layout.Comm().AllreduceFloat64(local, comm.Max)
}
