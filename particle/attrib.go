// Package particle holds the rank local particle collection and the spatial
// layout that keeps each particle on the rank owning its position.
package particle

import (
	"encoding/binary"
	"fmt"
)

// Elem is the set of element types an attribute can carry. All of them have
// a fixed wire size.
type Elem interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~complex128 | ~[3]float64
}

// Attribute is one array of a structure of arrays particle collection. A
// message carries every attribute as a little endian block of fixed size
// elements.
type Attribute interface {
	Name() string
	Len() int
	Resize(n int)
	ElemSize() int
	// Pack appends the elements at the indices of hash to dst.
	Pack(dst []byte, hash []int) ([]byte, error)
	// Unpack appends n elements decoded from src and returns the rest of src.
	Unpack(src []byte, n int) (rest []byte, err error)
	// Move copies element src onto element dst.
	Move(dst, src int)
}

type Attrib[T Elem] struct {
	name    string
	Data    []T
	scratch []T
}

func NewAttrib[T Elem](name string) *Attrib[T] {
	return &Attrib[T]{name: name}
}

func (a *Attrib[T]) Name() string { return a.name }

func (a *Attrib[T]) Len() int { return len(a.Data) }

// Resize grows with zero values or truncates.
func (a *Attrib[T]) Resize(n int) {
	if n <= cap(a.Data) {
		old := len(a.Data)
		a.Data = a.Data[:n]
		var zero T
		for i := old; i < n; i++ {
			a.Data[i] = zero
		}
		return
	}
	data := make([]T, n, n+n/4)
	copy(data, a.Data)
	a.Data = data
}

func (a *Attrib[T]) ElemSize() int {
	var v T
	return binary.Size(v)
}

func (a *Attrib[T]) Pack(dst []byte, hash []int) (out []byte, err error) {
	a.scratch = a.scratch[:0]
	for _, i := range hash {
		a.scratch = append(a.scratch, a.Data[i])
	}
	if out, err = binary.Append(dst, binary.LittleEndian, a.scratch); err != nil {
		err = fmt.Errorf("packing attribute %s: %w", a.name, err)
	}
	return
}

func (a *Attrib[T]) Unpack(src []byte, n int) (rest []byte, err error) {
	size := n * a.ElemSize()
	if len(src) < size {
		err = fmt.Errorf("attribute %s needs %d bytes for %d elements, have %d",
			a.name, size, n, len(src))
		return
	}
	old := len(a.Data)
	a.Resize(old + n)
	if _, err = binary.Decode(src[:size], binary.LittleEndian, a.Data[old:]); err != nil {
		err = fmt.Errorf("unpacking attribute %s: %w", a.name, err)
		return
	}
	rest = src[size:]
	return
}

func (a *Attrib[T]) Move(dst, src int) { a.Data[dst] = a.Data[src] }
