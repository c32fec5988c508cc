// Package field holds the structured grid side of the framework: index
// domains, the decomposition of a global domain over ranks, the uniform
// mesh mapping indices to physical space, ghosted fields and their halo
// exchange.
package field

import (
	"fmt"
	"strings"
)

// Index is an inclusive range [First, Last] of global grid indices along
// one axis.
type Index struct {
	First, Last int
}

// NewIndex returns the range [0, n-1].
func NewIndex(n int) Index {
	return Index{0, n - 1}
}

func (ix Index) Length() int {
	return ix.Last - ix.First + 1
}

func (ix Index) Contains(i int) bool {
	return i >= ix.First && i <= ix.Last
}

// NDIndex is one Index per axis.
type NDIndex []Index

// NewNDIndex returns the domain [0,n_d-1] along every axis.
func NewNDIndex(n ...int) (nd NDIndex) {
	nd = make(NDIndex, len(n))
	for d, nn := range n {
		nd[d] = NewIndex(nn)
	}
	return
}

func (nd NDIndex) Dim() int { return len(nd) }

// Size is the number of grid points in the domain.
func (nd NDIndex) Size() (n int) {
	n = 1
	for _, ix := range nd {
		n *= ix.Length()
	}
	return
}

func (nd NDIndex) Lengths() (n []int) {
	n = make([]int, len(nd))
	for d, ix := range nd {
		n[d] = ix.Length()
	}
	return
}

// Contains reports whether the global multi-index lies inside nd.
func (nd NDIndex) Contains(idx ...int) bool {
	if len(idx) != len(nd) {
		return false
	}
	for d, i := range idx {
		if !nd[d].Contains(i) {
			return false
		}
	}
	return true
}

// Intersect returns the overlap of two domains and whether it is non-empty.
func (nd NDIndex) Intersect(other NDIndex) (res NDIndex, ok bool) {
	if len(nd) != len(other) {
		return nil, false
	}
	res = make(NDIndex, len(nd))
	for d := range nd {
		res[d] = Index{max(nd[d].First, other[d].First), min(nd[d].Last, other[d].Last)}
		if res[d].First > res[d].Last {
			return nil, false
		}
	}
	return res, true
}

func (nd NDIndex) Equal(other NDIndex) bool {
	if len(nd) != len(other) {
		return false
	}
	for d := range nd {
		if nd[d] != other[d] {
			return false
		}
	}
	return true
}

func (nd NDIndex) String() string {
	parts := make([]string, len(nd))
	for d, ix := range nd {
		parts[d] = fmt.Sprintf("[%d:%d]", ix.First, ix.Last)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
