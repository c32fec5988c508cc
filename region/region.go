// Package region maps the index blocks of a field layout to the physical
// boxes owned by each rank.
package region

import (
	"fmt"
	"math"

	"github.com/notargets/gopic/field"
	"github.com/notargets/gopic/types"
)

// Region is a closed axis aligned box. Only the first Dim components of Min
// and Max are meaningful.
type Region struct {
	Min, Max types.Vector
	Dim      int
}

// Contains tests membership on closed intervals along every used axis.
func (r Region) Contains(x types.Vector) bool {
	for d := 0; d < r.Dim; d++ {
		if x[d] < r.Min[d] || x[d] > r.Max[d] {
			return false
		}
	}
	return true
}

// Distance2 is the squared distance from x to the box, zero inside.
func (r Region) Distance2(x types.Vector) (dist2 float64) {
	for d := 0; d < r.Dim; d++ {
		var dx float64
		switch {
		case x[d] < r.Min[d]:
			dx = r.Min[d] - x[d]
		case x[d] > r.Max[d]:
			dx = x[d] - r.Max[d]
		}
		dist2 += dx * dx
	}
	return
}

// Clamp returns the point of the box closest to x.
func (r Region) Clamp(x types.Vector) (y types.Vector) {
	y = x
	for d := 0; d < r.Dim; d++ {
		y[d] = math.Min(math.Max(x[d], r.Min[d]), r.Max[d])
	}
	return
}

func (r Region) Length(d int) float64 { return r.Max[d] - r.Min[d] }

func (r Region) String() string {
	s := "{"
	for d := 0; d < r.Dim; d++ {
		if d > 0 {
			s += ","
		}
		s += fmt.Sprintf("[%g,%g]", r.Min[d], r.Max[d])
	}
	return s + "}"
}

// RegionLayout holds the region of every rank, replicated on all ranks. It
// is read only after construction.
type RegionLayout struct {
	dim     int
	regions []Region
	domain  Region
}

// NewRegionLayout converts the index blocks of layout to physical boxes.
// Block [first, last] along axis d covers [x(first), x(last+1)], so that
// neighboring regions share their faces and the union is the whole domain.
func NewRegionLayout(layout *field.Layout, mesh *field.Mesh) (rl *RegionLayout, err error) {
	if layout.Dim() != mesh.Dim() {
		err = fmt.Errorf("%w: layout dimension %d, mesh dimension %d",
			field.ErrShapeMismatch, layout.Dim(), mesh.Dim())
		return
	}
	rl = &RegionLayout{
		dim:     layout.Dim(),
		regions: make([]Region, len(layout.HostLocalDomains())),
	}
	for r, nd := range layout.HostLocalDomains() {
		rl.regions[r] = toRegion(nd, mesh)
	}
	rl.domain = toRegion(layout.Domain(), mesh)
	return
}

func toRegion(nd field.NDIndex, mesh *field.Mesh) (r Region) {
	r.Dim = nd.Dim()
	for d, ix := range nd {
		r.Min[d] = mesh.Position(d, ix.First)
		r.Max[d] = mesh.Position(d, ix.Last+1)
	}
	return
}

func (rl *RegionLayout) Dim() int { return rl.dim }

func (rl *RegionLayout) NumRegions() int { return len(rl.regions) }

func (rl *RegionLayout) RegionFor(rank int) Region { return rl.regions[rank] }

// AllRegions is indexed by rank. The slice is shared and must not be
// modified.
func (rl *RegionLayout) AllRegions() []Region { return rl.regions }

// Domain is the global box, the union of all regions.
func (rl *RegionLayout) Domain() Region { return rl.domain }

// Find returns the first rank whose region contains x, or -1.
func (rl *RegionLayout) Find(x types.Vector) int {
	for r := range rl.regions {
		if rl.regions[r].Contains(x) {
			return r
		}
	}
	return -1
}

// Nearest returns the rank whose region is closest to x, lowest rank on a
// tie.
func (rl *RegionLayout) Nearest(x types.Vector) (rank int) {
	best := math.Inf(1)
	for r := range rl.regions {
		if d2 := rl.regions[r].Distance2(x); d2 < best {
			best, rank = d2, r
		}
	}
	return
}
