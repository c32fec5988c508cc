package particle

import (
	"fmt"
	"math"

	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/field"
	"github.com/notargets/gopic/types"
	"github.com/notargets/gopic/utils"
)

// Cloud in cell weights. Field element i holds the value at the center of
// cell i, x_i + h/2, so a particle touches the two elements whose centers
// bracket it along every axis. A particle anywhere in the region of its rank
// touches at most one ghost layer on each side.

type cicStencil struct {
	args [comm.MaxDim]int // Ghosted index of the upper corner
	whi  [comm.MaxDim]float64
}

func newStencil(x types.Vector, f *field.Field[float64]) (st cicStencil, err error) {
	var (
		mesh = f.Mesh()
		lDom = f.Layout().LocalNDIndex()
		ext  = f.Extents()
	)
	for d := 0; d < f.Dim(); d++ {
		l := (x[d]-mesh.Origin[d])/mesh.Spacing[d] + 0.5
		index := math.Floor(l)
		st.whi[d] = l - index
		st.args[d] = int(index) - lDom[d].First + f.Nghost()
		if st.args[d] < 1 || st.args[d] >= ext[d] {
			err = fmt.Errorf("%w: position %v needs elements outside the ghosted block along axis %d",
				ErrConsistency, x, d)
			return
		}
	}
	return
}

// corners enumerates the 2^dim stencil points with their weights.
func (st cicStencil) corners(dim int, fn func(i, j, k int, w float64)) {
	for c := 0; c < 1<<dim; c++ {
		var (
			idx [comm.MaxDim]int
			w   = 1.
		)
		for d := 0; d < dim; d++ {
			bit := (c >> d) & 1
			idx[d] = st.args[d] - 1 + bit
			if bit == 1 {
				w *= st.whi[d]
			} else {
				w *= 1 - st.whi[d]
			}
		}
		fn(idx[0], idx[1], idx[2], w)
	}
}

// ScatterCIC adds the attribute q of every particle onto f with cloud in cell
// weights, then folds the ghost contributions into the owning ranks with
// AccumulateHalo. Collective over the ranks of f.
func ScatterCIC(p *Base, q *Attrib[float64], f *field.Field[float64]) (err error) {
	if err = f.FillHalo(0); err != nil {
		return
	}
	for i := 0; i < p.LocalNum(); i++ {
		var st cicStencil
		if st, err = newStencil(p.R.Data[i], f); err != nil {
			f.Layout().Comm().Abort(err)
			return
		}
		val := q.Data[i]
		st.corners(f.Dim(), func(i, j, k int, w float64) {
			f.Data[f.Index(i, j, k)] += w * val
		})
	}
	return f.AccumulateHalo()
}

// GatherCIC interpolates f onto the attribute q of every particle, after
// refreshing the ghost layers of f. Collective over the ranks of f.
func GatherCIC(p *Base, q *Attrib[float64], f *field.Field[float64], ProcLimit int) (err error) {
	if err = f.ExchangeHalo(); err != nil {
		return
	}
	q.Resize(p.LocalNum())
	failed := utils.ParallelReduceInt(ProcLimit, p.LocalNum(), func(kMin, kMax int) (nf int) {
		for n := kMin; n < kMax; n++ {
			st, err := newStencil(p.R.Data[n], f)
			if err != nil {
				nf++
				continue
			}
			var val float64
			st.corners(f.Dim(), func(i, j, k int, w float64) {
				val += w * f.Data[f.Index(i, j, k)]
			})
			q.Data[n] = val
		}
		return
	})
	if failed > 0 {
		err = fmt.Errorf("%w: %d particles on rank %d outside the ghosted block",
			ErrConsistency, failed, f.Layout().Comm().Rank())
	}
	return
}
