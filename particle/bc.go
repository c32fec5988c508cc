package particle

import (
	"math"

	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/region"
	"github.com/notargets/gopic/types"
	"github.com/notargets/gopic/utils"
)

// BCs holds one boundary condition per face of the global domain, face
// 2*d+side as for halos.
type BCs [2 * comm.MaxDim]types.BCFLAG

// UniformBCs uses bc on every face.
func UniformBCs(bc types.BCFLAG) (bcs BCs) {
	for f := range bcs {
		bcs[f] = bc
	}
	return
}

// Apply moves positions back into the global domain dom.
//   - Periodic wraps into [min, max)
//   - Reflective mirrors at the face
//   - Sink clamps onto the face
//   - None leaves the particle outside
func (bcs BCs) Apply(R []types.Vector, dom region.Region, ProcLimit int) {
	utils.ParallelFor(ProcLimit, len(R), func(_, kMin, kMax int) {
		for i := kMin; i < kMax; i++ {
			for d := 0; d < dom.Dim; d++ {
				R[i][d] = bcs.apply1D(R[i][d], d, dom.Min[d], dom.Max[d])
			}
		}
	})
}

func (bcs BCs) apply1D(x float64, d int, lo, hi float64) float64 {
	L := hi - lo
	if bcs[2*d] == types.BC_Reflective && bcs[2*d+1] == types.BC_Reflective {
		// Fold over 2L so moves longer than the domain still land inside
		if x < lo || x > hi {
			y := math.Mod(x-lo, 2*L)
			if y < 0 {
				y += 2 * L
			}
			if y > L {
				y = 2*L - y
			}
			x = lo + y
		}
		return x
	}
	if x < lo {
		switch bcs[2*d] {
		case types.BC_Periodic:
			x = lo + math.Mod(x-lo, L) + L
		case types.BC_Reflective:
			x = 2*lo - x
		case types.BC_Sink:
			x = lo
		}
	}
	if x >= hi {
		switch bcs[2*d+1] {
		case types.BC_Periodic:
			x = lo + math.Mod(x-lo, L)
		case types.BC_Reflective:
			if x > hi {
				x = 2*hi - x
			}
		case types.BC_Sink:
			x = hi
		}
	}
	// Rounding in the wrap may land on the excluded upper face
	if x >= hi && bcs[2*d+1] == types.BC_Periodic {
		x = lo
	}
	return x
}
