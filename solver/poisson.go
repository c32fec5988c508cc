// Package solver wraps the distributed FFT into a periodic Poisson solver for
// the electrostatic potential of deposited particle charge.
package solver

import (
	"fmt"
	"math"

	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/fft"
	"github.com/notargets/gopic/field"
)

const (
	GreensSpectral = "spectral"          // -|k|^2
	GreensFD       = "finite-difference" // Symbol of the 2nd order central Laplacian
)

type Params struct {
	Greens   string     `yaml:"Greens"`
	Epsilon0 float64    `yaml:"Epsilon0"` // Zero defaults to one
	FFT      fft.Params `yaml:"FFT"`
}

// Poisson solves lap(phi) = -rho/eps0 on a periodic uniform mesh. The mean
// of rho is discarded, which sets the mean of phi to zero.
type Poisson struct {
	layout *field.Layout
	mesh   *field.Mesh
	params Params
	tr     *fft.FFT
	rhoHat *field.Field[complex128]
	greens []float64 // 1/(eps0 |k|^2) per local spectral point, zero for k=0
}

// NewPoisson sets up the real to complex transform along axis 0. Collective.
func NewPoisson(layout *field.Layout, mesh *field.Mesh, params Params) (p *Poisson, err error) {
	if params.Epsilon0 == 0 {
		params.Epsilon0 = 1
	}
	if params.Greens == "" {
		params.Greens = GreensSpectral
	}
	if params.Greens != GreensSpectral && params.Greens != GreensFD {
		return nil, fmt.Errorf("unknown Greens function %q, want %q or %q",
			params.Greens, GreensSpectral, GreensFD)
	}
	if params.FFT.Comm == "" {
		params.FFT = fft.DefaultParams()
	}
	params.FFT.R2CDirection = 0
	var (
		dim    = layout.Dim()
		outDom = append(field.NDIndex(nil), layout.Domain()...)
		lOut   *field.Layout
		mOut   *field.Mesh
	)
	outDom[0].Last = outDom[0].First + layout.Domain()[0].Length()/2
	if lOut, err = field.NewLayout(layout.Comm(), outDom, nil); err != nil {
		return
	}
	if mOut, err = field.NewMesh(outDom, mesh.Spacing[:dim], mesh.Origin[:dim]); err != nil {
		return
	}
	p = &Poisson{
		layout: layout,
		mesh:   mesh,
		params: params,
	}
	if p.tr, err = fft.NewRCFFT(layout, lOut, params.FFT); err != nil {
		return nil, err
	}
	if p.rhoHat, err = field.NewField[complex128](mOut, lOut, 0); err != nil {
		return nil, err
	}
	p.greens = make([]float64, p.rhoHat.InteriorSize())
	n := 0
	p.rhoHat.ForEachInterior(func(_ int, _, g [comm.MaxDim]int) {
		var k2 float64
		for d := 0; d < dim; d++ {
			k2 += p.symbol(d, g[d]-outDom[d].First)
		}
		if k2 > 0 {
			p.greens[n] = 1 / (params.Epsilon0 * k2)
		}
		n++
	})
	return
}

// symbol is the magnitude of the Laplacian symbol along axis d for
// spectral index m.
func (p *Poisson) symbol(d, m int) float64 {
	var (
		n = p.layout.Domain()[d].Length()
		h = p.mesh.Spacing[d]
		L = float64(n) * h
	)
	if p.params.Greens == GreensFD {
		s := 2 * math.Sin(math.Pi*float64(m)/float64(n)) / h
		return s * s
	}
	if m > n/2 {
		m -= n
	}
	k := 2 * math.Pi * float64(m) / L
	return k * k
}

func (p *Poisson) Params() Params { return p.params }

// Solve writes the potential of rho into phi, ghosts included. Collective.
func (p *Poisson) Solve(rho, phi *field.Field[float64]) (err error) {
	if err = p.tr.TransformRC(1, rho, p.rhoHat); err != nil {
		return
	}
	n := 0
	p.rhoHat.ForEachInterior(func(k int, _, _ [comm.MaxDim]int) {
		p.rhoHat.Data[k] *= complex(p.greens[n], 0)
		n++
	})
	if err = p.tr.TransformRC(-1, phi, p.rhoHat); err != nil {
		return
	}
	return phi.ExchangeHalo()
}

// Gradient computes E = -grad(phi) with central differences, one field per
// axis. phi needs at least one ghost layer. Collective.
func (p *Poisson) Gradient(phi *field.Field[float64], E []*field.Field[float64]) (err error) {
	if len(E) != phi.Dim() {
		return fmt.Errorf("%w: %d components for a %d dimensional field",
			field.ErrShapeMismatch, len(E), phi.Dim())
	}
	if phi.Nghost() < 1 {
		return fmt.Errorf("%w: gradient needs one ghost layer", field.ErrGhostWidth)
	}
	for d := range E {
		if E[d].Extents() != phi.Extents() {
			return fmt.Errorf("%w: component %d", field.ErrShapeMismatch, d)
		}
	}
	if err = phi.ExchangeHalo(); err != nil {
		return
	}
	for d := range E {
		var (
			Ed  = E[d]
			off [comm.MaxDim]int
		)
		off[d] = 1
		scale := -1 / (2 * p.mesh.Spacing[d])
		phi.ForEachInterior(func(k int, loc, _ [comm.MaxDim]int) {
			up := phi.Index(loc[0]+off[0], loc[1]+off[1], loc[2]+off[2])
			lo := phi.Index(loc[0]-off[0], loc[1]-off[1], loc[2]-off[2])
			Ed.Data[k] = scale * (phi.Data[up] - phi.Data[lo])
		})
	}
	return
}
