package fft

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/field"
)

func newGrid(c *comm.Communicator, n ...int) (l *field.Layout, m *field.Mesh, err error) {
	dom := field.NewNDIndex(n...)
	h, origin := make([]float64, len(n)), make([]float64, len(n))
	for d := range h {
		h[d] = 1
	}
	if l, err = field.NewLayout(c, dom, nil); err != nil {
		return
	}
	m, err = field.NewMesh(dom, h, origin)
	return
}

// sample is a smooth but non trivial value at a global grid point.
func sample(g [comm.MaxDim]int) float64 {
	return math.Sin(1.3*float64(g[0])+0.2) + 0.5*math.Cos(0.7*float64(g[1])) +
		0.25*float64(g[2]*g[0]%5)
}

func TestTransformCC(t *testing.T) {
	cases := []struct {
		ranks  int
		n      []int
		params Params
	}{
		{1, []int{16}, DefaultParams()},
		{1, []int{6, 5}, Params{Comm: CommA2A}},
		{2, []int{8, 4}, Params{Comm: CommP2P}},
		{4, []int{8, 6}, Params{Comm: CommP2PPL, UseReorder: true}},
		{4, []int{4, 4, 4}, Params{Comm: CommA2AV, UsePencils: true}},
		{3, []int{6, 3, 2}, Params{Comm: CommP2P, UsePencils: true, UseReorder: true}},
	}
	for _, tc := range cases {
		name := fmt.Sprintf("%d ranks %v %s pencils=%v", tc.ranks, tc.n, tc.params.Comm, tc.params.UsePencils)
		w := comm.NewWorld(tc.ranks)
		err := w.Run(func(c *comm.Communicator) error {
			l, m, err := newGrid(c, tc.n...)
			if err != nil {
				return err
			}
			tr, err := NewFFT(CC, l, tc.params)
			if err != nil {
				return err
			}
			f, err := field.NewField[complex128](m, l, 1)
			if err != nil {
				return err
			}
			orig := make([]complex128, f.InteriorSize())
			n := 0
			f.ForEachInterior(func(k int, _, g [comm.MaxDim]int) {
				f.Data[k] = complex(sample(g), float64(g[0]-g[1]))
				orig[n] = f.Data[k]
				n++
			})
			if err = tr.TransformCC(1, f); err != nil {
				return err
			}
			if err = tr.TransformCC(-1, f); err != nil {
				return err
			}
			got := make([]complex128, f.InteriorSize())
			if err = f.CopyInterior(got); err != nil {
				return err
			}
			for i := range got {
				assert.InDelta(t, 0., cmplx.Abs(got[i]-orig[i]), 1e-10*(1+cmplx.Abs(orig[i])), name)
			}
			return nil
		})
		require.NoError(t, err, name)
	}
}

func TestForwardScaling(t *testing.T) {
	// A constant maps onto the zero mode with full scaling
	w := comm.NewWorld(2)
	err := w.Run(func(c *comm.Communicator) error {
		l, m, err := newGrid(c, 4, 6)
		if err != nil {
			return err
		}
		tr, err := NewFFT(CC, l, DefaultParams())
		if err != nil {
			return err
		}
		f, _ := field.NewField[complex128](m, l, 0)
		f.Fill(2)
		if err = tr.TransformCC(1, f); err != nil {
			return err
		}
		f.ForEachInterior(func(k int, _, g [comm.MaxDim]int) {
			want := complex128(0)
			if g[0] == 0 && g[1] == 0 {
				want = 2
			}
			assert.InDelta(t, 0., cmplx.Abs(f.Data[k]-want), 1e-13)
		})
		return nil
	})
	require.NoError(t, err)
}

func TestTransformRC(t *testing.T) {
	cases := []struct {
		ranks int
		n     []int
		axis  int
		comm  string
	}{
		{1, []int{10}, 0, CommA2AV},
		{2, []int{8, 6}, 0, CommP2P},
		{4, []int{8, 6}, 1, CommA2A},
		{4, []int{6, 4, 4}, 2, CommP2PPL},
	}
	for _, tc := range cases {
		name := fmt.Sprintf("%d ranks %v axis %d", tc.ranks, tc.n, tc.axis)
		w := comm.NewWorld(tc.ranks)
		err := w.Run(func(c *comm.Communicator) error {
			lIn, mIn, err := newGrid(c, tc.n...)
			if err != nil {
				return err
			}
			nOut := append([]int(nil), tc.n...)
			nOut[tc.axis] = tc.n[tc.axis]/2 + 1
			lOut, mOut, err := newGrid(c, nOut...)
			if err != nil {
				return err
			}
			tr, err := NewRCFFT(lIn, lOut, Params{Comm: tc.comm, R2CDirection: tc.axis})
			if err != nil {
				return err
			}
			fr, _ := field.NewField[float64](mIn, lIn, 1)
			fc, _ := field.NewField[complex128](mOut, lOut, 1)
			orig := make([]float64, fr.InteriorSize())
			n := 0
			fr.ForEachInterior(func(k int, _, g [comm.MaxDim]int) {
				fr.Data[k] = sample(g)
				orig[n] = fr.Data[k]
				n++
			})
			if err = tr.TransformRC(1, fr, fc); err != nil {
				return err
			}
			fr.Fill(0)
			if err = tr.TransformRC(-1, fr, fc); err != nil {
				return err
			}
			got := make([]float64, fr.InteriorSize())
			if err = fr.CopyInterior(got); err != nil {
				return err
			}
			for i := range got {
				assert.InDelta(t, orig[i], got[i], 1e-10*(1+math.Abs(orig[i])), name)
			}
			// A complex field on the input layout is rejected
			wrong, _ := field.NewField[complex128](mIn, lIn, 1)
			assert.True(t, errors.Is(tr.TransformRC(1, fr, wrong), ErrR2CAxis), name)
			return nil
		})
		require.NoError(t, err, name)
	}
}

func TestTransformReal(t *testing.T) {
	for _, kind := range []Kind{Sine, Cosine} {
		for _, ranks := range []int{1, 2, 4} {
			name := fmt.Sprintf("%v %d ranks", kind, ranks)
			w := comm.NewWorld(ranks)
			err := w.Run(func(c *comm.Communicator) error {
				l, m, err := newGrid(c, 8, 6)
				if err != nil {
					return err
				}
				params := DefaultParams()
				params.UsePencils = ranks > 2
				tr, err := NewFFT(kind, l, params)
				if err != nil {
					return err
				}
				f, _ := field.NewField[float64](m, l, 2)
				orig := make([]float64, f.InteriorSize())
				n := 0
				f.ForEachInterior(func(k int, _, g [comm.MaxDim]int) {
					f.Data[k] = sample(g)
					orig[n] = f.Data[k]
					n++
				})
				if err = tr.TransformReal(1, f); err != nil {
					return err
				}
				if err = tr.TransformReal(-1, f); err != nil {
					return err
				}
				got := make([]float64, f.InteriorSize())
				if err = f.CopyInterior(got); err != nil {
					return err
				}
				for i := range got {
					assert.InDelta(t, orig[i], got[i], 1e-10*(1+math.Abs(orig[i])), name)
				}
				return nil
			})
			require.NoError(t, err, name)
		}
	}
}

func TestTransformErrors(t *testing.T) {
	{ // Test an unknown communication algorithm, fatal for the world
		c := comm.NewWorld(1).Comm(0)
		l, _, err := newGrid(c, 8, 4)
		require.NoError(t, err)
		_, err = NewFFT(CC, l, Params{UseDefaults: true, Comm: "bcast"})
		assert.NoError(t, err)
		_, err = NewFFT(CC, l, Params{Comm: "bcast"})
		assert.True(t, errors.Is(err, ErrUnknownCommAlgorithm))
		assert.True(t, errors.Is(c.Barrier(), comm.ErrAborted))
	}
	{ // Test the direction flag, fatal for the world
		for _, dir := range []int{0, 2} {
			c := comm.NewWorld(1).Comm(0)
			l, m, err := newGrid(c, 8, 4)
			require.NoError(t, err)
			tr, err := NewFFT(CC, l, DefaultParams())
			require.NoError(t, err)
			f, _ := field.NewField[complex128](m, l, 1)
			assert.True(t, errors.Is(tr.TransformCC(dir, f), ErrInvalidDirection))
			assert.True(t, errors.Is(c.Barrier(), comm.ErrAborted))
		}
	}
	c := comm.NewWorld(1).Comm(0)
	l, m, err := newGrid(c, 8, 4)
	require.NoError(t, err)
	tr, err := NewFFT(CC, l, DefaultParams())
	require.NoError(t, err)
	f, _ := field.NewField[complex128](m, l, 1)
	{ // Test kind mismatches
		fr, _ := field.NewField[float64](m, l, 1)
		assert.True(t, errors.Is(tr.TransformReal(1, fr), ErrKind))
		assert.True(t, errors.Is(tr.TransformRC(1, fr, f), ErrKind))
		_, err = NewFFT(RC, l, DefaultParams())
		assert.True(t, errors.Is(err, ErrKind))
	}
	{ // Test an r2c axis that does not match the output layout
		lOut, _, err := newGrid(c, 5, 4)
		require.NoError(t, err)
		_, err = NewRCFFT(l, lOut, Params{Comm: CommA2AV, R2CDirection: 1})
		assert.True(t, errors.Is(err, ErrR2CAxis))
		_, err = NewRCFFT(l, lOut, Params{Comm: CommA2AV, R2CDirection: 0})
		assert.NoError(t, err)
		_, err = NewRCFFT(l, l, Params{Comm: CommA2AV, R2CDirection: 3})
		assert.True(t, errors.Is(err, ErrR2CAxis))
	}
	{ // Test the engine workspace contract
		e := tr.Engine()
		in := make([]complex128, 32)
		assert.True(t, errors.Is(e.Forward(in, in, make([]complex128, e.WorkspaceSize()-1), ScaleNone),
			ErrWorkspace))
		assert.True(t, errors.Is(e.Forward(in[:3], in, make([]complex128, e.WorkspaceSize()), ScaleNone),
			field.ErrShapeMismatch))
	}
	{ // Test a field on another layout
		l2, m2, _ := newGrid(c, 4, 4)
		f2, _ := field.NewField[complex128](m2, l2, 1)
		assert.True(t, errors.Is(tr.TransformCC(1, f2), field.ErrShapeMismatch))
	}
	assert.Equal(t, "Cosine", Cosine.String())
}

func TestSymmetricScale(t *testing.T) {
	c := comm.NewWorld(1).Comm(0)
	l, _, err := newGrid(c, 16)
	require.NoError(t, err)
	e, err := NewBoxEngine(c, CC, l.HostLocalDomains(), l.HostLocalDomains(), DefaultParams())
	require.NoError(t, err)
	in, out := make([]complex128, 16), make([]complex128, 16)
	for i := range in {
		in[i] = complex(sample([comm.MaxDim]int{i}), 0)
	}
	work := make([]complex128, e.WorkspaceSize())
	require.NoError(t, e.Forward(in, out, work, ScaleSymmetric))
	// Parseval with unitary scaling
	var ein, eout float64
	for i := range in {
		ein += real(in[i] * cmplx.Conj(in[i]))
		eout += real(out[i] * cmplx.Conj(out[i]))
	}
	assert.InDelta(t, ein, eout, 1e-10*ein)
	assert.Equal(t, 16., e.Normalization())
}
