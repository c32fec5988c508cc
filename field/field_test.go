package field

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gopic/comm"
)

func TestIndex(t *testing.T) {
	ix := NewIndex(8)
	assert.Equal(t, 8, ix.Length())
	assert.True(t, ix.Contains(7))
	assert.False(t, ix.Contains(8))

	nd := NewNDIndex(4, 6)
	assert.Equal(t, 24, nd.Size())
	assert.Equal(t, []int{4, 6}, nd.Lengths())
	assert.True(t, nd.Contains(3, 5))
	assert.False(t, nd.Contains(3))

	other := NDIndex{{2, 9}, {-1, 2}}
	res, ok := nd.Intersect(other)
	require.True(t, ok)
	assert.True(t, res.Equal(NDIndex{{2, 3}, {0, 2}}))
	_, ok = nd.Intersect(NDIndex{{5, 6}, {0, 1}})
	assert.False(t, ok)
	assert.Equal(t, "{[0:3],[0:5]}", nd.String())
}

func TestLayout(t *testing.T) {
	{ // Test a 2D split over 4 ranks covers the domain exactly once
		w := comm.NewWorld(4)
		l, err := NewLayout(w.Comm(0), NewNDIndex(8, 8), nil)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2}, l.Blocks())
		var total int
		for r, nd := range l.HostLocalDomains() {
			total += nd.Size()
			for s, other := range l.HostLocalDomains() {
				if s != r {
					_, overlap := nd.Intersect(other)
					assert.False(t, overlap)
				}
			}
		}
		assert.Equal(t, 64, total)
		assert.True(t, l.LocalNDIndex().Equal(NDIndex{{0, 3}, {0, 3}}))
		// rank 0 at (0,0), rank 1 at (1,0), rank 2 at (0,1)
		assert.Equal(t, 1, l.Neighbor(0, 1))
		assert.Equal(t, 1, l.Neighbor(0, 0))
		assert.Equal(t, 2, l.Neighbor(1, 1))
		assert.Equal(t, 3, l.NeighborOf(2, 0, 0))
	}
	{ // Test non-periodic edges and serial axes
		w := comm.NewWorld(3)
		l, err := NewLayout(w.Comm(0), NewNDIndex(9, 4), []bool{true, false},
			WithPeriodic(false, true))
		require.NoError(t, err)
		assert.Equal(t, []int{3, 1}, l.Blocks())
		assert.Equal(t, -1, l.Neighbor(0, 0))
		assert.Equal(t, 1, l.Neighbor(0, 1))
		assert.Equal(t, -1, l.NeighborOf(2, 0, 1))
		assert.Equal(t, 0, l.Neighbor(1, 0))
		assert.True(t, l.LocalNDIndex().Equal(NDIndex{{0, 2}, {0, 3}}))
	}
	{ // Test a decomposition that cannot be made
		w := comm.NewWorld(5)
		_, err := NewLayout(w.Comm(0), NewNDIndex(4, 4), nil)
		assert.Error(t, err)
		_, err = NewLayout(w.Comm(0), NDIndex{}, nil)
		assert.Error(t, err)
	}
}

func TestMesh(t *testing.T) {
	m, err := NewMesh(NewNDIndex(10, 20), []float64{0.1, 0.5}, []float64{1, -1})
	require.NoError(t, err)
	assert.InDelta(t, 1.3, m.Position(0, 3), 1e-14)
	assert.InDelta(t, 10., m.Extent(1), 1e-14)
	assert.InDelta(t, 0.05, m.CellVolume(), 1e-14)
	_, err = NewMesh(NewNDIndex(10), []float64{0}, []float64{0})
	assert.Error(t, err)
	_, err = NewMesh(NewNDIndex(10), []float64{1, 1}, []float64{0})
	assert.Error(t, err)
}

// globalValue labels a grid point so that halos can be checked exactly.
func globalValue(g [comm.MaxDim]int) float64 {
	return float64(g[0] + 100*g[1] + 10000*g[2])
}

func wrap(g [comm.MaxDim]int, n []int) (w [comm.MaxDim]int) {
	for d := range g {
		w[d] = g[d]
		if d < len(n) {
			w[d] = (g[d] + n[d]) % n[d]
		}
	}
	return
}

// ghostedGlobal maps every ghosted local index of f to its global index,
// unwrapped.
func ghostedGlobal[T Number](f *Field[T], fn func(k int, g [comm.MaxDim]int, interior bool)) {
	lDom := f.Layout().LocalNDIndex()
	ext := f.Extents()
	for k := 0; k < ext[2]; k++ {
		for j := 0; j < ext[1]; j++ {
			for i := 0; i < ext[0]; i++ {
				loc := [comm.MaxDim]int{i, j, k}
				var g [comm.MaxDim]int
				interior := true
				for d := 0; d < f.Dim(); d++ {
					g[d] = loc[d] - f.Nghost() + lDom[d].First
					if !lDom[d].Contains(g[d]) {
						interior = false
					}
				}
				fn(f.Index(i, j, k), g, interior)
			}
		}
	}
}

func TestExchangeHalo(t *testing.T) {
	cases := []struct {
		ranks  int
		n      []int
		nghost int
	}{
		{1, []int{8}, 1},
		{3, []int{12}, 2},
		{2, []int{6, 4}, 1},
		{4, []int{8, 8}, 2},
		{6, []int{6, 4}, 1},
		{8, []int{4, 4, 4}, 1},
		{4, []int{6, 5, 4}, 1},
	}
	for _, tc := range cases {
		name := fmt.Sprintf("%d ranks %v ghost %d", tc.ranks, tc.n, tc.nghost)
		w := comm.NewWorld(tc.ranks)
		err := w.Run(func(c *comm.Communicator) error {
			l, err := NewLayout(c, NewNDIndex(tc.n...), nil)
			if err != nil {
				return err
			}
			h := make([]float64, len(tc.n))
			for d := range h {
				h[d] = 1
			}
			m, err := NewMesh(NewNDIndex(tc.n...), h, make([]float64, len(tc.n)))
			if err != nil {
				return err
			}
			f, err := NewField[float64](m, l, tc.nghost)
			if err != nil {
				return err
			}
			f.Fill(-1)
			f.ForEachInterior(func(k int, _, g [comm.MaxDim]int) {
				f.Data[k] = globalValue(g)
			})
			if err = f.ExchangeHalo(); err != nil {
				return err
			}
			ghostedGlobal(f, func(k int, g [comm.MaxDim]int, _ bool) {
				assert.Equal(t, globalValue(wrap(g, tc.n)), f.Data[k], name)
			})
			return nil
		})
		require.NoError(t, err, name)
	}
}

func TestHaloNonPeriodic(t *testing.T) {
	w := comm.NewWorld(2)
	err := w.Run(func(c *comm.Communicator) error {
		l, err := NewLayout(c, NewNDIndex(8), nil, WithPeriodic(false))
		if err != nil {
			return err
		}
		m, _ := NewMesh(NewNDIndex(8), []float64{1}, []float64{0})
		f, err := NewField[int64](m, l, 1)
		if err != nil {
			return err
		}
		f.Fill(-7)
		f.ForEachInterior(func(k int, _, g [comm.MaxDim]int) {
			f.Data[k] = int64(g[0])
		})
		if err = f.ExchangeHalo(); err != nil {
			return err
		}
		if c.Rank() == 0 {
			assert.Equal(t, int64(-7), f.Data[0])
			assert.Equal(t, int64(4), f.Data[5])
		} else {
			assert.Equal(t, int64(3), f.Data[0])
			assert.Equal(t, int64(-7), f.Data[5])
		}
		return nil
	})
	require.NoError(t, err)
}

func TestAccumulateHalo(t *testing.T) {
	// Every point of the ghosted storage holds 1, after accumulation an
	// owned point holds one plus the number of ghost copies of it.
	cases := []struct {
		ranks int
		n     []int
	}{
		{1, []int{6}},
		{2, []int{8}},
		{4, []int{8, 8}},
		{2, []int{4, 4, 4}},
	}
	for _, tc := range cases {
		name := fmt.Sprintf("%d ranks %v", tc.ranks, tc.n)
		w := comm.NewWorld(tc.ranks)
		err := w.Run(func(c *comm.Communicator) error {
			l, err := NewLayout(c, NewNDIndex(tc.n...), nil)
			if err != nil {
				return err
			}
			h := make([]float64, len(tc.n))
			for d := range h {
				h[d] = 1
			}
			m, _ := NewMesh(NewNDIndex(tc.n...), h, make([]float64, len(tc.n)))
			f, err := NewField[float64](m, l, 1)
			if err != nil {
				return err
			}
			f.Fill(1)
			if err = f.AccumulateHalo(); err != nil {
				return err
			}
			total, err := Sum(f)
			if err != nil {
				return err
			}
			ext := f.Extents()
			ghosted := 1
			for d := 0; d < f.Dim(); d++ {
				ghosted *= ext[d]
			}
			all, err := c.AllreduceInt64(int64(ghosted), comm.Sum)
			if err != nil {
				return err
			}
			assert.Equal(t, float64(all), total, name)
			// A point on a face gains exactly one ghost copy per touching face
			f.ForEachInterior(func(k int, loc, _ [comm.MaxDim]int) {
				want := 1
				for d := 0; d < f.Dim(); d++ {
					if loc[d] == 1 || loc[d] == ext[d]-2 {
						want *= 2
					}
				}
				assert.Equal(t, float64(want), f.Data[k], name)
			})
			return nil
		})
		require.NoError(t, err, name)
	}
}

func TestGhostChecks(t *testing.T) {
	w := comm.NewWorld(4)
	err := w.Run(func(c *comm.Communicator) error {
		l, err := NewLayout(c, NewNDIndex(8), nil)
		if err != nil {
			return err
		}
		m, _ := NewMesh(NewNDIndex(8), []float64{1}, []float64{0})
		f, err := NewField[float64](m, l, 3)
		if err != nil {
			return err
		}
		err = f.ExchangeHalo()
		assert.True(t, errors.Is(err, ErrGhostWidth))
		g, _ := NewField[float64](m, l, 1)
		err = g.Halo().ExchangeHalo(g, l, 2)
		assert.True(t, errors.Is(err, ErrGhostWidth))
		return nil
	})
	require.NoError(t, err)

	c := comm.NewWorld(1).Comm(0)
	l, _ := NewLayout(c, NewNDIndex(4), nil)
	m, _ := NewMesh(NewNDIndex(4, 4), []float64{1, 1}, []float64{0, 0})
	_, err = NewField[float64](m, l, 1)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	_, err = NewField[float64](m, l, -1)
	assert.True(t, errors.Is(err, ErrGhostWidth))
}

func TestGhostChecksUnevenBlocks(t *testing.T) {
	// Blocks of 2, 2 and 1 points; only the last is too small for two
	// layers but no rank may go on to exchange. Run outside World.Run so
	// nothing aborts on our behalf.
	w := comm.NewWorld(3)
	errs := make([]error, 3)
	var wg sync.WaitGroup
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func(c *comm.Communicator) {
			defer wg.Done()
			l, err := NewLayout(c, NewNDIndex(5), nil)
			if err != nil {
				errs[c.Rank()] = err
				return
			}
			m, _ := NewMesh(NewNDIndex(5), []float64{1}, []float64{0})
			f, err := NewField[float64](m, l, 2)
			if err != nil {
				errs[c.Rank()] = err
				return
			}
			errs[c.Rank()] = f.ExchangeHalo()
		}(w.Comm(r))
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		w.Abort(fmt.Errorf("halo exchange did not return"))
		t.Fatal("ranks blocked in the halo exchange")
	}
	for r, err := range errs {
		assert.True(t, errors.Is(err, ErrGhostWidth), "rank %d: %v", r, err)
	}
}

func TestFieldHelpers(t *testing.T) {
	c := comm.NewWorld(1).Comm(0)
	l, _ := NewLayout(c, NewNDIndex(3, 2), nil)
	m, _ := NewMesh(NewNDIndex(3, 2), []float64{1, 1}, []float64{0, 0})
	f, err := NewField[float64](m, l, 1)
	require.NoError(t, err)
	assert.Equal(t, [comm.MaxDim]int{5, 4, 1}, f.Extents())
	assert.Equal(t, 20, len(f.Data))
	assert.Equal(t, 6, f.InteriorSize())

	in := []float64{1, 2, 3, 4, 5, -6}
	require.NoError(t, f.SetInterior(in))
	assert.Equal(t, 2., f.At(2, 1))
	assert.Equal(t, 4., f.At(1, 2))
	out := make([]float64, 6)
	require.NoError(t, f.CopyInterior(out))
	assert.Equal(t, in, out)
	assert.True(t, errors.Is(f.CopyInterior(out[:5]), ErrShapeMismatch))

	require.NoError(t, f.FillHalo(9))
	assert.Equal(t, 9., f.At(0, 0))
	assert.Equal(t, 9., f.At(4, 3))
	assert.Equal(t, 1., f.At(1, 1))

	s, err := Sum(f)
	require.NoError(t, err)
	assert.Equal(t, 9., s)
	mx, err := MaxAbs(f)
	require.NoError(t, err)
	assert.Equal(t, 6., mx)

	h := f.Halo()
	h.Resize(f)
	before := h.LowerInternal(0)
	h.Resize(f)
	assert.Equal(t, before, h.LowerInternal(0))
	assert.Equal(t, Bounds{{1, 2}, {0, 4}, {0, 1}}, h.LowerInternal(0))
	assert.Equal(t, Bounds{{0, 5}, {3, 4}, {0, 1}}, h.UpperHalo(1))
	assert.Equal(t, Bounds{{0, 5}, {2, 3}, {0, 1}}, h.UpperInternal(1))
	assert.Equal(t, Bounds{{0, 1}, {0, 4}, {0, 1}}, h.LowerHalo(0))

	z, err := NewFieldLike[complex128](f)
	require.NoError(t, err)
	assert.Equal(t, len(f.Data), len(z.Data))
}
