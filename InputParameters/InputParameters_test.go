package InputParameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gopic/fft"
	"github.com/notargets/gopic/particle"
	"github.com/notargets/gopic/solver"
	"github.com/notargets/gopic/types"
)

func TestInputParameters(t *testing.T) {
	fileInput := []byte(`
Title: Two stream
Ranks: 4
Grid: [32, 16]
Length: [6.283, 1.0]
Nghost: 2
ParticlesPerRank: 5000
Steps: 20
LocatePolicy: Nearest
CountExchange: alltoall
BCs:
  All: periodic
  Y0: reflective
  Y1: sink
FFT:
  UsePencils: true
  Comm: p2p_pl
Solver:
  Greens: finite-difference
  Epsilon0: 8.85e-12
`)
	var ip InputParametersPIC
	require.NoError(t, ip.Parse(fileInput))
	ip.Defaults()
	require.NoError(t, ip.Validate())
	ip.Print()
	{ // Test parsed values
		assert.Equal(t, 4, ip.Ranks)
		assert.Equal(t, []int{32, 16}, ip.Grid)
		assert.Equal(t, 2, ip.Dim())
		assert.InDeltaSlice(t, []float64{6.283 / 32, 1. / 16}, ip.Spacing(), 1e-15)
		assert.Equal(t, fft.CommP2PPL, ip.FFT.Comm)
		assert.True(t, ip.FFT.UsePencils)
		assert.Equal(t, solver.GreensFD, ip.Solver.Greens)
		assert.Equal(t, 8.85e-12, ip.Solver.Epsilon0)
		// Defaults only fill what was left out
		assert.Equal(t, 0.5, ip.Displacement)
		assert.Equal(t, 2, ip.Nghost)
	}
	{ // Test the enumerations
		lp, err := ip.Policy()
		assert.NoError(t, err)
		assert.Equal(t, particle.LocateNearest, lp)
		ce, err := ip.Counts()
		assert.NoError(t, err)
		assert.Equal(t, particle.CountAlltoall, ce)
		bcs, err := ip.BoundaryConditions()
		assert.NoError(t, err)
		assert.Equal(t, types.BC_Periodic, bcs[0])
		assert.Equal(t, types.BC_Periodic, bcs[1])
		assert.Equal(t, types.BC_Reflective, bcs[2])
		assert.Equal(t, types.BC_Sink, bcs[3])
	}
	{ // Test bad input
		var bad InputParametersPIC
		bad.Defaults()
		assert.NoError(t, bad.Validate())
		assert.Equal(t, fft.DefaultParams(), bad.FFT)
		bad.BCs = map[string]string{"W0": "periodic"}
		assert.Error(t, bad.Validate())
		bad.BCs = map[string]string{"X1": "absorbing"}
		assert.Error(t, bad.Validate())
		bad.BCs = nil
		bad.LocatePolicy = "drop"
		assert.Error(t, bad.Validate())
		bad.LocatePolicy = "keep"
		bad.Grid = []int{8, 8, 8, 8}
		assert.Error(t, bad.Validate())
		bad.Grid = []int{8, 1}
		assert.Error(t, bad.Validate())
	}
}

func TestParseGcfg(t *testing.T) {
	fileInput := []byte(`
[Run]
Title = Two stream
Ranks = 4
Grid = 32
Grid = 16
ParticlesPerRank = 5000
LocatePolicy = keep

[BCs]
All = reflective
X1 = sink

[FFT]
Comm = p2p
UsePencils = true

[Solver]
Greens = finite-difference
Epsilon0 = 2
`)
	var ip InputParametersPIC
	require.NoError(t, ip.ParseGcfg(fileInput))
	ip.Defaults()
	require.NoError(t, ip.Validate())
	assert.Equal(t, "Two stream", ip.Title)
	assert.Equal(t, []int{32, 16}, ip.Grid)
	assert.Equal(t, []float64{1, 1}, ip.Length)
	assert.Equal(t, 5000, ip.ParticlesPerRank)
	assert.Equal(t, fft.CommP2P, ip.FFT.Comm)
	assert.True(t, ip.FFT.UsePencils)
	assert.Equal(t, 2., ip.Solver.Epsilon0)
	bcs, err := ip.BoundaryConditions()
	require.NoError(t, err)
	assert.Equal(t, types.BC_Reflective, bcs[0])
	assert.Equal(t, types.BC_Sink, bcs[1])
	assert.Equal(t, types.BC_Reflective, bcs[5])
	lp, _ := ip.Policy()
	assert.Equal(t, particle.LocateKeep, lp)
	// Unknown variables are rejected
	assert.Error(t, ip.ParseGcfg([]byte("[Run]\nCFL = 1\n")))
}
