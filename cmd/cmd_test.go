package cmd

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/magiconair/properties/assert"
	"github.com/spf13/viper"

	"github.com/notargets/gopic/InputParameters"
	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/particle"
)

func TestProcessInput(t *testing.T) {
	fileInput := []byte(`
Title: Test Case
Ranks: 2
Grid: [16, 8]
ParticlesPerRank: 100
Steps: 3
CountExchange: alltoall
BCs:
  X0: reflective
  X1: reflective
`)
	fileName := filepath.Join(t.TempDir(), "input.yaml")
	if err := os.WriteFile(fileName, fileInput, 0644); err != nil {
		panic(err)
	}
	viper.Set("inputConditionsFile", fileName)
	viper.Set("ranks", 4)
	defer func() {
		viper.Set("inputConditionsFile", "")
		viper.Set("ranks", 0)
	}()
	ip, err := processInput()
	if err != nil {
		panic(err)
	}
	ip.Print()
	// Flags and config override the input file
	assert.Equal(t, ip.Ranks, 4)
	assert.Equal(t, ip.ParticlesPerRank, 100)
	assert.Equal(t, ip.CountExchange, "alltoall")
	assert.Equal(t, ip.Length, []float64{1, 1})
	assert.Equal(t, ip.Nghost, 1)
}

func TestRunUpdate(t *testing.T) {
	ip := testInput()
	ip.CountExchange = "alltoall"
	dir := t.TempDir()
	res, err := RunUpdate(ip, dir)
	if err != nil {
		panic(err)
	}
	res.Print()
	var total int
	for _, n := range res.Counts {
		total += n
	}
	assert.Equal(t, total, 4*250)
	assert.Equal(t, res.Final.Total, int64(4*250))
	assert.Equal(t, res.Initial.Min, int64(250))
	assert.Equal(t, len(res.Timers), 4)
	{ // Test the snapshots hold every particle
		var n int
		for r := 0; r < ip.Ranks; r++ {
			fi, err := os.Open(snapshotName(dir, r))
			if err != nil {
				panic(err)
			}
			p := particle.NewBase(comm.NewWorld(1).Comm(0), ip.Dim())
			if err = particle.ReadSnapshot(fi, p); err != nil {
				panic(err)
			}
			fi.Close()
			assert.Equal(t, p.LocalNum(), res.Counts[r])
			n += p.LocalNum()
		}
		assert.Equal(t, n, 4*250)
	}
}

func TestRunSolve(t *testing.T) {
	ip := testInput()
	ip.Solver.Greens = "finite-difference"
	res, err := RunSolve(ip)
	if err != nil {
		panic(err)
	}
	res.Print()
	// Every particle deposits its whole charge
	assert.Equal(t, math.Abs(res.Charge-4*250) < 1e-9, true)
	assert.Equal(t, res.Residual < 1e-6, true)
	assert.Equal(t, res.Energy > 0, true)
	assert.Equal(t, res.MaxField > 0, true)
	{ // Test a bad Greens function
		ip.Solver.Greens = "multigrid"
		_, err = RunSolve(ip)
		assert.Equal(t, err != nil, true)
	}
}

func testInput() (ip *InputParameters.InputParametersPIC) {
	ip = &InputParameters.InputParametersPIC{
		Title:            "Test Case",
		Ranks:            4,
		Grid:             []int{16, 16},
		ParticlesPerRank: 250,
		Steps:            5,
		Seed:             7,
	}
	ip.Defaults()
	if err := ip.Validate(); err != nil {
		panic(err)
	}
	return
}
