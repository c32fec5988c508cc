/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/notargets/gopic/InputParameters"
	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/field"
	"github.com/notargets/gopic/particle"
	"github.com/notargets/gopic/utils"
)

const exampleFile = `
########################################
Title: "Uniform plasma"
Ranks: 4
Grid: [32, 32]
Length: [1, 1]
ParticlesPerRank: 10000
Steps: 10
LocatePolicy: fail # Can be "nearest" or "keep"
CountExchange: window # Can be "alltoall"
BCs:
  All: periodic
Solver:
  Greens: spectral # Can be "finite-difference"
########################################
`

// processInput reads the input file (YAML, or INI style for .gcfg and .ini
// names), then applies config file, environment and flag overrides in viper
// order.
func processInput() (ip *InputParameters.InputParametersPIC, err error) {
	ip = &InputParameters.InputParametersPIC{}
	if fileName := viper.GetString("inputConditionsFile"); len(fileName) != 0 {
		var data []byte
		if data, err = os.ReadFile(fileName); err != nil {
			return
		}
		switch strings.ToLower(filepath.Ext(fileName)) {
		case ".gcfg", ".ini":
			err = ip.ParseGcfg(data)
		default:
			err = ip.Parse(data)
		}
		if err != nil {
			return
		}
	}
	if viper.IsSet("ranks") {
		ip.Ranks = viper.GetInt("ranks")
	}
	if viper.IsSet("particles") {
		ip.ParticlesPerRank = viper.GetInt("particles")
	}
	if viper.IsSet("steps") {
		ip.Steps = viper.GetInt("steps")
	}
	if viper.IsSet("locate") {
		ip.LocatePolicy = viper.GetString("locate")
	}
	if viper.IsSet("counts") {
		ip.CountExchange = viper.GetString("counts")
	}
	if viper.IsSet("greens") {
		ip.Solver.Greens = viper.GetString("greens")
	}
	ip.Defaults()
	err = ip.Validate()
	return
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
}

func newWorld(ip *InputParameters.InputParametersPIC) *comm.World {
	var opts []comm.WorldOption
	if ip.MaxMessageSize > 0 {
		opts = append(opts, comm.WithMaxMessageSize(ip.MaxMessageSize))
	}
	return comm.NewWorld(ip.Ranks, opts...)
}

// rankSetup is the per rank state shared by the subcommands.
type rankSetup struct {
	layout *field.Layout
	mesh   *field.Mesh
	sl     *particle.SpatialLayout
	p      *particle.Base
	rng    *rand.Rand
	timers *utils.Timings
}

// newRankSetup decomposes the grid, builds the spatial layout and seeds
// ParticlesPerRank uniform particles inside the region of the rank.
func newRankSetup(c *comm.Communicator, ip *InputParameters.InputParametersPIC) (rs *rankSetup, err error) {
	var (
		dom    = field.NewNDIndex(ip.Grid...)
		origin = make([]float64, ip.Dim())
		lp     particle.LocatePolicy
		ce     particle.CountExchange
		bcs    particle.BCs
	)
	if lp, err = ip.Policy(); err != nil {
		return
	}
	if ce, err = ip.Counts(); err != nil {
		return
	}
	if bcs, err = ip.BoundaryConditions(); err != nil {
		return
	}
	rs = &rankSetup{
		rng:    rand.New(rand.NewSource(ip.Seed + int64(c.Rank()))),
		timers: utils.NewTimings(),
	}
	if rs.layout, err = field.NewLayout(c, dom, nil); err != nil {
		return
	}
	if rs.mesh, err = field.NewMesh(dom, ip.Spacing(), origin); err != nil {
		return
	}
	if rs.sl, err = particle.NewSpatialLayout(rs.layout, rs.mesh,
		particle.WithBCs(bcs),
		particle.WithLocatePolicy(lp),
		particle.WithCountExchange(ce),
		particle.WithVerify(!ip.NoVerify, ip.Strict),
		particle.WithProcLimit(ip.ProcLimit),
		particle.WithTimers(rs.timers),
	); err != nil {
		return
	}
	rs.p = particle.NewBase(c, ip.Dim())
	rs.p.Create(ip.ParticlesPerRank)
	reg := rs.sl.RegionLayout().RegionFor(c.Rank())
	for i := range rs.p.R.Data {
		for d := 0; d < ip.Dim(); d++ {
			rs.p.R.Data[i][d] = reg.Min[d] + rs.rng.Float64()*reg.Length(d)
		}
	}
	return
}

// displace moves every particle by up to Displacement cells per axis.
func (rs *rankSetup) displace(ip *InputParameters.InputParametersPIC) {
	h := ip.Spacing()
	for i := range rs.p.R.Data {
		for d := range h {
			rs.p.R.Data[i][d] += (2*rs.rng.Float64() - 1) * ip.Displacement * h[d]
		}
	}
}

type statistics struct {
	Total, Min, Max int64
}

// gatherStatistics reduces the particle counts of all ranks. Collective.
func gatherStatistics(p *particle.Base) (st statistics, err error) {
	n := int64(p.LocalNum())
	c := p.Comm()
	if st.Total, err = c.AllreduceInt64(n, comm.Sum); err != nil {
		return
	}
	if st.Min, err = c.AllreduceInt64(n, comm.Min); err != nil {
		return
	}
	st.Max, err = c.AllreduceInt64(n, comm.Max)
	return
}

func (st statistics) String() string {
	return fmt.Sprintf("total %d, min %d, max %d per rank", st.Total, st.Min, st.Max)
}
