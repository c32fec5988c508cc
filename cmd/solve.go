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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gopic/InputParameters"
	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/field"
	"github.com/notargets/gopic/particle"
	"github.com/notargets/gopic/solver"
)

// SolveCmd represents the solve command
var SolveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Charge deposit, periodic Poisson solve and field gather",
	Long: `
Seeds unit charges, redistributes them once, deposits them on the grid with
cloud in cell weights against a neutralizing background, solves for the
potential with the FFT and gathers the electric field back onto the
particles.

gopic solve -I input.yaml --greens finite-difference`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("solve called")
		defer startProfile().Stop()
		ip, err := processInput()
		if err != nil {
			fmt.Printf("Example File:%s\n", exampleFile)
		}
		exitOnError(err)
		ip.Print()
		res, err := RunSolve(ip)
		exitOnError(err)
		res.Print()
	},
}

func init() {
	rootCmd.AddCommand(SolveCmd)
	SolveCmd.Flags().String("greens", "", "Greens function: spectral or finite-difference")
	if err := viper.BindPFlag("greens", SolveCmd.Flags().Lookup("greens")); err != nil {
		panic(err)
	}
}

type SolveResult struct {
	Charge   float64 // Deposited charge before neutralization
	Energy   float64 // Field energy eps0/2 sum |E|^2 dV
	Residual float64 // Max norm of lap(phi) + rho/eps0
	MaxField float64 // Largest gathered field component on a particle
}

func (res *SolveResult) Print() {
	fmt.Printf("deposited charge %g\n", res.Charge)
	fmt.Printf("field energy     %g\n", res.Energy)
	fmt.Printf("residual         %g\n", res.Residual)
	fmt.Printf("max |E| gathered %g\n", res.MaxField)
}

// RunSolve runs one deposit, solve and gather cycle on a fresh world.
func RunSolve(ip *InputParameters.InputParametersPIC) (res *SolveResult, err error) {
	res = &SolveResult{}
	err = newWorld(ip).Run(func(c *comm.Communicator) (err error) {
		var (
			rs  *rankSetup
			rho *field.Field[float64]
			phi *field.Field[float64]
			ps  *solver.Poisson
			lap *solver.Laplacian
			E   = make([]*field.Field[float64], ip.Dim())
			q   = particle.NewAttrib[float64]("q")
			eq  = particle.NewAttrib[float64]("E")
		)
		if rs, err = newRankSetup(c, ip); err != nil {
			return
		}
		if err = rs.p.AddAttribute(q); err != nil {
			return
		}
		rs.displace(ip)
		if err = rs.sl.Update(rs.p); err != nil {
			return
		}
		for i := range q.Data {
			q.Data[i] = 1
		}
		if rho, err = field.NewField[float64](rs.mesh, rs.layout, ip.Nghost); err != nil {
			return
		}
		if err = particle.ScatterCIC(rs.p, q, rho); err != nil {
			return
		}
		// Charge density against a uniform neutralizing background
		var total float64
		if total, err = field.Sum(rho); err != nil {
			return
		}
		var (
			vol  = rs.mesh.CellVolume()
			mean = total / float64(rs.layout.Domain().Size())
		)
		rho.ForEachInterior(func(k int, _, _ [comm.MaxDim]int) {
			rho.Data[k] = (rho.Data[k] - mean) / vol
		})
		if phi, err = field.NewFieldLike[float64](rho); err != nil {
			return
		}
		if ps, err = solver.NewPoisson(rs.layout, rs.mesh, ip.Solver); err != nil {
			return
		}
		if err = ps.Solve(rho, phi); err != nil {
			return
		}
		for d := range E {
			if E[d], err = field.NewFieldLike[float64](phi); err != nil {
				return
			}
		}
		if err = ps.Gradient(phi, E); err != nil {
			return
		}
		var energy, maxE float64
		for d := range E {
			var (
				e2  *field.Field[float64]
				sum float64
				m   float64
			)
			if e2, err = field.NewFieldLike[float64](E[d]); err != nil {
				return
			}
			for k, v := range E[d].Data {
				e2.Data[k] = v * v
			}
			if sum, err = field.Sum(e2); err != nil {
				return
			}
			energy += 0.5 * ps.Params().Epsilon0 * sum * vol
			if err = particle.GatherCIC(rs.p, eq, E[d], ip.ProcLimit); err != nil {
				return
			}
			for _, v := range eq.Data {
				m = max(m, v, -v)
			}
			if m, err = c.AllreduceFloat64(m, comm.Max); err != nil {
				return
			}
			maxE = max(maxE, m)
		}
		if lap, err = solver.NewLaplacian(phi, rs.mesh); err != nil {
			return
		}
		var residual float64
		if residual, err = lap.Residual(phi, rho, ps.Params().Epsilon0); err != nil {
			return
		}
		if c.Rank() == 0 {
			res.Charge = total
			res.Energy = energy
			res.Residual = residual
			res.MaxField = maxE
		}
		return
	})
	return
}
