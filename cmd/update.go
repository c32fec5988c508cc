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
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gopic/InputParameters"
	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/particle"
	"github.com/notargets/gopic/utils"
)

// UpdateCmd represents the update command
var UpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Particle redistribution benchmark",
	Long: `
Seeds particles uniformly in the region of every rank, then moves them at
random and redistributes them with the spatial layout for a number of steps.
The global particle count is checked after every step.

gopic update -I input.yaml -r 8 -s 100`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("update called")
		defer startProfile().Stop()
		ip, err := processInput()
		if err != nil {
			fmt.Printf("Example File:%s\n", exampleFile)
		}
		exitOnError(err)
		ip.Print()
		res, err := RunUpdate(ip, viper.GetString("snapshot"))
		exitOnError(err)
		res.Print()
	},
}

func init() {
	rootCmd.AddCommand(UpdateCmd)
	UpdateCmd.Flags().String("snapshot", "", "directory for zstd compressed particle snapshots of the final step, one file per rank")
	if err := viper.BindPFlag("snapshot", UpdateCmd.Flags().Lookup("snapshot")); err != nil {
		panic(err)
	}
}

type UpdateResult struct {
	Initial, Final statistics
	Counts         []int           // Final particle count per rank
	Timers         []*utils.Timings // Per rank
	Elapsed        time.Duration
}

func (res *UpdateResult) Print() {
	fmt.Printf("initial: %s\n", res.Initial)
	fmt.Printf("final:   %s\n", res.Final)
	for r, n := range res.Counts {
		fmt.Printf("rank %d: %d particles\n", r, n)
	}
	fmt.Printf("elapsed %v\n", res.Elapsed)
	fmt.Println(utils.GetMemUsage())
	if len(res.Timers) != 0 {
		fmt.Println("rank 0 timers:")
		res.Timers[0].Print(os.Stdout)
	}
}

// RunUpdate runs the redistribution benchmark on a fresh world. It fails
// when a step changes the global particle count. A non empty snapshotDir
// receives the final particles of every rank.
func RunUpdate(ip *InputParameters.InputParametersPIC, snapshotDir string) (res *UpdateResult, err error) {
	res = &UpdateResult{
		Counts: make([]int, ip.Ranks),
		Timers: make([]*utils.Timings, ip.Ranks),
	}
	start := time.Now()
	err = newWorld(ip).Run(func(c *comm.Communicator) (err error) {
		var (
			rs *rankSetup
			st statistics
		)
		if rs, err = newRankSetup(c, ip); err != nil {
			return
		}
		res.Timers[c.Rank()] = rs.timers
		if st, err = gatherStatistics(rs.p); err != nil {
			return
		}
		if c.Rank() == 0 {
			res.Initial = st
		}
		for step := 0; step < ip.Steps; step++ {
			rs.displace(ip)
			if err = rs.sl.Update(rs.p); err != nil {
				return
			}
			if st, err = gatherStatistics(rs.p); err != nil {
				return
			}
			if st.Total != int64(ip.Ranks*ip.ParticlesPerRank) {
				err = fmt.Errorf("step %d: %d particles, started with %d",
					step, st.Total, ip.Ranks*ip.ParticlesPerRank)
				return
			}
		}
		res.Counts[c.Rank()] = rs.p.LocalNum()
		if len(snapshotDir) != 0 {
			if err = writeSnapshot(snapshotDir, rs.p); err != nil {
				return
			}
		}
		if c.Rank() == 0 {
			res.Final = st
		}
		return
	})
	res.Elapsed = time.Since(start)
	return
}

func snapshotName(dir string, rank int) string {
	return filepath.Join(dir, fmt.Sprintf("particles.%04d.zst", rank))
}

func writeSnapshot(dir string, p *particle.Base) (err error) {
	var fi *os.File
	if fi, err = os.Create(snapshotName(dir, p.Comm().Rank())); err != nil {
		return
	}
	defer func() {
		if cerr := fi.Close(); err == nil {
			err = cerr
		}
	}()
	return particle.WriteSnapshot(fi, p, 1)
}
