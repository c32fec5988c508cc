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

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gopic",
	Short: "Particle in cell framework core: particle redistribution, halo exchange and FFT Poisson solves",
	Long: `
Runs the parallel particle in cell core on an in-process world of ranks.

gopic update -I input.yaml   particle redistribution benchmark
gopic solve  -I input.yaml   charge deposit, Poisson solve and field gather
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gopic.yaml)")
	pf.StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- Grid\n\t- ParticlesPerRank\n\t- BCs")
	pf.String("profile", "", "write a cpu or mem profile into the working directory")
	pf.IntP("ranks", "r", 0, "number of ranks, overrides the input file")
	pf.IntP("particles", "p", 0, "particles created per rank, overrides the input file")
	pf.IntP("steps", "s", 0, "number of steps, overrides the input file")
	pf.String("locate", "", "locate policy for particles outside every region: fail, nearest or keep")
	pf.String("counts", "", "receive count exchange: window or alltoall")
	for _, key := range []string{"inputConditionsFile", "profile", "ranks", "particles", "steps", "locate", "counts"} {
		if err := viper.BindPFlag(key, pf.Lookup(key)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		// Search config in home directory with name ".gopic" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".gopic")
	}
	viper.SetEnvPrefix("GOPIC")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

type stopper interface{ Stop() }

type nopStopper struct{}

func (nopStopper) Stop() {}

// startProfile honors --profile; the caller defers Stop.
func startProfile() stopper {
	switch viper.GetString("profile") {
	case "cpu":
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	case "mem":
		return profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	case "":
	default:
		fmt.Printf("error: unknown profile %q, want cpu or mem\n", viper.GetString("profile"))
		os.Exit(1)
	}
	return nopStopper{}
}
