/*
Copyright © 2023 the densbin authors.
This file is part of densbin.

densbin is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

densbin is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with densbin.  If not, see <http://www.gnu.org/licenses/>.
*/

package densbinutil

import (
	"fmt"

	"github.com/lnashier/viper"
	"github.com/oceanmodel/densbin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to densbin.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "debug",
			usage: `
              debug enables debug-level log output.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Files.Thetao",
			usage: `
              Files.Thetao is the path to the monthly potential temperature
              input file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Files.So",
			usage: `
              Files.So is the path to the monthly salinity input file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Files.Flux",
			usage: `
              Files.Flux is the path to a monthly surface flux file holding
              tos, sos, hfds, and wfo. When set, water-mass transformation
              diagnostics are included in the output.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Files.Grid",
			usage: `
              Files.Grid is the path to a file holding the cell area
              (areacello) and basin code (basin) fields. When unset, both
              are derived from the coordinate axes.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Vars.Thetao",
			usage: `
              Vars.Thetao is the name of the potential temperature variable.`,
			defaultVal: "thetao",
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Vars.So",
			usage: `
              Vars.So is the name of the salinity variable.`,
			defaultVal: "so",
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Vars.Lat",
			usage: `
              Vars.Lat is the name of the latitude axis.`,
			defaultVal: "lat",
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Vars.Lon",
			usage: `
              Vars.Lon is the name of the longitude axis.`,
			defaultVal: "lon",
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Vars.Lev",
			usage: `
              Vars.Lev is the name of the depth axis.`,
			defaultVal: "lev",
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Grid.RhoMin",
			usage: `
              Grid.RhoMin is the lightest target density level
              [kg m-3, minus 1000].`,
			defaultVal: 19.0,
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Grid.RhoInt",
			usage: `
              Grid.RhoInt is the density where bin spacing switches from
              fine to coarse [kg m-3, minus 1000].`,
			defaultVal: 26.0,
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Grid.RhoMax",
			usage: `
              Grid.RhoMax is the densest target density level
              [kg m-3, minus 1000].`,
			defaultVal: 28.5,
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Grid.DelFine",
			usage: `
              Grid.DelFine is the bin width between RhoMin and RhoInt.`,
			defaultVal: 0.2,
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "Grid.DelCoarse",
			usage: `
              Grid.DelCoarse is the bin width between RhoInt and RhoMax.`,
			defaultVal: 0.1,
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "TimeInt",
			usage: `
              TimeInt restricts processing to time steps [first, last).
              Two zeros mean the whole file. The subset must cover whole
              years.`,
			defaultVal: []int{0, 0},
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "TargetRes",
			usage: `
              TargetRes is the resolution [degrees] of the regular grid
              the zonal diagnostics are computed on.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "mthout",
			usage: `
              mthout enables writing the full binned monthly fields in
              addition to the zonal diagnostics. The monthly file can be
              very large.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "OutputPrefix",
			usage: `
              OutputPrefix is the stem of the binning output file names.`,
			shorthand:  "o",
			defaultVal: "densbin_out",
			flagsets:   []*pflag.FlagSet{binCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path of the output file.`,
			defaultVal: "densbin_out.nc",
			flagsets:   []*pflag.FlagSet{ensembleCmd.Flags(), toeCmd.Flags()},
		},
		{
			name: "Ensemble.Files",
			usage: `
              Ensemble.Files lists the per-run zonal diagnostic files to
              combine. They must share grids and experiment periods.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{ensembleCmd.Flags()},
		},
		{
			name: "Ensemble.RefStart",
			usage: `
              Ensemble.RefStart is the first year (inclusive) of the
              reference period sign-agreement anomalies are taken against.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{ensembleCmd.Flags()},
		},
		{
			name: "Ensemble.RefEnd",
			usage: `
              Ensemble.RefEnd is the last year (exclusive) of the
              reference period.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{ensembleCmd.Flags()},
		},
		{
			name: "mme",
			usage: `
              mme marks the ensemble inputs as being ensemble means
              themselves; their stored sign-agreement fields are then
              averaged instead of recomputed.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{ensembleCmd.Flags()},
		},
		{
			name: "ToE.SignalFile",
			usage: `
              ToE.SignalFile is the zonal diagnostic file of the forced run.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{toeCmd.Flags()},
		},
		{
			name: "ToE.ControlFile",
			usage: `
              ToE.ControlFile is the zonal diagnostic file of the matching
              unforced control run, used as the noise estimate.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{toeCmd.Flags()},
		},
		{
			name: "ToE.Multiplier",
			usage: `
              ToE.Multiplier scales the control standard deviation to form
              the noise envelope a signal must leave to emerge.`,
			defaultVal: 2.0,
			flagsets:   []*pflag.FlagSet{toeCmd.Flags()},
		},
		{
			name: "ToE.RefStart",
			usage: `
              ToE.RefStart is the first year (inclusive) of the reference
              period anomalies are taken against.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{toeCmd.Flags()},
		},
		{
			name: "ToE.RefEnd",
			usage: `
              ToE.RefEnd is the last year (exclusive) of the reference
              period.`,
			defaultVal: 50,
			flagsets:   []*pflag.FlagSet{toeCmd.Flags()},
		},
		{
			name: "ToE.Vars",
			usage: `
              ToE.Vars lists the diagnostic variables to analyze, without
              basin suffix.`,
			defaultVal: []string{"isonthetao", "isonso"},
			flagsets:   []*pflag.FlagSet{toeCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("DENSBIN")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case []int:
				if option.shorthand == "" {
					set.IntSlice(option.name, option.defaultVal.([]int), option.usage)
				} else {
					set.IntSliceP(option.name, option.shorthand, option.defaultVal.([]int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(binCmd)
	Root.AddCommand(ensembleCmd)
	Root.AddCommand(toeCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("densbin: problem reading configuration file: %v", err)
		}
	}
	if Cfg.GetBool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "densbin",
	Short: "Ocean density binning and change detection.",
	Long: `densbin remaps ocean climate-model output onto neutral density
surfaces and detects where long-term changes on those surfaces emerge
from internal variability. Use the subcommands specified below to access
the functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'DENSBIN_var' where 'var' is the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration
information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of densbin.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("densbin v%s\n", densbin.Version)
	},
	DisableAutoGenTag: true,
}

// binCmd runs the density binning pipeline for one model run.
var binCmd = &cobra.Command{
	Use:   "bin",
	Short: "Bin a model run by neutral density.",
	Long: `bin reads the monthly temperature and salinity of one climate-model
run, remaps every water column onto a target density grid, and writes
annual zonal-mean diagnostics per ocean basin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := BinConfig(Cfg)
		if err != nil {
			return err
		}
		return densbin.DensityBin(cfg)
	},
	DisableAutoGenTag: true,
}

// ensembleCmd combines the zonal diagnostics of several runs.
var ensembleCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "Combine binned runs into ensemble statistics.",
	Long: `ensemble combines the zonal diagnostic files of several runs into
pointwise ensemble mean, sign agreement, and spread, masking statistics
inside the ensemble-mean bowl.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := EnsembleConfig(Cfg)
		if err != nil {
			return err
		}
		return densbin.RunEnsemble(cfg)
	},
	DisableAutoGenTag: true,
}

// toeCmd runs the emergence analysis.
var toeCmd = &cobra.Command{
	Use:   "toe",
	Short: "Detect the time of emergence of changes.",
	Long: `toe compares a forced run's zonal diagnostics against the internal
variability of a matching control run and reports, at every point, the
year after which the change signal stays outside the noise envelope.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := ToEConfig(Cfg)
		if err != nil {
			return err
		}
		return densbin.RunToE(cfg)
	},
	DisableAutoGenTag: true,
}
