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
	"encoding/json"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/oceanmodel/densbin"
	"github.com/spf13/cast"
)

// BinConfig assembles and validates the binning settings from the
// configuration.
func BinConfig(cfg *viper.Viper) (*densbin.Config, error) {
	c := &densbin.Config{
		ThetaoFile:   os.ExpandEnv(cfg.GetString("Files.Thetao")),
		SoFile:       os.ExpandEnv(cfg.GetString("Files.So")),
		FluxFile:     os.ExpandEnv(cfg.GetString("Files.Flux")),
		GridFile:     os.ExpandEnv(cfg.GetString("Files.Grid")),
		ThetaoVar:    cfg.GetString("Vars.Thetao"),
		SoVar:        cfg.GetString("Vars.So"),
		LatVar:       cfg.GetString("Vars.Lat"),
		LonVar:       cfg.GetString("Vars.Lon"),
		LevVar:       cfg.GetString("Vars.Lev"),
		OutputPrefix: os.ExpandEnv(cfg.GetString("OutputPrefix")),
		MonthlyOut:   cfg.GetBool("mthout"),
		RhoMin:       cfg.GetFloat64("Grid.RhoMin"),
		RhoInt:       cfg.GetFloat64("Grid.RhoInt"),
		RhoMax:       cfg.GetFloat64("Grid.RhoMax"),
		DelFine:      cfg.GetFloat64("Grid.DelFine"),
		DelCoarse:    cfg.GetFloat64("Grid.DelCoarse"),
		TargetRes:    cfg.GetFloat64("TargetRes"),
	}
	if c.ThetaoFile == "" || c.SoFile == "" {
		return nil, fmt.Errorf("densbin: Files.Thetao and Files.So must be set")
	}
	if !(c.RhoMin < c.RhoInt && c.RhoInt < c.RhoMax) {
		return nil, fmt.Errorf("densbin: density grid needs RhoMin < RhoInt < RhoMax, got %g, %g, %g",
			c.RhoMin, c.RhoInt, c.RhoMax)
	}
	if c.DelFine <= 0 || c.DelCoarse <= 0 {
		return nil, fmt.Errorf("densbin: density bin widths must be positive, got %g and %g",
			c.DelFine, c.DelCoarse)
	}
	if c.TargetRes <= 0 {
		return nil, fmt.Errorf("densbin: TargetRes must be positive, got %g", c.TargetRes)
	}
	ti, err := toIntSliceE(cfg.Get("TimeInt"))
	if err != nil {
		return nil, fmt.Errorf("densbin: parsing TimeInt: %v", err)
	}
	if len(ti) != 2 || ti[0] < 0 || (ti[1] != 0 && ti[1] <= ti[0]) {
		return nil, fmt.Errorf("densbin: TimeInt must be two time steps [first, last), got %v", ti)
	}
	c.TimeInt = [2]int{ti[0], ti[1]}
	return c, nil
}

// EnsembleConfig assembles and validates the ensemble settings from the
// configuration.
func EnsembleConfig(cfg *viper.Viper) (*densbin.EnsembleConfig, error) {
	c := &densbin.EnsembleConfig{
		InputFiles: expandStringSlice(cfg.GetStringSlice("Ensemble.Files")),
		OutputFile: os.ExpandEnv(cfg.GetString("OutputFile")),
		MME:        cfg.GetBool("mme"),
		RefStart:   cfg.GetInt("Ensemble.RefStart"),
		RefEnd:     cfg.GetInt("Ensemble.RefEnd"),
	}
	if len(c.InputFiles) == 0 {
		return nil, fmt.Errorf("densbin: Ensemble.Files must list at least one input file")
	}
	if c.OutputFile == "" {
		return nil, fmt.Errorf("densbin: OutputFile must be set")
	}
	if c.RefEnd <= c.RefStart || c.RefStart < 0 {
		return nil, fmt.Errorf("densbin: reference period [%d, %d) is invalid", c.RefStart, c.RefEnd)
	}
	return c, nil
}

// ToEConfig assembles and validates the emergence-analysis settings from
// the configuration.
func ToEConfig(cfg *viper.Viper) (*densbin.ToEConfig, error) {
	c := &densbin.ToEConfig{
		SignalFile:  os.ExpandEnv(cfg.GetString("ToE.SignalFile")),
		ControlFile: os.ExpandEnv(cfg.GetString("ToE.ControlFile")),
		OutputFile:  os.ExpandEnv(cfg.GetString("OutputFile")),
		Multiplier:  cfg.GetFloat64("ToE.Multiplier"),
		RefStart:    cfg.GetInt("ToE.RefStart"),
		RefEnd:      cfg.GetInt("ToE.RefEnd"),
		Vars:        expandStringSlice(cfg.GetStringSlice("ToE.Vars")),
	}
	if c.SignalFile == "" || c.ControlFile == "" {
		return nil, fmt.Errorf("densbin: ToE.SignalFile and ToE.ControlFile must be set")
	}
	if c.Multiplier <= 0 {
		return nil, fmt.Errorf("densbin: ToE.Multiplier must be positive, got %g", c.Multiplier)
	}
	if c.RefEnd <= c.RefStart || c.RefStart < 0 {
		return nil, fmt.Errorf("densbin: reference period [%d, %d) is invalid", c.RefStart, c.RefEnd)
	}
	return c, nil
}

// expandStringSlice expands any environment variables in a slice of
// strings.
func expandStringSlice(s []string) []string {
	o := make([]string, len(s))
	for i, v := range s {
		o[i] = os.ExpandEnv(v)
	}
	return o
}

// toIntSliceE converts an interface to a slice of ints, accounting for
// the fact that it might be a json object if it was set from a command
// line argument.
func toIntSliceE(s interface{}) ([]int, error) {
	if str, ok := s.(string); ok {
		var o []int
		if err := json.Unmarshal([]byte(str), &o); err != nil {
			return nil, err
		}
		return o, nil
	}
	return cast.ToIntSliceE(s)
}
