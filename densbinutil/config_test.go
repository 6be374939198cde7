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
	"reflect"
	"testing"
)

func TestBinConfig(t *testing.T) {
	Cfg.Set("Files.Thetao", "thetao.nc")
	Cfg.Set("Files.So", "so.nc")
	c, err := BinConfig(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	if c.ThetaoFile != "thetao.nc" || c.SoFile != "so.nc" {
		t.Errorf("files: %s, %s", c.ThetaoFile, c.SoFile)
	}
	if c.RhoMin != 19.0 || c.RhoInt != 26.0 || c.RhoMax != 28.5 {
		t.Errorf("density range: %g, %g, %g", c.RhoMin, c.RhoInt, c.RhoMax)
	}
	if c.DelFine != 0.2 || c.DelCoarse != 0.1 {
		t.Errorf("bin widths: %g, %g", c.DelFine, c.DelCoarse)
	}
	if c.TargetRes != 1.0 {
		t.Errorf("target resolution: %g", c.TargetRes)
	}
	if c.TimeInt != [2]int{0, 0} {
		t.Errorf("time interval: %v", c.TimeInt)
	}

	t.Run("missing files", func(t *testing.T) {
		Cfg.Set("Files.Thetao", "")
		defer Cfg.Set("Files.Thetao", "thetao.nc")
		if _, err := BinConfig(Cfg); err == nil {
			t.Error("missing input files should be an error")
		}
	})
	t.Run("bad density range", func(t *testing.T) {
		Cfg.Set("Grid.RhoInt", 30.0)
		defer Cfg.Set("Grid.RhoInt", 26.0)
		if _, err := BinConfig(Cfg); err == nil {
			t.Error("RhoInt above RhoMax should be an error")
		}
	})
	t.Run("time interval from command line", func(t *testing.T) {
		Cfg.Set("TimeInt", "[12, 24]")
		defer Cfg.Set("TimeInt", []int{0, 0})
		c, err := BinConfig(Cfg)
		if err != nil {
			t.Fatal(err)
		}
		if c.TimeInt != [2]int{12, 24} {
			t.Errorf("time interval: %v", c.TimeInt)
		}
	})
	t.Run("inverted time interval", func(t *testing.T) {
		Cfg.Set("TimeInt", []int{24, 12})
		defer Cfg.Set("TimeInt", []int{0, 0})
		if _, err := BinConfig(Cfg); err == nil {
			t.Error("inverted time interval should be an error")
		}
	})
}

func TestEnsembleConfig(t *testing.T) {
	if _, err := EnsembleConfig(Cfg); err == nil {
		t.Error("empty ensemble file list should be an error")
	}
	Cfg.Set("Ensemble.Files", []string{"r1.nc", "r2.nc"})
	defer Cfg.Set("Ensemble.Files", []string{})
	c, err := EnsembleConfig(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"r1.nc", "r2.nc"}
	if !reflect.DeepEqual(c.InputFiles, want) {
		t.Errorf("%v != %v", c.InputFiles, want)
	}
	if c.OutputFile != "densbin_out.nc" {
		t.Errorf("output file: %s", c.OutputFile)
	}
	if c.RefStart != 0 || c.RefEnd != 10 {
		t.Errorf("reference period: [%d, %d)", c.RefStart, c.RefEnd)
	}
}

func TestToEConfig(t *testing.T) {
	if _, err := ToEConfig(Cfg); err == nil {
		t.Error("missing signal and control files should be an error")
	}
	Cfg.Set("ToE.SignalFile", "hist.nc")
	Cfg.Set("ToE.ControlFile", "ctl.nc")
	c, err := ToEConfig(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	if c.Multiplier != 2.0 {
		t.Errorf("multiplier: %g", c.Multiplier)
	}
	if c.RefStart != 0 || c.RefEnd != 50 {
		t.Errorf("reference period: [%d, %d)", c.RefStart, c.RefEnd)
	}
	want := []string{"isonthetao", "isonso"}
	if !reflect.DeepEqual(c.Vars, want) {
		t.Errorf("%v != %v", c.Vars, want)
	}
	t.Run("bad reference period", func(t *testing.T) {
		Cfg.Set("ToE.RefEnd", 0)
		defer Cfg.Set("ToE.RefEnd", 50)
		if _, err := ToEConfig(Cfg); err == nil {
			t.Error("empty reference period should be an error")
		}
	})
}
