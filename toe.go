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

package densbin

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// FindToE computes the Time of Emergence of a change signal from
// internal variability. signal is an anomaly series with leading time
// axis; noise gives the variability envelope at each point (one standard
// deviation of an unforced control run) and must have the signal's shape
// without the time axis.
//
// The emergence time at a point is the first time index t such that
// |signal| reaches mult*noise at every step from t through the end of
// the series. A signal outside the envelope over the whole series
// emerges at index 0; one that is inside the envelope at the final step
// has not emerged and reports the series length. Points with masked
// noise, or with no valid signal at all, are masked; individual missing
// signal samples count as non-emergent.
func FindToE(signal, noise *sparse.DenseArray, mult float64) (*sparse.DenseArray, error) {
	if len(signal.Shape) < 2 {
		return nil, fmt.Errorf("densbin: emergence signal needs a time axis plus at least one space axis, got shape %v", signal.Shape)
	}
	if len(noise.Shape) != len(signal.Shape)-1 {
		return nil, fmt.Errorf("densbin: noise rank %d does not match signal rank %d minus time",
			len(noise.Shape), len(signal.Shape))
	}
	for d, n := range noise.Shape {
		if n != signal.Shape[d+1] {
			return nil, fmt.Errorf("densbin: noise shape %v does not match signal shape %v without time",
				noise.Shape, signal.Shape)
		}
	}
	nt := signal.Shape[0]
	nPts := len(noise.Elements)
	o := sparse.ZerosDense(noise.Shape...)
	for p := 0; p < nPts; p++ {
		nv := noise.Elements[p]
		if IsMasked(nv) {
			o.Elements[p] = ValMask
			continue
		}
		anyValid := false
		for t := 0; t < nt; t++ {
			if !IsMasked(signal.Elements[t*nPts+p]) {
				anyValid = true
				break
			}
		}
		if !anyValid {
			o.Elements[p] = ValMask
			continue
		}
		toe := 0
		for t := nt - 1; t >= 0; t-- {
			v := signal.Elements[t*nPts+p]
			if IsMasked(v) || math.Abs(v) < mult*nv {
				toe = t + 1
				break
			}
		}
		o.Elements[p] = float64(toe)
	}
	return o, nil
}

// ToEConfig holds the settings for an emergence analysis of zonal
// diagnostics.
type ToEConfig struct {
	// SignalFile is the zonal diagnostic file of the forced run and
	// ControlFile that of the matching unforced control run.
	SignalFile, ControlFile string
	OutputFile              string
	// Multiplier scales the control standard deviation to form the
	// noise envelope.
	Multiplier float64
	// RefStart and RefEnd delimit the reference years [RefStart,
	// RefEnd) of the forced run that anomalies are taken against.
	RefStart, RefEnd int
	// Vars are the diagnostic variables to analyze, without basin
	// suffix; nil means temperature and salinity on isopycnals.
	Vars []string
	// Log receives progress information; nil means the logrus
	// standard logger.
	Log logrus.FieldLogger
}

// RunToE computes, for each analyzed variable and basin, the anomaly of
// the forced run against its reference period, the noise as the control
// run's temporal standard deviation, and the resulting emergence year
// at every (level, lat) point, writing emergence and noise fields to
// one output file.
func RunToE(cfg *ToEConfig) error {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	vars := cfg.Vars
	if len(vars) == 0 {
		vars = []string{"isonthetao", "isonso"}
	}
	sig, err := OpenNC(cfg.SignalFile)
	if err != nil {
		return err
	}
	defer sig.Close()
	ctl, err := OpenNC(cfg.ControlFile)
	if err != nil {
		return err
	}
	defer ctl.Close()
	lev, err := sig.ReadAxis("lev")
	if err != nil {
		return err
	}
	lat, err := sig.ReadAxis("lat")
	if err != nil {
		return err
	}

	var outVars []OutputVar
	for _, b := range Basins {
		for _, v := range vars {
			outVars = append(outVars,
				OutputVar{Name: v + b.Suffix() + "Toe", Dims: []string{"lev", "lat"}, Units: "yr",
					LongName: "Time of emergence, " + b.String()},
				OutputVar{Name: v + b.Suffix() + "Noise", Dims: []string{"lev", "lat"},
					LongName: "Control variability, " + b.String()},
			)
		}
	}
	outVars = append(outVars,
		OutputVar{Name: "lev", Dims: []string{"lev"}, Units: "kg m-3", LongName: "Neutral density anomaly"},
		OutputVar{Name: "lat", Dims: []string{"lat"}, Units: "degrees_north"},
	)
	w, err := CreateOutput(cfg.OutputFile, []string{"lev", "lat"}, []int{len(lev), len(lat)}, outVars)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.WriteFloats("lev", lev); err != nil {
		return err
	}
	if err := w.WriteFloats("lat", lat); err != nil {
		return err
	}

	for _, b := range Basins {
		for _, v := range vars {
			name := v + b.Suffix()
			s, err := sig.ReadFull(name)
			if err != nil {
				return err
			}
			c, err := ctl.ReadFull(name)
			if err != nil {
				return err
			}
			anom, err := anomaly(s, cfg.RefStart, cfg.RefEnd)
			if err != nil {
				return err
			}
			noise := timeStd(c)
			toe, err := FindToE(anom, noise, cfg.Multiplier)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"variable": name, "years": s.Shape[0]}).Info("emergence computed")
			if err := w.WriteVar(name+"Toe", toe); err != nil {
				return err
			}
			if err := w.WriteVar(name+"Noise", noise); err != nil {
				return err
			}
		}
	}
	return nil
}

// anomaly subtracts from a (time, ...) series its mean over time steps
// [t0, t1) at each point.
func anomaly(a *sparse.DenseArray, t0, t1 int) (*sparse.DenseArray, error) {
	nt := a.Shape[0]
	if t1 <= t0 || t1 > nt {
		return nil, fmt.Errorf("densbin: reference period [%d, %d) outside series of %d steps", t0, t1, nt)
	}
	nPts := len(a.Elements) / nt
	o := a.Copy()
	for p := 0; p < nPts; p++ {
		var sum float64
		var n int
		for t := t0; t < t1; t++ {
			v := a.Elements[t*nPts+p]
			if IsMasked(v) {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			for t := 0; t < nt; t++ {
				o.Elements[t*nPts+p] = ValMask
			}
			continue
		}
		ref := sum / float64(n)
		for t := 0; t < nt; t++ {
			if !IsMasked(o.Elements[t*nPts+p]) {
				o.Elements[t*nPts+p] -= ref
			}
		}
	}
	return o, nil
}

// timeStd reduces a (time, ...) series to its population standard
// deviation over time at each point; points with no valid samples are
// masked.
func timeStd(a *sparse.DenseArray) *sparse.DenseArray {
	nt := a.Shape[0]
	nPts := len(a.Elements) / nt
	o := sparse.ZerosDense(a.Shape[1:]...)
	vals := make([]float64, 0, nt)
	for p := 0; p < nPts; p++ {
		vals = vals[:0]
		for t := 0; t < nt; t++ {
			v := a.Elements[t*nPts+p]
			if !IsMasked(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			o.Elements[p] = ValMask
			continue
		}
		o.Elements[p] = stat.PopStdDev(vals, nil)
	}
	return o
}
