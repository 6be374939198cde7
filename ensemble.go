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

// coveragePct is the minimum percentage of ensemble members that must
// hold a valid value at a point for the ensemble statistics there to be
// reported.
const coveragePct = 50.

// EnsembleStats holds pointwise statistics across the members of an
// ensemble. All fields have the shape of the input members.
type EnsembleStats struct {
	// Mean is the average over valid members.
	Mean *sparse.DenseArray
	// Agree is the average sign of the members, in [-1, 1]; its
	// magnitude measures how well the members agree on the sign of
	// the value.
	Agree *sparse.DenseArray
	// StdDev is the population standard deviation over valid members,
	// a measure of inter-member spread.
	StdDev *sparse.DenseArray
	// Count is the number of valid members at each point.
	Count *sparse.DenseArray
}

// CombineRuns computes pointwise ensemble statistics over runs, which
// must all share one shape with time leading; a length mismatch means
// the runs were produced from inconsistent experiment periods and is an
// error rather than something to paper over. Points covered by fewer
// than half of the members are masked everywhere in the result.
func CombineRuns(runs []*sparse.DenseArray) (*EnsembleStats, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("densbin: ensemble needs at least one run")
	}
	shape := runs[0].Shape
	for i, r := range runs[1:] {
		if len(r.Shape) != len(shape) {
			return nil, fmt.Errorf("densbin: run %d rank %d does not match run 0 rank %d",
				i+1, len(r.Shape), len(shape))
		}
		for d := range shape {
			if r.Shape[d] != shape[d] {
				return nil, fmt.Errorf("densbin: run %d shape %v does not match run 0 shape %v (check experiment periods)",
					i+1, r.Shape, shape)
			}
		}
	}
	s := &EnsembleStats{
		Mean:   sparse.ZerosDense(shape...),
		Agree:  sparse.ZerosDense(shape...),
		StdDev: sparse.ZerosDense(shape...),
		Count:  sparse.ZerosDense(shape...),
	}
	vals := make([]float64, 0, len(runs))
	for p := range s.Mean.Elements {
		vals = vals[:0]
		var signSum float64
		for _, r := range runs {
			v := r.Elements[p]
			if IsMasked(v) {
				continue
			}
			vals = append(vals, v)
			signSum += math.Copysign(1, v)
		}
		pct := float64(len(vals)) / float64(len(runs)) * 100.
		if pct < coveragePct {
			s.Mean.Elements[p] = ValMask
			s.Agree.Elements[p] = ValMask
			s.StdDev.Elements[p] = ValMask
			s.Count.Elements[p] = float64(len(vals))
			continue
		}
		s.Mean.Elements[p] = stat.Mean(vals, nil)
		s.Agree.Elements[p] = signSum / float64(len(vals))
		s.StdDev.Elements[p] = stat.PopStdDev(vals, nil)
		s.Count.Elements[p] = float64(len(vals))
	}
	return s, nil
}

// TruncateAboveBowl masks the part of a zonal (time, level, lat) field
// that lies inside the bowl, where values reflect fast seasonal
// ventilation rather than interior change. sigLimit (lat) gives the
// time-mean bowl density at each latitude; levels lighter than it are
// masked, and latitudes where the bowl is undefined lose their whole
// column.
func (g *DensityGrid) TruncateAboveBowl(field, sigLimit *sparse.DenseArray) *sparse.DenseArray {
	nt := field.Shape[0]
	nLev := field.Shape[1]
	nLat := field.Shape[2]
	o := field.Copy()
	for t := 0; t < nt; t++ {
		for y := 0; y < nLat; y++ {
			lim := sigLimit.Get(y)
			for k := 0; k < nLev; k++ {
				if IsMasked(lim) || (k < len(g.Levels) && g.Levels[k] < lim) {
					o.Set(ValMask, t, k, y)
				}
			}
		}
	}
	return o
}

// timeMean collapses the leading time axis of a to its mean over valid
// samples, masking points with no valid sample.
func timeMean(a *sparse.DenseArray) *sparse.DenseArray {
	nt := a.Shape[0]
	o := sparse.ZerosDense(a.Shape[1:]...)
	nPts := len(o.Elements)
	for p := 0; p < nPts; p++ {
		var sum float64
		var n int
		for t := 0; t < nt; t++ {
			v := a.Elements[t*nPts+p]
			if IsMasked(v) {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			o.Elements[p] = ValMask
		} else {
			o.Elements[p] = sum / float64(n)
		}
	}
	return o
}

// Zonal diagnostic variables, without basin suffix. The 2-D ones are
// (time, level, lat) sections and the 1-D ones (time, lat) bowl lines.
var (
	zonalVars2D = []string{"isondepth", "isonthick", "isonvol", "isonthetao", "isonso", "isonpers"}
	zonalVars1D = []string{"ptopsigma", "ptopdepth", "ptopthetao", "ptopso", "persim"}
)

// EnsembleConfig holds the settings for combining the zonal diagnostics
// of several runs into ensemble statistics.
type EnsembleConfig struct {
	// InputFiles are the per-run zonal diagnostic files. They must
	// share grids and experiment periods.
	InputFiles []string
	OutputFile string
	// MME marks the inputs as being ensemble means themselves (a
	// multi-model ensemble of single-model ensembles); their stored
	// sign-agreement fields are then averaged instead of recomputed
	// from the means.
	MME bool
	// RefStart and RefEnd delimit the reference years [RefStart,
	// RefEnd) that each run's sign-agreement anomalies are taken
	// against. Ignored in MME mode.
	RefStart, RefEnd int
	// Log receives progress information; nil means the logrus
	// standard logger.
	Log logrus.FieldLogger
}

// RunEnsemble reads the zonal diagnostics of every input run and writes
// one output file holding, per variable and basin, the pointwise
// ensemble mean, a bowl-truncated copy of the mean, sign agreement and
// spread, plus per-basin member coverage percentages. Sections are
// truncated at the time average of the ensemble-mean bowl density.
func RunEnsemble(cfg *EnsembleConfig) error {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if len(cfg.InputFiles) == 0 {
		return fmt.Errorf("densbin: ensemble needs at least one input file")
	}
	files := make([]*NCFile, len(cfg.InputFiles))
	for i, p := range cfg.InputFiles {
		f, err := OpenNC(p)
		if err != nil {
			return err
		}
		defer f.Close()
		files[i] = f
	}
	lev, err := files[0].ReadAxis("lev")
	if err != nil {
		return err
	}
	lat, err := files[0].ReadAxis("lat")
	if err != nil {
		return err
	}
	// The stored density axis carries the trailing bottom sentinel.
	g := &DensityGrid{Levels: lev[:len(lev)-1]}

	var vars []OutputVar
	for _, b := range Basins {
		sfx := b.Suffix()
		for _, v := range zonalVars2D {
			vars = append(vars,
				OutputVar{Name: v + sfx, Dims: []string{"time", "lev", "lat"}},
				OutputVar{Name: v + sfx + "Bowl", Dims: []string{"time", "lev", "lat"}},
				OutputVar{Name: v + sfx + "Agree", Dims: []string{"time", "lev", "lat"}, Units: "1"},
				OutputVar{Name: v + sfx + "Std", Dims: []string{"time", "lev", "lat"}},
			)
		}
		for _, v := range zonalVars1D {
			vars = append(vars,
				OutputVar{Name: v + sfx, Dims: []string{"time", "lat"}},
				OutputVar{Name: v + sfx + "Agree", Dims: []string{"time", "lat"}, Units: "1"},
				OutputVar{Name: v + sfx + "Std", Dims: []string{"time", "lat"}},
			)
		}
		vars = append(vars,
			OutputVar{Name: "isonpercent" + sfx, Dims: []string{"time", "lev", "lat"}, Units: "%", LongName: "Percentage of members with valid data"},
			OutputVar{Name: "ptoppercent" + sfx, Dims: []string{"time", "lat"}, Units: "%", LongName: "Percentage of members with valid data"},
		)
	}
	vars = append(vars,
		OutputVar{Name: "lev", Dims: []string{"lev"}, Units: "kg m-3", LongName: "Neutral density anomaly"},
		OutputVar{Name: "lat", Dims: []string{"lat"}, Units: "degrees_north"},
	)
	w, err := CreateOutput(cfg.OutputFile, []string{"time", "lev", "lat"}, []int{0, len(lev), len(lat)}, vars)
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

	combine := func(name string) (*EnsembleStats, error) {
		runs := make([]*sparse.DenseArray, len(files))
		for i, f := range files {
			a, err := f.ReadFull(name)
			if err != nil {
				return nil, err
			}
			runs[i] = a
		}
		s, err := CombineRuns(runs)
		if err != nil {
			return nil, fmt.Errorf("combining %s: %v", name, err)
		}
		if cfg.MME && hasVar(files[0], name+"Agree") {
			agree := make([]*sparse.DenseArray, len(files))
			for i, f := range files {
				a, err := f.ReadFull(name + "Agree")
				if err != nil {
					return nil, err
				}
				agree[i] = a
			}
			as, err := CombineRuns(agree)
			if err != nil {
				return nil, err
			}
			s.Agree = as.Mean
			return s, nil
		}
		// Sign agreement measures whether the members agree on the
		// direction of change, so it is taken over anomalies relative to
		// the reference period rather than over the values themselves.
		anoms := make([]*sparse.DenseArray, len(runs))
		for i, r := range runs {
			a, err := anomaly(r, cfg.RefStart, cfg.RefEnd)
			if err != nil {
				return nil, fmt.Errorf("combining %s: %v", name, err)
			}
			anoms[i] = a
		}
		as, err := CombineRuns(anoms)
		if err != nil {
			return nil, err
		}
		s.Agree = as.Agree
		return s, nil
	}
	writeStats := func(name string, s *EnsembleStats, bowl *sparse.DenseArray) error {
		agree, std := s.Agree, s.StdDev
		if err := w.WriteChunk(name, 0, s.Mean); err != nil {
			return err
		}
		if bowl != nil {
			agree = g.TruncateAboveBowl(agree, bowl)
			std = g.TruncateAboveBowl(std, bowl)
			if err := w.WriteChunk(name+"Bowl", 0, g.TruncateAboveBowl(s.Mean, bowl)); err != nil {
				return err
			}
		}
		if err := w.WriteChunk(name+"Agree", 0, agree); err != nil {
			return err
		}
		return w.WriteChunk(name+"Std", 0, std)
	}
	// Coverage does not depend on the variable, so it is written once
	// per basin and section shape.
	coverage := func(count *sparse.DenseArray) *sparse.DenseArray {
		o := sparse.ZerosDense(count.Shape...)
		for i, c := range count.Elements {
			pct := c / float64(len(files)) * 100.
			if pct < coveragePct {
				pct = ValMask
			}
			o.Elements[i] = pct
		}
		return o
	}

	for _, b := range Basins {
		sfx := b.Suffix()
		log.WithFields(logrus.Fields{"basin": b.String(), "runs": len(files)}).Info("combining ensemble")
		var bowlSigma *sparse.DenseArray
		for i, v := range zonalVars1D {
			s, err := combine(v + sfx)
			if err != nil {
				return err
			}
			if v == "ptopsigma" {
				// The bowl only makes physical sense as a mean state, so
				// the truncation limit is the time average of the
				// ensemble-mean bowl density.
				bowlSigma = timeMean(s.Mean)
			}
			if i == 0 {
				if err := w.WriteChunk("ptoppercent"+sfx, 0, coverage(s.Count)); err != nil {
					return err
				}
			}
			if err := writeStats(v+sfx, s, nil); err != nil {
				return err
			}
		}
		for i, v := range zonalVars2D {
			s, err := combine(v + sfx)
			if err != nil {
				return err
			}
			if i == 0 {
				if err := w.WriteChunk("isonpercent"+sfx, 0, coverage(s.Count)); err != nil {
					return err
				}
			}
			if err := writeStats(v+sfx, s, bowlSigma); err != nil {
				return err
			}
		}
	}
	return nil
}
