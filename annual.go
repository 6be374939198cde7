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

	"github.com/ctessum/sparse"
)

// monthsPerYear is the number of time steps grouped into one annual mean.
const monthsPerYear = 12

// persistThreshold is the annual persistence [%] above which a density
// bin is considered permanently ventilated, marking the top of the bowl.
const persistThreshold = 99.

// AnnualMean averages an array over consecutive 12-month groups along its
// leading time axis, ignoring missing values. Points missing in every
// month of a year stay missing. It returns an error if the time axis is
// not a whole number of years.
func AnnualMean(a *sparse.DenseArray) (*sparse.DenseArray, error) {
	nt := a.Shape[0]
	if nt%monthsPerYear != 0 {
		return nil, fmt.Errorf("densbin: annual mean needs whole years, got %d time steps", nt)
	}
	nYears := nt / monthsPerYear
	shape := append([]int{nYears}, a.Shape[1:]...)
	o := sparse.ZerosDense(shape...)
	stride := len(a.Elements) / nt
	for y := 0; y < nYears; y++ {
		for p := 0; p < stride; p++ {
			var sum float64
			var n int
			for m := 0; m < monthsPerYear; m++ {
				v := a.Elements[(y*monthsPerYear+m)*stride+p]
				if IsMasked(v) {
					continue
				}
				sum += v
				n++
			}
			if n == 0 {
				o.Elements[y*stride+p] = ValMask
			} else {
				o.Elements[y*stride+p] = sum / float64(n)
			}
		}
	}
	return o, nil
}

// Persistence reduces monthly binned layer thickness (time, level, lat,
// lon) to the annual percentage of months in which each density bin holds
// water. Bins that are never occupied during a year are masked so that
// they drop out of downstream zonal averages.
func Persistence(thick *sparse.DenseArray) (*sparse.DenseArray, error) {
	nt := thick.Shape[0]
	if nt%monthsPerYear != 0 {
		return nil, fmt.Errorf("densbin: persistence needs whole years, got %d time steps", nt)
	}
	nYears := nt / monthsPerYear
	shape := append([]int{nYears}, thick.Shape[1:]...)
	o := sparse.ZerosDense(shape...)
	stride := len(thick.Elements) / nt
	for y := 0; y < nYears; y++ {
		for p := 0; p < stride; p++ {
			var n int
			for m := 0; m < monthsPerYear; m++ {
				v := thick.Elements[(y*monthsPerYear+m)*stride+p]
				if !IsMasked(v) && v > 0 {
					n++
				}
			}
			pct := float64(n) / monthsPerYear * 100.
			if pct < 1e-6 {
				pct = ValMask
			}
			o.Elements[y*stride+p] = pct
		}
	}
	return o, nil
}

// ZonalMean averages an array over its trailing longitude axis, ignoring
// missing values. Apply a basin mask first to restrict the average to one
// basin.
func ZonalMean(a *sparse.DenseArray) *sparse.DenseArray {
	nLon := a.Shape[len(a.Shape)-1]
	shape := a.Shape[:len(a.Shape)-1]
	o := sparse.ZerosDense(shape...)
	for p := range o.Elements {
		var sum float64
		var n int
		for i := 0; i < nLon; i++ {
			v := a.Elements[p*nLon+i]
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

// VolumePerBin converts zonally averaged layer thickness (year, level,
// lat) to water volume per density bin [10^12 m3], using the zonal ocean
// surface area at each latitude.
func VolumePerBin(zthick *sparse.DenseArray, zarea []float64) *sparse.DenseArray {
	o := zthick.Copy()
	nLat := zthick.Shape[len(zthick.Shape)-1]
	for p := range o.Elements {
		if IsMasked(o.Elements[p]) {
			continue
		}
		o.Elements[p] *= zarea[p%nLat] * 1e-12
	}
	return o
}

// ColumnPersistence reduces annual per-bin persistence and layer
// thickness (year, level, lat, lon) to the thickness-weighted share of
// each water column that is persistently ventilated [%], shaped
// (year, lat, lon). Columns with no valid thickness are masked.
func ColumnPersistence(persist, thick *sparse.DenseArray) *sparse.DenseArray {
	nYears := persist.Shape[0]
	nLev := persist.Shape[1]
	nPts := persist.Shape[2] * persist.Shape[3]
	o := sparse.ZerosDense(nYears, persist.Shape[2], persist.Shape[3])
	for y := 0; y < nYears; y++ {
		for p := 0; p < nPts; p++ {
			var wsum, tsum float64
			for k := 0; k < nLev; k++ {
				pv := persist.Elements[(y*nLev+k)*nPts+p]
				tv := thick.Elements[(y*nLev+k)*nPts+p]
				if IsMasked(pv) || IsMasked(tv) {
					continue
				}
				wsum += pv * tv
				tsum += tv
			}
			if tsum == 0 {
				o.Elements[y*nPts+p] = ValMask
			} else {
				o.Elements[y*nPts+p] = wsum / tsum
			}
		}
	}
	return o
}

// BowlFields holds the properties of the bowl, the quasi-permanently
// ventilated upper layer bounded below by the shallowest density bin
// whose annual persistence reaches persistThreshold. Each field is
// shaped (year, lat, lon).
type BowlFields struct {
	Sigma, Depth, Temp, Salt *sparse.DenseArray
}

// Bowl locates the bowl at every point of annual persistence fields
// (year, level, lat, lon) and reads off its density, depth, temperature
// and salinity. The sentinel bottom level does not take part in the
// search. Columns with no persistent bin report the lightest density
// level; fully masked columns stay masked.
func (g *DensityGrid) Bowl(persist, depth, temp, salt *sparse.DenseArray) *BowlFields {
	nYears := persist.Shape[0]
	nLev := persist.Shape[1]
	nLat := persist.Shape[2]
	nLon := persist.Shape[3]
	nPts := nLat * nLon
	b := &BowlFields{
		Sigma: sparse.ZerosDense(nYears, nLat, nLon),
		Depth: sparse.ZerosDense(nYears, nLat, nLon),
		Temp:  sparse.ZerosDense(nYears, nLat, nLon),
		Salt:  sparse.ZerosDense(nYears, nLat, nLon),
	}
	for y := 0; y < nYears; y++ {
		for p := 0; p < nPts; p++ {
			ks := -1
			masked := true
			for k := 0; k < nLev-1; k++ {
				v := persist.Elements[(y*nLev+k)*nPts+p]
				if IsMasked(v) {
					continue
				}
				masked = false
				if v >= persistThreshold {
					ks = k
					break
				}
			}
			dst := y*nPts + p
			if masked {
				b.Sigma.Elements[dst] = ValMask
				b.Depth.Elements[dst] = ValMask
				b.Temp.Elements[dst] = ValMask
				b.Salt.Elements[dst] = ValMask
				continue
			}
			if ks < 0 {
				ks = 0
			}
			src := (y*nLev+ks)*nPts + p
			b.Sigma.Elements[dst] = g.Levels[ks]
			b.Depth.Elements[dst] = depth.Elements[src]
			b.Temp.Elements[dst] = temp.Elements[src]
			b.Salt.Elements[dst] = salt.Elements[src]
		}
	}
	return b
}
