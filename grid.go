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
	"math"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// DensityGrid is the prescribed target grid of neutral-density levels that
// water columns are remapped onto. Resolution is finer above the
// intermediate density break than below it, zooming on the thermocline.
// Levels are strictly increasing and the grid is immutable once built;
// it is shared read-only across all columns and runs.
type DensityGrid struct {
	// Levels holds the target density values [kg m-3, minus 1000].
	Levels []float64
	// Deltas holds the bin width at each level.
	Deltas []float64
	// Axis is Levels plus one trailing sentinel level (used as the output
	// vertical axis: the extra level carries the ocean-bottom properties).
	Axis []float64
	// DeltaFine is the bin width of the finely resolved range. Columns
	// whose total stratification is below it are treated as unstratified.
	DeltaFine float64
}

// NewDensityGrid builds the target density grid from (rhoMin, rhoInt,
// rhoMax) densities with spacing delFine in [rhoMin, rhoInt) and delCoarse
// in [rhoInt, rhoMax). rhoMin < rhoInt < rhoMax is a precondition; callers
// validate before use.
func NewDensityGrid(rhoMin, rhoInt, rhoMax, delFine, delCoarse float64) *DensityGrid {
	n1 := int(math.Round((rhoInt - rhoMin) / delFine))
	n2 := int(math.Round((rhoMax - rhoInt) / delCoarse))
	g := &DensityGrid{
		Levels:    make([]float64, n1+n2),
		Deltas:    make([]float64, n1+n2),
		DeltaFine: delFine,
	}
	for i := 0; i < n1; i++ {
		g.Levels[i] = rhoMin + float64(i)*delFine
		g.Deltas[i] = delFine
	}
	for i := 0; i < n2; i++ {
		g.Levels[n1+i] = rhoInt + float64(i)*delCoarse
		g.Deltas[n1+i] = delCoarse
	}
	g.Axis = append(append([]float64{}, g.Levels...), g.Levels[n1+n2-1]+delCoarse)
	return g
}

// N returns the number of target density levels, excluding the bottom
// sentinel level.
func (g *DensityGrid) N() int { return len(g.Levels) }

// CellArea calculates horizontal grid-cell areas [m2] for cell mid-point
// coordinates lon [0,360) and lat (-90,90), using
// area = R^2 (lon2-lon1) (sin(lat2) - sin(lat1)).
// Boundary rows and columns copy their nearest interior neighbor.
func CellArea(lon, lat []float64) *sparse.DenseArray {
	const radconv = math.Pi / 180.
	nLon := len(lon)
	nLat := len(lat)
	area := sparse.ZerosDense(nLat, nLon)
	cell := func(lonm1, lonp1, latm1, latp1 float64) float64 {
		return EarthRadius * EarthRadius * (lonp1 - lonm1) * (math.Sin(latp1) - math.Sin(latm1))
	}
	for i := 1; i < nLon-1; i++ {
		lonm1 := (lon[i-1] + lon[i]) * 0.5 * radconv
		lonp1 := (lon[i] + lon[i+1]) * 0.5 * radconv
		for j := 1; j < nLat-1; j++ {
			latm1 := (lat[j-1] + lat[j]) * 0.5 * radconv
			latp1 := (lat[j] + lat[j+1]) * 0.5 * radconv
			area.Set(cell(lonm1, lonp1, latm1, latp1), j, i)
		}
		// north and south bounds
		latm1 := (-90.*radconv + lat[0]*radconv) * 0.5
		latp1 := (lat[0] + lat[1]) * 0.5 * radconv
		area.Set(cell(lonm1, lonp1, latm1, latp1), 0, i)
		latm1 = (lat[nLat-2] + lat[nLat-1]) * 0.5 * radconv
		latp1 = (lat[nLat-1]*radconv + 90.*radconv) * 0.5
		area.Set(cell(lonm1, lonp1, latm1, latp1), nLat-1, i)
	}
	// east and west bounds
	for j := 0; j < nLat; j++ {
		area.Set(area.Get(j, 1), j, 0)
		area.Set(area.Get(j, nLon-2), j, nLon-1)
	}
	return area
}

// Basin identifies an ocean basin in the reference basin-mask field.
type Basin int

// Basin codes follow the WOD13 basin-mask convention: 1 = Atlantic,
// 2 = Pacific, 3 = Indian.
const (
	GlobalBasin Basin = iota
	AtlanticBasin
	PacificBasin
	IndianBasin
)

// Basins lists the basins in output order.
var Basins = []Basin{GlobalBasin, AtlanticBasin, PacificBasin, IndianBasin}

func (b Basin) String() string {
	switch b {
	case GlobalBasin:
		return "global"
	case AtlanticBasin:
		return "atlantic"
	case PacificBasin:
		return "pacific"
	case IndianBasin:
		return "indian"
	}
	return "unknown"
}

// Suffix returns the variable-name suffix used for this basin in output
// files ("" for global, "a"/"p"/"i" for the basins).
func (b Basin) Suffix() string {
	switch b {
	case AtlanticBasin:
		return "a"
	case PacificBasin:
		return "p"
	case IndianBasin:
		return "i"
	}
	return ""
}

// BasinMasks holds, for each basin, a (lat, lon) selection field on the
// reference grid: 1 where the cell belongs to the basin, 0 where it is
// excluded. The global mask selects all ocean cells.
type BasinMasks struct {
	masks map[Basin]*sparse.DenseArray
	// Lon and Lat are the reference-grid coordinates.
	Lon, Lat []float64
}

// NewBasinMasks derives per-basin selection masks from a reference
// basin-code field (lat, lon) where cells carry the Basin codes above and
// land cells are missing.
func NewBasinMasks(codes *sparse.DenseArray, lon, lat []float64) *BasinMasks {
	b := &BasinMasks{
		masks: make(map[Basin]*sparse.DenseArray),
		Lon:   lon,
		Lat:   lat,
	}
	for _, basin := range Basins {
		m := sparse.ZerosDense(codes.Shape...)
		for i, c := range codes.Elements {
			if IsMasked(c) {
				continue
			}
			if basin == GlobalBasin || int(c+0.5) == int(basin) {
				m.Elements[i] = 1
			}
		}
		b.masks[basin] = m
	}
	return b
}

// Mask returns the selection field for basin b.
func (b *BasinMasks) Mask(basin Basin) *sparse.DenseArray { return b.masks[basin] }

// Apply copies a field with trailing (lat, lon) axes, masking every cell
// outside basin b. Leading axes (time, level) broadcast over the mask.
func (b *BasinMasks) Apply(field *sparse.DenseArray, basin Basin) *sparse.DenseArray {
	m := b.masks[basin]
	out := sparse.ZerosDense(field.Shape...)
	nPts := len(m.Elements)
	for i, v := range field.Elements {
		if m.Elements[i%nPts] == 0 {
			out.Elements[i] = ValMask
		} else {
			out.Elements[i] = v
		}
	}
	return out
}

// ZonalAreaSum computes, for each basin, the zonal (per-latitude) sum of
// cell areas belonging to the basin.
func (b *BasinMasks) ZonalAreaSum(area *sparse.DenseArray) map[Basin][]float64 {
	nLat := area.Shape[0]
	nLon := area.Shape[1]
	out := make(map[Basin][]float64)
	for _, basin := range Basins {
		m := b.masks[basin]
		sums := make([]float64, nLat)
		row := make([]float64, nLon)
		for j := 0; j < nLat; j++ {
			for i := 0; i < nLon; i++ {
				row[i] = area.Get(j, i) * m.Get(j, i)
			}
			sums[j] = floats.Sum(row)
		}
		out[basin] = sums
	}
	return out
}

// GeographicBasinCodes builds a basin-code field (lat, lon) from
// coordinates alone, used when the model supplies no basin mask. Basin
// boundaries follow the conventional meridional splits, with the
// Caribbean and Gulf of Mexico kept Atlantic and the Southern Ocean
// divided among the basins by longitude. Every cell is treated as
// ocean; land is only known when a basin field is supplied.
func GeographicBasinCodes(lat, lon []float64) *sparse.DenseArray {
	o := sparse.ZerosDense(len(lat), len(lon))
	for j, la := range lat {
		for i, lo := range lon {
			l := math.Mod(lo+180, 360)
			if l < 0 {
				l += 360
			}
			l -= 180 // now in [-180, 180)
			var b Basin
			switch {
			case l >= 20 && l < 146 && la < 30:
				b = IndianBasin
			case l >= -70 && l < 20:
				b = AtlanticBasin
			case l >= -100 && l < -70 && la > 9:
				b = AtlanticBasin
			default:
				b = PacificBasin
			}
			o.Set(float64(b), j, i)
		}
	}
	return o
}
