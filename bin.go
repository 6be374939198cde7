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
	"github.com/ctessum/sparse"
)

// VerticalGrid describes the source model's depth axis.
type VerticalGrid struct {
	// Depth holds cell-centre depths [m], strictly increasing downward.
	Depth []float64
	// Edges holds cell-edge depths [m], len(Depth)+1 values; Edges[k] is
	// the top of cell k and Edges[k+1] its bottom.
	Edges []float64
}

// Nz returns the number of depth levels.
func (v *VerticalGrid) Nz() int { return len(v.Depth) }

// GridColumn is one horizontal grid point's vertical profile at one time
// step. Profiles have one value per depth level; cells below the sea floor
// carry the missing sentinel.
type GridColumn struct {
	Grid            *VerticalGrid
	Temp, Salt, Rho []float64
}

// Bottom returns the deepest valid cell index. Columns whose surface cell
// is missing are considered fully masked and return -1; climate-model
// output routinely contains such columns near coastlines and ice shelves,
// and they are silently skipped rather than treated as errors.
func (c *GridColumn) Bottom() int {
	if len(c.Temp) == 0 || IsMasked(c.Temp[0]) {
		return -1
	}
	for k := 1; k < len(c.Temp); k++ {
		if IsMasked(c.Temp[k]) {
			return k - 1
		}
	}
	return len(c.Temp) - 1
}

// BinnedColumn is the result of remapping one GridColumn onto a
// DensityGrid: for each target density level, the depth of the isopycnal,
// its thickness, and the temperature and salinity on it. Each field has
// one extra trailing level carrying the ocean-bottom values (the sentinel
// level of DensityGrid.Axis).
type BinnedColumn struct {
	Depth, Thick, Temp, Salt []float64
}

// NewBinnedColumn allocates a BinnedColumn for grid g with all levels
// missing.
func NewBinnedColumn(g *DensityGrid) *BinnedColumn {
	b := &BinnedColumn{
		Depth: make([]float64, g.N()+1),
		Thick: make([]float64, g.N()+1),
		Temp:  make([]float64, g.N()+1),
		Salt:  make([]float64, g.N()+1),
	}
	b.reset()
	return b
}

func (b *BinnedColumn) reset() {
	for i := range b.Depth {
		b.Depth[i] = ValMask
		b.Thick[i] = ValMask
		b.Temp[i] = ValMask
		b.Salt[i] = ValMask
	}
}

// BinColumn remaps one water column onto the target density grid,
// filling out.
//
// The density profile is not guaranteed monotonic with depth, so a
// strictly increasing sub-profile is first extracted between the running
// density minimum and maximum; columns whose total (bottom minus surface)
// stratification is weaker than one fine bin width are instead binned over
// the full profile to avoid degenerate interpolation. Target densities
// lighter than the lightest observed density pin to the surface and
// denser than the densest pin to the bottom, with tracer values missing
// in both cases (bottom properties are carried separately on the sentinel
// level). Oceanographically implausible results are masked, never
// reported as errors.
func (g *DensityGrid) BinColumn(col *GridColumn, out *BinnedColumn) {
	out.reset()
	bottom := col.Bottom()
	if bottom < 0 {
		return
	}
	n := g.N()
	// Bottom sentinel level: sea-floor depth and bottom-cell properties.
	out.Depth[n] = col.Grid.Edges[bottom+1]
	out.Temp[n] = col.Temp[bottom]
	out.Salt[n] = col.Salt[bottom]

	// Extract a strictly increasing sub-profile.
	imin, imax := 0, 0
	for k := 1; k <= bottom; k++ {
		if col.Rho[k] < col.Rho[imin] {
			imin = k
		}
		if col.Rho[k] > col.Rho[imax] {
			imax = k
		}
	}
	if imin > imax {
		imin = imax
	}
	// Weak or absent stratification: bin the full profile.
	if col.Rho[bottom]-col.Rho[0] < g.DeltaFine {
		imin = 0
		imax = bottom
	}
	szmin := col.Rho[imin]
	szmax := col.Rho[imax]

	for ks := 0; ks < n; ks++ {
		s := g.Levels[ks]
		switch {
		case s < szmin:
			// Lighter than any water in the column: isopycnal
			// outcrops at the surface.
			out.Depth[ks] = 0.
		case s > szmax:
			// Denser than any water in the column: isopycnal sits
			// at the sea floor.
			out.Depth[ks] = out.Depth[n]
		default:
			z := interp1(s, col.Rho, col.Grid.Depth, imin, imax)
			out.Depth[ks] = z
			if !IsMasked(z) {
				out.Temp[ks] = interp1(z, col.Grid.Depth, col.Temp, imin, imax)
				out.Salt[ks] = interp1(z, col.Grid.Depth, col.Salt, imin, imax)
			}
		}
	}

	// Thickness of each isopycnal layer as the first difference of depth
	// along the density axis. Values outside (0, MaxOceanDepth] are
	// remapping artifacts from the sub-profile clipping and are masked.
	for ks := 0; ks < n; ks++ {
		if IsMasked(out.Depth[ks]) {
			continue
		}
		var t float64
		if ks == 0 {
			t = out.Depth[0]
		} else {
			if IsMasked(out.Depth[ks-1]) {
				continue
			}
			t = out.Depth[ks] - out.Depth[ks-1]
		}
		if t <= 0 || t >= MaxOceanDepth {
			continue
		}
		out.Thick[ks] = t
	}
}

// BinnedChunk holds the binned fields for one chunk of time steps on the
// source horizontal grid, each shaped (time, density level, lat, lon) with
// the density axis carrying DensityGrid.N()+1 levels (the last one being
// the bottom sentinel).
type BinnedChunk struct {
	Depth, Thick, Temp, Salt *sparse.DenseArray
}

// BinChunk remaps every water column of a (time, depth, lat, lon) chunk of
// temperature and salinity onto the target density grid. rho is the
// matching neutral-density anomaly chunk (see NeutralDensity). Columns are
// independent of one another; fully masked columns are skipped with all
// outputs left missing.
func (g *DensityGrid) BinChunk(vg *VerticalGrid, thetao, so, rho *sparse.DenseArray) *BinnedChunk {
	nt := thetao.Shape[0]
	nz := thetao.Shape[1]
	nLat := thetao.Shape[2]
	nLon := thetao.Shape[3]
	nPts := nLat * nLon
	n := g.N()

	c := &BinnedChunk{
		Depth: sparse.ZerosDense(nt, n+1, nLat, nLon),
		Thick: sparse.ZerosDense(nt, n+1, nLat, nLon),
		Temp:  sparse.ZerosDense(nt, n+1, nLat, nLon),
		Salt:  sparse.ZerosDense(nt, n+1, nLat, nLon),
	}
	for i := range c.Depth.Elements {
		c.Depth.Elements[i] = ValMask
		c.Thick.Elements[i] = ValMask
		c.Temp.Elements[i] = ValMask
		c.Salt.Elements[i] = ValMask
	}

	col := &GridColumn{
		Grid: vg,
		Temp: make([]float64, nz),
		Salt: make([]float64, nz),
		Rho:  make([]float64, nz),
	}
	out := NewBinnedColumn(g)

	for t := 0; t < nt; t++ {
		for p := 0; p < nPts; p++ {
			for k := 0; k < nz; k++ {
				src := (t*nz+k)*nPts + p
				col.Temp[k] = thetao.Elements[src]
				col.Salt[k] = so.Elements[src]
				col.Rho[k] = rho.Elements[src]
			}
			g.BinColumn(col, out)
			for ks := 0; ks <= n; ks++ {
				dst := (t*(n+1)+ks)*nPts + p
				c.Depth.Elements[dst] = out.Depth[ks]
				c.Thick.Elements[dst] = out.Thick[ks]
				c.Temp.Elements[dst] = out.Temp[ks]
				c.Salt.Elements[dst] = out.Salt[ks]
			}
		}
	}
	return c
}
