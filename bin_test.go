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
	"testing"

	"github.com/ctessum/sparse"
)

// testVerticalGrid is a 10-level column with 100 m cells.
func testVerticalGrid() *VerticalGrid {
	vg := &VerticalGrid{
		Depth: make([]float64, 10),
		Edges: make([]float64, 11),
	}
	for k := 0; k < 10; k++ {
		vg.Depth[k] = 50 + 100*float64(k)
		vg.Edges[k] = 100 * float64(k)
	}
	vg.Edges[10] = 1000
	return vg
}

func testColumn(rho func(k int) float64) *GridColumn {
	vg := testVerticalGrid()
	col := &GridColumn{
		Grid: vg,
		Temp: make([]float64, 10),
		Salt: make([]float64, 10),
		Rho:  make([]float64, 10),
	}
	for k := 0; k < 10; k++ {
		col.Temp[k] = 20 - float64(k)
		col.Salt[k] = 35
		col.Rho[k] = rho(k)
	}
	return col
}

func TestInterp1(t *testing.T) {
	const tolerance = 1.0e-12

	x := []float64{1, 2, 3, 4}
	y := []float64{10, 20, 30, 40}
	if v := interp1(2.5, x, y, 0, 3); math.Abs(v-25) > tolerance {
		t.Errorf("midpoint: have %g", v)
	}
	if v := interp1(2, x, y, 0, 3); v != 20 {
		t.Errorf("exact sample: have %g", v)
	}
	if v := interp1(0.5, x, y, 0, 3); v != 10 {
		t.Errorf("below range should clamp: have %g", v)
	}
	if v := interp1(4.5, x, y, 0, 3); !IsMasked(v) {
		t.Errorf("above range should be missing: have %g", v)
	}
	// Restricted index range.
	if v := interp1(3.5, x, y, 1, 2); !IsMasked(v) {
		t.Errorf("above sub-range should be missing: have %g", v)
	}
	if v := interp1(1.5, x, y, 2, 3); v != 30 {
		t.Errorf("below sub-range should clamp: have %g", v)
	}
	// Missing samples poison their intervals.
	ym := []float64{10, ValMask, 30, 40}
	if v := interp1(1.5, x, ym, 0, 3); !IsMasked(v) {
		t.Errorf("interval with missing sample: have %g", v)
	}
}

func TestBinColumnMonotonic(t *testing.T) {
	const tolerance = 1.0e-10

	g := NewDensityGrid(19, 26, 28.5, 0.2, 0.1)
	col := testColumn(func(k int) float64 { return 21 + float64(k) })
	out := NewBinnedColumn(g)
	g.BinColumn(col, out)

	// Bottom sentinel level.
	if out.Depth[60] != 1000 || out.Temp[60] != 11 || out.Salt[60] != 35 {
		t.Errorf("sentinel level: depth %g temp %g salt %g", out.Depth[60], out.Temp[60], out.Salt[60])
	}
	// Levels lighter than any water in the column outcrop at the surface
	// with no water properties.
	for ks := 0; ks < 10; ks++ {
		if out.Depth[ks] != 0 {
			t.Errorf("level %d should outcrop: depth %g", ks, out.Depth[ks])
		}
		if !IsMasked(out.Temp[ks]) || !IsMasked(out.Thick[ks]) {
			t.Errorf("level %d outcrop should carry no water: temp %g thick %g", ks, out.Temp[ks], out.Thick[ks])
		}
	}
	// Interior levels interpolate linearly in density, then in depth.
	if math.Abs(out.Depth[10]-50) > tolerance { // sigma 21.0 = surface cell
		t.Errorf("sigma 21.0: depth %g", out.Depth[10])
	}
	if math.Abs(out.Depth[32]-490) > tolerance { // sigma 25.4
		t.Errorf("sigma 25.4: depth %g", out.Depth[32])
	}
	if math.Abs(out.Temp[32]-15.6) > tolerance {
		t.Errorf("sigma 25.4: temp %g", out.Temp[32])
	}
	if math.Abs(out.Salt[32]-35) > tolerance {
		t.Errorf("sigma 25.4: salt %g", out.Salt[32])
	}
	// Thickness is the first difference of depth.
	if math.Abs(out.Thick[10]-50) > tolerance || math.Abs(out.Thick[11]-20) > tolerance {
		t.Errorf("thickness: %g, %g", out.Thick[10], out.Thick[11])
	}
	// Depth is monotonically non-decreasing with density.
	prev := 0.
	for ks := 0; ks <= 60; ks++ {
		if IsMasked(out.Depth[ks]) {
			t.Errorf("level %d: depth should be defined for a full-range profile", ks)
			continue
		}
		if out.Depth[ks] < prev {
			t.Errorf("depth decreases at level %d: %g < %g", ks, out.Depth[ks], prev)
		}
		prev = out.Depth[ks]
	}
}

func TestBinColumnBottomPin(t *testing.T) {
	const tolerance = 1.0e-10

	g := NewDensityGrid(19, 26, 28.5, 0.2, 0.1)
	col := testColumn(func(k int) float64 { return 20 + 0.5*float64(k) })
	out := NewBinnedColumn(g)
	g.BinColumn(col, out)

	// sigma 24.4 is still inside the observed range.
	if math.Abs(out.Depth[27]-930) > tolerance {
		t.Errorf("sigma 24.4: depth %g", out.Depth[27])
	}
	// Denser targets sit at the sea floor with no water properties.
	for ks := 28; ks < 60; ks++ {
		if out.Depth[ks] != 1000 {
			t.Errorf("level %d should pin to the bottom: depth %g", ks, out.Depth[ks])
		}
		if !IsMasked(out.Temp[ks]) {
			t.Errorf("level %d bottom pin should carry no water: temp %g", ks, out.Temp[ks])
		}
	}
	// The first pinned level absorbs the remaining water column; the
	// ones below it have zero thickness and are masked.
	if math.Abs(out.Thick[28]-70) > tolerance {
		t.Errorf("thickness at first pinned level: %g", out.Thick[28])
	}
	if !IsMasked(out.Thick[29]) {
		t.Errorf("thickness below the sea floor should be missing: %g", out.Thick[29])
	}
}

func TestBinColumnWeakStratification(t *testing.T) {
	g := NewDensityGrid(19, 26, 28.5, 0.2, 0.1)
	col := testColumn(func(k int) float64 { return 25 })
	out := NewBinnedColumn(g)
	g.BinColumn(col, out)

	// sigma 25.0 maps to the top of the profile.
	if out.Depth[30] != 50 {
		t.Errorf("sigma 25.0: depth %g", out.Depth[30])
	}
	if out.Depth[29] != 0 {
		t.Errorf("lighter targets should outcrop: depth %g", out.Depth[29])
	}
	if out.Depth[31] != 1000 {
		t.Errorf("denser targets should pin to the bottom: depth %g", out.Depth[31])
	}
}

func TestBinColumnMasked(t *testing.T) {
	g := NewDensityGrid(19, 26, 28.5, 0.2, 0.1)

	col := testColumn(func(k int) float64 { return 21 + float64(k) })
	for k := range col.Temp {
		col.Temp[k] = ValMask
	}
	if b := col.Bottom(); b != -1 {
		t.Errorf("fully masked column: bottom %d", b)
	}
	out := NewBinnedColumn(g)
	g.BinColumn(col, out)
	for ks := 0; ks <= 60; ks++ {
		if !IsMasked(out.Depth[ks]) || !IsMasked(out.Temp[ks]) {
			t.Errorf("fully masked column should stay masked at level %d", ks)
		}
	}

	// A column truncated by bathymetry keeps its valid upper part.
	col = testColumn(func(k int) float64 { return 21 + float64(k) })
	for k := 3; k < 10; k++ {
		col.Temp[k] = ValMask
	}
	if b := col.Bottom(); b != 2 {
		t.Errorf("truncated column: bottom %d", b)
	}
	g.BinColumn(col, out)
	if out.Depth[60] != 300 || out.Temp[60] != 18 {
		t.Errorf("truncated sentinel: depth %g temp %g", out.Depth[60], out.Temp[60])
	}
}

func TestBinChunk(t *testing.T) {
	const tolerance = 1.0e-10

	g := NewDensityGrid(19, 26, 28.5, 0.2, 0.1)
	vg := testVerticalGrid()
	nz := vg.Nz()

	// Two time steps, one valid column and one land column.
	thetao := sparse.ZerosDense(2, nz, 1, 2)
	so := sparse.ZerosDense(2, nz, 1, 2)
	rho := sparse.ZerosDense(2, nz, 1, 2)
	for ti := 0; ti < 2; ti++ {
		for k := 0; k < nz; k++ {
			thetao.Set(20-float64(k), ti, k, 0, 0)
			so.Set(35, ti, k, 0, 0)
			rho.Set(21+float64(k), ti, k, 0, 0)
			thetao.Set(ValMask, ti, k, 0, 1)
			so.Set(ValMask, ti, k, 0, 1)
			rho.Set(ValMask, ti, k, 0, 1)
		}
	}
	c := g.BinChunk(vg, thetao, so, rho)
	wantShape := []int{2, 61, 1, 2}
	for i, s := range c.Depth.Shape {
		if s != wantShape[i] {
			t.Fatalf("shape: %v", c.Depth.Shape)
		}
	}
	for ti := 0; ti < 2; ti++ {
		if v := c.Depth.Get(ti, 32, 0, 0); math.Abs(v-490) > tolerance {
			t.Errorf("time %d sigma 25.4: depth %g", ti, v)
		}
		if v := c.Temp.Get(ti, 32, 0, 0); math.Abs(v-15.6) > tolerance {
			t.Errorf("time %d sigma 25.4: temp %g", ti, v)
		}
		if v := c.Depth.Get(ti, 32, 0, 1); !IsMasked(v) {
			t.Errorf("time %d land column: depth %g", ti, v)
		}
	}
}
