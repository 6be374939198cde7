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

func TestSurfaceDensityFlux(t *testing.T) {
	tos := sparse.ZerosDense(1, 1, 2)
	tos.Elements = []float64{20, ValMask}
	sos := sparse.ZerosDense(1, 1, 2)
	sos.Elements = []float64{35, 35}
	qnet := sparse.ZerosDense(1, 1, 2)
	qnet.Elements = []float64{-200, -200} // surface cooling
	emp := sparse.ZerosDense(1, 1, 2)
	emp.Elements = []float64{2e-5, 2e-5} // net evaporation

	f := SurfaceDensityFlux(tos, sos, qnet, emp)
	// Cooling and evaporation both densify the surface water.
	if f.Heat.Elements[0] <= 0 {
		t.Errorf("cooling should densify: %g", f.Heat.Elements[0])
	}
	if f.Water.Elements[0] <= 0 {
		t.Errorf("evaporation should densify: %g", f.Water.Elements[0])
	}
	const tolerance = 1.0e-12
	sum := f.Heat.Elements[0] + f.Water.Elements[0]
	if math.Abs(f.Total.Elements[0]-sum) > tolerance {
		t.Errorf("total: want %g but have %g", sum, f.Total.Elements[0])
	}
	if !IsMasked(f.Heat.Elements[1]) || !IsMasked(f.Total.Elements[1]) {
		t.Errorf("masked point should stay masked")
	}
}

func TestTransformation(t *testing.T) {
	const tolerance = 1.0e-12

	g := NewDensityGrid(20, 21, 21.5, 0.5, 0.5) // levels 20, 20.5, 21
	flux := sparse.ZerosDense(1, 1, 4)
	flux.Elements = []float64{2, 3, 5, 7}
	sigma := sparse.ZerosDense(1, 1, 4)
	sigma.Elements = []float64{20.6, 25, 19, ValMask}
	area := sparse.ZerosDense(1, 4)
	area.Elements = []float64{10, 10, 10, 10}

	o, err := g.Transformation(flux, sigma, area)
	if err != nil {
		t.Fatal(err)
	}
	if o.Shape[0] != 1 || o.Shape[1] != 4 {
		t.Fatalf("shape: %v", o.Shape)
	}
	// sigma 20.6 falls in the second bin; sigma 25 is denser than the
	// densest level and goes to the last bin; lighter and missing
	// densities are not counted.
	if math.Abs(o.Get(0, 1)-20) > tolerance {
		t.Errorf("bin 1: %g", o.Get(0, 1))
	}
	if math.Abs(o.Get(0, 2)-30) > tolerance {
		t.Errorf("densest bin: %g", o.Get(0, 2))
	}
	if math.Abs(o.Get(0, 0)) > tolerance {
		t.Errorf("empty bin: %g", o.Get(0, 0))
	}
	// The sentinel bin carries the total.
	if math.Abs(o.Get(0, 3)-50) > tolerance {
		t.Errorf("total bin: %g", o.Get(0, 3))
	}
}

func TestDomainIntegrals(t *testing.T) {
	const tolerance = 1.0e-12

	qnet := sparse.ZerosDense(1, 1, 2)
	qnet.Elements = []float64{100, ValMask}
	emp := sparse.ZerosDense(1, 1, 2)
	emp.Elements = []float64{1e-5, 2e-5}
	area := sparse.ZerosDense(1, 2)
	area.Elements = []float64{1e12, 1e12}

	heat, water := DomainIntegrals(qnet, emp, area)
	if math.Abs(heat[0]-100*1e12*1e-15) > tolerance {
		t.Errorf("heat: %g", heat[0])
	}
	want := (1e-5 + 2e-5) * convWF * 1e12 * 1e-9
	if math.Abs(water[0]-want) > tolerance {
		t.Errorf("water: want %g but have %g", want, water[0])
	}
}
