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

// convWF converts a freshwater mass flux [kg m-2 s-1] to a volume flux
// [m s-1].
const convWF = 1e-3

// SurfaceFlux holds the surface density flux and its components at each
// surface grid point [kg m-2 s-1]. Positive values densify the surface
// water.
type SurfaceFlux struct {
	Heat, Water, Total *sparse.DenseArray
}

// SurfaceDensityFlux computes the surface density flux from sea surface
// temperature [degC], salinity [PSS-78], net downward heat flux qnet
// [W m-2] and net freshwater loss emp (evaporation minus precipitation,
// [kg m-2 s-1]). All inputs share one shape; points missing in tos are
// missing in the result.
func SurfaceDensityFlux(tos, sos, qnet, emp *sparse.DenseArray) *SurfaceFlux {
	f := &SurfaceFlux{
		Heat:  sparse.ZerosDense(tos.Shape...),
		Water: sparse.ZerosDense(tos.Shape...),
		Total: sparse.ZerosDense(tos.Shape...),
	}
	for p, t := range tos.Elements {
		s := sos.Elements[p]
		if IsMasked(t) || IsMasked(s) {
			f.Heat.Elements[p] = ValMask
			f.Water.Elements[p] = ValMask
			f.Total.Elements[p] = ValMask
			continue
		}
		alpha := ThermalExpansion(t, s)
		beta := HalineContraction(t, s)
		cp := SpecificHeat(t, s, 0)
		rho := EOSNeutral(t, s)
		fh := -alpha / cp * qnet.Elements[p]
		fw := rho * beta * s * emp.Elements[p] * convWF
		f.Heat.Elements[p] = fh
		f.Water.Elements[p] = fw
		f.Total.Elements[p] = fh + fw
	}
	return f
}

// Transformation bins a surface density flux (time, lat, lon) by the
// outcropping surface density sigma, returning the area-weighted flux
// sum per density bin, shaped (time, N+1). Bin k collects the points
// whose surface density falls in [Levels[k], Levels[k+1]), with the
// densest bin open above; the trailing sentinel bin carries the total
// over all bins. Water lighter than the lightest level is not counted.
// The result is a water-mass transformation rate in kg/s per bin.
func (g *DensityGrid) Transformation(flux, sigma, area *sparse.DenseArray) (*sparse.DenseArray, error) {
	if len(flux.Shape) != 3 {
		return nil, fmt.Errorf("densbin: transformation flux must be (time, lat, lon), got shape %v", flux.Shape)
	}
	nt := flux.Shape[0]
	nPts := flux.Shape[1] * flux.Shape[2]
	if len(area.Elements) != nPts {
		return nil, fmt.Errorf("densbin: area size %d does not match grid size %d", len(area.Elements), nPts)
	}
	n := g.N()
	o := sparse.ZerosDense(nt, n+1)
	for t := 0; t < nt; t++ {
		for p := 0; p < nPts; p++ {
			fv := flux.Elements[t*nPts+p]
			sv := sigma.Elements[t*nPts+p]
			if IsMasked(fv) || IsMasked(sv) || sv < g.Levels[0] {
				continue
			}
			k := n - 1
			for ks := 0; ks < n-1; ks++ {
				if sv < g.Levels[ks+1] {
					k = ks
					break
				}
			}
			w := fv * area.Elements[p]
			o.AddVal(w, t, k)
			o.AddVal(w, t, n)
		}
	}
	return o, nil
}

// DomainIntegrals area-integrates the net surface heat and freshwater
// input per time step, returning heat transport [PW] and freshwater
// transport [Sv].
func DomainIntegrals(qnet, emp, area *sparse.DenseArray) (heat, water []float64) {
	nt := qnet.Shape[0]
	nPts := len(area.Elements)
	heat = make([]float64, nt)
	water = make([]float64, nt)
	for t := 0; t < nt; t++ {
		for p := 0; p < nPts; p++ {
			q := qnet.Elements[t*nPts+p]
			e := emp.Elements[t*nPts+p]
			a := area.Elements[p]
			if !IsMasked(q) {
				heat[t] += q * a * 1e-15
			}
			if !IsMasked(e) {
				water[t] += e * convWF * a * 1e-9
			}
		}
	}
	return heat, water
}
