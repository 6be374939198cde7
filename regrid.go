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

// Regridder transfers a 2-D (lat, lon) field from a source horizontal
// grid to a target one, leaving missing values missing.
type Regridder interface {
	Regrid(f *sparse.DenseArray) (*sparse.DenseArray, error)
}

// BilinearRegridder interpolates between rectilinear grids. Missing
// source corners are dropped from each interpolation stencil with the
// remaining weights renormalized; target points with no valid corner are
// masked.
type BilinearRegridder struct {
	srcLat, srcLon []float64
	dstLat, dstLon []float64
	// precomputed stencil per target axis index
	latIdx, lonIdx []int
	latW, lonW     []float64
}

// NewBilinearRegridder builds a regridder from source axes to target
// axes. Axes must be strictly increasing; target points outside the
// source axes clamp to its edge.
func NewBilinearRegridder(srcLat, srcLon, dstLat, dstLon []float64) (*BilinearRegridder, error) {
	for _, ax := range [][]float64{srcLat, srcLon, dstLat, dstLon} {
		for i := 1; i < len(ax); i++ {
			if ax[i] <= ax[i-1] {
				return nil, fmt.Errorf("densbin: regrid axes must be strictly increasing")
			}
		}
	}
	r := &BilinearRegridder{
		srcLat: srcLat, srcLon: srcLon,
		dstLat: dstLat, dstLon: dstLon,
	}
	r.latIdx, r.latW = stencil1d(srcLat, dstLat)
	r.lonIdx, r.lonW = stencil1d(srcLon, dstLon)
	return r, nil
}

// stencil1d finds, for each target coordinate, the left source index and
// the weight of the right source point.
func stencil1d(src, dst []float64) ([]int, []float64) {
	idx := make([]int, len(dst))
	w := make([]float64, len(dst))
	for j, x := range dst {
		switch {
		case x <= src[0]:
			idx[j], w[j] = 0, 0
		case x >= src[len(src)-1]:
			idx[j], w[j] = len(src)-2, 1
		default:
			i := 0
			for src[i+1] < x {
				i++
			}
			idx[j] = i
			w[j] = (x - src[i]) / (src[i+1] - src[i])
		}
	}
	return idx, w
}

// Regrid implements the Regridder interface for a (lat, lon) field on
// the source axes.
func (r *BilinearRegridder) Regrid(f *sparse.DenseArray) (*sparse.DenseArray, error) {
	if len(f.Shape) != 2 || f.Shape[0] != len(r.srcLat) || f.Shape[1] != len(r.srcLon) {
		return nil, fmt.Errorf("densbin: regrid input shape %v does not match source grid (%d, %d)",
			f.Shape, len(r.srcLat), len(r.srcLon))
	}
	o := sparse.ZerosDense(len(r.dstLat), len(r.dstLon))
	nLon := len(r.srcLon)
	for j := range r.dstLat {
		j0, wj := r.latIdx[j], r.latW[j]
		for i := range r.dstLon {
			i0, wi := r.lonIdx[i], r.lonW[i]
			var sum, wsum float64
			for _, c := range [4]struct {
				dj, di int
				w      float64
			}{
				{0, 0, (1 - wj) * (1 - wi)},
				{0, 1, (1 - wj) * wi},
				{1, 0, wj * (1 - wi)},
				{1, 1, wj * wi},
			} {
				v := f.Elements[(j0+c.dj)*nLon+i0+c.di]
				if IsMasked(v) {
					continue
				}
				sum += v * c.w
				wsum += c.w
			}
			if wsum <= 0 {
				o.Set(ValMask, j, i)
			} else {
				o.Set(sum/wsum, j, i)
			}
		}
	}
	return o, nil
}
