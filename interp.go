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

// interp1 evaluates a piecewise-linear function at xi, given sample points
// (x, y) with x increasing on the index range [lo, hi]. Queries below x[lo]
// clamp to y[lo]; queries above x[hi] return the missing sentinel. Sample
// points whose y is missing contribute the sentinel.
//
// These one-sided semantics mirror how the remapping uses it: targets
// lighter than the observed density range are subsequently pinned to the
// surface and targets denser than it to the bottom, so only the in-domain
// values survive as interpolated data.
func interp1(xi float64, x, y []float64, lo, hi int) float64 {
	if lo > hi {
		return ValMask
	}
	if xi < x[lo] {
		return y[lo]
	}
	if xi > x[hi] {
		return ValMask
	}
	// Find the bracketing interval k with x[k] <= xi <= x[k+1].
	k := lo
	for k < hi && x[k+1] < xi {
		k++
	}
	if xi == x[k] {
		return y[k]
	}
	if k == hi {
		return y[hi]
	}
	y0, y1 := y[k], y[k+1]
	if IsMasked(y0) || IsMasked(y1) {
		return ValMask
	}
	dx := x[k+1] - x[k]
	if dx == 0 {
		return y0
	}
	w := (xi - x[k]) / dx
	return y0 + w*(y1-y0)
}
