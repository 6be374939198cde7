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

// Package densbin post-processes ocean climate-model output: it remaps
// temperature and salinity fields from depth coordinates onto neutral-density
// (isopycnal) coordinates, derives persistence, mixed-layer bowl and zonal
// diagnostics, averages ensembles of binned runs under heterogeneous masks,
// and detects the time of emergence of climate signals from natural
// variability.
package densbin

// Version gives the version number.
const Version = "1.2.0"

const (
	// ValMask is the missing-value sentinel carried through every field.
	// Following the CMIP convention, values are considered missing when
	// they exceed ValMask/10, so that arithmetic on a missing value
	// stays missing.
	ValMask = 1.0e20

	// MaxOceanDepth is the maximum plausible ocean depth [m]. Isopycnal
	// thicknesses beyond it are remapping artifacts and are masked.
	MaxOceanDepth = 6000.

	// EarthRadius [m].
	EarthRadius = 6371000.
)

// IsMasked reports whether v is the missing-value sentinel.
func IsMasked(v float64) bool {
	return v > ValMask/10 || v != v
}
