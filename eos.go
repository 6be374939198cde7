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
)

// EOSNeutral calculates approximate neutral density (gamma_a) [kg m-3] from
// potential temperature [°C] and salinity [PSS-78] using the McDougall and
// Jackett (2005) equation of state.
//
// McDougall, T. J. and D. R. Jackett (2005) The material derivative of
// neutral density. Journal of Marine Research, 63 (1), pp 159-185.
// doi: 10.1357/0022240053693734
//
// Check value: EOSNeutral(20, 35) = 1024.5941675119673.
//
// The coefficients are part of the binning contract: isopycnal bin-edge
// placement downstream depends on their exact values.
func EOSNeutral(theta, salt float64) float64 {
	if IsMasked(theta) || IsMasked(salt) {
		return ValMask
	}
	zt := theta
	zs := salt
	zsr := math.Sqrt(zs)
	zr1 := ((-4.3159255086706703e-4*zt+8.1157118782170051e-2)*zt+2.2280832068441331e-1)*zt + 1002.3063688892480
	zr2 := (-1.7052298331414675e-7*zs - 3.1710675488863952e-3*zt - 1.0304537539692924e-4) * zs
	zr3 := (((-2.3850178558212048e-9*zt-1.6212552470310961e-7)*zt+7.8717799560577725e-5)*zt+4.3907692647825900e-5)*zt + 1.0
	zr4 := ((-2.2744455733317707e-9*zt*zt + 6.0399864718597388e-6) * zt - 5.1268124398160734e-4) * zs
	zr5 := (-1.3409379420216683e-9*zt*zt - 3.6138532339703262e-5) * zs * zsr
	return (zr1 + zr2) / (zr3 + zr4 + zr5)
}

// NeutralDensity calculates the neutral density anomaly (sigma_n = gamma_a
// minus 1000) [kg m-3] element-wise for broadcastable temperature and salinity
// arrays. Missing inputs propagate as missing outputs.
func NeutralDensity(theta, salt *sparse.DenseArray) *sparse.DenseArray {
	rho := sparse.ZerosDense(theta.Shape...)
	for i, t := range theta.Elements {
		s := salt.Elements[i]
		if IsMasked(t) || IsMasked(s) {
			rho.Elements[i] = ValMask
			continue
		}
		rho.Elements[i] = EOSNeutral(t, s) - 1000.
	}
	return rho
}

// ThermalExpansion computes the thermal expansion coefficient
// alpha = -1/rho (drho/dT) [1/°C] by finite difference of the equation
// of state.
func ThermalExpansion(theta, salt float64) float64 {
	if IsMasked(theta) || IsMasked(salt) {
		return ValMask
	}
	const dt = 0.05
	siga := EOSNeutral(theta, salt) - 1000.
	sigb := EOSNeutral(theta+dt, salt) - 1000.
	return -0.001 * (sigb - siga) / dt / (1. + 1.e-3*siga)
}

// HalineContraction computes the haline contraction coefficient
// beta = 1/rho (drho/dS) [1/PSU] by finite difference of the equation
// of state.
func HalineContraction(theta, salt float64) float64 {
	if IsMasked(theta) || IsMasked(salt) {
		return ValMask
	}
	const ds = 0.01
	siga := EOSNeutral(theta, salt) - 1000.
	sigb := EOSNeutral(theta, salt+ds) - 1000.
	return 0.001 * (sigb - siga) / ds / (1. + 1.e-3*siga)
}

// SpecificHeat computes the specific heat of sea water [J/(kg °C)] at
// temperature t [°C], salinity s [PSU] and pressure p [dbar], after
// Millero et al. (1973).
func SpecificHeat(t, s, p float64) float64 {
	if IsMasked(t) || IsMasked(s) {
		return ValMask
	}
	sr := math.Sqrt(math.Abs(s))
	// Specific heat cp0 for p = 0.
	a := (-1.38e-3*t+0.10727)*t - 7.644
	b := (5.35e-5*t-4.08e-3)*t + 0.177
	c := (((2.093236e-5*t-2.654387e-3)*t+0.1412855)*t-3.720283)*t + 4217.4
	cp0 := (b*sr+a)*s + c
	// cp1: pressure and temperature terms for s = 0.
	a = (((1.7168e-8*t+2.0357e-6)*t-3.13885e-4)*t+1.45747e-2)*t - 0.49592
	b = (((2.2956e-11*t-4.0027e-9)*t+2.87533e-7)*t-1.08645e-5)*t + 2.4931e-4
	c = ((6.136e-13*t-6.5637e-11)*t+2.6380e-9)*t - 5.422e-8
	cp1 := ((c*p+b)*p + a) * p
	// cp2: pressure and temperature terms for s > 0.
	a = (((-2.9179e-10*t+2.5941e-8)*t+9.802e-7)*t-1.28315e-4)*t + 4.9247e-3
	b = (3.122e-8*t-1.517e-6)*t - 1.2331e-4
	a = (a + b*sr) * s
	b = ((1.8448e-11*t-2.3905e-9)*t+1.17054e-7)*t - 2.9558e-6
	b = (b + 9.971e-8*sr) * s
	c = (3.513e-13*t-1.7682e-11)*t + 5.540e-10
	c = (c - 1.4300e-12*t*sr) * s
	cp2 := ((c*p+b)*p + a) * p
	return cp0 + cp1 + cp2
}
