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

func toeSignal(series ...[]float64) *sparse.DenseArray {
	nt := len(series[0])
	a := sparse.ZerosDense(nt, len(series))
	for p, s := range series {
		for ti, v := range s {
			a.Set(v, ti, p)
		}
	}
	return a
}

func TestFindToE(t *testing.T) {
	signal := toeSignal(
		[]float64{3, 3, 3, 3, 3},          // outside the envelope throughout
		[]float64{1, 1, 1, 1, 1},          // never outside
		[]float64{0, 0, 3, 3, 3},          // emerges at step 2
		[]float64{3, 0, 3, 3, 3},          // early excursion is not emergence
		[]float64{0, 0, -3, -3, -3},       // sign does not matter
		[]float64{3, 3, 3, 3, 1},          // falls back inside at the end
		[]float64{3, 3, 3, 3, ValMask},    // missing samples are non-emergent
		[]float64{ValMask, 3, 3, 3, 3},    // missing start does not block emergence
		[]float64{ValMask, ValMask, ValMask, ValMask, ValMask}, // no data at all
	)
	noise := sparse.ZerosDense(9)
	for p := 0; p < 9; p++ {
		noise.Elements[p] = 1
	}
	toe, err := FindToE(signal, noise, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 5, 2, 2, 2, 5, 5, 1, ValMask}
	for p, w := range want {
		have := toe.Get(p)
		if IsMasked(w) {
			if !IsMasked(have) {
				t.Errorf("point %d: want missing but have %g", p, have)
			}
			continue
		}
		if have != w {
			t.Errorf("point %d: want %g but have %g", p, w, have)
		}
	}
}

func TestFindToEMaskedNoise(t *testing.T) {
	signal := toeSignal([]float64{3, 3, 3})
	noise := sparse.ZerosDense(1)
	noise.Elements[0] = ValMask
	toe, err := FindToE(signal, noise, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !IsMasked(toe.Get(0)) {
		t.Errorf("masked noise: have %g", toe.Get(0))
	}
}

func TestFindToEShapeChecks(t *testing.T) {
	signal := sparse.ZerosDense(5, 2)
	if _, err := FindToE(signal, sparse.ZerosDense(3), 2); err == nil {
		t.Error("mismatched noise shape should be an error")
	}
	if _, err := FindToE(sparse.ZerosDense(5), sparse.ZerosDense(5), 2); err == nil {
		t.Error("signal without a space axis should be an error")
	}
}

func TestAnomaly(t *testing.T) {
	const tolerance = 1.0e-12

	a := toeSignal([]float64{1, 3, 5, 7})
	o, err := anomaly(a, 0, 2) // reference mean 2
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{-1, 1, 3, 5}
	for ti, w := range want {
		if math.Abs(o.Get(ti, 0)-w) > tolerance {
			t.Errorf("step %d: want %g but have %g", ti, w, o.Get(ti, 0))
		}
	}
	if _, err := anomaly(a, 2, 2); err == nil {
		t.Error("empty reference period should be an error")
	}
}

func TestTimeStd(t *testing.T) {
	const tolerance = 1.0e-12

	a := toeSignal(
		[]float64{1, 3, 1, 3},
		[]float64{2, ValMask, 2, ValMask},
	)
	o := timeStd(a)
	if math.Abs(o.Get(0)-1) > tolerance {
		t.Errorf("std: %g", o.Get(0))
	}
	// Missing samples drop out; the remaining values are constant.
	if math.Abs(o.Get(1)) > tolerance {
		t.Errorf("std over valid samples: %g", o.Get(1))
	}
}
