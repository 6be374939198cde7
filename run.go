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
	"math"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

// Chunk sizes in months. Small grids are processed a decade at a time,
// eddy-permitting grids two years at a time to bound memory use.
const (
	chunkSmall   = 120
	chunkLarge   = 24
	largeGridPts = 1e6
)

// Config holds the settings for one density-binning run.
type Config struct {
	// ThetaoFile and SoFile are the monthly 4-D potential temperature
	// [degC] and salinity [PSS-78] input files.
	ThetaoFile, SoFile string
	// FluxFile optionally holds monthly surface fields (tos, sos,
	// hfds, wfo) for the water-mass transformation diagnostics.
	FluxFile string
	// GridFile optionally holds the cell area (areacello) and basin
	// code (basin) fields; both are derived from the coordinate axes
	// when absent.
	GridFile string

	// Variable and axis names in the input files.
	ThetaoVar, SoVar       string
	LatVar, LonVar, LevVar string

	// OutputPrefix is the stem of the output file names; the zonal
	// diagnostics go to <stem>.zon.nc and, when MonthlyOut is set,
	// the binned monthly fields go to <stem>.mon.nc.
	OutputPrefix string
	// MonthlyOut enables writing the full binned monthly fields,
	// which are large.
	MonthlyOut bool

	// Target density grid parameters [kg m-3].
	RhoMin, RhoInt, RhoMax float64
	DelFine, DelCoarse     float64

	// TimeInt optionally restricts processing to time steps
	// [TimeInt[0], TimeInt[1]); both zero means the whole file. The
	// subset must cover whole years.
	TimeInt [2]int

	// TargetRes is the resolution [degrees] of the regular grid the
	// zonal diagnostics are computed on.
	TargetRes float64

	// Log receives progress information. If nil, the logrus standard
	// logger is used.
	Log logrus.FieldLogger
}

func (c *Config) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

// chunkSize returns the number of months processed per chunk for a grid
// with nPts horizontal points, always a whole number of years.
func chunkSize(nPts int) int {
	if float64(nPts) <= largeGridPts {
		return chunkSmall
	}
	return chunkLarge
}

// targetAxes builds the regular latitude and longitude axes for the
// zonal diagnostics at resolution res degrees.
func targetAxes(res float64) (lat, lon []float64) {
	nLat := int(math.Round(180 / res))
	nLon := int(math.Round(360 / res))
	lat = make([]float64, nLat)
	lon = make([]float64, nLon)
	for j := range lat {
		lat[j] = -90 + (float64(j)+0.5)*res
	}
	for i := range lon {
		lon[i] = -180 + (float64(i)+0.5)*res
	}
	return lat, lon
}

// readVerticalGrid reads the depth axis and its cell edges from f. If
// the file carries no explicit level bounds, edges are placed midway
// between cell centres with the top edge at the surface.
func readVerticalGrid(f *NCFile, levVar string) (*VerticalGrid, error) {
	depth, err := f.ReadAxis(levVar)
	if err != nil {
		return nil, err
	}
	nz := len(depth)
	edges := make([]float64, nz+1)
	if hasVar(f, levVar+"_bnds") {
		b, err := f.ReadFull(levVar + "_bnds")
		if err != nil {
			return nil, err
		}
		for k := 0; k < nz; k++ {
			edges[k] = b.Get(k, 0)
		}
		edges[nz] = b.Get(nz-1, 1)
	} else {
		edges[0] = 0
		for k := 1; k < nz; k++ {
			edges[k] = (depth[k-1] + depth[k]) / 2
		}
		edges[nz] = depth[nz-1] + (depth[nz-1] - edges[nz-1])
	}
	return &VerticalGrid{Depth: depth, Edges: edges}, nil
}

func hasVar(f *NCFile, v string) bool {
	for _, name := range f.CDF.Header.Variables() {
		if name == v {
			return true
		}
	}
	return false
}

// slice2d extracts the (lat, lon) plane of a at the given leading
// indices.
func slice2d(a *sparse.DenseArray, idx ...int) *sparse.DenseArray {
	nd := len(a.Shape)
	nLat := a.Shape[nd-2]
	nLon := a.Shape[nd-1]
	o := sparse.ZerosDense(nLat, nLon)
	off := 0
	for d, i := range idx {
		off = (off + i) * a.Shape[d+1]
	}
	for d := len(idx) + 1; d < nd; d++ {
		off *= a.Shape[d]
	}
	copy(o.Elements, a.Elements[off:off+nLat*nLon])
	return o
}

// regridField regrids every (lat, lon) plane of a (time, level, lat,
// lon) field.
func regridField(rg Regridder, a *sparse.DenseArray, tLat, tLon []float64) (*sparse.DenseArray, error) {
	nt, nLev := a.Shape[0], a.Shape[1]
	o := sparse.ZerosDense(nt, nLev, len(tLat), len(tLon))
	nPts := len(tLat) * len(tLon)
	for t := 0; t < nt; t++ {
		for k := 0; k < nLev; k++ {
			p, err := rg.Regrid(slice2d(a, t, k))
			if err != nil {
				return nil, err
			}
			copy(o.Elements[(t*nLev+k)*nPts:], p.Elements)
		}
	}
	return o, nil
}

// zonalPerBasin applies each basin mask to a regridded field and
// averages zonally, returning one array per basin.
func zonalPerBasin(bm *BasinMasks, a *sparse.DenseArray) map[Basin]*sparse.DenseArray {
	o := make(map[Basin]*sparse.DenseArray, len(Basins))
	for _, b := range Basins {
		o[b] = ZonalMean(bm.Apply(a, b))
	}
	return o
}

// DensityBin runs the full binning pipeline: it reads monthly
// temperature and salinity, computes neutral density, remaps every water
// column onto the target density grid, and writes annual zonal-mean
// diagnostics per ocean basin, processing the time axis in whole-year
// chunks.
func DensityBin(cfg *Config) error {
	log := cfg.logger()
	g := NewDensityGrid(cfg.RhoMin, cfg.RhoInt, cfg.RhoMax, cfg.DelFine, cfg.DelCoarse)

	tf, err := OpenNC(cfg.ThetaoFile)
	if err != nil {
		return err
	}
	defer tf.Close()
	sf, err := OpenNC(cfg.SoFile)
	if err != nil {
		return err
	}
	defer sf.Close()

	srcLat, err := tf.ReadAxis(cfg.LatVar)
	if err != nil {
		return err
	}
	srcLon, err := tf.ReadAxis(cfg.LonVar)
	if err != nil {
		return err
	}
	vg, err := readVerticalGrid(tf, cfg.LevVar)
	if err != nil {
		return err
	}

	dims := tf.Dims(cfg.ThetaoVar)
	if len(dims) != 4 {
		return fmt.Errorf("densbin: %s must be (time, lev, lat, lon), got %d dimensions", cfg.ThetaoVar, len(dims))
	}
	sdims := sf.Dims(cfg.SoVar)
	for d := range dims {
		if sdims[d] != dims[d] {
			return fmt.Errorf("densbin: %s shape %v does not match %s shape %v", cfg.SoVar, sdims, cfg.ThetaoVar, dims)
		}
	}
	start, end := cfg.TimeInt[0], cfg.TimeInt[1]
	if end == 0 {
		end = dims[0]
	}
	if (end-start)%monthsPerYear != 0 {
		return fmt.Errorf("densbin: time interval [%d, %d) is not a whole number of years", start, end)
	}
	nLat, nLon := dims[2], dims[3]
	nPts := nLat * nLon
	chunk := chunkSize(nPts)

	// Regular grid for the zonal diagnostics.
	tLat, tLon := targetAxes(cfg.TargetRes)
	rg, err := NewBilinearRegridder(srcLat, srcLon, tLat, tLon)
	if err != nil {
		return err
	}
	tArea := CellArea(tLon, tLat)
	basinCodes, err := readBasinCodes(cfg, tLat, tLon)
	if err != nil {
		return err
	}
	bm := NewBasinMasks(basinCodes, tLon, tLat)
	zArea := bm.ZonalAreaSum(tArea)

	zw, err := createZonalOutput(cfg.OutputPrefix+".zon.nc", g, tLat, cfg.FluxFile != "")
	if err != nil {
		return err
	}
	defer zw.Close()
	var mw *NCWriter
	if cfg.MonthlyOut {
		mw, err = createMonthlyOutput(cfg.OutputPrefix+".mon.nc", g, srcLat, srcLon)
		if err != nil {
			return err
		}
		defer mw.Close()
	}

	var flux *fluxInputs
	if cfg.FluxFile != "" {
		flux, err = openFluxInputs(cfg, srcLat, srcLon)
		if err != nil {
			return err
		}
		defer flux.Close()
	}

	log.WithFields(logrus.Fields{
		"points": nPts, "depths": vg.Nz(), "months": end - start, "chunk": chunk,
	}).Info("starting density binning")

	for t0 := start; t0 < end; t0 += chunk {
		t1 := t0 + chunk
		if t1 > end {
			t1 = end
		}
		log.WithFields(logrus.Fields{"from": t0, "to": t1}).Info("processing chunk")

		thetao, err := tf.ReadChunk(cfg.ThetaoVar, t0, t1)
		if err != nil {
			return err
		}
		so, err := sf.ReadChunk(cfg.SoVar, t0, t1)
		if err != nil {
			return err
		}
		rho := NeutralDensity(thetao, so)
		binned := g.BinChunk(vg, thetao, so, rho)

		if mw != nil {
			for v, a := range map[string]*sparse.DenseArray{
				"isondepth": binned.Depth, "isonthick": binned.Thick,
				"isonthetao": binned.Temp, "isonso": binned.Salt,
			} {
				if err := mw.WriteChunk(v, t0-start, a); err != nil {
					return err
				}
			}
		}

		// Annual reductions for this chunk.
		y0 := (t0 - start) / monthsPerYear
		persist, err := Persistence(binned.Thick)
		if err != nil {
			return err
		}
		annual := make(map[string]*sparse.DenseArray, 5)
		for v, a := range map[string]*sparse.DenseArray{
			"isondepth": binned.Depth, "isonthick": binned.Thick,
			"isonthetao": binned.Temp, "isonso": binned.Salt,
		} {
			m, err := AnnualMean(a)
			if err != nil {
				return err
			}
			annual[v] = m
		}
		annual["isonpers"] = persist

		// Regrid, then zonal-average per basin.
		regridded := make(map[string]*sparse.DenseArray, len(annual))
		for v, a := range annual {
			r, err := regridField(rg, a, tLat, tLon)
			if err != nil {
				return err
			}
			regridded[v] = r
		}
		bowl := g.Bowl(regridded["isonpers"], regridded["isondepth"],
			regridded["isonthetao"], regridded["isonso"])

		for v, a := range regridded {
			for b, z := range zonalPerBasin(bm, a) {
				if err := zw.WriteChunk(v+b.Suffix(), y0, z); err != nil {
					return err
				}
				if v == "isonthick" {
					if err := zw.WriteChunk("isonvol"+b.Suffix(), y0, VolumePerBin(z, zArea[b])); err != nil {
						return err
					}
				}
			}
		}
		persim := ColumnPersistence(regridded["isonpers"], regridded["isonthick"])
		for v, a := range map[string]*sparse.DenseArray{
			"persim": persim, "ptopsigma": bowl.Sigma, "ptopdepth": bowl.Depth,
			"ptopthetao": bowl.Temp, "ptopso": bowl.Salt,
		} {
			for b, z := range zonalPerBasin(bm, a) {
				if err := zw.WriteChunk(v+b.Suffix(), y0, z); err != nil {
					return err
				}
			}
		}

		if flux != nil {
			if err := flux.process(g, zw, t0, t1, t0-start); err != nil {
				return err
			}
		}
	}
	log.Info("density binning finished")
	return nil
}

// readBasinCodes reads basin codes from the grid file, sampling them
// onto the target axes by nearest neighbor, or derives them from the
// coordinates when no grid file is given.
func readBasinCodes(cfg *Config, tLat, tLon []float64) (*sparse.DenseArray, error) {
	if cfg.GridFile != "" {
		gf, err := OpenNC(cfg.GridFile)
		if err != nil {
			return nil, err
		}
		defer gf.Close()
		if hasVar(gf, "basin") {
			codes, err := gf.ReadFull("basin")
			if err != nil {
				return nil, err
			}
			gLat, err := gf.ReadAxis(cfg.LatVar)
			if err != nil {
				return nil, err
			}
			gLon, err := gf.ReadAxis(cfg.LonVar)
			if err != nil {
				return nil, err
			}
			return nearestCodes(codes, gLat, gLon, tLat, tLon), nil
		}
	}
	return GeographicBasinCodes(tLat, tLon), nil
}

// nearestCodes samples integer basin codes at the target coordinates by
// nearest neighbor; interpolating codes would invent basins.
func nearestCodes(codes *sparse.DenseArray, srcLat, srcLon, tLat, tLon []float64) *sparse.DenseArray {
	o := sparse.ZerosDense(len(tLat), len(tLon))
	for j, la := range tLat {
		sj := nearestIndex(srcLat, la)
		for i, lo := range tLon {
			si := nearestIndex(srcLon, lo)
			o.Set(codes.Get(sj, si), j, i)
		}
	}
	return o
}

func nearestIndex(ax []float64, x float64) int {
	best := 0
	for i := 1; i < len(ax); i++ {
		if math.Abs(ax[i]-x) < math.Abs(ax[best]-x) {
			best = i
		}
	}
	return best
}

func createZonalOutput(path string, g *DensityGrid, tLat []float64, withFlux bool) (*NCWriter, error) {
	dims := []string{"time", "lev", "lat"}
	lens := []int{0, g.N() + 1, len(tLat)}
	var vars []OutputVar
	for _, b := range Basins {
		sfx := b.Suffix()
		name := b.String()
		vars = append(vars,
			OutputVar{"isondepth" + sfx, []string{"time", "lev", "lat"}, "m", "Depth of isopycnal, " + name},
			OutputVar{"isonthick" + sfx, []string{"time", "lev", "lat"}, "m", "Thickness of isopycnal, " + name},
			OutputVar{"isonvol" + sfx, []string{"time", "lev", "lat"}, "1e12 m3", "Volume of isopycnal, " + name},
			OutputVar{"isonthetao" + sfx, []string{"time", "lev", "lat"}, "degC", "Temperature on isopycnal, " + name},
			OutputVar{"isonso" + sfx, []string{"time", "lev", "lat"}, "1e-3", "Salinity on isopycnal, " + name},
			OutputVar{"isonpers" + sfx, []string{"time", "lev", "lat"}, "%", "Persistence of isopycnal, " + name},
			OutputVar{"persim" + sfx, []string{"time", "lat"}, "%", "Persistently ventilated share of the water column, " + name},
			OutputVar{"ptopsigma" + sfx, []string{"time", "lat"}, "kg m-3", "Bowl density, " + name},
			OutputVar{"ptopdepth" + sfx, []string{"time", "lat"}, "m", "Bowl depth, " + name},
			OutputVar{"ptopthetao" + sfx, []string{"time", "lat"}, "degC", "Bowl temperature, " + name},
			OutputVar{"ptopso" + sfx, []string{"time", "lat"}, "1e-3", "Bowl salinity, " + name},
		)
	}
	if withFlux {
		vars = append(vars,
			OutputVar{"transfh", []string{"time", "lev"}, "kg s-1", "Heat-driven water-mass transformation"},
			OutputVar{"transfw", []string{"time", "lev"}, "kg s-1", "Freshwater-driven water-mass transformation"},
			OutputVar{"transf", []string{"time", "lev"}, "kg s-1", "Total water-mass transformation"},
			OutputVar{"inthflx", []string{"time"}, "PW", "Domain-integrated net heat flux"},
			OutputVar{"intwflx", []string{"time"}, "Sv", "Domain-integrated net freshwater flux"},
		)
	}
	vars = append(vars,
		OutputVar{Name: "lev", Dims: []string{"lev"}, Units: "kg m-3", LongName: "Neutral density anomaly"},
		OutputVar{Name: "lat", Dims: []string{"lat"}, Units: "degrees_north"},
	)
	w, err := CreateOutput(path, dims, lens, vars)
	if err != nil {
		return nil, err
	}
	if err := w.WriteFloats("lev", g.Axis); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.WriteFloats("lat", tLat); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func createMonthlyOutput(path string, g *DensityGrid, srcLat, srcLon []float64) (*NCWriter, error) {
	dims := []string{"time", "lev", "lat", "lon"}
	lens := []int{0, g.N() + 1, len(srcLat), len(srcLon)}
	vars := []OutputVar{
		{"isondepth", dims, "m", "Depth of isopycnal"},
		{"isonthick", dims, "m", "Thickness of isopycnal"},
		{"isonthetao", dims, "degC", "Temperature on isopycnal"},
		{"isonso", dims, "1e-3", "Salinity on isopycnal"},
		{Name: "lev", Dims: []string{"lev"}, Units: "kg m-3", LongName: "Neutral density anomaly"},
		{Name: "lat", Dims: []string{"lat"}, Units: "degrees_north"},
		{Name: "lon", Dims: []string{"lon"}, Units: "degrees_east"},
	}
	w, err := CreateOutput(path, dims, lens, vars)
	if err != nil {
		return nil, err
	}
	for v, ax := range map[string][]float64{"lev": g.Axis, "lat": srcLat, "lon": srcLon} {
		if err := w.WriteFloats(v, ax); err != nil {
			w.Close()
			return nil, err
		}
	}
	return w, nil
}

// fluxInputs bundles the open surface-flux file and the cell areas
// needed for the transformation diagnostics.
type fluxInputs struct {
	f    *NCFile
	area *sparse.DenseArray
}

func openFluxInputs(cfg *Config, srcLat, srcLon []float64) (*fluxInputs, error) {
	f, err := OpenNC(cfg.FluxFile)
	if err != nil {
		return nil, err
	}
	area := CellArea(srcLon, srcLat)
	if cfg.GridFile != "" {
		gf, err := OpenNC(cfg.GridFile)
		if err == nil {
			if hasVar(gf, "areacello") {
				if a, err := gf.ReadFull("areacello"); err == nil {
					area = a
				}
			}
			gf.Close()
		}
	}
	return &fluxInputs{f: f, area: area}, nil
}

func (fi *fluxInputs) Close() error { return fi.f.Close() }

// process computes annual-mean water-mass transformation for months
// [t0, t1) and writes it at the matching year offset of the output.
func (fi *fluxInputs) process(g *DensityGrid, zw *NCWriter, t0, t1, off int) error {
	fields := make(map[string]*sparse.DenseArray, 4)
	for _, v := range []string{"tos", "sos", "hfds", "wfo"} {
		a, err := fi.f.ReadChunk(v, t0, t1)
		if err != nil {
			return err
		}
		fields[v] = a
	}
	flux := SurfaceDensityFlux(fields["tos"], fields["sos"], fields["hfds"], fields["wfo"])
	sigma := NeutralDensity(fields["tos"], fields["sos"])
	y0 := off / monthsPerYear
	for v, f := range map[string]*sparse.DenseArray{
		"transfh": flux.Heat, "transfw": flux.Water, "transf": flux.Total,
	} {
		tr, err := g.Transformation(f, sigma, fi.area)
		if err != nil {
			return err
		}
		ann, err := AnnualMean(tr)
		if err != nil {
			return err
		}
		if err := zw.WriteChunk(v, y0, ann); err != nil {
			return err
		}
	}
	heat, water := DomainIntegrals(fields["hfds"], fields["wfo"], fi.area)
	for v, s := range map[string][]float64{"inthflx": heat, "intwflx": water} {
		a := sparse.ZerosDense(len(s))
		copy(a.Elements, s)
		ann, err := AnnualMean(a)
		if err != nil {
			return err
		}
		if err := zw.WriteChunk(v, y0, ann); err != nil {
			return err
		}
	}
	return nil
}
