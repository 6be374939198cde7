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
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// NCFile is an open NetCDF input file.
type NCFile struct {
	CDF *cdf.File
	f   *os.File
	// nRec is the record count, which the header reports as a
	// dimension length of zero.
	nRec int
}

// OpenNC opens a NetCDF file for reading.
func OpenNC(path string) (*NCFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("densbin: opening %s: %v", path, err)
	}
	ff, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("densbin: reading NetCDF header of %s: %v", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("densbin: opening %s: %v", path, err)
	}
	return &NCFile{CDF: ff, f: f, nRec: int(ff.Header.NumRecs(fi.Size()))}, nil
}

// Close closes the underlying file.
func (n *NCFile) Close() error { return n.f.Close() }

// Dims returns the dimension lengths of variable v, substituting the
// record count for the record dimension.
func (n *NCFile) Dims(v string) []int {
	dims := n.CDF.Header.Lengths(v)
	if len(dims) > 0 && dims[0] == 0 {
		dims = append([]int{n.nRec}, dims[1:]...)
	}
	return dims
}

// ReadFull reads all of variable v into a dense array, converting the
// stored type to float64.
func (n *NCFile) ReadFull(v string) (*sparse.DenseArray, error) {
	dims := n.Dims(v)
	start := make([]int, len(dims))
	return n.readSlab(v, start, dims, dims)
}

// ReadChunk reads time steps [t0, t1) of variable v, whose leading
// dimension must be the record (time) dimension.
func (n *NCFile) ReadChunk(v string, t0, t1 int) (*sparse.DenseArray, error) {
	dims := n.Dims(v)
	if len(dims) == 0 {
		return nil, fmt.Errorf("densbin: variable %s has no dimensions", v)
	}
	if t1 > dims[0] {
		return nil, fmt.Errorf("densbin: chunk [%d, %d) of %s exceeds its %d time steps", t0, t1, v, dims[0])
	}
	start := make([]int, len(dims))
	end := make([]int, len(dims))
	start[0] = t0
	end[0] = t1
	copy(end[1:], dims[1:])
	shape := append([]int{t1 - t0}, dims[1:]...)
	return n.readSlab(v, start, end, shape)
}

// ReadAxis reads a 1-D coordinate variable.
func (n *NCFile) ReadAxis(v string) ([]float64, error) {
	a, err := n.ReadFull(v)
	if err != nil {
		return nil, err
	}
	if len(a.Shape) != 1 {
		return nil, fmt.Errorf("densbin: axis %s has shape %v, want 1-D", v, a.Shape)
	}
	return a.Elements, nil
}

func (n *NCFile) readSlab(v string, start, end, shape []int) (*sparse.DenseArray, error) {
	o := sparse.ZerosDense(shape...)
	nread := len(o.Elements)
	r := n.CDF.Reader(v, start, end)
	buf := r.Zero(nread)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("densbin: reading %s: %v", v, err)
	}
	switch b := buf.(type) {
	case []float64:
		copy(o.Elements, b)
	case []float32:
		for i, val := range b {
			o.Elements[i] = float64(val)
		}
	case []int32:
		for i, val := range b {
			o.Elements[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("densbin: variable %s has unsupported type %T", v, buf)
	}
	return o, nil
}

// OutputVar describes one variable of an output file.
type OutputVar struct {
	Name     string
	Dims     []string
	Units    string
	LongName string
}

// NCWriter writes the program's NetCDF output files.
type NCWriter struct {
	CDF *cdf.File
	f   *os.File
}

// CreateOutput creates a NetCDF file with the given dimensions and
// variables. Variables are stored as float32 with ValMask as the fill
// value. A dimension with length 0 becomes the record dimension.
func CreateOutput(path string, dims []string, lens []int, vars []OutputVar) (*NCWriter, error) {
	h := cdf.NewHeader(dims, lens)
	h.AddAttribute("", "Conventions", "CF-1.6")
	h.AddAttribute("", "source", "densbin v"+Version)
	for _, v := range vars {
		h.AddVariable(v.Name, v.Dims, []float32{0})
		h.AddAttribute(v.Name, "_FillValue", []float32{float32(ValMask)})
		h.AddAttribute(v.Name, "missing_value", []float32{float32(ValMask)})
		if v.Units != "" {
			h.AddAttribute(v.Name, "units", v.Units)
		}
		if v.LongName != "" {
			h.AddAttribute(v.Name, "long_name", v.LongName)
		}
	}
	h.Define()
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("densbin: creating %s: %v", path, err)
	}
	ff, err := cdf.Create(f, h)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("densbin: writing NetCDF header of %s: %v", path, err)
	}
	return &NCWriter{CDF: ff, f: f}, nil
}

// WriteVar writes all of variable v, narrowing to float32. The start
// and end of the write are given explicitly because a writer spanning
// exactly the variable's extent reports io.EOF on completion.
func (w *NCWriter) WriteVar(v string, data *sparse.DenseArray) error {
	end := w.CDF.Header.Lengths(v)
	start := make([]int, len(end))
	return w.writeSlab(v, start, end, data)
}

// WriteFloats writes a 1-D variable from a plain slice.
func (w *NCWriter) WriteFloats(v string, data []float64) error {
	data32 := make([]float32, len(data))
	for i, e := range data {
		data32[i] = float32(e)
	}
	end := w.CDF.Header.Lengths(v)
	start := make([]int, len(end))
	if _, err := w.CDF.Writer(v, start, end).Write(data32); err != nil {
		return fmt.Errorf("densbin: writing %s: %v", v, err)
	}
	return nil
}

// WriteChunk writes time steps [t0, t0+nt) of record variable v, where
// nt is the length of data's leading axis.
func (w *NCWriter) WriteChunk(v string, t0 int, data *sparse.DenseArray) error {
	dims := w.CDF.Header.Lengths(v)
	start := make([]int, len(dims))
	end := make([]int, len(dims))
	start[0] = t0
	end[0] = t0 + data.Shape[0]
	copy(end[1:], dims[1:])
	return w.writeSlab(v, start, end, data)
}

func (w *NCWriter) writeSlab(v string, start, end []int, data *sparse.DenseArray) error {
	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	if _, err := w.CDF.Writer(v, start, end).Write(data32); err != nil {
		return fmt.Errorf("densbin: writing %s: %v", v, err)
	}
	return nil
}

// Close updates the record count and closes the file.
func (w *NCWriter) Close() error {
	if err := cdf.UpdateNumRecs(w.f); err != nil {
		w.f.Close()
		return fmt.Errorf("densbin: finalizing output: %v", err)
	}
	return w.f.Close()
}
