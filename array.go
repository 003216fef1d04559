/*
Copyright © 2025 the GeoRef authors.
This file is part of GeoRef.

GeoRef is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GeoRef is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GeoRef.  If not, see <http://www.gnu.org/licenses/>.
*/

package georef

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"
)

// ReadArray reads the named variable in full and returns it shaped by
// its grid dimensions in dataset order. Fill values are replaced by
// NaN and the scale_factor and add_offset attributes are applied.
func (d *Dataset) ReadArray(varName string) (*sparse.DenseArray, error) {
	v, ok := d.vars[varName]
	if !ok {
		return nil, fmt.Errorf("georef: no variable %s in dataset %s", varName, d.Name)
	}
	data, err := v.Read()
	if err != nil {
		return nil, err
	}
	dims := v.GridDimensions()
	shape := make([]int, len(dims))
	for i, dim := range dims {
		shape[i] = dim.Length
	}
	out := sparse.ZerosDense(shape...)
	copy(out.Elements, data)
	return out, nil
}

// ReadArraySlice reads one slice of the named variable along its first
// (slowest varying) dimension, typically the time dimension. The
// returned array is shaped by the remaining dimensions.
func (d *Dataset) ReadArraySlice(varName string, index int) (*sparse.DenseArray, error) {
	v, ok := d.vars[varName]
	if !ok {
		return nil, fmt.Errorf("georef: no variable %s in dataset %s", varName, d.Name)
	}
	lengths := d.File.Header.Lengths(varName)
	if len(lengths) == 0 {
		return nil, fmt.Errorf("georef: variable %s in %s has no dimensions", varName, d.Name)
	}
	if index < 0 || (lengths[0] > 0 && index >= lengths[0]) {
		return nil, fmt.Errorf("georef: index %d out of range for variable %s in %s", index, varName, d.Name)
	}
	shape := lengths[1:]
	nread := 1
	for _, n := range shape {
		nread *= n
	}
	start, end := make([]int, len(lengths)), make([]int, len(lengths))
	start[0], end[0] = index, index+1
	r := d.File.Reader(varName, start, end)
	buf := r.Zero(nread)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("georef: reading variable %s from %s: %v", varName, d.Name, err)
	}
	data, err := numericSlice(buf)
	if err != nil {
		return nil, fmt.Errorf("georef: variable %s in %s: %v", varName, d.Name, err)
	}
	if fill, ok := attrFloat(v.Attribute("_FillValue")); ok {
		for i, x := range data {
			if x == fill {
				data[i] = math.NaN()
			}
		}
	}
	scale, hasScale := attrFloat(v.Attribute("scale_factor"))
	offset, hasOffset := attrFloat(v.Attribute("add_offset"))
	if hasScale || hasOffset {
		if !hasScale {
			scale = 1
		}
		for i, x := range data {
			data[i] = x*scale + offset
		}
	}
	out := sparse.ZerosDense(shape...)
	copy(out.Elements, data)
	return out, nil
}

func numericSlice(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		data := make([]float64, len(b))
		for i, x := range b {
			data[i] = float64(x)
		}
		return data, nil
	case []int32:
		data := make([]float64, len(b))
		for i, x := range b {
			data[i] = float64(x)
		}
		return data, nil
	case []int16:
		data := make([]float64, len(b))
		for i, x := range b {
			data[i] = float64(x)
		}
		return data, nil
	case []int8:
		data := make([]float64, len(b))
		for i, x := range b {
			data[i] = float64(x)
		}
		return data, nil
	}
	return nil, fmt.Errorf("non-numeric type %T", buf)
}
