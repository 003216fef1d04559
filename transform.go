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

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Transform maps grid coordinates to CRS coordinates.
type Transform interface {
	SourceDims() int
	TargetDims() int
	// Apply converts one coordinate tuple. The source slice length
	// must equal SourceDims; the result has length TargetDims.
	Apply(src []float64) ([]float64, error)
	Equal(other Transform) bool
}

// Affine is an affine transform backed by a homogeneous matrix of size
// (target dimensions + 1) × (source dimensions + 1), with the last row
// fixed to [0 … 0 1].
type Affine struct {
	m *mat.Dense
}

// NewAffine creates a zero affine transform with the bottom-right
// corner set to 1. Rows are target dimensions, columns are source
// dimensions; the last column holds translation terms.
func NewAffine(tgtDims, srcDims int) *Affine {
	m := mat.NewDense(tgtDims+1, srcDims+1, nil)
	m.Set(tgtDims, srcDims, 1)
	return &Affine{m: m}
}

// NewAffine2D creates a two-dimensional affine transform from the six
// coefficients of x' = a·x + b·y + tx and y' = c·x + d·y + ty.
func NewAffine2D(a, c, b, d, tx, ty float64) *Affine {
	t := NewAffine(2, 2)
	t.m.Set(0, 0, a)
	t.m.Set(0, 1, b)
	t.m.Set(0, 2, tx)
	t.m.Set(1, 0, c)
	t.m.Set(1, 1, d)
	t.m.Set(1, 2, ty)
	return t
}

func (t *Affine) SourceDims() int { _, c := t.m.Dims(); return c - 1 }
func (t *Affine) TargetDims() int { r, _ := t.m.Dims(); return r - 1 }

// Set assigns one matrix element. Row indices are target dimensions;
// column index SourceDims() holds the translation term.
func (t *Affine) Set(row, col int, v float64) { t.m.Set(row, col, v) }

// At returns one matrix element.
func (t *Affine) At(row, col int) float64 { return t.m.At(row, col) }

func (t *Affine) Apply(src []float64) ([]float64, error) {
	srcDims, tgtDims := t.SourceDims(), t.TargetDims()
	if len(src) != srcDims {
		return nil, fmt.Errorf("georef: affine transform expects %d coordinates, got %d", srcDims, len(src))
	}
	dst := make([]float64, tgtDims)
	for r := 0; r < tgtDims; r++ {
		v := t.m.At(r, srcDims)
		for c := 0; c < srcDims; c++ {
			v += t.m.At(r, c) * src[c]
		}
		dst[r] = v
	}
	return dst, nil
}

// IsIdentity reports whether the transform maps every coordinate to
// itself.
func (t *Affine) IsIdentity() bool {
	r, c := t.m.Dims()
	if r != c {
		return false
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if t.m.At(i, j) != want {
				return false
			}
		}
	}
	return true
}

func (t *Affine) Equal(other Transform) bool {
	o, ok := other.(*Affine)
	return ok && mat.Equal(t.m, o.m)
}

// columnInUse reports whether any target row uses the given source
// column, i.e. whether the source dimension is already claimed.
func (t *Affine) columnInUse(col int) bool {
	r, _ := t.m.Dims()
	for i := 0; i < r; i++ {
		if t.m.At(i, col) != 0 {
			return true
		}
	}
	return false
}

// subTarget extracts the rows for target dimensions [from, to) as a new
// affine transform over the same source dimensions.
func (t *Affine) subTarget(from, to int) *Affine {
	srcDims := t.SourceDims()
	sub := NewAffine(to-from, srcDims)
	for r := from; r < to; r++ {
		for c := 0; c <= srcDims; c++ {
			sub.m.Set(r-from, c, t.m.At(r, c))
		}
	}
	return sub
}

// Interpolate1D maps a single grid index to a coordinate value by
// linear interpolation in a table of samples. Indices outside the table
// are extrapolated from the nearest interval.
type Interpolate1D struct {
	values []float64
}

func NewInterpolate1D(values []float64) *Interpolate1D {
	return &Interpolate1D{values: values}
}

func (t *Interpolate1D) SourceDims() int { return 1 }
func (t *Interpolate1D) TargetDims() int { return 1 }

func (t *Interpolate1D) Apply(src []float64) ([]float64, error) {
	if len(src) != 1 {
		return nil, fmt.Errorf("georef: interpolation expects 1 coordinate, got %d", len(src))
	}
	n := len(t.values)
	if n == 0 {
		return nil, fmt.Errorf("georef: interpolation table is empty")
	}
	if n == 1 {
		return []float64{t.values[0]}, nil
	}
	x := src[0]
	i := int(math.Floor(x))
	if i < 0 {
		i = 0
	} else if i > n-2 {
		i = n - 2
	}
	f := x - float64(i)
	return []float64{t.values[i] + f*(t.values[i+1]-t.values[i])}, nil
}

func (t *Interpolate1D) Equal(other Transform) bool {
	o, ok := other.(*Interpolate1D)
	return ok && floats.Equal(t.values, o.values)
}

// PassThrough lifts a lower-dimensional transform into a larger
// coordinate tuple: dimensions before firstDim and after the wrapped
// transform's span are copied unchanged.
type PassThrough struct {
	firstDim int
	sub      Transform
	trailing int
}

func NewPassThrough(firstDim int, sub Transform, trailing int) *PassThrough {
	return &PassThrough{firstDim: firstDim, sub: sub, trailing: trailing}
}

func (t *PassThrough) SourceDims() int { return t.firstDim + t.sub.SourceDims() + t.trailing }
func (t *PassThrough) TargetDims() int { return t.firstDim + t.sub.TargetDims() + t.trailing }

func (t *PassThrough) Apply(src []float64) ([]float64, error) {
	if len(src) != t.SourceDims() {
		return nil, fmt.Errorf("georef: pass-through transform expects %d coordinates, got %d", t.SourceDims(), len(src))
	}
	mid, err := t.sub.Apply(src[t.firstDim : t.firstDim+t.sub.SourceDims()])
	if err != nil {
		return nil, err
	}
	dst := make([]float64, 0, t.TargetDims())
	dst = append(dst, src[:t.firstDim]...)
	dst = append(dst, mid...)
	dst = append(dst, src[len(src)-t.trailing:]...)
	return dst, nil
}

func (t *PassThrough) Equal(other Transform) bool {
	o, ok := other.(*PassThrough)
	return ok && t.firstDim == o.firstDim && t.trailing == o.trailing && t.sub.Equal(o.sub)
}

// Concatenated applies a sequence of transforms in order.
type Concatenated struct {
	steps []Transform
}

// Concatenate chains the given transforms, dropping nil entries and
// flattening nested concatenations. A single remaining step is returned
// unwrapped.
func Concatenate(steps ...Transform) Transform {
	var flat []Transform
	for _, s := range steps {
		switch t := s.(type) {
		case nil:
			continue
		case *Concatenated:
			flat = append(flat, t.steps...)
		default:
			flat = append(flat, s)
		}
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	return &Concatenated{steps: flat}
}

func (t *Concatenated) SourceDims() int { return t.steps[0].SourceDims() }
func (t *Concatenated) TargetDims() int { return t.steps[len(t.steps)-1].TargetDims() }

func (t *Concatenated) Apply(src []float64) ([]float64, error) {
	v := src
	var err error
	for _, step := range t.steps {
		if v, err = step.Apply(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (t *Concatenated) Equal(other Transform) bool {
	o, ok := other.(*Concatenated)
	if !ok || len(t.steps) != len(o.steps) {
		return false
	}
	for i := range t.steps {
		if !t.steps[i].Equal(o.steps[i]) {
			return false
		}
	}
	return true
}

// compound stacks transforms side by side: the source and target
// dimensions are the sums of the per-part dimensions. It is the
// mechanism used for splicing an explicit transform into the middle of
// an axis-inferred one.
type compound struct {
	parts []Transform
}

func newCompound(parts ...Transform) Transform {
	var flat []Transform
	for _, p := range parts {
		if p != nil {
			flat = append(flat, p)
		}
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return &compound{parts: flat}
}

func (t *compound) SourceDims() int {
	n := 0
	for _, p := range t.parts {
		n += p.SourceDims()
	}
	return n
}

func (t *compound) TargetDims() int {
	n := 0
	for _, p := range t.parts {
		n += p.TargetDims()
	}
	return n
}

func (t *compound) Apply(src []float64) ([]float64, error) {
	if len(src) != t.SourceDims() {
		return nil, fmt.Errorf("georef: compound transform expects %d coordinates, got %d", t.SourceDims(), len(src))
	}
	dst := make([]float64, 0, t.TargetDims())
	i := 0
	for _, p := range t.parts {
		out, err := p.Apply(src[i : i+p.SourceDims()])
		if err != nil {
			return nil, err
		}
		dst = append(dst, out...)
		i += p.SourceDims()
	}
	return dst, nil
}

func (t *compound) Equal(other Transform) bool {
	o, ok := other.(*compound)
	if !ok || len(t.parts) != len(o.parts) {
		return false
	}
	for i := range t.parts {
		if !t.parts[i].Equal(o.parts[i]) {
			return false
		}
	}
	return true
}
