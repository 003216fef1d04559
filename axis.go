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
	"strings"
)

// Axis is one axis of a grid: the link between a coordinate variable
// and the grid dimensions it spans. The coordinate variable is
// one-dimensional in the common case, two-dimensional when georeferenced
// by a localization grid, or zero-dimensional for a scalar coordinate.
type Axis struct {
	// Abbrev identifies the axis type with a controlled vocabulary:
	// λ φ (geodetic), θ Ω (spherical), E N (projected easting and
	// northing), H h D r (vertical), t (time), x y z (grid axes
	// without semantics). Zero means unknown.
	Abbrev rune

	// Direction of increasing coordinate values.
	Direction Direction

	// GridDims are the indices of the grid dimensions spanned by this
	// axis, initially in the dataset's native order. GridSizes are the
	// cell counts along those dimensions; GridSizes[i] belongs to the
	// dimension at GridDims[i]. Both slices may be modified after
	// construction by the grid that owns this axis.
	GridDims  []int
	GridSizes []int64

	Coords CoordinateSource

	unit *AxisUnit
	ds   *Dataset
	warn *errCat
}

// newAxis resolves the direction of an axis from three sources, in
// preference order: the "positive" attribute, the abbreviation and the
// unit spelling ("degrees_east"). The attribute wins because it is the
// only source describing which way values increase, but when it
// contradicts the other two, the axis type they imply is kept and only
// the sign of the attribute is transferred onto it.
func newAxis(coords CoordinateSource, abbrev rune, positive string, gridDims []int, gridSizes []int64, ds *Dataset, warn *errCat) (*Axis, error) {
	dir := parseDirection(positive)
	check := directionFromAbbreviation(abbrev)
	isSigned := dir != Unspecified
	consistent := true
	if dir == Unspecified {
		dir = check
	} else if check != Unspecified {
		consistent = dir.IsColinear(check)
	}
	if consistent {
		check = unitDirection(coords.UnitString())
		if dir == Unspecified {
			dir = check
		} else if check != Unspecified {
			consistent = dir.IsColinear(check)
		}
	}
	if !consistent {
		warn.addf("ambiguous direction for axis %s: %v contradicts %v", coords.Name(), dir, check)
		if isSigned {
			if dir.IsOpposite() {
				check = check.Opposite()
			}
			dir = check
		}
	}
	a := &Axis{
		Abbrev:    abbrev,
		Direction: dir,
		GridDims:  gridDims,
		GridSizes: gridSizes,
		Coords:    coords,
		unit:      ParseUnit(coords.UnitString()),
		ds:        ds,
		warn:      warn,
	}
	// If the coordinate variable declares a fill value, the last rows
	// may be all NaN. Trim them now, before any dimension reordering,
	// otherwise they would confuse the grid geometry computation.
	if coords.Attribute("_FillValue") != nil && len(a.GridSizes) > 0 {
		page, err := a.sizeProduct(1)
		if err != nil {
			return nil, err
		}
		data, err := coords.Read()
		if err != nil {
			return nil, err
		}
		n := len(data)
		for n > 0 && math.IsNaN(data[n-1]) {
			n--
		}
		if page > 0 {
			nr := int64((n + page - 1) / page)
			if nr < a.GridSizes[0] {
				a.GridSizes[0] = nr
			}
		}
	}
	return a, nil
}

func (a *Axis) Name() string { return strings.TrimSpace(a.Coords.Name()) }

// Unit returns the unit of measurement, or nil if unknown.
func (a *Axis) Unit() *AxisUnit { return a.unit }

// NumDims returns the number of grid dimensions spanned by the
// coordinate variable of this axis: usually 1, or 2 for an axis backed
// by a localization grid.
func (a *Axis) NumDims() int { return len(a.GridDims) }

// Read returns the coordinate values, excluding the trailing fill
// values trimmed at construction time.
func (a *Axis) Read() ([]float64, error) {
	data, err := a.Coords.Read()
	if err != nil {
		return nil, err
	}
	if a.GridSizes != nil {
		n, err := a.sizeProduct(0)
		if err != nil {
			return nil, err
		}
		if n < len(data) {
			data = data[:n]
		}
	}
	return data, nil
}

// size returns GridSizes[i] checked against the signed 32-bit range.
func (a *Axis) size(i int) (int, error) {
	n, err := countOf(a.GridSizes[i]).Int()
	if err != nil {
		return 0, &OverflowError{Op: fmt.Sprintf("size of axis %s", a.Name())}
	}
	return n, nil
}

// sizeProduct returns the product of GridSizes values starting at the
// given index. The full product sizeProduct(0) is the length of the
// vector returned by Read.
func (a *Axis) sizeProduct(from int) (int, error) {
	p := countOf(1)
	for i := from; i < len(a.GridSizes); i++ {
		p = p.mul(countOf(a.GridSizes[i]))
	}
	n, err := p.Int()
	if err != nil {
		return 0, &OverflowError{Op: fmt.Sprintf("cell count of axis %s", a.Name())}
	}
	return n, nil
}

// mainDimensionFirst swaps the two dimensions of this axis if needed
// for making the fastest varying one first. It needs to see the axes
// created before this one in order to avoid dimension collisions.
func (a *Axis) mainDimensionFirst(axes []*Axis) error {
	d0 := a.GridDims[0]
	d1 := a.GridDims[1]
	swap := false
	for _, other := range axes {
		if len(other.GridDims) != 0 {
			first := other.GridDims[0]
			if first == d1 {
				return nil // swapping would cause a collision
			}
			swap = first == d0
			if swap {
				break
			}
		}
	}
	if !swap {
		// Compare averaged increments along both dimensions at sampled
		// locations. A formula like (last-first)/count is not used
		// because it breaks when coordinates are not monotonic.
		h, err := a.size(0)
		if err != nil {
			return err
		}
		w, err := a.size(1)
		if err != nil {
			return err
		}
		data, err := a.Coords.Read()
		if err != nil {
			return err
		}
		at := func(i, j int) float64 { return data[j+w*i] }
		var iInc, jInc float64
		for _, i := range sampleIndices(h) {
			for _, j := range sampleIndices(w) {
				vo := at(i, j)
				iInc += at(i+1, j) - vo
				jInc += at(i, j+1) - vo
			}
		}
		if !(math.Abs(jInc) > math.Abs(iInc)) {
			return nil
		}
	}
	a.GridSizes[0], a.GridSizes[1] = a.GridSizes[1], a.GridSizes[0]
	a.GridDims[0], a.GridDims[1] = a.GridDims[1], a.GridDims[0]
	return nil
}

// sampleIndices returns indices at the beginning, middle and end of a
// dimension of the given length, leaving room for an index + 1 access.
func sampleIndices(length int) []int {
	if length <= 1 {
		return nil
	}
	if length <= 4 {
		r := make([]int, length-1)
		for i := range r {
			r[i] = i
		}
		return r
	}
	return []int{0, length >> 1, length - 2}
}

// sameUnitAndDirection is used for testing if a predefined coordinate
// system axis can be used instead of invoking toISO. A nil unit is
// interpreted as the system unit.
func (a *Axis) sameUnitAndDirection(axis CSAxis) bool {
	if axis.Direction != a.Direction {
		return false
	}
	return a.unit == nil || a.unit.Equal(axis.Unit)
}

// isWraparound reports whether this axis is likely to have a
// wraparound range, the main case being a longitude axis where the
// next value after +180° may be -180°.
func (a *Axis) isWraparound() bool {
	if a.Abbrev == 0 {
		return a.Direction.Absolute() == East && a.unit.IsAngular()
	}
	return a.Abbrev == 'λ'
}

// wraparoundRange returns the period of this wraparound axis in its
// own unit, or NaN if this axis is not a wraparound axis.
func (a *Axis) wraparoundRange() float64 {
	if !a.isWraparound() {
		return math.NaN()
	}
	period := 360.0
	if a.unit != nil {
		p, err := Degree.Convert(period, a.unit)
		if err != nil {
			a.warn.addf("inconsistent unit %s on axis %s: %v", a.unit, a.Name(), err)
			return math.NaN()
		}
		period = p
	}
	return period
}

// isCellCorner reports whether coordinates on this axis seem to map
// cell corners instead of cell centers, guessed by checking whether the
// cell-center interpretation would put coordinates outside the valid
// longitude or latitude range. A false result does not necessarily mean
// that the axis maps cell centers.
func (a *Axis) isCellCorner() (bool, error) {
	var min float64
	var wraparound bool
	switch a.Abbrev {
	case 'λ':
		min, wraparound = -180, true
	case 'φ':
		min = -90
	default:
		return false, nil
	}
	data, err := a.Read()
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	u := a.unit
	if u == nil {
		u = Degree
	}
	last, err := u.Convert(data[len(data)-1], Degree)
	if err != nil {
		a.warn.addf("inconsistent unit %s on axis %s: %v", u, a.Name(), err)
		return false, nil
	}
	if wraparound && last > 180 {
		min = 0 // the [-180 … +180]° range is replaced by [0 … 360]°
	}
	first, _ := u.Convert(data[0], Degree)
	return first == min, nil
}

// toISO assembles the coordinate system axis description published in
// the CRS. Axes without unit or direction receive defaults according
// to the axis type; wrong defaults are harmless when the CRS is later
// overwritten from grid mapping attributes.
func (a *Axis) toISO(order int, grid bool) (CSAxis, error) {
	name := a.Name()
	ax := CSAxis{Name: name}
	std := a.Coords.AttributeString("standard_name")
	if std != "" && std != name {
		ax.Aliases = append(ax.Aliases, std)
	}
	long := a.Coords.AttributeString("long_name")
	if long != "" && !similarName(long, name) {
		ax.Description = long
		if !similarName(long, std) {
			ax.Aliases = append(ax.Aliases, long)
		}
	}
	u := a.unit
	if u == nil {
		// Default units are SI base units except degrees, the usual
		// angular unit of these datasets.
		switch a.Abbrev {
		case 'λ', 'φ', 'θ', 'Ω':
			u = Degree
		case 'r', 'D', 'H', 'h', 'E', 'N':
			u = Metre
		case 't':
			u = Second
		case 'x', 'y':
			if grid {
				data, err := a.Read()
				if err != nil {
					return CSAxis{}, err
				}
				// Do not test the first value: 0-based and 1-based
				// conventions both exist.
				if scale, _, ok := linearCoefficients(data); ok && scale == 1 {
					u = Pixel
				}
			}
			if u == nil {
				u = One
			}
		default:
			u = One
		}
	}
	dir := a.Direction
	if dir == Unspecified {
		switch {
		case u.IsTemporal():
			dir = Future
		case u.IsPressure():
			dir = Up
		case order == 0:
			dir = ColumnPositive
		case order == 1:
			dir = RowPositive
		}
	}
	if a.Abbrev != 0 {
		ax.Abbrev = string(a.Abbrev)
	} else if ax.Abbrev = suggestAbbreviation(dir, u); ax.Abbrev == "" {
		ax.Abbrev = fmt.Sprintf("A%d", order+1)
	}
	ax.Direction = dir
	ax.Unit = u
	return ax, nil
}

// similarName compares two names ignoring case, punctuation and
// whitespace differences.
func similarName(a, b string) bool {
	return normalizeName(a) == normalizeName(b)
}

var nameReplacer = strings.NewReplacer("_", " ", "-", " ")

func normalizeName(s string) string {
	return strings.Join(strings.Fields(nameReplacer.Replace(strings.ToLower(s))), " ")
}

// linearCoefficients reports whether consecutive values differ by a
// constant increment, within a tolerance of a few ulps of the values.
// A single value is considered regular with a zero scale.
func linearCoefficients(data []float64) (scale, offset float64, ok bool) {
	n := len(data) - 1
	if n < 0 {
		return 0, 0, false
	}
	first := data[0]
	if math.IsNaN(first) {
		return 0, 0, false
	}
	if n == 0 {
		return 0, first, true
	}
	last := data[n]
	scale = (last - first) / float64(n)
	// Coordinates are frequently stored as 32-bit floats, so allow a
	// relative error comparable to their precision.
	tol := math.Max(ulp(first), ulp(last))
	tol = math.Max(ulp(last-first), tol) / float64(n)
	tol = math.Max(tol, math.Max(math.Abs(first), math.Abs(last))*1e-6)
	for i := 1; i <= n; i++ {
		d := data[i] - data[i-1]
		if math.IsNaN(d) || math.Abs(d-scale) > tol {
			return 0, 0, false
		}
	}
	return scale, first, true
}

func ulp(x float64) float64 {
	x = math.Abs(x)
	return math.Nextafter(x, math.Inf(1)) - x
}

// trySetTransform sets the scale and offset coefficients of one row of
// the grid-to-CRS matrix if the coordinate values are regular. Source
// dimensions are in "natural" order, the reverse of the dataset order.
//
// On success the nonLinears list is left unchanged. On failure a
// non-linear transform, or nil, is appended to it; a nil element means
// the caller must build a transform backed by a localization grid.
func (a *Axis) trySetTransform(gridToCRS *Affine, lastSrcDim, tgtDim int, nonLinears *[]Transform) (bool, error) {
	switch a.NumDims() {
	case 0:
		// A scalar sets only the translation term: the axis has a
		// constant value and no associated source dimension.
		data, err := a.Read()
		if err != nil {
			return false, err
		}
		if len(data) != 0 {
			gridToCRS.Set(tgtDim, gridToCRS.SourceDims(), data[0])
		}
		return true, nil

	case 1:
		data, err := a.Read()
		if err != nil {
			return false, err
		}
		srcDim := lastSrcDim - a.GridDims[0]
		if scale, offset, ok := linearCoefficients(data); ok {
			gridToCRS.Set(tgtDim, srcDim, scale)
			gridToCRS.Set(tgtDim, gridToCRS.SourceDims(), offset)
			return true, nil
		}
		*nonLinears = append(*nonLinears, NewInterpolate1D(data))
		return false, nil

	case 2:
		// A two-dimensional coordinate array can sometimes be reduced
		// to a one-dimensional vector, when all rows (or all columns)
		// repeat the same values:
		//
		//	10 10 10 10              10 12 15 20
		//	12 12 12 12      or      10 12 15 20
		//	15 15 15 15              10 12 15 20
		//	20 20 20 20              10 12 15 20
		data, err := a.Read()
		if err != nil {
			return false, err
		}
		i0, i1 := 0, 1 // slowest and fastest dimension in storage order
		if a.GridDims[0] > a.GridDims[1] {
			i0, i1 = 1, 0
		}
		height, err := a.size(i0)
		if err != nil {
			return false, err
		}
		width, err := a.size(i1)
		if err != nil {
			return false, err
		}
		order := [2]int{i0, i1}
		if a.GridDims[0] == a.GridDims[i1] {
			order = [2]int{i1, i0} // try the main dimension first
		}
		for _, k := range order {
			vec, ok := reduceRepetitions(data, width, height, k == i0)
			if !ok {
				continue
			}
			srcDim := lastSrcDim - a.GridDims[k]
			if scale, offset, okc := linearCoefficients(vec); okc {
				gridToCRS.Set(tgtDim, srcDim, scale)
				gridToCRS.Set(tgtDim, gridToCRS.SourceDims(), offset)
				return true, nil
			}
			*nonLinears = append(*nonLinears, NewInterpolate1D(vec))
			return false, nil
		}
	}
	// Coordinate arrays of three or more dimensions are not supported.
	*nonLinears = append(*nonLinears, nil)
	return false, nil
}

// reduceRepetitions extracts a one-dimensional vector from a
// two-dimensional array stored in row-major order, when the array is
// constant along one of its dimensions. With alongRow true the values
// are expected to repeat within each row and the result is one value
// per row; otherwise the rows are expected to repeat each other and
// the result is the first row.
func reduceRepetitions(data []float64, width, height int, alongRow bool) ([]float64, bool) {
	if width <= 0 || height <= 0 || len(data) < width*height {
		return nil, false
	}
	if alongRow {
		vec := make([]float64, height)
		for j := 0; j < height; j++ {
			row := data[j*width : (j+1)*width]
			v := row[0]
			for _, x := range row {
				if x != v && !(math.IsNaN(x) && math.IsNaN(v)) {
					return nil, false
				}
			}
			vec[j] = v
		}
		return vec, true
	}
	first := data[:width]
	for j := 1; j < height; j++ {
		row := data[j*width : (j+1)*width]
		for i, x := range row {
			if x != first[i] && !(math.IsNaN(x) && math.IsNaN(first[i])) {
				return nil, false
			}
		}
	}
	return append([]float64(nil), first...), true
}
