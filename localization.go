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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"gonum.org/v1/gonum/mat"
)

// Linearizer is a candidate projection to apply on localization grid
// control points before fitting. Inverting a localization grid requires
// iterations that converge better when the grid is close to linear;
// satellite swaths in geographic coordinates are curved, but become
// nearly linear in a projection such as Mercator.
type Linearizer struct {
	Name string
	// SR is the target projection. Control points are expected in
	// geographic coordinates (decimal degrees).
	SR *proj.SR
}

func defaultLinearizers() []Linearizer {
	sr, err := proj.Parse("+proj=merc +a=6370997 +b=6370997 +lat_ts=0 +lon_0=0 +units=m +no_defs")
	if err != nil {
		panic(err)
	}
	return []Linearizer{{Name: "Mercator (Spherical)", SR: sr}}
}

// localizationGrid holds the control points of a two-dimensional
// localization grid in row-major order: index = row*width + column,
// with the column index varying fastest.
type localizationGrid struct {
	width, height int
	x, y          []float64
}

func newLocalizationGrid(width, height int, x, y []float64) (*localizationGrid, error) {
	n := width * height
	if width < 2 || height < 2 {
		return nil, fmt.Errorf("georef: localization grid of %d × %d cells is too small", width, height)
	}
	if len(x) < n || len(y) < n {
		return nil, fmt.Errorf("georef: localization grid needs %d control points, got %d × %d", n, len(x), len(y))
	}
	return &localizationGrid{
		width:  width,
		height: height,
		x:      append([]float64(nil), x[:n]...),
		y:      append([]float64(nil), y[:n]...),
	}, nil
}

// resolveWraparoundAxis makes the given target dimension continuous by
// removing period jumps: when a grid crosses the anti-meridian, values
// suddenly jump from +180° to -180°, and apparently random 360° jumps
// are also observed near poles. Each value is shifted by a multiple of
// the period to stay close to its neighbor. The slowDim argument tells
// which grid dimension varies slowest for the resolved coordinate: 0
// for columns, 1 for rows (the usual case).
func (g *localizationGrid) resolveWraparoundAxis(dim, slowDim int, period float64) {
	if period == 0 || math.IsNaN(period) {
		return
	}
	data := g.x
	if dim == 1 {
		data = g.y
	}
	fastStride, slowStride := 1, g.width
	fastN, slowN := g.width, g.height
	if slowDim == 0 {
		fastStride, slowStride = g.width, 1
		fastN, slowN = g.height, g.width
	}
	for s := 0; s < slowN; s++ {
		base := s * slowStride
		if s > 0 {
			// Align the first element of this line on the previous line.
			if d := data[base] - data[base-slowStride]; !math.IsNaN(d) {
				data[base] -= period * math.Round(d/period)
			}
		}
		for f := 1; f < fastN; f++ {
			i := base + f*fastStride
			if d := data[i] - data[i-fastStride]; !math.IsNaN(d) {
				data[i] -= period * math.Round(d/period)
			}
		}
	}
}

// fitResidual fits the given control point coordinates as a polynomial
// function of the grid indices and returns the root mean square
// residual normalized by the value span. Degree 1 is an affine fit;
// degree 2 adds the quadratic cross terms.
func (g *localizationGrid) fitResidual(values []float64, degree int) (float64, error) {
	terms := 3
	if degree >= 2 {
		terms = 6
	}
	n := g.width * g.height
	a := mat.NewDense(n, terms, nil)
	b := mat.NewDense(n, 1, nil)
	lo, hi := math.Inf(1), math.Inf(-1)
	for j := 0; j < g.height; j++ {
		for i := 0; i < g.width; i++ {
			r := j*g.width + i
			x, y := float64(i), float64(j)
			a.Set(r, 0, x)
			a.Set(r, 1, y)
			a.Set(r, 2, 1)
			if terms == 6 {
				a.Set(r, 3, x*x)
				a.Set(r, 4, x*y)
				a.Set(r, 5, y*y)
			}
			v := values[r]
			if math.IsNaN(v) {
				return 0, fmt.Errorf("georef: localization grid contains NaN control points")
			}
			b.Set(r, 0, v)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	var c mat.Dense
	if err := c.Solve(a, b); err != nil {
		return 0, fmt.Errorf("georef: fitting localization grid: %v", err)
	}
	var fitted mat.Dense
	fitted.Mul(a, &c)
	var ss float64
	for r := 0; r < n; r++ {
		d := fitted.At(r, 0) - b.At(r, 0)
		ss += d * d
	}
	rms := math.Sqrt(ss / float64(n))
	if span := hi - lo; span > 0 {
		return rms / span, nil
	}
	return rms, nil
}

// linearity returns the combined normalized residual of affine fits of
// both coordinates, the measure used for comparing linearizer
// candidates. Smaller is more linear.
func (g *localizationGrid) linearity() (float64, error) {
	rx, err := g.fitResidual(g.x, 1)
	if err != nil {
		return 0, err
	}
	ry, err := g.fitResidual(g.y, 1)
	if err != nil {
		return 0, err
	}
	return math.Hypot(rx, ry), nil
}

// validate checks that the grid can later support iterative inversion,
// escalating from an affine to a quadratic fit before giving up.
func (g *localizationGrid) validate() error {
	for _, values := range [][]float64{g.x, g.y} {
		r, err := g.fitResidual(values, 1)
		if err != nil {
			return err
		}
		if r <= maxLinearResidual {
			continue
		}
		if r, err = g.fitResidual(values, 2); err != nil {
			return err
		}
		if r > maxQuadraticResidual {
			return fmt.Errorf("georef: localization grid is too irregular (residual %.3g)", r)
		}
	}
	return nil
}

const (
	maxLinearResidual    = 0.25
	maxQuadraticResidual = 0.5
)

// bounds returns the bounding box of the control points.
func (g *localizationGrid) bounds() *geom.Bounds {
	b := geom.NewBounds()
	for i, x := range g.x {
		b.Extend(geom.NewBoundsPoint(geom.Point{X: x, Y: g.y[i]}))
	}
	return b
}

// gridTransform converts two-dimensional grid indices to coordinates by
// bilinear interpolation in a localization grid. Indices outside the
// grid are clamped to its edges.
type gridTransform struct {
	grid *localizationGrid
}

func (t *gridTransform) SourceDims() int { return 2 }
func (t *gridTransform) TargetDims() int { return 2 }

func (t *gridTransform) Apply(src []float64) ([]float64, error) {
	if len(src) != 2 {
		return nil, fmt.Errorf("georef: grid transform expects 2 coordinates, got %d", len(src))
	}
	g := t.grid
	i := math.Min(math.Max(src[0], 0), float64(g.width-1))
	j := math.Min(math.Max(src[1], 0), float64(g.height-1))
	i0 := int(i)
	j0 := int(j)
	if i0 >= g.width-1 {
		i0 = g.width - 2
	}
	if j0 >= g.height-1 {
		j0 = g.height - 2
	}
	fi := i - float64(i0)
	fj := j - float64(j0)
	at := func(values []float64) float64 {
		r := j0*g.width + i0
		v00 := values[r]
		v10 := values[r+1]
		v01 := values[r+g.width]
		v11 := values[r+g.width+1]
		return v00*(1-fi)*(1-fj) + v10*fi*(1-fj) + v01*(1-fi)*fj + v11*fi*fj
	}
	return []float64{at(g.x), at(g.y)}, nil
}

func (t *gridTransform) Equal(other Transform) bool {
	o, ok := other.(*gridTransform)
	if !ok {
		return t == nil && other == nil
	}
	if t.grid == o.grid {
		return true
	}
	if t.grid.width != o.grid.width || t.grid.height != o.grid.height {
		return false
	}
	for i := range t.grid.x {
		if t.grid.x[i] != o.grid.x[i] || t.grid.y[i] != o.grid.y[i] {
			return false
		}
	}
	return true
}

// createLocalizationGrid tries to create a two-dimensional localization
// grid from this axis and the given one. It is invoked as a fallback
// when trySetTransform could not set affine coefficients. Values of
// this axis feed the first target dimension and values of the other
// axis the second one. It returns nil when the two axes do not span the
// same pair of grid dimensions.
func (a *Axis) createLocalizationGrid(other *Axis) (*GridCacheValue, error) {
	if a.NumDims() != 2 || other.NumDims() != 2 {
		return nil, nil
	}
	xd, yd := a.GridDims[0], a.GridDims[1]
	xo, yo := other.GridDims[0], other.GridDims[1]
	if (xo != xd || yo != yd) && (xo != yd || yo != xd) {
		return nil, nil
	}
	// The fastest varying grid dimension may have been moved first in
	// either axis; recover the storage-order width and height.
	ri, ro := 0, 0
	if xd > yd {
		ri = 1
	}
	if xo > yo {
		ro = 1
	}
	width, err := a.size(ri ^ 1)
	if err != nil {
		return nil, err
	}
	height, err := a.size(ri)
	if err != nil {
		return nil, err
	}
	if other.GridSizes[ro^1] != int64(width) || other.GridSizes[ro] != int64(height) {
		a.warn.addf("localization grids of %s and %s have mismatched sizes", a.Name(), other.Name())
		return nil, nil
	}
	// The same grid may have been built before for this dataset, for
	// example when a file has variables with (longitude, latitude) and
	// (longitude, latitude, depth) dimensions sharing the same
	// two-dimensional coordinates.
	d := a.ds
	keyLocal := GridCacheKey{Width: width, Height: height, X: a.Coords, Y: other.Coords}
	if v := d.cachedGrid(keyLocal); v != nil {
		return v, nil
	}
	vx, err := a.Read()
	if err != nil {
		return nil, err
	}
	vy, err := other.Read()
	if err != nil {
		return nil, err
	}
	req := &gridFitRequest{
		Width:       width,
		Height:      height,
		X:           vx,
		Y:           vy,
		XPeriod:     a.wraparoundRange(),
		YPeriod:     other.wraparoundRange(),
		XSlowDim:    ri,
		YSlowDim:    ro,
		XIsEast:     a.Direction.Absolute() == East || a.Abbrev == 'λ' || a.Abbrev == 'θ',
		Linearizers: d.convention().linearizers(),
	}
	value, err := fitGridGlobal(req)
	if err != nil {
		return nil, err
	}
	return d.publishGrid(keyLocal, value), nil
}

// fitGrid builds the localization grid transform for the given request.
// It resolves wraparound discontinuities, evaluates the linearizer
// candidates and validates that the resulting grid is regular enough
// for later inversion.
func fitGrid(req *gridFitRequest) (*GridCacheValue, error) {
	g, err := newLocalizationGrid(req.Width, req.Height, req.X, req.Y)
	if err != nil {
		return nil, err
	}
	if !math.IsNaN(req.XPeriod) {
		g.resolveWraparoundAxis(0, req.XSlowDim, req.XPeriod)
	}
	if !math.IsNaN(req.YPeriod) {
		g.resolveWraparoundAxis(1, req.YSlowDim, req.YPeriod)
	}
	value := &GridCacheValue{gridToCRS: &gridTransform{grid: g}}
	var potentialCause string
	if len(req.Linearizers) != 0 {
		best, cause, err := linearize(g, req)
		if err != nil {
			return nil, err
		}
		potentialCause = cause
		if best != nil {
			value = best
		}
	}
	target := value.gridToCRS.(*gridTransform).grid
	if err := target.validate(); err != nil {
		return nil, &LocalizationGridError{Err: err, PotentialCause: potentialCause}
	}
	return value, nil
}

// linearize projects the control points through each candidate
// projection and keeps the candidate producing the most linear grid,
// or nil when no candidate improves on the original coordinates. The
// returned cause, if non-empty, names a structural problem that may
// explain a subsequent fit failure.
func linearize(g *localizationGrid, req *gridFitRequest) (*GridCacheValue, string, error) {
	orig, err := g.linearity()
	if err != nil {
		return nil, "", err
	}
	var cause string
	b := g.bounds()
	var lonSpan float64
	if req.XIsEast {
		lonSpan = b.Max.X - b.Min.X
	} else {
		lonSpan = b.Max.Y - b.Min.Y
	}
	if lonSpan > 180 {
		cause = "the grid spans more than 180° of longitude"
	}
	// The source system is the shared spherical default rather than a
	// dataset convention hook: fit results are cached across datasets
	// by content (gridFitRequest.key), so the source cannot depend on
	// per-dataset state. Conventions customize the target through the
	// linearizer list instead.
	src := (*Convention)(nil).horizontalSR(true)
	var best *GridCacheValue
	bestScore := orig
	for _, lin := range req.Linearizers {
		if lin.SR == nil {
			continue
		}
		transform, err := src.NewTransform(lin.SR)
		if err != nil {
			return nil, cause, fmt.Errorf("georef: linearizer %s: %v", lin.Name, err)
		}
		p := &localizationGrid{
			width:  g.width,
			height: g.height,
			x:      make([]float64, len(g.x)),
			y:      make([]float64, len(g.y)),
		}
		failed := false
		for i := range g.x {
			lon, lat := g.x[i], g.y[i]
			if !req.XIsEast {
				lon, lat = lat, lon
			}
			e, n, err := transform(lon, lat)
			if err != nil || math.IsNaN(e) || math.IsNaN(n) {
				failed = true
				break
			}
			if req.XIsEast {
				p.x[i], p.y[i] = e, n
			} else {
				p.x[i], p.y[i] = n, e
			}
		}
		if failed {
			continue
		}
		score, err := p.linearity()
		if err != nil {
			continue
		}
		if score < bestScore {
			bestScore = score
			best = &GridCacheValue{
				gridToCRS:           &gridTransform{grid: p},
				linearizationTarget: linearizationCRS(lin, req.XIsEast),
				linearizerName:      lin.Name,
			}
		}
	}
	return best, cause, nil
}

// linearizationCRS describes the projected coordinate system targeted
// by a linearizer. Axis order follows the target dimensions of the
// localization grid, which is easting first only when the first axis
// of the pair is the east-oriented one.
func linearizationCRS(lin Linearizer, eastFirst bool) *ReferenceSystem {
	east := CSAxis{Name: "Easting", Abbrev: "E", Direction: East, Unit: Metre}
	north := CSAxis{Name: "Northing", Abbrev: "N", Direction: North, Unit: Metre}
	axes := []CSAxis{east, north}
	if !eastFirst {
		axes = []CSAxis{north, east}
	}
	return &ReferenceSystem{
		Name: lin.Name,
		Kind: KindProjected,
		Datum: &Datum{
			Name: unknownDatumName("an ellipsoid"),
		},
		Axes: axes,
		SR:   lin.SR,
	}
}
