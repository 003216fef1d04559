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

// Anchor tells whether grid coordinates locate cell centers or cell
// corners. Cell center is the usual assumption when a dataset does not
// provide explicit cell bounds.
type Anchor int

const (
	CellCenter Anchor = iota
	CellCorner
)

func (a Anchor) String() string {
	if a == CellCorner {
		return "cellCorner"
	}
	return "cellCenter"
}

// GridExtent is the number of cells along each grid dimension, in
// "natural" order (reverse of the dataset order). Names qualify the
// dimensions ("column", "row", "vertical", "time") and are informative
// only.
type GridExtent struct {
	Sizes []int64
	Names []string
}

// GridGeometry ties together the grid extent, the conversion from grid
// indices to CRS coordinates and the CRS itself. CRS may be nil when it
// could not be inferred; GridToCRS may be nil as well.
type GridGeometry struct {
	Extent    *GridExtent
	Anchor    Anchor
	GridToCRS Transform
	CRS       *CRS
}

// Grid describes the georeferencing shared by all variables with the
// same dimension tuple. The same grid may be shared by many variables.
type Grid struct {
	ds   *Dataset
	dims []Dim // in the dataset's native order
	name string

	axes     []*Axis
	warnings errCat

	crs                *CRS
	crsDetermined      bool
	geometry           *GridGeometry
	geometryErr        error
	geometryDetermined bool
}

func (g *Grid) Name() string { return g.name }

// SourceDimensions returns the number of grid dimensions.
func (g *Grid) SourceDimensions() int { return len(g.dims) }

// Dimensions returns the grid dimensions in the dataset's native order.
func (g *Grid) Dimensions() []Dim { return g.dims }

// Axes returns the grid axes in the order they appear in the CRS.
// The returned slice is the cached one; do not modify.
func (g *Grid) Axes() []*Axis { return g.axes }

// orderAxes runs the post-creation ordering passes: making the fastest
// varying dimension first within each two-dimensional axis, and moving
// scalar axes to more natural positions.
func (g *Grid) orderAxes() error {
	// The grid dimension which varies fastest should be first within
	// each axis. Process one-dimensional axes first so that collisions
	// with them are detected; among the remaining axes, examine
	// wraparound axes last, because a longitude wraparound in the
	// middle of a localization grid confuses the increment comparison.
	workspace := make([]*Axis, len(g.axes))
	i, deferred := 0, len(workspace)
	for _, axis := range g.axes {
		if axis.NumDims() <= 1 {
			workspace[i] = axis
			i++
		} else {
			deferred--
			workspace[deferred] = axis
		}
	}
	deferred = len(workspace)
	for i < len(workspace) {
		axis := workspace[i]
		if i < deferred && axis.isWraparound() {
			copy(workspace[i:], workspace[i+1:deferred])
			deferred--
			workspace[deferred] = axis
		} else {
			if err := axis.mainDimensionFirst(workspace[:i]); err != nil {
				return err
			}
			i++
		}
	}
	// Scalar axes do not consume any grid dimension, so they can be
	// moved anywhere. Reposition them according to ascending direction
	// values (north, east, south, west, up/down, future/past).
	for i := 0; i < len(g.axes); i++ {
		axis := g.axes[i]
		if axis.NumDims() != 0 {
			continue
		}
		p := i
		for j := range g.axes {
			if axis.Direction > g.axes[j].Direction {
				p = j + 1 // after the last element ordered before this axis
			}
		}
		if p != i {
			if p > i {
				p--
			}
			copy(g.axes[i:], g.axes[i+1:])
			copy(g.axes[p+1:], g.axes[p:len(g.axes)-1])
			g.axes[p] = axis
			break
		}
	}
	return nil
}

// CRS returns the coordinate reference system inferred from the grid
// axes alone, without considering grid mapping attributes, or nil if it
// cannot be built. The result is cached, including a nil result.
func (g *Grid) CRS() *CRS {
	if g.crsDetermined {
		return g.crs
	}
	g.crsDetermined = true
	crs, err := assembleCRS(g.ds, g, nil, nil)
	if err != nil {
		g.warnings.addf("cannot create the CRS of grid (%s): %v", g.name, err)
		g.warnings.flush(g.ds.logger(), g.ds.fields(g.name))
		return nil
	}
	g.crs = crs
	return crs
}

// GridGeometry assembles the grid extent, the grid-to-CRS transform and
// the CRS. It returns nil without error when the grid turns out not to
// be georeferenced; recoverable failures are logged as warnings. A
// 32-bit cell count overflow is reported as an error. The result is
// cached, including a nil result and the overflow error.
func (g *Grid) GridGeometry() (*GridGeometry, error) {
	if g.geometryDetermined {
		return g.geometry, g.geometryErr
	}
	g.geometryDetermined = true
	geometry, err := g.buildGeometry()
	if err != nil {
		g.warnings.flush(g.ds.logger(), g.ds.fields(g.name))
		if _, ok := err.(*OverflowError); ok {
			g.geometryErr = err
			return nil, err
		}
		msg := err.Error()
		if lge, ok := err.(*LocalizationGridError); ok && lge.PotentialCause != "" {
			msg = lge.PotentialCause
		}
		g.ds.logger().WithFields(g.ds.fields(g.name)).Warnf("cannot create the grid geometry (%s): %s", g.name, msg)
		return nil, nil
	}
	g.warnings.flush(g.ds.logger(), g.ds.fields(g.name))
	g.geometry = geometry
	return geometry, nil
}

func (g *Grid) buildGeometry() (*GridGeometry, error) {
	if err := g.orderAxes(); err != nil {
		return nil, err
	}
	axes := g.axes
	if len(axes) == 0 {
		return nil, nil
	}
	// The affine part of the "grid to CRS" conversion. Dimensions of
	// the transform are in "natural" order, the reverse of the dataset
	// order.
	lastSrcDim := len(g.dims) - 1
	affine := NewAffine(len(axes), lastSrcDim+1)
	var nonLinears []Transform
	var deferred []int // target dimensions of axes without linear coefficients
	for tgtDim, axis := range axes {
		ok, err := axis.trySetTransform(affine, lastSrcDim, tgtDim, &nonLinears)
		if err != nil {
			return nil, err
		}
		if !ok {
			deferred = append(deferred, tgtDim)
		}
	}
	// For each non-linear axis, claim a free source dimension and set
	// its scale factor to 1, preferring the dimension toward which the
	// axis is most closely oriented. For example with (longitude,
	// latitude) axes preferring source dimensions 1 and 0, the matrix
	// becomes an axis permutation:
	//
	//	┌         ┐
	//	│ 0  1  0 │
	//	│ 1  0  0 │
	//	│ 0  0  1 │
	//	└         ┘
	gridDimIdx := make([]int, len(nonLinears))
	for i := range gridDimIdx {
		gridDimIdx[i] = -1
	}
	for i, tgtDim := range deferred {
		axis := axes[tgtDim]
		for _, sd := range axis.GridDims { // in preference order
			srcDim := lastSrcDim - sd
			if affine.columnInUse(srcDim) {
				continue
			}
			gridDimIdx[i] = srcDim
			affine.Set(tgtDim, srcDim, 1)
			break
		}
	}
	// Axes backed by two-dimensional coordinate arrays come in pairs
	// sharing a localization grid. Pair them up and replace the two
	// placeholder entries by a single fitted grid transform.
	var linearizations []*GridCacheValue
	for i := 0; i < len(nonLinears); i++ {
		if nonLinears[i] != nil {
			continue
		}
		for j := i + 1; j < len(nonLinears); j++ {
			if nonLinears[j] != nil {
				continue
			}
			a0, a1 := axes[deferred[i]], axes[deferred[j]]
			srcDim, otherDim := gridDimIdx[i], gridDimIdx[j]
			switch srcDim - otherDim {
			case -1:
			case +1:
				a0, a1 = a1, a0
			default:
				continue // needs axes at consecutive source dimensions
			}
			value, err := a0.createLocalizationGrid(a1)
			if err != nil {
				return nil, err
			}
			if value == nil {
				continue
			}
			nonLinears[i] = value.gridToCRS
			nonLinears = append(nonLinears[:j], nonLinears[j+1:]...)
			deferred = append(deferred[:j], deferred[j+1:]...)
			gridDimIdx = append(gridDimIdx[:j], gridDimIdx[j+1:]...)
			if otherDim < srcDim {
				gridDimIdx[i] = otherDim
			}
			if value.linearizationTarget != nil {
				linearizations = append(linearizations, value)
			}
			break
		}
	}
	// If a source dimension is still unassigned, the variable is maybe
	// not a grid. It happens for example with trajectories, where two
	// CRS dimensions share a single variable dimension.
	for _, s := range gridDimIdx {
		if s < 0 {
			return nil, nil
		}
	}
	// The CRS must be created before the final transform because the
	// affine part may be modified for taking in account axis order
	// changes caused by linearizations.
	crs, err := assembleCRS(g.ds, g, linearizations, affine)
	if err != nil {
		g.warnings.addf("cannot create the CRS of grid (%s): %v", g.name, err)
		crs = nil
	}
	// Concatenate the non-linear transforms followed by the affine
	// part. The affine part comes last because it may change axis order.
	var steps []Transform
	for i, tr := range nonLinears {
		if tr == nil {
			continue
		}
		srcDim := gridDimIdx[i]
		steps = append(steps, NewPassThrough(srcDim, tr, (lastSrcDim+1)-(srcDim+tr.SourceDims())))
	}
	steps = append(steps, affine)
	gridToCRS := Concatenate(steps...)

	anchor := CellCenter
	for _, axis := range axes {
		corner, err := axis.isCellCorner()
		if err != nil {
			return nil, err
		}
		if corner {
			anchor = CellCorner
			break
		}
	}
	return &GridGeometry{
		Extent:    g.extent(),
		Anchor:    anchor,
		GridToCRS: gridToCRS,
		CRS:       crs,
	}, nil
}

// extent builds the grid extent, or nil if a dimension has an unknown
// length (for example an unlimited dimension that was never written).
func (g *Grid) extent() *GridExtent {
	n := len(g.dims)
	sizes := make([]int64, n)
	for i, d := range g.dims {
		if d.Length <= 0 {
			return nil
		}
		sizes[(n-1)-i] = int64(d.Length)
	}
	names := make([]string, n)
	if n > 0 {
		names[0] = "column"
	}
	if n > 1 {
		names[1] = "row"
	}
	for _, axis := range g.axes {
		if axis.NumDims() != 1 {
			continue
		}
		var name string
		switch {
		case axis.Direction.IsVertical():
			name = "vertical"
		case axis.Direction.IsTemporal():
			name = "time"
		default:
			continue
		}
		if dim := n - 1 - axis.GridDims[0]; dim >= 0 && dim < n {
			names[dim] = name
		}
	}
	return &GridExtent{Sizes: sizes, Names: names}
}
