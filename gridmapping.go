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
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
)

// GridMapping holds the georeferencing declared through attributes on
// a grid mapping variable: the CF "grid_mapping" mechanism, or the
// GDAL and ESRI extensions found in files produced by those tools.
// This is a different source of information than the grid axes, which
// only describe coordinates implicitly; when both are present they are
// reconciled by adaptGridCRS.
type GridMapping struct {
	// CRS is the horizontal component declared by the attributes, or
	// nil if only a transform was declared.
	CRS *ReferenceSystem

	// GridToCRS is the declared "grid to CRS" transform. This is
	// usually nil; GDAL conventions declare it as "GeoTransform".
	GridToCRS Transform

	// fromWKT records that CRS came from a WKT string, in which case
	// its axis order is kept verbatim when nothing else matches.
	fromWKT bool
}

// gridMappingFor finds the grid mapping attributes applicable to a
// variable. The mapping node named by the "grid_mapping" attribute is
// searched first; if there is none, the attributes are searched on the
// variable itself, which is not CF-compliant but found in practice.
// Results are cached per node, including parse failures, so that the
// same warnings are not logged twice.
func (d *Dataset) gridMappingFor(v *ncVar) *GridMapping {
	for _, name := range d.convention().mappingNodeNames(v) {
		if gm, ok := d.mappings[name]; ok {
			if gm != nil {
				return gm
			}
			continue
		}
		var gm *GridMapping
		if node, ok := d.vars[name]; ok {
			gm = d.parseGridMapping(node)
		}
		d.mappings[name] = gm
		if gm != nil {
			return gm
		}
	}
	if gm, ok := d.mappings[v.name]; ok {
		return gm
	}
	gm := d.parseGridMapping(v)
	d.mappings[v.name] = gm
	return gm
}

// parseGridMapping tries the CF attributes first, then the GDAL
// convention, then the ESRI convention. It returns nil when the node
// declares no recognizable projection.
func (d *Dataset) parseGridMapping(node CoordinateSource) *GridMapping {
	if gm := d.parseProjectionParameters(node); gm != nil {
		return gm
	}
	if gm := d.parseGeoTransform(node); gm != nil {
		return gm
	}
	return d.parseESRI(node)
}

// cfProjections maps CF "grid_mapping_name" values to projection names
// understood by the proj library.
var cfProjections = map[string]string{
	"latitude_longitude":        "longlat",
	"mercator":                  "merc",
	"transverse_mercator":       "tmerc",
	"lambert_conformal_conic":   "lcc",
	"albers_conical_equal_area": "aea",
}

// cfParameters maps CF projection parameter names to proj options.
// "standard_parallel" is handled separately because it may hold one or
// two values and its meaning depends on the projection.
var cfParameters = map[string]string{
	"longitude_of_central_meridian":     "lon_0",
	"longitude_of_projection_origin":    "lon_0",
	"latitude_of_projection_origin":     "lat_0",
	"false_easting":                     "x_0",
	"false_northing":                    "y_0",
	"scale_factor_at_central_meridian":  "k_0",
	"scale_factor_at_projection_origin": "k_0",
	"semi_major_axis":                   "a",
	"semi_minor_axis":                   "b",
	"inverse_flattening":                "rf",
	"longitude_of_prime_meridian":       "pm",
}

// metadata attributes that are legitimate on a mapping node but are
// not projection parameters, so their presence is not worth a warning.
var mappingMetadata = map[string]bool{
	"grid_mapping_name": true,
	"long_name":         true,
	"comment":           true,
	"crs_wkt":           true,
	"spatial_ref":       true,
	"GeoTransform":      true,
}

// parseProjectionParameters sets the CRS from CF convention
// attributes: a "grid_mapping_name" naming the projection and numeric
// attributes carrying its parameters.
func (d *Dataset) parseProjectionParameters(node CoordinateSource) *GridMapping {
	def := d.convention().projection(node)
	if def == nil {
		return nil
	}
	mappingName, _ := def["grid_mapping_name"].(string)
	projName, ok := cfProjections[mappingName]
	if !ok {
		d.logger().WithFields(d.fields(node.Name())).Warnf(
			"unsupported projection %q on mapping node %s", mappingName, node.Name())
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "+proj=%s", projName)
	used := map[string]bool{"grid_mapping_name": true}
	if vals := floatsOf(def["standard_parallel"]); len(vals) > 0 {
		used["standard_parallel"] = true
		if projName == "merc" {
			fmt.Fprintf(&b, " +lat_ts=%g", vals[0])
		} else {
			fmt.Fprintf(&b, " +lat_1=%g", vals[0])
			if len(vals) > 1 {
				fmt.Fprintf(&b, " +lat_2=%g", vals[1])
			}
		}
	}
	for cf, opt := range cfParameters {
		raw, ok := def[cf]
		if !ok {
			continue
		}
		val, ok := attrFloat(raw)
		if !ok {
			// Badly encoded files store parameters as strings.
			if s, isStr := raw.(string); isStr {
				f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
				if err != nil {
					continue
				}
				val = f
			} else {
				continue
			}
		}
		used[cf] = true
		if cf == "earth_radius" {
			continue
		}
		fmt.Fprintf(&b, " +%s=%g", opt, val)
	}
	if r, ok := attrFloat(def["earth_radius"]); ok {
		used["earth_radius"] = true
		fmt.Fprintf(&b, " +a=%g +b=%g", r, r)
	}
	b.WriteString(" +no_defs")
	var unknown []string
	for name := range def {
		if !used[name] && !mappingMetadata[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		d.logger().WithFields(d.fields(node.Name())).Warnf(
			"ignored projection parameters on %s: %s", node.Name(), strings.Join(unknown, ", "))
	}
	sr, err := proj.Parse(b.String())
	if err != nil {
		d.logger().WithFields(d.fields(node.Name())).Warnf(
			"cannot create the CRS of mapping node %s: %v", node.Name(), err)
		return nil
	}
	name, _ := def["projected_crs_name"].(string)
	if name == "" {
		name, _ = def["geographic_crs_name"].(string)
	}
	if name == "" {
		name = mappingName
	}
	gm := &GridMapping{CRS: referenceSystemFromSR(sr, name)}
	// The CF convention says that attributes have precedence over any
	// WKT definition, so a WKT string only cross-checks the result.
	for _, attr := range []string{"crs_wkt", "spatial_ref"} {
		wkt := node.AttributeString(attr)
		if wkt == "" {
			continue
		}
		check, err := referenceSystemFromWKT(wkt)
		if err != nil {
			d.logger().WithFields(d.fields(node.Name())).Warnf(
				"cannot parse the %s attribute of %s: %v", attr, node.Name(), err)
			continue
		}
		if !gm.CRS.Equal(check) {
			d.logger().WithFields(d.fields(node.Name())).Warnf(
				"the %s attribute of %s is inconsistent with the projection parameters", attr, node.Name())
		}
		break
	}
	gm.GridToCRS = d.convention().gridToCRS(node)
	return gm
}

// parseGeoTransform reads the GDAL convention: a "spatial_ref" WKT
// string and a "GeoTransform" attribute with six coefficients relating
// pixel/line (P,L) coordinates to CRS coordinates:
//
//	X = c[0] + P*c[1] + L*c[2]
//	Y = c[3] + P*c[4] + L*c[5]
func (d *Dataset) parseGeoTransform(node CoordinateSource) *GridMapping {
	wkt := node.AttributeString("spatial_ref")
	gtr := node.AttributeString("GeoTransform")
	if wkt == "" && gtr == "" {
		return nil
	}
	gm := &GridMapping{}
	if wkt != "" {
		rs, err := referenceSystemFromWKT(wkt)
		if err != nil {
			d.logger().WithFields(d.fields(node.Name())).Warnf(
				"cannot parse the spatial_ref attribute of %s: %v", node.Name(), err)
		} else {
			gm.CRS = rs
			gm.fromWKT = true
		}
	}
	if gtr != "" {
		c, err := parseDoubleList(gtr)
		if err == nil && len(c) != 6 {
			err = fmt.Errorf("expected 6 coefficients, got %d", len(c))
		}
		if err != nil {
			d.logger().WithFields(d.fields(node.Name())).Warnf(
				"cannot parse the GeoTransform attribute of %s: %v", node.Name(), err)
		} else {
			gm.GridToCRS = NewAffine2D(c[1], c[4], c[2], c[5], c[0], c[3])
		}
	}
	if gm.CRS == nil && gm.GridToCRS == nil {
		return nil
	}
	return gm
}

// parseESRI reads the ESRI convention: a WKT string in the
// "ESRI_pe_string" attribute. An "EPSG_code" attribute is recognized
// but cannot be resolved without a registry of authority codes.
func (d *Dataset) parseESRI(node CoordinateSource) *GridMapping {
	code := node.AttributeString("ESRI_pe_string")
	if code == "" {
		if epsg := node.AttributeString("EPSG_code"); epsg != "" {
			d.logger().WithFields(d.fields(node.Name())).Warnf(
				"cannot resolve EPSG_code %s on %s: no authority registry", epsg, node.Name())
		}
		return nil
	}
	rs, err := referenceSystemFromWKT(code)
	if err != nil {
		d.logger().WithFields(d.fields(node.Name())).Warnf(
			"cannot parse the ESRI_pe_string attribute of %s: %v", node.Name(), err)
		return nil
	}
	return &GridMapping{CRS: rs, fromWKT: true}
}

// parseDoubleList parses a comma-separated or space-separated list of
// numbers.
func parseDoubleList(s string) ([]float64, error) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// floatsOf coerces an attribute value to a slice of numbers.
func floatsOf(a interface{}) []float64 {
	switch v := a.(type) {
	case []float64:
		return v
	case []float32:
		out := make([]float64, len(v))
		for i, f := range v {
			out[i] = float64(f)
		}
		return out
	}
	if f, ok := attrFloat(a); ok {
		return []float64{f}
	}
	return nil
}

// referenceSystemFromWKT parses a CRS from a Well Known Text string,
// presumed to use the GDAL flavor of WKT 1.
func referenceSystemFromWKT(wkt string) (*ReferenceSystem, error) {
	sr, err := proj.Parse(wkt)
	if err != nil {
		return nil, err
	}
	return referenceSystemFromSR(sr, wktName(wkt)), nil
}

// wktName extracts the name of the outermost WKT element, the first
// quoted string.
func wktName(wkt string) string {
	if i := strings.IndexByte(wkt, '"'); i >= 0 {
		if j := strings.IndexByte(wkt[i+1:], '"'); j >= 0 {
			return wkt[i+1 : i+1+j]
		}
	}
	return ""
}

// referenceSystemFromSR wraps a projection definition as a horizontal
// reference system component with conventional (east, north) axes.
func referenceSystemFromSR(sr *proj.SR, name string) *ReferenceSystem {
	datumName := sr.DatumName
	if datumName == "" {
		base := sr.EllipseName
		if base == "" {
			base = "an ellipsoid"
		}
		datumName = unknownDatumName(base)
	}
	datum := &Datum{Name: datumName}
	if sr.Name == "longlat" {
		if name == "" {
			name = "Geographic"
		}
		return &ReferenceSystem{
			Name:  name,
			Kind:  KindGeographic,
			Datum: datum,
			Axes: []CSAxis{
				{Name: "Geodetic longitude", Abbrev: "λ", Direction: East, Unit: Degree},
				{Name: "Geodetic latitude", Abbrev: "φ", Direction: North, Unit: Degree},
			},
			SR: sr,
		}
	}
	if name == "" {
		name = sr.Name
	}
	return &ReferenceSystem{
		Name:  name,
		Kind:  KindProjected,
		Datum: datum,
		Axes: []CSAxis{
			{Name: "Easting", Abbrev: "E", Direction: East, Unit: Metre},
			{Name: "Northing", Abbrev: "N", Direction: North, Unit: Metre},
		},
		SR: sr,
	}
}

// adaptGridCRS reconciles the geometry inferred from coordinate
// variables with the georeferencing declared by grid mapping
// attributes. The declared CRS replaces the colinear component of the
// inferred compound CRS, keeping the other components (for example
// vertical and time axes). The same instance is returned when nothing
// changes, nil when the declared information cannot be reconciled.
func (gm *GridMapping) adaptGridCRS(d *Dataset, v *ncVar, implicit *GridGeometry) *GridGeometry {
	explicitCRS := implicit.CRS
	firstAffected := 0
	same := true
	if implicit.CRS != nil && gm.CRS != nil {
		replacement := gm.CRS
		idx, offset := indexOfColinear(implicit.CRS, replacement)
		if idx < 0 {
			rh := replacement.rightHanded()
			if rh != replacement {
				if i, o := indexOfColinear(implicit.CRS, rh); i >= 0 {
					replacement, idx, offset = rh, i, o
				}
			}
			if idx < 0 {
				// No component matches; assume that the grid mapping
				// describes the first dimensions. A CRS parsed from
				// WKT is kept with its declared axis order; otherwise
				// the right-handed variant is substituted.
				idx, offset = 0, 0
				if !gm.fromWKT {
					replacement = rh
				}
			}
		}
		firstAffected = offset
		components := append([]*ReferenceSystem{}, implicit.CRS.Components...)
		components[idx] = replacement
		candidate := &CRS{Components: components}
		if candidate.Equal(implicit.CRS) {
			explicitCRS = implicit.CRS
		} else {
			explicitCRS = candidate
			same = false
		}
	} else if gm.CRS != nil {
		explicitCRS = &CRS{Components: []*ReferenceSystem{gm.CRS}}
		same = false
	}
	explicitG2C := implicit.GridToCRS
	if gm.GridToCRS != nil {
		merged, changed := mergeGridToCRS(implicit.GridToCRS, gm.GridToCRS, firstAffected)
		if merged == nil {
			d.logger().WithFields(d.fields(v.name)).Warnf(
				"cannot merge the declared GeoTransform of %s with the coordinate transform", v.name)
		} else {
			explicitG2C = merged
			if changed {
				same = false
			}
		}
	}
	if same {
		return implicit
	}
	return &GridGeometry{
		Extent:    implicit.Extent,
		Anchor:    implicit.Anchor,
		GridToCRS: explicitG2C,
		CRS:       explicitCRS,
	}
}

// indexOfColinear locates the component of a compound CRS whose first
// axis direction is colinear with the first axis of the candidate.
// It returns the component index and the number of CRS dimensions
// before it, or -1 when there is no match.
func indexOfColinear(crs *CRS, candidate *ReferenceSystem) (int, int) {
	if len(candidate.Axes) == 0 {
		return -1, 0
	}
	want := candidate.Axes[0].Direction
	offset := 0
	for i, c := range crs.Components {
		if len(c.Axes) > 0 && c.Axes[0].Direction.IsColinear(want) &&
			len(c.Axes) >= len(candidate.Axes) {
			return i, offset
		}
		offset += c.NumDims()
	}
	return -1, 0
}

// mergeGridToCRS substitutes the declared two-dimensional transform
// for the horizontal rows of the inferred transform. The declared
// transform maps the (column, row) grid dimensions, which are the
// first two source dimensions in natural order.
func mergeGridToCRS(implicit Transform, declared Transform, firstAffected int) (Transform, bool) {
	if implicit == nil {
		return declared, true
	}
	da, ok := declared.(*Affine)
	if !ok {
		return nil, false
	}
	ia, ok := implicit.(*Affine)
	if !ok {
		// The inferred transform has a non-linear part (for example a
		// localization grid); the declared affine cannot be spliced in.
		return nil, false
	}
	src := ia.SourceDims()
	tgt := ia.TargetDims()
	if firstAffected+2 > tgt || src < 2 {
		return nil, false
	}
	merged := NewAffine(tgt, src)
	for r := 0; r <= tgt; r++ {
		for c := 0; c <= src; c++ {
			merged.Set(r, c, ia.At(r, c))
		}
	}
	for r := 0; r < 2; r++ {
		for c := 0; c <= src; c++ {
			merged.Set(firstAffected+r, c, 0)
		}
		merged.Set(firstAffected+r, 0, da.At(r, 0))
		merged.Set(firstAffected+r, 1, da.At(r, 1))
		merged.Set(firstAffected+r, src, da.At(r, 2))
	}
	if merged.Equal(ia) {
		return implicit, false
	}
	return merged, true
}

// createGridCRS builds a grid geometry directly from the grid mapping
// attributes, used when the variable has no usable coordinate
// variables. The CRS or the transform may be nil if the attributes
// declared only one of them.
func (gm *GridMapping) createGridCRS(v *ncVar) *GridGeometry {
	dims := v.GridDimensions()
	n := len(dims)
	sizes := make([]int64, n)
	names := make([]string, n)
	for i, dim := range dims {
		sizes[(n-1)-i] = int64(dim.Length)
	}
	if n > 0 {
		names[0] = "column"
	}
	if n > 1 {
		names[1] = "row"
	}
	var crs *CRS
	if gm.CRS != nil {
		crs = &CRS{Components: []*ReferenceSystem{gm.CRS}}
	}
	return &GridGeometry{
		Extent:    &GridExtent{Sizes: sizes, Names: names},
		Anchor:    CellCenter,
		GridToCRS: gm.GridToCRS,
		CRS:       crs,
	}
}
