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
	"sort"
	"strings"
	"sync"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom/proj"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Dim is one dimension of a data cube, in the dataset's native order.
type Dim struct {
	Name   string
	Length int
}

// CoordinateSource supplies the values and attributes of one coordinate
// variable. The bundled netCDF backend implements it; other array
// formats can plug in their own implementation.
type CoordinateSource interface {
	Name() string
	// Read returns the full coordinate vector. The result is cached;
	// declared fill values have been replaced by NaN and any
	// scale_factor/add_offset transfer function has been applied.
	Read() ([]float64, error)
	UnitString() string
	Attribute(name string) interface{}
	AttributeString(name string) string
	Attributes() []string
	// GridDimensions lists the grid dimensions this variable spans,
	// in the dataset's native order.
	GridDimensions() []Dim
}

// Indices into the per-dataset datum cache, one slot per builder family.
const (
	datumGeodetic = iota
	datumVertical
	datumTemporal
	datumEngineering
	numDatumSlots
)

// Dataset is a handle on one open dataset. It owns the per-dataset
// caches: coordinate vectors, datums shared across grids, parsed grid
// mappings (including negative results) and fitted localization grids.
//
// A Dataset is not safe for concurrent use; callers serialize access
// the same way they serialize reads from the underlying file. Only the
// localization-grid caches have their own synchronization, because they
// are shared across datasets.
type Dataset struct {
	File       *cdf.File
	Name       string
	Convention *Convention
	Log        logrus.FieldLogger

	vars       map[string]*ncVar
	datumCache [numDatumSlots]*Datum
	mappings   map[string]*GridMapping
	grids      map[string]*Grid

	localMu    sync.Mutex
	localGrids map[GridCacheKey]*GridCacheValue
}

// OpenDataset opens a netCDF classic format dataset. The name is used
// only for log messages, typically the file path. A nil convention
// applies CF defaults.
func OpenDataset(rw cdf.ReaderWriterAt, name string, conv *Convention) (*Dataset, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("georef: opening dataset %s: %v", name, err)
	}
	d := &Dataset{
		File:       f,
		Name:       name,
		Convention: conv,
		Log:        logrus.StandardLogger(),
		vars:       make(map[string]*ncVar),
		mappings:   make(map[string]*GridMapping),
		grids:      make(map[string]*Grid),
	}
	for _, v := range f.Header.Variables() {
		d.vars[v] = &ncVar{ds: d, name: v}
	}
	return d, nil
}

// Source returns the named coordinate source, or nil if the variable
// does not exist.
func (d *Dataset) Source(name string) CoordinateSource {
	if v, ok := d.vars[name]; ok {
		return v
	}
	return nil
}

// GridFor returns the grid shared by all variables with the same
// dimension tuple as the named variable, creating it on first use.
func (d *Dataset) GridFor(varName string) (*Grid, error) {
	v, ok := d.vars[varName]
	if !ok {
		return nil, fmt.Errorf("georef: no variable %s in dataset %s", varName, d.Name)
	}
	dims := v.GridDimensions()
	if len(dims) == 0 {
		return nil, nil
	}
	names := make([]string, len(dims))
	for i, dim := range dims {
		names[i] = dim.Name
	}
	key := strings.Join(names, "\x00")
	if g, ok := d.grids[key]; ok {
		return g, nil
	}
	g := &Grid{ds: d, dims: dims, name: strings.Join(names, " ")}
	if err := g.createAxes(v); err != nil {
		return nil, err
	}
	d.grids[key] = g
	return g, nil
}

// GridGeometry computes the final grid geometry of the named variable:
// the axis-inferred geometry reconciled against any grid mapping
// attributes. It returns nil without error when the variable is not a
// grid (for example a trajectory).
func (d *Dataset) GridGeometry(varName string) (*GridGeometry, error) {
	v, ok := d.vars[varName]
	if !ok {
		return nil, fmt.Errorf("georef: no variable %s in dataset %s", varName, d.Name)
	}
	g, err := d.GridFor(varName)
	if err != nil {
		return nil, err
	}
	var geometry *GridGeometry
	if g != nil {
		if geometry, err = g.GridGeometry(); err != nil {
			return nil, err
		}
	}
	mapping := d.gridMappingFor(v)
	if mapping != nil {
		if geometry != nil {
			if adapted := mapping.adaptGridCRS(d, v, geometry); adapted != nil {
				geometry = adapted
			}
		} else {
			geometry = mapping.createGridCRS(v)
		}
	}
	return geometry, nil
}

func (d *Dataset) logger() logrus.FieldLogger {
	if d == nil || d.Log == nil {
		return logrus.StandardLogger()
	}
	return d.Log
}

func (d *Dataset) convention() *Convention {
	if d == nil {
		return nil
	}
	return d.Convention
}

func (d *Dataset) fields(varName string) logrus.Fields {
	name := ""
	if d != nil {
		name = d.Name
	}
	return logrus.Fields{"dataset": name, "variable": varName}
}

// ncVar wraps one netCDF variable as a CoordinateSource. The coordinate
// vector is read once and cached.
type ncVar struct {
	ds   *Dataset
	name string

	readOnce sync.Once
	data     []float64
	readErr  error
}

func (v *ncVar) Name() string { return v.name }

func (v *ncVar) Read() ([]float64, error) {
	v.readOnce.Do(func() {
		v.data, v.readErr = v.readAll()
	})
	return v.data, v.readErr
}

func (v *ncVar) readAll() ([]float64, error) {
	r := v.ds.File.Reader(v.name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("georef: reading variable %s from %s: %v", v.name, v.ds.Name, err)
	}
	data, err := numericSlice(buf)
	if err != nil {
		return nil, fmt.Errorf("georef: variable %s in %s: %v", v.name, v.ds.Name, err)
	}
	// Fill values are compared before the transfer function is applied,
	// following the CF convention.
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
	return data, nil
}

func (v *ncVar) UnitString() string { return v.AttributeString("units") }

func (v *ncVar) Attribute(name string) interface{} {
	return v.ds.File.Header.GetAttribute(v.name, name)
}

func (v *ncVar) AttributeString(name string) string {
	if s, ok := v.Attribute(name).(string); ok {
		return strings.TrimRight(strings.TrimSpace(s), "\x00")
	}
	return ""
}

func (v *ncVar) Attributes() []string {
	return v.ds.File.Header.Attributes(v.name)
}

func (v *ncVar) GridDimensions() []Dim {
	names := v.ds.File.Header.Dimensions(v.name)
	lengths := v.ds.File.Header.Lengths(v.name)
	dims := make([]Dim, len(names))
	for i, n := range names {
		length := 0
		if i < len(lengths) {
			length = lengths[i]
		}
		dims[i] = Dim{Name: n, Length: length}
	}
	return dims
}

// attrFloat coerces an attribute value to a scalar float. Attribute
// values from the netCDF backend are typed slices; strings are parsed.
func attrFloat(a interface{}) (float64, bool) {
	switch x := a.(type) {
	case nil:
		return 0, false
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int8:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	default:
		if f, err := cast.ToFloat64E(a); err == nil {
			return f, true
		}
	}
	return 0, false
}

// createAxes builds the axes of this grid from the coordinate variables
// associated with the given data variable: the variables named by its
// "coordinates" attribute plus the classic one-dimensional coordinate
// variables sharing a dimension name.
func (g *Grid) createAxes(v *ncVar) error {
	d := g.ds
	dimIndex := make(map[string]int, len(g.dims))
	for i, dim := range g.dims {
		dimIndex[dim.Name] = i
	}
	var coordNames []string
	seen := make(map[string]bool)
	addCoord := func(name string) {
		if name == "" || name == v.name || seen[name] {
			return
		}
		if _, ok := d.vars[name]; !ok {
			return
		}
		seen[name] = true
		coordNames = append(coordNames, name)
	}
	for _, name := range strings.Fields(v.AttributeString("coordinates")) {
		addCoord(name)
	}
	for _, dim := range g.dims {
		addCoord(dim.Name)
	}
	var axes []*Axis
	for _, name := range coordNames {
		c := d.vars[name]
		cdims := c.GridDimensions()
		if len(cdims) > 2 {
			continue // localization grids of 3+ dimensions are not supported
		}
		indices := make([]int, len(cdims))
		sizes := make([]int64, len(cdims))
		ok := true
		for i, cd := range cdims {
			j, found := dimIndex[cd.Name]
			if !found {
				ok = false
				break
			}
			indices[i] = j
			sizes[i] = int64(cd.Length)
		}
		if !ok {
			continue
		}
		abbrev := abbreviationFor(c)
		ax, err := newAxis(c, abbrev, c.AttributeString("positive"), indices, sizes, d, &g.warnings)
		if err != nil {
			return err
		}
		axes = append(axes, ax)
	}
	// Order axes the way they will appear in the CRS: horizontal x
	// before y, then vertical, then temporal; ties broken so the
	// fastest-varying native dimension comes first.
	sort.SliceStable(axes, func(i, j int) bool {
		ri, rj := axisRank(axes[i]), axisRank(axes[j])
		if ri != rj {
			return ri < rj
		}
		return leadingDim(axes[i]) > leadingDim(axes[j])
	})
	g.axes = axes
	return nil
}

func leadingDim(a *Axis) int {
	if len(a.GridDims) == 0 {
		return -1
	}
	return a.GridDims[0]
}

func axisRank(a *Axis) int {
	switch a.Abbrev {
	case 'λ', 'θ', 'E', 'x':
		return 0
	case 'φ', 'Ω', 'N', 'y':
		return 1
	case 'h', 'H', 'D', 'r', 'z':
		return 2
	case 't':
		return 3
	}
	switch a.Direction.Absolute() {
	case East:
		return 0
	case North:
		return 1
	case Up:
		return 2
	case Future:
		return 3
	}
	return 4
}

// abbreviationFor determines the controlled-vocabulary abbreviation of
// a coordinate variable from its attributes, units and name.
func abbreviationFor(src CoordinateSource) rune {
	switch src.AttributeString("standard_name") {
	case "longitude":
		return 'λ'
	case "latitude":
		return 'φ'
	case "projection_x_coordinate":
		return 'E'
	case "projection_y_coordinate":
		return 'N'
	case "depth":
		return 'D'
	case "height", "altitude":
		return 'H'
	case "time":
		return 't'
	}
	u := strings.ToLower(src.UnitString())
	switch {
	case strings.HasPrefix(u, "degrees_e") || strings.HasPrefix(u, "degree_e") || u == "degrees east":
		return 'λ'
	case strings.HasPrefix(u, "degrees_n") || strings.HasPrefix(u, "degree_n") || u == "degrees north":
		return 'φ'
	case strings.Contains(u, " since "):
		return 't'
	}
	switch strings.ToUpper(src.AttributeString("axis")) {
	case "X":
		return 'x'
	case "Y":
		return 'y'
	case "Z":
		return 'z'
	case "T":
		return 't'
	}
	switch dir := parseDirection(src.AttributeString("positive")); dir {
	case Up:
		return 'H'
	case Down:
		return 'D'
	}
	switch strings.ToLower(strings.TrimSpace(src.Name())) {
	case "lon", "longitude":
		return 'λ'
	case "lat", "latitude":
		return 'φ'
	case "time":
		return 't'
	case "depth":
		return 'D'
	case "x":
		return 'x'
	case "y":
		return 'y'
	case "z":
		return 'z'
	}
	return 0
}

// Convention is the policy hook supplying format-profile defaults. The
// zero value (and a nil pointer) applies CF conventions. Individual
// fields may be set to override one policy at a time.
type Convention struct {
	// HorizontalSR returns the reference frame presumed for horizontal
	// axes when the dataset does not say, optionally the spherical
	// variant of it.
	HorizontalSR func(spherical bool) *proj.SR
	// Linearizers returns candidate projections to try when fitting
	// localization grids.
	Linearizers func() []Linearizer
	// MappingNodeNames returns the names of the variables to search
	// for projection attributes, in preference order.
	MappingNodeNames func(v CoordinateSource) []string
	// Projection harvests map projection parameters from a mapping
	// node, or returns nil if the node has none.
	Projection func(v CoordinateSource) map[string]interface{}
	// GridToCRS returns an override grid-to-CRS transform declared by
	// a non-CF profile, or nil.
	GridToCRS func(v CoordinateSource) Transform
}

func (c *Convention) horizontalSR(spherical bool) *proj.SR {
	if c != nil && c.HorizontalSR != nil {
		return c.HorizontalSR(spherical)
	}
	var code string
	if spherical {
		code = "+proj=longlat +a=6370997 +b=6370997 +no_defs"
	} else {
		code = "+proj=longlat +ellps=GRS80 +no_defs"
	}
	sr, err := proj.Parse(code)
	if err != nil {
		panic(err)
	}
	return sr
}

func (c *Convention) linearizers() []Linearizer {
	if c != nil && c.Linearizers != nil {
		return c.Linearizers()
	}
	return defaultLinearizers()
}

func (c *Convention) mappingNodeNames(v CoordinateSource) []string {
	if c != nil && c.MappingNodeNames != nil {
		return c.MappingNodeNames(v)
	}
	s := v.AttributeString("grid_mapping")
	if s == "" {
		return nil
	}
	if strings.Contains(s, ":") {
		// Extended syntax: "crsA: x y crsB: lat lon".
		var names []string
		for _, tok := range strings.Fields(s) {
			if strings.HasSuffix(tok, ":") {
				names = append(names, strings.TrimSuffix(tok, ":"))
			}
		}
		return names
	}
	return []string{s}
}

func (c *Convention) projection(v CoordinateSource) map[string]interface{} {
	if c != nil && c.Projection != nil {
		return c.Projection(v)
	}
	if v.AttributeString("grid_mapping_name") == "" {
		return nil
	}
	def := make(map[string]interface{})
	for _, name := range v.Attributes() {
		def[name] = v.Attribute(name)
	}
	return def
}

func (c *Convention) gridToCRS(v CoordinateSource) Transform {
	if c != nil && c.GridToCRS != nil {
		return c.GridToCRS(v)
	}
	return nil
}
