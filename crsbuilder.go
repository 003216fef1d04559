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
	"time"
)

// maxAxisCount is an arbitrary limit on the number of axes per
// reference system, for catching malformed data. Real datasets rarely
// have more than 4.
const maxAxisCount = 1000

// unknownDatumName builds the name given to datums inferred without
// any declaration in the dataset. Datasets generally do not declare
// their datum, so this is the common case.
func unknownDatumName(base string) string {
	return "Unknown datum presumably based upon " + base
}

// crsBuilder collects the axes of one reference system component
// during CRS assembly. There is at most one builder per component
// family, holding between minDim and maxDim axes once complete.
type crsBuilder struct {
	kind       CRSKind
	datumIndex int
	datumBase  string
	minDim     int
	maxDim     int
	axes       []*Axis
}

func newCRSBuilder(kind CRSKind) *crsBuilder {
	b := &crsBuilder{kind: kind}
	switch kind {
	case KindGeographic:
		b.datumIndex, b.datumBase, b.minDim, b.maxDim = datumGeodetic, "GRS 1980", 2, 3
	case KindSpherical:
		b.datumIndex, b.datumBase, b.minDim, b.maxDim = datumGeodetic, "GRS 1980", 3, 3
	case KindProjected:
		b.datumIndex, b.datumBase, b.minDim, b.maxDim = datumGeodetic, "GRS 1980", 2, 3
	case KindVertical:
		b.datumIndex, b.datumBase, b.minDim, b.maxDim = datumVertical, "Mean Sea Level", 1, 1
	case KindTemporal:
		b.datumIndex, b.datumBase, b.minDim, b.maxDim = datumTemporal, "", 1, 1
	default:
		b.datumIndex, b.datumBase, b.minDim, b.maxDim = datumEngineering, "affine coordinate system", 1, 3
	}
	return b
}

// assembleCRS infers a compound CRS from the grid axes. Each axis is
// dispatched to a component builder according to its abbreviation, then
// each builder creates one component. The linearizations argument, if
// non-empty, carries projected CRSs that replace the geodetic component
// inferred here, because the localization grid was reprojected during
// fitting. reorderGridToCRS is the affine part of the "grid to CRS"
// transform; a linearization target lists its axes in the order of the
// localization grid pair, so the affine needs no adjustment and the
// argument is accepted for symmetry with the transform construction.
func assembleCRS(d *Dataset, g *Grid, linearizations []*GridCacheValue, reorderGridToCRS *Affine) (*CRS, error) {
	var builders []*crsBuilder
	for _, axis := range g.Axes() {
		var err error
		builders, err = dispatchAxis(builders, axis)
		if err != nil {
			return nil, err
		}
	}
	if len(builders) == 0 {
		return nil, nil
	}
	components := make([]*ReferenceSystem, len(builders))
	for i, b := range builders {
		rs, err := b.build(d, true)
		if err != nil {
			return nil, err
		}
		components[i] = rs
	}
	for _, lin := range linearizations {
		if lin.linearizationTarget == nil {
			continue
		}
		for i, c := range components {
			if c.Kind == KindGeographic || c.Kind == KindSpherical {
				components[i] = lin.linearizationTarget
				break
			}
		}
	}
	return &CRS{Components: components}, nil
}

// dispatchAxis routes an axis to the builder for its component family,
// creating the builder if none exists yet. The axis type is determined
// from the abbreviation, taken as a controlled vocabulary. If several
// builders of the same family exist, the most recently used one wins.
func dispatchAxis(builders []*crsBuilder, axis *Axis) ([]*crsBuilder, error) {
	var kind CRSKind
	alternative := -1
	switch axis.Abbrev {
	case 'h':
		// Ellipsoidal height can apply to either a geographic or a
		// projected component; prefer an existing projected one.
		for i := len(builders) - 1; i >= 0; i-- {
			if builders[i].kind == KindProjected {
				alternative = i
				break
			}
		}
		kind = KindGeographic
	case 'λ', 'φ':
		kind = KindGeographic
	case 'θ', 'Ω', 'r':
		kind = KindSpherical
	case 'E', 'N':
		kind = KindProjected
	case 'H', 'D':
		kind = KindVertical
	case 't':
		kind = KindTemporal
	default:
		kind = KindEngineering
	}
	for i := len(builders) - 1; i >= 0; i-- {
		b := builders[i]
		if b.kind == kind || i == alternative {
			if err := b.add(axis); err != nil {
				return nil, err
			}
			return builders, nil
		}
	}
	b := newCRSBuilder(kind)
	// An ellipsoidal height seen before any easting or northing axis
	// went to a geographic builder. If a projected builder is created
	// afterwards, that bet was wrong; migrate the lonely height here.
	if kind == KindProjected {
	previous:
		for i := len(builders) - 1; i >= 0; i-- {
			replace := builders[i]
			for _, a := range replace.axes {
				if a.Abbrev != 'h' {
					continue previous
				}
			}
			for _, a := range replace.axes {
				if err := b.add(a); err != nil {
					return nil, err
				}
			}
			builders = append(builders[:i], builders[i+1:]...)
			break
		}
	}
	if err := b.add(axis); err != nil {
		return nil, err
	}
	return append(builders, b), nil
}

// add stores an axis reference. More than maxDim axes is usually an
// error, but extraneous axes are kept anyway for the error message that
// build will produce.
func (b *crsBuilder) add(axis *Axis) error {
	if len(b.axes) > maxAxisCount {
		return fmt.Errorf("georef: too many axes (%d) for a single reference system", len(b.axes))
	}
	b.axes = append(b.axes, axis)
	return nil
}

func (b *crsBuilder) axisNames() string {
	names := make([]string, len(b.axes))
	for i, axis := range b.axes {
		names[i] = axis.Name()
	}
	return strings.Join(names, ", ")
}

// build creates the reference system component from the dispatched
// axes. grid tells whether the component is built for a grid, which
// enables coordinate-dependent checks such as the longitude range.
func (b *crsBuilder) build(d *Dataset, grid bool) (*ReferenceSystem, error) {
	if len(b.axes) > b.maxDim {
		return nil, fmt.Errorf("georef: unexpected number of axes (%d) for a %s reference system: %s",
			len(b.axes), b.kind, b.axisNames())
	}
	datum := d.datumCache[b.datumIndex]
	if datum == nil {
		datum = b.createDatum()
		if datum != nil {
			d.datumCache[b.datumIndex] = datum
		}
	}
	// An incomplete component, for example a latitude axis without a
	// longitude axis as in a (latitude, time) system, cannot be built
	// as declared. An engineering CRS preserves the axes anyway.
	if len(b.axes) < b.minDim {
		eng := newCRSBuilder(KindEngineering)
		eng.axes = b.axes
		var engDatum *Datum
		if datum != nil {
			engDatum = &Datum{Name: datum.Name, Identifiers: datum.Identifiers}
		}
		return eng.buildFromAxes(engDatum, grid, "")
	}
	// A time axis whose unit does not carry an epoch gives coordinates
	// that cannot be placed on a time line.
	if b.kind == KindTemporal && datum == nil {
		eng := newCRSBuilder(KindEngineering)
		eng.axes = b.axes
		return eng.buildFromAxes(&Datum{Name: "Time"}, grid, b.temporalName())
	}
	var rs *ReferenceSystem
	if pre, name := b.predefinedAxes(); len(pre) == len(b.axes) {
		match := true
		for i, axis := range b.axes {
			if !axis.sameUnitAndDirection(pre[i]) {
				match = false
				break
			}
		}
		if match {
			rs = &ReferenceSystem{Name: name, Kind: b.kind, Datum: datum, Axes: pre}
		}
	}
	if rs == nil {
		var err error
		rs, err = b.buildFromAxes(datum, grid, "")
		if err != nil {
			return nil, err
		}
	}
	if b.kind == KindTemporal {
		rs.Name = b.temporalName()
	}
	if b.kind == KindGeographic || b.kind == KindSpherical {
		rs.SR = d.convention().horizontalSR(false)
		// The coordinate system initially has a [-180 … +180]°
		// longitude range. If the actual coordinate values are outside
		// that range, switch to [0 … 360]°.
		if grid {
			if err := b.applyLongitudeRange(rs); err != nil {
				return nil, err
			}
		}
	}
	return rs, nil
}

// buildFromAxes creates a component whose coordinate system is derived
// axis by axis from the dataset, used when no predefined coordinate
// system matches. An empty name means to join the axis names.
func (b *crsBuilder) buildFromAxes(datum *Datum, grid bool, name string) (*ReferenceSystem, error) {
	iso := make([]CSAxis, len(b.axes))
	names := make([]string, len(b.axes))
	for i, axis := range b.axes {
		var err error
		iso[i], err = axis.toISO(i, grid)
		if err != nil {
			return nil, err
		}
		names[i] = axis.Name()
	}
	if name == "" {
		name = strings.Join(names, " ")
	}
	return &ReferenceSystem{Name: name, Kind: b.kind, Datum: datum, Axes: iso}, nil
}

// createDatum builds the datum used when the cache holds none. It
// returns nil for a temporal axis without epoch; the caller then falls
// back on an engineering CRS.
func (b *crsBuilder) createDatum() *Datum {
	if b.kind == KindTemporal {
		u := b.axes[0].Unit()
		if u == nil || !u.HasEpoch {
			return nil
		}
		return &Datum{
			Name:     "Time since " + u.Epoch.UTC().Format(time.RFC3339),
			Epoch:    u.Epoch,
			HasEpoch: true,
		}
	}
	return &Datum{Name: unknownDatumName(b.datumBase)}
}

// temporalName names a temporal component after its unit string, which
// usually carries the epoch ("days since 1970-01-01").
func (b *crsBuilder) temporalName() string {
	if s := strings.TrimSpace(b.axes[0].Coords.UnitString()); s != "" {
		return s
	}
	return b.axes[0].Name()
}

// predefinedAxes returns a candidate coordinate system matching the
// common axes of this component family, or nil when the family has no
// predefined candidate for the first axis. A candidate is only used
// when every dataset axis has the same unit and direction; using a
// predefined system gives more conventional names than deriving the
// axes from the dataset.
func (b *crsBuilder) predefinedAxes() ([]CSAxis, string) {
	if len(b.axes) == 0 {
		return nil, ""
	}
	first := b.axes[0]
	switch b.kind {
	case KindGeographic:
		if !geodeticCandidate(first, Degree) {
			return nil, ""
		}
		lon := CSAxis{Name: "Geodetic longitude", Abbrev: "λ", Direction: East, Unit: Degree}
		lat := CSAxis{Name: "Geodetic latitude", Abbrev: "φ", Direction: North, Unit: Degree}
		axes := []CSAxis{lon, lat}
		if first.Direction == North {
			axes = []CSAxis{lat, lon}
		}
		if len(b.axes) >= 3 {
			axes = append(axes, CSAxis{Name: "Ellipsoidal height", Abbrev: "h", Direction: Up, Unit: Metre})
		}
		return axes, "Geographic"
	case KindSpherical:
		if !geodeticCandidate(first, Degree) {
			return nil, ""
		}
		lon := CSAxis{Name: "Spherical longitude", Abbrev: "θ", Direction: East, Unit: Degree}
		lat := CSAxis{Name: "Spherical latitude", Abbrev: "Ω", Direction: North, Unit: Degree}
		r := CSAxis{Name: "Geocentric radius", Abbrev: "r", Direction: Up, Unit: Metre}
		if first.Direction == North {
			return []CSAxis{lat, lon, r}, "Spherical"
		}
		return []CSAxis{lon, lat, r}, "Spherical"
	case KindProjected:
		if !geodeticCandidate(first, Metre) {
			return nil, ""
		}
		east := CSAxis{Name: "Easting", Abbrev: "E", Direction: East, Unit: Metre}
		north := CSAxis{Name: "Northing", Abbrev: "N", Direction: North, Unit: Metre}
		axes := []CSAxis{east, north}
		if first.Direction == North {
			axes = []CSAxis{north, east}
		}
		if len(b.axes) >= 3 {
			axes = append(axes, CSAxis{Name: "Ellipsoidal height", Abbrev: "h", Direction: Up, Unit: Metre})
		}
		return axes, strings.Join(strings.Fields(b.axisNames()), " ")
	case KindVertical:
		u := first.Unit()
		switch {
		case Metre.Equal(u) && first.Direction == Up:
			return []CSAxis{{Name: "Gravity-related height", Abbrev: "H", Direction: Up, Unit: Metre}}, "MSL height"
		case Metre.Equal(u) && first.Direction == Down:
			return []CSAxis{{Name: "Depth", Abbrev: "D", Direction: Down, Unit: Metre}}, "MSL depth"
		case Hectopascal.Equal(u):
			return []CSAxis{{Name: "Barometric altitude", Abbrev: "H", Direction: Up, Unit: Hectopascal}}, "Barometric altitude"
		}
	}
	return nil, ""
}

// geodeticCandidate reports whether the first axis of a geodetic
// component suggests a predefined coordinate system: the expected unit
// (or no declared unit) and an east or north direction, the latter
// telling whether longitude or latitude comes first.
func geodeticCandidate(first *Axis, expected *AxisUnit) bool {
	if u := first.Unit(); u != nil && !expected.Equal(u) {
		return false
	}
	return first.Direction == East || first.Direction == North
}

// applyLongitudeRange switches the component to the [0 … 360]°
// longitude convention when the longitude coordinates require it.
func (b *crsBuilder) applyLongitudeRange(rs *ReferenceSystem) error {
	for i, iso := range rs.Axes {
		if i >= len(b.axes) {
			break
		}
		if iso.Direction.Absolute() != East || !iso.Unit.IsAngular() {
			continue
		}
		data, err := b.axes[i].Read()
		if err != nil {
			return err
		}
		min, max, ok := vectorRange(data)
		if !ok {
			continue
		}
		limit, err := Degree.Convert(180, iso.Unit)
		if err != nil {
			continue
		}
		// The minimum and maximum are not necessarily the first and
		// last values in the vector.
		if min >= 0 && max > limit {
			rs.LongitudeRange360 = true
			break
		}
	}
	return nil
}

// vectorRange returns the smallest and largest finite values, or
// ok=false when the vector has none.
func vectorRange(data []float64) (min, max float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		ok = true
	}
	return min, max, ok
}
