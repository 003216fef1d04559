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

import "testing"

func testAxis(t *testing.T, name string, abbrev rune, units string, data []float64) *Axis {
	t.Helper()
	attrs := map[string]interface{}{}
	if units != "" {
		attrs["units"] = units
	}
	src := &testSource{name: name, data: data, attrs: attrs}
	return mustAxis(t, src, abbrev, []int{0}, []int64{int64(len(data))})
}

func dispatchAll(t *testing.T, axes ...*Axis) []*crsBuilder {
	t.Helper()
	var builders []*crsBuilder
	var err error
	for _, axis := range axes {
		if builders, err = dispatchAxis(builders, axis); err != nil {
			t.Fatalf("dispatchAxis(%s): %v", axis.Name(), err)
		}
	}
	return builders
}

func TestDispatchAxis(t *testing.T) {
	lon := testAxis(t, "lon", 'λ', "degrees_east", []float64{0, 1})
	lat := testAxis(t, "lat", 'φ', "degrees_north", []float64{0, 1})
	hgt := testAxis(t, "height", 'h', "m", []float64{0, 1})
	tim := testAxis(t, "time", 't', "days since 1970-01-01", []float64{0, 1})

	// λ, φ and h share a geographic builder; t gets its own.
	builders := dispatchAll(t, lon, lat, hgt, tim)
	if len(builders) != 2 {
		t.Fatalf("got %d builders, want 2", len(builders))
	}
	if builders[0].kind != KindGeographic || len(builders[0].axes) != 3 {
		t.Errorf("first builder: kind %v with %d axes", builders[0].kind, len(builders[0].axes))
	}
	if builders[1].kind != KindTemporal || len(builders[1].axes) != 1 {
		t.Errorf("second builder: kind %v with %d axes", builders[1].kind, len(builders[1].axes))
	}
}

func TestDispatchAxisHeightMigration(t *testing.T) {
	hgt := testAxis(t, "height", 'h', "m", []float64{0, 1})
	east := testAxis(t, "x", 'E', "m", []float64{0, 1})
	north := testAxis(t, "y", 'N', "m", []float64{0, 1})

	// A height seen first goes to a geographic builder, then migrates
	// when the easting axis reveals a projected system.
	builders := dispatchAll(t, hgt, east, north)
	if len(builders) != 1 {
		t.Fatalf("got %d builders, want 1", len(builders))
	}
	b := builders[0]
	if b.kind != KindProjected {
		t.Fatalf("kind = %v, want projected", b.kind)
	}
	if len(b.axes) != 3 || b.axes[0] != hgt || b.axes[1] != east || b.axes[2] != north {
		t.Errorf("axes = %s", b.axisNames())
	}
}

func TestDispatchAxisHeightJoinsProjected(t *testing.T) {
	east := testAxis(t, "x", 'E', "m", []float64{0, 1})
	north := testAxis(t, "y", 'N', "m", []float64{0, 1})
	hgt := testAxis(t, "height", 'h', "m", []float64{0, 1})

	builders := dispatchAll(t, east, north, hgt)
	if len(builders) != 1 || builders[0].kind != KindProjected {
		t.Fatalf("builders = %d, want one projected", len(builders))
	}
	if len(builders[0].axes) != 3 {
		t.Errorf("axes = %s", builders[0].axisNames())
	}
}

func TestBuildGeographicPredefined(t *testing.T) {
	d := &Dataset{}
	lon := testAxis(t, "lon", 'λ', "degrees_east", []float64{-180, -90, 0, 90})
	lat := testAxis(t, "lat", 'φ', "degrees_north", []float64{-90, 0, 90})
	builders := dispatchAll(t, lon, lat)
	rs, err := builders[0].build(d, true)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Kind != KindGeographic || rs.Name != "Geographic" {
		t.Errorf("got %s %q", rs.Kind, rs.Name)
	}
	if len(rs.Axes) != 2 || rs.Axes[0].Name != "Geodetic longitude" || rs.Axes[1].Name != "Geodetic latitude" {
		t.Errorf("axes = %+v", rs.Axes)
	}
	if rs.Datum == nil || rs.Datum.Name != unknownDatumName("GRS 1980") {
		t.Errorf("datum = %+v", rs.Datum)
	}
	if rs.SR == nil {
		t.Error("geographic component should carry a projection definition")
	}
	if rs.LongitudeRange360 {
		t.Error("longitude range should be [-180 … +180]°")
	}

	// Latitude first keeps the dataset axis order.
	builders = dispatchAll(t,
		testAxis(t, "lat", 'φ', "degrees_north", []float64{-90, 0, 90}),
		testAxis(t, "lon", 'λ', "degrees_east", []float64{-180, 0, 180}))
	rs2, err := builders[0].build(d, true)
	if err != nil {
		t.Fatal(err)
	}
	if rs2.Axes[0].Name != "Geodetic latitude" || rs2.Axes[1].Name != "Geodetic longitude" {
		t.Errorf("axes = %+v", rs2.Axes)
	}
	// The datum is created once per dataset and shared.
	if rs2.Datum != rs.Datum {
		t.Error("datum should be cached per dataset")
	}
}

func TestBuildLongitudeRange360(t *testing.T) {
	d := &Dataset{}
	builders := dispatchAll(t,
		testAxis(t, "lon", 'λ', "degrees_east", []float64{0, 90, 180, 270}),
		testAxis(t, "lat", 'φ', "degrees_north", []float64{-90, 0, 90}))
	rs, err := builders[0].build(d, true)
	if err != nil {
		t.Fatal(err)
	}
	if !rs.LongitudeRange360 {
		t.Error("longitude values above 180° should switch to the [0 … 360]° range")
	}
	// Outside a grid context the coordinate values are not inspected.
	d2 := &Dataset{}
	builders = dispatchAll(t,
		testAxis(t, "lon", 'λ', "degrees_east", []float64{0, 90, 180, 270}),
		testAxis(t, "lat", 'φ', "degrees_north", []float64{-90, 0, 90}))
	rs, err = builders[0].build(d2, false)
	if err != nil {
		t.Fatal(err)
	}
	if rs.LongitudeRange360 {
		t.Error("non-grid component should keep the default longitude range")
	}
}

func TestBuildIncompleteComponent(t *testing.T) {
	// A latitude axis without longitude cannot make a geographic
	// system; it degrades to an engineering one keeping the datum name.
	d := &Dataset{}
	builders := dispatchAll(t, testAxis(t, "lat", 'φ', "degrees_north", []float64{-90, 0, 90}))
	rs, err := builders[0].build(d, true)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Kind != KindEngineering {
		t.Errorf("kind = %v, want engineering", rs.Kind)
	}
	if rs.Name != "lat" {
		t.Errorf("name = %q, want lat", rs.Name)
	}
	if rs.Datum == nil || rs.Datum.Name != unknownDatumName("GRS 1980") {
		t.Errorf("datum = %+v", rs.Datum)
	}
}

func TestBuildTooManyAxes(t *testing.T) {
	d := &Dataset{}
	builders := dispatchAll(t,
		testAxis(t, "d1", 'H', "m", []float64{0}),
		testAxis(t, "d2", 'D', "m", []float64{0}))
	if _, err := builders[0].build(d, true); err == nil {
		t.Error("two axes in a vertical system should be an error")
	}
}

func TestBuildTemporal(t *testing.T) {
	d := &Dataset{}
	builders := dispatchAll(t, testAxis(t, "time", 't', "days since 1970-01-01", []float64{0, 1}))
	rs, err := builders[0].build(d, true)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Kind != KindTemporal {
		t.Errorf("kind = %v, want temporal", rs.Kind)
	}
	if rs.Name != "days since 1970-01-01" {
		t.Errorf("name = %q", rs.Name)
	}
	if rs.Datum == nil || rs.Datum.Name != "Time since 1970-01-01T00:00:00Z" || !rs.Datum.HasEpoch {
		t.Errorf("datum = %+v", rs.Datum)
	}

	// Without an epoch the coordinates cannot be located on a time
	// line; an engineering system named after the unit is used instead.
	d2 := &Dataset{}
	builders = dispatchAll(t, testAxis(t, "time", 't', "hours", []float64{0, 1}))
	rs, err = builders[0].build(d2, true)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Kind != KindEngineering || rs.Name != "hours" {
		t.Errorf("got %s %q", rs.Kind, rs.Name)
	}
	if rs.Datum == nil || rs.Datum.Name != "Time" {
		t.Errorf("datum = %+v", rs.Datum)
	}
}

func TestBuildVerticalPredefined(t *testing.T) {
	tests := []struct {
		units    string
		abbrev   rune
		positive string
		axisName string
		rsName   string
	}{
		{"m", 'H', "up", "Gravity-related height", "MSL height"},
		{"m", 'D', "down", "Depth", "MSL depth"},
		{"hPa", 'H', "", "Barometric altitude", "Barometric altitude"},
	}
	for _, test := range tests {
		d := &Dataset{}
		attrs := map[string]interface{}{"units": test.units}
		if test.positive != "" {
			attrs["positive"] = test.positive
		}
		src := &testSource{name: "z", data: []float64{0, 1}, attrs: attrs}
		axis := mustAxis(t, src, test.abbrev, []int{0}, []int64{2})
		builders := dispatchAll(t, axis)
		rs, err := builders[0].build(d, true)
		if err != nil {
			t.Errorf("%s: %v", test.units, err)
			continue
		}
		if rs.Kind != KindVertical || rs.Name != test.rsName {
			t.Errorf("%s: got %s %q, want %q", test.units, rs.Kind, rs.Name, test.rsName)
			continue
		}
		if rs.Axes[0].Name != test.axisName {
			t.Errorf("%s: axis = %q, want %q", test.units, rs.Axes[0].Name, test.axisName)
		}
	}
}

func TestBuildProjectedDerived(t *testing.T) {
	// Kilometre units do not match the predefined metre axes, so the
	// coordinate system is derived from the dataset.
	d := &Dataset{}
	builders := dispatchAll(t,
		testAxis(t, "x", 'E', "km", []float64{0, 10}),
		testAxis(t, "y", 'N', "km", []float64{0, 10}))
	rs, err := builders[0].build(d, true)
	if err != nil {
		t.Fatal(err)
	}
	if rs.Kind != KindProjected || rs.Name != "x y" {
		t.Errorf("got %s %q", rs.Kind, rs.Name)
	}
	if rs.Axes[0].Unit != Kilometre {
		t.Errorf("unit = %v, want km", rs.Axes[0].Unit)
	}
}
