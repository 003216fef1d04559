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
	"errors"
	"testing"
)

func TestOrderAxesScalar(t *testing.T) {
	// A scalar time axis moves after the georeferenced axes.
	tim := mustAxis(t, &testSource{name: "time", data: []float64{12},
		attrs: map[string]interface{}{"units": "days since 1970-01-01"}}, 't', nil, nil)
	lat := testAxis(t, "lat", 'φ', "degrees_north", []float64{0, 1})
	lon := testAxis(t, "lon", 'λ', "degrees_east", []float64{0, 1})
	g := &Grid{axes: []*Axis{tim, lat, lon}}
	if err := g.orderAxes(); err != nil {
		t.Fatal(err)
	}
	if g.axes[0] != lat || g.axes[1] != lon || g.axes[2] != tim {
		names := make([]string, len(g.axes))
		for i, a := range g.axes {
			names[i] = a.Name()
		}
		t.Errorf("axis order = %v, want [lat lon time]", names)
	}
}

func TestGridExtent(t *testing.T) {
	z := testAxis(t, "z", 'H', "m", []float64{0, 1})
	z.GridDims = []int{1}
	tim := testAxis(t, "time", 't', "days since 1970-01-01", []float64{0, 1, 2, 3, 4})
	tim.GridDims = []int{0}
	g := &Grid{
		dims: []Dim{{"time", 5}, {"z", 2}, {"y", 3}, {"x", 4}},
		axes: []*Axis{z, tim},
	}
	e := g.extent()
	if e == nil {
		t.Fatal("extent is nil")
	}
	wantSizes := []int64{4, 3, 2, 5}
	wantNames := []string{"column", "row", "vertical", "time"}
	for i := range wantSizes {
		if e.Sizes[i] != wantSizes[i] {
			t.Errorf("Sizes = %v, want %v", e.Sizes, wantSizes)
			break
		}
	}
	for i := range wantNames {
		if e.Names[i] != wantNames[i] {
			t.Errorf("Names = %v, want %v", e.Names, wantNames)
			break
		}
	}
	// An unlimited dimension that was never written has no extent.
	g = &Grid{dims: []Dim{{"time", 0}, {"y", 3}}}
	if g.extent() != nil {
		t.Error("extent of a zero-length dimension should be nil")
	}
}

func TestGridGeometryAffine(t *testing.T) {
	lon := testAxis(t, "lon", 'λ', "degrees_east", []float64{100, 110, 120, 130})
	lon.GridDims = []int{1}
	lat := testAxis(t, "lat", 'φ', "degrees_north", []float64{40, 45, 50})
	lat.GridDims = []int{0}
	g := &Grid{
		ds:   &Dataset{},
		name: "lat lon",
		dims: []Dim{{"lat", 3}, {"lon", 4}},
		axes: []*Axis{lon, lat},
	}
	geom, err := g.GridGeometry()
	if err != nil {
		t.Fatal(err)
	}
	if geom == nil {
		t.Fatal("geometry is nil")
	}
	if geom.Anchor != CellCenter {
		t.Errorf("anchor = %v, want cell center", geom.Anchor)
	}
	if got := geom.Extent.Sizes; len(got) != 2 || got[0] != 4 || got[1] != 3 {
		t.Errorf("Sizes = %v, want [4 3]", got)
	}
	// Source dimensions are in natural order: column (longitude) first.
	got := applyOK(t, geom.GridToCRS, []float64{0, 0})
	if !coordsNear(got, []float64{100, 40}, 1e-12) {
		t.Errorf("GridToCRS(0,0) = %v, want [100 40]", got)
	}
	got = applyOK(t, geom.GridToCRS, []float64{1, 2})
	if !coordsNear(got, []float64{110, 50}, 1e-12) {
		t.Errorf("GridToCRS(1,2) = %v, want [110 50]", got)
	}
	if geom.CRS == nil || geom.CRS.Name() != "Geographic" {
		t.Errorf("CRS = %v", geom.CRS)
	}
	// The geometry is computed once and cached.
	again, err := g.GridGeometry()
	if err != nil {
		t.Fatal(err)
	}
	if again != geom {
		t.Error("second call should return the cached geometry")
	}
}

func TestGridGeometryInterpolated(t *testing.T) {
	// Irregular latitudes fall back on an interpolation step ahead of
	// the affine part.
	lon := testAxis(t, "lon", 'λ', "degrees_east", []float64{100, 110, 120, 130})
	lon.GridDims = []int{1}
	lat := testAxis(t, "lat", 'φ', "degrees_north", []float64{0, 10, 40})
	lat.GridDims = []int{0}
	g := &Grid{
		ds:   &Dataset{},
		name: "lat lon",
		dims: []Dim{{"lat", 3}, {"lon", 4}},
		axes: []*Axis{lon, lat},
	}
	geom, err := g.GridGeometry()
	if err != nil {
		t.Fatal(err)
	}
	if geom == nil {
		t.Fatal("geometry is nil")
	}
	got := applyOK(t, geom.GridToCRS, []float64{2, 1.5})
	if !coordsNear(got, []float64{120, 25}, 1e-12) {
		t.Errorf("GridToCRS(2,1.5) = %v, want [120 25]", got)
	}
}

func TestGridGeometryCellCorner(t *testing.T) {
	lon := testAxis(t, "lon", 'λ', "degrees_east", []float64{-180, -60, 60})
	lon.GridDims = []int{1}
	lat := testAxis(t, "lat", 'φ', "degrees_north", []float64{-60, 0, 60})
	lat.GridDims = []int{0}
	g := &Grid{
		ds:   &Dataset{},
		name: "lat lon",
		dims: []Dim{{"lat", 3}, {"lon", 3}},
		axes: []*Axis{lon, lat},
	}
	geom, err := g.GridGeometry()
	if err != nil {
		t.Fatal(err)
	}
	if geom == nil {
		t.Fatal("geometry is nil")
	}
	if geom.Anchor != CellCorner {
		t.Errorf("anchor = %v, want cell corner", geom.Anchor)
	}
}

func TestGridGeometryOverflowCached(t *testing.T) {
	lon := testAxis(t, "lon", 'λ', "degrees_east", []float64{100, 110})
	lon.GridDims = []int{0}
	lon.GridSizes = []int64{1 << 31}
	g := &Grid{
		ds:   &Dataset{},
		name: "lon",
		dims: []Dim{{"lon", 2}},
		axes: []*Axis{lon},
	}
	_, err := g.GridGeometry()
	var overflow *OverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("error = %v, want an overflow error", err)
	}
	// The failure is remembered: a repeated call reports the same
	// fatal cause instead of a silent nil geometry.
	_, err = g.GridGeometry()
	if !errors.As(err, &overflow) {
		t.Errorf("repeated call error = %v, want an overflow error", err)
	}
}
