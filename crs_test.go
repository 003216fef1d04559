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

func TestDirection(t *testing.T) {
	tests := []struct {
		d        Direction
		opposite Direction
		absolute Direction
	}{
		{North, South, North},
		{South, North, North},
		{East, West, East},
		{West, East, East},
		{Up, Down, Up},
		{Down, Up, Up},
		{Future, Past, Future},
		{Past, Future, Future},
		{Unspecified, Unspecified, Unspecified},
	}
	for _, test := range tests {
		if got := test.d.Opposite(); got != test.opposite {
			t.Errorf("%v.Opposite() = %v, want %v", test.d, got, test.opposite)
		}
		if got := test.d.Absolute(); got != test.absolute {
			t.Errorf("%v.Absolute() = %v, want %v", test.d, got, test.absolute)
		}
	}
	if !South.IsColinear(North) {
		t.Error("south should be colinear with north")
	}
	if East.IsColinear(North) {
		t.Error("east should not be colinear with north")
	}
	if Unspecified.IsColinear(Unspecified) {
		t.Error("unspecified should be colinear with nothing")
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in   string
		want Direction
	}{
		{"up", Up},
		{"Down", Down},
		{" north ", North},
		{"EAST", East},
		{"sideways", Unspecified},
		{"", Unspecified},
	}
	for _, test := range tests {
		if got := parseDirection(test.in); got != test.want {
			t.Errorf("parseDirection(%q) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestSuggestAbbreviation(t *testing.T) {
	tests := []struct {
		d    Direction
		u    *AxisUnit
		want string
	}{
		{East, Degree, "λ"},
		{West, Degree, "λ"},
		{East, Metre, "E"},
		{North, Degree, "φ"},
		{North, Metre, "N"},
		{Up, Metre, "H"},
		{Down, Metre, "D"},
		{Future, Second, "t"},
		{ColumnPositive, Pixel, "x"},
		{RowPositive, Pixel, "y"},
		{Unspecified, One, ""},
	}
	for _, test := range tests {
		if got := suggestAbbreviation(test.d, test.u); got != test.want {
			t.Errorf("suggestAbbreviation(%v, %s) = %q, want %q", test.d, test.u, got, test.want)
		}
	}
}

func TestReferenceSystemRightHanded(t *testing.T) {
	latFirst := &ReferenceSystem{Axes: []CSAxis{
		{Direction: North, Unit: Degree},
		{Direction: East, Unit: Degree},
	}}
	rh := latFirst.rightHanded()
	if rh == latFirst {
		t.Fatal("expected a reordered copy")
	}
	if rh.Axes[0].Direction != East || rh.Axes[1].Direction != North {
		t.Errorf("axes not reordered: %v", rh.Axes)
	}
	// The original must be unchanged.
	if latFirst.Axes[0].Direction != North {
		t.Error("original reference system was modified")
	}
	lonFirst := &ReferenceSystem{Axes: []CSAxis{
		{Direction: East, Unit: Degree},
		{Direction: North, Unit: Degree},
	}}
	if lonFirst.rightHanded() != lonFirst {
		t.Error("already right-handed system should be returned as-is")
	}
}

func TestCRSEqualAndName(t *testing.T) {
	geo := &ReferenceSystem{Name: "Geographic", Kind: KindGeographic,
		Datum: &Datum{Name: unknownDatumName("GRS 1980")},
		Axes: []CSAxis{
			{Direction: East, Unit: Degree},
			{Direction: North, Unit: Degree},
		}}
	vert := &ReferenceSystem{Name: "MSL height", Kind: KindVertical,
		Datum: &Datum{Name: unknownDatumName("Mean Sea Level")},
		Axes:  []CSAxis{{Direction: Up, Unit: Metre}}}
	c := &CRS{Components: []*ReferenceSystem{geo, vert}}
	if got := c.NumDims(); got != 3 {
		t.Errorf("NumDims = %d, want 3", got)
	}
	if got, want := c.Name(), "Geographic + MSL height"; got != want {
		t.Errorf("Name = %q, want %q", got, want)
	}
	same := &CRS{Components: []*ReferenceSystem{
		{Name: "other name", Kind: KindGeographic,
			Datum: &Datum{Name: unknownDatumName("GRS 1980")},
			Axes: []CSAxis{
				{Direction: East, Unit: Degree},
				{Direction: North, Unit: Degree},
			}},
		{Name: "x", Kind: KindVertical,
			Datum: &Datum{Name: unknownDatumName("Mean Sea Level")},
			Axes:  []CSAxis{{Direction: Up, Unit: Metre}}},
	}}
	if !c.Equal(same) {
		t.Error("equivalent compound systems should compare equal")
	}
	diff := &CRS{Components: []*ReferenceSystem{geo}}
	if c.Equal(diff) {
		t.Error("systems with different component counts should differ")
	}
}
