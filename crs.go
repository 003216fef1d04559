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
	"strings"
	"time"

	"github.com/ctessum/geom/proj"
)

// Direction is the direction of increasing coordinate values along an
// axis. The declaration order matters: scalar axes are repositioned
// according to ascending Direction values (north, east, south, west,
// up/down, future/past).
type Direction int

const (
	North Direction = iota
	East
	South
	West
	Up
	Down
	Future
	Past
	ColumnPositive
	RowPositive
	Unspecified
)

var directionNames = []string{
	North: "north", East: "east", South: "south", West: "west",
	Up: "up", Down: "down", Future: "future", Past: "past",
	ColumnPositive: "columnPositive", RowPositive: "rowPositive",
	Unspecified: "unspecified",
}

func (d Direction) String() string {
	if d >= 0 && int(d) < len(directionNames) {
		return directionNames[d]
	}
	return "unspecified"
}

// parseDirection interprets a direction name such as the value of a
// "positive" attribute. Unrecognized names map to Unspecified.
func parseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north":
		return North
	case "east":
		return East
	case "south":
		return South
	case "west":
		return West
	case "up":
		return Up
	case "down":
		return Down
	case "future":
		return Future
	case "past":
		return Past
	}
	return Unspecified
}

// Opposite returns the direction of decreasing coordinate values.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	case Up:
		return Down
	case Down:
		return Up
	case Future:
		return Past
	case Past:
		return Future
	}
	return d
}

// IsOpposite reports whether this is one of the "decreasing" members of
// a direction pair.
func (d Direction) IsOpposite() bool {
	switch d {
	case South, West, Down, Past:
		return true
	}
	return false
}

// Absolute returns the "increasing" member of the direction pair.
func (d Direction) Absolute() Direction {
	if d.IsOpposite() {
		return d.Opposite()
	}
	return d
}

// IsColinear reports whether two directions lie along the same axis,
// regardless of sign. Unspecified is colinear with nothing.
func (d Direction) IsColinear(o Direction) bool {
	return d != Unspecified && o != Unspecified && d.Absolute() == o.Absolute()
}

func (d Direction) IsVertical() bool { return d == Up || d == Down }
func (d Direction) IsTemporal() bool { return d == Future || d == Past }

// directionFromAbbreviation returns the direction implied by an axis
// abbreviation, or Unspecified when the abbreviation does not constrain
// the direction (x, y, z and unknown axes).
func directionFromAbbreviation(abbr rune) Direction {
	switch abbr {
	case 'λ', 'θ', 'E':
		return East
	case 'φ', 'Ω', 'N':
		return North
	case 'h', 'H', 'r':
		return Up
	case 'D':
		return Down
	case 't':
		return Future
	}
	return Unspecified
}

// suggestAbbreviation synthesizes an axis abbreviation from a direction
// and unit when the dataset declared none.
func suggestAbbreviation(d Direction, u *AxisUnit) string {
	switch d.Absolute() {
	case East:
		if u.IsAngular() {
			return "λ"
		}
		return "E"
	case North:
		if u.IsAngular() {
			return "φ"
		}
		return "N"
	case Up:
		if d == Down {
			return "D"
		}
		return "H"
	case Future:
		return "t"
	case ColumnPositive:
		return "x"
	case RowPositive:
		return "y"
	}
	return ""
}

// CSAxis is one axis of a coordinate system, assembled from a
// coordinate variable's name, attributes and defaults.
type CSAxis struct {
	Name        string
	Aliases     []string
	Description string
	Abbrev      string
	Direction   Direction
	Unit        *AxisUnit
}

// Equal ignores names and aliases: two axes are interchangeable when
// they agree on direction and unit.
func (a CSAxis) Equal(o CSAxis) bool {
	return a.Direction == o.Direction && a.Unit.Equal(o.Unit)
}

// Datum is the origin and orientation reference of a CRS component.
// Datums are generally not declared in datasets, so names follow the
// "Unknown datum presumably based upon X" pattern.
type Datum struct {
	Name        string
	Identifiers []string
	Epoch       time.Time
	HasEpoch    bool
}

func (d *Datum) Equal(o *Datum) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.Name == o.Name && d.HasEpoch == o.HasEpoch && d.Epoch.Equal(o.Epoch)
}

// CRSKind identifies the family of a CRS component.
type CRSKind int

const (
	KindGeographic CRSKind = iota
	KindProjected
	KindSpherical
	KindVertical
	KindTemporal
	KindEngineering
)

var crsKindNames = []string{
	KindGeographic:  "geographic",
	KindProjected:   "projected",
	KindSpherical:   "spherical",
	KindVertical:    "vertical",
	KindTemporal:    "temporal",
	KindEngineering: "engineering",
}

func (k CRSKind) String() string {
	if k >= 0 && int(k) < len(crsKindNames) {
		return crsKindNames[k]
	}
	return "unknown"
}

// ReferenceSystem is one component of a (possibly compound) CRS.
// Geographic, projected and spherical components carry a proj.SR with
// the projection definition; the other families do not.
type ReferenceSystem struct {
	Name  string
	Kind  CRSKind
	Datum *Datum
	Axes  []CSAxis
	SR    *proj.SR

	// LongitudeRange360 records that the longitude axis uses the
	// [0 … 360]° convention instead of [-180 … +180]°.
	LongitudeRange360 bool
}

func (rs *ReferenceSystem) NumDims() int { return len(rs.Axes) }

// Equal compares two components for interchangeability: same family,
// datum, axis directions and units, projection and longitude convention.
func (rs *ReferenceSystem) Equal(o *ReferenceSystem) bool {
	if rs == nil || o == nil {
		return rs == o
	}
	if rs.Kind != o.Kind || rs.LongitudeRange360 != o.LongitudeRange360 ||
		len(rs.Axes) != len(o.Axes) || !rs.Datum.Equal(o.Datum) {
		return false
	}
	for i := range rs.Axes {
		if !rs.Axes[i].Equal(o.Axes[i]) {
			return false
		}
	}
	if (rs.SR == nil) != (o.SR == nil) {
		return false
	}
	if rs.SR != nil && !rs.SR.Equal(o.SR, 10) {
		return false
	}
	return true
}

// rightHanded returns a copy of the component with axes reordered to
// the right-handed (east, north) convention, or the same instance when
// no reordering is needed. Only the first two axes are considered.
func (rs *ReferenceSystem) rightHanded() *ReferenceSystem {
	if rs == nil || len(rs.Axes) < 2 {
		return rs
	}
	if rs.Axes[0].Direction.Absolute() == North && rs.Axes[1].Direction.Absolute() == East {
		c := *rs
		c.Axes = append([]CSAxis{}, rs.Axes...)
		c.Axes[0], c.Axes[1] = c.Axes[1], c.Axes[0]
		return &c
	}
	return rs
}

// CRS is an ordered sequence of reference system components matching
// the target axes of the grid-to-CRS transform.
type CRS struct {
	Components []*ReferenceSystem
}

func (c *CRS) NumDims() int {
	n := 0
	for _, rs := range c.Components {
		n += rs.NumDims()
	}
	return n
}

// Name joins the component names, matching the usual presentation of
// compound reference systems.
func (c *CRS) Name() string {
	names := make([]string, len(c.Components))
	for i, rs := range c.Components {
		names[i] = rs.Name
	}
	return strings.Join(names, " + ")
}

// Axes returns the flattened axis list across all components.
func (c *CRS) Axes() []CSAxis {
	var axes []CSAxis
	for _, rs := range c.Components {
		axes = append(axes, rs.Axes...)
	}
	return axes
}

func (c *CRS) Equal(o *CRS) bool {
	if c == nil || o == nil {
		return c == o
	}
	if len(c.Components) != len(o.Components) {
		return false
	}
	for i := range c.Components {
		if !c.Components[i].Equal(o.Components[i]) {
			return false
		}
	}
	return true
}
