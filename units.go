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

	"github.com/ctessum/unit"
)

// UnitKind classifies an axis unit.
type UnitKind int

const (
	UnitUnknown UnitKind = iota
	UnitAngular
	UnitLinear
	UnitTemporal
	UnitPressure
	UnitDimensionless
)

// AxisUnit is a unit of measurement for one coordinate axis.
// Scale converts a value in this unit to the base unit of its kind:
// degrees for angles, metres for lengths, seconds for durations and
// pascals for pressures. Temporal units parsed from strings of the form
// "<unit> since <epoch>" additionally carry the epoch.
type AxisUnit struct {
	Symbol   string
	Kind     UnitKind
	Scale    float64
	Dims     unit.Dimensions
	Epoch    time.Time
	HasEpoch bool
}

// Predefined units. These are the defaults assigned to axes whose unit
// attribute is missing or unrecognized.
var (
	Degree      = &AxisUnit{Symbol: "degrees", Kind: UnitAngular, Scale: 1, Dims: unit.Dimensions{unit.AngleDim: 1}}
	Radian      = &AxisUnit{Symbol: "rad", Kind: UnitAngular, Scale: 180 / math.Pi, Dims: unit.Dimensions{unit.AngleDim: 1}}
	Metre       = &AxisUnit{Symbol: "m", Kind: UnitLinear, Scale: 1, Dims: unit.Meter}
	Kilometre   = &AxisUnit{Symbol: "km", Kind: UnitLinear, Scale: 1000, Dims: unit.Meter}
	Second      = &AxisUnit{Symbol: "s", Kind: UnitTemporal, Scale: 1, Dims: unit.Second}
	Minute      = &AxisUnit{Symbol: "min", Kind: UnitTemporal, Scale: 60, Dims: unit.Second}
	Hour        = &AxisUnit{Symbol: "h", Kind: UnitTemporal, Scale: 3600, Dims: unit.Second}
	Day         = &AxisUnit{Symbol: "day", Kind: UnitTemporal, Scale: 86400, Dims: unit.Second}
	PascalUnit  = &AxisUnit{Symbol: "Pa", Kind: UnitPressure, Scale: 1, Dims: unit.Pascal}
	Hectopascal = &AxisUnit{Symbol: "hPa", Kind: UnitPressure, Scale: 100, Dims: unit.Pascal}
	Pixel       = &AxisUnit{Symbol: "pixel", Kind: UnitDimensionless, Scale: 1, Dims: unit.Dimless}
	One         = &AxisUnit{Symbol: "1", Kind: UnitDimensionless, Scale: 1, Dims: unit.Dimless}
)

var unitTable = map[string]*AxisUnit{
	"degree": Degree, "degrees": Degree, "deg": Degree, "degs": Degree,
	"rad": Radian, "radian": Radian, "radians": Radian,
	"m": Metre, "meter": Metre, "meters": Metre, "metre": Metre, "metres": Metre,
	"km": Kilometre, "kilometer": Kilometre, "kilometers": Kilometre,
	"kilometre": Kilometre, "kilometres": Kilometre,
	"s": Second, "sec": Second, "secs": Second, "second": Second, "seconds": Second,
	"min": Minute, "minute": Minute, "minutes": Minute,
	"h": Hour, "hr": Hour, "hour": Hour, "hours": Hour,
	"d": Day, "day": Day, "days": Day,
	"pa": PascalUnit, "pascal": PascalUnit, "pascals": PascalUnit,
	"hpa": Hectopascal, "mb": Hectopascal, "mbar": Hectopascal,
	"millibar": Hectopascal, "millibars": Hectopascal,
	"pixel": Pixel, "pixels": Pixel,
	"1": One,
}

// ParseUnit interprets a unit attribute string. It returns nil if the
// string is empty or not recognized; missing units are routine in
// datasets and the caller substitutes per-axis defaults.
func ParseUnit(s string) *AxisUnit {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i := strings.Index(s, " since "); i > 0 {
		base := ParseUnit(s[:i])
		if base == nil || base.Kind != UnitTemporal {
			return nil
		}
		u := *base
		u.Symbol = s
		if epoch, err := parseEpoch(s[i+len(" since "):]); err == nil {
			u.Epoch = epoch
			u.HasEpoch = true
		}
		return &u
	}
	key := strings.ToLower(s)
	if u, ok := unitTable[key]; ok {
		return u
	}
	// Directional spellings such as "degrees_east" or "degrees N".
	if i := strings.IndexAny(key, "_ "); i > 0 {
		if u, ok := unitTable[key[:i]]; ok {
			return u
		}
	}
	return nil
}

// Convert converts a value from this unit to another. The units must
// have the same dimensionality.
func (u *AxisUnit) Convert(v float64, to *AxisUnit) (float64, error) {
	if u == nil || to == nil {
		return math.NaN(), fmt.Errorf("georef: cannot convert value with unknown unit")
	}
	if !u.Dims.Matches(to.Dims) {
		return math.NaN(), fmt.Errorf("georef: cannot convert %s to %s", u.Symbol, to.Symbol)
	}
	return v * u.Scale / to.Scale, nil
}

// Equal reports whether two units represent the same measurement scale.
// A nil unit is equal only to nil.
func (u *AxisUnit) Equal(o *AxisUnit) bool {
	if u == nil || o == nil {
		return u == o
	}
	return u.Kind == o.Kind && u.Scale == o.Scale
}

func (u *AxisUnit) IsAngular() bool  { return u != nil && u.Kind == UnitAngular }
func (u *AxisUnit) IsTemporal() bool { return u != nil && u.Kind == UnitTemporal }
func (u *AxisUnit) IsPressure() bool { return u != nil && u.Kind == UnitPressure }

func (u *AxisUnit) String() string {
	if u == nil {
		return "unknown"
	}
	return u.Symbol
}

// epochLayouts are the timestamp formats accepted after the "since"
// keyword of a temporal unit, most specific first.
var epochLayouts = []string{
	time.RFC3339,
	"2006-1-2T15:4:5",
	"2006-1-2 15:4:5 -0700",
	"2006-1-2 15:4:5 -07:00",
	"2006-1-2 15:4:5.999999999",
	"2006-1-2 15:4:5",
	"2006-1-2 15:4",
	"2006-1-2",
}

func parseEpoch(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("georef: cannot parse time origin %q", s)
}

// unitDirection extracts an axis direction embedded in a unit string
// such as "degrees_east" or "degrees N". A single letter is accepted
// only for E and N.
func unitDirection(s string) Direction {
	i := strings.IndexAny(s, "_ ")
	if i <= 0 || i+1 >= len(s) {
		return Unspecified
	}
	d := s[i+1:]
	if len(d) == 1 {
		switch d[0] {
		case 'E', 'e':
			return East
		case 'N', 'n':
			return North
		}
		return Unspecified
	}
	return parseDirection(d)
}
