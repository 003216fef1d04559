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
	"strings"

	"github.com/sirupsen/logrus"
)

// The errCat type and methods collect recoverable errors while a grid
// geometry is being constructed. Errors with duplicate messages are
// ignored, so a failure that recurs on every axis is reported once.
type errCat struct {
	str string
}

func (e *errCat) add(err error) {
	if err != nil && strings.Index(e.str, err.Error()) == -1 {
		e.str += err.Error() + "\n"
	}
}

func (e *errCat) addf(format string, args ...interface{}) {
	e.add(fmt.Errorf(format, args...))
}

func (e *errCat) convert() error {
	if e.str != "" {
		return fmt.Errorf("%s", e.str)
	}
	return nil
}

// flush logs the accumulated warnings and resets the accumulator.
func (e *errCat) flush(log logrus.FieldLogger, fields logrus.Fields) {
	if e.str == "" || log == nil {
		return
	}
	l := log
	if fields != nil {
		l = log.WithFields(fields)
	}
	for _, msg := range strings.Split(strings.TrimRight(e.str, "\n"), "\n") {
		l.Warn(msg)
	}
	e.str = ""
}

// OverflowError indicates that a grid size, or a product of grid sizes,
// exceeds the positive range of a 32-bit cell count. It aborts geometry
// construction for the offending variable instead of silently truncating.
type OverflowError struct {
	Op string // description of the computation that overflowed
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("georef: %s overflows the 32-bit cell count range", e.Op)
}

// LocalizationGridError is returned when a numerical fit of a
// localization grid fails. PotentialCause, when non-empty, names the
// structural problem suspected by the linearizer that most likely
// caused the failure (for example a grid spanning more than 180° of
// longitude).
type LocalizationGridError struct {
	Err            error
	PotentialCause string
}

func (e *LocalizationGridError) Error() string {
	if e.PotentialCause != "" {
		return fmt.Sprintf("georef: localization grid: %v (potential cause: %s)", e.Err, e.PotentialCause)
	}
	return fmt.Sprintf("georef: localization grid: %v", e.Err)
}

// Count is an unsigned 32-bit cell count with an explicit overflow flag.
// Datasets declare dimension lengths as unsigned values, but most grid
// arithmetic here only supports the signed range; a Count past that
// range is carried with Overflow set so it can surface as an
// OverflowError at the point of use instead of being reinterpreted.
type Count struct {
	N        uint32
	Overflow bool
}

func countOf(n int64) Count {
	if n < 0 || n > maxCellCount {
		return Count{Overflow: true}
	}
	return Count{N: uint32(n)}
}

const maxCellCount = 1<<31 - 1

// mul multiplies two counts. Overflow is sticky: once set, it
// propagates through further arithmetic.
func (c Count) mul(o Count) Count {
	if c.Overflow || o.Overflow {
		return Count{Overflow: true}
	}
	if p := uint64(c.N) * uint64(o.N); p <= maxCellCount {
		return Count{N: uint32(p)}
	}
	return Count{Overflow: true}
}

// Int returns the count as a signed int, or an OverflowError if the
// value is outside the signed 32-bit range.
func (c Count) Int() (int, error) {
	if c.Overflow {
		return 0, &OverflowError{Op: "grid dimension size"}
	}
	return int(c.N), nil
}
