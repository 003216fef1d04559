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
	"io"
	"sort"
	"testing"
)

// testSource is an in-memory CoordinateSource for tests that do not
// need a netCDF file.
type testSource struct {
	name  string
	data  []float64
	attrs map[string]interface{}
	dims  []Dim
}

func (s *testSource) Name() string            { return s.name }
func (s *testSource) Read() ([]float64, error) { return s.data, nil }

func (s *testSource) UnitString() string { return s.AttributeString("units") }

func (s *testSource) Attribute(name string) interface{} {
	if s.attrs == nil {
		return nil
	}
	return s.attrs[name]
}

func (s *testSource) AttributeString(name string) string {
	if v, ok := s.Attribute(name).(string); ok {
		return v
	}
	return ""
}

func (s *testSource) Attributes() []string {
	names := make([]string, 0, len(s.attrs))
	for name := range s.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *testSource) GridDimensions() []Dim { return s.dims }

// mustAxis builds an axis from a testSource, failing the test on error.
func mustAxis(t *testing.T, src *testSource, abbrev rune, gridDims []int, gridSizes []int64) *Axis {
	t.Helper()
	var warn errCat
	a, err := newAxis(src, abbrev, src.AttributeString("positive"), gridDims, gridSizes, nil, &warn)
	if err != nil {
		t.Fatalf("newAxis(%s): %v", src.name, err)
	}
	return a
}

// memFile is an in-memory cdf.ReaderWriterAt.
type memFile struct {
	buf []byte
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	if need := off + int64(len(p)); need > int64(len(f.buf)) {
		grown := make([]byte, need)
		copy(grown, f.buf)
		f.buf = grown
	}
	return copy(f.buf[off:], p), nil
}
