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
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ctessum/requestcache"

	"github.com/spatialmodel/georef/internal/hash"
)

// GridCacheKey identifies a localization grid within one dataset by the
// identity of its coordinate sources. Identity comparison is cheap and
// sufficient inside a dataset, where the same coordinate variables are
// shared by all grids using them.
type GridCacheKey struct {
	Width, Height int
	X, Y          CoordinateSource
}

// GridCacheValue is the outcome of a localization grid fit: the grid
// transform, and the projected system targeted by a linearizer if one
// was applied.
type GridCacheValue struct {
	gridToCRS           Transform
	linearizationTarget *ReferenceSystem
	linearizerName      string
}

// GridToCRS returns the fitted two-dimensional transform.
func (v *GridCacheValue) GridToCRS() Transform { return v.gridToCRS }

// LinearizationTarget returns the projected system the transform
// targets instead of geographic coordinates, or nil if the control
// points were kept as-is.
func (v *GridCacheValue) LinearizationTarget() *ReferenceSystem { return v.linearizationTarget }

// LinearizerName returns the name of the linearizer whose projection
// was applied to the control points, or "" when none improved on them.
func (v *GridCacheValue) LinearizerName() string { return v.linearizerName }

func (d *Dataset) cachedGrid(k GridCacheKey) *GridCacheValue {
	d.localMu.Lock()
	defer d.localMu.Unlock()
	return d.localGrids[k]
}

// publishGrid stores a fitted grid under the given key, unless another
// value was published concurrently, in which case the first published
// value wins and the given one is discarded.
func (d *Dataset) publishGrid(k GridCacheKey, v *GridCacheValue) *GridCacheValue {
	d.localMu.Lock()
	defer d.localMu.Unlock()
	if d.localGrids == nil {
		d.localGrids = make(map[GridCacheKey]*GridCacheValue)
	}
	if existing, ok := d.localGrids[k]; ok {
		return existing
	}
	d.localGrids[k] = v
	return v
}

// gridFitRequest carries everything needed to fit a localization grid,
// detached from the dataset it came from, so that results can be shared
// across datasets holding the same coordinate arrays.
type gridFitRequest struct {
	Width, Height      int
	X, Y               []float64
	XPeriod, YPeriod   float64
	XSlowDim, YSlowDim int
	XIsEast            bool
	Linearizers        []Linearizer
}

// key fingerprints the request content. Computing it requires hashing
// all coordinate values, which is why the identity-based dataset cache
// is consulted first.
func (r *gridFitRequest) key() string {
	names := make([]string, len(r.Linearizers))
	for i, lin := range r.Linearizers {
		names[i] = lin.Name
	}
	meta := struct {
		Width, Height      int
		XPeriod, YPeriod   float64
		XSlowDim, YSlowDim int
		XIsEast            bool
		Linearizers        []string
	}{r.Width, r.Height, r.XPeriod, r.YPeriod, r.XSlowDim, r.YSlowDim, r.XIsEast, names}
	return fmt.Sprintf("georefgrid_%s_%s_%s", hash.Vector(r.X), hash.Vector(r.Y), hash.Hash(meta))
}

var gridFits struct {
	once  sync.Once
	cache *requestcache.Cache
}

// fitGridGlobal runs a fit through the global cache: concurrent
// requests for the same key share a single computation, successful
// results are kept in memory across datasets, and failures are not
// cached so a later request retries the fit.
func fitGridGlobal(req *gridFitRequest) (*GridCacheValue, error) {
	gridFits.once.Do(func() {
		gridFits.cache = requestcache.NewCache(
			func(ctx context.Context, payload interface{}) (interface{}, error) {
				return fitGrid(payload.(*gridFitRequest))
			},
			runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(),
			requestcache.Memory(200),
		)
	})
	result, err := gridFits.cache.NewRequest(context.Background(), req, req.key()).Result()
	if err != nil {
		return nil, err
	}
	return result.(*GridCacheValue), nil
}
