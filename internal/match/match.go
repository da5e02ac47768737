// Package match finds, for a coordinate-bearing row, the best unused
// candidate row in another table: exact coordinate matches first, fuzzy
// text tie-break among exact duplicates, then nearest-by-distance within a
// configured radius.
package match

import (
	"math"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/sells-group/geomatch-cli/internal/table"
)

// earthRadiusMiles is the Earth radius used for haversine distances.
const earthRadiusMiles = 3958.8

// Candidate is the result of a single match lookup. Distance is 0 for
// exact and fuzzy-resolved matches, otherwise the haversine distance in
// the same unit as the configured radius.
type Candidate struct {
	Index    int
	Distance float64
}

// Engine holds the matching configuration.
type Engine struct {
	// Radius is the maximum haversine distance, in miles, for a non-exact
	// candidate to count as a match. The boundary is inclusive.
	Radius float64

	// Exclusive excludes candidate rows already consumed by a prior match.
	Exclusive bool
}

// FindBestMatch returns the best candidate row in cand for the given source
// row, or ok=false when no candidate qualifies. written marks candidate rows
// already consumed; it is only consulted when the engine is exclusive.
//
// Unresolved (NaN-coordinate) source rows never match. An absent match is a
// normal outcome, not an error.
func (e *Engine) FindBestMatch(src *table.Table, row int, cand *table.Table, written []bool) (Candidate, bool) {
	lat := src.Lat[row]
	lng := src.Lng[row]
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return Candidate{}, false
	}

	// One scan: collect bit-exact coordinate matches, and track the nearest
	// non-exact candidate by a cheap planar squared-distance proxy. The
	// proxy only ranks candidates; the reported distance is always geodesic.
	var exact []int
	nearest := -1
	nearestProxy := 0.0

	for i := 0; i < cand.Rows(); i++ {
		if e.Exclusive && written[i] {
			continue
		}
		candLat := cand.Lat[i]
		candLng := cand.Lng[i]
		if math.IsNaN(candLat) || math.IsNaN(candLng) {
			continue
		}

		if lat == candLat && lng == candLng {
			exact = append(exact, i)
			continue
		}
		if len(exact) != 0 {
			continue
		}

		proxy := (candLat-lat)*(candLat-lat) + (candLng-lng)*(candLng-lng)
		if nearest == -1 || proxy < nearestProxy {
			nearest = i
			nearestProxy = proxy
		}
	}

	if len(exact) == 1 {
		return Candidate{Index: exact[0], Distance: 0}, true
	}

	// Multiple rows at the identical coordinate are typically distinct
	// entities (multi-unit buildings) distinguishable only by text.
	if len(exact) > 1 {
		return Candidate{Index: breakTie(src.CompareRow(row), exact, cand), Distance: 0}, true
	}

	if nearest == -1 {
		return Candidate{}, false
	}

	dist := Haversine(lat, lng, cand.Lat[nearest], cand.Lng[nearest])
	if dist > e.Radius {
		return Candidate{}, false
	}
	return Candidate{Index: nearest, Distance: dist}, true
}

// breakTie picks the exact-coordinate candidate whose compare columns are
// textually closest to the source's. Per candidate compare value, take the
// minimum dissimilarity (100 - token-sort ratio) against all source compare
// values, square it, and accumulate; the smallest total wins. The first
// candidate wins score ties, so the result is deterministic.
func breakTie(srcCompare []string, exact []int, cand *table.Table) int {
	best := exact[0]
	bestScore := -1

	for _, index := range exact {
		score := 0
		for _, candValue := range cand.CompareRow(index) {
			minDist := -1
			for _, srcValue := range srcCompare {
				dist := 100 - fuzzy.TokenSortRatio(srcValue, candValue)
				if minDist == -1 || dist < minDist {
					minDist = dist
				}
			}
			if minDist != -1 {
				score += minDist * minDist
			}
		}
		if bestScore == -1 || score < bestScore {
			best = index
			bestScore = score
		}
	}
	return best
}

// Haversine returns the great-circle distance in miles between two
// latitude/longitude points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	deltaLat := toRadians(lat2 - lat1)
	deltaLng := toRadians(lng2 - lng1)

	a := math.Pow(math.Sin(deltaLat*0.5), 2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Pow(math.Sin(deltaLng*0.5), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
