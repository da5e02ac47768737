package match

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geomatch-cli/internal/table"
)

// coordTable builds a table with the given coordinates and an optional
// "name" column registered as both output and compare column.
func coordTable(t *testing.T, lat, lng []float64, names []string) *table.Table {
	t.Helper()
	tbl := table.New(0, len(lat))
	if names != nil {
		tbl.AddColumn("name", names)
		require.NoError(t, tbl.AddOutputColumn("name"))
		require.NoError(t, tbl.AddCompareColumn("name"))
	}
	tbl.SetCoords(lat, lng)
	return tbl
}

func TestHaversine_SymmetricAndZero(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(40.0, -75.0, 40.0, -75.0))

	ab := Haversine(40.0, -75.0, 41.5, -73.25)
	ba := Haversine(41.5, -73.25, 40.0, -75.0)
	assert.Equal(t, ab, ba)
	assert.Greater(t, ab, 0.0)
}

func TestHaversine_KnownDistance(t *testing.T) {
	// ~0.87 miles apart.
	d := Haversine(40.0, -75.0, 40.01, -75.01)
	assert.InDelta(t, 0.87, d, 0.02)
}

func TestFindBestMatch_SingleExact(t *testing.T) {
	src := coordTable(t, []float64{39.78}, []float64{-89.65}, nil)
	cand := coordTable(t, []float64{12.0, 39.78}, []float64{13.0, -89.65}, nil)

	engine := &Engine{Radius: 0.0001, Exclusive: true}
	c, ok := engine.FindBestMatch(src, 0, cand, make([]bool, 2))
	require.True(t, ok)
	assert.Equal(t, 1, c.Index)
	// Exact matches carry zero distance regardless of radius.
	assert.Equal(t, 0.0, c.Distance)
}

func TestFindBestMatch_NaNSourceNeverMatches(t *testing.T) {
	src := coordTable(t, []float64{math.NaN()}, []float64{-89.65}, nil)
	cand := coordTable(t, []float64{39.78}, []float64{-89.65}, nil)

	engine := &Engine{Radius: 100, Exclusive: true}
	_, ok := engine.FindBestMatch(src, 0, cand, make([]bool, 1))
	assert.False(t, ok)
}

func TestFindBestMatch_NaNCandidatesSkipped(t *testing.T) {
	src := coordTable(t, []float64{39.78}, []float64{-89.65}, nil)
	cand := coordTable(t, []float64{math.NaN(), 39.78}, []float64{-89.65, math.NaN()}, nil)

	engine := &Engine{Radius: 100, Exclusive: true}
	_, ok := engine.FindBestMatch(src, 0, cand, make([]bool, 2))
	assert.False(t, ok)
}

func TestFindBestMatch_FuzzyTieBreak(t *testing.T) {
	src := coordTable(t, []float64{39.78}, []float64{-89.65}, []string{"Apartment 4B Main Street"})
	cand := coordTable(t,
		[]float64{39.78, 39.78, 39.78},
		[]float64{-89.65, -89.65, -89.65},
		[]string{"Unit 12 Elm Street", "Main Street Apartment 4B", "Suite 9 Oak Avenue"},
	)

	engine := &Engine{Radius: 0.25, Exclusive: true}
	c, ok := engine.FindBestMatch(src, 0, cand, make([]bool, 3))
	require.True(t, ok)

	// Token-sort similarity ignores word order, so candidate 1 is identical.
	assert.Equal(t, 1, c.Index)
	assert.Equal(t, 0.0, c.Distance)
}

func TestFindBestMatch_TieBreakDeterministic(t *testing.T) {
	src := coordTable(t, []float64{39.78}, []float64{-89.65}, []string{"Main Street"})
	cand := coordTable(t,
		[]float64{39.78, 39.78},
		[]float64{-89.65, -89.65},
		[]string{"Elm Street", "Elm Street"},
	)

	engine := &Engine{Radius: 0.25, Exclusive: true}
	first, ok := engine.FindBestMatch(src, 0, cand, make([]bool, 2))
	require.True(t, ok)
	assert.Equal(t, 0.0, first.Distance)

	for i := 0; i < 10; i++ {
		c, ok := engine.FindBestMatch(src, 0, cand, make([]bool, 2))
		require.True(t, ok)
		assert.Equal(t, first.Index, c.Index)
	}
}

func TestFindBestMatch_RadiusBoundaryInclusive(t *testing.T) {
	src := coordTable(t, []float64{40.0}, []float64{-75.0}, nil)
	cand := coordTable(t, []float64{40.01}, []float64{-75.01}, nil)

	dist := Haversine(40.0, -75.0, 40.01, -75.01)

	// Exactly at the radius: match.
	engine := &Engine{Radius: dist, Exclusive: true}
	c, ok := engine.FindBestMatch(src, 0, cand, make([]bool, 1))
	require.True(t, ok)
	assert.Equal(t, 0, c.Index)
	assert.Equal(t, dist, c.Distance)

	// Radius shrunk below the distance: no match.
	engine.Radius = dist * 0.999
	_, ok = engine.FindBestMatch(src, 0, cand, make([]bool, 1))
	assert.False(t, ok)
}

func TestFindBestMatch_NearestOfMany(t *testing.T) {
	src := coordTable(t, []float64{40.0}, []float64{-75.0}, nil)
	cand := coordTable(t,
		[]float64{40.05, 40.001, 40.02},
		[]float64{-75.05, -75.001, -75.02},
		nil,
	)

	engine := &Engine{Radius: 10, Exclusive: true}
	c, ok := engine.FindBestMatch(src, 0, cand, make([]bool, 3))
	require.True(t, ok)
	assert.Equal(t, 1, c.Index)
	assert.InDelta(t, Haversine(40.0, -75.0, 40.001, -75.001), c.Distance, 1e-12)
}

func TestFindBestMatch_ExclusiveSkipsConsumed(t *testing.T) {
	src := coordTable(t, []float64{39.78}, []float64{-89.65}, nil)
	cand := coordTable(t, []float64{39.78}, []float64{-89.65}, nil)

	engine := &Engine{Radius: 0.25, Exclusive: true}
	_, ok := engine.FindBestMatch(src, 0, cand, []bool{true})
	assert.False(t, ok)

	// Non-exclusive ignores the mask.
	engine.Exclusive = false
	c, ok := engine.FindBestMatch(src, 0, cand, []bool{true})
	require.True(t, ok)
	assert.Equal(t, 0, c.Index)
}

func TestFindBestMatch_EmptyCandidates(t *testing.T) {
	src := coordTable(t, []float64{39.78}, []float64{-89.65}, nil)
	cand := coordTable(t, nil, nil, nil)

	engine := &Engine{Radius: 0.25, Exclusive: true}
	_, ok := engine.FindBestMatch(src, 0, cand, nil)
	assert.False(t, ok)
}
