package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "cafe", "geometry": {"type": "Point", "coordinates": [-122.3, 47.6]}, "properties": {"name": "Cafe"}},
    {"type": "Feature", "id": 7, "geometry": {"type": "Point", "coordinates": [-122.31, 47.61, 35.5]}, "properties": {"title": "Tower"}},
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]}, "properties": {}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-122.32, 47.62]}, "properties": {"id": "bench"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-122.33, 47.63]}, "properties": {"kind": "unnamed"}}
  ]
}`

func TestParse(t *testing.T) {
	entries, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "cafe", entries[0].ID)
	assert.Equal(t, "Cafe", entries[0].Name)
	assert.InDelta(t, 47.6, entries[0].Coord.LatDeg, 1e-12)
	assert.InDelta(t, -122.3, entries[0].Coord.LonDeg, 1e-12)
	assert.False(t, entries[0].Coord.HasAlt)

	assert.Equal(t, "7", entries[1].ID)
	assert.Equal(t, "Tower", entries[1].Name)
	assert.True(t, entries[1].Coord.HasAlt)
	assert.InDelta(t, 35.5, entries[1].Coord.AltM, 1e-12)

	assert.Equal(t, "bench", entries[2].ID)

	_, err = uuid.Parse(entries[3].ID)
	assert.NoError(t, err, "generated id should be a uuid")
	assert.Equal(t, "unnamed", entries[3].Properties["kind"])
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"NotJSON", `{`},
		{"BadLatitude", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[0, 95]},"properties":{}}]}`},
		{"DuplicateID", `{"type":"FeatureCollection","features":[
			{"type":"Feature","id":"a","geometry":{"type":"Point","coordinates":[0, 0]},"properties":{}},
			{"type":"Feature","id":"a","geometry":{"type":"Point","coordinates":[1, 1]},"properties":{}}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.in))
			assert.Error(t, err)
		})
	}
}

func TestParse_NoPoints(t *testing.T) {
	_, err := Parse([]byte(`{"type":"FeatureCollection","features":[]}`))
	assert.True(t, errors.Is(err, ErrNoMarkers), "err=%v", err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	entries, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}
