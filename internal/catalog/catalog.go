// Package catalog loads geolocated markers from a GeoJSON FeatureCollection.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"

	"arlayout/internal/geomath"
)

// ErrNoMarkers is returned when a collection holds no Point features.
var ErrNoMarkers = errors.New("catalog contains no point features")

// Entry is one geolocated marker. Properties keeps the feature's
// properties for use as the marker payload.
type Entry struct {
	ID         string
	Name       string
	Coord      geomath.Coordinate
	Properties map[string]any
}

func Load(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a FeatureCollection. Non-point features are skipped. A
// feature without an id gets properties.id, or a random UUID.
func Parse(b []byte) ([]Entry, error) {
	var fc geom.GeoJSONFeatureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("decoding geojson: %w", err)
	}

	out := make([]Entry, 0, len(fc))
	seen := make(map[string]int, len(fc))
	for i, f := range fc {
		if f.Geometry.Type() != geom.TypePoint {
			continue
		}
		pt, _ := f.Geometry.AsPoint()
		c, ok := pt.Coordinates()
		if !ok {
			return nil, fmt.Errorf("feature %d: empty point", i)
		}
		// GeoJSON positions are lon, lat[, alt].
		coord := geomath.NewCoordinate(c.Y, c.X)
		if c.Type.Is3D() {
			coord = coord.WithAltitude(c.Z)
		}
		if !coord.Valid() {
			return nil, fmt.Errorf("feature %d: invalid coordinate (%v, %v)", i, c.X, c.Y)
		}

		id := featureID(f)
		if id == "" {
			id = uuid.NewString()
		}
		if j, dup := seen[id]; dup {
			return nil, fmt.Errorf("feature %d: id %q already used by feature %d", i, id, j)
		}
		seen[id] = i

		out = append(out, Entry{
			ID:         id,
			Name:       featureName(f.Properties),
			Coord:      coord,
			Properties: f.Properties,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoMarkers
	}
	return out, nil
}

func featureID(f geom.GeoJSONFeature) string {
	if id := idString(f.ID); id != "" {
		return id
	}
	return idString(f.Properties["id"])
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

func featureName(props map[string]any) string {
	for _, k := range []string{"name", "title"} {
		if s, ok := props[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
