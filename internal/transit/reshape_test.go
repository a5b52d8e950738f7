package transit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSegmentJSON = `[
	{
		"pathLocs": [
			{"lat": 37.8044, "lon": -122.2712},
			{"lat": 37.8050, "lon": -122.2700},
			{"lat": 37.8060, "lon": -122.2690}
		],
		"fromStop": "stop-1",
		"toStop": "stop-2",
		"avgSpeedMph": 12.5,
		"routeKey": "7"
	},
	{
		"pathLocs": [
			{"lat": 37.8060, "lon": -122.2690},
			{"lat": 37.8070, "lon": -122.2680}
		],
		"fromStop": "stop-2",
		"toStop": "stop-3",
		"avgSpeedMph": 18.0,
		"routeKey": "7"
	}
]`

func sampleSegments(t *testing.T) []PathSegment {
	t.Helper()
	segments, err := ParseSegments(json.RawMessage(sampleSegmentJSON))
	require.NoError(t, err)
	return segments
}

func TestParseSegments_DropsLinkedStops(t *testing.T) {
	segments := sampleSegments(t)
	require.Len(t, segments, 2)

	assert.Len(t, segments[0].PathLocs, 3)
	assert.NotContains(t, segments[0].Props, "fromStop")
	assert.NotContains(t, segments[0].Props, "toStop")
	assert.Equal(t, 12.5, segments[0].Props["avgSpeedMph"])
	assert.Equal(t, "7", segments[0].Props["routeKey"])
}

func TestSpeedMapSegments_UnwrapsEnvelope(t *testing.T) {
	enveloped := []byte(`{"success": true, "data": {"segments": ` + sampleSegmentJSON + `}}`)
	segments, err := SpeedMapSegments(enveloped)
	require.NoError(t, err)
	assert.Len(t, segments, 2)

	// A bare array still parses.
	segments, err = SpeedMapSegments([]byte(sampleSegmentJSON))
	require.NoError(t, err)
	assert.Len(t, segments, 2)
}

func TestFlattenSegments(t *testing.T) {
	flat, err := FlattenSegments(sampleSegments(t))
	require.NoError(t, err)
	require.Len(t, flat, 2)

	first := flat[0]
	assert.Equal(t, 37.8044, first.StartLat)
	assert.Equal(t, -122.2712, first.StartLon)
	assert.Equal(t, 37.8060, first.EndLat)
	assert.Equal(t, -122.2690, first.EndLon)
	assert.Equal(t, 12.5, first.Props["avgSpeedMph"])
	assert.NotEmpty(t, first.EncodedPath)
	assert.Greater(t, first.PathLengthMeters, 0.0)
}

func TestFlattenSegments_RejectsDegeneratePaths(t *testing.T) {
	_, err := FlattenSegments([]PathSegment{{PathLocs: []PathLocation{{Lat: 1, Lon: 2}}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path locations")
}

func TestSegmentsToGeoJSON(t *testing.T) {
	fc, err := SegmentsToGeoJSON(sampleSegments(t))
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	first := fc.Features[0]
	require.NotNil(t, first.Geometry)
	assert.True(t, first.Geometry.IsLineString())

	// The full ordered path, as (lon, lat) positions.
	require.Len(t, first.Geometry.LineString, 3)
	assert.Equal(t, []float64{-122.2712, 37.8044}, first.Geometry.LineString[0])

	// Properties carry the scalars plus the injected order index.
	assert.Equal(t, 0, first.Properties["order"])
	assert.Equal(t, 12.5, first.Properties["avgSpeedMph"])
	assert.NotContains(t, first.Properties, "fromStop")

	assert.Equal(t, 1, fc.Features[1].Properties["order"])
}

func TestWriteGeoJSON(t *testing.T) {
	fc, err := SegmentsToGeoJSON(sampleSegments(t))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "segments.geojson")
	require.NoError(t, WriteGeoJSON(fc, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "FeatureCollection", decoded["type"])
}

func TestWriteFlatCSV(t *testing.T) {
	flat, err := FlattenSegments(sampleSegments(t))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "segments.csv")
	require.NoError(t, WriteFlatCSV(flat, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "startLat,startLon,endLat,endLon,avgSpeedMph,routeKey,encodedPath,pathLengthMeters", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "37.8044,-122.2712,37.806,-122.269,12.5,7,"))
}
