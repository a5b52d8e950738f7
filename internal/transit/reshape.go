package transit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	geojson "github.com/paulmach/go.geojson"
	polyline "github.com/twpayne/go-polyline"

	"corridorutils.mtcplanning.org/internal/utils"
)

// PathLocation is one point along a segment's path.
type PathLocation struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PathSegment is one speed map segment: an ordered path plus arbitrary
// scalar properties. The vendor's linked-stop references are dropped on
// decode; they are internal identifiers with no analytical use here.
type PathSegment struct {
	PathLocs []PathLocation
	Props    map[string]any
}

// UnmarshalJSON decodes a vendor segment object, splitting the path from the
// remaining scalar properties.
func (s *PathSegment) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if locs, ok := raw["pathLocs"]; ok {
		if err := json.Unmarshal(locs, &s.PathLocs); err != nil {
			return fmt.Errorf("unable to parse pathLocs: %w", err)
		}
	}
	delete(raw, "pathLocs")
	delete(raw, "fromStop")
	delete(raw, "toStop")

	s.Props = make(map[string]any, len(raw))
	for key, value := range raw {
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return fmt.Errorf("unable to parse property %q: %w", key, err)
		}
		s.Props[key] = v
	}
	return nil
}

// ParseSegments decodes a vendor segment list.
func ParseSegments(data json.RawMessage) ([]PathSegment, error) {
	var segments []PathSegment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("unable to parse segment list: %w", err)
	}
	return segments, nil
}

// SpeedMapSegments extracts the high resolution segment list from a speed
// map response. It accepts either a bare segment array or the vendor's
// response envelope with the segments nested under data.
func SpeedMapSegments(raw json.RawMessage) ([]PathSegment, error) {
	var envelope struct {
		Data struct {
			Segments json.RawMessage `json:"segments"`
		} `json:"data"`
		Segments json.RawMessage `json:"segments"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Data.Segments != nil {
			return ParseSegments(envelope.Data.Segments)
		}
		if envelope.Segments != nil {
			return ParseSegments(envelope.Segments)
		}
	}
	return ParseSegments(raw)
}

// FlatSegment is one row of the flat table: the segment's start and end
// coordinates, its encoded full path, and its scalar properties.
type FlatSegment struct {
	StartLat         float64
	StartLon         float64
	EndLat           float64
	EndLon           float64
	EncodedPath      string
	PathLengthMeters float64
	Props            map[string]any
}

// FlattenSegments reshapes segments into flat rows. The start and end
// coordinates come from the first and last path locations; the full path is
// kept as an encoded polyline and as a summed length in meters.
func FlattenSegments(segments []PathSegment) ([]FlatSegment, error) {
	flat := make([]FlatSegment, 0, len(segments))
	for i, seg := range segments {
		if len(seg.PathLocs) < 2 {
			return nil, fmt.Errorf("segment %d has %d path locations, need at least 2", i, len(seg.PathLocs))
		}

		coords := make([][]float64, len(seg.PathLocs))
		var length float64
		for j, loc := range seg.PathLocs {
			coords[j] = []float64{loc.Lat, loc.Lon}
			if j > 0 {
				prev := seg.PathLocs[j-1]
				length += utils.Distance(prev.Lat, prev.Lon, loc.Lat, loc.Lon)
			}
		}

		start := seg.PathLocs[0]
		end := seg.PathLocs[len(seg.PathLocs)-1]
		flat = append(flat, FlatSegment{
			StartLat:         start.Lat,
			StartLon:         start.Lon,
			EndLat:           end.Lat,
			EndLon:           end.Lon,
			EncodedPath:      string(polyline.EncodeCoords(coords)),
			PathLengthMeters: length,
			Props:            seg.Props,
		})
	}
	return flat, nil
}

// SegmentsToGeoJSON reshapes segments into a feature collection where each
// segment becomes a line feature over its full ordered path, with its scalar
// properties plus an injected zero-based order index.
func SegmentsToGeoJSON(segments []PathSegment) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for i, seg := range segments {
		if len(seg.PathLocs) == 0 {
			return nil, fmt.Errorf("segment %d has no path locations", i)
		}

		coords := make([][]float64, len(seg.PathLocs))
		for j, loc := range seg.PathLocs {
			// GeoJSON positions are (longitude, latitude).
			coords[j] = []float64{loc.Lon, loc.Lat}
		}

		feature := geojson.NewLineStringFeature(coords)
		for key, value := range seg.Props {
			feature.SetProperty(key, value)
		}
		feature.SetProperty("order", i)
		fc.AddFeature(feature)
	}
	return fc, nil
}

// WriteGeoJSON writes the feature collection as a GeoJSON document to path.
func WriteGeoJSON(fc *geojson.FeatureCollection, path string) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode feature collection: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("unable to write GeoJSON file %s: %w", path, err)
	}
	return nil
}

// WriteFlatCSV writes flat segments as delimited text to path. Property
// columns are the sorted union of all segment property keys.
func WriteFlatCSV(segments []FlatSegment, path string) error {
	keySet := make(map[string]bool)
	for _, seg := range segments {
		for key := range seg.Props {
			keySet[key] = true
		}
	}
	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	header := append([]string{"startLat", "startLon", "endLat", "endLon"}, keys...)
	header = append(header, "encodedPath", "pathLengthMeters")
	if err := w.Write(header); err != nil {
		return fmt.Errorf("unable to write output header: %w", err)
	}

	for _, seg := range segments {
		record := []string{
			formatCoord(seg.StartLat), formatCoord(seg.StartLon),
			formatCoord(seg.EndLat), formatCoord(seg.EndLon),
		}
		for _, key := range keys {
			if value, ok := seg.Props[key]; ok {
				record = append(record, fmt.Sprint(value))
			} else {
				record = append(record, "")
			}
		}
		record = append(record, seg.EncodedPath, strconv.FormatFloat(seg.PathLengthMeters, 'f', 1, 64))
		if err := w.Write(record); err != nil {
			return fmt.Errorf("unable to write output row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
