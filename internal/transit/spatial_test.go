package transit

import (
	"testing"

	"corridorutils.mtcplanning.org/internal/utils"
	"github.com/stretchr/testify/assert"
)

func spatialTestSegments() []PathSegment {
	return []PathSegment{
		{PathLocs: []PathLocation{
			{Lat: 37.80, Lon: -122.27},
			{Lat: 37.81, Lon: -122.26},
		}},
		{PathLocs: []PathLocation{
			{Lat: 37.81, Lon: -122.26},
			{Lat: 37.82, Lon: -122.25},
		}},
		{PathLocs: []PathLocation{
			{Lat: 38.50, Lon: -121.50},
			{Lat: 38.51, Lon: -121.49},
		}},
	}
}

func TestSegmentIndex_IntersectingBounds(t *testing.T) {
	ix := NewSegmentIndex(spatialTestSegments())
	assert.Equal(t, 3, ix.Len())

	// Box around downtown Oakland catches the two adjacent segments only.
	bounds := utils.NewCoordinateBounds(37.79, -122.28)
	bounds.Extend(37.83, -122.24)
	assert.Equal(t, []int{0, 1}, ix.IntersectingBounds(bounds))

	// Box around Sacramento catches the outlier.
	bounds = utils.NewCoordinateBounds(38.49, -121.51)
	bounds.Extend(38.52, -121.48)
	assert.Equal(t, []int{2}, ix.IntersectingBounds(bounds))
}

func TestSegmentIndex_NoHitsAndEmptyPaths(t *testing.T) {
	segments := spatialTestSegments()
	segments = append(segments, PathSegment{}) // no path locations, not indexed

	ix := NewSegmentIndex(segments)
	assert.Equal(t, 3, ix.Len())

	bounds := utils.NewCoordinateBounds(40.0, -120.0)
	bounds.Extend(40.1, -119.9)
	assert.Empty(t, ix.IntersectingBounds(bounds))
}
