package transit

import (
	"sort"

	"github.com/tidwall/rtree"

	"corridorutils.mtcplanning.org/internal/utils"
)

// SegmentIndex is a spatial index over segment path bounding boxes, for
// picking the speed map segments that fall inside a study area.
type SegmentIndex struct {
	tree rtree.RTree
	size int
}

// NewSegmentIndex builds an index over the given segments. Segments without
// path locations are skipped.
func NewSegmentIndex(segments []PathSegment) *SegmentIndex {
	ix := &SegmentIndex{}
	for i, seg := range segments {
		if len(seg.PathLocs) == 0 {
			continue
		}
		bounds := utils.NewCoordinateBounds(seg.PathLocs[0].Lat, seg.PathLocs[0].Lon)
		for _, loc := range seg.PathLocs[1:] {
			bounds.Extend(loc.Lat, loc.Lon)
		}
		ix.tree.Insert(
			[2]float64{bounds.MinLon, bounds.MinLat},
			[2]float64{bounds.MaxLon, bounds.MaxLat},
			i,
		)
		ix.size++
	}
	return ix
}

// Len returns the number of indexed segments.
func (ix *SegmentIndex) Len() int {
	return ix.size
}

// IntersectingBounds returns the indexes of segments whose bounding boxes
// intersect the given bounds, in ascending segment order.
func (ix *SegmentIndex) IntersectingBounds(bounds utils.CoordinateBounds) []int {
	var hits []int
	ix.tree.Search(
		[2]float64{bounds.MinLon, bounds.MinLat},
		[2]float64{bounds.MaxLon, bounds.MaxLat},
		func(min, max [2]float64, data interface{}) bool {
			hits = append(hits, data.(int))
			return true
		},
	)
	sort.Ints(hits)
	return hits
}
