// Package models contains the domain types shared across the corridor
// utilities: corridor definitions, segment observations, and the aggregate
// rows produced by the corridor aggregator.
package models

import "time"

// Corridor is a named collection of roadway segments treated as one unit for
// travel time and speed reporting. The JSON field names match the vendor's
// report definition, so the same struct round-trips through report requests
// and the reportContents.json echoed back in downloaded archives.
type Corridor struct {
	Name       string  `json:"name" yaml:"name" validate:"required"`
	Direction  string  `json:"direction" yaml:"direction" validate:"required,oneof=N S E W"`
	SegmentIDs []int64 `json:"xdSegIds" yaml:"xdSegIds" validate:"min=1"`
}

// SegmentObservation is one vendor-reported travel time for one segment in
// one time interval, after timestamp normalization.
type SegmentObservation struct {
	Corridor          string
	Timestamp         time.Time
	Date              string // YYYY-MM-DD, derived from Timestamp
	Interval          string // HH:MM, derived from Timestamp
	SegmentID         int64
	TravelTimeMinutes float64
}

// SegmentMeta is the static reference data for one segment.
type SegmentMeta struct {
	SegmentID   int64
	LengthMiles float64
}

// CorridorInterval is one corridor-level aggregate for one (corridor, date,
// time interval) group with full segment coverage.
type CorridorInterval struct {
	Corridor            string
	Date                string
	DayOfWeek           string
	Interval            string
	TravelTimeMinutes   float64
	SpeedMPH            float64
	CorridorLengthMiles float64
	SegmentCount        int
}
