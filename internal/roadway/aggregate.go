package roadway

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"corridorutils.mtcplanning.org/internal/models"
)

// OutputFormat selects the shape of the aggregated corridor table.
type OutputFormat string

const (
	// FormatLong emits one row per (corridor, date, time interval).
	FormatLong OutputFormat = "long"
	// FormatWide emits one row per (corridor, date) with one column per
	// time interval.
	FormatWide OutputFormat = "wide"
)

// WideMetric selects which metric fills the interval columns of a wide table.
type WideMetric string

const (
	MetricSpeed      WideMetric = "speed"
	MetricTravelTime WideMetric = "travel_time"
)

// AggregateOptions controls SegmentsToCorridor. OutDir and OutFile must both
// be set for the result to be persisted as CSV.
type AggregateOptions struct {
	Format     OutputFormat
	WideMetric WideMetric
	OutDir     string
	OutFile    string
}

// validate rejects bad format selections before any data is touched.
func (o AggregateOptions) validate() error {
	switch o.Format {
	case FormatLong:
		return nil
	case FormatWide:
		if o.WideMetric != MetricSpeed && o.WideMetric != MetricTravelTime {
			return fmt.Errorf("wide metric is %q, should be %q or %q", o.WideMetric, MetricSpeed, MetricTravelTime)
		}
		return nil
	default:
		return fmt.Errorf("output format is %q, should be %q or %q", o.Format, FormatLong, FormatWide)
	}
}

// WideRow is one (corridor, date) row of a wide table. Values maps time
// interval labels to the selected metric; intervals the corridor did not
// fully cover that date are absent.
type WideRow struct {
	Corridor  string
	Date      string
	DayOfWeek string
	Values    map[string]float64
}

// WideTable is the pivoted presentation: one column per distinct time
// interval present in the long-format equivalent.
type WideTable struct {
	Metric    WideMetric
	Intervals []string
	Rows      []WideRow
}

// CorridorTable is the aggregated output. Rows is always populated; Wide is
// populated only when the wide format was requested.
type CorridorTable struct {
	Format OutputFormat
	Rows   []models.CorridorInterval
	Wide   *WideTable
}

// SegmentsToCorridor aggregates the archive's segment-level travel times up
// to corridor level. Intervals with incomplete segment coverage are dropped
// entirely, never imputed. Speed is corridor length divided by total travel
// time, times 60. That is not a true per-segment harmonic mean, but the
// formula is kept as-is: downstream consumers depend on its numbers.
func (a *Archive) SegmentsToCorridor(opts AggregateOptions) (*CorridorTable, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	rows, err := a.aggregate()
	if err != nil {
		return nil, err
	}

	table := &CorridorTable{Format: opts.Format, Rows: rows}
	if opts.Format == FormatWide {
		table.Wide = pivot(rows, opts.WideMetric)
	}

	if opts.OutDir != "" && opts.OutFile != "" {
		if err := table.WriteCSV(filepath.Join(opts.OutDir, opts.OutFile)); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// NormalizeObservations parses and deduplicates the archive's raw
// observations. The trailing timezone offset of each timestamp is discarded,
// not interpreted: all timestamps are treated as already being in the
// report's configured local timezone. Rows sharing a (timestamp, segment id)
// pair collapse to the first seen, which drops the repeated hour at a
// daylight-saving fallback transition.
func (a *Archive) NormalizeObservations() ([]models.SegmentObservation, error) {
	type obsKey struct {
		ts    int64
		segID int64
	}
	seen := make(map[obsKey]bool, len(a.Observations))

	normalized := make([]models.SegmentObservation, 0, len(a.Observations))
	for i, obs := range a.Observations {
		ts, err := parseLocalDateTime(obs.DateTime)
		if err != nil {
			return nil, fmt.Errorf("data.csv row %d: %w", i+2, err)
		}

		key := obsKey{ts: ts.Unix(), segID: obs.SegmentID}
		if seen[key] {
			continue
		}
		seen[key] = true

		normalized = append(normalized, models.SegmentObservation{
			Corridor:          obs.Corridor,
			Timestamp:         ts,
			Date:              ts.Format("2006-01-02"),
			Interval:          ts.Format("15:04"),
			SegmentID:         obs.SegmentID,
			TravelTimeMinutes: obs.TravelTimeMinutes,
		})
	}
	return normalized, nil
}

// parseLocalDateTime parses a vendor timestamp string after discarding its
// trailing timezone offset (the final six characters, e.g. "-08:00").
func parseLocalDateTime(s string) (time.Time, error) {
	if len(s) <= 6 {
		return time.Time{}, fmt.Errorf("timestamp %q is too short to carry a timezone offset", s)
	}
	local := s[:len(s)-6]
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", s)
}

// corridorFacts is the per-corridor reference data derived from the report
// contents and segment metadata.
type corridorFacts struct {
	lengthMiles  float64
	segmentCount int
}

func (a *Archive) corridorFacts() map[string]corridorFacts {
	facts := make(map[string]corridorFacts, len(a.Contents.Corridors))
	for _, corridor := range a.Contents.Corridors {
		var length float64
		for _, segID := range corridor.SegmentIDs {
			if meta, ok := a.Metadata[segID]; ok {
				length += meta.LengthMiles
			}
		}
		facts[corridor.Name] = corridorFacts{
			lengthMiles:  length,
			segmentCount: len(corridor.SegmentIDs),
		}
	}
	return facts
}

func (a *Archive) aggregate() ([]models.CorridorInterval, error) {
	normalized, err := a.NormalizeObservations()
	if err != nil {
		return nil, err
	}
	facts := a.corridorFacts()

	type groupKey struct {
		corridor string
		date     string
		interval string
	}
	type group struct {
		travelTime float64
		observed   int
	}
	groups := make(map[groupKey]*group)
	for _, obs := range normalized {
		key := groupKey{corridor: obs.Corridor, date: obs.Date, interval: obs.Interval}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.travelTime += obs.TravelTimeMinutes
		g.observed++
	}

	var rows []models.CorridorInterval
	for key, g := range groups {
		f, known := facts[key.corridor]
		// Coverage filter: an interval missing even one configured segment's
		// observation is excluded entirely. Corridors absent from the report
		// contents have no expected count and are excluded the same way.
		if !known || g.observed != f.segmentCount {
			continue
		}

		rows = append(rows, models.CorridorInterval{
			Corridor:            key.corridor,
			Date:                key.date,
			DayOfWeek:           dayOfWeek(key.date),
			Interval:            key.interval,
			TravelTimeMinutes:   g.travelTime,
			SpeedMPH:            f.lengthMiles / g.travelTime * 60,
			CorridorLengthMiles: f.lengthMiles,
			SegmentCount:        f.segmentCount,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Corridor != rows[j].Corridor {
			return rows[i].Corridor < rows[j].Corridor
		}
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Interval < rows[j].Interval
	})
	return rows, nil
}

func dayOfWeek(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return t.Weekday().String()
}

// pivot reshapes long rows into one row per (corridor, date) with one column
// per distinct time interval.
func pivot(rows []models.CorridorInterval, metric WideMetric) *WideTable {
	intervalSet := make(map[string]bool)
	type rowKey struct {
		corridor string
		date     string
	}
	wide := make(map[rowKey]*WideRow)
	var order []rowKey

	for _, row := range rows {
		intervalSet[row.Interval] = true
		key := rowKey{corridor: row.Corridor, date: row.Date}
		w, ok := wide[key]
		if !ok {
			w = &WideRow{
				Corridor:  row.Corridor,
				Date:      row.Date,
				DayOfWeek: row.DayOfWeek,
				Values:    make(map[string]float64),
			}
			wide[key] = w
			order = append(order, key)
		}
		switch metric {
		case MetricTravelTime:
			w.Values[row.Interval] = row.TravelTimeMinutes
		default:
			w.Values[row.Interval] = row.SpeedMPH
		}
	}

	intervals := make([]string, 0, len(intervalSet))
	for interval := range intervalSet {
		intervals = append(intervals, interval)
	}
	sort.Strings(intervals)

	table := &WideTable{Metric: metric, Intervals: intervals}
	for _, key := range order {
		table.Rows = append(table.Rows, *wide[key])
	}
	return table
}

// WriteCSV writes the table as delimited text to path, in the shape selected
// when it was aggregated.
func (t *CorridorTable) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if t.Format == FormatWide {
		if err := writeWideCSV(w, t.Wide); err != nil {
			return err
		}
	} else {
		if err := writeLongCSV(w, t.Rows); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeLongCSV(w *csv.Writer, rows []models.CorridorInterval) error {
	header := []string{
		"Corridor/Region Name", "Date", "Day of Week", "Time Interval",
		"Speed(miles/hour)", "Travel Time(Minutes)",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("unable to write output header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Corridor, row.Date, row.DayOfWeek, row.Interval,
			formatMetric(row.SpeedMPH), formatMetric(row.TravelTimeMinutes),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("unable to write output row: %w", err)
		}
	}
	return nil
}

func writeWideCSV(w *csv.Writer, table *WideTable) error {
	header := append([]string{"Corridor/Region Name", "Date", "Day of Week"}, table.Intervals...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("unable to write output header: %w", err)
	}
	for _, row := range table.Rows {
		record := []string{row.Corridor, row.Date, row.DayOfWeek}
		for _, interval := range table.Intervals {
			if v, ok := row.Values[interval]; ok {
				record = append(record, formatMetric(v))
			} else {
				record = append(record, "")
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("unable to write output row: %w", err)
		}
	}
	return nil
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
