// Package volume reshapes compiled traffic volume reports from their
// spreadsheet layout (one row per date per lane, one column per hour of the
// day) into a long tabular format suitable for visualization tools, with
// optional aggregation across lanes and/or hours.
package volume

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"corridorutils.mtcplanning.org/internal/logging"
)

// hourColumns are the 24 fixed hour-range columns of a compiled traffic
// volume report, in day order. Each label is the HHMM start and end of a
// one-hour bucket.
var hourColumns = []string{
	"0000-0100", "0100-0200", "0200-0300", "0300-0400",
	"0400-0500", "0500-0600", "0600-0700", "0700-0800",
	"0800-0900", "0900-1000", "1000-1100", "1100-1200",
	"1200-1300", "1300-1400", "1400-1500", "1500-1600",
	"1600-1700", "1700-1800", "1800-1900", "1900-2000",
	"2000-2100", "2100-2200", "2200-2300", "2300-2400",
}

// maxKnownColumns is the number of columns a well-formed report has: date,
// day label, lane id, and the 24 hour ranges, plus two spreadsheet totals.
// Some source files carry extra trailing columns; they are dropped.
const maxKnownColumns = 29

// Mode is the aggregation mode of a reshape, derived from the two
// independent sum toggles and dispatched exactly once.
type Mode int

const (
	// HourlyByLane keeps one row per hour per lane (no aggregation).
	HourlyByLane Mode = iota
	// HourlyTotal sums lanes together: one row per hour.
	HourlyTotal
	// DailyByLane sums hours together: one row per day per lane.
	DailyByLane
	// DailyTotal sums lanes and hours together: one row per day.
	DailyTotal
)

func (m Mode) String() string {
	switch m {
	case HourlyTotal:
		return "hourly_total"
	case DailyByLane:
		return "daily_by_lane"
	case DailyTotal:
		return "daily_total"
	default:
		return "hourly_by_lane"
	}
}

// ModeFor maps the two aggregation toggles onto a Mode.
func ModeFor(sumLanes, sumHours bool) Mode {
	switch {
	case sumLanes && sumHours:
		return DailyTotal
	case sumLanes:
		return HourlyTotal
	case sumHours:
		return DailyByLane
	default:
		return HourlyByLane
	}
}

// Options controls a reshape operation. When both OutDir and OutFile are set
// the result is also written as CSV; otherwise the reshape has no side
// effects.
type Options struct {
	SumLanes bool
	SumHours bool
	OutDir   string
	OutFile  string
}

// Row is one output row. Which fields are populated depends on the Mode:
// Timestamp for hourly modes, Date for daily modes, Lane for per-lane modes,
// Source for combined multi-report results.
type Row struct {
	Timestamp time.Time
	Date      string
	Lane      string
	Volume    float64
	Source    string
}

// Result is a reshaped volume report.
type Result struct {
	Mode Mode
	Rows []Row

	// combined is true when rows carry a Source label from CombineReports.
	combined bool
}

// TotalVolume returns the sum of all row volumes. Aggregation must conserve
// this total across modes.
func (r *Result) TotalVolume() float64 {
	var total float64
	for _, row := range r.Rows {
		total += row.Volume
	}
	return total
}

// ReshapeReport reads the compiled traffic volume report CSV at path and
// reshapes it into long format per opts.
func ReshapeReport(path string, opts Options) (*Result, error) {
	records, err := readReport(path)
	if err != nil {
		return nil, err
	}

	melted, err := melt(records)
	if err != nil {
		return nil, fmt.Errorf("reshaping %s: %w", path, err)
	}

	result := aggregate(melted, ModeFor(opts.SumLanes, opts.SumHours))

	if err := maybeWriteCSV(result, opts); err != nil {
		return nil, err
	}
	return result, nil
}

// CombineReports applies ReshapeReport to each labeled source file, tags each
// row with its label, and concatenates the results into one table. Any
// individual load failure aborts the whole combine.
func CombineReports(sources map[string]string, opts Options) (*Result, error) {
	logger := slog.Default().With(slog.String("component", "volume_reshaper"))

	// Deterministic processing order regardless of map iteration.
	labels := make([]string, 0, len(sources))
	for label := range sources {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	combined := &Result{Mode: ModeFor(opts.SumLanes, opts.SumHours), combined: true}
	for _, label := range labels {
		logging.LogOperation(logger, "processing_volume_report",
			slog.String("source", label))

		perSource := Options{SumLanes: opts.SumLanes, SumHours: opts.SumHours}
		result, err := ReshapeReport(sources[label], perSource)
		if err != nil {
			return nil, fmt.Errorf("combining volume report %q: %w", label, err)
		}
		for _, row := range result.Rows {
			row.Source = label
			combined.Rows = append(combined.Rows, row)
		}
	}

	if err := maybeWriteCSV(combined, opts); err != nil {
		return nil, err
	}
	return combined, nil
}

// meltedRow is one (timestamp, lane, volume) observation before aggregation.
type meltedRow struct {
	timestamp time.Time
	lane      string
	volume    float64
}

func readReport(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open volume report: %w", err)
	}
	defer logging.SafeCloseWithLogging(f,
		slog.Default().With(slog.String("component", "volume_reshaper")),
		"volume_report_file")

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to read volume report %s: %w", path, err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("volume report %s is empty", path)
	}
	return records, nil
}

// melt turns the wide per-lane per-day table into one row per hour per lane.
// Rows with a missing date are dropped; columns beyond the known set are
// ignored.
func melt(records [][]string) ([]meltedRow, error) {
	header := records[0]
	if len(header) > maxKnownColumns {
		header = header[:maxKnownColumns]
	}

	dateCol, err := columnIndex(header, "Date")
	if err != nil {
		return nil, err
	}
	laneCol, err := columnIndex(header, "Lane ID")
	if err != nil {
		return nil, err
	}
	hourCols := make(map[string]int, len(hourColumns))
	for _, label := range hourColumns {
		idx, err := columnIndex(header, label)
		if err != nil {
			return nil, err
		}
		hourCols[label] = idx
	}

	var melted []meltedRow
	for i, record := range records[1:] {
		if len(record) > maxKnownColumns {
			record = record[:maxKnownColumns]
		}
		if dateCol >= len(record) || strings.TrimSpace(record[dateCol]) == "" {
			continue
		}

		date, err := parseReportDate(record[dateCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		lane := strings.TrimSpace(record[laneCol])

		for _, hourLabel := range hourColumns {
			idx := hourCols[hourLabel]
			var raw string
			if idx < len(record) {
				raw = strings.TrimSpace(record[idx])
			}
			vol, err := parseVolume(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %q: %w", i+2, hourLabel, err)
			}

			ts, err := hourStart(date, hourLabel)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
			melted = append(melted, meltedRow{timestamp: ts, lane: lane, volume: vol})
		}
	}
	return melted, nil
}

// hourStart combines a date with the start of an hour-range label. Midnight
// stays on its own date: "0000-0100" on day D sorts after D-1's "2300-2400"
// and before D's "0100-0200".
func hourStart(date time.Time, hourLabel string) (time.Time, error) {
	if len(hourLabel) < 4 {
		return time.Time{}, fmt.Errorf("malformed hour range label %q", hourLabel)
	}
	hour, err := strconv.Atoi(hourLabel[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed hour range label %q", hourLabel)
	}
	minute, err := strconv.Atoi(hourLabel[2:4])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed hour range label %q", hourLabel)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, time.UTC), nil
}

func aggregate(melted []meltedRow, mode Mode) *Result {
	result := &Result{Mode: mode}

	switch mode {
	case HourlyByLane:
		sort.SliceStable(melted, func(i, j int) bool {
			if !melted[i].timestamp.Equal(melted[j].timestamp) {
				return melted[i].timestamp.Before(melted[j].timestamp)
			}
			return melted[i].lane < melted[j].lane
		})
		for _, m := range melted {
			result.Rows = append(result.Rows, Row{Timestamp: m.timestamp, Lane: m.lane, Volume: m.volume})
		}

	case HourlyTotal:
		sums := make(map[time.Time]float64)
		for _, m := range melted {
			sums[m.timestamp] += m.volume
		}
		keys := make([]time.Time, 0, len(sums))
		for ts := range sums {
			keys = append(keys, ts)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
		for _, ts := range keys {
			result.Rows = append(result.Rows, Row{Timestamp: ts, Volume: sums[ts]})
		}

	case DailyByLane:
		type key struct {
			date string
			lane string
		}
		sums := make(map[key]float64)
		for _, m := range melted {
			sums[key{date: m.timestamp.Format("2006-01-02"), lane: m.lane}] += m.volume
		}
		keys := make([]key, 0, len(sums))
		for k := range sums {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].date != keys[j].date {
				return keys[i].date < keys[j].date
			}
			return keys[i].lane < keys[j].lane
		})
		for _, k := range keys {
			result.Rows = append(result.Rows, Row{Date: k.date, Lane: k.lane, Volume: sums[k]})
		}

	case DailyTotal:
		sums := make(map[string]float64)
		for _, m := range melted {
			sums[m.timestamp.Format("2006-01-02")] += m.volume
		}
		dates := make([]string, 0, len(sums))
		for d := range sums {
			dates = append(dates, d)
		}
		sort.Strings(dates)
		for _, d := range dates {
			result.Rows = append(result.Rows, Row{Date: d, Volume: sums[d]})
		}
	}

	return result
}

func columnIndex(header []string, name string) (int, error) {
	for i, col := range header {
		if strings.TrimSpace(col) == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("volume report is missing required column %q", name)
}

var reportDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"1/2/2006",
	"01/02/2006",
}

func parseReportDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse report date %q", s)
}

func parseVolume(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse volume %q", s)
	}
	return v, nil
}

// columns returns the CSV header for a result, matching the populated fields
// of its mode. Combined results carry a trailing source column.
func (r *Result) columns() []string {
	var cols []string
	switch r.Mode {
	case HourlyByLane:
		cols = []string{"Timestamp", "Lane ID", "Volume"}
	case HourlyTotal:
		cols = []string{"Timestamp", "Volume"}
	case DailyByLane:
		cols = []string{"Date", "Lane ID", "Volume"}
	case DailyTotal:
		cols = []string{"Date", "Volume"}
	}
	if r.combined {
		cols = append(cols, "Bridge Name")
	}
	return cols
}

func (r *Result) record(row Row) []string {
	var fields []string
	switch r.Mode {
	case HourlyByLane:
		fields = []string{row.Timestamp.Format("2006-01-02 15:04:05"), row.Lane, formatVolume(row.Volume)}
	case HourlyTotal:
		fields = []string{row.Timestamp.Format("2006-01-02 15:04:05"), formatVolume(row.Volume)}
	case DailyByLane:
		fields = []string{row.Date, row.Lane, formatVolume(row.Volume)}
	case DailyTotal:
		fields = []string{row.Date, formatVolume(row.Volume)}
	}
	if r.combined {
		fields = append(fields, row.Source)
	}
	return fields
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes the result as delimited text to path.
func (r *Result) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	defer logging.SafeCloseWithLogging(f,
		slog.Default().With(slog.String("component", "volume_reshaper")),
		"volume_output_file")

	w := csv.NewWriter(f)
	if err := w.Write(r.columns()); err != nil {
		return fmt.Errorf("unable to write output header: %w", err)
	}
	for _, row := range r.Rows {
		if err := w.Write(r.record(row)); err != nil {
			return fmt.Errorf("unable to write output row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func maybeWriteCSV(r *Result, opts Options) error {
	if opts.OutDir == "" || opts.OutFile == "" {
		return nil
	}
	return r.WriteCSV(filepath.Join(opts.OutDir, opts.OutFile))
}
