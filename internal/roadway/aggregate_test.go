package roadway

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFixtureArchive(t *testing.T, fixture archiveFixture) *Archive {
	t.Helper()
	archive, err := OpenArchiveBytes(buildTestArchive(t, fixture))
	require.NoError(t, err)
	return archive
}

func TestSegmentsToCorridor_SpeedFormula(t *testing.T) {
	// Two segments of 1.0 and 2.0 miles, both reporting 3.0 minutes:
	// speed = (1.0+2.0)/(3.0+3.0)*60 = 30.0.
	archive := openFixtureArchive(t, testArchiveFixture())

	table, err := archive.SegmentsToCorridor(AggregateOptions{Format: FormatLong})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	first := table.Rows[0]
	assert.Equal(t, "I-80 WB", first.Corridor)
	assert.Equal(t, "2021-02-01", first.Date)
	assert.Equal(t, "Monday", first.DayOfWeek)
	assert.Equal(t, "06:00", first.Interval)
	assert.InDelta(t, 6.0, first.TravelTimeMinutes, 1e-9)
	assert.InDelta(t, 30.0, first.SpeedMPH, 1e-9)
	assert.InDelta(t, 3.0, first.CorridorLengthMiles, 1e-9)
	assert.Equal(t, 2, first.SegmentCount)

	// 06:15: 1 + 2 miles over 2 + 4 minutes.
	assert.InDelta(t, 30.0, table.Rows[1].SpeedMPH, 1e-9)
}

func TestSegmentsToCorridor_CoverageFilterDropsPartialIntervals(t *testing.T) {
	fixture := testArchiveFixture()
	// Segment 102 is missing for 06:15: that interval must be absent from
	// the output entirely, not nulled.
	fixture.data = "Date Time,Segment ID,Corridor/Region Name,Travel Time(Minutes)\n" +
		"2021-02-01T06:00:00-08:00,101,I-80 WB,3.0\n" +
		"2021-02-01T06:00:00-08:00,102,I-80 WB,3.0\n" +
		"2021-02-01T06:15:00-08:00,101,I-80 WB,2.0\n"

	archive := openFixtureArchive(t, fixture)
	table, err := archive.SegmentsToCorridor(AggregateOptions{Format: FormatLong})
	require.NoError(t, err)

	require.Len(t, table.Rows, 1)
	assert.Equal(t, "06:00", table.Rows[0].Interval)
}

func TestNormalizeObservations_DeduplicatesTimestampSegmentPairs(t *testing.T) {
	fixture := testArchiveFixture()
	// A daylight-saving fallback repeat: same (timestamp, segment) twice
	// with different travel times must collapse to one row.
	fixture.data = "Date Time,Segment ID,Corridor/Region Name,Travel Time(Minutes)\n" +
		"2021-11-07T01:00:00-07:00,101,I-80 WB,3.0\n" +
		"2021-11-07T01:00:00-08:00,101,I-80 WB,5.0\n"

	archive := openFixtureArchive(t, fixture)
	normalized, err := archive.NormalizeObservations()
	require.NoError(t, err)

	require.Len(t, normalized, 1)
	assert.InDelta(t, 3.0, normalized[0].TravelTimeMinutes, 1e-9)
	assert.Equal(t, "01:00", normalized[0].Interval)
	assert.Equal(t, "2021-11-07", normalized[0].Date)
}

func TestSegmentsToCorridor_IgnoresCorridorsNotInContents(t *testing.T) {
	fixture := testArchiveFixture()
	fixture.data += "2021-02-01T06:00:00-08:00,999,Mystery Blvd,1.0,10.0\n"
	fixture.metadata += "999,0.5\n"

	archive := openFixtureArchive(t, fixture)
	table, err := archive.SegmentsToCorridor(AggregateOptions{Format: FormatLong})
	require.NoError(t, err)

	for _, row := range table.Rows {
		assert.NotEqual(t, "Mystery Blvd", row.Corridor)
	}
}

func TestSegmentsToCorridor_WideMatchesLong(t *testing.T) {
	archive := openFixtureArchive(t, testArchiveFixture())

	long, err := archive.SegmentsToCorridor(AggregateOptions{Format: FormatLong})
	require.NoError(t, err)
	wide, err := archive.SegmentsToCorridor(AggregateOptions{Format: FormatWide, WideMetric: MetricSpeed})
	require.NoError(t, err)

	require.NotNil(t, wide.Wide)

	// One row per (corridor, date), one column per distinct interval.
	type key struct{ corridor, date string }
	longKeys := make(map[key]bool)
	longIntervals := make(map[string]bool)
	for _, row := range long.Rows {
		longKeys[key{row.Corridor, row.Date}] = true
		longIntervals[row.Interval] = true
	}
	assert.Len(t, wide.Wide.Rows, len(longKeys))
	assert.Len(t, wide.Wide.Intervals, len(longIntervals))

	// Melting the wide table back reproduces the long speed values.
	melted := make(map[string]float64)
	for _, row := range wide.Wide.Rows {
		for interval, speed := range row.Values {
			melted[row.Corridor+"|"+row.Date+"|"+interval] = speed
		}
	}
	require.Len(t, melted, len(long.Rows))
	for _, row := range long.Rows {
		assert.InDelta(t, row.SpeedMPH, melted[row.Corridor+"|"+row.Date+"|"+row.Interval], 1e-9)
	}
}

func TestSegmentsToCorridor_WideTravelTimeMetric(t *testing.T) {
	archive := openFixtureArchive(t, testArchiveFixture())

	wide, err := archive.SegmentsToCorridor(AggregateOptions{Format: FormatWide, WideMetric: MetricTravelTime})
	require.NoError(t, err)

	require.Len(t, wide.Wide.Rows, 1)
	assert.InDelta(t, 6.0, wide.Wide.Rows[0].Values["06:00"], 1e-9)
}

func TestSegmentsToCorridor_InvalidOptionsFailBeforeComputation(t *testing.T) {
	fixture := testArchiveFixture()
	// Unparsable timestamp: if validation runs first, the format error wins.
	fixture.data = "Date Time,Segment ID,Corridor/Region Name,Travel Time(Minutes)\nbogus,101,I-80 WB,3.0\n"
	archive := openFixtureArchive(t, fixture)

	_, err := archive.SegmentsToCorridor(AggregateOptions{Format: "tall"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"tall"`)
	assert.NotContains(t, err.Error(), "timestamp")

	_, err = archive.SegmentsToCorridor(AggregateOptions{Format: FormatWide})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wide metric")

	_, err = archive.SegmentsToCorridor(AggregateOptions{Format: FormatWide, WideMetric: "velocity"})
	require.Error(t, err)
}

func TestSegmentsToCorridor_WritesCSV(t *testing.T) {
	archive := openFixtureArchive(t, testArchiveFixture())
	outDir := t.TempDir()

	_, err := archive.SegmentsToCorridor(AggregateOptions{
		Format:  FormatLong,
		OutDir:  outDir,
		OutFile: "corridor.csv",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "corridor.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Corridor/Region Name,Date,Day of Week,Time Interval,Speed(miles/hour),Travel Time(Minutes)", lines[0])
	assert.Contains(t, lines[1], "I-80 WB,2021-02-01,Monday,06:00,30,6")

	wideDir := t.TempDir()
	_, err = archive.SegmentsToCorridor(AggregateOptions{
		Format:     FormatWide,
		WideMetric: MetricSpeed,
		OutDir:     wideDir,
		OutFile:    "corridor_wide.csv",
	})
	require.NoError(t, err)

	wideData, err := os.ReadFile(filepath.Join(wideDir, "corridor_wide.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(wideData), "Corridor/Region Name,Date,Day of Week,06:00,06:15")
}

// Guard against accidental "fixes" of the speed formula: it is summed length
// over summed time, not a per-segment harmonic mean.
func TestSpeedFormulaIsNotPerSegmentHarmonicMean(t *testing.T) {
	fixture := testArchiveFixture()
	fixture.data = "Date Time,Segment ID,Corridor/Region Name,Travel Time(Minutes)\n" +
		"2021-02-01T06:00:00-08:00,101,I-80 WB,1.0\n" +
		"2021-02-01T06:00:00-08:00,102,I-80 WB,6.0\n"

	archive := openFixtureArchive(t, fixture)
	table, err := archive.SegmentsToCorridor(AggregateOptions{Format: FormatLong})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	// (1.0+2.0)/(1.0+6.0)*60, not a harmonic combination of per-segment
	// speeds (60 and 20 mph respectively).
	assert.InDelta(t, 3.0/7.0*60, table.Rows[0].SpeedMPH, 1e-9)
}
