package roadway

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"

	"corridorutils.mtcplanning.org/internal/logging"
	"corridorutils.mtcplanning.org/internal/models"
)

// Archive member names. Every downloaded report archive contains a single
// top-level directory holding these three files.
const (
	dataMember     = "data.csv"
	metadataMember = "metadata.csv"
	contentsMember = "reportContents.json"
)

// Observation is one raw data.csv row before timestamp normalization. The
// DateTime string still carries the vendor's trailing timezone offset.
type Observation struct {
	Corridor          string
	DateTime          string
	SegmentID         int64
	TravelTimeMinutes float64
}

// ReportContents is the report configuration the vendor echoes back inside
// the archive. The corridor list must match the one used when the report
// was requested, or aggregation results are meaningless.
type ReportContents struct {
	Corridors   []models.Corridor `json:"corridors"`
	Timezone    string            `json:"timezone"`
	Granularity int               `json:"granularity"`
	MapVersion  string            `json:"mapVersion"`
	Unit        string            `json:"unit"`
}

// Archive holds the three constituent tables of one downloaded report
// archive. It is intended for single-owner, single-threaded use.
type Archive struct {
	Observations []Observation
	Metadata     map[int64]models.SegmentMeta
	Contents     ReportContents

	raw []byte
}

// OpenArchive loads a report archive from the zip file at path. All three
// members must load or the whole open fails.
func OpenArchive(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read report archive %s: %w", path, err)
	}
	a, err := OpenArchiveBytes(data)
	if err != nil {
		return nil, fmt.Errorf("opening report archive %s: %w", path, err)
	}
	return a, nil
}

// OpenArchiveBytes loads a report archive from in-memory zip bytes, as
// returned by Client.DownloadArchive.
func OpenArchiveBytes(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("unable to open report archive: %w", err)
	}

	root, err := archiveRoot(zr)
	if err != nil {
		return nil, err
	}

	// Three independent loaders, composed atomically.
	observations, err := loadObservations(zr, root)
	if err != nil {
		return nil, err
	}
	metadata, err := loadMetadata(zr, root)
	if err != nil {
		return nil, err
	}
	contents, err := loadReportContents(zr, root)
	if err != nil {
		return nil, err
	}

	return &Archive{
		Observations: observations,
		Metadata:     metadata,
		Contents:     contents,
		raw:          data,
	}, nil
}

// WriteZip persists the archive's original zip bytes to path.
func (a *Archive) WriteZip(path string) error {
	if len(a.raw) == 0 {
		return fmt.Errorf("archive holds no zip bytes to write")
	}
	if err := os.WriteFile(path, a.raw, 0o644); err != nil {
		return fmt.Errorf("unable to write report archive to %s: %w", path, err)
	}
	return nil
}

// archiveRoot returns the archive's single top-level directory prefix,
// including the trailing slash, or an empty string when members sit at the
// zip root.
func archiveRoot(zr *zip.Reader) (string, error) {
	if len(zr.File) == 0 {
		return "", fmt.Errorf("report archive is empty")
	}
	name := zr.File[0].Name
	if i := strings.Index(name, "/"); i >= 0 {
		return name[:i+1], nil
	}
	return "", nil
}

func openMember(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("unable to open archive member %s: %w", name, err)
			}
			return rc, nil
		}
	}
	return nil, fmt.Errorf("report archive is missing member %s", name)
}

func loadObservations(zr *zip.Reader, root string) ([]Observation, error) {
	rc, err := openMember(zr, root+dataMember)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(rc,
		slog.Default().With(slog.String("component", "report_archive")), dataMember)

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", dataMember, err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("%s is empty", dataMember)
	}

	header := records[0]
	corridorCol, err := memberColumn(header, dataMember, "Corridor/Region Name")
	if err != nil {
		return nil, err
	}
	dateTimeCol, err := memberColumn(header, dataMember, "Date Time")
	if err != nil {
		return nil, err
	}
	segmentCol, err := memberColumn(header, dataMember, "Segment ID")
	if err != nil {
		return nil, err
	}
	travelTimeCol, err := memberColumn(header, dataMember, "Travel Time(Minutes)")
	if err != nil {
		return nil, err
	}

	observations := make([]Observation, 0, len(records)-1)
	for i, record := range records[1:] {
		if n := maxColumn(corridorCol, dateTimeCol, segmentCol, travelTimeCol); len(record) <= n {
			return nil, fmt.Errorf("%s row %d has %d fields, expected at least %d", dataMember, i+2, len(record), n+1)
		}
		segID, err := strconv.ParseInt(strings.TrimSpace(record[segmentCol]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: unable to parse segment id %q", dataMember, i+2, record[segmentCol])
		}
		travelTime, err := strconv.ParseFloat(strings.TrimSpace(record[travelTimeCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: unable to parse travel time %q", dataMember, i+2, record[travelTimeCol])
		}
		observations = append(observations, Observation{
			Corridor:          record[corridorCol],
			DateTime:          record[dateTimeCol],
			SegmentID:         segID,
			TravelTimeMinutes: travelTime,
		})
	}
	return observations, nil
}

func loadMetadata(zr *zip.Reader, root string) (map[int64]models.SegmentMeta, error) {
	rc, err := openMember(zr, root+metadataMember)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(rc,
		slog.Default().With(slog.String("component", "report_archive")), metadataMember)

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", metadataMember, err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("%s is empty", metadataMember)
	}

	header := records[0]
	segmentCol, err := memberColumn(header, metadataMember, "Segment ID")
	if err != nil {
		return nil, err
	}
	lengthCol, err := memberColumn(header, metadataMember, "Segment Length(Miles)")
	if err != nil {
		return nil, err
	}

	metadata := make(map[int64]models.SegmentMeta, len(records)-1)
	for i, record := range records[1:] {
		if n := maxColumn(segmentCol, lengthCol); len(record) <= n {
			return nil, fmt.Errorf("%s row %d has %d fields, expected at least %d", metadataMember, i+2, len(record), n+1)
		}
		segID, err := strconv.ParseInt(strings.TrimSpace(record[segmentCol]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: unable to parse segment id %q", metadataMember, i+2, record[segmentCol])
		}
		length, err := strconv.ParseFloat(strings.TrimSpace(record[lengthCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: unable to parse segment length %q", metadataMember, i+2, record[lengthCol])
		}
		metadata[segID] = models.SegmentMeta{SegmentID: segID, LengthMiles: length}
	}
	return metadata, nil
}

func loadReportContents(zr *zip.Reader, root string) (ReportContents, error) {
	rc, err := openMember(zr, root+contentsMember)
	if err != nil {
		return ReportContents{}, err
	}
	defer logging.SafeCloseWithLogging(rc,
		slog.Default().With(slog.String("component", "report_archive")), contentsMember)

	var contents ReportContents
	if err := json.NewDecoder(rc).Decode(&contents); err != nil {
		return ReportContents{}, fmt.Errorf("unable to parse %s: %w", contentsMember, err)
	}
	return contents, nil
}

func maxColumn(cols ...int) int {
	max := 0
	for _, c := range cols {
		if c > max {
			max = c
		}
	}
	return max
}

func memberColumn(header []string, member, name string) (int, error) {
	for i, col := range header {
		if strings.TrimSpace(col) == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%s is missing required column %q", member, name)
}
