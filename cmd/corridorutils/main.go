package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"corridorutils.mtcplanning.org/corridordb"
	"corridorutils.mtcplanning.org/internal/app"
	"corridorutils.mtcplanning.org/internal/appconf"
	"corridorutils.mtcplanning.org/internal/logging"
	"corridorutils.mtcplanning.org/internal/roadway"
	"corridorutils.mtcplanning.org/internal/transit"
	"corridorutils.mtcplanning.org/internal/volume"
)

func main() {
	mode := flag.String("mode", "", "volume|report|aggregate|speedmap|gps")
	envFlag := flag.String("env", "development", "development|test|production")
	configPath := flag.String("config", "", "path to YAML config file")
	in := flag.String("in", "", "input file path")
	combine := flag.String("combine", "", "comma-separated label=path pairs of volume reports to combine")
	sumLanes := flag.Bool("sumLanes", false, "sum volumes across lanes")
	sumHours := flag.Bool("sumHours", false, "sum volumes across hours of the day")
	outDir := flag.String("outDir", "", "output directory")
	outFile := flag.String("outFile", "", "output file name")
	format := flag.String("format", "long", "aggregate: long|wide; speedmap: flat|geojson")
	metric := flag.String("metric", "", "wide-format metric: speed|travel_time")
	store := flag.Bool("store", false, "persist corridor aggregates to the configured database")
	agency := flag.String("agency", "", "transit agency key")
	route := flag.String("route", "", "transit route key")
	queryDate := flag.String("queryDate", "", "gps playback date (MM-DD-YYYY)")
	flag.Parse()

	env := appconf.EnvFlagToEnvironment(*envFlag)

	cfg := appconf.Config{Env: env, DBPath: ":memory:"}
	if *configPath != "" {
		loaded, err := appconf.LoadFromFile(*configPath, env)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	coreApp := app.BuildApplication(cfg)

	var err error
	switch *mode {
	case "volume":
		err = runVolume(*in, *combine, volume.Options{
			SumLanes: *sumLanes,
			SumHours: *sumHours,
			OutDir:   *outDir,
			OutFile:  *outFile,
		})
	case "report":
		err = runReport(coreApp, *outDir, *outFile)
	case "aggregate":
		err = runAggregate(coreApp, *in, *format, *metric, *outDir, *outFile, *store)
	case "speedmap":
		err = runSpeedMap(coreApp, *agency, *route, *format, *outDir, *outFile)
	case "gps":
		err = runGPSPlayback(coreApp, *agency, *queryDate, *outDir, *outFile)
	default:
		err = fmt.Errorf("unknown mode %q, expected volume, report, aggregate, speedmap, or gps", *mode)
	}
	if err != nil {
		logging.LogError(coreApp.Logger, "command failed", err, slog.String("mode", *mode))
		os.Exit(1)
	}
}

func runVolume(in, combine string, opts volume.Options) error {
	if combine != "" {
		sources, err := parseCombineSpec(combine)
		if err != nil {
			return err
		}
		_, err = volume.CombineReports(sources, opts)
		return err
	}
	if in == "" {
		return fmt.Errorf("volume mode requires -in or -combine")
	}
	_, err := volume.ReshapeReport(in, opts)
	return err
}

// parseCombineSpec parses "label=path,label=path" pairs.
func parseCombineSpec(spec string) (map[string]string, error) {
	sources := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		label, path, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || label == "" || path == "" {
			return nil, fmt.Errorf("bad combine entry %q, expected label=path", pair)
		}
		sources[label] = path
	}
	return sources, nil
}

func runReport(coreApp *app.Application, outDir, outFile string) error {
	if outDir == "" || outFile == "" {
		return fmt.Errorf("report mode requires -outDir and -outFile for the downloaded archive")
	}
	if coreApp.Config.RoadwayCredsPath == "" {
		return fmt.Errorf("report mode requires roadwayCredsPath in the config file")
	}

	report := coreApp.Config.Report
	req := roadway.ReportRequest{
		StartDate:   report.StartDate,
		EndDate:     report.EndDate,
		Corridors:   report.Corridors,
		Granularity: report.Granularity,
		MapVersion:  report.MapVersion,
		Timezone:    report.Timezone,
	}

	client := roadway.NewClient(roadway.ClientOptions{
		BaseURL: coreApp.Config.RoadwayBaseURL,
		Clock:   coreApp.Clock,
		Metrics: coreApp.Metrics,
		Logger:  coreApp.Logger,
	})

	data, err := roadway.DownloadCorridorReport(context.Background(), client, coreApp.Config.RoadwayCredsPath, req)
	if err != nil {
		return err
	}

	archive, err := roadway.OpenArchiveBytes(data)
	if err != nil {
		return err
	}
	return archive.WriteZip(filepath.Join(outDir, outFile))
}

func runAggregate(coreApp *app.Application, in, format, metric, outDir, outFile string, store bool) error {
	if in == "" {
		return fmt.Errorf("aggregate mode requires -in pointing at a report archive")
	}

	archive, err := roadway.OpenArchive(in)
	if err != nil {
		return err
	}

	table, err := archive.SegmentsToCorridor(roadway.AggregateOptions{
		Format:     roadway.OutputFormat(format),
		WideMetric: roadway.WideMetric(metric),
		OutDir:     outDir,
		OutFile:    outFile,
	})
	if err != nil {
		return err
	}

	if !store {
		return nil
	}

	db, err := corridordb.NewClient(corridordb.NewConfig(coreApp.Config.DBPath, coreApp.Config.Env, coreApp.Config.Verbose))
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(db, coreApp.Logger, "corridor_database")

	coreApp.Metrics.StartDBStatsCollector(db.DB, 15*time.Second)
	defer coreApp.Metrics.Shutdown()

	reportID := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	return db.StoreAggregates(context.Background(), reportID, in, table.Rows)
}

func newTransitClient(coreApp *app.Application) (*transit.Client, error) {
	if coreApp.Config.TransitCredsPath == "" {
		return nil, fmt.Errorf("transit modes require transitCredsPath in the config file")
	}
	creds, err := transit.LoadCredentials(coreApp.Config.TransitCredsPath)
	if err != nil {
		return nil, err
	}
	return transit.NewClient(transit.ClientOptions{
		BaseURL: coreApp.Config.TransitBaseURL,
		APIKey:  creds.Key,
		Clock:   coreApp.Clock,
		Metrics: coreApp.Metrics,
		Logger:  coreApp.Logger,
	}), nil
}

func runSpeedMap(coreApp *app.Application, agency, route, format, outDir, outFile string) error {
	if agency == "" || route == "" {
		return fmt.Errorf("speedmap mode requires -agency and -route")
	}
	if outDir == "" || outFile == "" {
		return fmt.Errorf("speedmap mode requires -outDir and -outFile")
	}

	client, err := newTransitClient(coreApp)
	if err != nil {
		return err
	}

	raw, err := client.SpeedMap(context.Background(), transit.SpeedMapOptions{
		AgencyKey: agency,
		RouteKey:  route,
	})
	if err != nil {
		return err
	}

	segments, err := transit.SpeedMapSegments(raw)
	if err != nil {
		return err
	}

	outPath := filepath.Join(outDir, outFile)
	switch format {
	case "flat":
		flat, err := transit.FlattenSegments(segments)
		if err != nil {
			return err
		}
		return transit.WriteFlatCSV(flat, outPath)
	case "geojson":
		fc, err := transit.SegmentsToGeoJSON(segments)
		if err != nil {
			return err
		}
		return transit.WriteGeoJSON(fc, outPath)
	default:
		return fmt.Errorf("unknown speedmap format %q, expected flat or geojson", format)
	}
}

func runGPSPlayback(coreApp *app.Application, agency, queryDate, outDir, outFile string) error {
	if agency == "" || queryDate == "" {
		return fmt.Errorf("gps mode requires -agency and -queryDate")
	}

	client, err := newTransitClient(coreApp)
	if err != nil {
		return err
	}

	raw, err := client.GPSPlayback(context.Background(), transit.GPSPlaybackOptions{
		AgencyKey: agency,
		QueryDate: queryDate,
	})
	if err != nil {
		return err
	}

	if outDir != "" && outFile != "" {
		return os.WriteFile(filepath.Join(outDir, outFile), raw, 0o644)
	}
	_, err = fmt.Println(string(raw))
	return err
}
