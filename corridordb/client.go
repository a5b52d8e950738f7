package corridordb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"corridorutils.mtcplanning.org/internal/logging"
	"corridorutils.mtcplanning.org/internal/models"
)

// Client is the main entry point for the library
type Client struct {
	config Config
	DB     *sql.DB
}

// NewClient creates a new Client with the provided configuration
func NewClient(config Config) (*Client, error) {
	db, err := createDB(config)
	if err != nil {
		return nil, fmt.Errorf("unable to create DB: %w", err)
	} else if config.verbose {
		log.Println("Successfully created tables")
	}

	return &Client{
		config: config,
		DB:     db,
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) GetDBPath() string {
	return c.config.DBPath
}

// StoreAggregates inserts the aggregated intervals for a report inside a single
// transaction and records the import. Storing the same report twice replaces
// its rows.
func (c *Client) StoreAggregates(ctx context.Context, reportID, source string, intervals []models.CorridorInterval) error {
	logger := slog.Default().With(slog.String("component", "corridordb"))

	startTime := time.Now()
	defer func() {
		logging.LogOperation(logger, "corridor_intervals_stored",
			slog.String("report_id", reportID),
			slog.Int("count", len(intervals)),
			slog.Duration("duration", time.Since(startTime)))
	}()

	tx, err := c.DB.Begin()
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "store_aggregates")

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM corridor_intervals WHERE report_id = ?", reportID); err != nil {
		return fmt.Errorf("unable to clear previous rows for report %s: %w", reportID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO corridor_intervals (
		report_id, corridor, date, day_of_week, interval,
		travel_time_minutes, speed_mph, corridor_length_miles, segment_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(stmt, logger, "insert_statement")

	for _, iv := range intervals {
		_, err := stmt.ExecContext(ctx,
			reportID,
			iv.Corridor,
			iv.Date,
			iv.DayOfWeek,
			iv.Interval,
			iv.TravelTimeMinutes,
			iv.SpeedMPH,
			iv.CorridorLengthMiles,
			iv.SegmentCount,
		)
		if err != nil {
			return fmt.Errorf("unable to insert interval for %s on %s: %w", iv.Corridor, iv.Date, err)
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO report_imports (report_id, source, interval_count, import_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (report_id) DO UPDATE SET
			source = excluded.source,
			interval_count = excluded.interval_count,
			import_time = excluded.import_time`,
		reportID, source, len(intervals), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("unable to record report import: %w", err)
	}

	return tx.Commit()
}

// AggregatesForCorridor returns the stored intervals for a corridor ordered by
// date and time interval.
func (c *Client) AggregatesForCorridor(ctx context.Context, corridor string) ([]models.CorridorInterval, error) {
	rows, err := c.DB.QueryContext(ctx, `SELECT
			corridor, date, day_of_week, interval,
			travel_time_minutes, speed_mph, corridor_length_miles, segment_count
		FROM corridor_intervals
		WHERE corridor = ?
		ORDER BY date, interval`, corridor)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(rows,
		slog.Default().With(slog.String("component", "corridordb")),
		"database_rows")

	var intervals []models.CorridorInterval
	for rows.Next() {
		var iv models.CorridorInterval
		err := rows.Scan(
			&iv.Corridor,
			&iv.Date,
			&iv.DayOfWeek,
			&iv.Interval,
			&iv.TravelTimeMinutes,
			&iv.SpeedMPH,
			&iv.CorridorLengthMiles,
			&iv.SegmentCount,
		)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// AggregatesForDate returns the stored intervals for a single date across
// all corridors, ordered by corridor and time interval.
func (c *Client) AggregatesForDate(ctx context.Context, date string) ([]models.CorridorInterval, error) {
	rows, err := c.DB.QueryContext(ctx, `SELECT
			corridor, date, day_of_week, interval,
			travel_time_minutes, speed_mph, corridor_length_miles, segment_count
		FROM corridor_intervals
		WHERE date = ?
		ORDER BY corridor, interval`, date)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(rows,
		slog.Default().With(slog.String("component", "corridordb")),
		"database_rows")

	var intervals []models.CorridorInterval
	for rows.Next() {
		var iv models.CorridorInterval
		err := rows.Scan(
			&iv.Corridor,
			&iv.Date,
			&iv.DayOfWeek,
			&iv.Interval,
			&iv.TravelTimeMinutes,
			&iv.SpeedMPH,
			&iv.CorridorLengthMiles,
			&iv.SegmentCount,
		)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// Corridors returns the distinct corridor names with stored intervals.
func (c *Client) Corridors(ctx context.Context) ([]string, error) {
	rows, err := c.DB.QueryContext(ctx,
		"SELECT DISTINCT corridor FROM corridor_intervals ORDER BY corridor")
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(rows,
		slog.Default().With(slog.String("component", "corridordb")),
		"database_rows")

	var corridors []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		corridors = append(corridors, name)
	}
	return corridors, rows.Err()
}
