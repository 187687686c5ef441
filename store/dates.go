package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/nci/gapfill/raster"
)

// DateRecord is one row of the dates table.
type DateRecord struct {
	Date            raster.Date
	CloudsComputed  bool
	ShadowsComputed bool
	PercentCloudy   sql.NullFloat64
	PercentShadows  sql.NullFloat64
	PercentInvalid  sql.NullFloat64
}

// Detection carries the fractions written by RecordDetection. PercentShadows
// is nil when shadow detection was skipped for the date.
type Detection struct {
	PercentCloudy  float64
	PercentShadows *float64
	PercentInvalid float64
}

func (d Detection) validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
		return nil
	}
	if err := check("percent_cloudy", d.PercentCloudy); err != nil {
		return err
	}
	if d.PercentShadows != nil {
		if err := check("percent_shadows", *d.PercentShadows); err != nil {
			return err
		}
	}
	return check("percent_invalid", d.PercentInvalid)
}

// UpsertIfAbsent creates a bare record for date. An existing record is left
// untouched.
func (s *Store) UpsertIfAbsent(ctx context.Context, date raster.Date) error {
	return s.write(ctx, "upsert_if_absent", func(tx *sql.Tx) error {
		return s.insertDate(ctx, tx, date)
	})
}

func (s *Store) insertDate(ctx context.Context, tx *sql.Tx, date raster.Date) error {
	_, err := tx.ExecContext(ctx, s.dialect.ignoring("dates", "year, month, day", "?, ?, ?"), date.Year, date.Month, date.Day)
	if err != nil {
		return fmt.Errorf("failed to insert date %v: %w", date, err)
	}
	return nil
}

// RecordDetection sets the computed flags and percentages of date, creating
// the record when needed. Recording the same date again overwrites.
func (s *Store) RecordDetection(ctx context.Context, date raster.Date, det Detection) error {
	if err := det.validate(); err != nil {
		return fmt.Errorf("record detection for %v: %w", date, err)
	}
	var shadows sql.NullFloat64
	if det.PercentShadows != nil {
		shadows = sql.NullFloat64{Float64: *det.PercentShadows, Valid: true}
	}

	query := s.dialect.rebind(`INSERT INTO dates(year, month, day, clouds_computed, shadows_computed, percent_cloudy, percent_shadows, percent_invalid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(year, month, day) DO UPDATE SET
			clouds_computed = excluded.clouds_computed,
			shadows_computed = excluded.shadows_computed,
			percent_cloudy = excluded.percent_cloudy,
			percent_shadows = excluded.percent_shadows,
			percent_invalid = excluded.percent_invalid`)

	return s.write(ctx, "record_detection", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, date.Year, date.Month, date.Day,
			1, boolInt(shadows.Valid), det.PercentCloudy, shadows, det.PercentInvalid)
		if err != nil {
			return fmt.Errorf("failed to record detection for %v: %w", date, err)
		}
		return nil
	})
}

const dateColumns = "year, month, day, clouds_computed, shadows_computed, percent_cloudy, percent_shadows, percent_invalid"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDate(row scanner) (DateRecord, error) {
	var rec DateRecord
	var clouds, shadows sql.NullInt64
	err := row.Scan(&rec.Date.Year, &rec.Date.Month, &rec.Date.Day, &clouds, &shadows,
		&rec.PercentCloudy, &rec.PercentShadows, &rec.PercentInvalid)
	rec.CloudsComputed = clouds.Valid && clouds.Int64 != 0
	rec.ShadowsComputed = shadows.Valid && shadows.Int64 != 0
	return rec, err
}

// Query returns the record of date and whether it exists.
func (s *Store) Query(ctx context.Context, date raster.Date) (DateRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind("SELECT "+dateColumns+" FROM dates WHERE year = ? AND month = ? AND day = ?"),
		date.Year, date.Month, date.Day)
	rec, err := scanDate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DateRecord{}, false, nil
	}
	if err != nil {
		return DateRecord{}, false, storeErr("query", fmt.Errorf("failed to query %v: %w", date, err))
	}
	return rec, true, nil
}

// Dates lists every record in calendar order.
func (s *Store) Dates(ctx context.Context) ([]DateRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+dateColumns+" FROM dates ORDER BY year, month, day")
	if err != nil {
		return nil, storeErr("dates", err)
	}
	defer rows.Close()

	var out []DateRecord
	for rows.Next() {
		rec, err := scanDate(rows)
		if err != nil {
			return nil, storeErr("dates", err)
		}
		out = append(out, rec)
	}
	return out, storeErr("dates", rows.Err())
}

// Neighbor is a candidate date for temporal reconstruction.
type Neighbor struct {
	Date           raster.Date
	Days           int
	PercentInvalid float64
	Score          float64
}

func dateKey(d raster.Date) int {
	return d.Year*10000 + d.Month*100 + d.Day
}

// Neighbors returns the dates within maxGap days of date, date excluded, whose
// detection has run, whose band holds real data and which are not entirely
// invalid. Best candidates come first: the score is
// w*|days|/maxGap + (1-w)*percent_invalid, ties broken by the earlier date.
func (s *Store) Neighbors(ctx context.Context, date raster.Date, band raster.Band, maxGap int) ([]Neighbor, error) {
	if maxGap <= 0 {
		return nil, nil
	}
	lo, hi := date.AddDays(-maxGap), date.AddDays(maxGap)
	query := s.dialect.rebind(`SELECT d.year, d.month, d.day, d.percent_invalid
		FROM dates d
		JOIN date_bands b ON b.year = d.year AND b.month = d.month AND b.day = d.day
		WHERE b.band_name = ?
			AND d.clouds_computed = 1
			AND d.percent_invalid < 1
			AND (d.year * 10000 + d.month * 100 + d.day) BETWEEN ? AND ?`)

	rows, err := s.db.QueryContext(ctx, query, band.String(), dateKey(lo), dateKey(hi))
	if err != nil {
		return nil, storeErr("neighbors", err)
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.Date.Year, &n.Date.Month, &n.Date.Day, &n.PercentInvalid); err != nil {
			return nil, storeErr("neighbors", err)
		}
		if n.Date == date {
			continue
		}
		n.Days = raster.DaysBetween(date, n.Date)
		dist := math.Abs(float64(n.Days))
		if dist > float64(maxGap) {
			continue
		}
		n.Score = s.weight*dist/float64(maxGap) + (1-s.weight)*n.PercentInvalid
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("neighbors", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}
