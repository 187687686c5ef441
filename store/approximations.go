package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nci/gapfill/raster"
)

// RecordBand marks band as holding real data for date.
func (s *Store) RecordBand(ctx context.Context, date raster.Date, band raster.Band) error {
	return s.write(ctx, "record_band", func(tx *sql.Tx) error {
		if err := s.insertDate(ctx, tx, date); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.dialect.ignoring("date_bands", "year, month, day, band_name", "?, ?, ?, ?"),
			date.Year, date.Month, date.Day, band.String())
		if err != nil {
			return fmt.Errorf("failed to record band %v for %v: %w", band, date, err)
		}
		return nil
	})
}

// Approximation describes how a band of one date was reconstructed.
type Approximation struct {
	Band   raster.Band
	Method string
	// Fractions of the image tagged approximated and copied from a temporal neighbour.
	ApproximatedFraction float64
	TemporalFraction     float64
}

func (s *Store) RecordApproximation(ctx context.Context, date raster.Date, a Approximation) error {
	query := s.dialect.rebind(`INSERT INTO approximated_data(band_name, method, approximated_fraction, temporal_fraction, year, month, day)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(year, month, day, band_name) DO UPDATE SET
			method = excluded.method,
			approximated_fraction = excluded.approximated_fraction,
			temporal_fraction = excluded.temporal_fraction`)
	return s.write(ctx, "record_approximation", func(tx *sql.Tx) error {
		if err := s.insertDate(ctx, tx, date); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, query, a.Band.String(), a.Method, a.ApproximatedFraction, a.TemporalFraction,
			date.Year, date.Month, date.Day)
		if err != nil {
			return fmt.Errorf("failed to record approximation of %v for %v: %w", a.Band, date, err)
		}
		return nil
	})
}

func (s *Store) Approximations(ctx context.Context, date raster.Date) ([]Approximation, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`SELECT band_name, method, approximated_fraction, temporal_fraction
		FROM approximated_data WHERE year = ? AND month = ? AND day = ? ORDER BY band_name`),
		date.Year, date.Month, date.Day)
	if err != nil {
		return nil, storeErr("approximations", err)
	}
	defer rows.Close()

	var out []Approximation
	for rows.Next() {
		var a Approximation
		var name string
		if err := rows.Scan(&name, &a.Method, &a.ApproximatedFraction, &a.TemporalFraction); err != nil {
			return nil, storeErr("approximations", err)
		}
		if a.Band, err = raster.ParseBand(name); err != nil {
			return nil, storeErr("approximations", err)
		}
		out = append(out, a)
	}
	return out, storeErr("approximations", rows.Err())
}

// IndexSummary is one row of single_image_summary.
type IndexSummary struct {
	Index               string
	Date                raster.Date
	UseApproximatedData bool
	ExcludeCloudyPixels bool
	ExcludeShadowPixels bool
	Min, Max, Mean      float64
	NumPixels           int
}

func (s *Store) RecordIndexSummary(ctx context.Context, sum IndexSummary) error {
	query := s.dialect.rebind(`INSERT INTO single_image_summary(index_name, year, month, day, use_approximated_data,
			exclude_cloudy_pixels, exclude_shadow_pixels, min, max, mean, num_pixels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(index_name, year, month, day, use_approximated_data, exclude_cloudy_pixels, exclude_shadow_pixels) DO UPDATE SET
			min = excluded.min,
			max = excluded.max,
			mean = excluded.mean,
			num_pixels = excluded.num_pixels`)
	d := sum.Date
	return s.write(ctx, "record_index_summary", func(tx *sql.Tx) error {
		if err := s.insertDate(ctx, tx, d); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, query, sum.Index, d.Year, d.Month, d.Day,
			boolInt(sum.UseApproximatedData), boolInt(sum.ExcludeCloudyPixels), boolInt(sum.ExcludeShadowPixels),
			sum.Min, sum.Max, sum.Mean, sum.NumPixels)
		if err != nil {
			return fmt.Errorf("failed to record %s summary for %v: %w", sum.Index, d, err)
		}
		return nil
	})
}

func (s *Store) IndexSummaries(ctx context.Context, index string) ([]IndexSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`SELECT index_name, year, month, day, use_approximated_data,
			exclude_cloudy_pixels, exclude_shadow_pixels, min, max, mean, num_pixels
		FROM single_image_summary WHERE index_name = ? ORDER BY year, month, day`), index)
	if err != nil {
		return nil, storeErr("index_summaries", err)
	}
	defer rows.Close()

	var out []IndexSummary
	for rows.Next() {
		var sum IndexSummary
		var approx, cloudy, shadow int
		if err := rows.Scan(&sum.Index, &sum.Date.Year, &sum.Date.Month, &sum.Date.Day, &approx, &cloudy, &shadow,
			&sum.Min, &sum.Max, &sum.Mean, &sum.NumPixels); err != nil {
			return nil, storeErr("index_summaries", err)
		}
		sum.UseApproximatedData, sum.ExcludeCloudyPixels, sum.ExcludeShadowPixels = approx != 0, cloudy != 0, shadow != 0
		out = append(out, sum)
	}
	return out, storeErr("index_summaries", rows.Err())
}

// NoiseRemoval is the invalid share of a date once cloud and shadow regions
// smaller than MinRegionSize are dropped.
type NoiseRemoval struct {
	Date           raster.Date
	MinRegionSize  int
	PercentInvalid float64
}

func (s *Store) RecordNoiseRemoval(ctx context.Context, n NoiseRemoval) error {
	query := s.dialect.rebind(`INSERT INTO noise_removal(year, month, day, min_region_size, percent_invalid_noise_removed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(year, month, day, min_region_size) DO UPDATE SET
			percent_invalid_noise_removed = excluded.percent_invalid_noise_removed`)
	d := n.Date
	return s.write(ctx, "record_noise_removal", func(tx *sql.Tx) error {
		if err := s.insertDate(ctx, tx, d); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, d.Year, d.Month, d.Day, n.MinRegionSize, n.PercentInvalid); err != nil {
			return fmt.Errorf("failed to record noise removal for %v: %w", d, err)
		}
		return nil
	})
}

func (s *Store) NoiseRemovals(ctx context.Context, date raster.Date) ([]NoiseRemoval, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`SELECT min_region_size, percent_invalid_noise_removed
		FROM noise_removal WHERE year = ? AND month = ? AND day = ? ORDER BY min_region_size`),
		date.Year, date.Month, date.Day)
	if err != nil {
		return nil, storeErr("noise_removals", err)
	}
	defer rows.Close()

	var out []NoiseRemoval
	for rows.Next() {
		n := NoiseRemoval{Date: date}
		if err := rows.Scan(&n.MinRegionSize, &n.PercentInvalid); err != nil {
			return nil, storeErr("noise_removals", err)
		}
		out = append(out, n)
	}
	return out, storeErr("noise_removals", rows.Err())
}
