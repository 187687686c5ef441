// Package processor runs the per date pipeline: detection, recording in the
// store, gap filling, blending and index summaries. Failures are isolated to
// the date they happen on.
package processor

import (
	"context"
	"errors"

	"github.com/nci/gapfill/crawl"
	"github.com/nci/gapfill/detect"
	"github.com/nci/gapfill/fill"
	"github.com/nci/gapfill/metrics"
	"github.com/nci/gapfill/raster"
	"github.com/nci/gapfill/store"
)

// RasterIO is the file side of the pipeline, gdalio.IO in production.
type RasterIO interface {
	LoadBand(date raster.Date, band raster.Band) (*raster.Buffer, error)
	LoadMask(date raster.Date) (*raster.Mask, error)
	SaveResult(date raster.Date, name string, buf *raster.Buffer) error
	SaveAs(date raster.Date, name string, buf *raster.Buffer, sampleType raster.SampleType) error
	SaveMask(date raster.Date, mask *raster.Mask, geom raster.Geometry) error
}

// Store is the part of the temporal approximation store the stages use.
type Store interface {
	UpsertIfAbsent(ctx context.Context, date raster.Date) error
	RecordDetection(ctx context.Context, date raster.Date, det store.Detection) error
	RecordBand(ctx context.Context, date raster.Date, band raster.Band) error
	Query(ctx context.Context, date raster.Date) (store.DateRecord, bool, error)
	Neighbors(ctx context.Context, date raster.Date, band raster.Band, maxGap int) ([]store.Neighbor, error)
	RecordApproximation(ctx context.Context, date raster.Date, a store.Approximation) error
	RecordIndexSummary(ctx context.Context, sum store.IndexSummary) error
	RecordNoiseRemoval(ctx context.Context, n store.NoiseRemoval) error
}

// DateUnit is one date travelling through the stages.
type DateUnit struct {
	Folder    crawl.Folder
	Collector *metrics.Collector

	Mask     *raster.Mask
	Geometry raster.Geometry
	// Real holds the observed bands loaded so far, Filled their
	// reconstruction.
	Real       map[raster.Band]*raster.Buffer
	Filled     map[raster.Band]*fill.Result
	Detection  *detect.Result
	Summary    fill.Summary
	Detected   bool
	Summarised []store.IndexSummary
}

func newDateUnit(f crawl.Folder, c *metrics.Collector) *DateUnit {
	return &DateUnit{
		Folder:    f,
		Collector: c,
		Real:      make(map[raster.Band]*raster.Buffer),
		Filled:    make(map[raster.Band]*fill.Result),
	}
}

func (u *DateUnit) Date() raster.Date {
	return u.Folder.Date
}

// Error kinds recorded in the metrics of a skipped date.
const (
	KindMissingBand = "missing_band"
	KindData        = "data"
	KindStore       = "store"
	KindCancelled   = "cancelled"
	KindOther       = "other"
)

// ErrorKind classifies the error that made a date skip.
func ErrorKind(err error) string {
	var missing *detect.MissingBandError
	var dataErr *raster.DataError
	var storeErr *store.StoreError
	switch {
	case errors.As(err, &missing):
		return KindMissingBand
	case errors.As(err, &dataErr):
		return KindData
	case errors.As(err, &storeErr):
		return KindStore
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	}
	return KindOther
}
