package processor

import (
	"context"
	"errors"
	"time"

	"github.com/nci/gapfill/crawl"
	"github.com/nci/gapfill/detect"
	"github.com/nci/gapfill/fill"
	"github.com/nci/gapfill/logging"
	"github.com/nci/gapfill/metrics"
	"github.com/nci/gapfill/raster"
	"github.com/nci/gapfill/store"
)

// DetectStage classifies the pixels of every multispectral date and records
// the result. Radar dates are only registered in the store.
type DetectStage struct {
	Context  context.Context
	In       chan *DateUnit
	Out      chan *DateUnit
	Error    chan error
	IO       RasterIO
	Store    Store
	Detector *detect.Detector
	Params   detect.CloudParams
	// FillBands are registered as real data for the dates holding them.
	FillBands []raster.Band
	Workers   int
	SaveMasks bool
	Redetect  bool
}

func NewDetectStage(ctx context.Context, io RasterIO, st Store, opts *Options, errChan chan error) *DetectStage {
	return &DetectStage{
		Context:   ctx,
		In:        make(chan *DateUnit, 16),
		Out:       make(chan *DateUnit, 16),
		Error:     errChan,
		IO:        io,
		Store:     st,
		Detector:  &detect.Detector{Indices: opts.Indices},
		Params:    opts.Detection,
		FillBands: opts.Bands,
		Workers:   opts.Workers,
		SaveMasks: opts.SaveMasks,
		Redetect:  opts.Redetect,
	}
}

func (s *DetectStage) Run() {
	defer close(s.Out)
	limiter := NewConcLimiter(s.Workers)
	for u := range s.In {
		if err := limiter.Increase(s.Context); err != nil {
			skip(u, "detect", err)
			continue
		}
		go func(u *DateUnit) {
			defer limiter.Decrease()
			if err := s.process(u); err != nil {
				skip(u, "detect", err)
				return
			}
			if u.Folder.Kind == crawl.Radar {
				u.Collector.Log()
				return
			}
			s.Out <- u
		}(u)
	}
	limiter.Wait()
}

func (s *DetectStage) process(u *DateUnit) error {
	ctx := s.Context
	date := u.Date()
	if err := s.Store.UpsertIfAbsent(ctx, date); err != nil {
		return err
	}
	for _, b := range s.FillBands {
		if u.Folder.Has(b) {
			if err := s.Store.RecordBand(ctx, date, b); err != nil {
				return err
			}
		}
	}
	if u.Folder.Kind == crawl.Radar {
		return nil
	}

	start := time.Now()
	if !s.Redetect {
		reused, err := s.reuse(u)
		if err != nil || reused {
			return err
		}
	}

	required, err := s.Detector.RequiredBands(s.Params)
	if err != nil {
		return err
	}
	bands := detect.NewBands(date)
	for _, b := range required {
		buf, err := s.loadBand(u, b)
		if err != nil {
			return err
		}
		bands.Buffers[b] = buf
	}

	res, err := s.Detector.Detect(ctx, bands, s.Params)
	if err != nil {
		return err
	}
	u.Detection = res
	u.Mask = res.Mask
	u.Geometry = bands.Buffers[raster.SCL].Geometry
	u.Summary = fill.SingleImageSummary(res.Mask)
	u.Detected = true

	det := store.Detection{PercentCloudy: u.Summary.PercentCloudy, PercentInvalid: u.Summary.PercentInvalid}
	if !res.ShadowsSkipped {
		shadows := u.Summary.PercentShadows
		det.PercentShadows = &shadows
	}
	if err := s.Store.RecordDetection(ctx, date, det); err != nil {
		return err
	}

	if s.SaveMasks {
		if err := s.IO.SaveMask(date, res.Mask, u.Geometry); err != nil {
			logger := logging.With("detect")
			logger.Warn().Str("date", date.String()).Err(err).Msg("mask not saved, the date cannot serve as a temporal neighbour")
		}
	}

	u.Collector.Info.Detection = &metrics.DetectionInfo{
		Duration:         time.Since(start),
		PercentCloudy:    u.Summary.PercentCloudy,
		PercentShadows:   u.Summary.PercentShadows,
		PercentInvalid:   u.Summary.PercentInvalid,
		ShadowsSkipped:   res.ShadowsSkipped,
		SuppressedPixels: res.Suppressed,
	}
	return nil
}

// reuse takes the saved mask of a date whose detection already ran.
func (s *DetectStage) reuse(u *DateUnit) (bool, error) {
	date := u.Date()
	rec, ok, err := s.Store.Query(s.Context, date)
	if err != nil || !ok || !rec.CloudsComputed {
		return false, err
	}
	mask, err := s.IO.LoadMask(date)
	if err != nil {
		logger := logging.With("detect")
		logger.Debug().Str("date", date.String()).Err(err).Msg("saved mask not usable, detecting again")
		return false, nil
	}
	u.Mask = mask
	u.Summary = fill.SingleImageSummary(mask)
	u.Detected = true
	u.Collector.Info.Detection = &metrics.DetectionInfo{
		PercentCloudy:  u.Summary.PercentCloudy,
		PercentShadows: u.Summary.PercentShadows,
		PercentInvalid: u.Summary.PercentInvalid,
		ShadowsSkipped: !rec.ShadowsComputed,
	}
	return true, nil
}

func (s *DetectStage) loadBand(u *DateUnit, b raster.Band) (*raster.Buffer, error) {
	buf, err := s.IO.LoadBand(u.Date(), b)
	if errors.Is(err, raster.ErrNotFound) {
		return nil, &detect.MissingBandError{Date: u.Date(), Band: b}
	}
	if err != nil {
		return nil, err
	}
	u.Real[b] = buf
	return buf, nil
}
