package processor

import (
	"context"
	"errors"
	"time"

	"github.com/nci/gapfill/blend"
	"github.com/nci/gapfill/fill"
	"github.com/nci/gapfill/logging"
	"github.com/nci/gapfill/metrics"
	"github.com/nci/gapfill/raster"
	"github.com/nci/gapfill/store"
)

// storeSource serves the temporal neighbours of the filler from the store
// and their bands and masks from the raster files.
type storeSource struct {
	store Store
	io    RasterIO
}

func (s *storeSource) Neighbors(ctx context.Context, date raster.Date, band raster.Band, maxGap int) ([]store.Neighbor, error) {
	return s.store.Neighbors(ctx, date, band, maxGap)
}

func (s *storeSource) Load(ctx context.Context, date raster.Date, band raster.Band) (*raster.Buffer, *raster.Mask, error) {
	buf, err := s.io.LoadBand(date, band)
	if err != nil {
		return nil, nil, err
	}
	mask, err := s.io.LoadMask(date)
	if err != nil {
		return nil, nil, err
	}
	return buf, mask, nil
}

// FillStage reconstructs the non valid pixels of every fill band.
type FillStage struct {
	Context context.Context
	In      chan *DateUnit
	Out     chan *DateUnit
	Error   chan error
	IO      RasterIO
	Store   Store
	Filler  *fill.Filler
	Bands   []raster.Band
	Workers int
}

func NewFillStage(ctx context.Context, io RasterIO, st Store, opts *Options, errChan chan error) *FillStage {
	var seams *blend.Blender
	if opts.Blend != nil {
		seams = &blend.Blender{Params: *opts.Blend}
	}
	return &FillStage{
		Context: ctx,
		In:      make(chan *DateUnit, 16),
		Out:     make(chan *DateUnit, 16),
		Error:   errChan,
		IO:      io,
		Store:   st,
		Filler:  &fill.Filler{Source: &storeSource{store: st, io: io}, Params: opts.Fill, Seams: seams},
		Bands:   opts.Bands,
		Workers: opts.Workers,
	}
}

func (s *FillStage) Run() {
	defer close(s.Out)
	limiter := NewConcLimiter(s.Workers)
	for u := range s.In {
		if err := limiter.Increase(s.Context); err != nil {
			skip(u, "fill", err)
			continue
		}
		go func(u *DateUnit) {
			defer limiter.Decrease()
			if err := s.process(u); err != nil {
				skip(u, "fill", err)
				return
			}
			s.Out <- u
		}(u)
	}
	limiter.Wait()
}

func (s *FillStage) process(u *DateUnit) error {
	ctx := s.Context
	date := u.Date()
	logger := logging.With("fill")
	start := time.Now()
	info := &metrics.FillInfo{}

	for _, band := range s.Bands {
		buf, ok := u.Real[band]
		if !ok {
			var err error
			buf, err = s.IO.LoadBand(date, band)
			if errors.Is(err, raster.ErrNotFound) {
				logger.Warn().Str("date", date.String()).Str("band", band.String()).Msg("band absent, not filled")
				continue
			}
			if err != nil {
				return err
			}
			u.Real[band] = buf
		}
		if u.Geometry.Resolution == 0 {
			u.Geometry = buf.Geometry
		}

		res, err := s.Filler.Fill(ctx, buf, u.Mask)
		if err != nil {
			return err
		}
		u.Filled[band] = res

		if err := s.IO.SaveResult(date, band.String()+"_filled", res.Buffer); err != nil {
			return err
		}
		if err := s.IO.SaveAs(date, band.String()+"_provenance", res.Provenance.Buffer(date), raster.Byte); err != nil {
			return err
		}

		a := store.Approximation{
			Band:                 band,
			Method:               method(res),
			ApproximatedFraction: res.Provenance.Fraction(fill.Approximated),
			TemporalFraction:     res.Provenance.Fraction(fill.Temporal),
		}
		if err := s.Store.RecordApproximation(ctx, date, a); err != nil {
			return err
		}

		info.Bands++
		info.Approximated += a.ApproximatedFraction
		info.Temporal += a.TemporalFraction
		info.Degraded = info.Degraded || res.Degraded
		info.BlendDegraded = info.BlendDegraded || res.BlendDegraded
		logger.Debug().Str("date", date.String()).Str("band", band.String()).Str("method", a.Method).
			Float64("approximated", a.ApproximatedFraction).Float64("temporal", a.TemporalFraction).Msg("band filled")
	}

	if info.Bands > 0 {
		info.Approximated /= float64(info.Bands)
		info.Temporal /= float64(info.Bands)
	}
	info.Duration = time.Since(start)
	u.Collector.Info.Fill = info
	return nil
}

func method(res *fill.Result) string {
	switch {
	case res.Provenance.Count(fill.Temporal) > 0 && res.Provenance.Count(fill.Approximated) > 0:
		return "temporal+laplace"
	case res.Provenance.Count(fill.Temporal) > 0:
		return "temporal"
	case res.Provenance.Count(fill.Approximated) > 0:
		return "laplace"
	}
	return "none"
}
