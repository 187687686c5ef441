package processor

import (
	"context"
	"errors"

	"github.com/nci/gapfill/fill"
	"github.com/nci/gapfill/logging"
	"github.com/nci/gapfill/raster"
	"github.com/nci/gapfill/store"
)

// SummaryStage reduces the configured indices over the real and the filled
// bands of every date and closes the date record.
type SummaryStage struct {
	Context   context.Context
	In        chan *DateUnit
	Out       chan *DateUnit
	Error     chan error
	IO        RasterIO
	Store     Store
	Indices   map[string]*raster.Index
	Summaries []string
	Selection fill.UseRealData
	NoiseSize int
}

func NewSummaryStage(ctx context.Context, io RasterIO, st Store, opts *Options, errChan chan error) *SummaryStage {
	return &SummaryStage{
		Context:   ctx,
		In:        make(chan *DateUnit, 16),
		Out:       make(chan *DateUnit, 16),
		Error:     errChan,
		IO:        io,
		Store:     st,
		Indices:   opts.Indices,
		Summaries: opts.Summaries,
		Selection: opts.Selection,
		NoiseSize: opts.NoiseRegionSize,
	}
}

func (s *SummaryStage) Run() {
	defer close(s.Out)
	for u := range s.In {
		if err := s.process(u); err != nil {
			skip(u, "summary", err)
			continue
		}
		u.Collector.Log()
		s.Out <- u
	}
}

func (s *SummaryStage) process(u *DateUnit) error {
	logger := logging.With("summary")
	if s.NoiseSize > 0 && u.Mask != nil {
		n := store.NoiseRemoval{Date: u.Date(), MinRegionSize: s.NoiseSize,
			PercentInvalid: fill.PercentInvalidNoiseRemoved(u.Mask, s.NoiseSize)}
		if err := s.Store.RecordNoiseRemoval(s.Context, n); err != nil {
			return err
		}
	}
	for _, name := range s.Summaries {
		idx, ok := s.Indices[name]
		if !ok {
			logger.Warn().Str("index", name).Msg("unknown index")
			continue
		}

		observed, filled, err := s.inputs(u, idx)
		if errors.Is(err, raster.ErrNotFound) {
			logger.Warn().Str("date", u.Date().String()).Str("index", name).Err(err).Msg("index not summarised")
			continue
		}
		if err != nil {
			return err
		}

		sums, err := fill.SummarizeDate(u.Date(), name, idx, observed, filled, u.Mask, s.Selection)
		if err != nil {
			return err
		}
		for _, sum := range sums {
			if err := s.Store.RecordIndexSummary(s.Context, sum); err != nil {
				return err
			}
			u.Summarised = append(u.Summarised, sum)
		}
	}
	return nil
}

// inputs gathers the bands of idx, loading the real ones not read yet. A
// band that was not filled enters the filled set as observed.
func (s *SummaryStage) inputs(u *DateUnit, idx *raster.Index) (observed, filled map[raster.Band]*raster.Buffer, err error) {
	observed = make(map[raster.Band]*raster.Buffer, len(idx.Bands))
	filled = make(map[raster.Band]*raster.Buffer, len(idx.Bands))
	for _, b := range idx.Bands {
		buf, ok := u.Real[b]
		if !ok {
			if buf, err = s.IO.LoadBand(u.Date(), b); err != nil {
				return nil, nil, err
			}
			u.Real[b] = buf
		}
		observed[b] = buf
		filled[b] = buf
		if res, ok := u.Filled[b]; ok {
			filled[b] = res.Buffer
		}
	}
	return observed, filled, nil
}
