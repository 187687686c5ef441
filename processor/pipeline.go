package processor

import (
	"context"
	"sort"

	"github.com/nci/gapfill/blend"
	"github.com/nci/gapfill/crawl"
	"github.com/nci/gapfill/detect"
	"github.com/nci/gapfill/fill"
	"github.com/nci/gapfill/logging"
	"github.com/nci/gapfill/metrics"
	"github.com/nci/gapfill/raster"
)

type Options struct {
	Workers   int
	Bands     []raster.Band
	Detection detect.CloudParams
	Fill      fill.Params
	// Blend enables the Poisson blending of temporal patches when set.
	Blend     *blend.Params
	Indices   map[string]*raster.Index
	Summaries []string
	Selection fill.UseRealData
	// NoiseRegionSize records the invalid share left once cloud and shadow
	// regions below this size are dropped, 0 skips it.
	NoiseRegionSize int
	SaveMasks       bool
	Redetect        bool
	// DetectOnly stops every date after detection.
	DetectOnly bool
}

type Pipeline struct {
	Context context.Context
	Error   chan error
	IO      RasterIO
	Store   Store
	Metrics *metrics.Run
	Options Options
}

func InitPipeline(ctx context.Context, io RasterIO, st Store, run *metrics.Run, opts Options, errChan chan error) *Pipeline {
	return &Pipeline{
		Context: ctx,
		Error:   errChan,
		IO:      io,
		Store:   st,
		Metrics: run,
		Options: opts,
	}
}

// Process runs every folder through detection and then, once every date is
// detected so that temporal neighbours are known, through filling and
// summaries. Each finished date comes out of the returned channel, which the
// caller must drain; skipped dates only show in the metrics.
func (p *Pipeline) Process(folders []crawl.Folder) chan *DateUnit {
	out := make(chan *DateUnit, 16)
	go func() {
		defer close(out)
		logger := logging.With("pipeline")

		feeder := NewDateFeeder(p.Context, p.Metrics, p.Error)
		det := NewDetectStage(p.Context, p.IO, p.Store, &p.Options, p.Error)
		det.In = feeder.Out
		go feeder.Run(folders)
		go det.Run()

		var detected []*DateUnit
		for u := range det.Out {
			detected = append(detected, u)
		}
		sort.Slice(detected, func(i, j int) bool { return detected[i].Date().Before(detected[j].Date()) })
		logger.Info().Int("dates", len(folders)).Int("detected", len(detected)).Msg("detection done")

		if p.Options.DetectOnly {
			for _, u := range detected {
				u.Collector.Log()
				out <- u
			}
			return
		}

		fs := NewFillStage(p.Context, p.IO, p.Store, &p.Options, p.Error)
		ss := NewSummaryStage(p.Context, p.IO, p.Store, &p.Options, p.Error)
		ss.In = fs.Out
		go func() {
			defer close(fs.In)
			for _, u := range detected {
				fs.In <- u
			}
		}()
		go fs.Run()
		go ss.Run()

		for u := range ss.Out {
			out <- u
		}
	}()
	return out
}
