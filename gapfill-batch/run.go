package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nci/gapfill/crawl"
	"github.com/nci/gapfill/fill"
	"github.com/nci/gapfill/gdalio"
	"github.com/nci/gapfill/logging"
	"github.com/nci/gapfill/metrics"
	"github.com/nci/gapfill/processor"
	"github.com/nci/gapfill/report"
	"github.com/nci/gapfill/store"
	"github.com/nci/gapfill/utils"
)

const (
	maxLogFileSize = 64 << 20
	maxLogFiles    = 8
)

func setupRunCommand(config func() *utils.Config, detectOnly bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Detect, fill and summarise every date of the base folder",
	}
	if detectOnly {
		cmd.Use = "detect"
		cmd.Short = "Detect clouds and shadows and record them, without filling"
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), config(), detectOnly)
	}
	return cmd
}

func openStore(ctx context.Context, cfg *utils.Config) (*store.Store, error) {
	opts := cfg.Store
	opts.BaseFolder = cfg.BaseFolder
	st, err := store.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func pipelineOptions(cfg *utils.Config, detectOnly bool) (processor.Options, error) {
	bands, err := cfg.FillBands()
	if err != nil {
		return processor.Options{}, err
	}
	indices, err := cfg.IndexSet()
	if err != nil {
		return processor.Options{}, err
	}
	opts := processor.Options{
		Workers:   cfg.Processor.Workers,
		Bands:     bands,
		Detection: cfg.Detection,
		Fill:      cfg.Fill,
		Indices:   indices,
		Summaries: cfg.Indices.Summaries,
		Selection: fill.UseRealData{
			ExcludeCloudyPixels: cfg.Indices.ExcludeCloudyPixels,
			ExcludeShadowPixels: cfg.Indices.ExcludeShadowPixels,
		},
		NoiseRegionSize: cfg.Processor.NoiseRegionSize,
		SaveMasks:       cfg.Processor.SaveMasks,
		Redetect:        cfg.Processor.Redetect,
		DetectOnly:      detectOnly,
	}
	if cfg.Indices.SkipThreshold >= 0 {
		threshold := cfg.Indices.SkipThreshold
		opts.Selection.SkipThreshold = &threshold
	}
	if cfg.Blend.Enabled {
		params := cfg.Blend.Params
		opts.Blend = &params
	}
	return opts, nil
}

func metricsLogger(cfg *utils.Config) (metrics.Logger, func(), error) {
	if cfg.Metrics.LogDir == "" {
		return metrics.NewStdoutLogger(), func() {}, nil
	}
	fl, err := metrics.NewFileLogger(cfg.Metrics.LogDir, maxLogFileSize, maxLogFiles)
	if err != nil {
		return nil, nil, err
	}
	return fl, fl.Close, nil
}

func runBatch(ctx context.Context, cfg *utils.Config, detectOnly bool) error {
	logger := logging.With("batch")

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	opts, err := pipelineOptions(cfg, detectOnly)
	if err != nil {
		return err
	}

	folders, err := crawl.Discover(ctx, cfg.BaseFolder)
	if err != nil {
		return err
	}
	from, to, err := cfg.DateRange()
	if err != nil {
		return err
	}
	folders = crawl.Filter(folders, crawl.Any, from, to)
	logger.Info().Str("base_folder", cfg.BaseFolder).Int("dates", len(folders)).Bool("detect_only", detectOnly).Msg("starting run")

	mlog, closeLog, err := metricsLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	prom := metrics.NewPrometheus()
	run := metrics.NewRun(mlog, prom)

	errChan := make(chan error, 1)
	p := processor.InitPipeline(ctx, gdalio.New(cfg.BaseFolder, cfg.OutputFolder), st, run, opts, errChan)
	finished := 0
	for u := range p.Process(folders) {
		finished++
		logger.Debug().Str("date", u.Date().String()).Msg("date finished")
	}

	summary := report.Summarize(run)
	logger.Info().Str("run_id", summary.RunID).Int("finished", finished).Int("skipped", summary.Skipped).
		Int("degraded", summary.Degraded).Msg("run done")

	if path := cfg.Metrics.Textfile; path != "" {
		if err := prom.WriteTextfile(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to write metrics textfile")
		}
	}
	if err := writeReport(cfg.Report, summary); err != nil {
		return err
	}

	select {
	case err := <-errChan:
		return fmt.Errorf("run interrupted: %w", err)
	default:
	}
	return nil
}

func writeReport(rc utils.ReportConfig, summary *report.Summary) error {
	if rc.Output == "" {
		return nil
	}
	var w io.Writer = os.Stdout
	if rc.Output != "-" {
		f, err := os.Create(rc.Output)
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		defer f.Close()
		w = f
	}
	r := &report.Renderer{Dir: rc.TemplateDir, Name: rc.TemplateName}
	return r.Render(w, summary)
}
