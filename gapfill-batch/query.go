package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nci/gapfill/crawl"
	"github.com/nci/gapfill/raster"
	"github.com/nci/gapfill/store"
	"github.com/nci/gapfill/utils"
)

func setupSummaryCommand(config func() *utils.Config) *cobra.Command {
	var index string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the recorded index summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config()
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			names := cfg.Indices.Summaries
			if index != "" {
				names = []string{index}
			}
			if len(names) == 0 {
				names = raster.BuiltinIndices()
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tDATE\tDATA\tCLOUDY\tSHADOW\tMIN\tMAX\tMEAN\tPIXELS")
			for _, name := range names {
				sums, err := st.IndexSummaries(cmd.Context(), name)
				if err != nil {
					return err
				}
				for _, s := range sums {
					data := "real"
					if s.UseApproximatedData {
						data = "approximated"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.4f\t%.4f\t%.4f\t%d\n", s.Index, s.Date, data,
						excluded(s.ExcludeCloudyPixels), excluded(s.ExcludeShadowPixels), s.Min, s.Max, s.Mean, s.NumPixels)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "Only print this index")
	return cmd
}

func excluded(b bool) string {
	if b {
		return "excluded"
	}
	return "kept"
}

func setupDatesCommand(config func() *utils.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "dates",
		Short: "List the date folders and their recorded detection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config()
			folders, err := crawl.Discover(cmd.Context(), cfg.BaseFolder)
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			records, err := st.Dates(cmd.Context())
			if err != nil {
				return err
			}
			byDate := make(map[raster.Date]store.DateRecord, len(records))
			for _, r := range records {
				byDate[r.Date] = r
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tKIND\tBANDS\tCLOUDS\tSHADOWS\tCLOUDY\tSHADOW\tINVALID")
			for _, f := range folders {
				rec, ok := byDate[f.Date]
				if !ok {
					fmt.Fprintf(w, "%s\t%s\t%d\t-\t-\t-\t-\t-\n", f.Date, f.Kind, len(f.Bands))
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%t\t%s\t%s\t%s\n", f.Date, f.Kind, len(f.Bands),
					rec.CloudsComputed, rec.ShadowsComputed,
					percent(rec.PercentCloudy.Float64, rec.PercentCloudy.Valid),
					percent(rec.PercentShadows.Float64, rec.PercentShadows.Valid),
					percent(rec.PercentInvalid.Float64, rec.PercentInvalid.Valid))
			}
			return w.Flush()
		},
	}
}

func percent(v float64, valid bool) string {
	if !valid {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", v*100)
}
