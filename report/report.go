// Package report renders the end of run summary with jet templates.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/edisonguo/jet"

	"github.com/nci/gapfill/metrics"
)

const defaultName = "gapfill_report.jet"

const defaultTemplate = `gapfill run {{ .RunID }}
started  {{ .Started }}
duration {{ .Duration }}
dates    {{ .Processed }} processed, {{ .Skipped }} skipped, {{ .Degraded }} degraded
{{ range i, k := .Failures }}  {{ k.Kind }}: {{ k.Count }}
{{ end }}
{{ range i, r := .Records }}{{ r.Date }} {{ r.Kind }}{{ if r.Skipped }} skipped ({{ r.ErrorKind }}: {{ r.Error }}){{ else }}{{ if r.Detection }} cloudy={{ percent(r.Detection.PercentCloudy) }} shadows={{ percent(r.Detection.PercentShadows) }} invalid={{ percent(r.Detection.PercentInvalid) }}{{ end }}{{ if r.Fill }} approximated={{ percent(r.Fill.Approximated) }} temporal={{ percent(r.Fill.Temporal) }}{{ if r.Fill.Degraded }} degraded{{ end }}{{ end }}{{ end }}
{{ end }}`

type FailureCount struct {
	Kind  string
	Count int
}

// Summary is the data the templates see.
type Summary struct {
	RunID     string
	Started   string
	Duration  time.Duration
	Processed int
	Skipped   int
	Degraded  int
	Failures  []FailureCount
	Records   []*metrics.DateMetrics
}

func Summarize(run *metrics.Run) *Summary {
	s := &Summary{
		RunID:    run.ID,
		Started:  run.Started.UTC().Format(time.RFC3339),
		Duration: time.Since(run.Started).Round(time.Millisecond),
		Records:  run.Records(),
	}
	sort.SliceStable(s.Records, func(i, j int) bool { return s.Records[i].Date < s.Records[j].Date })

	failures := make(map[string]int)
	for _, r := range s.Records {
		if r.Skipped {
			s.Skipped++
			failures[r.ErrorKind]++
			continue
		}
		s.Processed++
		if r.Fill != nil && (r.Fill.Degraded || r.Fill.BlendDegraded) {
			s.Degraded++
		}
	}
	for k, n := range failures {
		s.Failures = append(s.Failures, FailureCount{Kind: k, Count: n})
	}
	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].Kind < s.Failures[j].Kind })
	return s
}

// Renderer executes the built in template, or Name looked up in Dir when
// both are set.
type Renderer struct {
	Dir  string
	Name string
}

func (r *Renderer) Render(w io.Writer, s *Summary) error {
	dir := r.Dir
	if dir == "" {
		dir = "."
	}
	view := jet.NewSet(jet.SafeWriter(func(w io.Writer, b []byte) {
		w.Write(b)
	}), dir, "/")
	view.AddGlobal("percent", func(v float64) string {
		return fmt.Sprintf("%.1f%%", 100*v)
	})

	var (
		tmpl *jet.Template
		err  error
	)
	if r.Dir != "" && r.Name != "" {
		tmpl, err = view.GetTemplate(r.Name)
	} else {
		tmpl, err = view.LoadTemplate(defaultName, defaultTemplate)
	}
	if err != nil {
		return fmt.Errorf("report template: %w", err)
	}
	if err := tmpl.Execute(w, make(jet.VarMap), s); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
