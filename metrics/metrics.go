// Package metrics records what happened to every processed date.
package metrics

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type DetectionInfo struct {
	Duration         time.Duration `json:"duration"`
	PercentCloudy    float64       `json:"percent_cloudy"`
	PercentShadows   float64       `json:"percent_shadows"`
	PercentInvalid   float64       `json:"percent_invalid"`
	ShadowsSkipped   bool          `json:"shadows_skipped"`
	SuppressedPixels int           `json:"suppressed_pixels"`
}

type FillInfo struct {
	Duration      time.Duration `json:"duration"`
	Bands         int           `json:"bands"`
	Approximated  float64       `json:"approximated_fraction"`
	Temporal      float64       `json:"temporal_fraction"`
	Degraded      bool          `json:"degraded"`
	BlendDegraded bool          `json:"blend_degraded"`
}

// DateMetrics is the record of one processing unit.
type DateMetrics struct {
	RunID     string         `json:"run_id"`
	Date      string         `json:"date"`
	Kind      string         `json:"kind"`
	StartTime string         `json:"start_time"`
	Duration  time.Duration  `json:"duration"`
	Detection *DetectionInfo `json:"detection,omitempty"`
	Fill      *FillInfo      `json:"fill,omitempty"`
	Skipped   bool           `json:"skipped"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (i *DateMetrics) ToJSON() (string, error) {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(i); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Run collects the records of one batch run.
type Run struct {
	ID      string
	Started time.Time

	logger Logger
	prom   *Prometheus

	mu      sync.Mutex
	records []*DateMetrics
}

func NewRun(logger Logger, prom *Prometheus) *Run {
	return &Run{ID: uuid.NewString(), Started: time.Now(), logger: logger, prom: prom}
}

// Collector fills the record of one date and hands it to the run when
// finished.
type Collector struct {
	Info  *DateMetrics
	start time.Time
	run   *Run
}

func (r *Run) NewCollector(date, kind string) *Collector {
	now := time.Now()
	return &Collector{
		Info:  &DateMetrics{RunID: r.ID, Date: date, Kind: kind, StartTime: now.UTC().Format(time.RFC3339)},
		start: now,
		run:   r,
	}
}

func (c *Collector) Fail(kind string, err error) {
	c.Info.Skipped = true
	c.Info.ErrorKind = kind
	if err != nil {
		c.Info.Error = err.Error()
	}
}

// Log closes the record. It must be called once per collector.
func (c *Collector) Log() {
	c.Info.Duration = time.Since(c.start)
	r := c.run
	r.mu.Lock()
	r.records = append(r.records, c.Info)
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.Observe(c.Info)
	}
	if r.logger != nil {
		r.logger.Log(c.Info)
	}
}

// Records returns the closed records in the order they were logged.
func (r *Run) Records() []*DateMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*DateMetrics, len(r.records))
	copy(out, r.records)
	return out
}
