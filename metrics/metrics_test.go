package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLogger struct {
	infos []*DateMetrics
}

func (m *memLogger) Log(info *DateMetrics) {
	m.infos = append(m.infos, info)
}

func TestRunCollects(t *testing.T) {
	mem := &memLogger{}
	prom := NewPrometheus()
	run := NewRun(mem, prom)
	assert.Len(t, run.ID, 36)

	c := run.NewCollector("2021-01-01", "multispectral")
	c.Info.Detection = &DetectionInfo{PercentCloudy: 0.2, PercentInvalid: 0.1}
	c.Info.Fill = &FillInfo{Degraded: true}
	c.Log()

	c = run.NewCollector("2021-01-06", "multispectral")
	c.Fail("missing_band", errors.New("B04 missing"))
	c.Log()

	require.Len(t, run.Records(), 2)
	assert.Len(t, mem.infos, 2)
	assert.Equal(t, run.ID, mem.infos[1].RunID)
	assert.True(t, mem.infos[1].Skipped)

	assert.Equal(t, 1.0, testutil.ToFloat64(prom.dates.WithLabelValues("multispectral", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.failures.WithLabelValues("missing_band")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.degraded.WithLabelValues("laplace")))

	path := filepath.Join(t.TempDir(), "gapfill.prom")
	require.NoError(t, prom.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gapfill_dates_total")
}

func TestToJSON(t *testing.T) {
	s, err := (&DateMetrics{Date: "2021-01-01", Error: "a<b"}).ToJSON()
	require.NoError(t, err)
	assert.Contains(t, s, `"date":"2021-01-01"`)
	assert.Contains(t, s, `a<b`)
	assert.True(t, strings.HasSuffix(s, "\n"))
}

func TestFileLoggerRotates(t *testing.T) {
	dir := t.TempDir()
	l, err := NewFileLogger(dir, 10, 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		l.Log(&DateMetrics{Date: "2021-01-01"})
	}
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "metrics.log*"))
	require.NoError(t, err)
	assert.Len(t, files, 3)
}
