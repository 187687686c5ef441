package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nci/gapfill/metrics"
)

func testRun() *metrics.Run {
	run := metrics.NewRun(nil, nil)
	c := run.NewCollector("2021-01-06", "multispectral")
	c.Info.Detection = &metrics.DetectionInfo{PercentCloudy: 0.25}
	c.Info.Fill = &metrics.FillInfo{Approximated: 0.125, Degraded: true}
	c.Log()
	c = run.NewCollector("2021-01-01", "multispectral")
	c.Fail("missing_band", errors.New("no B04"))
	c.Log()
	return run
}

func TestSummarize(t *testing.T) {
	s := Summarize(testRun())
	assert.Equal(t, 1, s.Processed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Degraded)
	assert.Equal(t, []FailureCount{{Kind: "missing_band", Count: 1}}, s.Failures)
	assert.Equal(t, "2021-01-01", s.Records[0].Date)
}

func TestRenderDefault(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, (&Renderer{}).Render(&out, Summarize(testRun())))
	text := out.String()
	assert.Contains(t, text, "1 processed, 1 skipped, 1 degraded")
	assert.Contains(t, text, "2021-01-01 multispectral skipped (missing_band: no B04)")
	assert.Contains(t, text, "cloudy=25.0%")
	assert.Contains(t, text, "approximated=12.5%")
}

func TestRenderFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.jet"), []byte(`{{ .Processed }}/{{ .Skipped }}`), 0644))

	var out bytes.Buffer
	require.NoError(t, (&Renderer{Dir: dir, Name: "short.jet"}).Render(&out, Summarize(testRun())))
	assert.Equal(t, "1/1", out.String())

	err := (&Renderer{Dir: dir, Name: "missing.jet"}).Render(&out, Summarize(testRun()))
	assert.Error(t, err)
}
