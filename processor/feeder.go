package processor

import (
	"context"

	"github.com/nci/gapfill/crawl"
	"github.com/nci/gapfill/logging"
	"github.com/nci/gapfill/metrics"
)

// DateFeeder turns discovered folders into units, one collector each.
type DateFeeder struct {
	Context context.Context
	Out     chan *DateUnit
	Error   chan error
	Metrics *metrics.Run
}

func NewDateFeeder(ctx context.Context, run *metrics.Run, errChan chan error) *DateFeeder {
	return &DateFeeder{
		Context: ctx,
		Out:     make(chan *DateUnit, 16),
		Error:   errChan,
		Metrics: run,
	}
}

func (f *DateFeeder) Run(folders []crawl.Folder) {
	defer close(f.Out)
	for _, folder := range folders {
		select {
		case <-f.Context.Done():
			logger := logging.With("feeder")
			logger.Warn().Int("remaining", len(folders)).Msg("run cancelled before every date was queued")
			sendErr(f.Error, f.Context.Err())
			return
		case f.Out <- newDateUnit(folder, f.Metrics.NewCollector(folder.Date.String(), folder.Kind.String())):
		}
		folders = folders[1:]
	}
}

// sendErr reports a run level error without blocking when nobody listens.
func sendErr(errChan chan error, err error) {
	if errChan == nil {
		return
	}
	select {
	case errChan <- err:
	default:
	}
}

// skip closes the record of a date that cannot go further.
func skip(u *DateUnit, stage string, err error) {
	kind := ErrorKind(err)
	logger := logging.With(stage)
	ev := logger.Error()
	if kind == KindMissingBand {
		ev = logger.Warn()
	}
	ev.Str("date", u.Date().String()).Str("error_kind", kind).Err(err).Msg("date skipped")
	u.Collector.Fail(kind, err)
	u.Collector.Log()
}
