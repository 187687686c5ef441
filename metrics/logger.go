package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nci/gapfill/logging"
)

type Logger interface {
	Log(info *DateMetrics)
}

// StdoutLogger writes every record as a JSON line on stdout.
type StdoutLogger struct {
	mu sync.Mutex
}

func NewStdoutLogger() *StdoutLogger {
	return &StdoutLogger{}
}

func (l *StdoutLogger) Log(info *DateMetrics) {
	infoStr, err := info.ToJSON()
	if err != nil {
		logger := logging.With("metrics")
		logger.Error().Err(err).Msg("StdoutLogger: encode")
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	os.Stdout.WriteString(infoStr)
}

const (
	defaultQueueSize      = 2000
	defaultMaxLogFileSize = 256 * 1024 * 1024
	defaultMaxLogFiles    = 10
)

// FileLogger appends the records to LogDir/metrics.log from a background
// writer, rotating the file once it reaches MaxLogFileSize.
type FileLogger struct {
	MetricsQueue   chan *DateMetrics
	LogDir         string
	MaxLogFileSize int64
	MaxLogFiles    int

	done chan struct{}
}

func NewFileLogger(logDir string, maxLogFileSize int64, maxLogFiles int) (*FileLogger, error) {
	if maxLogFileSize <= 0 {
		maxLogFileSize = defaultMaxLogFileSize
	}
	if maxLogFiles <= 0 {
		maxLogFiles = defaultMaxLogFiles
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}
	l := &FileLogger{
		MetricsQueue:   make(chan *DateMetrics, defaultQueueSize),
		LogDir:         logDir,
		MaxLogFileSize: maxLogFileSize,
		MaxLogFiles:    maxLogFiles,
		done:           make(chan struct{}),
	}
	f, err := l.openLogFile()
	if err != nil {
		return nil, err
	}
	go l.startLogWriter(f)
	return l, nil
}

func (l *FileLogger) Log(info *DateMetrics) {
	l.MetricsQueue <- info
}

// Close flushes the queue and stops the writer. Log must not be called
// afterwards.
func (l *FileLogger) Close() {
	close(l.MetricsQueue)
	<-l.done
}

func (l *FileLogger) logPath() string {
	return filepath.Join(l.LogDir, "metrics.log")
}

func (l *FileLogger) openLogFile() (*os.File, error) {
	return os.OpenFile(l.logPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func (l *FileLogger) startLogWriter(f *os.File) {
	defer close(l.done)
	logger := logging.With("metrics")
	for info := range l.MetricsQueue {
		infoStr, err := info.ToJSON()
		if err != nil {
			logger.Error().Err(err).Msg("FileLogger: encode")
			continue
		}
		f = l.tryRotateLogFile(f)
		if _, err := f.WriteString(infoStr); err != nil {
			logger.Error().Err(err).Msg("FileLogger: write")
			continue
		}
		f.Sync()
	}
	f.Close()
}

// tryRotateLogFile moves a full log to metrics.log.N, reusing the oldest
// slot once MaxLogFiles rotated files exist.
func (l *FileLogger) tryRotateLogFile(curr *os.File) *os.File {
	logger := logging.With("metrics")
	info, err := curr.Stat()
	if err != nil || info.Size() < l.MaxLogFileSize {
		return curr
	}

	var rotated string
	var oldest time.Time
	for i := 0; i < l.MaxLogFiles; i++ {
		p := fmt.Sprintf("%s.%d", l.logPath(), i)
		st, err := os.Stat(p)
		if os.IsNotExist(err) {
			rotated = p
			break
		}
		if err == nil && (rotated == "" || st.ModTime().Before(oldest)) {
			rotated, oldest = p, st.ModTime()
		}
	}

	curr.Close()
	if err := os.Rename(l.logPath(), rotated); err != nil {
		logger.Error().Err(err).Msg("FileLogger: rotate")
	} else {
		logger.Debug().Str("file", strings.TrimPrefix(rotated, l.LogDir+string(filepath.Separator))).Msg("metrics log rotated")
	}

	f, err := l.openLogFile()
	if err != nil {
		logger.Error().Err(err).Msg("FileLogger: reopen")
		return curr
	}
	return f
}
