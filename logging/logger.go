// Package logging holds the process wide log level and the zerolog sink.
//
// The level is the only global mutable state of the module. It is set once at
// process start with Init or SetLevel and read implicitly by every log call.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Critical
)

var levelNames = map[Level]string{Debug: "debug", Info: "info", Warn: "warn", Error: "error", Critical: "critical"}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warn", "warning":
		return Warn, nil
	case "error":
		return Error, nil
	case "critical":
		return Critical, nil
	}
	return Info, fmt.Errorf("unknown log level %q", s)
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	case Critical:
		return zerolog.FatalLevel
	}
	return zerolog.InfoLevel
}

type Config struct {
	Level  string    `yaml:"level" json:"level"`
	Format string    `yaml:"format" json:"format"` // json or console
	Output io.Writer `yaml:"-" json:"-"`
}

var (
	mu    sync.RWMutex
	log   zerolog.Logger
	level = Info
)

func init() {
	Init(Config{})
}

// Init configures the sink and the level.
func Init(cfg Config) error {
	lvl := Info
	if cfg.Level != "" {
		var err error
		if lvl, err = ParseLevel(cfg.Level); err != nil {
			return err
		}
	}
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339

	mu.Lock()
	defer mu.Unlock()
	log = zerolog.New(output).With().Timestamp().Logger()
	setLevel(lvl)
	return nil
}

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	setLevel(l)
}

func setLevel(l Level) {
	level = l
	zerolog.SetGlobalLevel(l.zerolog())
}

func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func With(stage string) zerolog.Logger {
	l := Logger()
	return l.With().Str("stage", stage).Logger()
}

func DebugEvent() *zerolog.Event {
	l := Logger()
	return l.Debug()
}

func InfoEvent() *zerolog.Event {
	l := Logger()
	return l.Info()
}

func WarnEvent() *zerolog.Event {
	l := Logger()
	return l.Warn()
}

func ErrorEvent() *zerolog.Event {
	l := Logger()
	return l.Error()
}

// CriticalEvent logs at the fatal level without exiting the process.
func CriticalEvent() *zerolog.Event {
	l := Logger()
	return l.WithLevel(zerolog.FatalLevel)
}
