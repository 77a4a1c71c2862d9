package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// Field is one key/value pair. A Field with an empty Key is skipped.
type Field struct {
	Key   string
	Value any
}

func String(k, v string) Field                 { return Field{k, v} }
func Int(k string, v int) Field                { return Field{k, v} }
func Bool(k string, v bool) Field              { return Field{k, v} }
func Duration(k string, v time.Duration) Field { return Field{k, v} }
func Time(k string, v time.Time) Field         { return Field{k, v} }
func Any(k string, v any) Field                { return Field{k, v} }

// Err is skipped when err is nil.
func Err(err error) Field {
	if err == nil {
		return Field{}
	}
	return Field{zerolog.ErrorFieldName, err}
}

// Stack is skipped when stack is blank.
func Stack(stack string) Field {
	if strings.TrimSpace(stack) == "" {
		return Field{}
	}
	return Field{"stack", stack}
}

func pairs(fields []Field) []any {
	out := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		if f.Key != "" {
			out = append(out, f.Key, f.Value)
		}
	}
	return out
}

// Logger is passed by value. The zero Logger discards everything.
type Logger struct {
	zl  zerolog.Logger
	set bool
}

func Nop() Logger { return Logger{zl: zerolog.Nop(), set: true} }

// NewWriter logs JSON lines to w. Tests use it to inspect output.
func NewWriter(w io.Writer, level string) Logger {
	return Logger{zl: zerolog.New(w).Level(parseLevel(level, LevelDebug)).With().Timestamp().Logger(), set: true}
}

func (l Logger) IsZero() bool { return !l.set }

func (l Logger) Enabled(level Level) bool {
	return l.set && level >= l.zl.GetLevel() && l.zl.GetLevel() != zerolog.Disabled
}

// With returns a child logger that adds fields to every entry.
func (l Logger) With(fields ...Field) Logger {
	if !l.set || len(fields) == 0 {
		return l
	}
	return Logger{zl: l.zl.With().Fields(pairs(fields)).Logger(), set: true}
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(l.zl.Trace(), msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(l.zl.Warn(), msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), msg, fields) }

func (l Logger) emit(e *zerolog.Event, msg string, fields []Field) {
	if !l.set || e == nil {
		return
	}
	// 0 = caller, 1 = emit, 2 = Info etc., 3 = the logging call site.
	if _, file, line, ok := runtime.Caller(3); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	e.Fields(pairs(fields)).Msg(msg)
}

// StackTrace formats up to maxFrames frames of the current goroutine,
// skipping the first skip frames (see runtime.Callers).
func StackTrace(skip, maxFrames int) string {
	if maxFrames <= 0 {
		maxFrames = 16
	}
	pcs := make([]uintptr, maxFrames)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(skip, pcs)])
	var lines []string
	for {
		fr, more := frames.Next()
		if fr.File != "" {
			lines = append(lines, fmt.Sprintf("%s\n  %s:%d", fr.Function, fr.File, fr.Line))
		}
		if !more {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// Service owns the sinks behind the root Logger.
type Service struct {
	file *os.File
}

// New builds the root logger from cfg. Console output is used when asked for
// or when no other sink could be opened.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stderr))
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(os.Stderr))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, LevelInfo)).
		With().Timestamp().Logger()
	return s, Logger{zl: zl, set: true}
}

func (s *Service) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	return f.Close()
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "reviewbadge.log"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log dir for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func consoleWriter(f *os.File) io.Writer {
	tty := isatty.IsTerminal(f.Fd())
	cw := zerolog.ConsoleWriter{Out: f, NoColor: !tty, TimeFormat: "15:04:05.000"}
	if !tty {
		// journald stamps each line already.
		cw.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	return cw
}

func parseLevel(s string, def Level) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	if s == "" {
		return def
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return def
	}
	return lvl
}
