// Package logger emits structured JSON log lines, one object per line.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level orders log severities. Messages below a logger's level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError

	// levelQuiet sits above every real level so nothing passes the filter.
	levelQuiet
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel reads a level name, case-insensitively. Unknown names
// fall back to info rather than erroring, so a typo in an env var
// never silences the process.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field is one structured key-value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field      { return Field{key, value} }
func Int(key string, value int) Field     { return Field{key, value} }
func Int64(key string, value int64) Field { return Field{key, value} }
func Bool(key string, value bool) Field   { return Field{key, value} }
func Any(key string, value any) Field     { return Field{key, value} }

// Duration renders as its string form ("1.5s"), not nanoseconds.
func Duration(key string, value time.Duration) Field {
	return Field{key, value.String()}
}

// Err is the conventional error field. A nil error logs as null.
func Err(err error) Field {
	if err == nil {
		return Field{"error", nil}
	}
	return Field{"error", err.Error()}
}

// Field helpers for the identifiers this codebase logs most.
func UserID(id string) Field      { return String("user_id", id) }
func SessionID(id string) Field   { return String("session_id", id) }
func Module(name string) Field    { return String("module", name) }
func Word(text string) Field      { return String("word", text) }
func StorageKey(key string) Field { return String("storage_key", key) }
func Component(name string) Field { return String("component", name) }

// Options configures a Logger.
type Options struct {
	// Output receives the JSON lines. Defaults to stdout.
	Output io.Writer

	// Level is the minimum severity written.
	Level Level

	// AddCaller records the file:line of the log call site.
	AddCaller bool
}

// DefaultOptions returns stdout, info level, caller enabled.
func DefaultOptions() Options {
	return Options{Output: os.Stdout, Level: LevelInfo, AddCaller: true}
}

// Logger writes structured log lines. It is safe for concurrent use,
// and With copies are cheap.
type Logger struct {
	out       io.Writer
	level     Level
	addCaller bool
	base      []Field

	mu *sync.Mutex
}

// New creates a Logger from opts.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		out:       out,
		level:     opts.Level,
		addCaller: opts.AddCaller,
		mu:        &sync.Mutex{},
	}
}

// Default creates a Logger with DefaultOptions.
func Default() *Logger {
	return New(DefaultOptions())
}

// Discard creates a Logger that drops everything. Tests use it to keep
// service constructors quiet.
func Discard() *Logger {
	return New(Options{Output: io.Discard, Level: levelQuiet})
}

// With returns a Logger that attaches fields to every line it writes.
// The receiver is unchanged; the output writer and its lock are shared.
func (l *Logger) With(fields ...Field) *Logger {
	child := *l
	child.base = make([]Field, 0, len(l.base)+len(fields))
	child.base = append(child.base, l.base...)
	child.base = append(child.base, fields...)
	return &child
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

type line struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Caller    string         `json:"caller,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func (l *Logger) write(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	entry := line{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
	}
	if l.addCaller {
		entry.Caller = callSite()
	}
	if n := len(l.base) + len(fields); n > 0 {
		entry.Fields = make(map[string]any, n)
		for _, f := range l.base {
			entry.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"level":%q,"message":%q}`, entry.Level, msg))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(data, '\n'))
}

// callSite reports the file:line of the caller of Debug/Info/Warn/Error.
func callSite() string {
	_, file, lineNo, ok := runtime.Caller(3)
	if !ok {
		return ""
	}
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}
	return fmt.Sprintf("%s:%d", file, lineNo)
}
