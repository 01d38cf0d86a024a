package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelColors = map[LogLevel]*color.Color{
	DebugLevel: color.New(color.FgCyan),
	InfoLevel:  color.New(color.FgGreen),
	WarnLevel:  color.New(color.FgYellow),
	ErrorLevel: color.New(color.FgRed),
}

// Logger provides leveled, structured logging. Derived loggers returned by
// WithField share the output writer with their parent.
type Logger struct {
	mu     *sync.Mutex
	level  LogLevel
	format string
	output io.Writer
	fields map[string]interface{}
}

// NewLogger creates a logger writing to output in the given format
// ("text" or "json").
func NewLogger(level LogLevel, format string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{
		mu:     &sync.Mutex{},
		level:  level,
		format: format,
		output: output,
		fields: make(map[string]interface{}),
	}
}

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		mu:     l.mu,
		level:  l.level,
		format: l.format,
		output: l.output,
		fields: merged,
	}
}

// WithError adds an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string) { l.log(DebugLevel, msg) }

// Info logs at info level.
func (l *Logger) Info(msg string) { l.log(InfoLevel, msg) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string) { l.log(WarnLevel, msg) }

// Error logs at error level.
func (l *Logger) Error(msg string) { l.log(ErrorLevel, msg) }

func (l *Logger) log(level LogLevel, msg string) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		l.writeJSON(level, msg)
		return
	}
	l.writeText(level, msg)
}

func (l *Logger) writeJSON(level LogLevel, msg string) {
	entry := make(map[string]interface{}, len(l.fields)+3)
	for k, v := range l.fields {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = levelString(level)
	entry["msg"] = msg

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.output, `{"level":"error","msg":"marshal log entry: %v"}`+"\n", err)
		return
	}
	data = append(data, '\n')
	_, _ = l.output.Write(data)
}

func (l *Logger) writeText(level LogLevel, msg string) {
	tag := fmt.Sprintf("[%s]", strings.ToUpper(levelString(level)))
	if c, ok := levelColors[level]; ok {
		tag = c.Sprint(tag)
	}

	fmt.Fprintf(l.output, "%s %s %s",
		time.Now().Format(time.RFC3339), tag, msg)

	// Deterministic field order keeps text logs diffable.
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(l.output, " %s=%v", k, l.fields[k])
	}
	fmt.Fprintln(l.output)
}

func levelString(l LogLevel) string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}
