package logx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a structured logger wrapping logrus. Every entry carries the
// component that produced it.
type Logger struct {
	entry     *logrus.Entry
	component string
}

// NewLogger creates a JSON logger writing to stdout at the given level
func NewLogger(level, component string) *Logger {
	return NewLoggerWithOutput(level, component, os.Stdout)
}

// NewLoggerWithOutput creates a logger writing to w
func NewLoggerWithOutput(level, component string, w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "msg",
		},
	})
	base.SetLevel(parseLevel(level))

	return &Logger{
		entry:     base.WithField("component", component),
		component: component,
	}
}

// WithComponent returns a logger sharing the same output under another component name
func (l *Logger) WithComponent(component string) *Logger {
	l = l.ensure()
	return &Logger{
		entry:     l.entry.WithField("component", component),
		component: component,
	}
}

// SetLevel changes the level of the underlying logger
func (l *Logger) SetLevel(level string) {
	l = l.ensure()
	l.entry.Logger.SetLevel(parseLevel(level))
}

// Level returns the current level as a string
func (l *Logger) Level() string {
	return l.ensure().entry.Logger.GetLevel().String()
}

// Component returns the component name
func (l *Logger) Component() string {
	return l.component
}

// Debug logs at debug level
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(logrus.DebugLevel, msg, args)
}

// Info logs at info level
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(logrus.InfoLevel, msg, args)
}

// Warn logs at warn level
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(logrus.WarnLevel, msg, args)
}

// Error logs at error level
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(logrus.ErrorLevel, msg, args)
}

// LogDebugVerbose logs a named event with a field map at debug level
func (l *Logger) LogDebugVerbose(event string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["event"] = event
	l.log(logrus.DebugLevel, "verbose: "+event, []interface{}{merged})
}

// LogStateChange records a transition of some piece of state
func (l *Logger) LogStateChange(component, from, to, reason string, fields map[string]interface{}) {
	merged := map[string]interface{}{
		"state_component": component,
		"from":            from,
		"to":              to,
		"reason":          reason,
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.log(logrus.InfoLevel, "state change", []interface{}{merged})
}

func (l *Logger) log(level logrus.Level, msg string, args []interface{}) {
	l = l.ensure()
	if !l.entry.Logger.IsLevelEnabled(level) {
		return
	}
	l.entry.WithFields(toFields(args)).Log(level, msg)
}

// ensure makes a zero-value Logger usable
func (l *Logger) ensure() *Logger {
	if l != nil && l.entry != nil {
		return l
	}
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(base)}
}

// toFields accepts either a single map or alternating key/value pairs
func toFields(args []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	if len(args) == 0 {
		return fields
	}
	if len(args) == 1 {
		switch m := args[0].(type) {
		case map[string]interface{}:
			for k, v := range m {
				fields[k] = normalize(v)
			}
			return fields
		case logrus.Fields:
			for k, v := range m {
				fields[k] = normalize(v)
			}
			return fields
		}
	}

	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		if i+1 >= len(args) {
			fields[key] = "(missing)"
			break
		}
		fields[key] = normalize(args[i+1])
	}
	return fields
}

// errors do not marshal to JSON on their own
func normalize(v interface{}) interface{} {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
