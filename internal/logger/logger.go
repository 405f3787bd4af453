package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Operational lines keep logrus' own key names. Invocation lines written by
// greeter.StreamLogger use Lambda's timestamp/message keys instead.
const (
	logFieldTimeStamp = "time"
	logFieldLevel     = "level"
	logFieldMessage   = "msg"
	logFieldScope     = "scope"
)

var (
	loggers     = map[string]*logrus.Logger{}
	loggersLock = sync.RWMutex{}

	settings = struct {
		json  bool
		level logrus.Level
		out   io.Writer
	}{level: logrus.InfoLevel, out: os.Stderr}
)

// New returns the named logger, creating it with the current settings on
// first use. Every line carries the name as its scope.
func New(name string) *logrus.Entry {
	loggersLock.Lock()
	defer loggersLock.Unlock()

	l, ok := loggers[name]
	if !ok {
		l = logrus.New()
		apply(l)
		loggers[name] = l
	}
	return l.WithField(logFieldScope, name)
}

// Configure sets format and level on every logger, existing and future.
// Level accepts the Lambda spellings (TRACE, DEBUG, INFO, WARN, ERROR, FATAL).
func Configure(format, level string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	loggersLock.Lock()
	defer loggersLock.Unlock()

	settings.json = strings.EqualFold(format, "json")
	settings.level = lvl
	for _, l := range loggers {
		apply(l)
	}
	return nil
}

// SetOutput redirects every logger to dst.
func SetOutput(dst io.Writer) {
	loggersLock.Lock()
	defer loggersLock.Unlock()

	settings.out = dst
	for _, l := range loggers {
		l.SetOutput(dst)
	}
}

func apply(l *logrus.Logger) {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  logFieldTimeStamp,
		logrus.FieldKeyLevel: logFieldLevel,
		logrus.FieldKeyMsg:   logFieldMessage,
	}
	if settings.json {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap:        fieldMap,
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap:        fieldMap,
		})
	}
	l.SetLevel(settings.level)
	l.SetOutput(settings.out)
}
