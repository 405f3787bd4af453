package greeter

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/sirupsen/logrus"
)

type LogFormat string

const (
	LogFormatJSON LogFormat = "JSON"
	LogFormatText LogFormat = "Text"
)

// LogFormatFromEnv reads the format Lambda advertises through
// AWS_LAMBDA_LOG_FORMAT. Anything but JSON means Text.
func LogFormatFromEnv() LogFormat {
	return ParseLogFormat(os.Getenv("AWS_LAMBDA_LOG_FORMAT"))
}

func ParseLogFormat(s string) LogFormat {
	if strings.EqualFold(s, string(LogFormatJSON)) {
		return LogFormatJSON
	}
	return LogFormatText
}

// StreamLogger writes one formatted line per Log call to an io.Writer.
// Unlike logrus.Entry.Log it reports write failures to the caller.
type StreamLogger struct {
	mu        sync.Mutex
	out       io.Writer
	base      *logrus.Logger
	formatter logrus.Formatter
	fields    logrus.Fields
}

func NewStreamLogger(w io.Writer, format LogFormat, fields logrus.Fields) *StreamLogger {
	base := logrus.New()
	base.SetOutput(w)
	return &StreamLogger{
		out:       w,
		base:      base,
		formatter: formatterFor(format),
		fields:    fields,
	}
}

func formatterFor(format LogFormat) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "timestamp",
		logrus.FieldKeyLevel: "level",
		logrus.FieldKeyMsg:   "message",
	}
	if format == LogFormatJSON {
		return &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap:        fieldMap,
		}
	}
	return &logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}

func (l *StreamLogger) Log(text string) error {
	entry := logrus.NewEntry(l.base).WithFields(l.fields)
	entry.Time = time.Now()
	entry.Level = logrus.InfoLevel
	entry.Message = text
	line, err := l.formatter.Format(entry)
	if err != nil {
		return fmt.Errorf("failed to format log line: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.out.Write(line)
	if err != nil {
		return fmt.Errorf("failed to write log line: %w", err)
	}
	return nil
}

// LoggerForInvocation returns a StreamLogger tagged with the request id and
// function ARN of the invocation carried by ctx, if any.
func LoggerForInvocation(ctx context.Context, w io.Writer, format LogFormat) *StreamLogger {
	fields := logrus.Fields{}
	if lambdacontext.FunctionName != "" {
		fields["function"] = lambdacontext.FunctionName
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		fields["requestId"] = lc.AwsRequestID
		if lc.InvokedFunctionArn != "" {
			fields["functionArn"] = lc.InvokedFunctionArn
		}
	}
	return NewStreamLogger(w, format, fields)
}
