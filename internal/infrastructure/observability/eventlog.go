package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType names an externally observable agent action.
type EventType string

const (
	EventAssigned          EventType = "schedule_assigned"
	EventLoginSucceeded    EventType = "login_succeeded"
	EventLoginFailed       EventType = "login_failed"
	EventClockOutSucceeded EventType = "clock_out_succeeded"
	EventClockOutFailed    EventType = "clock_out_failed"
	EventClockOutSkipped   EventType = "clock_out_skipped"
	EventTickPanicked      EventType = "tick_panicked"
)

type Event struct {
	Type           EventType
	EmployeeNumber string
	Success        bool
	At             time.Time
	Target         *time.Time
	ErrorCode      string
	Detail         string
}

// EventLogger writes one line per Event to an append-only sink. Writes are
// serialized so concurrent agents never interleave within a line.
type EventLogger struct {
	logger *Logger
	file   *os.File
	mu     sync.Mutex
}

// NewEventLogger opens (or creates) filePath for appending.
func NewEventLogger(filePath, format string) (*EventLogger, error) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, err
	}

	el := NewEventLoggerWithWriter(file, format)
	el.file = file
	return el, nil
}

// NewEventLoggerWithWriter builds an EventLogger on an arbitrary writer.
func NewEventLoggerWithWriter(w io.Writer, format string) *EventLogger {
	var encoder zapcore.Encoder
	if format == "console" {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.CallerKey = ""
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		encoderConfig.LevelKey = "level"
		encoderConfig.MessageKey = "event"
		encoderConfig.CallerKey = ""
		encoderConfig.StacktraceKey = ""
		encoderConfig.LineEnding = zapcore.DefaultLineEnding
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.InfoLevel,
	)

	return &EventLogger{logger: &Logger{zap: zap.New(core)}}
}

// Close releases the underlying file, if any.
func (e *EventLogger) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_ = e.logger.Sync()
	if e.file != nil {
		err := e.file.Close()
		e.file = nil
		return err
	}
	return nil
}

func (e *EventLogger) LogEvent(ctx context.Context, event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if event.At.IsZero() {
		event.At = time.Now()
	}

	fields := []zap.Field{
		zap.String("employee_number", event.EmployeeNumber),
		zap.Bool("success", event.Success),
		zap.Time("at", event.At),
	}
	if event.Target != nil {
		fields = append(fields, zap.Time("target_out", *event.Target))
	}
	if event.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", event.ErrorCode))
	}
	if event.Detail != "" {
		fields = append(fields, zap.String("detail", event.Detail))
	}
	if cycleID, ok := ctx.Value(CycleIDKey).(string); ok {
		fields = append(fields, zap.String("cycle_id", cycleID))
	}

	if event.Success {
		e.logger.zap.Info(string(event.Type), fields...)
	} else {
		e.logger.zap.Warn(string(event.Type), fields...)
	}
}
