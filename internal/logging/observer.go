package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/orrn/presi/internal/core"
)

// EventLogger writes every spooler event to a zap logger. Terminal job
// events are logged at info, aborts at warn, everything else at debug.
type EventLogger struct {
	logger *zap.Logger
}

func NewEventLogger(logger *zap.Logger) *EventLogger {
	return &EventLogger{logger: logger.With(zap.String("component", "events"))}
}

func (l *EventLogger) Notify(e core.Event) {
	level := zapcore.DebugLevel
	switch e.Kind {
	case core.EventJobStarted, core.EventJobFinished:
		level = zapcore.InfoLevel
	case core.EventJobAborted:
		level = zapcore.WarnLevel
	}

	ce := l.logger.Check(level, string(e.Kind))
	if ce == nil {
		return
	}
	ce.Write(eventFields(e)...)
}

func eventFields(e core.Event) []zap.Field {
	switch e.Kind {
	case core.EventTypeDefined:
		return []zap.Field{zap.String("type", e.TypeName)}
	case core.EventConversionDefined:
		return []zap.Field{zap.String("from", e.FromType), zap.String("to", e.ToType), zap.Strings("command", e.Commands)}
	case core.EventPrinterDefined:
		return []zap.Field{zap.String("printer", e.Printer), zap.String("type", e.PrinterType)}
	case core.EventPrinterStatus:
		return []zap.Field{zap.String("printer", e.Printer), zap.String("status", string(e.PrinterStatus))}
	case core.EventJobCreated:
		return []zap.Field{zap.Int("job", e.JobID), zap.String("file", e.FileName), zap.String("type", e.FileType)}
	case core.EventJobStatus:
		return []zap.Field{zap.Int("job", e.JobID), zap.String("status", string(e.JobStatus))}
	case core.EventJobStarted:
		return []zap.Field{zap.Int("job", e.JobID), zap.String("printer", e.Printer), zap.Int("pgid", e.Group), zap.Strings("commands", e.Commands)}
	case core.EventJobFinished, core.EventJobAborted:
		return []zap.Field{zap.Int("job", e.JobID), zap.Int("exit_status", e.ExitStatus)}
	default:
		return []zap.Field{zap.Int("job", e.JobID)}
	}
}
