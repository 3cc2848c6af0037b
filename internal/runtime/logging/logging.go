package logging

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields carries the structured key/value pairs attached to a log line.
type LogFields map[string]any

// BusLogger is what the bus logs through. The method set mirrors Watermill's
// LoggerAdapter, so any Watermill logger can be plugged in directly.
type BusLogger interface {
	With(fields LogFields) BusLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// EntryLogger is the non-generic form of EntryLoggerAdapter for loggers whose
// methods return the interface itself.
type EntryLogger interface {
	EntryLoggerAdapter[EntryLogger]
}

// EntryLoggerAdapter captures the capabilities required by
// NewEntryBusLogger. The constraint is generic so third-party entry-like
// loggers (for example, loggers whose methods return their own concrete
// interface type) can be used without additional wrappers.
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

var logLevelMapping = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogBusLogger adapts a slog.Logger through Watermill's slog adapter.
func NewSlogBusLogger(log *slog.Logger) BusLogger {
	if log == nil {
		panic("flowbus: slog logger cannot be nil")
	}
	return NewWatermillBusLogger(watermill.NewSlogLoggerWithLevelMapping(log, logLevelMapping))
}

// NewWatermillBusLogger wraps an existing Watermill LoggerAdapter so it can
// be supplied to NewBus.
func NewWatermillBusLogger(logger watermill.LoggerAdapter) BusLogger {
	if logger == nil {
		panic("flowbus: watermill logger cannot be nil")
	}
	return &watermillBusLogger{inner: logger}
}

// NewEntryBusLogger wraps an entry-style logger such as a logrus.Entry.
func NewEntryBusLogger[T EntryLoggerAdapter[T]](entry T) BusLogger {
	if any(entry) == nil {
		panic("flowbus: entry logger cannot be nil")
	}
	return &entryBusLogger[T]{entry: entry}
}

// NewNopBusLogger discards everything. Useful in tests and examples.
func NewNopBusLogger() BusLogger {
	return &watermillBusLogger{inner: watermill.NopLogger{}}
}

type watermillBusLogger struct {
	inner watermill.LoggerAdapter
}

type entryBusLogger[T EntryLoggerAdapter[T]] struct {
	entry T
}

func (e *entryBusLogger[T]) With(fields LogFields) BusLogger {
	if len(fields) == 0 {
		return e
	}
	return &entryBusLogger[T]{entry: applyEntryFields(e.entry, fields)}
}

func (e *entryBusLogger[T]) Debug(msg string, fields LogFields) {
	applyEntryFields(e.entry, fields).Debug(msg)
}

func (e *entryBusLogger[T]) Info(msg string, fields LogFields) {
	applyEntryFields(e.entry, fields).Info(msg)
}

func (e *entryBusLogger[T]) Error(msg string, err error, fields LogFields) {
	logger := applyEntryFields(e.entry, fields)
	if err != nil {
		logger = logger.WithError(err)
	}
	logger.Error(msg)
}

func (e *entryBusLogger[T]) Trace(msg string, fields LogFields) {
	applyEntryFields(e.entry, fields).Trace(msg)
}

func (w *watermillBusLogger) With(fields LogFields) BusLogger {
	return &watermillBusLogger{inner: w.inner.With(toWatermillFields(fields))}
}

func (w *watermillBusLogger) Debug(msg string, fields LogFields) {
	w.inner.Debug(msg, toWatermillFields(fields))
}

func (w *watermillBusLogger) Info(msg string, fields LogFields) {
	w.inner.Info(msg, toWatermillFields(fields))
}

func (w *watermillBusLogger) Error(msg string, err error, fields LogFields) {
	w.inner.Error(msg, err, toWatermillFields(fields))
}

func (w *watermillBusLogger) Trace(msg string, fields LogFields) {
	w.inner.Trace(msg, toWatermillFields(fields))
}

type busLoggerAdapter struct {
	base BusLogger
}

// NewWatermillAdapter converts a BusLogger back into a Watermill
// LoggerAdapter, for handing the bus logger to Watermill publishers and
// subscribers used by the bridge.
func NewWatermillAdapter(log BusLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("flowbus: BusLogger cannot be nil")
	}
	return &busLoggerAdapter{base: log}
}

func (s *busLoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	s.base.Error(msg, err, fromWatermillFields(fields))
}

func (s *busLoggerAdapter) Info(msg string, fields watermill.LogFields) {
	s.base.Info(msg, fromWatermillFields(fields))
}

func (s *busLoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	s.base.Debug(msg, fromWatermillFields(fields))
}

func (s *busLoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	s.base.Trace(msg, fromWatermillFields(fields))
}

func (s *busLoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &busLoggerAdapter{base: s.base.With(fromWatermillFields(fields))}
}

func toWatermillFields(fields LogFields) watermill.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return watermill.LogFields(fields)
}

func fromWatermillFields(fields watermill.LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	return LogFields(fields)
}

func applyEntryFields[T EntryLoggerAdapter[T]](entry T, fields LogFields) T {
	if len(fields) == 0 || any(entry) == nil {
		return entry
	}
	enriched := entry
	for key, value := range fields {
		enriched = enriched.WithField(key, value)
	}
	return enriched
}
