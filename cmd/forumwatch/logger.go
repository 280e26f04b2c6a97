package main

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

// consoleLogger implements forumwatch.Logger on phuslu/log.
type consoleLogger struct {
	logger *log.Logger
}

// newConsoleLogger writes colored console output to stderr when attached to
// a terminal, JSON lines otherwise.
func newConsoleLogger(level string) *consoleLogger {
	var writer log.Writer = &log.IOWriter{Writer: os.Stderr}
	if log.IsTerminal(os.Stderr.Fd()) {
		writer = &log.ConsoleWriter{ColorOutput: true, Writer: os.Stderr}
	}
	return newLoggerWithWriter(level, writer)
}

func newLoggerWithWriter(level string, writer log.Writer) *consoleLogger {
	return &consoleLogger{
		logger: &log.Logger{
			Level:      log.ParseLevel(level),
			TimeFormat: "15:04:05",
			Writer:     writer,
		},
	}
}

// jsonLogger is used by tests.
func jsonLogger(level string, w io.Writer) *consoleLogger {
	return newLoggerWithWriter(level, &log.IOWriter{Writer: w})
}

func (l *consoleLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *consoleLogger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l *consoleLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *consoleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l *consoleLogger) Info(message string) {
	l.logger.Info().Msg(message)
}
