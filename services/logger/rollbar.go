// Package logger provides core.Logger implementations: a plain standard
// library logger and one that forwards warnings and errors to Rollbar.
package logger

import (
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/rollbar/rollbar-go"
	rollbarerrs "github.com/rollbar/rollbar-go/errors"
)

// StdLogger logs everything to stderr. The default for development and tests.
type StdLogger struct {
	logger *log.Logger
	debug  bool
}

func NewStdLogger(debug bool) *StdLogger {
	return &StdLogger{
		logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
		debug:  debug,
	}
}

func (l *StdLogger) Debug(msg string, args ...interface{}) {
	if l.debug {
		l.log("DEBUG", msg, args)
	}
}
func (l *StdLogger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *StdLogger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *StdLogger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *StdLogger) Fatal(msg string, args ...interface{}) {
	l.log("FATAL", msg, args)
	os.Exit(1)
}

func (l *StdLogger) log(level, msg string, args []interface{}) {
	if len(args) > 0 {
		l.logger.Printf("%s: %s %v", level, msg, args)
		return
	}
	l.logger.Printf("%s: %s", level, msg)
}

// RollbarLogger logs locally and reports Warn and above to Rollbar.
type RollbarLogger struct {
	local  *StdLogger
	client *rollbar.Client
}

func NewRollbarLogger(token, env, build string, debug bool) *RollbarLogger {
	client := rollbar.NewAsync(token, env, build, "", "")
	client.SetStackTracer(rollbarerrs.StackTracer)
	return &RollbarLogger{
		local:  NewStdLogger(debug),
		client: client,
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) { l.local.Debug(msg, args...) }
func (l *RollbarLogger) Info(msg string, args ...interface{})  { l.local.Info(msg, args...) }

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.local.Warn(msg, args...)
	l.report(rollbar.WARN, msg, args)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.local.Error(msg, args...)
	l.report(rollbar.ERR, msg, args)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.CRIT, msg, args)
	l.client.Wait()
	l.local.Fatal(msg, args...)
}

func (l *RollbarLogger) Close() error {
	return l.client.Close()
}

func (l *RollbarLogger) report(level, msg string, args []interface{}) {
	// report the first error argument with its stack trace when there is one
	for _, arg := range args {
		if err, ok := arg.(error); ok {
			l.client.ErrorWithLevel(level, errors.WithMessage(err, msg))
			return
		}
	}
	if len(args) > 0 {
		l.client.Message(level, fmt.Sprintf("%s %v", msg, args))
		return
	}
	l.client.Message(level, msg)
}
