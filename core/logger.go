package core

// Logger is the application-wide structured logger. Implementations may
// attribute log entries to a user.User passed as a trailing argument.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
