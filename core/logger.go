package core

// Logger reports app events to an external tracker in addition to stdout.
// Implementations may inspect args for well-known types (eg. the acting
// user) to enrich the report.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
