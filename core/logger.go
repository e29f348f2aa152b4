package core

// Logger is implemented by the logging backends.
// args may hold errors, map[string]interface{} extras and at most one Person.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the user an entry is reported for.
type Person struct {
	ID       string
	Username string
	Email    string
}
