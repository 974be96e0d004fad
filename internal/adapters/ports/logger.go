package ports

// Logger is the structured logger the settlement provider adapters write to
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is one key/value pair on a log line. Sensitive values are masked
// before they reach any sink.
type Field struct {
	Value     interface{}
	Key       string
	Sensitive bool
}

// String creates a string field
func String(key, val string) Field {
	return Field{Key: key, Value: val}
}

// Int creates an integer field
func Int(key string, val int) Field {
	return Field{Key: key, Value: val}
}

// Masked creates a field whose value is logged with all but its last four
// characters hidden
func Masked(key, val string) Field {
	return Field{Key: key, Value: val, Sensitive: true}
}
