package domain

import "time"

// LogLevel tags a user-visible log event.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelError   LogLevel = "error"
)

// LogEvent is one line of an execution's log stream.
type LogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     LogLevel  `json:"level"`

	ProfileID string `json:"profile_id,omitempty"`
	JobID     string `json:"job_id,omitempty"`
}

// Result is the terminal outcome of an execution.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	Added   int `json:"added"`
	Updated int `json:"updated"`

	// Kind is set on failures that belong to the error taxonomy.
	Kind ErrorKind `json:"kind,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(msg string, counts ImportResult) Result {
	return Result{Success: true, Message: msg, Added: counts.Added, Updated: counts.Updated}
}

// Failed builds a failed result from err.
func Failed(err error) Result {
	return Result{Success: false, Message: Describe(err), Kind: KindOf(err)}
}
