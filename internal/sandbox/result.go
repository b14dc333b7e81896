package sandbox

import "time"

// Status classifies how an execution concluded.
type Status string

const (
	StatusOK                Status = "ok"
	StatusError             Status = "error"
	StatusTimeout           Status = "timeout"
	StatusSecurityViolation Status = "security_violation"
)

// Result is the structured outcome of one sandboxed execution. Stdout and
// Stderr are truncated to the configured MaxOutputBytes; Truncated records
// whether truncation happened.
type Result struct {
	Status     Status        `json:"status"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	Duration   time.Duration `json:"duration"`
	ExitStatus int           `json:"exit_status"`
	Truncated  bool          `json:"truncated"`

	// DeniedPattern is set only when Status is StatusSecurityViolation and
	// the rejection happened at the pre-spawn static screen.
	DeniedPattern string `json:"denied_pattern,omitempty"`
}
