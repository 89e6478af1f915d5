package domain

import "strconv"

// Severity follows the FEWS PI diagnostics numbering.
type Severity int

const (
	SeverityFatal Severity = iota
	SeverityError
	SeverityWarning
	SeverityInfo
	SeverityDebug
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "FATAL"
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityInfo:
		return "INFO"
	case SeverityDebug:
		return "DEBUG"
	default:
		return "LEVEL(" + strconv.Itoa(int(s)) + ")"
	}
}

// Diagnostic is one line of the FEWS diagnostics file.
type Diagnostic struct {
	Severity Severity
	Message  string
}
