package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a failure mode of the pipeline.
type ErrorCode string

const (
	// MalformedSource indicates the tokenizer could not find an expected terminator
	MalformedSource ErrorCode = "MALFORMED_SOURCE"
	// UnknownEntryKind indicates a token kind the model builder cannot turn into an entry
	UnknownEntryKind ErrorCode = "UNKNOWN_ENTRY_KIND"
	// ConfigurationMismatch indicates a type rule that conflicts with the entry it names
	ConfigurationMismatch ErrorCode = "CONFIGURATION_MISMATCH"
	// DependencyCycle indicates amalgamation ordering cannot make progress
	DependencyCycle ErrorCode = "DEPENDENCY_CYCLE"
	// MissingClosingMarker indicates a file content block is never closed
	MissingClosingMarker ErrorCode = "MISSING_CLOSING_MARKER"
	// InvalidConfig indicates a rules file that failed validation
	InvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Error is a pipeline error with a stable code and optional location.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	File    string    `json:"file,omitempty"`
	Line    int       `json:"line,omitempty"`
	Names   []string  `json:"names,omitempty"`
	cause   error
}

// New creates a new Error.
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Errorf creates a new Error with a formatted message and no cause.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", e.Code)
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Names) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Names, ", "))
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithFile sets the file the error refers to.
func (e *Error) WithFile(file string) *Error {
	e.File = file
	return e
}

// WithLine sets the 1-based source line the error refers to.
func (e *Error) WithLine(line int) *Error {
	e.Line = line
	return e
}

// WithNames attaches the entry or file names involved.
func (e *Error) WithNames(names ...string) *Error {
	e.Names = append(e.Names, names...)
	return e
}

// IsCode reports whether err or any error it wraps is an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Code returns the code of the first *Error in err's chain, or "" if there is none.
func Code(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
