package errors

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorCode string

const (
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeValidationError   ErrorCode = "VALIDATION_ERROR"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
	CodeNotSupported      ErrorCode = "NOT_SUPPORTED"
	CodeSourceNotFound    ErrorCode = "SOURCE_NOT_FOUND"
	CodeSchemaSource      ErrorCode = "SCHEMA_SOURCE"
	CodeSchemaResolution  ErrorCode = "SCHEMA_RESOLUTION"
	CodeModifiersPending  ErrorCode = "MODIFIERS_UNRESOLVED"
	CodeVersionMismatch   ErrorCode = "VERSION_MISMATCH"
	CodeImportCycle       ErrorCode = "IMPORT_CYCLE"
	CodeDeadlock          ErrorCode = "DEADLOCK"
	CodeRejectedExecution ErrorCode = "REJECTED_EXECUTION"
	CodeClosed            ErrorCode = "CLOSED"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxSource    = "source"
	CtxOperation = "operation"
	CtxPhase     = "phase"
	CtxRequest   = "request"
	CtxProvider  = "provider"
)

var (
	// ErrDeadlock is the default value returned by a pool whose caller did not
	// supply its own deadlock error.
	ErrDeadlock = &DomainError{Code: CodeDeadlock, Message: "blocking wait issued from the executor's own worker"}
	ErrRejected = &DomainError{Code: CodeRejectedExecution, Message: "task rejected"}
	ErrClosed   = &DomainError{Code: CodeClosed, Message: "executor closed"}
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" %v", e.Context)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) ErrorCode() ErrorCode {
	return e.Code
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext attaches a key/value pair to the first DomainError in err's chain,
// wrapping err in an internal DomainError when none exists.
func AddContext(err error, key string, value interface{}) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return err
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

type coded interface {
	ErrorCode() ErrorCode
}

// IsCode checks if any error in err's chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if c, ok := err.(coded); ok && c.ErrorCode() == code {
			return true
		}
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				if IsCode(inner, code) {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	return false
}

// SourceNotFoundError reports that no provider could deliver a source.
type SourceNotFoundError struct {
	Source string
	Err    error
}

func (e *SourceNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s not found: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("source %s not found", e.Source)
}

func (e *SourceNotFoundError) Unwrap() error        { return e.Err }
func (e *SourceNotFoundError) ErrorCode() ErrorCode { return CodeSourceNotFound }

// SchemaSourceError reports a malformed source document.
type SchemaSourceError struct {
	Source  string
	Line    int
	Col     int
	Message string
	Err     error
}

func (e *SchemaSourceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Source)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d:%d", e.Line, e.Col)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *SchemaSourceError) Unwrap() error        { return e.Err }
func (e *SchemaSourceError) ErrorCode() ErrorCode { return CodeSchemaSource }

// SchemaResolutionError is the terminal failure of a schema context request.
type SchemaResolutionError struct {
	Message    string
	Unresolved []string
	Reason     error
}

func (e *SchemaResolutionError) Error() string {
	msg := e.Message
	if len(e.Unresolved) > 0 {
		msg = fmt.Sprintf("%s (unresolved: %s)", msg, strings.Join(e.Unresolved, ", "))
	}
	if e.Reason != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Reason)
	}
	return msg
}

func (e *SchemaResolutionError) Unwrap() error        { return e.Reason }
func (e *SchemaResolutionError) ErrorCode() ErrorCode { return CodeSchemaResolution }

// UnresolvedStatement locates one statement that never completed a phase.
type UnresolvedStatement struct {
	Source   string
	Line     int
	Col      int
	Keyword  string
	Argument string
	Reason   string
}

func (u UnresolvedStatement) String() string {
	s := fmt.Sprintf("%s:%d:%d %s", u.Source, u.Line, u.Col, u.Keyword)
	if u.Argument != "" {
		s += " " + u.Argument
	}
	if u.Reason != "" {
		s += " (" + u.Reason + ")"
	}
	return s
}

// SomeModifiersUnresolvedError is raised when a phase pass stalls with work left.
type SomeModifiersUnresolvedError struct {
	Phase      string
	Unresolved []UnresolvedStatement
}

func (e *SomeModifiersUnresolvedError) Error() string {
	parts := make([]string, 0, len(e.Unresolved))
	for _, u := range e.Unresolved {
		parts = append(parts, u.String())
	}
	return fmt.Sprintf("some modifiers unresolved in phase %s: %s", e.Phase, strings.Join(parts, "; "))
}

func (e *SomeModifiersUnresolvedError) ErrorCode() ErrorCode { return CodeModifiersPending }
