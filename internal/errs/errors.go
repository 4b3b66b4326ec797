// Package errs implements the stable error taxonomy of spec.md §7: every
// layer of AIWhisperer translates lower-layer errors into this taxonomy
// before they cross a component boundary, so no raw underlying error ever
// reaches the LLM-facing envelope.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable identifier from spec.md §7's error taxonomy table.
type Kind string

const (
	// Tool Runtime family (§4.1, §4.3)
	KindInvalidArguments   Kind = "invalid_arguments"
	KindToolNotFound       Kind = "tool_not_found"
	KindToolExecutionError Kind = "tool_execution_error"
	KindToolArgsInvalid    Kind = "tool_args_invalid"
	KindToolLoopLimit      Kind = "tool_loop_limit"
	KindUnexpectedResponse Kind = "unexpected_response"
	KindLLMCallFailure     Kind = "llm_call_failure"
	KindProcessingTimeout  Kind = "processing_timeout"

	// File-system family
	KindFileNotFound     Kind = "file_not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindDiskFull         Kind = "disk_full"
	KindEncodingError    Kind = "encoding_error"
	KindPathTooLong      Kind = "path_too_long"
	KindInvalidPath      Kind = "invalid_path"

	// Parser family
	KindSyntaxError           Kind = "syntax_error"
	KindIndentationError      Kind = "indentation_error"
	KindTabError              Kind = "tab_error"
	KindUnterminatedString    Kind = "unterminated_string"
	KindBracketMismatch       Kind = "bracket_mismatch"
	KindInvalidEscapeSequence Kind = "invalid_escape_sequence"
	KindBOMDetected           Kind = "bom_detected"
	KindNestingTooDeep        Kind = "nesting_too_deep"
	KindNumberTooLarge        Kind = "number_too_large"

	// Resource family
	KindMemoryExhaustion      Kind = "memory_exhaustion"
	KindRecursionLimitReached Kind = "recursion_limit_exceeded"
	KindJSONSerializationErr  Kind = "json_serialization_error"

	// Config family
	KindInvalidConfiguration Kind = "invalid_configuration"
	KindConflictingOptions   Kind = "conflicting_options"
	KindInvalidParameterType Kind = "invalid_parameter_type"

	// Batch / path-safety family
	KindDangerousCommand Kind = "dangerous_command"
)

// retryable classifies which kinds are worth a caller retry, mirroring the
// teacher's ToolErrorType.IsRetryable split (timeouts/transport-ish errors
// are retryable; structural errors are not).
var retryable = map[Kind]bool{
	KindProcessingTimeout: true,
	KindLLMCallFailure:    true,
	KindDiskFull:          true,
}

// IsRetryable reports whether a caller retrying the same operation might
// succeed.
func (k Kind) IsRetryable() bool { return retryable[k] }

// SyntaxDetails carries the {line, column, description} triple spec.md §7
// requires for the parser error family.
type SyntaxDetails struct {
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Description string `json:"description"`
}

// Error is the structured payload every AIWhisperer component returns on
// failure: {error_type, message, suggestions[]} plus the optional
// {syntax_details, file_path, processing_stage} spec.md §7 calls for.
type Error struct {
	Kind            Kind           `json:"error_type"`
	Message         string         `json:"message"`
	Suggestions     []string       `json:"suggestions,omitempty"`
	SyntaxDetails   *SyntaxDetails `json:"syntax_details,omitempty"`
	FilePath        string         `json:"file_path,omitempty"`
	ProcessingStage string         `json:"processing_stage,omitempty"`
	Cause           error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

// Unwrap supports errors.Is/errors.As across the Cause chain.
func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause, defaulting the
// message to cause's text when msg is empty.
func Wrap(kind Kind, cause error, msg string) *Error {
	e := &Error{Kind: kind, Cause: cause, Message: msg}
	if e.Message == "" && cause != nil {
		e.Message = cause.Error()
	}
	return e
}

// WithSuggestions appends remediation hints surfaced to the caller.
func (e *Error) WithSuggestions(s ...string) *Error {
	e.Suggestions = append(e.Suggestions, s...)
	return e
}

// WithFilePath annotates e with the file path involved.
func (e *Error) WithFilePath(p string) *Error {
	e.FilePath = p
	return e
}

// WithStage annotates e with the processing stage it failed in.
func (e *Error) WithStage(stage string) *Error {
	e.ProcessingStage = stage
	return e
}

// WithSyntaxDetails attaches a {line, column, description} triple.
func (e *Error) WithSyntaxDetails(line, column int, description string) *Error {
	e.SyntaxDetails = &SyntaxDetails{Line: line, Column: column, Description: description}
	return e
}

// As extracts an *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, else "".
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Sentinel errors used for errors.Is-style control flow within a single
// process, mirroring internal/agent/errors.go's sentinel set.
var (
	ErrMaxIterations    = errors.New("max iterations exceeded")
	ErrContextCancelled = errors.New("context cancelled")
	ErrNoProvider       = errors.New("no llm provider configured")
	ErrShutdown         = errors.New("shutdown requested")
)
