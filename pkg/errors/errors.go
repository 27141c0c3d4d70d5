// Package errors provides the structured error system for docbridge with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for bridge operations.
type ErrorCode string

// Error code constants grouped by category.
const (
	// Foreign status errors, reported through a result envelope
	ErrCodeIO      ErrorCode = "IO_ERROR"
	ErrCodeParse   ErrorCode = "PARSE_ERROR"
	ErrCodeUnknown ErrorCode = "UNKNOWN_ERROR"

	// Bridge-detected violations, folded into the parse category
	ErrCodeProtocol       ErrorCode = "PROTOCOL_ERROR"
	ErrCodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// Dispatch failures outside any envelope
	ErrCodeForeignException  ErrorCode = "FOREIGN_EXCEPTION"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"

	// Runtime setup errors
	ErrCodeRuntimeSetup ErrorCode = "RUNTIME_SETUP"
	ErrCodeAttachFailed ErrorCode = "ATTACH_FAILED"

	// State errors
	ErrCodeReaderClosed ErrorCode = "READER_CLOSED"

	// Configuration errors
	ErrCodeInvalidConfig  ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad     ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave     ErrorCode = "CONFIG_SAVE"
	ErrCodeConfigRejected ErrorCode = "CONFIG_REJECTED"

	// Storage errors
	ErrCodeStorageWrite  ErrorCode = "STORAGE_WRITE"
	ErrCodeStorageConfig ErrorCode = "STORAGE_CONFIG"

	// Argument errors
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
)

// ErrorCategory represents the general category of an error. The io, parse
// and unknown categories are the kinds a foreign status can map to.
type ErrorCategory string

const (
	CategoryIO            ErrorCategory = "io"
	CategoryParse         ErrorCategory = "parse"
	CategoryUnknown       ErrorCategory = "unknown"
	CategorySetup         ErrorCategory = "setup"
	CategoryState         ErrorCategory = "state"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStorage       ErrorCategory = "storage"
	CategoryValidation    ErrorCategory = "validation"
)

// Foreign status codes carried by result envelopes.
const (
	StatusOK    uint8 = 0
	StatusIO    uint8 = 1
	StatusParse uint8 = 2
)

// BridgeError represents a structured error with context and metadata.
type BridgeError struct {
	// Core error information
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Status   uint8                  `json:"status,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`

	// Contextual information
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	// Operational metadata
	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Debug information
	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *BridgeError) Is(target error) bool {
	if bridgeErr, ok := target.(*BridgeError); ok {
		return e.Code == bridgeErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *BridgeError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Status != StatusOK {
		parts = append(parts, fmt.Sprintf("Status=%d", e.Status))
	}

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}

	if e.RequestID != "" {
		parts = append(parts, fmt.Sprintf("RequestID=%s", e.RequestID))
	}

	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("BridgeError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *BridgeError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new bridge error with default values.
func NewError(code ErrorCode, message string) *BridgeError {
	return &BridgeError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Context:   make(map[string]string),
	}
}

// Newf creates a new bridge error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *BridgeError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeIO:
		return CategoryIO
	case ErrCodeParse, ErrCodeProtocol, ErrCodeNotImplemented:
		return CategoryParse
	case ErrCodeRuntimeSetup, ErrCodeAttachFailed:
		return CategorySetup
	case ErrCodeReaderClosed:
		return CategoryState
	case ErrCodeValidationFailed:
		return CategoryValidation
	}

	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "STORAGE_"):
		return CategoryStorage
	default:
		return CategoryUnknown
	}
}

// FromStatus maps a foreign envelope status to a typed error. Status 1 is an
// I/O failure, status 2 a parse failure and any other nonzero status is
// unknown. When the foreign side supplied no message a synthetic one naming
// the operation and status is used. FromStatus returns nil for StatusOK.
func FromStatus(status uint8, message string, present bool, operation string) *BridgeError {
	if status == StatusOK {
		return nil
	}

	var code ErrorCode
	switch status {
	case StatusIO:
		code = ErrCodeIO
	case StatusParse:
		code = ErrCodeParse
	default:
		code = ErrCodeUnknown
	}

	if !present {
		message = SyntheticMessage(operation, status)
	}

	err := NewError(code, message).WithOperation(operation)
	err.Status = status
	return err
}

// SyntheticMessage is the message used when a failed envelope carries none.
func SyntheticMessage(operation string, status uint8) string {
	if operation == "" {
		operation = "foreign operation"
	}
	return fmt.Sprintf("%s failed with status %d", operation, status)
}

// KindOf returns the category of the first BridgeError in err's chain, or
// CategoryUnknown when there is none.
func KindOf(err error) ErrorCategory {
	var bridgeErr *BridgeError
	if stderrors.As(err, &bridgeErr) {
		return bridgeErr.Category
	}
	return CategoryUnknown
}

// CodeOf returns the code of the first BridgeError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var bridgeErr *BridgeError
	if stderrors.As(err, &bridgeErr) {
		return bridgeErr.Code, true
	}
	return "", false
}

// IsIO reports whether err is an I/O failure.
func IsIO(err error) bool { return err != nil && KindOf(err) == CategoryIO }

// IsParse reports whether err is a parse failure or a protocol violation.
func IsParse(err error) bool { return err != nil && KindOf(err) == CategoryParse }

// IsUnknown reports whether err carries an unknown foreign status or no
// classification at all.
func IsUnknown(err error) bool { return err != nil && KindOf(err) == CategoryUnknown }

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:]) // +2 to skip this function and the caller
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext adds contextual information to an error
func (e *BridgeError) WithContext(key, value string) *BridgeError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *BridgeError) WithDetail(key string, value interface{}) *BridgeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *BridgeError) WithComponent(component string) *BridgeError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *BridgeError) WithOperation(operation string) *BridgeError {
	e.Operation = operation
	return e
}

// WithRequestID sets the request id of the attachment the error occurred under
func (e *BridgeError) WithRequestID(id string) *BridgeError {
	e.RequestID = id
	return e
}

// WithCause sets the underlying cause
func (e *BridgeError) WithCause(cause error) *BridgeError {
	e.Cause = cause
	return e
}

// WithStack captures the current stack trace
func (e *BridgeError) WithStack() *BridgeError {
	e.Stack = CaptureStack(2)
	return e
}

// GetRecommendation returns a user-friendly recommendation for fixing the error
func (e *BridgeError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeIO: "The input could not be read. " +
			"Check that the file exists and is readable by the current user.",
		ErrCodeParse: "The document could not be parsed. " +
			"It may be corrupt, encrypted, or of an unsupported type.",
		ErrCodeProtocol: "The runtime returned data the bridge could not decode. " +
			"Make sure the script bundle matches this docbridge version.",
		ErrCodeNotImplemented: "This extraction path is not available in the current build. " +
			"Rebuild without the noembedded tag or choose another strategy.",
		ErrCodeRuntimeSetup: "The runtime bundle is missing a class or method the bridge needs. " +
			"Check the runtime.bundle setting or remove it to use the built-in bundle.",
		ErrCodeAttachFailed: "Could not attach to the runtime. " +
			"The runtime may have been closed.",
		ErrCodeConfigRejected: "The runtime rejected a configuration value. " +
			"Check option spellings such as the PDF OCR strategy.",
		ErrCodeInvalidConfig: "Configuration validation failed. " +
			"Check your configuration file syntax and required parameters.",
		ErrCodeStorageWrite: "Writing extracted documents failed. " +
			"Check destination permissions or bucket access.",
	}

	if rec, exists := recommendations[e.Code]; exists {
		return rec
	}

	return "Please check the error message for details."
}

// DetailedDiagnostic returns a comprehensive diagnostic message
func (e *BridgeError) DetailedDiagnostic() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Error: %s", e.Message))
	parts = append(parts, fmt.Sprintf("Code: %s", e.Code))
	parts = append(parts, fmt.Sprintf("Category: %s", e.Category))

	if e.Status != StatusOK {
		parts = append(parts, fmt.Sprintf("Status: %d", e.Status))
	}

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component: %s", e.Component))
	}

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation: %s", e.Operation))
	}

	if len(e.Context) > 0 {
		parts = append(parts, "\nContext:")
		for k, v := range e.Context {
			parts = append(parts, fmt.Sprintf("  %s: %s", k, v))
		}
	}

	if len(e.Details) > 0 {
		parts = append(parts, "\nDetails:")
		for k, v := range e.Details {
			parts = append(parts, fmt.Sprintf("  %s: %v", k, v))
		}
	}

	parts = append(parts, "\nRecommendation:")
	parts = append(parts, "  "+e.GetRecommendation())

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("\nUnderlying cause: %s", e.Cause.Error()))
	}

	return strings.Join(parts, "\n")
}
