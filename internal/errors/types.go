package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig          ErrorType = "config"
	ErrorTypeInvalidResource ErrorType = "invalid_resource"
	ErrorTypeCompilation     ErrorType = "compilation"
	ErrorTypeEvaluation      ErrorType = "evaluation"
	ErrorTypeWrongResultType ErrorType = "wrong_result_type"
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeIO              ErrorType = "io"
	ErrorTypeInternal        ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeNoBuildContext      = "ERR_NO_BUILD_CONTEXT"
	ErrCodeInvalidResourceType = "ERR_INVALID_RESOURCE_TYPE"
	ErrCodeCompilationFailed   = "ERR_COMPILATION_FAILED"
	ErrCodeMissingPrimary      = "ERR_MISSING_PRIMARY_ARTIFACT"
	ErrCodeEvaluationFailed    = "ERR_EVALUATION_FAILED"
	ErrCodeEvaluationTimeout   = "ERR_EVALUATION_TIMEOUT"
	ErrCodeWrongResultType     = "ERR_WRONG_RESULT_TYPE"
	ErrCodeConfigInvalid       = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound        = "ERR_FILE_NOT_FOUND"
	ErrCodeWriteFailed         = "ERR_WRITE_FAILED"
	ErrCodeCommandRejected     = "ERR_COMMAND_REJECTED"
	ErrCodeInvalidPath         = "ERR_INVALID_PATH"
)

// ResourceError is a structured error type with context.
type ResourceError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	Resource string
	FilePath string
	Line     int
	Column   int
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Resource != "" {
		parts = append(parts, "resource:"+e.Resource)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ResourceError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *ResourceError) Is(target error) bool {
	var t *ResourceError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ResourceError) WithContext(key string, value interface{}) *ResourceError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *ResourceError) WithLocation(filePath string, line, column int) *ResourceError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithResource adds the requested resource path.
func (e *ResourceError) WithResource(resource string) *ResourceError {
	e.Resource = resource

	return e
}

// Error creation functions

// NewConfigurationError reports that the compiler was used without an attached build context.
func NewConfigurationError(message string) *ResourceError {
	return &ResourceError{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeNoBuildContext,
		Message: message,
	}
}

// NewInvalidResourceType reports a script file passed where a style or template was expected.
func NewInvalidResourceType(path string) *ResourceError {
	return &ResourceError{
		Type:     ErrorTypeInvalidResource,
		Code:     ErrCodeInvalidResourceType,
		Message:  "cannot use a script file as a style or template resource",
		Resource: path,
	}
}

// NewCompilationError aggregates nested build diagnostics. Every diagnostic is
// kept verbatim, one per line.
func NewCompilationError(resource string, diagnostics []Diagnostic) *ResourceError {
	details := make([]string, 0, len(diagnostics))
	for _, d := range diagnostics {
		details = append(details, d.Detail())
	}

	return &ResourceError{
		Type:     ErrorTypeCompilation,
		Code:     ErrCodeCompilationFailed,
		Message:  "nested build failed:\n" + strings.Join(details, "\n"),
		Resource: resource,
		Context: map[string]interface{}{
			"diagnostic_count": len(diagnostics),
		},
	}
}

// NewEvaluationError wraps an exception raised while executing compiled output.
func NewEvaluationError(outputName string, cause error) *ResourceError {
	return &ResourceError{
		Type:     ErrorTypeEvaluation,
		Code:     ErrCodeEvaluationFailed,
		Message:  fmt.Sprintf("evaluating %q failed", outputName),
		Cause:    cause,
		Resource: outputName,
	}
}

// NewWrongResultTypeError reports compiled output whose completion value is not a string.
func NewWrongResultTypeError(outputName, gotType string) *ResourceError {
	return &ResourceError{
		Type:     ErrorTypeWrongResultType,
		Code:     ErrCodeWrongResultType,
		Message:  fmt.Sprintf("the loader %q didn't return a string (got %s)", outputName, gotType),
		Resource: outputName,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *ResourceError {
	return &ResourceError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *ResourceError {
	return &ResourceError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *ResourceError {
	return &ResourceError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Predicates

func hasType(err error, errType ErrorType) bool {
	var re *ResourceError
	if errors.As(err, &re) {
		return re.Type == errType
	}

	return false
}

// IsConfigurationError checks if an error reports a missing build context.
func IsConfigurationError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// IsInvalidResourceType checks if an error reports a script path passed as a resource.
func IsInvalidResourceType(err error) bool {
	return hasType(err, ErrorTypeInvalidResource)
}

// IsCompilationError checks if an error carries nested build diagnostics.
func IsCompilationError(err error) bool {
	return hasType(err, ErrorTypeCompilation)
}

// IsEvaluationError checks if an error was raised while executing compiled output.
func IsEvaluationError(err error) bool {
	return hasType(err, ErrorTypeEvaluation)
}

// IsWrongResultTypeError checks if compiled output produced a non-string value.
func IsWrongResultTypeError(err error) bool {
	return hasType(err, ErrorTypeWrongResultType)
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level matching its category. Caller-correctable
// failures are warnings; everything else is an error.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var re *ResourceError
	if !errors.As(err, &re) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch re.Type {
	case ErrorTypeCompilation, ErrorTypeInvalidResource, ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Resource rejected",
			"type", re.Type,
			"code", re.Code,
			"resource", re.Resource)
	default:
		h.logger.Error(ctx, err, "Resource error occurred",
			"type", re.Type,
			"code", re.Code,
			"resource", re.Resource)
	}
}
