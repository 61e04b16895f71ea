package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating a ResourceError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *ResourceError {
	if err == nil {
		return nil
	}

	// Keep location and resource from an inner ResourceError so they survive re-wrapping
	var re *ResourceError
	if errors.As(err, &re) {
		return &ResourceError{
			Type:     errType,
			Code:     code,
			Message:  message,
			Cause:    re,
			Context:  re.Context,
			Resource: re.Resource,
			FilePath: re.FilePath,
			Line:     re.Line,
			Column:   re.Column,
		}
	}

	return &ResourceError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *ResourceError {
	return Wrap(err, ErrorTypeIO, code, message)
}

// WrapConfig wraps an error as a configuration validation error
func WrapConfig(err error, code, message string) *ResourceError {
	return Wrap(err, ErrorTypeValidation, code, message)
}

// FormatError formats an error for user display
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var re *ResourceError
	if errors.As(err, &re) {
		if re.Resource != "" {
			return fmt.Sprintf("%s (%s): %s", re.Type, re.Resource, re.Error())
		}
		return fmt.Sprintf("%s: %s", re.Type, re.Error())
	}

	return err.Error()
}

// ExtractCause walks ResourceError causes and returns the first non-ResourceError
// cause, or the innermost ResourceError when there is none.
func ExtractCause(err error) error {
	for err != nil {
		var re *ResourceError
		if !errors.As(err, &re) {
			return err
		}
		if re.Cause == nil {
			return re
		}
		err = re.Cause
	}
	return nil
}

// CollectErrors helper for common error collection patterns
func CollectErrors(errs ...error) []error {
	var collected []error
	for _, err := range errs {
		if err != nil {
			collected = append(collected, err)
		}
	}
	return collected
}

// CombineErrors combines multiple errors into a single error
func CombineErrors(errs ...error) error {
	nonNilErrs := CollectErrors(errs...)
	switch len(nonNilErrs) {
	case 0:
		return nil
	case 1:
		return nonNilErrs[0]
	}

	return &ResourceError{
		Type:    ErrorTypeInternal,
		Code:    "ERR_MULTIPLE_ERRORS",
		Message: fmt.Sprintf("multiple errors occurred: %d errors", len(nonNilErrs)),
		Cause:   errors.Join(nonNilErrs...),
		Context: map[string]interface{}{
			"error_count": len(nonNilErrs),
		},
	}
}
