package errors

import (
	"fmt"
	"sync"
	"time"
)

// Diagnostic is a problem reported by a nested build while compiling a resource.
type Diagnostic struct {
	File      string
	Line      int
	Column    int
	Message   string
	Severity  ErrorSeverity
	Cause     error
	Timestamp time.Time
}

// ErrorSeverity represents the severity of a diagnostic
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (d *Diagnostic) Error() string {
	if d.File == "" {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
}

// Unwrap returns the nested cause, if any.
func (d *Diagnostic) Unwrap() error {
	return d.Cause
}

// Detail renders the diagnostic message followed by its nested cause.
func (d Diagnostic) Detail() string {
	if d.Cause != nil {
		return d.Message + ":\n" + d.Cause.Error()
	}
	return d.Message
}

// DiagnosticCollector collects diagnostics reported during a nested build
type DiagnosticCollector struct {
	diagnostics []Diagnostic
	mutex       sync.RWMutex
}

// NewDiagnosticCollector creates a new diagnostic collector
func NewDiagnosticCollector() *DiagnosticCollector {
	return &DiagnosticCollector{
		diagnostics: make([]Diagnostic, 0),
	}
}

// Add adds a diagnostic to the collector
func (dc *DiagnosticCollector) Add(d Diagnostic) {
	dc.mutex.Lock()
	defer dc.mutex.Unlock()
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	dc.diagnostics = append(dc.diagnostics, d)
}

// Addf adds an error-severity diagnostic at a location.
func (dc *DiagnosticCollector) Addf(file string, line, column int, format string, args ...interface{}) {
	dc.Add(Diagnostic{
		File:     file,
		Line:     line,
		Column:   column,
		Message:  fmt.Sprintf(format, args...),
		Severity: ErrorSeverityError,
	})
}

// AddError adds a general error as an error-severity diagnostic.
func (dc *DiagnosticCollector) AddError(message string, err error) {
	if err == nil {
		return
	}
	dc.Add(Diagnostic{
		Message:  message,
		Severity: ErrorSeverityError,
		Cause:    err,
	})
}

// Diagnostics returns a copy of all collected diagnostics
func (dc *DiagnosticCollector) Diagnostics() []Diagnostic {
	dc.mutex.RLock()
	defer dc.mutex.RUnlock()
	result := make([]Diagnostic, len(dc.diagnostics))
	copy(result, dc.diagnostics)
	return result
}

// Errors returns only diagnostics at error severity or above.
func (dc *DiagnosticCollector) Errors() []Diagnostic {
	dc.mutex.RLock()
	defer dc.mutex.RUnlock()
	var errs []Diagnostic
	for _, d := range dc.diagnostics {
		if d.Severity >= ErrorSeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// HasErrors returns true if any diagnostic is at error severity or above
func (dc *DiagnosticCollector) HasErrors() bool {
	dc.mutex.RLock()
	defer dc.mutex.RUnlock()
	for _, d := range dc.diagnostics {
		if d.Severity >= ErrorSeverityError {
			return true
		}
	}
	return false
}

// Clear clears all diagnostics
func (dc *DiagnosticCollector) Clear() {
	dc.mutex.Lock()
	defer dc.mutex.Unlock()
	dc.diagnostics = dc.diagnostics[:0]
}

// ByFile returns diagnostics for a specific file
func (dc *DiagnosticCollector) ByFile(file string) []Diagnostic {
	dc.mutex.RLock()
	defer dc.mutex.RUnlock()
	var fileDiagnostics []Diagnostic
	for _, d := range dc.diagnostics {
		if d.File == file {
			fileDiagnostics = append(fileDiagnostics, d)
		}
	}
	return fileDiagnostics
}
