package domain

import "fmt"

// ParseError indicates malformed payload JSON or unparseable SQL. Always
// recoverable: surfaced as a verdict error, never fatal to the caller.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

// AssemblyError indicates the payload could not be turned into a single
// SQL statement (unresolved placeholder, frozen-block violation,
// non-topological reconstruction order, dependency cycle).
type AssemblyError struct {
	Message string
}

func (e *AssemblyError) Error() string { return e.Message }

// ExecutionError indicates a witness query failed to run or timed out.
// Reported as indeterminate, distinct from both equivalent and not
// equivalent.
type ExecutionError struct {
	Message string
	Timeout bool
}

func (e *ExecutionError) Error() string { return e.Message }

// ErrParse creates a ParseError with a formatted message.
func ErrParse(format string, args ...interface{}) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}

// ErrAssembly creates an AssemblyError with a formatted message.
func ErrAssembly(format string, args ...interface{}) *AssemblyError {
	return &AssemblyError{Message: fmt.Sprintf(format, args...)}
}

// ErrExecution creates an ExecutionError with a formatted message.
func ErrExecution(format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...)}
}

// ErrTimeout creates an ExecutionError marked as a timeout.
func ErrTimeout(format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...), Timeout: true}
}
