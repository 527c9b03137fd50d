package errors

import (
	"errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether the outermost AppError in the chain carries the given code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeOracleTimeout   = "ORACLE_TIMEOUT"
	CodeOracleDown      = "ORACLE_UNAVAILABLE"
	CodeOracleMalformed = "ORACLE_MALFORMED_RESPONSE"
	CodeStoreDown       = "STORE_UNAVAILABLE"
)

// Common error constructors

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// OracleTimeout signals that the scoring oracle exceeded its deadline
func OracleTimeout(cause error) *AppError {
	return &AppError{
		Code:    CodeOracleTimeout,
		Message: "scoring oracle call exceeded deadline",
		Cause:   cause,
	}
}

// OracleUnavailable signals that the scoring oracle could not be reached after retries
func OracleUnavailable(cause error) *AppError {
	return &AppError{
		Code:    CodeOracleDown,
		Message: "scoring oracle unavailable",
		Cause:   cause,
	}
}

// OracleMalformed signals an unparseable payload from the scoring oracle
func OracleMalformed(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeOracleMalformed,
		Message: message,
		Cause:   cause,
	}
}

// StoreUnavailable signals a remediation store network or auth failure
func StoreUnavailable(cause error) *AppError {
	return &AppError{
		Code:    CodeStoreDown,
		Message: "remediation store unavailable",
		Cause:   cause,
	}
}

// IsOracleError reports whether err originated in the scoring oracle adapter
func IsOracleError(err error) bool {
	code := GetCode(err)
	return code == CodeOracleTimeout || code == CodeOracleDown || code == CodeOracleMalformed
}
