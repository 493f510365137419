package errors

import (
	"errors"
	"fmt"
)

type ErrorCode string
type ErrorType string

const (
	// Error Types
	ErrorTypeClient  ErrorType = "client_error"
	ErrorTypeServer  ErrorType = "server_error"
	ErrorTypeNetwork ErrorType = "network_error"
	ErrorTypeConfig  ErrorType = "config_error"

	// Error Codes
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeTransport         ErrorCode = "TRANSPORT_ERROR"
	ErrCodeAuthRejected      ErrorCode = "AUTH_REJECTED"
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	ErrCodeSubmitRejected    ErrorCode = "SUBMIT_REJECTED"
	ErrCodeRequestRejected   ErrorCode = "REQUEST_REJECTED"
	ErrCodeConfig            ErrorCode = "CONFIG_ERROR"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeUnauthenticated   ErrorCode = "UNAUTHENTICATED"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	Details    any
	Err        error
	ErrorType  ErrorType
	StatusCode int
	Retryable  bool
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) GetErrorType() ErrorType {
	return e.ErrorType
}

// WithStatus returns a copy of e carrying the HTTP status that produced it.
func (e *AppError) WithStatus(status int) *AppError {
	cp := *e
	cp.StatusCode = status
	return &cp
}

func determineErrorType(code ErrorCode) ErrorType {
	switch code {
	case ErrCodeAuthRejected, ErrCodeSubmitRejected, ErrCodeRequestRejected, ErrCodeValidation, ErrCodeUnauthenticated:
		return ErrorTypeClient
	case ErrCodeTransport:
		return ErrorTypeNetwork
	case ErrCodeConfig:
		return ErrorTypeConfig
	default:
		return ErrorTypeServer
	}
}

func isRetryable(code ErrorCode) bool {
	switch code {
	case ErrCodeConfig, ErrCodeValidation:
		return false
	default:
		return true
	}
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		ErrorType: determineErrorType(code),
		Retryable: isRetryable(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Err:       err,
		ErrorType: determineErrorType(code),
		Retryable: isRetryable(code),
	}
}

func WithDetails(code ErrorCode, message string, details interface{}) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Details:   details,
		ErrorType: determineErrorType(code),
		Retryable: isRetryable(code),
	}
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

var (
	ErrInternal          = New(ErrCodeInternal, "Internal error")
	ErrTransport         = New(ErrCodeTransport, "HRIS unreachable")
	ErrAuthRejected      = New(ErrCodeAuthRejected, "HRIS rejected the credentials")
	ErrMalformedResponse = New(ErrCodeMalformedResponse, "Unexpected HRIS response shape")
	ErrSubmitRejected    = New(ErrCodeSubmitRejected, "HRIS rejected the attendance submission")
	ErrRequestRejected   = New(ErrCodeRequestRejected, "HRIS rejected the request")
	ErrConfig            = New(ErrCodeConfig, "Invalid configuration")
	ErrUnauthenticated   = New(ErrCodeUnauthenticated, "No bearer token held")
)
