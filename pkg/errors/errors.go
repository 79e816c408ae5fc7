package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	CodeConflict      ErrorCode = "CONFLICT"
	CodeStoreError    ErrorCode = "STORE_ERROR"
	CodeBlobError     ErrorCode = "BLOB_ERROR"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeBadRequest    ErrorCode = "BAD_REQUEST"
	CodeRateLimited   ErrorCode = "RATE_LIMITED"
	CodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatusMap maps error codes to HTTP status codes
var HTTPStatusMap = map[ErrorCode]int{
	CodeUnauthorized:  http.StatusUnauthorized,
	CodeConflict:      http.StatusConflict,
	CodeStoreError:    http.StatusInternalServerError,
	CodeBlobError:     http.StatusInternalServerError,
	CodeNotFound:      http.StatusNotFound,
	CodeBadRequest:    http.StatusBadRequest,
	CodeRateLimited:   http.StatusTooManyRequests,
	CodeInternalError: http.StatusInternalServerError,
}

// Messages shown to callers. Unauthorized is deliberately a single message so a
// wrong name and a wrong token cannot be told apart.
const (
	MsgUnauthorized   = "Unauthorized"
	MsgDatabaseError  = "Database error"
	MsgStorageError   = "Storage error"
	MsgMovieExists    = "Movie already exists"
	MsgUsernameTaken  = "Username already exists"
	MsgBadCredentials = "Wrong username or password"
	MsgNotFound       = "Not found"
	MsgInvalidBody    = "Invalid request body"
)

// ErrorResponse represents the error body returned by every endpoint
type ErrorResponse struct {
	Error string `json:"error"`
}

// AppError represents an application error with code and message
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func Unauthorized(cause error) *AppError {
	return NewAppError(CodeUnauthorized, MsgUnauthorized, cause)
}

func Conflict(message string, cause error) *AppError {
	return NewAppError(CodeConflict, message, cause)
}

func StoreError(cause error) *AppError {
	return NewAppError(CodeStoreError, MsgDatabaseError, cause)
}

func BlobError(cause error) *AppError {
	return NewAppError(CodeBlobError, MsgStorageError, cause)
}

func NotFound(cause error) *AppError {
	return NewAppError(CodeNotFound, MsgNotFound, cause)
}

func BadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, nil)
}

// ToErrorResponse converts AppError to ErrorResponse
func (e *AppError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message}
}

// HTTPStatus returns the HTTP status code for this error
func (e *AppError) HTTPStatus() int {
	if status, exists := HTTPStatusMap[e.Code]; exists {
		return status
	}
	return http.StatusInternalServerError
}

// IsRetryable checks if the error is retryable
func (e *AppError) IsRetryable() bool {
	switch e.Code {
	case CodeStoreError, CodeBlobError:
		return true
	default:
		return false
	}
}

// As extracts an AppError from an error chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// Respond writes err as a JSON error body with the mapped status.
// Errors that are not AppErrors are reported as internal errors.
func Respond(c *fiber.Ctx, err error) error {
	appErr, ok := As(err)
	if !ok {
		appErr = NewAppError(CodeInternalError, "Internal server error", err)
	}
	return c.Status(appErr.HTTPStatus()).JSON(appErr.ToErrorResponse())
}
