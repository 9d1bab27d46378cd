package apperror

import (
	"errors"
	"net/http"
)

type Error struct {
	Code       string
	Message    string
	StatusCode int
	Internal   error
	// Retryable marks errors a queued job may be retried on.
	Retryable bool
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Internal
}

var (
	ErrNotFound = &Error{
		Code:       "not_found",
		Message:    "The requested resource was not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &Error{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidPath = &Error{
		Code:       "invalid_path",
		Message:    "The path must stay within the media root",
		StatusCode: http.StatusBadRequest,
	}

	ErrFileTooLarge = &Error{
		Code:       "file_too_large",
		Message:    "The uploaded file exceeds the maximum allowed size",
		StatusCode: http.StatusRequestEntityTooLarge,
	}

	ErrInvalidFileType = &Error{
		Code:       "invalid_file_type",
		Message:    "This file type is not supported",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidArchiveEntry = &Error{
		Code:       "invalid_archive_entry",
		Message:    "An archive entry has an unsafe path",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrEntryTooLarge = &Error{
		Code:       "entry_too_large",
		Message:    "An archive entry exceeds the maximum allowed size",
		StatusCode: http.StatusRequestEntityTooLarge,
	}

	ErrCorruptArchive = &Error{
		Code:       "corrupt_archive",
		Message:    "The archive is truncated or unreadable",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrVideoDecode = &Error{
		Code:       "video_decode_error",
		Message:    "The video could not be decoded",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrImageDecode = &Error{
		Code:       "image_decode_error",
		Message:    "The image could not be decoded",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrDestinationUnwritable = &Error{
		Code:       "destination_unwritable",
		Message:    "The output directory could not be written",
		StatusCode: http.StatusInternalServerError,
	}

	ErrJobNotFound = &Error{
		Code:       "job_not_found",
		Message:    "The requested job was not found",
		StatusCode: http.StatusNotFound,
	}

	ErrQueueFull = &Error{
		Code:       "queue_full",
		Message:    "Too many uploads are being processed. Please try again later",
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
	}

	ErrInvalidJobPayload = &Error{
		Code:       "invalid_job_payload",
		Message:    "The job payload is invalid",
		StatusCode: http.StatusBadRequest,
	}

	ErrRateLimited = &Error{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrInternal = &Error{
		Code:       "internal_error",
		Message:    "An unexpected error occurred. Please try again later",
		StatusCode: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &Error{
		Code:       "service_unavailable",
		Message:    "Service temporarily unavailable. Please try again later",
		StatusCode: http.StatusServiceUnavailable,
	}
)

func New(code, message string, statusCode int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Wrap(err error, appErr *Error) *Error {
	return &Error{
		Code:       appErr.Code,
		Message:    appErr.Message,
		StatusCode: appErr.StatusCode,
		Internal:   err,
		Retryable:  appErr.Retryable,
	}
}

func WrapWithMessage(err error, code, message string, statusCode int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

// WithMessage copies appErr with a caller-facing message.
func WithMessage(appErr *Error, message string) *Error {
	e := *appErr
	e.Message = message
	return &e
}

func WithRetryable(appErr *Error, retryable bool) *Error {
	e := *appErr
	e.Retryable = retryable
	return &e
}

// IsRetryable reports whether err may succeed on retry. Plain errors are
// assumed transient; an *Error is retryable only when flagged.
func IsRetryable(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return true
}

func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func SafeMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternal.Message
}

func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal.Code
}
