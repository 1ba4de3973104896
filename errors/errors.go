package errors

import (
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// Code identifies a failure class. Codes are stable strings surfaced verbatim
// in job status payloads.
type Code string

const (
	CodeUnknown              Code = "internal_error"
	CodeInvalidInput         Code = "invalid_input"
	CodeVideoTooLong         Code = "video_too_long"
	CodeFileTooLarge         Code = "file_too_large"
	CodeDownloadFailed       Code = "download_failed"
	CodeTranscriptionFailed  Code = "transcription_failed"
	CodeAnalysisFailed       Code = "analysis_failed"
	CodeClipGenerationFailed Code = "clip_generation_failed"
	CodeInsufficientSegments Code = "insufficient_segments"
	CodeJobNotFound          Code = "job_not_found"
	CodeClipNotFound         Code = "clip_not_found"
)

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

func Newf(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and context message to err. Returns nil for a nil err
// so call sites can wrap unconditionally.
func Wrap(code Code, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf returns the code of the outermost coded error in the chain, or
// CodeUnknown when the chain carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

type unretriableError struct {
	error
}

func (e unretriableError) Unwrap() error {
	return e.error
}

// Unretriable wraps err so retry loops built on backoff stop immediately.
func Unretriable(err error) error {
	if err == nil || IsUnretriable(err) {
		return err
	}
	return unretriableError{backoff.Permanent(err)}
}

// IsUnretriable checks if the error is an unretriable error, part of its chain
// is unretriable, or if it is a backoff.PermanentError.
func IsUnretriable(err error) bool {
	var permErr *backoff.PermanentError
	return errors.As(err, &unretriableError{}) || errors.As(err, &permErr)
}
