package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies an AppError by how the scan workflow reacts to it.
type Kind string

const (
	KindInput    Kind = "input"
	KindGeometry Kind = "geometry"
	KindDegraded Kind = "pipeline_degraded"
	KindAsset    Kind = "asset_decode"
	KindAbort    Kind = "session_abort"
	KindConfig   Kind = "config"
	KindAuth     Kind = "auth"
	KindNotFound Kind = "not_found"
	KindInternal Kind = "internal"
	KindUnknown  Kind = "unknown"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code so wrapped copies of a sentinel compare equal to it.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Kind derives the classification from the code prefix.
func (e *AppError) Kind() Kind {
	prefix, _, _ := strings.Cut(e.Code, "_")
	switch prefix {
	case "INPUT":
		return KindInput
	case "GEOM":
		return KindGeometry
	case "PIPE":
		return KindDegraded
	case "ASSET":
		return KindAsset
	case "SESSION":
		return KindAbort
	case "CONFIG":
		return KindConfig
	case "AUTH":
		return KindAuth
	case "GEN":
		switch e.Code {
		case ErrNotFound.Code:
			return KindNotFound
		case ErrBadRequest.Code:
			return KindInput
		}
		return KindInternal
	}
	return KindUnknown
}

// Warning reports whether the error degrades output without blocking the flow.
func (e *AppError) Warning() bool {
	k := e.Kind()
	return k == KindDegraded || k == KindAsset
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrCornerCount       = &AppError{Code: "INPUT_001", Message: "exactly 4 corners are required"}
	ErrSignatureRequired = &AppError{Code: "INPUT_002", Message: "sign workflow requires a signature"}
	ErrEmptyPageSet      = &AppError{Code: "INPUT_003", Message: "no pages to finalize"}
	ErrInvalidState      = &AppError{Code: "INPUT_004", Message: "operation not allowed in current state"}
	ErrImageDecode       = &AppError{Code: "INPUT_005", Message: "image could not be decoded"}
	ErrImageTooLarge     = &AppError{Code: "INPUT_006", Message: "image exceeds size limits"}
	ErrBudgetExceeded    = &AppError{Code: "INPUT_007", Message: "session memory budget exceeded"}
	ErrSessionBusy       = &AppError{Code: "INPUT_008", Message: "session is processing another page"}
	ErrTooManySessions   = &AppError{Code: "INPUT_009", Message: "too many open capture sessions"}
	ErrCornerOutOfBounds = &AppError{Code: "INPUT_010", Message: "corner outside the captured image"}

	ErrDegenerateQuad   = &AppError{Code: "GEOM_001", Message: "degenerate corner quadrilateral"}
	ErrAmbiguousCorners = &AppError{Code: "GEOM_002", Message: "ambiguous corner ordering"}
	ErrSingularMatrix   = &AppError{Code: "GEOM_003", Message: "perspective transform is singular"}
	ErrNoDocumentFound  = &AppError{Code: "GEOM_004", Message: "no document outline detected"}

	ErrPipelineDegraded = &AppError{Code: "PIPE_001", Message: "filter pipeline degraded"}

	ErrSignatureDecode = &AppError{Code: "ASSET_001", Message: "signature image undecodable"}

	ErrSessionAborted = &AppError{Code: "SESSION_001", Message: "session aborted"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrForbidden    = &AppError{Code: "AUTH_002", Message: "forbidden"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind()
	}
	return KindUnknown
}

func IsInput(err error) bool    { return KindOf(err) == KindInput }
func IsGeometry(err error) bool { return KindOf(err) == KindGeometry }
func IsDegraded(err error) bool { return KindOf(err) == KindDegraded }
func IsAsset(err error) bool    { return KindOf(err) == KindAsset }
func IsAbort(err error) bool    { return KindOf(err) == KindAbort }
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// With returns a copy of a sentinel carrying a cause, keeping its code.
func (e *AppError) With(cause error) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, Cause: cause}
}

// Withf returns a copy of a sentinel with detail appended to the message.
func (e *AppError) Withf(format string, args ...any) *AppError {
	return &AppError{Code: e.Code, Message: e.Message + ": " + fmt.Sprintf(format, args...), Cause: e.Cause}
}

// HTTPStatus maps an error to the status the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInput:
		return 400
	case KindAuth:
		return 401
	case KindNotFound:
		return 404
	case KindAbort:
		return 409
	case KindGeometry:
		return 422
	}
	return 500
}
