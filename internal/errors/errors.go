package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	ErrCodeDecode           ErrCode = "DECODE_ERROR"
	ErrCodeInvalidParameter ErrCode = "INVALID_PARAMETER"
	ErrCodeSizeInvalid      ErrCode = "SIZE_INVALID"
	ErrCodeStartup          ErrCode = "STARTUP"
	ErrCodeInternal         ErrCode = "INTERNAL"
)

type ErrCode string

type ErrorInfo struct {
	HttpStatus int     `json:"-"`
	Code       ErrCode `json:"code"`
	Message    string  `json:"message"`
	Detail     string  `json:"detail,omitempty"`
	cause      error
}

func (e ErrorInfo) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e ErrorInfo) Unwrap() error {
	return e.cause
}

func IsErrCode(err error, code ErrCode) bool {
	if err == nil {
		return false
	}
	info := ErrorInfo{}
	if errors.As(err, &info) {
		return info.Code == code
	}
	return false
}

// NewDecodeError reports an upload that is not a supported image encoding.
func NewDecodeError(err error) ErrorInfo {
	return ErrorInfo{
		HttpStatus: http.StatusBadRequest,
		Code:       ErrCodeDecode,
		Message:    "uploaded file is not a valid image",
		Detail:     err.Error(),
		cause:      err,
	}
}

func NewParameterInvalidError(msg string) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusBadRequest, Code: ErrCodeInvalidParameter, Message: msg}
}

func NewSizeInvalidError(limit int64) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusRequestEntityTooLarge, Code: ErrCodeSizeInvalid, Message: fmt.Sprintf("upload exceeds %d bytes", limit)}
}

// NewInternalError hides the cause from the client; it is still reachable via errors.Unwrap.
func NewInternalError(err error) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "internal server error", cause: err}
}

// NewStartupError marks a failure that leaves the process unable to serve.
func NewStartupError(msg string, err error) ErrorInfo {
	info := ErrorInfo{HttpStatus: http.StatusServiceUnavailable, Code: ErrCodeStartup, Message: msg, cause: err}
	if err != nil {
		info.Message = fmt.Sprintf("%s: %v", msg, err)
	}
	return info
}
