package loader

import (
	"fmt"
)

// Machine readable failure codes surfaced to operators. Every mutating
// loader operation returns one of these inside an *Error rather than a
// bare boolean or an unwrapped failure.
const (
	CodeModuleNotFound     = "module_not_found"
	CodeInvalidModule      = "invalid_module"
	CodeInvalidFile        = "invalid_file"
	CodeFileTooLarge       = "file_too_large"
	CodeSyntaxError        = "syntax_error"
	CodeConflictsDetected  = "conflicts_detected"
	CodeModuleExists       = "module_exists"
	CodeUploadFailed       = "upload_failed"
	CodeDBError            = "db_error"
	CodeActivationFailed   = "activation_failed"
	CodeDeactivationFailed = "deactivation_failed"
	CodeNoMainFile         = "no_main_file"
)

// Error is the tagged result type carried across the install boundary. It
// holds a machine code, a human message, and an optional structured
// detail payload (for example the full conflict list) so callers can
// render actionable information instead of just a string.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("loader: %s: %s", e.Code, e.Message)
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func newErrorWithDetail(code, message string, detail interface{}) *Error {
	return &Error{Code: code, Message: message, Detail: detail}
}

// AsError unwraps a loader error from any error value.
func AsError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
