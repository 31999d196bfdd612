package openid

import (
	"errors"
	"fmt"
)

// Code is the integer carried back to the frontend as ?error=<code>.
type Code int

const (
	CodeInternalError Code = iota
	CodeAuthFailed
	CodeNoOwnership
	CodeMissingRequiredDLCs
	CodeSteamError
)

func (c Code) String() string {
	switch c {
	case CodeInternalError:
		return "internal_error"
	case CodeAuthFailed:
		return "auth_failed"
	case CodeNoOwnership:
		return "no_ownership"
	case CodeMissingRequiredDLCs:
		return "missing_required_dlcs"
	case CodeSteamError:
		return "steam_error"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

type LoginError struct {
	Code Code
	Err  error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("openid: %s: %v", e.Code, e.Err)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

func loginError(code Code, format string, args ...any) *LoginError {
	return &LoginError{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf maps any error to a redirect code. Errors that did not come from
// CompleteLogin are internal errors.
func CodeOf(err error) Code {
	var le *LoginError
	if errors.As(err, &le) {
		return le.Code
	}
	return CodeInternalError
}
