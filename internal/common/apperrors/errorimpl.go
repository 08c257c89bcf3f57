package apperrors

import "strings"

// appError is the single implementation of the Error interface.
type appError struct {
	msg           string
	base          Error
	wrappedErrors []error
	statuscode    int
	expandError   bool
	prefix        string
	suffix        string
}

// clone copies the error and anchors the copy to the original, so that
// errors.Is(copy, original) continues to hold. Modifier methods operate on
// clones and never mutate shared sentinel errors.
func (e *appError) clone() *appError {
	c := *e
	c.base = e
	c.wrappedErrors = append([]error(nil), e.wrappedErrors...)
	return &c
}

func (e *appError) Error() string {
	msg := e.msg
	if e.prefix != "" {
		msg = e.prefix + ": " + msg
	}
	if e.suffix != "" {
		msg = msg + ": " + e.suffix
	}
	return msg
}

// ErrorAll renders the message along with every wrapped cause when expansion
// is enabled for this error.
func (e *appError) ErrorAll() string {
	if !e.expandError || len(e.wrappedErrors) == 0 {
		return e.Error()
	}
	parts := make([]string, 0, len(e.wrappedErrors))
	for _, err := range e.wrappedErrors {
		parts = append(parts, err.Error())
	}
	return e.Error() + ": " + strings.Join(parts, "; ")
}

func (e *appError) Unwrap() []error {
	return e.wrappedErrors
}

// New derives a child error that inherits this error's status code and keeps
// this error as its base for Is matching.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		statuscode: e.statuscode,
		base:       e,
	}
}

func (e *appError) Msg(msg string) Error {
	c := e.clone()
	c.msg = msg
	return c
}

func (e *appError) Prefix(prefix string) Error {
	c := e.clone()
	c.prefix = prefix
	return c
}

func (e *appError) Suffix(suffix string) Error {
	c := e.clone()
	c.suffix = suffix
	return c
}

func (e *appError) MsgErr(msg string, err ...error) Error {
	c := e.clone()
	c.msg = msg
	c.wrappedErrors = append(c.wrappedErrors, err...)
	return c
}

func (e *appError) Err(err ...error) Error {
	c := e.clone()
	c.wrappedErrors = append(c.wrappedErrors, err...)
	return c
}

func (e *appError) Is(target error) bool {
	if e == target || e.base == target {
		return true
	}
	if e.base != nil && e.base.Is(target) {
		return true
	}
	for _, err := range e.wrappedErrors {
		if err == target {
			return true
		}
	}
	return false
}

func (e *appError) SetExpandError(expand bool) Error {
	e.expandError = expand
	return e
}

func (e *appError) SetStatusCode(code int) Error {
	e.statuscode = code
	return e
}

func (e *appError) StatusCode() int {
	return e.statuscode
}

func New(msg string) Error {
	return &appError{msg: msg}
}
