// Package apperrors defines the error type used across the server. Errors form
// a hierarchy: a base error created with New can spawn derived errors via New,
// and any error can wrap lower-level causes with Err. Is matches an error
// against itself, its ancestry, and anything it wraps, so callers can test for
// a whole error family with errors.Is.
package apperrors

type Error interface {
	Error() string
	ErrorAll() string
	New(msg string) Error
	MsgErr(msg string, err ...error) Error
	Msg(msg string) Error
	Prefix(prefix string) Error
	Suffix(suffix string) Error
	Err(err ...error) Error
	Unwrap() []error
	Is(target error) bool
	SetExpandError(expand bool) Error
	SetStatusCode(code int) Error
	StatusCode() int
}
