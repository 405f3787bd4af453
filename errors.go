package greeter

import "errors"

var (
	// ErrInvocationFailed wraps any fault raised while handling an invocation.
	ErrInvocationFailed = errors.New("invocation failed")
	ErrInvalidSource    = errors.New("invalid handler source")
	ErrNotConsistent    = errors.New("function did not become consistent")
	ErrFunctionError    = errors.New("function returned an error")
)
