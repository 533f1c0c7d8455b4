package descent

import "errors"

// Status is the numeric result of an invocation: zero for success, a
// negated errno otherwise.
type Status int32

const (
	StatusOK              Status = 0
	StatusDepthExhausted  Status = -7  // E2BIG
	StatusInvalidArgument Status = -22 // EINVAL
	StatusInvalidEncoding Status = -84 // EILSEQ
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusDepthExhausted:
		return "DEPTH_EXHAUSTED"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusInvalidEncoding:
		return "INVALID_ENCODING"
	default:
		return "UNKNOWN"
	}
}

// StatusOf maps an error returned by Lookup to its status code. Errors
// Lookup cannot return map to StatusInvalidArgument.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrDepthExhausted):
		return StatusDepthExhausted
	case errors.Is(err, ErrInvalidEncoding):
		return StatusInvalidEncoding
	default:
		return StatusInvalidArgument
	}
}

// Invoke runs Lookup and reports its result as a status code
func Invoke(ctx *Context) Status {
	return StatusOf(Lookup(ctx))
}
