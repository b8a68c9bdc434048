package host

import "errors"

// Common errors.
var (
	ErrNodeIndex    = errors.New("node index out of range")
	ErrTensorIndex  = errors.New("tensor index out of range")
	ErrDelegate     = errors.New("delegate error")
	ErrBadParams    = errors.New("malformed operator parameters")
	ErrNotSupported = errors.New("operator not supported by host")
)
