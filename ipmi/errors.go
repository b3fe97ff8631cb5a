package ipmi

import "errors"

// Sentinel error kinds, per §7 of the spec. Wrap with fmt.Errorf("%w: ...")
// for context; callers compare with errors.Is against these values.
var (
	ErrInvalidArgument = errors.New("ipmi: invalid argument")
	ErrOutOfMemory     = errors.New("ipmi: out of memory")
	ErrIO              = errors.New("ipmi: io error")
	ErrTimeout         = errors.New("ipmi: timeout")
	ErrProtocol        = errors.New("ipmi: protocol error")
	ErrNotFound        = errors.New("ipmi: not found")
	ErrAlreadyExists   = errors.New("ipmi: already exists")
	ErrNotSupported    = errors.New("ipmi: not supported")
)
