package lua

import "errors"

// ErrStateClosed is returned when calling into a closed script.
var ErrStateClosed = errors.New("lua state is closed")
