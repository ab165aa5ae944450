package trace

import "errors"

// ErrUnitFinished is returned when starting a child on a stopped request or span
var ErrUnitFinished = errors.New("operation on finished unit")
