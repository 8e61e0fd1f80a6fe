package sourcepolicy

import "errors"

// The four error kinds from the error handling design, plus plugin errors,
// as sentinels callers can classify with errors.Is after unwrapping.
var (
	ErrConfiguration = errors.New("sourcepolicy: configuration error")
	ErrSubprocess    = errors.New("sourcepolicy: subprocess error")
	ErrMacro         = errors.New("sourcepolicy: macro error")
	ErrMapping       = errors.New("sourcepolicy: mapping error")
	ErrPlugin        = errors.New("sourcepolicy: plugin error")
)
