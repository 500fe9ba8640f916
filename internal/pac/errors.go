package pac

import (
	"errors"
	"fmt"
)

// Engine errors.
var (
	ErrInUse            = errors.New("pac engine already in use")
	ErrEngineInit       = errors.New("pac engine initialization failed")
	ErrClosed           = errors.New("pac engine closed")
	ErrNoHost           = errors.New("url has no host")
	ErrInvalidPacReturn = errors.New("FindProxyForURL did not return a string")
	ErrScript           = errors.New("pac script error")
)

// ScriptError reports a failure while loading or running a PAC script,
// including errors raised by host functions.
type ScriptError struct {
	Op  string
	Err error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrScript, e.Op, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrScript) hold.
func (e *ScriptError) Is(target error) bool {
	return target == ErrScript
}
