package sim

import "github.com/pkg/errors"

var (
	// ErrNothingToAck is returned when a receiver is acknowledged without
	// holding an observed event.
	ErrNothingToAck = errors.New("no observed event to acknowledge")

	// ErrComponentFailed is returned when polling a component whose callback
	// failed earlier.
	ErrComponentFailed = errors.New("component failed")

	// ErrAlreadyInitialized is returned when Init is called twice.
	ErrAlreadyInitialized = errors.New("component already initialized")

	// ErrNotInitialized is returned when a component is reset or polled
	// before Init.
	ErrNotInitialized = errors.New("component not initialized")

	// ErrStepLimit is returned when a run does not terminate within the
	// configured number of steps.
	ErrStepLimit = errors.New("step limit reached before quiescence")

	// ErrPassLimit is returned when a step does not settle within the
	// configured number of passes.
	ErrPassLimit = errors.New("pass limit reached before the step settled")

	// ErrDanglingPort is returned by validation when a port has no peer.
	ErrDanglingPort = errors.New("port is not connected")
)
