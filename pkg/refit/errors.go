package refit

import (
	"errors"
	"fmt"
)

// ErrDropEvent marks an event that cannot be refit with the inputs at hand.
// Callers are expected to skip the event and move on; nothing about the
// processing run is wrong.
var ErrDropEvent = errors.New("refit: event dropped")

var (
	// ErrNoWireSignals: the event carries no usable wire signal, so there
	// is nothing to constrain.
	ErrNoWireSignals = fmt.Errorf("%w: no usable wire signals", ErrDropEvent)

	// ErrNoLightYield: the expected yield is negligible on every gang,
	// which would make the system degenerate.
	ErrNoLightYield = fmt.Errorf("%w: no expected light yield on any gang", ErrDropEvent)

	// ErrModelLength: a model waveform does not match the layout's
	// frequency count.
	ErrModelLength = fmt.Errorf("%w: non-standard model waveform length", ErrDropEvent)
)

// ErrUnknownChannel reports a channel that an input referenced but the
// noise model or channel set does not contain. This is a detector
// misconfiguration, not a per-event condition.
type ErrUnknownChannel struct {
	Channel uint16
}

func (e *ErrUnknownChannel) Error() string {
	return fmt.Sprintf("refit: channel %d not present in noise model", e.Channel)
}
