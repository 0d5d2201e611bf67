package wxr

import (
	"errors"
	"fmt"
)

// ErrMalformed marks an entity block that cannot be turned into a record.
// Callers skip the entity and continue the stream.
var ErrMalformed = errors.New("malformed entity")

// ErrUnsupportedState marks an entity in a state that is valid in the export
// but not importable (e.g. an auto-draft placeholder). Not an error worth
// surfacing loudly; callers skip quietly.
var ErrUnsupportedState = errors.New("unsupported entity state")

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func unsupportedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedState, fmt.Sprintf(format, args...))
}
