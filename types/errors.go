package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned by a trainer that does not yet hold
	// enough samples for one optimization step. Recoverable, retry later.
	ErrInsufficientData = errors.New("insufficient data to train")

	// ErrEpisodeDone is returned when stepping an episode that already finished.
	ErrEpisodeDone = errors.New("episode is done")
)

// TypeIncompatibilityError reports a mismatch between an algorithm's declared
// action/observation type and the environment's spaces. Raised at worker
// construction, never mid-episode.
type TypeIncompatibilityError struct {
	Algorithm string
	Reason    string
	Err       error
}

func (e *TypeIncompatibilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("algorithm %s incompatible with environment: %s: %v", e.Algorithm, e.Reason, e.Err)
	}
	return fmt.Sprintf("algorithm %s incompatible with environment: %s", e.Algorithm, e.Reason)
}

func (e *TypeIncompatibilityError) Unwrap() error {
	return e.Err
}

// InvalidActionError reports an action outside the legal set for the current
// turn. The episode is not terminated, the caller should re-query the policy.
type InvalidActionError struct {
	Action interface{}
	Player int
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("action %v is invalid for player %d", e.Action, e.Player)
}

// UnboundedConversionError reports a conversion to a discrete representation
// from a space with unbounded dimensions.
type UnboundedConversionError struct {
	Space string
}

func (e *UnboundedConversionError) Error() string {
	return fmt.Sprintf("space %s has unbounded dimensions, cannot convert to discrete", e.Space)
}

// ShapeMismatchError reports a conversion between differently shaped values.
// Values are never silently reshaped or truncated.
type ShapeMismatchError struct {
	Space string
	Want  int
	Got   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("space %s expects %d dimensions, got %d", e.Space, e.Want, e.Got)
}

// IncompatibleRestoreError reports a blob whose kind or version does not match
// the restoring object. The target keeps its pre-restore state.
type IncompatibleRestoreError struct {
	WantKind    string
	GotKind     string
	WantVersion int
	GotVersion  int
}

func (e *IncompatibleRestoreError) Error() string {
	return fmt.Sprintf("cannot restore blob of kind %q version %d into %q version %d",
		e.GotKind, e.GotVersion, e.WantKind, e.WantVersion)
}
