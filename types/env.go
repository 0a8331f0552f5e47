package types

import "io"

// EnvConfig identifies a registered environment and its constructor arguments.
type EnvConfig struct {
	Name   string                 `json:"name"`
	Kwargs map[string]interface{} `json:"kwargs,omitempty"`
}

// Int reads an integer kwarg, falling back to def when absent.
func (c EnvConfig) Int(key string, def int) int {
	v, ok := c.Kwargs[key]
	if !ok {
		return def
	}
	if i, ok := asInt(v); ok {
		return i
	}
	return def
}

// Float reads a float kwarg, falling back to def when absent.
func (c EnvConfig) Float(key string, def float64) float64 {
	v, ok := c.Kwargs[key]
	if !ok {
		return def
	}
	if f, ok := asFloat(v); ok {
		return f
	}
	return def
}

// EnvBase is the capability set a concrete environment must implement.
// Environments are driven through an EnvRun, which owns the episode
// bookkeeping; EnvBase only simulates.
type EnvBase interface {
	ActionSpace() Space
	ObservationSpace() Space
	ObservationType() SpaceType
	// MaxEpisodeSteps caps the episode length; <= 0 means unlimited.
	MaxEpisodeSteps() int
	// PlayerNum is the number of agents.
	PlayerNum() int
	// PlayerIndex is the player acting next; a negative value tells the run
	// to use round-robin order.
	PlayerIndex() int

	// Reset re-initializes the environment and returns the initial observation.
	Reset() (interface{}, error)
	// Step applies the action for the given player and returns the next
	// observation, the per-player reward vector and the done flag.
	Step(action interface{}, player int) (interface{}, []float64, bool, error)
	// Observation is the current observation without advancing the simulation.
	Observation() interface{}
	// GetInvalidActions lists the discrete action indices that are illegal
	// for the player this turn. Empty when every action is legal.
	GetInvalidActions(player int) []int

	// Backup snapshots the full internal state, sufficient to resume the
	// simulation exactly. Stochastic environments must capture their random
	// source so a restored run replays identically.
	Backup() (Blob, error)
	Restore(Blob) error

	// Render views must never mutate environment state.
	RenderTerminal(w io.Writer)
	// RenderRGBArray returns a pixel view, or nil when unsupported.
	RenderRGBArray() [][][3]uint8
}
