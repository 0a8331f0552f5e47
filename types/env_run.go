package types

import (
	"fmt"
	"io"
)

const (
	envRunBlobKind    = "env-run"
	envRunBlobVersion = 1
)

// EnvRun drives one environment instance through episodes. It owns the
// per-episode runtime state: current observation, reward vectors, done flag
// and step counter. A run is exclusively owned by the loop driving it.
type EnvRun struct {
	env EnvBase

	state          interface{}
	stepRewards    []float64
	episodeRewards []float64
	done           bool
	stepNum        int
	nextPlayer     int
}

func NewEnvRun(env EnvBase) *EnvRun {
	return &EnvRun{
		env:            env,
		stepRewards:    make([]float64, env.PlayerNum()),
		episodeRewards: make([]float64, env.PlayerNum()),
		done:           true,
	}
}

func (e *EnvRun) Env() EnvBase { return e.env }

// Reset starts a new episode and returns the initial observation.
func (e *EnvRun) Reset() (interface{}, error) {
	state, err := e.env.Reset()
	if err != nil {
		return nil, fmt.Errorf("env reset: %w", err)
	}
	e.state = state
	e.stepRewards = make([]float64, e.env.PlayerNum())
	e.episodeRewards = make([]float64, e.env.PlayerNum())
	e.done = false
	e.stepNum = 0
	e.nextPlayer = e.declaredNextPlayer(0)
	return state, nil
}

// Step applies the player's action. Actions marked invalid for this turn fail
// with InvalidActionError without terminating the episode. Once the episode
// is done only Reset may follow.
func (e *EnvRun) Step(action interface{}, player int) error {
	if e.done {
		return ErrEpisodeDone
	}
	if player < 0 || player >= e.env.PlayerNum() {
		return fmt.Errorf("player %d out of range [0, %d)", player, e.env.PlayerNum())
	}
	if a, ok := asInt(action); ok {
		for _, invalid := range e.env.GetInvalidActions(player) {
			if a == invalid {
				return &InvalidActionError{Action: action, Player: player}
			}
		}
	}

	state, rewards, done, err := e.env.Step(action, player)
	if err != nil {
		return fmt.Errorf("env step: %w", err)
	}
	e.state = state
	e.stepNum++
	if len(rewards) != e.env.PlayerNum() {
		return fmt.Errorf("env returned %d rewards for %d players", len(rewards), e.env.PlayerNum())
	}
	e.stepRewards = rewards
	for i, r := range rewards {
		e.episodeRewards[i] += r
	}
	e.done = done
	if max := e.env.MaxEpisodeSteps(); max > 0 && e.stepNum >= max {
		e.done = true
	}
	e.nextPlayer = e.declaredNextPlayer(player)
	return nil
}

// declaredNextPlayer follows the environment's declared turn order, falling
// back to round-robin after the given player.
func (e *EnvRun) declaredNextPlayer(justActed int) int {
	if p := e.env.PlayerIndex(); p >= 0 && p < e.env.PlayerNum() {
		return p
	}
	return (justActed + 1) % e.env.PlayerNum()
}

func (e *EnvRun) State() interface{}        { return e.state }
func (e *EnvRun) Done() bool                { return e.done }
func (e *EnvRun) StepNum() int              { return e.stepNum }
func (e *EnvRun) NextPlayer() int           { return e.nextPlayer }
func (e *EnvRun) StepRewards() []float64    { return e.stepRewards }
func (e *EnvRun) EpisodeRewards() []float64 { return e.episodeRewards }

func (e *EnvRun) InvalidActions(player int) []int {
	return e.env.GetInvalidActions(player)
}

// SampleAction draws a random legal action, or an error when the action space
// cannot enumerate its values to respect the invalid set.
func (e *EnvRun) SampleAction(player int, rng randIntn) (interface{}, error) {
	space := e.env.ActionSpace()
	n, err := space.DiscreteSize()
	if err != nil {
		return nil, err
	}
	invalid := make(map[int]bool)
	for _, a := range e.env.GetInvalidActions(player) {
		invalid[a] = true
	}
	valid := make([]int, 0, n)
	for a := 0; a < n; a++ {
		if !invalid[a] {
			valid = append(valid, a)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no valid actions for player %d", player)
	}
	return space.FromDiscrete([]int{valid[rng.Intn(len(valid))]})
}

type randIntn interface {
	Intn(n int) int
}

type envRunSnapshot struct {
	Env            Blob      `json:"env"`
	StepRewards    []float64 `json:"step_rewards"`
	EpisodeRewards []float64 `json:"episode_rewards"`
	Done           bool      `json:"done"`
	StepNum        int       `json:"step_num"`
	NextPlayer     int       `json:"next_player"`
}

// Backup snapshots the run bookkeeping together with the environment's own
// snapshot, so a restored run resumes the episode exactly.
func (e *EnvRun) Backup() (Blob, error) {
	envBlob, err := e.env.Backup()
	if err != nil {
		return nil, fmt.Errorf("env backup: %w", err)
	}
	return NewBlob(envRunBlobKind, envRunBlobVersion, envRunSnapshot{
		Env:            envBlob,
		StepRewards:    e.stepRewards,
		EpisodeRewards: e.episodeRewards,
		Done:           e.done,
		StepNum:        e.stepNum,
		NextPlayer:     e.nextPlayer,
	})
}

// Restore is all-or-nothing: on any error the run keeps its previous state.
func (e *EnvRun) Restore(b Blob) error {
	var snap envRunSnapshot
	if err := b.Open(envRunBlobKind, envRunBlobVersion, &snap); err != nil {
		return err
	}
	if err := e.env.Restore(snap.Env); err != nil {
		return fmt.Errorf("env restore: %w", err)
	}
	e.state = e.env.Observation()
	e.stepRewards = snap.StepRewards
	e.episodeRewards = snap.EpisodeRewards
	e.done = snap.Done
	e.stepNum = snap.StepNum
	e.nextPlayer = snap.NextPlayer
	return nil
}

var _ Checkpointable = &EnvRun{}

func (e *EnvRun) RenderTerminal(w io.Writer) {
	e.env.RenderTerminal(w)
}

func (e *EnvRun) RenderRGBArray() [][][3]uint8 {
	return e.env.RenderRGBArray()
}
