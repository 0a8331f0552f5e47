package types

import (
	"fmt"
	"io"
)

// WorkerRun pairs one worker with one environment run for one player seat.
// It enforces the turn protocol: exactly one Policy call precedes each
// OnStep. Runs are reused across episodes via OnReset.
type WorkerRun struct {
	worker WorkerBase
	env    *EnvRun
	player int

	lastObservation interface{}
	lastAction      interface{}
	policyPending   bool
}

func NewWorkerRun(worker WorkerBase, env *EnvRun, player int) *WorkerRun {
	return &WorkerRun{worker: worker, env: env, player: player}
}

func (w *WorkerRun) Worker() WorkerBase { return w.worker }
func (w *WorkerRun) Player() int        { return w.player }

// LastAction is the action returned by the most recent Policy call.
func (w *WorkerRun) LastAction() interface{} { return w.lastAction }

func (w *WorkerRun) OnReset() error {
	w.lastObservation = w.env.State()
	w.lastAction = nil
	w.policyPending = false
	return w.worker.OnReset(w.env, w.player)
}

func (w *WorkerRun) Policy() (interface{}, error) {
	if w.policyPending {
		return nil, fmt.Errorf("policy called twice without an intervening on_step")
	}
	action, err := w.worker.Policy(w.env)
	if err != nil {
		return nil, err
	}
	w.lastObservation = w.env.State()
	w.lastAction = action
	w.policyPending = true
	return action, nil
}

// DiscardPolicy forgets a pending action whose step was rejected (invalid
// action), allowing the policy to be queried again within the same turn.
func (w *WorkerRun) DiscardPolicy() {
	w.policyPending = false
	w.lastAction = nil
}

func (w *WorkerRun) OnStep() error {
	if !w.policyPending {
		return fmt.Errorf("on_step called without a preceding policy call")
	}
	w.policyPending = false
	return w.worker.OnStep(w.env)
}

// OnEpisodeEnd delivers the terminal step to a seat that did not make the
// final move, so every worker observes the episode outcome (terminal rewards
// and the done flag).
func (w *WorkerRun) OnEpisodeEnd() error {
	w.policyPending = false
	return w.worker.OnStep(w.env)
}

func (w *WorkerRun) RenderTerminal(out io.Writer) {
	w.worker.RenderTerminal(out, w.env)
}
