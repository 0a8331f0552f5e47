package runner

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/zeu5/rl-frame/types"
)

// Config drives a sequential train or evaluate run: one environment, one
// learned worker on seat 0 and optional scripted opponents on the remaining
// seats.
type Config struct {
	Registry  *types.Registry
	Env       types.EnvConfig
	Algorithm string

	Episodes int
	Training bool

	// Configure, when set, adjusts the fresh algorithm config before it is
	// set up against the environment.
	Configure func(types.RLConfig) error

	// Opponents fill player seats 1..n. Missing seats fail construction.
	Opponents []types.WorkerBase

	// Memory, when set, replaces the builder's remote memory. Actors use
	// this to route experiences onto a queue instead of storing them.
	Memory types.RLRemoteMemory

	// Render, when set, receives a terminal view after every step.
	Render io.Writer

	// History, when set, records per-episode rewards and train counts.
	History *History

	// InvalidActionRetries is how often the policy is re-queried after an
	// invalid action before the episode fails. Zero means 3.
	InvalidActionRetries int
}

// Runner owns one environment run and its worker runs, and drives episodes
// sequentially: step must complete before the next policy call.
type Runner struct {
	config Config

	env       *types.EnvRun
	rlConfig  types.RLConfig
	parameter types.RLParameter
	memory    types.RLRemoteMemory
	trainer   types.RLTrainer
	workers   []*types.WorkerRun
}

func New(config Config) (*Runner, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("runner needs a registry")
	}
	if config.InvalidActionRetries == 0 {
		config.InvalidActionRetries = 3
	}

	env, err := config.Registry.MakeEnv(config.Env)
	if err != nil {
		return nil, err
	}
	builder, err := config.Registry.Algorithm(config.Algorithm)
	if err != nil {
		return nil, err
	}
	rlConfig := builder.Config()
	if config.Configure != nil {
		if err := config.Configure(rlConfig); err != nil {
			return nil, fmt.Errorf("configure %s: %w", config.Algorithm, err)
		}
	}
	if err := rlConfig.SetupFromEnv(env.Env()); err != nil {
		return nil, fmt.Errorf("setup %s for %s: %w", config.Algorithm, config.Env.Name, err)
	}
	parameter, err := builder.Parameter(rlConfig)
	if err != nil {
		return nil, err
	}
	memory := config.Memory
	if memory == nil {
		memory, err = builder.RemoteMemory(rlConfig)
		if err != nil {
			return nil, err
		}
	}
	// an overridden memory means training happens in another process, so no
	// local trainer is built
	var trainer types.RLTrainer
	if config.Training && config.Memory == nil {
		trainer, err = builder.Trainer(rlConfig, parameter, memory)
		if err != nil {
			return nil, err
		}
	}
	worker, err := builder.Worker(rlConfig, parameter, memory, env.Env(), config.Training)
	if err != nil {
		return nil, err
	}

	seats := []types.WorkerBase{worker}
	seats = append(seats, config.Opponents...)
	if len(seats) != env.Env().PlayerNum() {
		return nil, fmt.Errorf("environment %s has %d players, %d workers provided",
			config.Env.Name, env.Env().PlayerNum(), len(seats))
	}
	workers := make([]*types.WorkerRun, len(seats))
	for i, w := range seats {
		workers[i] = types.NewWorkerRun(w, env, i)
	}

	return &Runner{
		config:    config,
		env:       env,
		rlConfig:  rlConfig,
		parameter: parameter,
		memory:    memory,
		trainer:   trainer,
		workers:   workers,
	}, nil
}

func (r *Runner) Parameter() types.RLParameter { return r.parameter }
func (r *Runner) Memory() types.RLRemoteMemory { return r.memory }
func (r *Runner) Trainer() types.RLTrainer     { return r.trainer }
func (r *Runner) Env() *types.EnvRun           { return r.env }

// Run executes the configured number of episodes.
func (r *Runner) Run(ctx context.Context) error {
	for episode := 0; episode < r.config.Episodes; episode++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rewards, err := r.RunEpisode(ctx)
		if err != nil {
			return fmt.Errorf("episode %d: %w", episode, err)
		}
		if r.config.History != nil {
			trainCount := 0
			if r.trainer != nil {
				trainCount = r.trainer.TrainCount()
			}
			r.config.History.Append(rewards, trainCount)
		}
	}
	return nil
}

// RunEpisode plays one episode to completion and returns the per-player
// episode rewards.
func (r *Runner) RunEpisode(ctx context.Context) ([]float64, error) {
	if _, err := r.env.Reset(); err != nil {
		return nil, err
	}
	for _, w := range r.workers {
		if err := w.OnReset(); err != nil {
			return nil, err
		}
	}
	r.render()

	lastPlayer := -1
	for !r.env.Done() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		player := r.env.NextPlayer()
		worker := r.workers[player]

		if err := r.stepOnce(worker, player); err != nil {
			return nil, err
		}
		if err := worker.OnStep(); err != nil {
			return nil, err
		}
		lastPlayer = player
		if r.trainer != nil {
			if err := r.trainer.Train(); err != nil && !errors.Is(err, types.ErrInsufficientData) {
				return nil, err
			}
		}
		r.render()
	}

	// the seats that did not make the final move still observe the outcome
	for i, w := range r.workers {
		if i == lastPlayer {
			continue
		}
		if err := w.OnEpisodeEnd(); err != nil {
			return nil, err
		}
	}
	return r.env.EpisodeRewards(), nil
}

// stepOnce queries the policy and steps the environment, re-querying after
// an invalid action. Any other step error is returned as is.
func (r *Runner) stepOnce(worker *types.WorkerRun, player int) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.InvalidActionRetries; attempt++ {
		action, err := worker.Policy()
		if err != nil {
			return err
		}
		err = r.env.Step(action, player)
		if err == nil {
			return nil
		}
		var ia *types.InvalidActionError
		if !errors.As(err, &ia) {
			return err
		}
		worker.DiscardPolicy()
		lastErr = err
	}
	return fmt.Errorf("policy kept producing invalid actions: %w", lastErr)
}

func (r *Runner) render() {
	if r.config.Render == nil {
		return
	}
	r.env.RenderTerminal(r.config.Render)
	fmt.Fprintln(r.config.Render)
}
