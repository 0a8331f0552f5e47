package types

import (
	"fmt"
	"sort"
	"strings"
)

// EnvMaker constructs a concrete environment from its config.
type EnvMaker func(EnvConfig) (EnvBase, error)

// AlgorithmBuilder constructs the pieces of one registered algorithm. The
// config returned by Config is a fresh copy each call; the remaining
// constructors are called with a config that already ran SetupFromEnv.
type AlgorithmBuilder interface {
	Config() RLConfig
	Parameter(config RLConfig) (RLParameter, error)
	RemoteMemory(config RLConfig) (RLRemoteMemory, error)
	Trainer(config RLConfig, parameter RLParameter, memory RLRemoteMemory) (RLTrainer, error)
	// Worker builds the playing side. With training set the worker explores
	// and records experiences into the memory; without it the worker plays
	// its learned policy and leaves the memory untouched.
	Worker(config RLConfig, parameter RLParameter, memory RLRemoteMemory, env EnvBase, training bool) (WorkerBase, error)
}

// Registry maps names to environment and algorithm constructors. It is an
// explicit object passed into adapter constructors, scoped to process
// startup; there is no hidden package-level registry.
type Registry struct {
	envs       map[string]EnvMaker
	algorithms map[string]AlgorithmBuilder
}

func NewRegistry() *Registry {
	return &Registry{
		envs:       make(map[string]EnvMaker),
		algorithms: make(map[string]AlgorithmBuilder),
	}
}

func (r *Registry) RegisterEnv(name string, maker EnvMaker) error {
	if _, ok := r.envs[name]; ok {
		return fmt.Errorf("environment %q already registered", name)
	}
	r.envs[name] = maker
	return nil
}

func (r *Registry) RegisterAlgorithm(name string, builder AlgorithmBuilder) error {
	if _, ok := r.algorithms[name]; ok {
		return fmt.Errorf("algorithm %q already registered", name)
	}
	r.algorithms[name] = builder
	return nil
}

// MakeEnv instantiates a registered environment wrapped in a fresh run.
func (r *Registry) MakeEnv(config EnvConfig) (*EnvRun, error) {
	maker, ok := r.envs[config.Name]
	if !ok {
		return nil, fmt.Errorf("environment %q not registered (have: %s)", config.Name, keyList(r.envs))
	}
	env, err := maker(config)
	if err != nil {
		return nil, fmt.Errorf("make environment %q: %w", config.Name, err)
	}
	return NewEnvRun(env), nil
}

// Algorithm looks up a registered algorithm builder.
func (r *Registry) Algorithm(name string) (AlgorithmBuilder, error) {
	builder, ok := r.algorithms[name]
	if !ok {
		return nil, fmt.Errorf("algorithm %q not registered (have: %s)", name, keyList(r.algorithms))
	}
	return builder, nil
}

func keyList[V any](m map[string]V) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
