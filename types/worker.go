package types

import (
	"fmt"
	"io"
	"math/rand"
)

// WorkerBase is the capability set shared by every worker variant. The
// driving loop is agnostic to which variant it holds; behavior is composed
// via delegation, not inheritance.
type WorkerBase interface {
	OnReset(env *EnvRun, player int) error
	// Policy returns the next action in the environment's native
	// representation. Exactly one Policy call precedes each OnStep.
	Policy(env *EnvRun) (interface{}, error)
	// OnStep receives the post-step environment for learning-signal
	// bookkeeping. Weight updates happen in the trainer, not here.
	OnStep(env *EnvRun) error
	RenderTerminal(w io.Writer, env *EnvRun)
}

// ------------------------------------------------------------------ codecs

// spaceCodec absorbs the representational gap between an environment-native
// space and the representation an algorithm declared. Feasibility is probed
// at construction so incompatibilities never surface mid-episode.
type spaceCodec struct {
	space  Space
	target RLType
}

func newSpaceCodec(space Space, target RLType, algorithm, what string) (*spaceCodec, error) {
	c := &spaceCodec{space: space, target: target}
	if target == RLTypeDiscrete {
		// discrete representations require a finite enumeration
		if _, err := space.DiscreteSize(); err != nil {
			return nil, &TypeIncompatibilityError{
				Algorithm: algorithm,
				Reason:    fmt.Sprintf("%s space %s cannot be made discrete", what, space),
				Err:       err,
			}
		}
	}
	// probe one conversion round so shape errors also fail fast
	probe := space.Sample(rand.New(rand.NewSource(1)))
	if _, err := c.Encode(probe); err != nil {
		return nil, &TypeIncompatibilityError{
			Algorithm: algorithm,
			Reason:    fmt.Sprintf("%s space %s conversion failed", what, space),
			Err:       err,
		}
	}
	return c, nil
}

// Encode converts a native value to the algorithm's representation.
func (c *spaceCodec) Encode(v interface{}) (interface{}, error) {
	switch c.target {
	case RLTypeDiscrete:
		return c.space.ToDiscrete(v)
	case RLTypeContinuous:
		return c.space.ToContinuous(v)
	default:
		return v, nil
	}
}

// Decode converts an algorithm value back to the native representation.
func (c *spaceCodec) Decode(v interface{}) (interface{}, error) {
	switch c.target {
	case RLTypeDiscrete:
		d, ok := asIntSlice(v)
		if !ok {
			if i, iok := asInt(v); iok {
				d = []int{i}
				ok = true
			}
		}
		if !ok {
			return nil, fmt.Errorf("expected discrete value, got %T", v)
		}
		return c.space.FromDiscrete(d)
	case RLTypeContinuous:
		f, ok := asFloatSlice(v)
		if !ok {
			if s, sok := asFloat(v); sok {
				f = []float64{s}
				ok = true
			}
		}
		if !ok {
			return nil, fmt.Errorf("expected continuous value, got %T", v)
		}
		return c.space.FromContinuous(f)
	default:
		return v, nil
	}
}

// ---------------------------------------------------------------- RLWorker

// RLAlgorithmWorker is the algorithm-facing side of an RLWorker. It sees
// observations and produces actions in the algorithm's declared
// representation; the RLWorker owns the conversion.
type RLAlgorithmWorker interface {
	CallOnReset(obs interface{}, player int, env *EnvRun) error
	CallPolicy(obs interface{}, invalidActions []int, env *EnvRun) (interface{}, error)
	CallOnStep(obs interface{}, rewards []float64, done bool, env *EnvRun) error
	CallRenderTerminal(w io.Writer, env *EnvRun)
}

// RLWorker glues one algorithm's policy to one environment's native spaces.
// Construction validates the config's declared types against the
// environment, front-loading incompatibility errors before any episode runs.
type RLWorker struct {
	config    RLConfig
	parameter RLParameter
	memory    RLRemoteMemory
	impl      RLAlgorithmWorker

	player   int
	obsCodec *spaceCodec
	actCodec *spaceCodec
}

var _ WorkerBase = &RLWorker{}

func NewRLWorker(config RLConfig, parameter RLParameter, memory RLRemoteMemory, impl RLAlgorithmWorker, env EnvBase) (*RLWorker, error) {
	obsCodec, err := newSpaceCodec(env.ObservationSpace(), config.ObservationType(), config.Name(), "observation")
	if err != nil {
		return nil, err
	}
	actCodec, err := newSpaceCodec(env.ActionSpace(), config.ActionType(), config.Name(), "action")
	if err != nil {
		return nil, err
	}
	return &RLWorker{
		config:    config,
		parameter: parameter,
		memory:    memory,
		impl:      impl,
		obsCodec:  obsCodec,
		actCodec:  actCodec,
	}, nil
}

func (w *RLWorker) Config() RLConfig       { return w.config }
func (w *RLWorker) Parameter() RLParameter { return w.parameter }
func (w *RLWorker) Memory() RLRemoteMemory { return w.memory }

func (w *RLWorker) OnReset(env *EnvRun, player int) error {
	w.player = player
	obs, err := w.obsCodec.Encode(env.State())
	if err != nil {
		return fmt.Errorf("encode observation: %w", err)
	}
	return w.impl.CallOnReset(obs, player, env)
}

func (w *RLWorker) Policy(env *EnvRun) (interface{}, error) {
	obs, err := w.obsCodec.Encode(env.State())
	if err != nil {
		return nil, fmt.Errorf("encode observation: %w", err)
	}
	action, err := w.impl.CallPolicy(obs, env.InvalidActions(w.player), env)
	if err != nil {
		return nil, err
	}
	native, err := w.actCodec.Decode(action)
	if err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	return native, nil
}

func (w *RLWorker) OnStep(env *EnvRun) error {
	obs, err := w.obsCodec.Encode(env.State())
	if err != nil {
		return fmt.Errorf("encode observation: %w", err)
	}
	return w.impl.CallOnStep(obs, env.StepRewards(), env.Done(), env)
}

func (w *RLWorker) RenderTerminal(out io.Writer, env *EnvRun) {
	w.impl.CallRenderTerminal(out, env)
}

// ---------------------------------------------------------- RuleBaseWorker

// RuleBaseWorker is a fixed-policy worker assembled from plain functions. It
// holds its policy rather than inheriting one, so scripted opponents need no
// RLConfig or parameter.
type RuleBaseWorker struct {
	OnResetFunc func(env *EnvRun, player int) error
	PolicyFunc  func(env *EnvRun) (interface{}, error)
	OnStepFunc  func(env *EnvRun) error
	RenderFunc  func(w io.Writer, env *EnvRun)
}

var _ WorkerBase = &RuleBaseWorker{}

func NewRuleBaseWorker(policy func(env *EnvRun) (interface{}, error)) *RuleBaseWorker {
	return &RuleBaseWorker{PolicyFunc: policy}
}

func (r *RuleBaseWorker) OnReset(env *EnvRun, player int) error {
	if r.OnResetFunc == nil {
		return nil
	}
	return r.OnResetFunc(env, player)
}

func (r *RuleBaseWorker) Policy(env *EnvRun) (interface{}, error) {
	if r.PolicyFunc == nil {
		return nil, fmt.Errorf("rule base worker has no policy function")
	}
	return r.PolicyFunc(env)
}

func (r *RuleBaseWorker) OnStep(env *EnvRun) error {
	if r.OnStepFunc == nil {
		return nil
	}
	return r.OnStepFunc(env)
}

func (r *RuleBaseWorker) RenderTerminal(w io.Writer, env *EnvRun) {
	if r.RenderFunc != nil {
		r.RenderFunc(w, env)
	}
}

// ------------------------------------------------------------ ExtendWorker

// ExtendWorker decorates another worker, overriding only the calls it sets.
type ExtendWorker struct {
	Base WorkerBase

	OnResetFunc func(base WorkerBase, env *EnvRun, player int) error
	PolicyFunc  func(base WorkerBase, env *EnvRun) (interface{}, error)
	OnStepFunc  func(base WorkerBase, env *EnvRun) error
	RenderFunc  func(base WorkerBase, w io.Writer, env *EnvRun)
}

var _ WorkerBase = &ExtendWorker{}

func (e *ExtendWorker) OnReset(env *EnvRun, player int) error {
	if e.OnResetFunc != nil {
		return e.OnResetFunc(e.Base, env, player)
	}
	return e.Base.OnReset(env, player)
}

func (e *ExtendWorker) Policy(env *EnvRun) (interface{}, error) {
	if e.PolicyFunc != nil {
		return e.PolicyFunc(e.Base, env)
	}
	return e.Base.Policy(env)
}

func (e *ExtendWorker) OnStep(env *EnvRun) error {
	if e.OnStepFunc != nil {
		return e.OnStepFunc(e.Base, env)
	}
	return e.Base.OnStep(env)
}

func (e *ExtendWorker) RenderTerminal(w io.Writer, env *EnvRun) {
	if e.RenderFunc != nil {
		e.RenderFunc(e.Base, w, env)
		return
	}
	e.Base.RenderTerminal(w, env)
}
