package algos

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/zeu5/rl-frame/types"
)

const (
	qlParameterBlobKind = "rl:QL:parameter"
	qlMemoryBlobKind    = "rl:QL:memory"
	qlBlobVersion       = 1
)

// QLConfig configures tabular Q-learning. Both the action and the
// observation must be convertible to the discrete representation.
type QLConfig struct {
	Epsilon  float64
	LR       float64
	Discount float64

	// WarmupSize is the minimum number of stored samples before training.
	WarmupSize int
	Capacity   int

	// Boltzmann samples actions from a softmax over Q values instead of
	// epsilon-greedy.
	Boltzmann bool
	Seed      uint64

	numActions int
}

var _ types.RLConfig = &QLConfig{}

func NewQLConfig() *QLConfig {
	return &QLConfig{
		Epsilon:    0.1,
		LR:         0.1,
		Discount:   0.9,
		WarmupSize: 1,
		Capacity:   100_000,
	}
}

func (c *QLConfig) Name() string                  { return "QL" }
func (c *QLConfig) ActionType() types.RLType      { return types.RLTypeDiscrete }
func (c *QLConfig) ObservationType() types.RLType { return types.RLTypeDiscrete }

func (c *QLConfig) SetupFromEnv(env types.EnvBase) error {
	space := env.ActionSpace()
	shape := space.Shape()
	if len(shape) != 1 || shape[0] != 1 {
		return fmt.Errorf("ql supports scalar action spaces, got %s", space)
	}
	n, err := space.DiscreteSize()
	if err != nil {
		return err
	}
	c.numActions = n
	return nil
}

func (c *QLConfig) Params() map[string]interface{} {
	return map[string]interface{}{
		"epsilon":     c.Epsilon,
		"lr":          c.LR,
		"discount":    c.Discount,
		"warmup_size": c.WarmupSize,
		"capacity":    c.Capacity,
		"boltzmann":   c.Boltzmann,
	}
}

// ------------------------------------------------------------- Parameter

// QLParameter is the Q table: state key to one value per action.
type QLParameter struct {
	Q          map[string][]float64
	numActions int
}

var _ types.RLParameter = &QLParameter{}

func NewQLParameter(config *QLConfig) *QLParameter {
	return &QLParameter{
		Q:          make(map[string][]float64),
		numActions: config.numActions,
	}
}

// Values returns the Q row for the state, creating a zero row on first use.
func (p *QLParameter) Values(state string) []float64 {
	row, ok := p.Q[state]
	if !ok {
		row = make([]float64, p.numActions)
		p.Q[state] = row
	}
	return row
}

type qlParameterSnapshot struct {
	Q          map[string][]float64 `json:"q"`
	NumActions int                  `json:"num_actions"`
}

func (p *QLParameter) Backup() (types.Blob, error) {
	return types.NewBlob(qlParameterBlobKind, qlBlobVersion, qlParameterSnapshot{
		Q:          p.Q,
		NumActions: p.numActions,
	})
}

func (p *QLParameter) Restore(b types.Blob) error {
	var snap qlParameterSnapshot
	if err := b.Open(qlParameterBlobKind, qlBlobVersion, &snap); err != nil {
		return err
	}
	if snap.Q == nil {
		snap.Q = make(map[string][]float64)
	}
	p.Q = snap.Q
	p.numActions = snap.NumActions
	return nil
}

// ---------------------------------------------------------------- Memory

// Transition is one experience sample. The ID is stable across transports so
// duplicate deliveries can be dropped.
type Transition struct {
	ID        string  `json:"id"`
	State     string  `json:"state"`
	Action    int     `json:"action"`
	Reward    float64 `json:"reward"`
	NextState string  `json:"next_state"`
	Done      bool    `json:"done"`
}

// QLMemory is a capacity-bounded FIFO experience store. Samples may arrive
// more than once and in any order; duplicates are dropped by ID.
type QLMemory struct {
	capacity int
	samples  []Transition
	seen     map[string]bool
}

var _ types.RLRemoteMemory = &QLMemory{}

func NewQLMemory(config *QLConfig) *QLMemory {
	return &QLMemory{
		capacity: config.Capacity,
		samples:  make([]Transition, 0),
		seen:     make(map[string]bool),
	}
}

// Add ingests a sample, either as a *Transition or in the serialized form
// delivered over a transport. Unparseable samples are dropped with a log line
// so transport-format drift does not silently starve the trainer.
func (m *QLMemory) Add(sample interface{}) {
	switch s := sample.(type) {
	case *Transition:
		m.add(*s)
	case Transition:
		m.add(s)
	case json.RawMessage:
		m.addSerialized(s)
	case []byte:
		m.addSerialized(s)
	default:
		log.Printf("ql memory: dropping sample of unsupported type %T", sample)
	}
}

func (m *QLMemory) addSerialized(bs []byte) {
	var t Transition
	if err := json.Unmarshal(bs, &t); err != nil {
		log.Printf("ql memory: dropping undecodable sample: %v", err)
		return
	}
	m.add(t)
}

func (m *QLMemory) add(t Transition) {
	if t.ID != "" && m.seen[t.ID] {
		return
	}
	if len(m.samples) >= m.capacity {
		evicted := m.samples[0]
		m.samples = m.samples[1:]
		delete(m.seen, evicted.ID)
	}
	m.samples = append(m.samples, t)
	if t.ID != "" {
		m.seen[t.ID] = true
	}
}

func (m *QLMemory) Len() int { return len(m.samples) }

// Samples returns a copy of the stored transitions, oldest first.
func (m *QLMemory) Samples() []Transition {
	out := make([]Transition, len(m.samples))
	copy(out, m.samples)
	return out
}

// Sample draws one stored transition uniformly.
func (m *QLMemory) Sample(rng *rand.Rand) (Transition, bool) {
	if len(m.samples) == 0 {
		return Transition{}, false
	}
	return m.samples[rng.Intn(len(m.samples))], true
}

type qlMemorySnapshot struct {
	Samples []Transition `json:"samples"`
}

func (m *QLMemory) Backup() (types.Blob, error) {
	return types.NewBlob(qlMemoryBlobKind, qlBlobVersion, qlMemorySnapshot{Samples: m.samples})
}

func (m *QLMemory) Restore(b types.Blob) error {
	var snap qlMemorySnapshot
	if err := b.Open(qlMemoryBlobKind, qlBlobVersion, &snap); err != nil {
		return err
	}
	m.samples = snap.Samples
	if m.samples == nil {
		m.samples = make([]Transition, 0)
	}
	m.seen = make(map[string]bool)
	for _, t := range m.samples {
		if t.ID != "" {
			m.seen[t.ID] = true
		}
	}
	return nil
}

// --------------------------------------------------------------- Trainer

// QLTrainer applies one Q update per Train call, sampling uniformly from
// the memory.
type QLTrainer struct {
	config     *QLConfig
	parameter  *QLParameter
	memory     *QLMemory
	rng        *rand.Rand
	trainCount int
}

var _ types.RLTrainer = &QLTrainer{}

func NewQLTrainer(config *QLConfig, parameter *QLParameter, memory *QLMemory) *QLTrainer {
	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &QLTrainer{
		config:    config,
		parameter: parameter,
		memory:    memory,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (t *QLTrainer) Train() error {
	warmup := t.config.WarmupSize
	if warmup < 1 {
		warmup = 1
	}
	if t.memory.Len() < warmup {
		return types.ErrInsufficientData
	}
	sample, ok := t.memory.Sample(t.rng)
	if !ok {
		return types.ErrInsufficientData
	}

	q := t.parameter.Values(sample.State)
	target := sample.Reward
	if !sample.Done {
		next := t.parameter.Values(sample.NextState)
		best := next[0]
		for _, v := range next[1:] {
			if v > best {
				best = v
			}
		}
		target += t.config.Discount * best
	}
	q[sample.Action] += t.config.LR * (target - q[sample.Action])
	t.trainCount++
	return nil
}

func (t *QLTrainer) TrainCount() int { return t.trainCount }

// ---------------------------------------------------------------- Worker

// QLWorker is the algorithm side of the adapter: it sees discrete
// observations and answers with discrete actions.
type QLWorker struct {
	config    *QLConfig
	parameter *QLParameter
	memory    types.RLRemoteMemory

	src rand.Source
	rng *rand.Rand

	training bool
	player   int
	idPrefix string
	idNext   int

	// the transition for the last taken action stays pending until the
	// player's next turn or the end of the episode, accumulating the
	// rewards earned in between. A loss dealt by another player's final
	// move is recorded this way.
	pendingState  string
	pendingAction int
	pendingReward float64
	hasPending    bool
	stepped       bool
}

var _ types.RLAlgorithmWorker = &QLWorker{}

func NewQLWorker(config *QLConfig, parameter *QLParameter, memory types.RLRemoteMemory, training bool) *QLWorker {
	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewSource(seed)
	rng := rand.New(src)
	return &QLWorker{
		config:    config,
		parameter: parameter,
		memory:    memory,
		src:       src,
		rng:       rng,
		training:  training,
		idPrefix:  fmt.Sprintf("%08x", rng.Uint32()),
	}
}

func stateKey(obs interface{}) string {
	return fmt.Sprint(obs)
}

func (w *QLWorker) CallOnReset(obs interface{}, player int, env *types.EnvRun) error {
	w.player = player
	w.hasPending = false
	w.stepped = false
	return nil
}

func (w *QLWorker) flush(nextState string, done bool) {
	w.idNext++
	w.memory.Add(&Transition{
		ID:        fmt.Sprintf("%s-%d", w.idPrefix, w.idNext),
		State:     w.pendingState,
		Action:    w.pendingAction,
		Reward:    w.pendingReward,
		NextState: nextState,
		Done:      done,
	})
	w.hasPending = false
}

func (w *QLWorker) CallPolicy(obs interface{}, invalidActions []int, env *types.EnvRun) (interface{}, error) {
	key := stateKey(obs)
	// the previous action's transition closes now that its successor state
	// is observed; a pending action never applied (rejected, re-queried) is
	// overwritten instead
	if w.training && w.hasPending && w.stepped {
		w.flush(key, false)
	}
	q := w.parameter.Values(key)

	invalid := make(map[int]bool, len(invalidActions))
	for _, a := range invalidActions {
		invalid[a] = true
	}
	valid := make([]int, 0, len(q))
	for a := range q {
		if !invalid[a] {
			valid = append(valid, a)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no valid actions in state %s", key)
	}

	var action int
	switch {
	case w.config.Boltzmann:
		weights := make([]float64, len(valid))
		for i, a := range valid {
			weights[i] = math.Exp(q[a])
		}
		i, ok := sampleuv.NewWeighted(weights, w.src).Take()
		if !ok {
			return nil, fmt.Errorf("softmax sampling failed in state %s", key)
		}
		action = valid[i]
	case w.training && w.rng.Float64() < w.config.Epsilon:
		action = valid[w.rng.Intn(len(valid))]
	default:
		action = valid[0]
		for _, a := range valid[1:] {
			if q[a] > q[action] {
				action = a
			}
		}
	}

	if w.training {
		w.pendingState = key
		w.pendingAction = action
		w.pendingReward = 0
		w.hasPending = true
		w.stepped = false
	}
	return action, nil
}

func (w *QLWorker) CallOnStep(obs interface{}, rewards []float64, done bool, env *types.EnvRun) error {
	if !w.training || !w.hasPending {
		return nil
	}
	w.stepped = true
	if w.player < len(rewards) {
		w.pendingReward += rewards[w.player]
	}
	if done {
		w.flush(stateKey(obs), true)
	}
	return nil
}

func (w *QLWorker) CallRenderTerminal(out io.Writer, env *types.EnvRun) {
	key := stateKey(env.State())
	if row, ok := w.parameter.Q[key]; ok {
		fmt.Fprintf(out, "q%s: %v\n", key, row)
	}
}

// ---------------------------------------------------------------- Builder

// QLBuilder wires the pieces into the registry.
type QLBuilder struct{}

var _ types.AlgorithmBuilder = &QLBuilder{}

func (b *QLBuilder) Config() types.RLConfig {
	return NewQLConfig()
}

func asQLConfig(config types.RLConfig) (*QLConfig, error) {
	c, ok := config.(*QLConfig)
	if !ok {
		return nil, fmt.Errorf("expected *QLConfig, got %T", config)
	}
	if c.numActions == 0 {
		return nil, fmt.Errorf("ql config was not set up from an environment")
	}
	return c, nil
}

func (b *QLBuilder) Parameter(config types.RLConfig) (types.RLParameter, error) {
	c, err := asQLConfig(config)
	if err != nil {
		return nil, err
	}
	return NewQLParameter(c), nil
}

func (b *QLBuilder) RemoteMemory(config types.RLConfig) (types.RLRemoteMemory, error) {
	c, err := asQLConfig(config)
	if err != nil {
		return nil, err
	}
	return NewQLMemory(c), nil
}

func (b *QLBuilder) Trainer(config types.RLConfig, parameter types.RLParameter, memory types.RLRemoteMemory) (types.RLTrainer, error) {
	c, err := asQLConfig(config)
	if err != nil {
		return nil, err
	}
	p, ok := parameter.(*QLParameter)
	if !ok {
		return nil, fmt.Errorf("expected *QLParameter, got %T", parameter)
	}
	m, ok := memory.(*QLMemory)
	if !ok {
		return nil, fmt.Errorf("expected *QLMemory, got %T", memory)
	}
	return NewQLTrainer(c, p, m), nil
}

func (b *QLBuilder) Worker(config types.RLConfig, parameter types.RLParameter, memory types.RLRemoteMemory, env types.EnvBase, training bool) (types.WorkerBase, error) {
	c, err := asQLConfig(config)
	if err != nil {
		return nil, err
	}
	p, ok := parameter.(*QLParameter)
	if !ok {
		return nil, fmt.Errorf("expected *QLParameter, got %T", parameter)
	}
	impl := NewQLWorker(c, p, memory, training)
	return types.NewRLWorker(c, p, memory, impl, env)
}

// Register adds the builtin algorithms to the registry.
func Register(r *types.Registry) error {
	return r.RegisterAlgorithm("QL", &QLBuilder{})
}
