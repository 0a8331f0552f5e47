package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zeu5/rl-frame/types"
)

// ParameterBoard distributes parameter snapshots from the learner to the
// actors. Last write wins; actors only ever want the newest snapshot.
type ParameterBoard interface {
	Publish(b types.Blob) error
	// Latest returns the newest published snapshot, or ok=false when the
	// learner has not published yet.
	Latest() (types.Blob, bool, error)
}

// ExperienceQueue carries serialized experience samples from actors to the
// learner. Delivery is at least once; consumers deduplicate by sample ID.
type ExperienceQueue interface {
	Push(payload []byte) error
	// Pop drains up to max payloads, returning none when the queue is empty.
	Pop(max int) ([][]byte, error)
}

// QueueMemory is the actor-side remote memory: every sample is serialized
// and pushed onto the queue instead of being stored. It holds no state of
// its own.
type QueueMemory struct {
	queue ExperienceQueue
	err   error
}

var _ types.RLRemoteMemory = &QueueMemory{}

func NewQueueMemory(queue ExperienceQueue) *QueueMemory {
	return &QueueMemory{queue: queue}
}

func (m *QueueMemory) Add(sample interface{}) {
	var payload []byte
	switch s := sample.(type) {
	case []byte:
		payload = s
	case json.RawMessage:
		payload = s
	default:
		bs, err := json.Marshal(sample)
		if err != nil {
			m.err = fmt.Errorf("marshal sample: %w", err)
			return
		}
		payload = bs
	}
	if err := m.queue.Push(payload); err != nil {
		m.err = fmt.Errorf("push sample: %w", err)
	}
}

func (m *QueueMemory) Len() int { return 0 }

// Err reports the last delivery failure, if any.
func (m *QueueMemory) Err() error { return m.err }

func (m *QueueMemory) Backup() (types.Blob, error) {
	return types.NewBlob("queue-memory", 1, nil)
}

func (m *QueueMemory) Restore(b types.Blob) error {
	var ignored json.RawMessage
	return b.Open("queue-memory", 1, &ignored)
}

// ----------------------------------------------------------------- actor

// ActorConfig configures one episode-generating process. The actor plays
// episodes with the latest published parameter and ships every experience
// sample onto the queue.
type ActorConfig struct {
	Runner Config

	Board ParameterBoard
	Queue ExperienceQueue

	// SyncInterval is how many episodes to play between parameter fetches.
	// Zero means every episode.
	SyncInterval int

	// Episodes bounds the actor's work. Zero means run until the context
	// is cancelled.
	Episodes int
}

type Actor struct {
	config ActorConfig
	runner *Runner
	memory *QueueMemory
}

func NewActor(config ActorConfig) (*Actor, error) {
	if config.Board == nil || config.Queue == nil {
		return nil, fmt.Errorf("actor needs a parameter board and an experience queue")
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 1
	}
	memory := NewQueueMemory(config.Queue)
	runnerConfig := config.Runner
	runnerConfig.Training = true
	runnerConfig.Memory = memory
	runner, err := New(runnerConfig)
	if err != nil {
		return nil, err
	}
	return &Actor{config: config, runner: runner, memory: memory}, nil
}

// Run plays episodes until the context is cancelled or the episode bound is
// reached. A stale parameter is tolerated; a failed delivery is not.
func (a *Actor) Run(ctx context.Context) error {
	for episode := 0; a.config.Episodes <= 0 || episode < a.config.Episodes; episode++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if episode%a.config.SyncInterval == 0 {
			if err := a.syncParameter(); err != nil {
				return err
			}
		}
		if _, err := a.runner.RunEpisode(ctx); err != nil {
			return fmt.Errorf("episode %d: %w", episode, err)
		}
		if err := a.memory.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actor) syncParameter() error {
	blob, ok, err := a.config.Board.Latest()
	if err != nil {
		return fmt.Errorf("fetch parameter: %w", err)
	}
	if !ok {
		return nil
	}
	if err := a.runner.Parameter().Restore(blob); err != nil {
		return fmt.Errorf("restore parameter: %w", err)
	}
	return nil
}

// ----------------------------------------------------------------- learner

// LearnerConfig configures the single training process. The learner drains
// the queue into its memory, trains, and periodically publishes parameter
// snapshots.
type LearnerConfig struct {
	Registry  *types.Registry
	Env       types.EnvConfig
	Algorithm string

	Board ParameterBoard
	Queue ExperienceQueue

	// BatchMax bounds how many payloads are drained per cycle. Zero means 64.
	BatchMax int
	// PublishInterval is how many successful train steps to run between
	// snapshot publishes. Zero means 10.
	PublishInterval int
	// IdleWait is the backoff when the queue is empty and the memory holds
	// too little data to train. Zero means 50ms.
	IdleWait time.Duration
	// MaxTrainCount stops the learner after that many train steps. Zero
	// means run until the context is cancelled.
	MaxTrainCount int
}

type Learner struct {
	config    LearnerConfig
	parameter types.RLParameter
	memory    types.RLRemoteMemory
	trainer   types.RLTrainer
}

func NewLearner(config LearnerConfig) (*Learner, error) {
	if config.Board == nil || config.Queue == nil {
		return nil, fmt.Errorf("learner needs a parameter board and an experience queue")
	}
	if config.BatchMax <= 0 {
		config.BatchMax = 64
	}
	if config.PublishInterval <= 0 {
		config.PublishInterval = 10
	}
	if config.IdleWait <= 0 {
		config.IdleWait = 50 * time.Millisecond
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
	if err := rlConfig.SetupFromEnv(env.Env()); err != nil {
		return nil, fmt.Errorf("setup %s for %s: %w", config.Algorithm, config.Env.Name, err)
	}
	parameter, err := builder.Parameter(rlConfig)
	if err != nil {
		return nil, err
	}
	memory, err := builder.RemoteMemory(rlConfig)
	if err != nil {
		return nil, err
	}
	trainer, err := builder.Trainer(rlConfig, parameter, memory)
	if err != nil {
		return nil, err
	}
	return &Learner{
		config:    config,
		parameter: parameter,
		memory:    memory,
		trainer:   trainer,
	}, nil
}

func (l *Learner) Parameter() types.RLParameter { return l.parameter }
func (l *Learner) Trainer() types.RLTrainer     { return l.trainer }

// Run drains, trains and publishes until the context is cancelled or the
// train bound is reached. The final parameter is published on the way out.
func (l *Learner) Run(ctx context.Context) error {
	sincePublish := 0
	for l.config.MaxTrainCount <= 0 || l.trainer.TrainCount() < l.config.MaxTrainCount {
		select {
		case <-ctx.Done():
			if err := l.publish(); err != nil {
				log.Printf("learner: final publish failed: %v", err)
			}
			return ctx.Err()
		default:
		}

		drained, err := l.drain()
		if err != nil {
			return err
		}
		err = l.trainer.Train()
		if errors.Is(err, types.ErrInsufficientData) {
			if drained == 0 {
				l.wait(ctx)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("train: %w", err)
		}
		sincePublish++
		if sincePublish >= l.config.PublishInterval {
			if err := l.publish(); err != nil {
				return err
			}
			sincePublish = 0
		}
	}
	return l.publish()
}

func (l *Learner) drain() (int, error) {
	payloads, err := l.config.Queue.Pop(l.config.BatchMax)
	if err != nil {
		return 0, fmt.Errorf("pop experiences: %w", err)
	}
	for _, p := range payloads {
		l.memory.Add(json.RawMessage(p))
	}
	return len(payloads), nil
}

func (l *Learner) publish() error {
	blob, err := l.parameter.Backup()
	if err != nil {
		return fmt.Errorf("backup parameter: %w", err)
	}
	if err := l.config.Board.Publish(blob); err != nil {
		return fmt.Errorf("publish parameter: %w", err)
	}
	return nil
}

func (l *Learner) wait(ctx context.Context) {
	t := time.NewTimer(l.config.IdleWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
