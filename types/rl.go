package types

// RLType declares the representation an algorithm works in. Any accepts the
// environment's native representation unchanged.
type RLType int

const (
	RLTypeAny RLType = iota
	RLTypeDiscrete
	RLTypeContinuous
)

func (t RLType) String() string {
	switch t {
	case RLTypeDiscrete:
		return "discrete"
	case RLTypeContinuous:
		return "continuous"
	default:
		return "any"
	}
}

// RLConfig is the static descriptor of an algorithm: its name, the
// representations it requires and its hyperparameters. Configs are copied
// across processes and never mutated once training starts.
type RLConfig interface {
	Name() string
	ActionType() RLType
	ObservationType() RLType
	// SetupFromEnv lets the config capture environment facts it needs
	// (action counts, observation shape). Called once before construction
	// of parameters, workers and trainers.
	SetupFromEnv(env EnvBase) error
	// Params exposes the hyperparameters for recording.
	Params() map[string]interface{}
}

// RLParameter is an algorithm's learned state, synchronized across processes
// via Backup/Restore. Restoring a backup must reproduce behaviorally
// equivalent state.
type RLParameter interface {
	Checkpointable
}

// RLRemoteMemory is an algorithm's experience store. Actors append to it,
// the trainer reads from it; across processes it is synchronized via
// Backup/Restore or per-sample delivery. Implementations must tolerate
// duplicate and out-of-order samples.
type RLRemoteMemory interface {
	Checkpointable
	// Add ingests one experience sample. The concrete sample type is owned
	// by the algorithm; implementations must also accept the serialized
	// form delivered over a transport.
	Add(sample interface{})
	Len() int
}

// RLTrainer consumes the remote memory and mutates the parameter. Train
// performs one optimization step and returns ErrInsufficientData, never a
// fatal error, while the memory holds fewer samples than required.
type RLTrainer interface {
	Train() error
	TrainCount() int
}
