package envs

import (
	"time"

	"github.com/zeu5/rl-frame/types"
)

// Register adds the builtin environments to the registry.
func Register(r *types.Registry) error {
	if err := r.RegisterEnv("Grid", func(cfg types.EnvConfig) (types.EnvBase, error) {
		seed := int64(cfg.Int("seed", 0))
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return NewGrid(
			cfg.Float("move_prob", 0.8),
			cfg.Int("max_steps", 50),
			seed,
		), nil
	}); err != nil {
		return err
	}
	return r.RegisterEnv("OX", func(cfg types.EnvConfig) (types.EnvBase, error) {
		return NewOX(), nil
	})
}
