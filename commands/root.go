package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeu5/rl-frame/algos"
	"github.com/zeu5/rl-frame/envs"
	"github.com/zeu5/rl-frame/types"
)

var (
	envName   string
	envArgs   []string
	algorithm string
	episodes  int
	savePath  string
	seed      int
	epsilon   float64
)

func GetRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use: "rl-frame",
	}
	rootCommand.PersistentFlags().StringVar(&envName, "env", "Grid", "Environment to run")
	rootCommand.PersistentFlags().StringArrayVar(&envArgs, "env-arg", nil, "Environment argument as key=value, repeatable")
	rootCommand.PersistentFlags().StringVarP(&algorithm, "algo", "a", "QL", "Algorithm to run")
	rootCommand.PersistentFlags().IntVarP(&episodes, "episodes", "e", 10000, "Number of episodes to run")
	rootCommand.PersistentFlags().StringVarP(&savePath, "save", "s", "results", "Save the run artifacts in the specified folder")
	rootCommand.PersistentFlags().IntVar(&seed, "seed", 0, "Random seed, 0 picks one")
	rootCommand.PersistentFlags().Float64Var(&epsilon, "epsilon", 0.1, "Exploration rate for training")
	// adding the subcommands here
	rootCommand.AddCommand(TrainCommand())
	rootCommand.AddCommand(EvalCommand())
	rootCommand.AddCommand(ActorCommand())
	rootCommand.AddCommand(LearnerCommand())
	rootCommand.AddCommand(ServeCommand())
	return rootCommand
}

// newRegistry builds the registry with the builtin environments and
// algorithms.
func newRegistry() (*types.Registry, error) {
	registry := types.NewRegistry()
	if err := envs.Register(registry); err != nil {
		return nil, err
	}
	if err := algos.Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// envConfig assembles the environment config from the flags. Values parse as
// int, then float, then string.
func envConfig() (types.EnvConfig, error) {
	kwargs := make(map[string]interface{})
	for _, arg := range envArgs {
		key, value, found := strings.Cut(arg, "=")
		if !found {
			return types.EnvConfig{}, fmt.Errorf("env-arg %q is not key=value", arg)
		}
		if i, err := strconv.Atoi(value); err == nil {
			kwargs[key] = i
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			kwargs[key] = f
		} else {
			kwargs[key] = value
		}
	}
	if seed != 0 {
		if _, ok := kwargs["seed"]; !ok {
			kwargs["seed"] = seed
		}
	}
	return types.EnvConfig{Name: envName, Kwargs: kwargs}, nil
}

func configureAlgorithm(c types.RLConfig) error {
	if ql, ok := c.(*algos.QLConfig); ok {
		ql.Epsilon = epsilon
		ql.Seed = uint64(seed)
	}
	return nil
}

// opponents fills the player seats beyond the learning one. Only OX ships a
// scripted opponent.
func opponents(playerNum int) ([]types.WorkerBase, error) {
	if playerNum <= 1 {
		return nil, nil
	}
	if envName != "OX" {
		return nil, fmt.Errorf("no scripted opponents available for %s", envName)
	}
	out := make([]types.WorkerBase, playerNum-1)
	for i := range out {
		out[i] = envs.OXCpu()
	}
	return out, nil
}
