package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeu5/rl-frame/runner"
	"github.com/zeu5/rl-frame/types"
)

var (
	loadPath string
	render   bool
)

func EvalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "eval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Eval(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVarP(&loadPath, "load", "l", "", "Parameter snapshot to evaluate")
	cmd.PersistentFlags().BoolVar(&render, "render", false, "Render each step to the terminal")
	return cmd
}

// Eval plays episodes with a frozen parameter and reports mean rewards.
func Eval(ctx context.Context) error {
	registry, err := newRegistry()
	if err != nil {
		return err
	}
	env, err := envConfig()
	if err != nil {
		return err
	}
	probe, err := registry.MakeEnv(env)
	if err != nil {
		return err
	}
	opp, err := opponents(probe.Env().PlayerNum())
	if err != nil {
		return err
	}

	history := runner.NewHistory()
	config := runner.Config{
		Registry:  registry,
		Env:       env,
		Algorithm: algorithm,
		Episodes:  episodes,
		Training:  false,
		Configure: configureAlgorithm,
		Opponents: opp,
		History:   history,
	}
	if render {
		config.Render = os.Stdout
	}
	r, err := runner.New(config)
	if err != nil {
		return err
	}

	if loadPath != "" {
		bs, err := os.ReadFile(loadPath)
		if err != nil {
			return err
		}
		if err := r.Parameter().Restore(types.Blob(bs)); err != nil {
			return fmt.Errorf("restore parameter: %w", err)
		}
	}

	if err := r.Run(ctx); err != nil {
		return err
	}
	for player := 0; player < probe.Env().PlayerNum(); player++ {
		fmt.Printf("player %d: mean reward %f over %d episodes\n",
			player, history.MeanReward(player, 0), history.Episodes())
	}
	return nil
}
