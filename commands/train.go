package commands

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/zeu5/rl-frame/runner"
)

func TrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "train",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Train(cmd.Context())
		},
	}
	return cmd
}

// Train runs sequential training and writes the parameter snapshot, the
// reward history and a reward plot into the save folder.
func Train(ctx context.Context) error {
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
	r, err := runner.New(runner.Config{
		Registry:  registry,
		Env:       env,
		Algorithm: algorithm,
		Episodes:  episodes,
		Training:  true,
		Configure: configureAlgorithm,
		Opponents: opp,
		History:   history,
	})
	if err != nil {
		return err
	}
	if err := r.Run(ctx); err != nil {
		return err
	}

	if err := os.MkdirAll(savePath, os.ModePerm); err != nil {
		return err
	}
	blob, err := r.Parameter().Backup()
	if err != nil {
		return fmt.Errorf("backup parameter: %w", err)
	}
	if err := os.WriteFile(path.Join(savePath, "parameter.json"), blob, 0644); err != nil {
		return err
	}
	if err := history.WriteCSV(path.Join(savePath, "history.csv")); err != nil {
		return err
	}
	if err := history.Plot(path.Join(savePath, "rewards.png")); err != nil {
		return err
	}

	fmt.Printf("trained %d episodes, %d train steps, mean reward over last 100: %f\n",
		history.Episodes(), r.Trainer().TrainCount(), history.MeanReward(0, 100))
	return nil
}
