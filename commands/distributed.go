package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeu5/rl-frame/runner"
)

var (
	transport string
	relayAddr string
	redisAddr string
	namespace string
	maxTrain  int
)

func addTransportFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&transport, "transport", "t", "http", "Transport to reach the relay: http or redis")
	cmd.PersistentFlags().StringVar(&relayAddr, "relay-addr", "localhost:8090", "Address of the relay server")
	cmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Address of the redis instance")
	cmd.PersistentFlags().StringVar(&namespace, "namespace", "rl-frame", "Key namespace on the redis instance")
}

// newTransport builds the board and queue sides from the transport flags.
func newTransport() (runner.ParameterBoard, runner.ExperienceQueue, error) {
	switch transport {
	case "http":
		client := runner.NewRelayClient(relayAddr)
		return client, client, nil
	case "redis":
		t := runner.NewRedisTransport(redisAddr, namespace)
		return t, t, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q, want http or redis", transport)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func ActorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunActor()
		},
	}
	addTransportFlags(cmd)
	return cmd
}

// RunActor plays episodes against the shared transport until interrupted or
// the episode bound is reached.
func RunActor() error {
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
	board, queue, err := newTransport()
	if err != nil {
		return err
	}

	actor, err := runner.NewActor(runner.ActorConfig{
		Runner: runner.Config{
			Registry:  registry,
			Env:       env,
			Algorithm: algorithm,
			Configure: configureAlgorithm,
			Opponents: opp,
		},
		Board:    board,
		Queue:    queue,
		Episodes: episodes,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if err := actor.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func LearnerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "learner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunLearner()
		},
	}
	addTransportFlags(cmd)
	cmd.PersistentFlags().IntVar(&maxTrain, "max-train", 0, "Stop after this many train steps, 0 runs until interrupted")
	return cmd
}

// RunLearner trains from the shared queue and publishes snapshots until
// interrupted, then writes the final parameter into the save folder.
func RunLearner() error {
	registry, err := newRegistry()
	if err != nil {
		return err
	}
	env, err := envConfig()
	if err != nil {
		return err
	}
	board, queue, err := newTransport()
	if err != nil {
		return err
	}

	learner, err := runner.NewLearner(runner.LearnerConfig{
		Registry:      registry,
		Env:           env,
		Algorithm:     algorithm,
		Board:         board,
		Queue:         queue,
		IdleWait:      100 * time.Millisecond,
		MaxTrainCount: maxTrain,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if err := learner.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	if err := os.MkdirAll(savePath, os.ModePerm); err != nil {
		return err
	}
	blob, err := learner.Parameter().Backup()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path.Join(savePath, "parameter.json"), blob, 0644); err != nil {
		return err
	}
	fmt.Printf("learner stopped after %d train steps\n", learner.Trainer().TrainCount())
	return nil
}

func ServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Serve()
		},
	}
	cmd.PersistentFlags().StringVar(&relayAddr, "addr", "localhost:8090", "Address to serve the relay on")
	return cmd
}

// Serve runs the relay server until interrupted.
func Serve() error {
	server := runner.NewRelayServer(relayAddr, 0)
	server.Start()
	fmt.Printf("relay listening on %s\n", relayAddr)

	ctx, cancel := signalContext()
	defer cancel()
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Stop(shutdownCtx)
}
