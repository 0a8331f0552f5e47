package runner

import (
	"context"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/zeu5/rl-frame/algos"
	"github.com/zeu5/rl-frame/envs"
	"github.com/zeu5/rl-frame/types"
)

func newTestRegistry(t *testing.T) *types.Registry {
	t.Helper()
	registry := types.NewRegistry()
	if err := envs.Register(registry); err != nil {
		t.Fatalf("register envs: %v", err)
	}
	if err := algos.Register(registry); err != nil {
		t.Fatalf("register algos: %v", err)
	}
	return registry
}

func TestRunnerTrainsGrid(t *testing.T) {
	history := NewHistory()
	r, err := New(Config{
		Registry:  newTestRegistry(t),
		Env:       types.EnvConfig{Name: "Grid", Kwargs: map[string]interface{}{"seed": 3, "move_prob": 1.0}},
		Algorithm: "QL",
		Episodes:  300,
		Training:  true,
		History:   history,
		Configure: func(c types.RLConfig) error {
			ql := c.(*algos.QLConfig)
			ql.Seed = 11
			ql.Epsilon = 0.1
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if history.Episodes() != 300 {
		t.Fatalf("expected 300 recorded episodes, got %d", history.Episodes())
	}
	if r.Trainer().TrainCount() == 0 {
		t.Errorf("trainer never ran")
	}
	if mean := history.MeanReward(0, 50); mean <= 0 {
		t.Errorf("expected positive mean reward late in training, got %f", mean)
	}
}

func TestRunnerEvalDoesNotTrain(t *testing.T) {
	r, err := New(Config{
		Registry:  newTestRegistry(t),
		Env:       types.EnvConfig{Name: "Grid", Kwargs: map[string]interface{}{"seed": 3}},
		Algorithm: "QL",
		Episodes:  2,
		Training:  false,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if r.Trainer() != nil {
		t.Fatalf("evaluation run should not build a trainer")
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Memory().Len() != 0 {
		t.Errorf("evaluation run should not collect experiences, got %d", r.Memory().Len())
	}
}

func TestRunnerPlaysOXAgainstCpu(t *testing.T) {
	history := NewHistory()
	r, err := New(Config{
		Registry:  newTestRegistry(t),
		Env:       types.EnvConfig{Name: "OX"},
		Algorithm: "QL",
		Episodes:  5,
		Training:  false,
		Opponents: []types.WorkerBase{envs.OXCpu()},
		History:   history,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	// the cpu opponent plays perfectly, an untrained policy cannot beat it
	for i, rewards := range history.Rewards {
		if rewards[0] > 0 {
			t.Errorf("episode %d: untrained player beat the cpu: %v", i, rewards)
		}
	}
}

func TestRunnerRecordsOpponentDealtLoss(t *testing.T) {
	// scripted line: center, block, then the 2-4-6 diagonal win
	moves := []int{4, 2, 6}
	next := 0
	opponent := types.NewRuleBaseWorker(func(e *types.EnvRun) (interface{}, error) {
		move := moves[next]
		next++
		return move, nil
	})

	r, err := New(Config{
		Registry:  newTestRegistry(t),
		Env:       types.EnvConfig{Name: "OX"},
		Algorithm: "QL",
		Episodes:  1,
		Training:  true,
		Opponents: []types.WorkerBase{opponent},
		Configure: func(c types.RLConfig) error {
			ql := c.(*algos.QLConfig)
			ql.Epsilon = 0 // greedy, first free cell every turn
			ql.Seed = 1
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	rewards, err := r.RunEpisode(context.Background())
	if err != nil {
		t.Fatalf("run episode: %v", err)
	}
	if rewards[0] != -1 || rewards[1] != 1 {
		t.Fatalf("expected the opponent to win, got %v", rewards)
	}

	// the losing seat's final transition must carry the loss even though
	// the opponent made the last move
	var terminal *algos.Transition
	for _, s := range r.Memory().(*algos.QLMemory).Samples() {
		if s.Done {
			s := s
			terminal = &s
		}
	}
	if terminal == nil {
		t.Fatalf("no terminal transition recorded")
	}
	if terminal.Reward != -1 {
		t.Errorf("terminal transition should carry the loss, got %+v", terminal)
	}
}

func TestRunnerRejectsMissingOpponents(t *testing.T) {
	_, err := New(Config{
		Registry:  newTestRegistry(t),
		Env:       types.EnvConfig{Name: "OX"},
		Algorithm: "QL",
		Episodes:  1,
	})
	if err == nil {
		t.Fatalf("expected an error for an unfilled player seat")
	}
	if !strings.Contains(err.Error(), "players") {
		t.Errorf("error should mention the seat count: %v", err)
	}
}

func TestRunnerRetriesInvalidActions(t *testing.T) {
	invalidAttempts := 0
	opponent := types.NewRuleBaseWorker(func(e *types.EnvRun) (interface{}, error) {
		// propose an occupied cell once per turn, then a legal one
		invalid := e.InvalidActions(1)
		if invalidAttempts == 0 && len(invalid) > 0 {
			invalidAttempts++
			return invalid[0], nil
		}
		taken := make(map[int]bool)
		for _, a := range invalid {
			taken[a] = true
		}
		for a := 0; a < 9; a++ {
			if !taken[a] {
				return a, nil
			}
		}
		return 0, nil
	})

	r, err := New(Config{
		Registry:  newTestRegistry(t),
		Env:       types.EnvConfig{Name: "OX"},
		Algorithm: "QL",
		Episodes:  1,
		Opponents: []types.WorkerBase{opponent},
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run should recover from an invalid action: %v", err)
	}
	if invalidAttempts != 1 {
		t.Errorf("expected one rejected proposal, got %d", invalidAttempts)
	}
}

func TestHistoryCSVAndPlot(t *testing.T) {
	history := NewHistory()
	history.Append([]float64{1, -1}, 3)
	history.Append([]float64{0.5, -0.5}, 7)

	dir := t.TempDir()
	csvPath := path.Join(dir, "history.csv")
	if err := history.WriteCSV(csvPath); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	bs, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.Contains(string(bs), "1,7,0.500000,-0.500000") {
		t.Errorf("csv content unexpected:\n%s", string(bs))
	}

	plotPath := path.Join(dir, "history.png")
	if err := history.Plot(plotPath); err != nil {
		t.Fatalf("plot: %v", err)
	}
	if _, err := os.Stat(plotPath); err != nil {
		t.Errorf("plot file missing: %v", err)
	}
}

func TestHistoryMeanReward(t *testing.T) {
	history := NewHistory()
	for _, r := range []float64{0, 0, 1, 1} {
		history.Append([]float64{r}, 0)
	}
	if got := history.MeanReward(0, 2); got != 1 {
		t.Errorf("mean of last 2 should be 1, got %f", got)
	}
	if got := history.MeanReward(0, 0); got != 0.5 {
		t.Errorf("mean of all should be 0.5, got %f", got)
	}
}
