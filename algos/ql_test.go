package algos

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/zeu5/rl-frame/envs"
	"github.com/zeu5/rl-frame/types"
)

func setupQL(t *testing.T) (*QLConfig, *QLParameter, *QLMemory) {
	t.Helper()
	config := NewQLConfig()
	config.Seed = 1
	if err := config.SetupFromEnv(envs.NewGrid(1.0, 50, 1)); err != nil {
		t.Fatalf("setup from env: %v", err)
	}
	return config, NewQLParameter(config), NewQLMemory(config)
}

func TestQLTrainerInsufficientData(t *testing.T) {
	config, parameter, memory := setupQL(t)
	trainer := NewQLTrainer(config, parameter, memory)

	if err := trainer.Train(); !errors.Is(err, types.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if trainer.TrainCount() != 0 {
		t.Errorf("failed train must not count")
	}

	memory.Add(&Transition{ID: "a-1", State: "s", Action: 0, Reward: 1, NextState: "s2", Done: true})
	if err := trainer.Train(); err != nil {
		t.Fatalf("train: %v", err)
	}
	if trainer.TrainCount() != 1 {
		t.Errorf("expected train count 1, got %d", trainer.TrainCount())
	}
}

func TestQLTrainerMovesTowardReward(t *testing.T) {
	config, parameter, memory := setupQL(t)
	trainer := NewQLTrainer(config, parameter, memory)

	memory.Add(&Transition{ID: "a-1", State: "s", Action: 2, Reward: 1, NextState: "t", Done: true})
	for i := 0; i < 100; i++ {
		if err := trainer.Train(); err != nil {
			t.Fatalf("train %d: %v", i, err)
		}
	}
	if q := parameter.Values("s")[2]; q < 0.9 {
		t.Errorf("q value should approach the reward, got %f", q)
	}
}

func TestQLParameterBackupRestore(t *testing.T) {
	config, parameter, memory := setupQL(t)
	trainer := NewQLTrainer(config, parameter, memory)
	memory.Add(&Transition{ID: "a-1", State: "s", Action: 1, Reward: 1, NextState: "t", Done: true})
	for i := 0; i < 10; i++ {
		trainer.Train()
	}

	blob, err := parameter.Backup()
	if err != nil {
		t.Fatalf("backup: %v", err)
	}

	restored := NewQLParameter(config)
	if err := restored.Restore(blob); err != nil {
		t.Fatalf("restore: %v", err)
	}
	want := parameter.Values("s")
	got := restored.Values("s")
	for a := range want {
		if want[a] != got[a] {
			t.Errorf("restored q[%d] = %f, want %f", a, got[a], want[a])
		}
	}

	// restore(backup()) is idempotent on the original as well
	if err := parameter.Restore(blob); err != nil {
		t.Fatalf("self restore: %v", err)
	}
	for a := range want {
		if parameter.Values("s")[a] != got[a] {
			t.Errorf("self restore changed behavior")
		}
	}
}

func TestQLMemoryDropsDuplicateDeliveries(t *testing.T) {
	_, _, memory := setupQL(t)

	sample := Transition{ID: "x-1", State: "s", Action: 0, Reward: 1, NextState: "t", Done: true}
	bs, _ := json.Marshal(sample)

	memory.Add(json.RawMessage(bs))
	memory.Add(json.RawMessage(bs)) // duplicate delivery
	memory.Add(sample)              // and once more, decoded

	if memory.Len() != 1 {
		t.Fatalf("expected 1 stored sample, got %d", memory.Len())
	}
}

func TestQLMemoryBackupRestoreKeepsDedup(t *testing.T) {
	_, _, memory := setupQL(t)
	memory.Add(&Transition{ID: "x-1", State: "s", Action: 0, Reward: 1, NextState: "t", Done: true})
	memory.Add(&Transition{ID: "x-2", State: "s", Action: 1, Reward: 0, NextState: "t", Done: false})

	blob, err := memory.Backup()
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	config := NewQLConfig()
	restored := NewQLMemory(config)
	if err := restored.Restore(blob); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Len() != 2 {
		t.Fatalf("expected 2 samples after restore, got %d", restored.Len())
	}
	restored.Add(&Transition{ID: "x-1", State: "s", Action: 0, Reward: 1, NextState: "t", Done: true})
	if restored.Len() != 2 {
		t.Errorf("restored memory lost its dedup set")
	}
}

func TestQLMemoryCapacityEviction(t *testing.T) {
	config := NewQLConfig()
	config.Capacity = 2
	memory := NewQLMemory(config)

	memory.Add(&Transition{ID: "1"})
	memory.Add(&Transition{ID: "2"})
	memory.Add(&Transition{ID: "3"})
	if memory.Len() != 2 {
		t.Fatalf("expected capacity 2, got %d", memory.Len())
	}
	// the evicted sample may be stored again
	memory.Add(&Transition{ID: "1"})
	if memory.Len() != 2 {
		t.Errorf("expected capacity 2 after re-add, got %d", memory.Len())
	}
}

func TestQLWorkerClosesTransitionOnNextTurn(t *testing.T) {
	config, parameter, memory := setupQL(t)
	worker := NewQLWorker(config, parameter, memory, true)

	if err := worker.CallOnReset([]int{0}, 0, nil); err != nil {
		t.Fatalf("on reset: %v", err)
	}
	action, err := worker.CallPolicy([]int{0}, nil, nil)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if err := worker.CallOnStep([]int{1}, []float64{-0.04}, false, nil); err != nil {
		t.Fatalf("on step: %v", err)
	}
	// the transition stays open until the successor state is observed at
	// the next turn
	if memory.Len() != 0 {
		t.Fatalf("transition closed too early, memory has %d samples", memory.Len())
	}
	if _, err := worker.CallPolicy([]int{1}, nil, nil); err != nil {
		t.Fatalf("policy: %v", err)
	}
	samples := memory.Samples()
	if len(samples) != 1 {
		t.Fatalf("expected 1 closed transition, got %d", len(samples))
	}
	got := samples[0]
	if got.State != "[0]" || got.NextState != "[1]" || got.Action != action.(int) {
		t.Errorf("transition endpoints wrong: %+v", got)
	}
	if got.Reward != -0.04 || got.Done {
		t.Errorf("transition reward/done wrong: %+v", got)
	}
}

func TestQLWorkerRecordsOpponentTerminalReward(t *testing.T) {
	config, parameter, memory := setupQL(t)
	worker := NewQLWorker(config, parameter, memory, true)

	if err := worker.CallOnReset([]int{0}, 0, nil); err != nil {
		t.Fatalf("on reset: %v", err)
	}
	action, err := worker.CallPolicy([]int{0}, nil, nil)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	// own move does not end the episode
	if err := worker.CallOnStep([]int{1}, []float64{0, 0}, false, nil); err != nil {
		t.Fatalf("on step: %v", err)
	}
	// another player's move does, dealing this seat a loss
	if err := worker.CallOnStep([]int{2}, []float64{-1, 1}, true, nil); err != nil {
		t.Fatalf("terminal on step: %v", err)
	}

	samples := memory.Samples()
	if len(samples) != 1 {
		t.Fatalf("expected 1 closed transition, got %d", len(samples))
	}
	got := samples[0]
	if got.Action != action.(int) || got.Reward != -1 || !got.Done {
		t.Errorf("terminal loss not recorded: %+v", got)
	}
	if got.NextState != "[2]" {
		t.Errorf("terminal transition should end at the final state: %+v", got)
	}
}

func TestQLMemoryLogsDroppedSamples(t *testing.T) {
	_, _, memory := setupQL(t)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	memory.Add(json.RawMessage(`not json`))
	memory.Add(42)

	if memory.Len() != 0 {
		t.Fatalf("bad samples must be dropped, got %d stored", memory.Len())
	}
	if got := buf.String(); !strings.Contains(got, "dropping") {
		t.Errorf("dropped samples should be logged, got %q", got)
	}
}

func TestQLWorkerMasksInvalidActions(t *testing.T) {
	config, parameter, memory := setupQL(t)
	worker := NewQLWorker(config, parameter, memory, true)

	if err := worker.CallOnReset([]int{0}, 0, nil); err != nil {
		t.Fatalf("on reset: %v", err)
	}
	invalid := []int{0, 1, 3}
	for i := 0; i < 50; i++ {
		action, err := worker.CallPolicy([]int{0}, invalid, nil)
		if err != nil {
			t.Fatalf("policy: %v", err)
		}
		if action.(int) != 2 {
			t.Fatalf("only action 2 is valid, got %v", action)
		}
	}
}

func TestQLLearnsGrid(t *testing.T) {
	registry := types.NewRegistry()
	if err := envs.Register(registry); err != nil {
		t.Fatalf("register envs: %v", err)
	}
	if err := Register(registry); err != nil {
		t.Fatalf("register algos: %v", err)
	}

	run, err := registry.MakeEnv(types.EnvConfig{Name: "Grid", Kwargs: map[string]interface{}{"seed": 7, "move_prob": 1.0}})
	if err != nil {
		t.Fatalf("make env: %v", err)
	}
	builder, err := registry.Algorithm("QL")
	if err != nil {
		t.Fatalf("algorithm: %v", err)
	}
	config := builder.Config().(*QLConfig)
	config.Seed = 5
	config.Epsilon = 0.5
	if err := config.SetupFromEnv(run.Env()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	parameter, _ := builder.Parameter(config)
	memory, _ := builder.RemoteMemory(config)
	trainer, _ := builder.Trainer(config, parameter, memory)
	worker, err := builder.Worker(config, parameter, memory, run.Env(), true)
	if err != nil {
		t.Fatalf("worker: %v", err)
	}

	for episode := 0; episode < 300; episode++ {
		if _, err := run.Reset(); err != nil {
			t.Fatalf("reset: %v", err)
		}
		wr := types.NewWorkerRun(worker, run, 0)
		if err := wr.OnReset(); err != nil {
			t.Fatalf("worker reset: %v", err)
		}
		for !run.Done() {
			action, err := wr.Policy()
			if err != nil {
				t.Fatalf("policy: %v", err)
			}
			if err := run.Step(action, 0); err != nil {
				t.Fatalf("step: %v", err)
			}
			if err := wr.OnStep(); err != nil {
				t.Fatalf("on step: %v", err)
			}
			if err := trainer.Train(); err != nil && !errors.Is(err, types.ErrInsufficientData) {
				t.Fatalf("train: %v", err)
			}
		}
	}

	// greedy policy from the start state should have learned something
	start := parameter.(*QLParameter).Values("[0 2]")
	best := start[0]
	for _, v := range start[1:] {
		if v > best {
			best = v
		}
	}
	if best <= 0 {
		t.Errorf("expected a positive value at the start state, got %v", start)
	}
}
