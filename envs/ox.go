package envs

import (
	"fmt"
	"io"

	"github.com/zeu5/rl-frame/types"
)

const (
	oxBlobKind    = "env:OX"
	oxBlobVersion = 1
)

// OX is tic-tac-toe: a two-player turn-based environment with per-turn
// invalid actions (occupied cells). Player 0 plays O, player 1 plays X.
type OX struct {
	board  [9]int // 0 empty, 1 = O, 2 = X
	player int
}

var _ types.EnvBase = &OX{}

func NewOX() *OX {
	return &OX{}
}

func (o *OX) ActionSpace() types.Space {
	s, _ := types.NewDiscreteSpace(9)
	return s
}

func (o *OX) ObservationSpace() types.Space {
	low := make([]int, 9)
	high := []int{2, 2, 2, 2, 2, 2, 2, 2, 2}
	s, _ := types.NewArrayDiscreteSpace(low, high)
	return s
}

func (o *OX) ObservationType() types.SpaceType { return types.SpaceTypeDiscrete }
func (o *OX) MaxEpisodeSteps() int             { return 10 }
func (o *OX) PlayerNum() int                   { return 2 }

// PlayerIndex declares the environment's own turn order.
func (o *OX) PlayerIndex() int { return o.player }

func (o *OX) Reset() (interface{}, error) {
	o.board = [9]int{}
	o.player = 0
	return o.Observation(), nil
}

func (o *OX) Observation() interface{} {
	out := make([]int, 9)
	copy(out, o.board[:])
	return out
}

func (o *OX) GetInvalidActions(player int) []int {
	invalid := make([]int, 0)
	for i, c := range o.board {
		if c != 0 {
			invalid = append(invalid, i)
		}
	}
	return invalid
}

func (o *OX) Step(action interface{}, player int) (interface{}, []float64, bool, error) {
	a, ok := action.(int)
	if !ok || a < 0 || a > 8 {
		return nil, nil, false, fmt.Errorf("ox expects an action in [0, 9), got %v", action)
	}
	if player != o.player {
		return nil, nil, false, fmt.Errorf("player %d stepped out of turn, expected %d", player, o.player)
	}
	if o.board[a] != 0 {
		return nil, nil, false, &types.InvalidActionError{Action: action, Player: player}
	}

	o.board[a] = player + 1

	rewards := []float64{0, 0}
	done := false
	if winner := o.winner(); winner != 0 {
		done = true
		rewards[winner-1] = 1
		rewards[2-winner] = -1
	} else if o.full() {
		done = true
	}
	o.player = 1 - o.player
	return o.Observation(), rewards, done, nil
}

var oxLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

func (o *OX) winner() int {
	for _, l := range oxLines {
		if o.board[l[0]] != 0 && o.board[l[0]] == o.board[l[1]] && o.board[l[1]] == o.board[l[2]] {
			return o.board[l[0]]
		}
	}
	return 0
}

func (o *OX) full() bool {
	for _, c := range o.board {
		if c == 0 {
			return false
		}
	}
	return true
}

type oxSnapshot struct {
	Board  []int `json:"board"`
	Player int   `json:"player"`
}

func (o *OX) Backup() (types.Blob, error) {
	return types.NewBlob(oxBlobKind, oxBlobVersion, oxSnapshot{
		Board:  append([]int{}, o.board[:]...),
		Player: o.player,
	})
}

func (o *OX) Restore(b types.Blob) error {
	var snap oxSnapshot
	if err := b.Open(oxBlobKind, oxBlobVersion, &snap); err != nil {
		return err
	}
	if len(snap.Board) != 9 {
		return fmt.Errorf("ox snapshot has %d cells", len(snap.Board))
	}
	copy(o.board[:], snap.Board)
	o.player = snap.Player
	return nil
}

func (o *OX) RenderTerminal(w io.Writer) {
	marks := []string{".", "O", "X"}
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			fmt.Fprint(w, marks[o.board[y*3+x]])
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "next player: %s\n", marks[o.player+1])
}

func (o *OX) RenderRGBArray() [][][3]uint8 { return nil }

// OXCpu is a rule-based opponent playing perfect tic-tac-toe via negamax.
// It implements the same capability set as any learned worker, without an
// RLConfig or parameter.
func OXCpu() *types.RuleBaseWorker {
	return types.NewRuleBaseWorker(func(env *types.EnvRun) (interface{}, error) {
		ox, ok := env.Env().(*OX)
		if !ok {
			return nil, fmt.Errorf("ox cpu can only play OX")
		}
		board := ox.board
		action, _ := negamax(&board, ox.player)
		if action < 0 {
			return nil, fmt.Errorf("no move available")
		}
		return action, nil
	})
}

// negamax returns the best cell for the player to move and its score.
func negamax(board *[9]int, player int) (int, float64) {
	bestAction := -1
	bestScore := -2.0
	for a := 0; a < 9; a++ {
		if board[a] != 0 {
			continue
		}
		board[a] = player + 1
		score := oxScore(board, player)
		board[a] = 0
		if score > bestScore {
			bestScore = score
			bestAction = a
		}
	}
	return bestAction, bestScore
}

// oxScore evaluates the board after the player moved.
func oxScore(board *[9]int, player int) float64 {
	winner := 0
	for _, l := range oxLines {
		if board[l[0]] != 0 && board[l[0]] == board[l[1]] && board[l[1]] == board[l[2]] {
			winner = board[l[0]]
		}
	}
	if winner == player+1 {
		return 1
	}
	if winner != 0 {
		return -1
	}
	full := true
	for _, c := range board {
		if c == 0 {
			full = false
			break
		}
	}
	if full {
		return 0
	}
	_, opponentScore := negamax(board, 1-player)
	return -opponentScore
}
