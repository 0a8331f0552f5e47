package envs

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/zeu5/rl-frame/types"
)

const (
	gridBlobKind    = "env:Grid"
	gridBlobVersion = 1
)

// Grid actions, indexed as the discrete action space.
const (
	GridLeft = iota
	GridDown
	GridRight
	GridUp
)

// Grid is a 4x3 grid world with a goal, a hole and a wall. Movement is
// stochastic: the intended direction is taken with MoveProb, otherwise the
// agent slips to one of the two perpendicular directions. The random source
// is replayable so Backup/Restore reproduces the exact continuation.
type Grid struct {
	MoveProb float64
	maxSteps int

	x, y int

	seed  int64
	draws uint64
	rng   *rand.Rand
}

var _ types.EnvBase = &Grid{}

const (
	gridW = 4
	gridH = 3
)

func NewGrid(moveProb float64, maxSteps int, seed int64) *Grid {
	g := &Grid{MoveProb: moveProb, maxSteps: maxSteps}
	g.reseed(seed, 0)
	return g
}

// reseed rebuilds the random source and discards the given number of draws,
// replaying the stream to the recorded position.
func (g *Grid) reseed(seed int64, draws uint64) {
	g.seed = seed
	g.draws = 0
	g.rng = rand.New(rand.NewSource(seed))
	for i := uint64(0); i < draws; i++ {
		g.draw()
	}
}

func (g *Grid) draw() float64 {
	g.draws++
	return g.rng.Float64()
}

func (g *Grid) ActionSpace() types.Space {
	s, _ := types.NewDiscreteSpace(4)
	return s
}

func (g *Grid) ObservationSpace() types.Space {
	s, _ := types.NewArrayDiscreteSpace([]int{0, 0}, []int{gridW - 1, gridH - 1})
	return s
}

func (g *Grid) ObservationType() types.SpaceType { return types.SpaceTypeDiscrete }
func (g *Grid) MaxEpisodeSteps() int             { return g.maxSteps }
func (g *Grid) PlayerNum() int                   { return 1 }
func (g *Grid) PlayerIndex() int                 { return -1 }

func (g *Grid) Reset() (interface{}, error) {
	g.x, g.y = 0, gridH-1
	return g.Observation(), nil
}

func (g *Grid) Observation() interface{} {
	return []int{g.x, g.y}
}

func (g *Grid) GetInvalidActions(player int) []int { return nil }

func (g *Grid) Step(action interface{}, player int) (interface{}, []float64, bool, error) {
	a, ok := action.(int)
	if !ok || a < 0 || a > 3 {
		return nil, nil, false, fmt.Errorf("grid expects an action in [0, 4), got %v", action)
	}

	// slip perpendicular to the intended direction
	r := g.draw()
	if r >= g.MoveProb {
		if r < g.MoveProb+(1-g.MoveProb)/2 {
			a = (a + 1) % 4
		} else {
			a = (a + 3) % 4
		}
	}

	nx, ny := g.x, g.y
	switch a {
	case GridLeft:
		nx--
	case GridRight:
		nx++
	case GridUp:
		ny--
	case GridDown:
		ny++
	}
	if nx >= 0 && nx < gridW && ny >= 0 && ny < gridH && !gridWall(nx, ny) {
		g.x, g.y = nx, ny
	}

	reward := -0.04
	done := false
	switch {
	case g.x == gridW-1 && g.y == 0: // goal
		reward = 1
		done = true
	case g.x == gridW-1 && g.y == 1: // hole
		reward = -1
		done = true
	}
	return g.Observation(), []float64{reward}, done, nil
}

func gridWall(x, y int) bool {
	return x == 1 && y == 1
}

type gridSnapshot struct {
	Seed  int64  `json:"seed"`
	Draws uint64 `json:"draws"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

func (g *Grid) Backup() (types.Blob, error) {
	return types.NewBlob(gridBlobKind, gridBlobVersion, gridSnapshot{
		Seed:  g.seed,
		Draws: g.draws,
		X:     g.x,
		Y:     g.y,
	})
}

func (g *Grid) Restore(b types.Blob) error {
	var snap gridSnapshot
	if err := b.Open(gridBlobKind, gridBlobVersion, &snap); err != nil {
		return err
	}
	g.reseed(snap.Seed, snap.Draws)
	g.x, g.y = snap.X, snap.Y
	return nil
}

func (g *Grid) RenderTerminal(w io.Writer) {
	for y := 0; y < gridH; y++ {
		for x := 0; x < gridW; x++ {
			switch {
			case x == g.x && y == g.y:
				fmt.Fprint(w, "A")
			case x == gridW-1 && y == 0:
				fmt.Fprint(w, "G")
			case x == gridW-1 && y == 1:
				fmt.Fprint(w, "X")
			case gridWall(x, y):
				fmt.Fprint(w, "#")
			default:
				fmt.Fprint(w, ".")
			}
		}
		fmt.Fprintln(w)
	}
}

func (g *Grid) RenderRGBArray() [][][3]uint8 {
	out := make([][][3]uint8, gridH)
	for y := 0; y < gridH; y++ {
		out[y] = make([][3]uint8, gridW)
		for x := 0; x < gridW; x++ {
			switch {
			case x == g.x && y == g.y:
				out[y][x] = [3]uint8{255, 0, 0}
			case x == gridW-1 && y == 0:
				out[y][x] = [3]uint8{0, 255, 0}
			case x == gridW-1 && y == 1:
				out[y][x] = [3]uint8{0, 0, 255}
			case gridWall(x, y):
				out[y][x] = [3]uint8{64, 64, 64}
			default:
				out[y][x] = [3]uint8{255, 255, 255}
			}
		}
	}
	return out
}
