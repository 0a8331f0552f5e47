package runner

import (
	"fmt"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/zeu5/rl-frame/util"
)

// History accumulates per-episode results of a run. One row per episode.
type History struct {
	Rewards     [][]float64
	TrainCounts []int
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(rewards []float64, trainCount int) {
	row := make([]float64, len(rewards))
	copy(row, rewards)
	h.Rewards = append(h.Rewards, row)
	h.TrainCounts = append(h.TrainCounts, trainCount)
}

func (h *History) Episodes() int { return len(h.Rewards) }

// PlayerRewards returns the episode reward series of one player seat.
func (h *History) PlayerRewards(player int) []float64 {
	series := make([]float64, 0, len(h.Rewards))
	for _, row := range h.Rewards {
		if player < len(row) {
			series = append(series, row[player])
		}
	}
	return series
}

// MeanReward averages a player's rewards over the last n episodes (all when
// n <= 0 or fewer episodes exist).
func (h *History) MeanReward(player, n int) float64 {
	series := h.PlayerRewards(player)
	if len(series) == 0 {
		return 0
	}
	if n <= 0 || n > len(series) {
		n = len(series)
	}
	sum := 0.0
	for _, r := range series[len(series)-n:] {
		sum += r
	}
	return sum / float64(n)
}

// WriteCSV writes one line per episode: episode, train count, one reward
// column per player.
func (h *History) WriteCSV(savePath string) error {
	lines := make([]string, 0, len(h.Rewards)+1)
	lines = append(lines, "episode,train_count,rewards")
	for i, row := range h.Rewards {
		cols := make([]string, 0, len(row)+2)
		cols = append(cols, fmt.Sprintf("%d", i), fmt.Sprintf("%d", h.TrainCounts[i]))
		for _, r := range row {
			cols = append(cols, fmt.Sprintf("%f", r))
		}
		lines = append(lines, strings.Join(cols, ","))
	}
	return util.WriteToFile(savePath, lines...)
}

// Plot saves a reward-per-episode line plot, one line per player seat.
func (h *History) Plot(plotPath string) error {
	if len(h.Rewards) == 0 {
		return fmt.Errorf("no episodes recorded")
	}
	p := plot.New()
	p.Title.Text = "Episode rewards"
	p.X.Label.Text = "Episode"
	p.Y.Label.Text = "Reward"
	for player := 0; player < len(h.Rewards[0]); player++ {
		series := h.PlayerRewards(player)
		points := make(plotter.XYs, len(series))
		for i, v := range series {
			points[i] = plotter.XY{
				X: float64(i),
				Y: v,
			}
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			continue
		}
		line.Color = plotutil.Color(player)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("player %d", player), line)
	}
	return p.Save(8*vg.Inch, 8*vg.Inch, plotPath)
}
