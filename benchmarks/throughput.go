package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/grid"
	"github.com/zeu5/rl-env-utils/mdp"
	"github.com/zeu5/rl-env-utils/rollout"
	"github.com/zeu5/rl-env-utils/util"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Throughput measures the time spent deriving the next root state from
// stepped batches, comparing the precomputed stepper against the generic
// key-walking transition.
func Throughput(episodes, horizon int, saveFile string, height, width, grids, agents int, seed uint64, ctx context.Context) error {
	os.MkdirAll(saveFile, 0755)

	modes := []struct {
		name    string
		generic bool
	}{
		{"Precomputed", false},
		{"Generic", true},
	}

	names := make([]string, 0, len(modes))
	results := make(map[string][]float64, len(modes))
	for _, mode := range modes {
		e, err := grid.NewGridEnvironment(grid.Config{
			Height: height,
			Width:  width,
			Grids:  grids,
			Agents: agentNames(agents),
			Seed:   seed,
		})
		if err != nil {
			return err
		}
		samples, err := measureTransitions(ctx, e, seed, episodes, horizon, mode.generic)
		if err != nil {
			return fmt.Errorf("throughput: %s: %w", mode.name, err)
		}
		names = append(names, mode.name)
		results[mode.name] = samples
		fmt.Printf("%s: mean %.2f us/step, stddev %.2f\n", mode.name, stat.Mean(samples, nil), stat.StdDev(samples, nil))
	}

	if err := recordThroughput(saveFile, results); err != nil {
		return err
	}
	return plotThroughput(saveFile, names, results)
}

// measureTransitions runs episodes of random walks and times only the
// transition calls. It returns the average microseconds per step of each
// episode.
func measureTransitions(ctx context.Context, e rollout.Environment, seed uint64, episodes, horizon int, generic bool) ([]float64, error) {
	policy := rollout.NewRandomPolicy(e.ActionSpec(), seed)
	stepper := mdp.NewStepper(e, mdp.DefaultConfig())
	cfg := mdp.ConfigFor(e, mdp.DefaultConfig())

	perEpisode := make([]float64, 0, episodes)
	for episode := 0; episode < episodes; episode++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		b, err := e.Reset()
		if err != nil {
			return nil, err
		}
		var elapsed time.Duration
		for step := 0; step < horizon; step++ {
			if err := policy.NextAction(step, b); err != nil {
				return nil, err
			}
			if b, err = e.Step(b); err != nil {
				return nil, err
			}
			var out batch.Container
			start := time.Now()
			if generic {
				out, err = mdp.Step(b, nil, cfg)
			} else {
				out, err = stepper.Step(b)
			}
			elapsed += time.Since(start)
			if err != nil {
				return nil, err
			}
			b = out
		}
		perEpisode = append(perEpisode, float64(elapsed.Microseconds())/float64(horizon))
	}
	return perEpisode, nil
}

func recordThroughput(saveFile string, results map[string][]float64) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return util.WriteToFile(path.Join(saveFile, "throughput.json"), string(data))
}

func plotThroughput(saveFile string, names []string, results map[string][]float64) error {
	p := plot.New()

	p.Title.Text = "Transition throughput"
	p.X.Label.Text = "Episode"
	p.Y.Label.Text = "us per step"

	for i, name := range names {
		samples := results[name]
		points := make(plotter.XYs, len(samples))
		for j, v := range samples {
			points[j] = plotter.XY{
				X: float64(j),
				Y: v,
			}
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(name, line)
	}

	return p.Save(8*vg.Inch, 8*vg.Inch, path.Join(saveFile, "throughput.png"))
}

func ThroughputCommand() *cobra.Command {
	var height int
	var width int
	var grids int
	var agents int

	cmd := &cobra.Command{
		Use: "throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopProfiling := startProfiling()
			defer stopProfiling()
			return Throughput(episodes, horizon, saveFile, height, width, grids, agents, seed, context.Background())
		},
	}
	cmd.PersistentFlags().IntVar(&height, "height", 20, "Height of each grid")
	cmd.PersistentFlags().IntVar(&width, "width", 20, "Width of each grid")
	cmd.PersistentFlags().IntVar(&grids, "grids", 3, "Number of grids")
	cmd.PersistentFlags().IntVar(&agents, "agents", 2, "Number of agents")
	return cmd
}
