package benchmarks

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zeu5/rl-env-utils/grid"
	"github.com/zeu5/rl-env-utils/rollout"
)

// agentNames numbers the agents of a benchmark environment a0, a1, ...
func agentNames(agents int) []string {
	names := make([]string, agents)
	for i := range names {
		names[i] = fmt.Sprintf("a%d", i)
	}
	return names
}

func GridExploration(episodes, horizon int, saveFile string, height, width, grids, agents int, seed uint64, recordTraces bool, runs int, ctx context.Context) error {
	doors := make([]grid.Door, 0, grids)
	for k := 0; k < grids-1; k++ {
		doors = append(doors, grid.Door{
			From: grid.Position{I: height - 5, J: width - 5, K: k},
			To:   grid.Position{I: 0, J: 0, K: k + 1},
		})
	}

	withDoors, err := grid.NewGridEnvironment(grid.Config{
		Height: height,
		Width:  width,
		Grids:  grids,
		Agents: agentNames(agents),
		Doors:  doors,
		Seed:   seed,
	})
	if err != nil {
		return err
	}
	withoutDoors, err := grid.NewGridEnvironment(grid.Config{
		Height: height,
		Width:  width,
		Grids:  grids,
		Agents: agentNames(agents),
		Seed:   seed,
	})
	if err != nil {
		return err
	}

	c := rollout.NewComparison(&rollout.ComparisonConfig{
		Runs:       runs,
		Episodes:   episodes,
		Horizon:    horizon,
		RecordPath: saveFile,
		// record flags
		RecordTraces: recordTraces,
		BreakOnDone:  true,
	})
	c.AddAnalysis("Coverage", grid.NewVisitAnalyzer(withDoors.Groups().Groups()...), grid.HeatMapComparator(saveFile))

	c.AddExperiment(rollout.NewExperiment(
		"Random",
		rollout.NewRandomPolicy(withoutDoors.ActionSpec(), seed),
		withoutDoors,
	))
	c.AddExperiment(rollout.NewExperiment(
		"Random-Doors",
		rollout.NewRandomPolicy(withDoors.ActionSpec(), seed),
		withDoors,
	))

	return c.Run(ctx)
}

func GridExplorationCommand() *cobra.Command {
	var height int
	var width int
	var grids int
	var agents int
	var recordTraces bool

	cmd := &cobra.Command{
		Use: "grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopProfiling := startProfiling()
			defer stopProfiling()
			return GridExploration(episodes, horizon, saveFile, height, width, grids, agents, seed, recordTraces, runs, context.Background())
		},
	}
	cmd.PersistentFlags().IntVar(&height, "height", 20, "Height of each grid")
	cmd.PersistentFlags().IntVar(&width, "width", 20, "Width of each grid")
	cmd.PersistentFlags().IntVar(&grids, "grids", 3, "Number of grids")
	cmd.PersistentFlags().IntVar(&agents, "agents", 2, "Number of agents")
	cmd.PersistentFlags().BoolVar(&recordTraces, "record-traces", false, "Record the episode traces as JSON lines")
	return cmd
}
