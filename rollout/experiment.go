package rollout

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/zeu5/rl-env-utils/util"
)

// Generic Dataset that contains information after processing the traces
type DataSet interface{}

// Analyzer compresses the information in the traces to a DataSet
type Analyzer interface {
	// Run, episode, experiment, trace
	Analyze(int, int, string, *Trace)
	// Resulting dataset
	DataSet() DataSet
	// Reset the analyzer
	Reset()
}

// Comparator differentiates between datasets with associated names
type Comparator func(run int, names []string, datasets []DataSet)

func NoopComparator() Comparator {
	return func(int, []string, []DataSet) {}
}

// Experiment pairs a policy with an environment under a name.
type Experiment struct {
	Name        string
	policy      Policy
	environment Environment
}

func NewExperiment(name string, policy Policy, environment Environment) *Experiment {
	return &Experiment{
		Name:        name,
		policy:      policy,
		environment: environment,
	}
}

type experimentRunConfig struct {
	CurrentRun     int
	Episodes       int
	Horizon        int
	Analyzers      []Analyzer
	RecordTraces   bool
	ReportSavePath string
	BreakOnDone    bool
	Generic        bool
}

func (e *Experiment) recordTrace(rConfig *experimentRunConfig, trace *Trace) error {
	tracesFile := path.Join(rConfig.ReportSavePath, "traces", e.Name+"_"+strconv.Itoa(rConfig.CurrentRun)+".jsonl")
	bs, err := json.Marshal(trace)
	if err != nil {
		return err
	}
	return util.AppendToFile(tracesFile, string(bs))
}

// Run plays the configured episodes, feeding every trace to the
// analyzers and optionally recording it as a JSON line.
func (e *Experiment) Run(rConfig *experimentRunConfig) error {
	agent := NewAgent(&AgentConfig{
		Episodes:    rConfig.Episodes,
		Horizon:     rConfig.Horizon,
		Policy:      e.policy,
		Environment: e.environment,
		BreakOnDone: rConfig.BreakOnDone,
		Generic:     rConfig.Generic,
	})

	for episode := 0; episode < rConfig.Episodes; episode++ {
		trace, err := agent.RunEpisode(episode)
		if err != nil {
			return fmt.Errorf("experiment %s: episode %d: %w", e.Name, episode, err)
		}
		if rConfig.RecordTraces {
			if err := e.recordTrace(rConfig, trace); err != nil {
				return fmt.Errorf("experiment %s: record trace: %w", e.Name, err)
			}
		}
		for _, a := range rConfig.Analyzers {
			a.Analyze(rConfig.CurrentRun, episode, e.Name, trace)
		}
		fmt.Printf("\rExp:%s, Eps:%d/%d", e.Name, episode+1, rConfig.Episodes)
	}
	fmt.Println("")
	return nil
}

// Reset cleans the policy state between runs.
func (e *Experiment) Reset() {
	e.policy.Reset()
}

// ComparisonConfig contains the configuration for the comparison
type ComparisonConfig struct {
	Runs     int // number of runs
	Episodes int // number of episodes
	Horizon  int // number of steps

	RecordPath   string // path to store the results
	RecordTraces bool
	BreakOnDone  bool
	Generic      bool
}

// Comparison contains the different experiments to compare
// The traces obtained from the experiments are analyzed
// The analyzed datasets are then compared
type Comparison struct {
	Experiments []*Experiment
	analyzers   map[string]Analyzer
	comparators map[string]Comparator
	cConfig     *ComparisonConfig
}

// NewComparison creates a comparison instance
func NewComparison(config *ComparisonConfig) *Comparison {
	os.MkdirAll(config.RecordPath, 0755)
	if config.RecordTraces {
		os.MkdirAll(path.Join(config.RecordPath, "traces"), 0755)
	}
	return &Comparison{
		Experiments: make([]*Experiment, 0),
		analyzers:   make(map[string]Analyzer),
		comparators: make(map[string]Comparator),
		cConfig:     config,
	}
}

// AddAnalysis adds an analyzer and comparator to the comparison
func (c *Comparison) AddAnalysis(name string, analyzer Analyzer, comparator Comparator) {
	c.analyzers[name] = analyzer
	c.comparators[name] = comparator
}

// Add experiments to compare
func (c *Comparison) AddExperiment(e *Experiment) {
	c.Experiments = append(c.Experiments, e)
}

// record the configuration of the comparison
func (c *Comparison) recordConfig() error {
	out := map[string]interface{}{
		"runs":          c.cConfig.Runs,
		"episodes":      c.cConfig.Episodes,
		"horizon":       c.cConfig.Horizon,
		"record_traces": c.cConfig.RecordTraces,
		"break_on_done": c.cConfig.BreakOnDone,
		"generic":       c.cConfig.Generic,
	}
	experiments := make([]string, 0, len(c.Experiments))
	for _, e := range c.Experiments {
		experiments = append(experiments, e.Name)
	}
	out["experiments"] = experiments
	analyzers := make([]string, 0, len(c.analyzers))
	for name := range c.analyzers {
		analyzers = append(analyzers, name)
	}
	out["analyzers"] = analyzers

	bs, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return util.WriteToFile(path.Join(c.cConfig.RecordPath, "comparison_config.json"), string(bs))
}

// Run the comparison
func (c *Comparison) Run(ctx context.Context) error {
	if err := c.recordConfig(); err != nil {
		return err
	}

	for run := 0; run < c.cConfig.Runs; run++ {
		fmt.Printf("Run %d\n", run+1)
		datasets := make(map[string][]DataSet)
		for name := range c.analyzers {
			datasets[name] = make([]DataSet, len(c.Experiments))
		}

		names := make([]string, len(c.Experiments))
		for i, e := range c.Experiments {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := e.Run(c.prepareRunConfig(run)); err != nil {
				return err
			}
			for name, a := range c.analyzers {
				datasets[name][i] = a.DataSet()
				a.Reset()
			}
			names[i] = e.Name
			e.Reset()
		}
		for name, comp := range c.comparators {
			comp(run, names, datasets[name])
		}
	}
	return nil
}

func (c *Comparison) prepareRunConfig(run int) *experimentRunConfig {
	rCfg := &experimentRunConfig{
		CurrentRun:     run,
		Episodes:       c.cConfig.Episodes,
		Horizon:        c.cConfig.Horizon,
		Analyzers:      make([]Analyzer, 0, len(c.analyzers)),
		RecordTraces:   c.cConfig.RecordTraces,
		ReportSavePath: c.cConfig.RecordPath,
		BreakOnDone:    c.cConfig.BreakOnDone,
		Generic:        c.cConfig.Generic,
	}
	for _, a := range c.analyzers {
		rCfg.Analyzers = append(rCfg.Analyzers, a)
	}
	return rCfg
}
