package grid

import (
	"encoding/json"
	"fmt"
	"path"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/zeu5/rl-env-utils/batch"
	"github.com/zeu5/rl-env-utils/mdp"
	"github.com/zeu5/rl-env-utils/rollout"
	"github.com/zeu5/rl-env-utils/util"
)

// GridDataSet counts per-cell visits, plottable as a heatmap.
type GridDataSet struct {
	Visits map[int]map[int]int
	Height int
	Width  int
}

var _ plotter.GridXYZ = &GridDataSet{}

func newGridDataSet() *GridDataSet {
	return &GridDataSet{
		Visits: make(map[int]map[int]int),
	}
}

func (g *GridDataSet) add(i, j int) {
	if _, ok := g.Visits[i]; !ok {
		g.Visits[i] = make(map[int]int)
	}
	g.Visits[i][j]++
	if i+1 > g.Height {
		g.Height = i + 1
	}
	if j+1 > g.Width {
		g.Width = j + 1
	}
}

func (g *GridDataSet) Dims() (int, int) {
	return g.Width, g.Height
}

func (g *GridDataSet) Z(j, i int) float64 {
	return float64(g.Visits[i][j])
}

func (g *GridDataSet) X(j int) float64 {
	return float64(j)
}

func (g *GridDataSet) Y(i int) float64 {
	return float64(i)
}

func (g *GridDataSet) Min() float64 {
	return 0.0
}

func (g *GridDataSet) Max() float64 {
	max := 0
	for _, vals := range g.Visits {
		for _, count := range vals {
			if count > max {
				max = count
			}
		}
	}
	return float64(max)
}

// VisitAnalyzer accumulates the cells visited by the agents of the
// named groups across the traces of a run.
type VisitAnalyzer struct {
	groups []string
	data   *GridDataSet
}

var _ rollout.Analyzer = &VisitAnalyzer{}

func NewVisitAnalyzer(groups ...string) *VisitAnalyzer {
	return &VisitAnalyzer{
		groups: groups,
		data:   newGridDataSet(),
	}
}

func (v *VisitAnalyzer) Analyze(_ int, _ int, _ string, trace *rollout.Trace) {
	for step := 0; step < trace.Len(); step++ {
		b, _ := trace.Get(step)
		next, err := b.Get(batch.K(mdp.NextKey))
		if err != nil || next.IsLeaf() {
			continue
		}
		for _, group := range v.groups {
			leaf, err := next.Container().GetLeaf(batch.K(group, "obs"))
			if err != nil {
				continue
			}
			vals := leaf.Float64s()
			// observations come in (i, j, k) triplets per agent
			for a := 0; a+2 < len(vals); a += 3 {
				v.data.add(int(vals[a]), int(vals[a+1]))
			}
		}
	}
}

func (v *VisitAnalyzer) DataSet() rollout.DataSet {
	return v.data
}

func (v *VisitAnalyzer) Reset() {
	v.data = newGridDataSet()
}

// MergeGridDataSets folds the visit counts of several datasets into
// one.
func MergeGridDataSets(datasets []rollout.DataSet) *GridDataSet {
	merged := newGridDataSet()
	for _, d := range datasets {
		grid, ok := d.(*GridDataSet)
		if !ok {
			continue
		}
		for i, vals := range grid.Visits {
			for j, visits := range vals {
				if _, ok := merged.Visits[i]; !ok {
					merged.Visits[i] = make(map[int]int)
				}
				merged.Visits[i][j] += visits
			}
		}
		if grid.Height > merged.Height {
			merged.Height = grid.Height
		}
		if grid.Width > merged.Width {
			merged.Width = grid.Width
		}
	}
	return merged
}

// HeatMapComparator writes a JSON dump and a heatmap image of every
// experiment's visit counts under plotPath.
func HeatMapComparator(plotPath string) rollout.Comparator {
	return func(run int, names []string, datasets []rollout.DataSet) {
		for i, name := range names {
			dataSet, ok := datasets[i].(*GridDataSet)
			if !ok {
				continue
			}
			bs, err := json.Marshal(dataSet)
			if err != nil {
				continue
			}
			base := fmt.Sprintf("%s_run%d", name, run)
			util.WriteToFile(path.Join(plotPath, base+".json"), string(bs))

			p := plot.New()
			p.Title.Text = name
			p.X.Label.Text = "Column"
			p.Y.Label.Text = "Row"
			p.Add(plotter.NewHeatMap(dataSet, palette.Heat(20, 1)))
			p.Save(4*vg.Inch, 4*vg.Inch, path.Join(plotPath, base+".png"))
		}
	}
}
