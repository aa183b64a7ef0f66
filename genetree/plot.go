package main

import (
	"errors"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"bitbucket.org/Davydov/genetree/tree"
)

// supportBins is the number of histogram bins, 10% each.
const supportBins = 10

// supportValues returns support values of all the supported nodes.
func supportValues(t *tree.Tree) plotter.Values {
	var v plotter.Values
	for _, node := range t.Nodes() {
		if node == nil || node.Support < 0 {
			continue
		}
		v = append(v, float64(node.Support))
	}
	return v
}

// supportPlot saves a histogram of support values, the format is
// deduced from the file extension.
func supportPlot(t *tree.Tree, fn string) error {
	v := supportValues(t)
	if len(v) == 0 {
		return errors.New("no supported nodes")
	}
	p := plot.New()
	p.Title.Text = "Bootstrap support"
	p.X.Label.Text = "support, %"
	p.Y.Label.Text = "nodes"
	p.X.Min = 0
	p.X.Max = 100

	h, err := plotter.NewHist(v, supportBins)
	if err != nil {
		return err
	}
	p.Add(h)
	return p.Save(6*vg.Inch, 4*vg.Inch, fn)
}
