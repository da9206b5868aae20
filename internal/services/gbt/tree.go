package gbt

import "math"

// node is one tree vertex. Leaves have Feature -1. Value is the scaled
// weight the node would predict as a leaf; internal values feed attribution.
type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
	Cover     float64 `json:"c"`
	Gain      float64 `json:"g,omitempty"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

// leafFor follows x to a leaf. NaN goes left.
func (t *tree) leafFor(x []float64) int {
	i := 0
	for t.Nodes[i].Feature >= 0 {
		n := t.Nodes[i]
		v := x[n.Feature]
		if math.IsNaN(v) || v < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

func (t *tree) predict(x []float64) float64 { return t.Nodes[t.leafFor(x)].Value }

// grower builds one regression tree on gradients with unit hessians.
type grower struct {
	cfg  Config
	data *binned
	grad []float64
	hess []float64
	cols []int
	tree *tree
}

type split struct {
	feature int
	bin     int
	gain    float64
}

func (g *grower) grow(rows []int) *tree {
	g.tree = &tree{}
	g.build(rows, 0)
	return g.tree
}

func (g *grower) weight(G, H float64) float64 {
	return -G / (H + g.cfg.Lambda) * g.cfg.LearningRate
}

func (g *grower) score(G, H float64) float64 { return G * G / (H + g.cfg.Lambda) }

func (g *grower) build(rows []int, depth int) int {
	var G, H float64
	for _, r := range rows {
		G += g.grad[r]
		H += g.hess[r]
	}
	idx := len(g.tree.Nodes)
	g.tree.Nodes = append(g.tree.Nodes, node{Feature: -1, Value: g.weight(G, H), Cover: H})
	if depth >= g.cfg.MaxDepth || len(rows) < 2 {
		return idx
	}

	best := split{feature: -1}
	for _, f := range g.cols {
		if s, ok := g.bestSplit(f, rows, G, H); ok && s.gain > best.gain {
			best = s
		}
	}
	if best.feature < 0 {
		return idx
	}

	bins := g.data.bins[best.feature]
	var left, right []int
	for _, r := range rows {
		if int(bins[r]) <= best.bin {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	l := g.build(left, depth+1)
	r := g.build(right, depth+1)
	n := &g.tree.Nodes[idx]
	n.Feature = best.feature
	n.Threshold = g.data.cuts[best.feature][best.bin]
	n.Left, n.Right = l, r
	n.Gain = best.gain
	return idx
}

// bestSplit scans the histogram of feature f. Missing values (bin -1) always go left.
func (g *grower) bestSplit(f int, rows []int, G, H float64) (split, bool) {
	cuts := g.data.cuts[f]
	if len(cuts) == 0 {
		return split{}, false
	}
	hg := make([]float64, len(cuts)+1)
	hh := make([]float64, len(cuts)+1)
	var nanG, nanH float64
	bins := g.data.bins[f]
	for _, r := range rows {
		b := bins[r]
		if b < 0 {
			nanG += g.grad[r]
			nanH += g.hess[r]
			continue
		}
		hg[b] += g.grad[r]
		hh[b] += g.hess[r]
	}

	parent := g.score(G, H)
	best := split{feature: -1}
	GL, HL := nanG, nanH
	for k := 0; k < len(cuts); k++ {
		GL += hg[k]
		HL += hh[k]
		GR, HR := G-GL, H-HL
		if HL < g.cfg.MinChildWeight || HR < g.cfg.MinChildWeight {
			continue
		}
		gain := 0.5*(g.score(GL, HL)+g.score(GR, HR)-parent) - g.cfg.Gamma
		if gain > best.gain {
			best = split{feature: f, bin: k, gain: gain}
		}
	}
	return best, best.feature >= 0
}
