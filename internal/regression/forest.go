package regression

import (
	"fmt"
	"math/rand"
	"sort"
)

// ForestConfig parameterizes a random forest
type ForestConfig struct {
	Trees           int   `yaml:"trees" json:"trees" default:"100" validate:"min=1"`
	MaxDepth        int   `yaml:"max_depth" json:"max_depth"` // 0 = unlimited
	MinSamplesSplit int   `yaml:"min_samples_split" json:"min_samples_split" default:"2" validate:"min=2"`
	MinSamplesLeaf  int   `yaml:"min_samples_leaf" json:"min_samples_leaf" default:"1" validate:"min=1"`
	Seed            int64 `yaml:"seed" json:"seed" default:"42"`
}

// Node is one node of a regression tree. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a flattened CART regression tree rooted at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest is a bagged ensemble of regression trees. Every split considers
// all features; trees differ through their bootstrap samples.
type Forest struct {
	Config   ForestConfig `json:"config"`
	Features int          `json:"features"`
	Trees    []Tree       `json:"trees"`
}

// NewForest returns an unfitted forest, filling zero config values
func NewForest(cfg ForestConfig) *Forest {
	if cfg.Trees < 1 {
		cfg.Trees = 100
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = 1
	}
	return &Forest{Config: cfg}
}

func (f *Forest) Kind() string { return KindForest }

// Fit grows Config.Trees trees on bootstrap samples of the rows
func (f *Forest) Fit(X [][]float64, y []float64) error {
	width, err := checkShape(X, y)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(f.Config.Seed))
	f.Features = width
	f.Trees = make([]Tree, f.Config.Trees)
	for t := range f.Trees {
		sample := make([]int, len(X))
		for i := range sample {
			sample[i] = rng.Intn(len(X))
		}
		b := &treeBuilder{X: X, y: y, cfg: f.Config, width: width}
		b.grow(sample, 0)
		f.Trees[t] = Tree{Nodes: b.nodes}
	}
	return nil
}

// Predict averages the trees' outputs for every row
func (f *Forest) Predict(X [][]float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != f.Features {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), f.Features)
		}
		var sum float64
		for t := range f.Trees {
			sum += f.Trees[t].predict(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

type treeBuilder struct {
	X     [][]float64
	y     []float64
	cfg   ForestConfig
	width int
	nodes []Node
}

// grow appends the subtree for rows and returns its node index
func (b *treeBuilder) grow(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: b.mean(rows)})

	if len(rows) < b.cfg.MinSamplesSplit || (b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth) {
		return idx
	}
	feature, threshold, ok := b.bestSplit(rows)
	if !ok {
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if b.X[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: b.nodes[idx].Value}
	return idx
}

func (b *treeBuilder) mean(rows []int) float64 {
	var sum float64
	for _, r := range rows {
		sum += b.y[r]
	}
	return sum / float64(len(rows))
}

// bestSplit finds the feature and threshold with the largest reduction in
// squared error, honouring MinSamplesLeaf.
func (b *treeBuilder) bestSplit(rows []int) (int, float64, bool) {
	n := len(rows)
	var total, totalSq float64
	for _, r := range rows {
		total += b.y[r]
		totalSq += b.y[r] * b.y[r]
	}
	parentSSE := totalSq - total*total/float64(n)
	if parentSSE <= 1e-12 {
		return 0, 0, false
	}

	bestGain := 1e-12
	bestFeature, bestThreshold := -1, 0.0
	sorted := make([]int, n)
	minLeaf := b.cfg.MinSamplesLeaf

	for f := 0; f < b.width; f++ {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool { return b.X[sorted[i]][f] < b.X[sorted[j]][f] })

		var leftSum, leftSq float64
		for i := 0; i < n-1; i++ {
			v := b.y[sorted[i]]
			leftSum += v
			leftSq += v * v

			cur, next := b.X[sorted[i]][f], b.X[sorted[i+1]][f]
			if cur == next {
				continue
			}
			nl, nr := float64(i+1), float64(n-i-1)
			if i+1 < minLeaf || n-i-1 < minLeaf {
				continue
			}
			rightSum, rightSq := total-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}
