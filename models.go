/*
File: models.go
Version: 1.0.0
Description: Inference-only classifiers read from the exported model bundle: standard scaler,
             linear (logistic regression), random forest, gradient boosting and multilayer
             perceptron. Each model reports its own class order.
*/

package main

import (
	"errors"
	"fmt"
	"math"
)

// Classifier maps a scaled feature vector to class probabilities. A nil Classes result means
// the outputs already follow the bundle's canonical label order.
type Classifier interface {
	Classes() []string
	PredictProba(x []float64) ([]float64, error)
}

// StandardScaler applies (x - mean) / scale per feature. A zero scale is treated as 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) validate(width int) error {
	if len(s.Mean) != width || len(s.Scale) != width {
		return fmt.Errorf("scaler width %d/%d, want %d", len(s.Mean), len(s.Scale), width)
	}
	return nil
}

func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("%w: scaler expects %d values, got %d", ErrFeatureMismatch, len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}

// --- Linear ---

// LinearModel is a logistic regression. One coefficient row means binary (sigmoid),
// several rows mean one-vs-rest multinomial (softmax).
type LinearModel struct {
	ClassList []string    `json:"classes"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
}

func (m *LinearModel) Classes() []string { return m.ClassList }

func (m *LinearModel) validate(width, classes int) error {
	if len(m.Coef) == 0 || len(m.Coef) != len(m.Intercept) {
		return fmt.Errorf("coef rows %d, intercepts %d", len(m.Coef), len(m.Intercept))
	}
	for i, row := range m.Coef {
		if len(row) != width {
			return fmt.Errorf("coef row %d has %d weights, want %d", i, len(row), width)
		}
	}
	outputs := len(m.Coef)
	if outputs == 1 {
		outputs = 2
	}
	if outputs != classes {
		return fmt.Errorf("%d outputs for %d classes", outputs, classes)
	}
	return nil
}

func (m *LinearModel) PredictProba(x []float64) ([]float64, error) {
	if len(m.Coef) == 0 || len(x) != len(m.Coef[0]) {
		return nil, fmt.Errorf("%w: linear model input width %d", ErrFeatureMismatch, len(x))
	}
	z := make([]float64, len(m.Coef))
	for k, row := range m.Coef {
		z[k] = dot(row, x) + m.Intercept[k]
	}
	if len(z) == 1 {
		p := sigmoid(z[0])
		return []float64{1 - p, p}, nil
	}
	return softmax(z), nil
}

// --- Trees ---

// DecisionTree uses the flat array layout: node i splits on Feature[i] at Threshold[i]
// (x <= threshold goes left); ChildrenLeft[i] == -1 marks a leaf whose Value row is
// either per-class counts (classification) or a single output (regression).
type DecisionTree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

const treeLeaf = -1

func (t *DecisionTree) validate(width, outputs int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return errors.New("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("tree arrays disagree on node count %d", n)
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == treeLeaf {
			if len(t.Value[i]) != outputs {
				return fmt.Errorf("leaf %d has %d values, want %d", i, len(t.Value[i]), outputs)
			}
			continue
		}
		// Children always come after their parent, which also rules out cycles.
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d has invalid children %d/%d", i, l, r)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= width {
			return fmt.Errorf("node %d splits on feature %d of %d", i, t.Feature[i], width)
		}
	}
	return nil
}

func (t *DecisionTree) leaf(x []float64) []float64 {
	node := 0
	for t.ChildrenLeft[node] != treeLeaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// ForestModel averages the normalized leaf distributions of its trees.
type ForestModel struct {
	ClassList []string       `json:"classes"`
	Features  int            `json:"n_features"`
	Trees     []DecisionTree `json:"trees"`
}

func (m *ForestModel) Classes() []string { return m.ClassList }

func (m *ForestModel) validate(width, classes int) error {
	if len(m.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	if m.Features == 0 {
		m.Features = width
	}
	if m.Features != width {
		return fmt.Errorf("forest expects %d features, bundle has %d", m.Features, width)
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(width, classes); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func (m *ForestModel) PredictProba(x []float64) ([]float64, error) {
	if len(x) != m.Features {
		return nil, fmt.Errorf("%w: forest input width %d", ErrFeatureMismatch, len(x))
	}
	var out []float64
	for i := range m.Trees {
		dist := m.Trees[i].leaf(x)
		if out == nil {
			out = make([]float64, len(dist))
		}
		var total float64
		for _, v := range dist {
			total += v
		}
		if total <= 0 {
			return nil, fmt.Errorf("tree %d reached an empty leaf", i)
		}
		for k, v := range dist {
			out[k] += v / total
		}
	}
	for k := range out {
		out[k] /= float64(len(m.Trees))
	}
	return out, nil
}

// BoostedModel is a gradient boosting classifier. Stages hold one regression tree for binary
// problems or one tree per class otherwise; the raw score is Init plus the learning-rate
// weighted sum of tree outputs.
type BoostedModel struct {
	ClassList    []string         `json:"classes"`
	Features     int              `json:"n_features"`
	Init         []float64        `json:"init"`
	LearningRate float64          `json:"learning_rate"`
	Stages       [][]DecisionTree `json:"stages"`
}

func (m *BoostedModel) Classes() []string { return m.ClassList }

func (m *BoostedModel) validate(width, classes int) error {
	if len(m.Stages) == 0 {
		return errors.New("boosted model has no stages")
	}
	if m.LearningRate <= 0 {
		return fmt.Errorf("learning rate %v", m.LearningRate)
	}
	if m.Features == 0 {
		m.Features = width
	}
	if m.Features != width {
		return fmt.Errorf("boosted model expects %d features, bundle has %d", m.Features, width)
	}
	trees := classes
	if classes == 2 {
		trees = 1
	}
	if len(m.Init) != trees {
		return fmt.Errorf("init has %d values, want %d", len(m.Init), trees)
	}
	for s, stage := range m.Stages {
		if len(stage) != trees {
			return fmt.Errorf("stage %d has %d trees, want %d", s, len(stage), trees)
		}
		for k := range stage {
			if err := stage[k].validate(width, 1); err != nil {
				return fmt.Errorf("stage %d tree %d: %w", s, k, err)
			}
		}
	}
	return nil
}

func (m *BoostedModel) PredictProba(x []float64) ([]float64, error) {
	if len(x) != m.Features {
		return nil, fmt.Errorf("%w: boosted model input width %d", ErrFeatureMismatch, len(x))
	}
	raw := append([]float64(nil), m.Init...)
	for _, stage := range m.Stages {
		if len(stage) != len(raw) {
			return nil, fmt.Errorf("boosted stage width %d, want %d", len(stage), len(raw))
		}
		for k := range stage {
			raw[k] += m.LearningRate * stage[k].leaf(x)[0]
		}
	}
	if len(raw) == 1 {
		p := sigmoid(raw[0])
		return []float64{1 - p, p}, nil
	}
	return softmax(raw), nil
}

// --- MLP ---

// MLPLayer is a dense layer; Weights is [inputs][outputs].
type MLPLayer struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// MLPModel applies Activation on hidden layers. A single output unit is read as the
// probability of the second class; wider outputs go through softmax.
type MLPModel struct {
	ClassList  []string   `json:"classes"`
	Activation string     `json:"activation"`
	Layers     []MLPLayer `json:"layers"`
}

func (m *MLPModel) Classes() []string { return m.ClassList }

func (m *MLPModel) validate(width, classes int) error {
	if len(m.Layers) == 0 {
		return errors.New("mlp has no layers")
	}
	switch m.Activation {
	case "":
		m.Activation = "relu"
	case "relu", "tanh", "logistic", "identity":
	default:
		return fmt.Errorf("unknown activation %q", m.Activation)
	}
	in := width
	for i, layer := range m.Layers {
		if len(layer.Weights) != in {
			return fmt.Errorf("layer %d has %d inputs, want %d", i, len(layer.Weights), in)
		}
		out := len(layer.Biases)
		if out == 0 {
			return fmt.Errorf("layer %d has no units", i)
		}
		for _, row := range layer.Weights {
			if len(row) != out {
				return fmt.Errorf("layer %d weight row width %d, want %d", i, len(row), out)
			}
		}
		in = out
	}
	outputs := in
	if outputs == 1 {
		outputs = 2
	}
	if outputs != classes {
		return fmt.Errorf("%d outputs for %d classes", outputs, classes)
	}
	return nil
}

func (m *MLPModel) PredictProba(x []float64) ([]float64, error) {
	if len(m.Layers) == 0 || len(x) != len(m.Layers[0].Weights) {
		return nil, fmt.Errorf("%w: mlp input width %d", ErrFeatureMismatch, len(x))
	}
	act := x
	for i, layer := range m.Layers {
		next := append([]float64(nil), layer.Biases...)
		for j, v := range act {
			for k, w := range layer.Weights[j] {
				next[k] += v * w
			}
		}
		if i < len(m.Layers)-1 {
			for k := range next {
				next[k] = activate(m.Activation, next[k])
			}
		}
		act = next
	}
	if len(act) == 1 {
		p := sigmoid(act[0])
		return []float64{1 - p, p}, nil
	}
	return softmax(act), nil
}

// --- Math ---

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func softmax(z []float64) []float64 {
	peak := math.Inf(-1)
	for _, v := range z {
		peak = math.Max(peak, v)
	}
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func activate(name string, v float64) float64 {
	switch name {
	case "tanh":
		return math.Tanh(v)
	case "logistic":
		return sigmoid(v)
	case "identity":
		return v
	default:
		return math.Max(0, v)
	}
}
