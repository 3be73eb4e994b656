/*
File: ensemble.go
Version: 1.0.0
Description: Combines the bundle's classifiers into one verdict. Each model's output is
             aligned to the canonical label order, then the aligned vectors are averaged.
*/

package main

import (
	"fmt"
)

const phishingLabel = "phishing"

// Ensemble is read-only and safe for concurrent use.
type Ensemble struct {
	bundle   *ModelBundle
	phishIdx int
}

func NewEnsemble(b *ModelBundle) *Ensemble {
	idx, ok := b.LabelIndex(phishingLabel)
	if !ok {
		idx = -1
		if len(b.Labels) == 2 {
			idx = 1
		}
	}
	return &Ensemble{bundle: b, phishIdx: idx}
}

// Score returns the winning label, the phishing probability and two reason strings.
func (e *Ensemble) Score(fv FeatureVector) (string, float64, []string, error) {
	ordered, err := fv.Ordered(e.bundle.FeatureNames)
	if err != nil {
		return "", 0, nil, err
	}
	x, err := e.bundle.Scaler.Transform(ordered)
	if err != nil {
		return "", 0, nil, fmt.Errorf("scale features: %w", err)
	}

	n := len(e.bundle.Labels)
	mean := make([]float64, n)
	for _, m := range e.bundle.Models {
		probs, err := m.PredictProba(x)
		if err != nil {
			return "", 0, nil, fmt.Errorf("model %s: %w", m.Name, err)
		}
		aligned, err := e.align(m.Classes(), probs)
		if err != nil {
			return "", 0, nil, fmt.Errorf("model %s: %w", m.Name, err)
		}
		for i, p := range aligned {
			mean[i] += p
		}
	}
	for i := range mean {
		mean[i] /= float64(len(e.bundle.Models))
	}

	// Ties resolve to the lowest index.
	winner := 0
	for i := 1; i < n; i++ {
		if mean[i] > mean[winner] {
			winner = i
		}
	}

	prob := mean[winner]
	if e.phishIdx >= 0 {
		prob = mean[e.phishIdx]
	}
	reasons := []string{
		fmt.Sprintf("Ensemble phishing probability = %.2f", prob),
		fmt.Sprintf("Combined ML risk score = %.1f", prob*100),
	}
	return e.bundle.Labels[winner], prob, reasons, nil
}

// align maps a model's output into canonical order. Classes the bundle does not know are
// dropped together with their probability mass.
func (e *Ensemble) align(classes []string, probs []float64) ([]float64, error) {
	n := len(e.bundle.Labels)
	if classes == nil {
		if len(probs) != n {
			return nil, fmt.Errorf("%d probabilities for %d labels", len(probs), n)
		}
		return probs, nil
	}
	if len(probs) != len(classes) {
		return nil, fmt.Errorf("%d probabilities for %d classes", len(probs), len(classes))
	}
	out := make([]float64, n)
	for i, c := range classes {
		if idx, ok := e.bundle.LabelIndex(c); ok {
			out[idx] = probs[i]
		}
	}
	return out, nil
}
