package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedModel returns the same probabilities for every input.
type fixedModel struct {
	classes []string
	probs   []float64
	err     error
	calls   int
}

func (m *fixedModel) Classes() []string { return m.classes }

func (m *fixedModel) PredictProba([]float64) ([]float64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]float64(nil), m.probs...), nil
}

func newTestEnsemble(t *testing.T, labels []string, models ...Classifier) *Ensemble {
	t.Helper()
	named := make([]NamedModel, len(models))
	for i, m := range models {
		named[i] = NamedModel{Name: "m" + string(rune('a'+i)), Classifier: m}
	}
	b, err := NewModelBundle(labels, nil, identityScaler(len(FeatureNames)), named...)
	require.NoError(t, err)
	return NewEnsemble(b)
}

func zeroFeatures() FeatureVector {
	return make(FeatureVector, len(FeatureNames))
}

func TestEnsembleAveragesAlignedModels(t *testing.T) {
	e := newTestEnsemble(t, []string{"benign", "phishing"},
		&fixedModel{probs: []float64{0.2, 0.8}},
		&fixedModel{classes: []string{"phishing", "benign"}, probs: []float64{0.6, 0.4}},
	)

	label, prob, reasons, err := e.Score(zeroFeatures())
	require.NoError(t, err)
	assert.Equal(t, "phishing", label)
	assert.InDelta(t, 0.7, prob, 1e-12)
	assert.Equal(t, []string{
		"Ensemble phishing probability = 0.70",
		"Combined ML risk score = 70.0",
	}, reasons)
}

func TestEnsembleDropsUnknownClassMass(t *testing.T) {
	first := &fixedModel{classes: []string{"benign", "phishing"}, probs: []float64{0.3, 0.7}}
	second := &fixedModel{classes: []string{"phish", "benign"}, probs: []float64{0.9, 0.1}}
	e := newTestEnsemble(t, []string{"benign", "phishing"}, first, second)

	label, prob, _, err := e.Score(zeroFeatures())
	require.NoError(t, err)

	// second contributes [0.1, 0]; the 0.9 on "phish" is lost, not redistributed.
	assert.InDelta(t, 0.35, prob, 1e-12)
	assert.Equal(t, "phishing", label)

	aligned, err := e.align(second.classes, second.probs)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0}, aligned)
	assert.InDelta(t, 0.1, sum(aligned), 1e-12)
}

func TestEnsembleAlignedMeanSumsToOne(t *testing.T) {
	labels := []string{"benign", "phishing", "malware"}
	models := []*fixedModel{
		{probs: []float64{0.5, 0.3, 0.2}},
		{classes: []string{"malware", "benign", "phishing"}, probs: []float64{0.1, 0.6, 0.3}},
		{classes: []string{"phishing", "malware", "benign"}, probs: []float64{0.25, 0.25, 0.5}},
	}
	e := newTestEnsemble(t, labels, models[0], models[1], models[2])

	mean := make([]float64, len(labels))
	for _, m := range models {
		a, err := e.align(m.Classes(), m.probs)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, sum(a), 1e-9)
		for i := range a {
			mean[i] += a[i] / float64(len(models))
		}
	}
	assert.InDelta(t, 1.0, sum(mean), 1e-9)

	label, prob, _, err := e.Score(zeroFeatures())
	require.NoError(t, err)
	assert.Equal(t, "benign", label)
	assert.InDelta(t, mean[1], prob, 1e-12)
}

func TestEnsembleTieGoesToLowestIndex(t *testing.T) {
	e := newTestEnsemble(t, []string{"benign", "phishing"}, &fixedModel{probs: []float64{0.5, 0.5}})
	label, prob, _, err := e.Score(zeroFeatures())
	require.NoError(t, err)
	assert.Equal(t, "benign", label)
	assert.InDelta(t, 0.5, prob, 1e-12)
}

func TestEnsemblePhishingIndexFallback(t *testing.T) {
	// Two classes without "phishing": index 1 is used.
	e := newTestEnsemble(t, []string{"good", "bad"}, &fixedModel{probs: []float64{0.9, 0.1}})
	label, prob, _, err := e.Score(zeroFeatures())
	require.NoError(t, err)
	assert.Equal(t, "good", label)
	assert.InDelta(t, 0.1, prob, 1e-12)

	// Three classes without "phishing": the winner's own probability is used.
	e = newTestEnsemble(t, []string{"a", "b", "c"}, &fixedModel{probs: []float64{0.2, 0.5, 0.3}})
	label, prob, _, err = e.Score(zeroFeatures())
	require.NoError(t, err)
	assert.Equal(t, "b", label)
	assert.InDelta(t, 0.5, prob, 1e-12)
}

func TestEnsembleErrors(t *testing.T) {
	boom := errors.New("boom")
	e := newTestEnsemble(t, []string{"benign", "phishing"}, &fixedModel{err: boom})
	_, _, _, err := e.Score(zeroFeatures())
	assert.ErrorIs(t, err, boom)

	e = newTestEnsemble(t, []string{"benign", "phishing"},
		&fixedModel{classes: []string{"benign", "phishing"}, probs: []float64{1}})
	_, _, _, err = e.Score(zeroFeatures())
	assert.Error(t, err, "length differs from class list")

	e = newTestEnsemble(t, []string{"benign", "phishing"}, &fixedModel{probs: []float64{0.1, 0.2, 0.7}})
	_, _, _, err = e.Score(zeroFeatures())
	assert.Error(t, err, "length differs from canonical labels")

	e = newTestEnsemble(t, []string{"benign", "phishing"}, &fixedModel{probs: []float64{0.5, 0.5}})
	_, _, _, err = e.Score(FeatureVector{1, 2})
	assert.ErrorIs(t, err, ErrFeatureMismatch)
}

func TestEnsembleWithBundledModels(t *testing.T) {
	b, err := ParseBundle(marshalBundle(t, testBundleJSON(FeatureNames)))
	require.NoError(t, err)
	e := NewEnsemble(b)
	fx := newDefaultExtractor()

	_, short, _, err := e.Score(fx.Extract("http://a.io"))
	require.NoError(t, err)
	_, long, _, err := e.Score(fx.Extract("http://example.com/" + strings.Repeat("a", 73)))
	require.NoError(t, err)

	assert.Greater(t, long, short, "long URLs score higher with this bundle")
	assert.GreaterOrEqual(t, short, 0.0)
	assert.LessOrEqual(t, long, 1.0)
}
