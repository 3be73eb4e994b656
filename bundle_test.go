package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityScaler(width int) *StandardScaler {
	s := &StandardScaler{Mean: make([]float64, width), Scale: make([]float64, width)}
	for i := range s.Scale {
		s.Scale[i] = 1
	}
	return s
}

// testBundleJSON returns a bundle with one model of each type over the given features.
func testBundleJSON(features []string) map[string]any {
	width := len(features)
	coef := make([]float64, width)
	coef[0] = 0.01

	weights := make([][]float64, width)
	for i := range weights {
		weights[i] = []float64{0}
	}

	return map[string]any{
		"version":             1,
		"feature_set_version": FeatureSetVersion,
		"feature_names":       features,
		"labels":              []string{"benign", "phishing"},
		"scaler":              identityScaler(width),
		"models": []any{
			map[string]any{
				"name": "rf", "type": "forest", "classes": []string{"benign", "phishing"},
				"trees": []any{map[string]any{
					"children_left":  []int{1, -1, -1},
					"children_right": []int{2, -1, -1},
					"feature":        []int{0, -2, -2},
					"threshold":      []float64{50, -2, -2},
					"value":          [][]float64{{10, 10}, {9, 1}, {1, 9}},
				}},
			},
			map[string]any{
				"name": "gb", "type": "boosted", "init": []float64{0}, "learning_rate": 0.5,
				"stages": []any{[]any{map[string]any{
					"children_left":  []int{1, -1, -1},
					"children_right": []int{2, -1, -1},
					"feature":        []int{0, -2, -2},
					"threshold":      []float64{50, -2, -2},
					"value":          [][]float64{{0}, {-2}, {2}},
				}}},
			},
			map[string]any{
				"name": "dnn", "type": "mlp", "activation": "tanh",
				"layers": []any{
					map[string]any{"weights": weights, "biases": []float64{0}},
				},
			},
			map[string]any{
				"name": "lr", "type": "linear", "classes": []string{"benign", "phishing"},
				"coef": [][]float64{coef}, "intercept": []float64{-0.5},
			},
		},
	}
}

func marshalBundle(t *testing.T, b map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(b)
	require.NoError(t, err)
	return data
}

func TestParseBundle(t *testing.T) {
	b, err := ParseBundle(marshalBundle(t, testBundleJSON(FeatureNames)))
	require.NoError(t, err)

	assert.Equal(t, []string{"benign", "phishing"}, b.Labels)
	assert.Equal(t, FeatureNames, b.FeatureNames)
	require.Len(t, b.Models, 4)
	assert.Equal(t, "rf", b.Models[0].Name)
	assert.IsType(t, &ForestModel{}, b.Models[0].Classifier)
	assert.IsType(t, &BoostedModel{}, b.Models[1].Classifier)
	assert.IsType(t, &MLPModel{}, b.Models[2].Classifier)
	assert.IsType(t, &LinearModel{}, b.Models[3].Classifier)
	assert.Nil(t, b.Models[1].Classes(), "boosted model follows canonical order")

	idx, ok := b.LabelIndex("phishing")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestParseBundleFeatureSubset(t *testing.T) {
	features := []string{"url_length", "count_at", "has_ip"}
	b, err := ParseBundle(marshalBundle(t, testBundleJSON(features)))
	require.NoError(t, err)
	assert.Equal(t, features, b.FeatureNames)
}

func TestParseBundleDefaultFeatureNames(t *testing.T) {
	raw := testBundleJSON(FeatureNames)
	delete(raw, "feature_names")
	b, err := ParseBundle(marshalBundle(t, raw))
	require.NoError(t, err)
	assert.Equal(t, FeatureNames, b.FeatureNames)
}

func TestParseBundleRejects(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(b map[string]any)
		mismatch bool
	}{
		{"format version", func(b map[string]any) { b["version"] = 2 }, false},
		{"feature set version", func(b map[string]any) { b["feature_set_version"] = FeatureSetVersion + 1 }, true},
		{"unknown feature", func(b map[string]any) {
			names := append([]string(nil), FeatureNames...)
			names[3] = "entropy"
			b["feature_names"] = names
		}, true},
		{"duplicate feature", func(b map[string]any) {
			names := append([]string(nil), FeatureNames...)
			names[1] = names[0]
			b["feature_names"] = names
		}, true},
		{"scaler width", func(b map[string]any) { b["scaler"] = identityScaler(3) }, true},
		{"no scaler", func(b map[string]any) { delete(b, "scaler") }, false},
		{"no models", func(b map[string]any) { b["models"] = []any{} }, false},
		{"no labels", func(b map[string]any) { b["labels"] = []string{} }, false},
		{"duplicate labels", func(b map[string]any) { b["labels"] = []string{"benign", "benign"} }, false},
		{"unknown model type", func(b map[string]any) {
			b["models"] = []any{map[string]any{"name": "svm", "type": "svm"}}
		}, false},
		{"duplicate model classes", func(b map[string]any) {
			m := b["models"].([]any)[3].(map[string]any)
			m["classes"] = []string{"benign", "benign"}
		}, false},
		{"bad model shape", func(b map[string]any) {
			m := b["models"].([]any)[3].(map[string]any)
			m["coef"] = [][]float64{{1, 2}}
		}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := testBundleJSON(FeatureNames)
			c.mutate(raw)
			_, err := ParseBundle(marshalBundle(t, raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBundleInvalid)
			if c.mismatch {
				assert.ErrorIs(t, err, ErrFeatureMismatch)
			}
		})
	}
}

func TestParseBundleInvalidJSON(t *testing.T) {
	_, err := ParseBundle([]byte("{not json"))
	assert.ErrorIs(t, err, ErrBundleInvalid)
}

func TestLoadBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, os.WriteFile(path, marshalBundle(t, testBundleJSON(FeatureNames)), 0o644))

	b, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Len(t, b.Models, 4)

	_, err = LoadBundle(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrBundleInvalid)
}
