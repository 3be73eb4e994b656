/*
File: bundle.go
Version: 1.0.0
Description: Loads and validates the exported model bundle (scaler, classifiers, label
             decoder). A bundle that fails validation never reaches the engine.
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const BundleFormatVersion = 1

var (
	ErrBundleInvalid   = errors.New("invalid model bundle")
	ErrFeatureMismatch = errors.New("feature mismatch")
)

// NamedModel is one ensemble member.
type NamedModel struct {
	Name string
	Type string
	Classifier
}

// shapeValidator is implemented by the bundled model types so their array shapes can be
// checked against the feature width and class count at load time.
type shapeValidator interface {
	validate(width, classes int) error
}

// ModelBundle is immutable after NewModelBundle/LoadBundle returns.
type ModelBundle struct {
	Labels       []string
	FeatureNames []string
	Scaler       *StandardScaler
	Models       []NamedModel

	labelIndex map[string]int
}

type bundleFile struct {
	Version           int               `json:"version"`
	FeatureSetVersion int               `json:"feature_set_version"`
	FeatureNames      []string          `json:"feature_names"`
	Labels            []string          `json:"labels"`
	Scaler            *StandardScaler   `json:"scaler"`
	Models            []json.RawMessage `json:"models"`
}

type modelHeader struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func LoadBundle(path string) (*ModelBundle, error) {
	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBundleInvalid, err)
	}
	b, err := ParseBundle(data)
	if err != nil {
		return nil, err
	}
	LogInfo("[MODEL] Loaded bundle %s: %d models, labels %v, %d features (Time: %v)",
		path, len(b.Models), b.Labels, len(b.FeatureNames), time.Since(start))
	return b, nil
}

func ParseBundle(data []byte) (*ModelBundle, error) {
	var f bundleFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBundleInvalid, err)
	}
	if f.Version != BundleFormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrBundleInvalid, f.Version, BundleFormatVersion)
	}
	if f.FeatureSetVersion != FeatureSetVersion {
		return nil, fmt.Errorf("%w: %w: feature set version %d, extractor has %d",
			ErrBundleInvalid, ErrFeatureMismatch, f.FeatureSetVersion, FeatureSetVersion)
	}
	if f.Scaler == nil {
		return nil, fmt.Errorf("%w: missing scaler", ErrBundleInvalid)
	}

	models := make([]NamedModel, 0, len(f.Models))
	for i, raw := range f.Models {
		m, err := decodeModel(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: model %d: %w", ErrBundleInvalid, i, err)
		}
		models = append(models, m)
	}
	return NewModelBundle(f.Labels, f.FeatureNames, f.Scaler, models...)
}

func decodeModel(raw json.RawMessage) (NamedModel, error) {
	var h modelHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return NamedModel{}, err
	}
	var c Classifier
	switch h.Type {
	case "linear", "logistic":
		c = &LinearModel{}
	case "forest", "random_forest":
		c = &ForestModel{}
	case "boosted", "gradient_boosting":
		c = &BoostedModel{}
	case "mlp":
		c = &MLPModel{}
	default:
		return NamedModel{}, fmt.Errorf("unknown model type %q", h.Type)
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return NamedModel{}, fmt.Errorf("decode %s: %w", h.Type, err)
	}
	if h.Name == "" {
		h.Name = h.Type
	}
	return NamedModel{Name: h.Name, Type: h.Type, Classifier: c}, nil
}

// NewModelBundle validates the parts of a bundle. Empty featureNames selects FeatureNames.
func NewModelBundle(labels, featureNames []string, scaler *StandardScaler, models ...NamedModel) (*ModelBundle, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: no models", ErrBundleInvalid)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no labels", ErrBundleInvalid)
	}
	labelIndex, err := uniqueIndex(labels)
	if err != nil {
		return nil, fmt.Errorf("%w: labels: %w", ErrBundleInvalid, err)
	}

	if len(featureNames) == 0 {
		featureNames = FeatureNames
	}
	if _, err := uniqueIndex(featureNames); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrBundleInvalid, ErrFeatureMismatch, err)
	}
	for _, n := range featureNames {
		if _, ok := featureIndex[n]; !ok {
			return nil, fmt.Errorf("%w: %w: unknown feature %q", ErrBundleInvalid, ErrFeatureMismatch, n)
		}
	}
	width := len(featureNames)

	if scaler == nil {
		return nil, fmt.Errorf("%w: missing scaler", ErrBundleInvalid)
	}
	if err := scaler.validate(width); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrBundleInvalid, ErrFeatureMismatch, err)
	}

	for _, m := range models {
		if m.Classifier == nil {
			return nil, fmt.Errorf("%w: model %s is empty", ErrBundleInvalid, m.Name)
		}
		classes := len(labels)
		if mc := m.Classes(); mc != nil {
			if _, err := uniqueIndex(mc); err != nil {
				return nil, fmt.Errorf("%w: model %s classes: %w", ErrBundleInvalid, m.Name, err)
			}
			classes = len(mc)
		}
		if v, ok := m.Classifier.(shapeValidator); ok {
			if err := v.validate(width, classes); err != nil {
				return nil, fmt.Errorf("%w: model %s: %w", ErrBundleInvalid, m.Name, err)
			}
		}
	}

	return &ModelBundle{
		Labels:       append([]string(nil), labels...),
		FeatureNames: append([]string(nil), featureNames...),
		Scaler:       scaler,
		Models:       models,
		labelIndex:   labelIndex,
	}, nil
}

// LabelIndex returns the canonical index of a label.
func (b *ModelBundle) LabelIndex(label string) (int, bool) {
	i, ok := b.labelIndex[label]
	return i, ok
}

func uniqueIndex(names []string) (map[string]int, error) {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("empty name at %d", i)
		}
		if _, dup := idx[n]; dup {
			return nil, fmt.Errorf("duplicate %q", n)
		}
		idx[n] = i
	}
	return idx, nil
}
