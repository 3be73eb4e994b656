/*
File: features.go
Version: 1.0.0
Description: URL feature extraction. The feature names, their order and the keyword and
             shortener lists form a versioned contract with the trained model bundle.
*/

package main

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FeatureSetVersion must be bumped whenever FeatureNames or the meaning of a feature changes.
const FeatureSetVersion = 1

// FeatureNames is the natural feature order.
var FeatureNames = []string{
	"url_length",
	"host_length",
	"path_length",
	"count_dot",
	"count_hyphen",
	"count_at",
	"count_question",
	"count_percent",
	"count_equal",
	"count_slash",
	"count_digits",
	"count_letters",
	"uses_https",
	"has_ip",
	"is_shortened",
	"count_suspicious_words",
	"digit_ratio",
	"letter_ratio",
	"special_ratio",
}

var featureIndex = func() map[string]int {
	m := make(map[string]int, len(FeatureNames))
	for i, n := range FeatureNames {
		m[n] = i
	}
	return m
}()

var ipv4Pattern = regexp.MustCompile(`(\d{1,3}\.){3}\d{1,3}`)

// FeatureVector holds values in FeatureNames order.
type FeatureVector []float64

// Value returns the named feature.
func (fv FeatureVector) Value(name string) (float64, bool) {
	i, ok := featureIndex[name]
	if !ok || i >= len(fv) {
		return 0, false
	}
	return fv[i], true
}

// Ordered returns the values in the given order. Unknown names are an error; the bundle
// loader rejects them up front so this only fails on programming errors.
func (fv FeatureVector) Ordered(names []string) ([]float64, error) {
	if len(names) == 0 {
		return append([]float64(nil), fv...), nil
	}
	out := make([]float64, len(names))
	for i, n := range names {
		v, ok := fv.Value(n)
		if !ok {
			return nil, fmt.Errorf("%w: unknown feature %q", ErrFeatureMismatch, n)
		}
		out[i] = v
	}
	return out, nil
}

// FeatureExtractor turns URLs into FeatureVectors. It is immutable and safe for concurrent use.
type FeatureExtractor struct {
	shorteners []string
	keywords   []string
}

func NewFeatureExtractor(shorteners, keywords []string) *FeatureExtractor {
	fe := &FeatureExtractor{}
	for _, s := range shorteners {
		fe.shorteners = append(fe.shorteners, strings.ToLower(s))
	}
	for _, k := range keywords {
		fe.keywords = append(fe.keywords, strings.ToLower(k))
	}
	return fe
}

// Extract never fails: an unparseable URL contributes an empty host and path.
func (fe *FeatureExtractor) Extract(rawURL string) FeatureVector {
	url := strings.TrimSpace(rawURL)
	parts := splitURL(withDefaultScheme(url))

	urlLen := utf8.RuneCountInString(url)

	var digits, letters, special int
	for _, r := range url {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		case unicode.IsNumber(r):
			// numeric but not a decimal digit: neither digit nor special
		default:
			special++
		}
	}

	usesHTTPS := 0.0
	if parts.scheme == "https" {
		usesHTTPS = 1
	}
	hasIP := 0.0
	if ipv4Pattern.MatchString(parts.host) {
		hasIP = 1
	}
	isShortened := 0.0
	for _, s := range fe.shorteners {
		if strings.Contains(parts.host, s) {
			isShortened = 1
			break
		}
	}
	lower := strings.ToLower(url)
	suspicious := 0
	for _, k := range fe.keywords {
		if strings.Contains(lower, k) {
			suspicious++
		}
	}

	ratio := func(n int) float64 {
		if urlLen == 0 {
			return 0
		}
		return float64(n) / float64(urlLen)
	}

	return FeatureVector{
		float64(urlLen),
		float64(utf8.RuneCountInString(parts.host)),
		float64(utf8.RuneCountInString(parts.path)),
		float64(strings.Count(url, ".")),
		float64(strings.Count(url, "-")),
		float64(strings.Count(url, "@")),
		float64(strings.Count(url, "?")),
		float64(strings.Count(url, "%")),
		float64(strings.Count(url, "=")),
		float64(strings.Count(url, "/")),
		float64(digits),
		float64(letters),
		usesHTTPS,
		hasIP,
		isShortened,
		float64(suspicious),
		ratio(digits),
		ratio(letters),
		ratio(special),
	}
}
