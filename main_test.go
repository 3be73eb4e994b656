package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCheck(t *testing.T) {
	eval := stubEvaluator{
		"http://evil.example": {Label: "phishing", RiskScore: 100, Reasons: []string{"blacklisted malicious domain"}},
	}

	var out bytes.Buffer
	code := runCheck(context.Background(), eval, " http://evil.example\n", &out)
	require.Equal(t, 0, code)

	var resp checkResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "http://evil.example", resp.URL)
	assert.Equal(t, "malicious", resp.Status)
	assert.False(t, resp.Safe)

	out.Reset()
	assert.Equal(t, 1, runCheck(context.Background(), eval, "http://unknown.example", &out))
	assert.Zero(t, out.Len())
}
