package store

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamValueScalarJSON(t *testing.T) {
	p := Params{"seed": {Value: "12345"}}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"seed":"12345"}`, string(data))

	var back Params
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "12345", back["seed"].Value)
	assert.False(t, back["seed"].IsList())
}

func TestParamValueListJSON(t *testing.T) {
	p := Params{"layers": {Values: []string{"bg", "fg"}}}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"layers":["bg","fg"]}`, string(data))

	var back Params
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back["layers"].IsList())
	assert.Equal(t, []string{"bg", "fg"}, back["layers"].Values)
}

func TestComputeHashDeterministic(t *testing.T) {
	h1, err := ComputeHash(strings.NewReader("same bytes"))
	require.NoError(t, err)
	h2, err := ComputeHash(strings.NewReader("same bytes"))
	require.NoError(t, err)
	h3, err := ComputeHash(strings.NewReader("other bytes"))
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64) // hex sha256
}
