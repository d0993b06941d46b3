package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("   "))
	assert.Equal(t, 1, EstimateTokens("hello"))
	assert.Equal(t, 3, EstimateTokens("one two three"))
	assert.Equal(t, 2, EstimateTokens("  leading   trailing  "))
}
