package services

import (
	"testing"

	"github.com/llmrouter/router/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens_EmptyMessages(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(nil))
}

func TestEstimateTokens_ConservativeOverByteRatio(t *testing.T) {
	messages := []domain.Message{
		{Role: "user", Content: "this is a short test message"},
	}
	estimate := EstimateTokens(messages)
	// 28 chars content, 4 bytes/token -> ceil(28/4) = 7, plus overhead.
	assert.Greater(t, estimate, 0)
	assert.GreaterOrEqual(t, estimate, (len(messages[0].Content)+3)/4)
}

func TestEstimateTokens_GrowsWithMoreMessages(t *testing.T) {
	one := []domain.Message{{Role: "user", Content: "hello world"}}
	two := []domain.Message{
		{Role: "user", Content: "hello world"},
		{Role: "assistant", Content: "hello world"},
	}
	assert.Greater(t, EstimateTokens(two), EstimateTokens(one))
}

func TestEstimateTokens_CountsNameOverhead(t *testing.T) {
	withoutName := []domain.Message{{Role: "user", Content: "hi"}}
	withName := []domain.Message{{Role: "user", Content: "hi", Name: "alice-from-support-team"}}
	assert.Greater(t, EstimateTokens(withName), EstimateTokens(withoutName))
}
