package services

import "github.com/llmrouter/router/internal/core/domain"

// perMessageOverheadTokens approximates the fixed per-turn cost most
// chat wire formats add (role marker, separators) beyond raw content
// bytes.
const perMessageOverheadTokens = 4

// bytesPerToken is the bytes-per-token ratio. English prose in the
// dominant vendor encodings averages about 4 bytes/token; rounding each
// field's byte count up and adding perMessageOverheadTokens is what
// keeps the estimate from under-counting on short inputs.
const bytesPerToken = 4

// EstimateTokens is a pure, conservative pre-flight estimate of the
// tokens implied by a message list. It intentionally over-counts rather
// than under-counts: a nearly-full provider should be avoided by the
// Scorer rather than discovered via a quota error from the adapter.
func EstimateTokens(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverheadTokens
		total += (len(m.Content) + bytesPerToken - 1) / bytesPerToken
		if m.Name != "" {
			total += (len(m.Name) + bytesPerToken - 1) / bytesPerToken
		}
	}
	if total < 0 {
		return 0
	}
	return total
}
