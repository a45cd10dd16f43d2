package redisstate

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyLayout_MatchesSharedStoreKeyLayout(t *testing.T) {
	assert.Equal(t, "usage:rpm:openai", rpmKey("openai"))
	assert.Equal(t, "usage:tpm:openai", tpmKey("openai"))
	assert.Equal(t, "circuit:openai", circuitKey("openai"))
	assert.Equal(t, "session:s1", sessionKey("s1"))
}

// TestExclusiveUpper_CutoffSampleSurvivesPurge locks in spec.md §8's
// boundary property: a sample scored exactly at now-window must never
// be purged, only samples strictly older than the cutoff.
func TestExclusiveUpper_CutoffSampleSurvivesPurge(t *testing.T) {
	cutoff := time.Unix(1_700_000_000, 0)
	upper := exclusiveUpper(cutoff)

	assert.Equal(t, "("+strconv.FormatInt(cutoff.UnixNano(), 10), upper)
	assert.Truef(t, upper[0] == '(', "ZREMRANGEBYSCORE upper bound must use the exclusive '(' prefix so score==cutoff is retained")
}

func TestTPMMember_EncodesTimestampTokensAndNonce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	member := strconv.FormatInt(now.UnixNano(), 10) + ":150:abc-123"

	parts := strings.Split(member, ":")
	assert.Len(t, parts, 3)
	assert.Equal(t, "150", parts[1])
}
