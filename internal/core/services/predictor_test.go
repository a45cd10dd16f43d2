package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExhaustionPredictor_NoHistoryNeverAtRisk(t *testing.T) {
	p := NewExhaustionPredictor(30, 120, 1.5)
	assert.False(t, p.IsAtRisk("A", 100, 10000, time.Now()))
}

func TestExhaustionPredictor_SteadyRateNotAtRisk(t *testing.T) {
	p := NewExhaustionPredictor(30, 120, 1.5)
	base := time.Now().Add(-5 * time.Minute)

	// One request every 5 seconds for 5 minutes: steady state, well
	// under the provider's limits and with no recent acceleration.
	for i := 0; i < 60; i++ {
		p.Record("A", 50, base.Add(time.Duration(i)*5*time.Second))
	}
	now := base.Add(60 * 5 * time.Second)
	assert.False(t, p.IsAtRisk("A", 10000, 1000000, now))
}

func TestExhaustionPredictor_BurstAboveMultiplierAndLimitIsAtRisk(t *testing.T) {
	p := NewExhaustionPredictor(30, 120, 1.5)
	base := time.Now().Add(-10 * time.Minute)

	// Slow long-term baseline: one request every 10s for 10 minutes.
	for i := 0; i < 60; i++ {
		p.Record("A", 10, base.Add(time.Duration(i)*10*time.Second))
	}
	now := base.Add(10 * time.Minute)

	// Sudden burst in the last 30s: one request per second, enough to
	// both exceed 1.5x the long-term rate and, projected over 120s,
	// meet the RPM limit.
	for i := 0; i < 30; i++ {
		p.Record("A", 10, now.Add(-time.Duration(30-i)*time.Second))
	}

	assert.True(t, p.IsAtRisk("A", 20, 1000000, now))
}

func TestExhaustionPredictor_ElevatedButBelowLimitNotAtRisk(t *testing.T) {
	p := NewExhaustionPredictor(30, 120, 1.5)
	base := time.Now().Add(-10 * time.Minute)

	for i := 0; i < 60; i++ {
		p.Record("A", 10, base.Add(time.Duration(i)*10*time.Second))
	}
	now := base.Add(10 * time.Minute)

	for i := 0; i < 30; i++ {
		p.Record("A", 10, now.Add(-time.Duration(30-i)*time.Second))
	}

	// Limits far above anything the burst could project to.
	assert.False(t, p.IsAtRisk("A", 1000000, 1000000, now))
}
