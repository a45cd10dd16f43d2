package services

import (
	"sort"

	"github.com/llmrouter/router/internal/core/domain"
)

// latencyCeilingMS is the latency value at which latency_score bottoms
// out at 0, per spec.md §4.5's formula.
const latencyCeilingMS = 3000.0

// ProviderUsage is the snapshot the Router hands the Scorer for one
// provider: current window usage plus its latency EMA. HasUsage is false
// when the state backend could not be read for this provider (see
// domain.KindStateBackendUnavailable); HasLatency is false when the
// Latency Tracker has no observation for it yet.
type ProviderUsage struct {
	RPMUsed     int
	TPMUsed     int
	HasUsage    bool
	LatencyMS   float64
	HasLatency  bool
}

// ProviderScore is one ranked candidate's computed score.
type ProviderScore struct {
	Provider string
	Score    float64
}

// Scorer is pure and stateless: identical inputs always produce
// identical outputs, including tie-break order.
type Scorer struct {
	cfg domain.RouterConfig
}

// NewScorer builds a Scorer bound to the router's configured weight
// profiles and reserve fraction.
func NewScorer(cfg domain.RouterConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes one provider's score for a request, or ok=false if the
// provider has no headroom and must be dropped outright.
func (s *Scorer) Score(
	adapter portsLikeAdapter,
	usage ProviderUsage,
	estimatedTokens int,
	priority domain.Priority,
	atRisk bool,
) (score float64, ok bool) {
	if atRisk && priority != domain.PriorityHigh {
		return 0, false
	}

	rpmLimit := adapter.RPMLimit()
	tpmLimit := adapter.TPMLimit()

	rpmUsed := usage.RPMUsed
	tpmUsed := usage.TPMUsed
	if !usage.HasUsage {
		if priority == domain.PriorityHigh {
			rpmUsed, tpmUsed = 0, 0
		} else {
			return 0, false
		}
	}

	effectiveRPMLimit := rpmLimit
	if priority != domain.PriorityHigh && s.cfg.HighPriorityReserveFraction > 0 {
		reserved := float64(rpmLimit) * (1 - s.cfg.HighPriorityReserveFraction)
		if float64(rpmUsed) > reserved {
			effectiveRPMLimit = int(reserved)
		}
	}

	rpmHeadroom := headroom(rpmUsed, effectiveRPMLimit)
	tpmHeadroom := headroom(tpmUsed+estimatedTokens, tpmLimit)
	capacityScore := min2(rpmHeadroom, tpmHeadroom)
	if capacityScore <= 0 {
		return 0, false
	}

	latencyMS := usage.LatencyMS
	if !usage.HasLatency {
		latencyMS = s.cfg.InitialLatencyMS
	}
	latencyScore := 1 - latencyMS/latencyCeilingMS
	if latencyScore < 0 {
		latencyScore = 0
	}

	staticScore := adapter.Weight()

	w := s.cfg.WeightsFor(priority)
	score = w.Capacity*capacityScore + w.Latency*latencyScore + w.Static*staticScore
	return score, true
}

// Rank scores every candidate, drops ineligible ones, and returns the
// survivors ordered by score descending, ties broken by static weight
// descending then provider name ascending.
func (s *Scorer) Rank(
	candidates []portsLikeAdapter,
	usage map[string]ProviderUsage,
	estimatedTokens int,
	priority domain.Priority,
	atRisk map[string]bool,
) []ProviderScore {
	var scored []ProviderScore
	for _, c := range candidates {
		score, ok := s.Score(c, usage[c.Name()], estimatedTokens, priority, atRisk[c.Name()])
		if !ok {
			continue
		}
		scored = append(scored, ProviderScore{Provider: c.Name(), Score: score})
	}

	weightOf := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		weightOf[c.Name()] = c.Weight()
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if weightOf[scored[i].Provider] != weightOf[scored[j].Provider] {
			return weightOf[scored[i].Provider] > weightOf[scored[j].Provider]
		}
		return scored[i].Provider < scored[j].Provider
	})
	return scored
}

func headroom(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	h := 1 - float64(used)/float64(limit)
	if h < 0 {
		return 0
	}
	return h
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// portsLikeAdapter is the narrow slice of ports.ProviderAdapter the
// Scorer needs, so tests can pass plain structs that implement only
// these methods instead of the full adapter interface.
type portsLikeAdapter interface {
	Name() string
	RPMLimit() int
	TPMLimit() int
	Weight() float64
}
