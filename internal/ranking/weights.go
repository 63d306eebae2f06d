// SPDX-License-Identifier: MPL-2.0

package ranking

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// DefaultRecencyWeight weights the decayed time since last access.
	DefaultRecencyWeight = 0.4
	// DefaultFrequencyWeight weights the normalized access count.
	DefaultFrequencyWeight = 0.3
	// DefaultManifestPriorityWeight weights the manifest position.
	DefaultManifestPriorityWeight = 0.2
	// DefaultHalfLife is the recency half-life.
	DefaultHalfLife = time.Hour
	// DefaultFrequencyCap is the access count at which frequency saturates.
	DefaultFrequencyCap = 20
)

// ErrInvalidWeights is returned by Weights.Validate.
var ErrInvalidWeights = errors.New("invalid ranking weights")

type (
	// Weights configures the session score.
	Weights struct {
		Recency          float64
		Frequency        float64
		ManifestPriority float64
		// ModuleBoosts and KeyBoosts are added only while a key has no
		// recorded usage.
		ModuleBoosts map[string]float64
		KeyBoosts    map[string]float64
		HalfLife     time.Duration
		FrequencyCap int
	}

	// UsageRecord is the usage of one key in this process.
	UsageRecord struct {
		AccessCount    int
		LastAccessTime time.Time
	}
)

// DefaultWeights returns the 0.4 / 0.3 / 0.2 weighting with no boosts.
func DefaultWeights() Weights {
	return Weights{
		Recency:          DefaultRecencyWeight,
		Frequency:        DefaultFrequencyWeight,
		ManifestPriority: DefaultManifestPriorityWeight,
		HalfLife:         DefaultHalfLife,
		FrequencyCap:     DefaultFrequencyCap,
	}
}

// Validate rejects negative weights and non-positive half-life or cap.
func (w Weights) Validate() error {
	var problems []string
	for name, v := range map[string]float64{
		"recency":           w.Recency,
		"frequency":         w.Frequency,
		"manifest_priority": w.ManifestPriority,
	} {
		if v < 0 || math.IsNaN(v) {
			problems = append(problems, fmt.Sprintf("%s weight %v is negative", name, v))
		}
	}
	if w.HalfLife <= 0 {
		problems = append(problems, "half-life must be positive")
	}
	if w.FrequencyCap < 1 {
		problems = append(problems, "frequency cap must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidWeights, strings.Join(problems, "; "))
	}
	return nil
}

// SessionScore computes the score of key at manifest position i of n.
//
//	recency·0.5^(Δt/halfLife) + frequency·log2(1+count)/log2(cap+1) + priority·(1 − i/(n−1))
//
// plus module and key boosts while count is zero.
func SessionScore(w Weights, usage UsageRecord, now time.Time, key, module string, i, n int) float64 {
	score := w.ManifestPriority * position(i, n)

	if usage.AccessCount > 0 {
		score += w.Recency * decay(now.Sub(usage.LastAccessTime), w.HalfLife)

		count := min(usage.AccessCount, w.FrequencyCap)
		score += w.Frequency * math.Log2(1+float64(count)) / math.Log2(float64(w.FrequencyCap)+1)
		return score
	}

	return score + boost(w.ModuleBoosts, module) + boost(w.KeyBoosts, key)
}

// boost falls back to the lowercased name because config loading lowercases
// map keys.
func boost(table map[string]float64, name string) float64 {
	if v, ok := table[name]; ok {
		return v
	}
	return table[strings.ToLower(name)]
}

func position(i, n int) float64 {
	if n <= 1 {
		return 1
	}
	return 1 - float64(i)/float64(n-1)
}

func decay(dt, halfLife time.Duration) float64 {
	if dt < 0 {
		dt = 0
	}
	return math.Pow(0.5, float64(dt)/float64(halfLife))
}
