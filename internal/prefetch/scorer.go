package prefetch

import (
	"fmt"

	"github.com/raymundl/kestrel-lang/internal/config"
	"github.com/raymundl/kestrel-lang/internal/store"
)

// ScoreConfig holds the per-attribute weights and the acceptance threshold
// used by the process-identity fine-grained filter. Populated from the
// session's "prefetch.<attr>" configuration keys, kept isolated and
// configurable rather than hard-coded, per spec.md §9's design note on the
// process identity problem.
type ScoreConfig struct {
	// Weights maps secondary attribute name to its contribution when it
	// matches between a local row and a candidate row. Weights need not
	// sum to 1; Score normalizes by the sum of weights actually compared.
	Weights map[string]float64

	// Threshold is the minimum normalized score (0..1) a candidate must
	// reach against at least one local row to survive filtering.
	Threshold float64
}

// DefaultScoreConfig returns a reasonable default scorer for processes on
// id-less datasources: pid and name carry most of the signal, command_line
// and parent identity corroborate, timestamps break remaining ties.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		Weights: map[string]float64{
			"pid":            0.3,
			"name":           0.3,
			"command_line":   0.2,
			"parent_ref.pid": 0.1,
			"created":        0.1,
		},
		Threshold: 0.6,
	}
}

// Score computes the weighted fraction of attributes on which local and
// candidate agree, considering only attributes present on both rows (an
// attribute absent from either row contributes neither to the numerator nor
// the denominator, so sparse remote records aren't unfairly penalized).
func Score(local, candidate store.Row, cfg ScoreConfig) float64 {
	var matched, total float64

	for attr, weight := range cfg.Weights {
		lv, lok := local[attr]
		cv, cok := candidate[attr]

		if !lok || !cok {
			continue
		}

		total += weight

		if equalValues(lv, cv) {
			matched += weight
		}
	}

	if total == 0 {
		return 0
	}

	return matched / total
}

func equalValues(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// ScoreConfigFromSession converts a session's prefetch.<attr> configuration
// keys into a ScoreConfig, falling back to DefaultScoreConfig's weights for
// any zero-valued entry (a session config that only overrides the threshold
// shouldn't silently zero out every weight).
func ScoreConfigFromSession(p config.Prefetch) ScoreConfig {
	def := DefaultScoreConfig()

	weights := map[string]float64{
		"pid":            orDefault(p.Weight.PID, def.Weights["pid"]),
		"name":           orDefault(p.Weight.Name, def.Weights["name"]),
		"command_line":   orDefault(p.Weight.CommandLine, def.Weights["command_line"]),
		"parent_ref.pid": orDefault(p.Weight.ParentPID, def.Weights["parent_ref.pid"]),
		"created":        orDefault(p.Weight.Created, def.Weights["created"]),
	}

	return ScoreConfig{
		Weights:   weights,
		Threshold: orDefault(p.Threshold, def.Threshold),
	}
}

func orDefault(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}

	return v
}
