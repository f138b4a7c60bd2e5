package browser

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/entrhq/browser-sidecar/pkg/config"
)

// Strategy names an action's timeout and fallback aggressiveness.
type Strategy string

const (
	StrategyFast     Strategy = "fast"
	StrategyBalanced Strategy = "balanced"
	StrategyRobust   Strategy = "robust"
)

// Budget floors applied after the fractional split.
const (
	PrimaryFloor  = 500 * time.Millisecond
	SemanticFloor = 400 * time.Millisecond
	FallbackFloor = 400 * time.Millisecond
)

// budgetSplit holds the primary/semantic/fallback fractions of a total timeout.
type budgetSplit struct {
	primary, semantic, fallback float64
	defaultTotal                time.Duration
}

var strategySplits = map[Strategy]budgetSplit{
	StrategyFast:     {primary: 0.35, semantic: 0.30, fallback: 0.35, defaultTotal: 8 * time.Second},
	StrategyBalanced: {primary: 0.40, semantic: 0.30, fallback: 0.30, defaultTotal: 12 * time.Second},
	StrategyRobust:   {primary: 0.45, semantic: 0.30, fallback: 0.25, defaultTotal: 20 * time.Second},
}

// ActStrategyConfig is the per-action strategy and its staged budgets.
type ActStrategyConfig struct {
	Strategy Strategy      `json:"strategy"`
	Total    time.Duration `json:"-"`
	Primary  time.Duration `json:"-"`
	Semantic time.Duration `json:"-"`
	Fallback time.Duration `json:"-"`
}

// ParseStrategy validates an explicit strategy name. Empty returns "".
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	if s == "" {
		return "", nil
	}
	if _, ok := strategySplits[s]; !ok {
		return "", Validationf("unknown strategy %q (expected fast, balanced or robust)", name)
	}
	return s, nil
}

// StrategyForPreset maps a configured performance preset to a strategy.
func StrategyForPreset(preset string) Strategy {
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case config.PresetSafe:
		return StrategyRobust
	case config.PresetFast:
		return StrategyFast
	default:
		return StrategyBalanced
	}
}

// DeriveStrategy builds the staged budgets for one action.
//
// The strategy is the explicit one if given, else derived from the preset.
// The total is the explicit timeout if positive, else the configured
// operation timeout, else the strategy default; it is clamped to the
// accepted operation timeout range. Each budget is its fraction of the
// total, raised to its floor and capped at the total.
func DeriveStrategy(explicit Strategy, preset string, timeoutMs, operationTimeoutMs int) ActStrategyConfig {
	strategy := explicit
	if _, ok := strategySplits[strategy]; !ok {
		strategy = StrategyForPreset(preset)
	}
	split := strategySplits[strategy]

	total := split.defaultTotal
	switch {
	case timeoutMs > 0:
		total = time.Duration(config.ClampTimeout(timeoutMs)) * time.Millisecond
	case operationTimeoutMs > 0:
		total = time.Duration(config.ClampTimeout(operationTimeoutMs)) * time.Millisecond
	}

	budget := func(fraction float64, floor time.Duration) time.Duration {
		share := time.Duration(math.Round(float64(total) * fraction))
		return lo.Clamp(share, floor, total)
	}

	return ActStrategyConfig{
		Strategy: strategy,
		Total:    total,
		Primary:  budget(split.primary, PrimaryFloor),
		Semantic: budget(split.semantic, SemanticFloor),
		Fallback: budget(split.fallback, FallbackFloor),
	}
}

func (c ActStrategyConfig) String() string {
	return fmt.Sprintf("%s total=%s primary=%s semantic=%s fallback=%s",
		c.Strategy, c.Total, c.Primary, c.Semantic, c.Fallback)
}

// clampTimeoutMs converts a caller timeout to a duration within the accepted
// range. Non-positive values yield zero.
func clampTimeoutMs(ms int) time.Duration {
	return time.Duration(config.ClampTimeout(ms)) * time.Millisecond
}
