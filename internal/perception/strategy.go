package perception

import (
	"context"
	"errors"
	"strings"

	"ghostbot/internal/logging"
	"ghostbot/internal/prompt"
	"ghostbot/internal/types"
	"ghostbot/internal/usage"
)

// Strategy is the classifier's decision for one utterance.
type Strategy string

const (
	StrategyContextSpecific Strategy = "CONTEXT_SPECIFIC_QUESTION"
	StrategyCodeGeneration  Strategy = "CODE_GENERATION"
	StrategyNeedsResearch   Strategy = "NEEDS_RESEARCH"
	StrategyImageGeneration Strategy = "IMAGE_GENERATION"
	StrategyAnswerInHistory Strategy = "ANSWER_IN_HISTORY"
	StrategyCasual          Strategy = "CASUAL_CONVERSATION"
	// StrategyUnknown is any output outside the closed set. It routes to
	// direct generation.
	StrategyUnknown Strategy = "UNKNOWN"
)

// Strategies lists the closed label set.
var Strategies = []Strategy{
	StrategyContextSpecific,
	StrategyCodeGeneration,
	StrategyNeedsResearch,
	StrategyImageGeneration,
	StrategyAnswerInHistory,
	StrategyCasual,
}

// Conversational reports whether the label gets the anti-repetition prompt.
func (s Strategy) Conversational() bool {
	return s == StrategyAnswerInHistory || s == StrategyCasual
}

// ParseStrategy normalizes raw classifier output. An exact label (ignoring
// case, quotes and markdown emphasis) wins; otherwise the label that occurs
// earliest in the text is chosen; otherwise StrategyUnknown.
func ParseStrategy(raw string) Strategy {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	trimmed := strings.Trim(cleaned, " \t\r\n\"'`*.-:")
	for _, s := range Strategies {
		if trimmed == string(s) {
			return s
		}
	}

	best, bestPos := StrategyUnknown, -1
	for _, s := range Strategies {
		pos := strings.Index(cleaned, string(s))
		if pos >= 0 && (bestPos < 0 || pos < bestPos) {
			best, bestPos = s, pos
		}
	}
	return best
}

// Classify asks the model for the strategy of utterance. Empty or blocked
// classifier output yields StrategyUnknown without error.
func Classify(ctx context.Context, m Model, utterance string, history []types.Turn, manifest []string) (Strategy, error) {
	p := prompt.Strategy(utterance, types.SerializeHistory(history), manifest)
	raw, err := Complete(ctx, m, "classify", p)
	if err != nil {
		if errors.Is(err, ErrBlocked) || errors.Is(err, ErrEmpty) {
			logging.RoutingWarn("Classifier returned no label (%v), using direct generation", err)
			usage.RecordStrategy(string(StrategyUnknown))
			return StrategyUnknown, nil
		}
		return StrategyUnknown, err
	}

	s := ParseStrategy(raw)
	usage.RecordStrategy(string(s))
	if s == StrategyUnknown {
		logging.RoutingWarn("Unrecognized strategy label %q, using direct generation", strings.TrimSpace(raw))
	} else {
		logging.Routing("Strategy selected: %s", s)
	}
	return s, nil
}
