package app

import (
	"fmt"
	"maps"
	"slices"

	"github.com/MrWong99/attune/internal/config"
	"github.com/MrWong99/attune/internal/lexical"
	"github.com/MrWong99/attune/internal/pipeline"
	"github.com/MrWong99/attune/pkg/affect"
)

// extraEmotionIntensity is the base intensity of an emotion that only appears
// through lexical.extra_keywords.
const extraEmotionIntensity = 0.7

// Tunables builds the hot-reloadable pipeline settings from cfg.
func Tunables(cfg *config.Config) (pipeline.Tunables, error) {
	lex, err := Lexical(cfg.Lexical)
	if err != nil {
		return pipeline.Tunables{}, err
	}
	return pipeline.Tunables{
		LatencyBudget:     cfg.Pipeline.LatencyBudget,
		BatchParallelism:  cfg.Pipeline.BatchParallelism,
		AutoStartSessions: cfg.Pipeline.AutoStartSessions,
		Weights:           cfg.Fusion,
		Thresholds:        cfg.Crisis.Thresholds,
		Hysteresis:        cfg.Crisis.Hysteresis,
		Voice:             cfg.Voice,
		Lexical:           lex,
	}, nil
}

// Lexical builds the keyword classifier described by lc on top of the
// built-in table and crisis phrases.
func Lexical(lc config.LexicalConfig) (*lexical.Classifier, error) {
	var opts []lexical.Option
	if lc.FuzzyThreshold != 0 {
		opts = append(opts, lexical.WithFuzzyThreshold(lc.FuzzyThreshold))
	}
	if lc.PhoneticThreshold > 0 {
		opts = append(opts, lexical.WithPhoneticThreshold(lc.PhoneticThreshold))
	}
	if lc.DisableNegation {
		opts = append(opts, lexical.WithoutNegation())
	}
	if len(lc.ExtraCrisisPhrases) > 0 {
		opts = append(opts, lexical.WithCrisisPhrases(append(lexical.DefaultCrisisPhrases(), lc.ExtraCrisisPhrases...)))
	}
	if len(lc.ExtraKeywords) > 0 {
		table, err := extendTable(lexical.DefaultTable(), lc.ExtraKeywords)
		if err != nil {
			return nil, err
		}
		opts = append(opts, lexical.WithTable(table))
	}
	c, err := lexical.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("app: lexical: %w", err)
	}
	return c, nil
}

// extendTable appends keywords to existing rows. Emotions without a row get
// a new one at the end so built-in tie-breaking order is kept.
func extendTable(table lexical.Table, extra map[string][]string) (lexical.Table, error) {
	for _, name := range slices.Sorted(maps.Keys(extra)) {
		e, err := affect.ParseEmotion(name)
		if err != nil {
			return nil, fmt.Errorf("app: lexical.extra_keywords: %w", err)
		}
		i := slices.IndexFunc(table, func(row lexical.Entry) bool { return row.Emotion == e })
		if i < 0 {
			table = append(table, lexical.Entry{Emotion: e, Intensity: extraEmotionIntensity})
			i = len(table) - 1
		}
		table[i].Keywords = append(slices.Clone(table[i].Keywords), extra[name]...)
	}
	return table, nil
}
