package llm

import (
	"context"
	"strings"
)

const summaryPrefixRunes = 200

// word lists for the stub polarity scorer; deliberately tiny.
var (
	positiveWords = map[string]struct{}{
		"good": {}, "great": {}, "excellent": {}, "wonderful": {}, "amazing": {},
		"love": {}, "loved": {}, "enjoyable": {}, "fantastic": {}, "best": {},
	}
	negativeWords = map[string]struct{}{
		"bad": {}, "poor": {}, "terrible": {}, "awful": {}, "boring": {},
		"hate": {}, "hated": {}, "worst": {}, "disappointing": {}, "dull": {},
	}
)

// LocalProvider is an offline stub: the summary is the leading part of the
// text and sentiment is a word-count polarity score. It keeps the pipeline
// runnable without a model endpoint.
type LocalProvider struct{}

// NewLocalProvider builds the stub provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

// Summarize returns a bounded prefix of the text.
func (p *LocalProvider) Summarize(ctx context.Context, text string) (string, error) {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > summaryPrefixRunes {
		runes = runes[:summaryPrefixRunes]
	}
	return string(runes) + "...", nil
}

// AnalyzeSentiment scores text in [-1, 1] by polarity word counts.
func (p *LocalProvider) AnalyzeSentiment(ctx context.Context, text string) (Sentiment, error) {
	pos, neg := 0, 0
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if _, ok := positiveWords[word]; ok {
			pos++
		}
		if _, ok := negativeWords[word]; ok {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return Sentiment{Score: 0, Label: "neutral"}, nil
	}
	score := float64(pos-neg) / float64(total)
	label := "neutral"
	switch {
	case score > 0:
		label = "positive"
	case score < 0:
		label = "negative"
	}
	return Sentiment{Score: score, Label: label}, nil
}
