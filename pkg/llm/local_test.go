package llm

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestLocalSummarizeBoundedPrefix(t *testing.T) {
	p := NewLocalProvider()
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 10)
	if len(text) <= 200 {
		t.Fatalf("test input too short: %d", len(text))
	}
	summary, err := p.Summarize(context.Background(), text)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !strings.HasPrefix(text, strings.TrimSuffix(summary, "...")) {
		t.Fatalf("summary is not a prefix of the input")
	}
	if utf8.RuneCountInString(summary) > summaryPrefixRunes+3 {
		t.Fatalf("summary length %d exceeds bound", utf8.RuneCountInString(summary))
	}
}

func TestLocalSummarizeShortText(t *testing.T) {
	p := NewLocalProvider()
	summary, err := p.Summarize(context.Background(), "tiny")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary != "tiny..." {
		t.Fatalf("summary = %q, want %q", summary, "tiny...")
	}
}

func TestLocalAnalyzeSentiment(t *testing.T) {
	p := NewLocalProvider()
	ctx := context.Background()

	pos, err := p.AnalyzeSentiment(ctx, "A great book, I loved it!")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if pos.Score <= 0 || pos.Label != "positive" {
		t.Fatalf("positive text scored %v/%q", pos.Score, pos.Label)
	}

	neg, err := p.AnalyzeSentiment(ctx, "terrible and boring")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if neg.Score >= 0 || neg.Label != "negative" {
		t.Fatalf("negative text scored %v/%q", neg.Score, neg.Label)
	}

	neutral, err := p.AnalyzeSentiment(ctx, "it has pages and a cover")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if neutral.Score != 0 || neutral.Label != "neutral" {
		t.Fatalf("neutral text scored %v/%q", neutral.Score, neutral.Label)
	}
}

func TestNewFailsFastOnUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "gpt-banana"}); err == nil {
		t.Fatalf("expected construction error for unknown provider")
	}
	if _, err := New(Config{Provider: "local"}); err != nil {
		t.Fatalf("local provider should construct: %v", err)
	}
}

func TestParseSentimentReply(t *testing.T) {
	s, err := parseSentimentReply("0.8\npositive")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Score != 0.8 || s.Label != "positive" {
		t.Fatalf("parsed %v", s)
	}
	if _, err := parseSentimentReply("not a number"); err == nil {
		t.Fatalf("expected parse failure")
	}
	s, err = parseSentimentReply("5.0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Score != 1 {
		t.Fatalf("score not clamped: %v", s.Score)
	}
}
