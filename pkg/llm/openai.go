package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	summarizeSystemPrompt = "You are a librarian. Summarize the given book text in a short paragraph. Reply with the summary only."
	sentimentSystemPrompt = "Rate the sentiment of the given review comment. Reply with exactly two lines: a score between -1.0 and 1.0, then one of positive/negative/neutral."
)

// OpenAIProvider calls any OpenAI-compatible /v1/chat/completions endpoint.
// Works with vLLM, LiteLLM, LocalAI, OpenRouter, self-hosted models, etc.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIProvider builds an OpenAI-compatible Provider. baseURL should
// include the /v1 prefix, e.g. "http://localhost:8000/v1". apiKey can be
// empty for local models without authentication.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("llm endpoint url required for openai provider")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("llm model required for openai provider")
	}
	return &OpenAIProvider{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// Summarize asks the model for a short summary.
func (p *OpenAIProvider) Summarize(ctx context.Context, text string) (string, error) {
	return p.chat(ctx, summarizeSystemPrompt, text)
}

// AnalyzeSentiment asks the model for a score and label.
func (p *OpenAIProvider) AnalyzeSentiment(ctx context.Context, text string) (Sentiment, error) {
	reply, err := p.chat(ctx, sentimentSystemPrompt, text)
	if err != nil {
		return Sentiment{}, err
	}
	return parseSentimentReply(reply)
}

func (p *OpenAIProvider) chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := oaiChatRequest{
		Model: p.model,
		Messages: []oaiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return "", fmt.Errorf("llm api error: %s", errResp.Error.Message)
		}
		return "", fmt.Errorf("llm api error: %s", resp.Status)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("llm decode: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", errors.New("empty response from llm api")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty response from llm api")
	}
	return text, nil
}

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func parseSentimentReply(reply string) (Sentiment, error) {
	lines := strings.Fields(strings.TrimSpace(reply))
	if len(lines) == 0 {
		return Sentiment{}, errors.New("empty sentiment reply")
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(lines[0]), 64)
	if err != nil {
		return Sentiment{}, fmt.Errorf("parse sentiment score %q: %w", lines[0], err)
	}
	if score < -1 {
		score = -1
	}
	if score > 1 {
		score = 1
	}
	label := "neutral"
	if len(lines) > 1 {
		switch strings.ToLower(strings.TrimSpace(lines[1])) {
		case "positive", "negative", "neutral":
			label = strings.ToLower(strings.TrimSpace(lines[1]))
		}
	}
	return Sentiment{Score: score, Label: label}, nil
}
