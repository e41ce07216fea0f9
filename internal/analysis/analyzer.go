package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	providerMaxRetries   = 3
	providerInitialDelay = 1 * time.Second
	providerTimeout      = 30 * time.Second
)

// ErrAnalyzerUnavailable wraps provider failures after retries. The
// orchestrator treats any analyzer error as "work not done" and refunds.
var ErrAnalyzerUnavailable = errors.New("analyzer unavailable")

// Analyzer scores a piece of ad copy. Implementations must be safe for
// concurrent use.
type Analyzer interface {
	Analyze(ctx context.Context, copy AdCopy) (*Result, error)
}

// ProviderClient calls an OpenAI-compatible chat completion API and asks
// the model for a JSON verdict.
type ProviderClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewProviderClient(baseURL, apiKey, model string) *ProviderClient {
	return &ProviderClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: providerTimeout},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type providerError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

const analysisPrompt = `You are an advertising copy analyst. Score the ad below from 0 to 100
and return strict JSON: {"score": <number>, "verdict": "<one sentence>", "suggestions": ["..."]}.

Platform: %s
Headline: %s
Body: %s
Call to action: %s`

func (c *ProviderClient) Analyze(ctx context.Context, copy AdCopy) (*Result, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrAnalyzerUnavailable)
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(analysisPrompt, copy.Platform, copy.Headline, copy.Body, copy.CTA)},
		},
		Temperature: 0.2,
		ResponseFormat: &struct {
			Type string `json:"type"`
		}{Type: "json_object"},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < providerMaxRetries; attempt++ {
		if attempt > 0 {
			delay := providerInitialDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var pErr providerError
			if json.Unmarshal(respBody, &pErr) == nil && pErr.Error.Message != "" {
				lastErr = fmt.Errorf("provider error (%d): %s", resp.StatusCode, pErr.Error.Message)
			} else {
				lastErr = fmt.Errorf("provider error (%d)", resp.StatusCode)
			}

			// 429 and 5xx are worth retrying; other 4xx are final.
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrAnalyzerUnavailable, lastErr)
		}

		var chatResp chatResponse
		if err := json.Unmarshal(respBody, &chatResp); err != nil {
			return nil, fmt.Errorf("%w: bad response: %v", ErrAnalyzerUnavailable, err)
		}
		if len(chatResp.Choices) == 0 {
			return nil, fmt.Errorf("%w: empty completion", ErrAnalyzerUnavailable)
		}

		var result Result
		if err := json.Unmarshal([]byte(chatResp.Choices[0].Message.Content), &result); err != nil {
			return nil, fmt.Errorf("%w: unparseable verdict: %v", ErrAnalyzerUnavailable, err)
		}
		if result.Score < 0 {
			result.Score = 0
		}
		if result.Score > 100 {
			result.Score = 100
		}
		return &result, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrAnalyzerUnavailable, lastErr)
}
