package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"emoji-stories/config"
)

const OpenAIModerationEndpoint = "https://api.openai.com/v1/moderations"

type moderationRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

// OpenAIModerator calls an OpenAI-compatible /moderations endpoint.
type OpenAIModerator struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
	client   *http.Client
}

func NewOpenAIModerator(cfg config.ModerationConfig) *OpenAIModerator {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = OpenAIModerationEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OpenAIModerator{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

func (m *OpenAIModerator) Check(ctx context.Context, text string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	jsonData, err := json.Marshal(moderationRequest{Model: m.model, Input: text})
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to serialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Verdict{}, fmt.Errorf("moderation API returned status %d: %s", resp.StatusCode, string(body))
	}
	if !gjson.ValidBytes(body) {
		return Verdict{}, fmt.Errorf("moderation API returned invalid JSON")
	}

	result := gjson.GetBytes(body, "results.0")
	if !result.Exists() {
		return Verdict{}, fmt.Errorf("no results returned by the moderation API")
	}

	verdict := Verdict{Flagged: result.Get("flagged").Bool()}
	result.Get("categories").ForEach(func(key, value gjson.Result) bool {
		if value.Bool() {
			verdict.Categories = append(verdict.Categories, key.String())
		}
		return true
	})
	sort.Strings(verdict.Categories)
	return verdict, nil
}
