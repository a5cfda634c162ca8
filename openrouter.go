package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// OpenRouterClient issues chat-completion requests against the OpenRouter API.
type OpenRouterClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewOpenRouterClient creates a client for the given endpoint and key.
func NewOpenRouterClient(apiURL, apiKey string) *OpenRouterClient {
	return &OpenRouterClient{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// QueryModel queries a single model with the given timeout.
// Returns the model's response, or an error on timeout, transport failure,
// a non-2xx status, or an empty completion.
func (c *OpenRouterClient) QueryModel(ctx context.Context, model string, messages []ChatMessage, timeout time.Duration) (*ModelResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := openRouterRequest{
		Model:    model,
		Messages: messages,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResponse openRouterAPIResponse
	if err := json.Unmarshal(bodyBytes, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(apiResponse.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	message := apiResponse.Choices[0].Message
	return &ModelResponse{
		Content:          message.Content,
		ReasoningDetails: message.ReasoningDetails,
	}, nil
}

// QueryModelsParallel queries all listed models concurrently and waits for
// every call to settle. Failed models are logged and recorded as nil in the
// result map; a single model's failure never cancels or delays the others,
// so total wall-clock cost is bounded by the slowest individual model.
func (c *OpenRouterClient) QueryModelsParallel(ctx context.Context, models []string, messages []ChatMessage, timeout time.Duration) map[string]*ModelResponse {
	g := new(errgroup.Group)

	results := make(map[string]*ModelResponse, len(models))
	var mu sync.Mutex

	for _, model := range models {
		model := model
		g.Go(func() error {
			response, err := c.QueryModel(ctx, model, messages, timeout)

			// Graceful degradation: log the error but keep the other
			// in-flight calls running.
			if err != nil {
				log.Printf("Error querying model %s: %v", model, err)
				response = nil
			}

			mu.Lock()
			results[model] = response
			mu.Unlock()
			return nil
		})
	}

	// Goroutines never return errors; Wait is purely a barrier.
	_ = g.Wait()

	return results
}
