package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

// writeFile writes raw content to a path, for corrupt-file fixtures.
func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

// testModelConfig returns a model configuration suitable for tests.
func testModelConfig() ModelConfig {
	return ModelConfig{
		CouncilModels: []string{"test/model1", "test/model2"},
		ChairmanModel: "test/chairman",
		TitleModel:    "test/title",
		QueryTimeout:  10 * time.Second,
		TitleTimeout:  5 * time.Second,
	}
}

// newTestCouncil creates a council pointed at a mock upstream server.
func newTestCouncil(serverURL string, models ModelConfig) *Council {
	return NewCouncil(NewOpenRouterClient(serverURL, "test-key"), models)
}

// newTestStore creates a store rooted in a per-test temp directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

// writeCompletion writes a successful chat-completion response.
func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"content": content}},
		},
	})
}

// mockCompletionHandler returns the same content for every model and
// verifies the request carries the expected headers.
func mockCompletionHandler(t *testing.T, response string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") == "" {
			t.Errorf("Missing Authorization header")
		}

		writeCompletion(w, response)
	}
}

// mockPerModelHandler answers per requested model; models without an entry
// get a 500 so tests can exercise graceful degradation.
func mockPerModelHandler(t *testing.T, responses map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openRouterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		content, ok := responses[req.Model]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		writeCompletion(w, content)
	}
}

// mockErrorHandler fails every request with the given status.
func mockErrorHandler(statusCode int, errorMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		w.Write([]byte(errorMsg))
	}
}

// newMockServer starts a mock upstream API server.
func newMockServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// collectSink records events in order for assertions.
type collectSink struct {
	events []Event
}

func (s *collectSink) Send(event Event) error {
	s.events = append(s.events, event)
	return nil
}

func (s *collectSink) types() []EventType {
	types := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType())
	}
	return types
}

// sampleConversation creates a stored conversation with one full council turn.
func sampleConversation(id string) *Conversation {
	return &Conversation{
		ID:        id,
		CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Title:     "Test Conversation",
		Messages: []Message{
			{
				Role:    "user",
				Content: "What is Go?",
			},
			{
				Role: "assistant",
				Stage1: []Stage1Response{
					{Model: "test/model1", Response: "Go is a programming language."},
					{Model: "test/model2", Response: "Go is developed by Google."},
				},
				Stage2: []Stage2Ranking{
					{
						Model:         "test/model1",
						Ranking:       "FINAL RANKING:\n1. Response B\n2. Response A",
						ParsedRanking: []string{"Response B", "Response A"},
					},
				},
				Stage3: &Stage3Response{
					Model:    "test/chairman",
					Response: "Go is a programming language developed by Google.",
				},
			},
		},
	}
}
