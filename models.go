package main

import "time"

// ChatMessage is a single chat-completion message sent to a model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelResponse is one model's answer to a chat-completion request.
// A nil *ModelResponse is the failure signal for a model call.
type ModelResponse struct {
	Content          string      `json:"content"`
	ReasoningDetails interface{} `json:"reasoning_details,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	Role    string           `json:"role"`
	Content string           `json:"content,omitempty"`
	Stage1  []Stage1Response `json:"stage1,omitempty"`
	Stage2  []Stage2Ranking  `json:"stage2,omitempty"`
	Stage3  *Stage3Response  `json:"stage3,omitempty"`
}

// Conversation represents a full conversation with all messages
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Archived  bool      `json:"archived,omitempty"`
	Messages  []Message `json:"messages"`
}

// ConversationMetadata represents conversation list metadata
type ConversationMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	Archived     bool      `json:"archived"`
}

// Stage1Response represents a single model's response in Stage 1
type Stage1Response struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// Stage2Ranking represents a model's ranking of the anonymized responses
type Stage2Ranking struct {
	Model         string   `json:"model"`
	Ranking       string   `json:"ranking"`
	ParsedRanking []string `json:"parsed_ranking"`
}

// Stage3Response represents the chairman's final synthesis
type Stage3Response struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// AggregateRanking is the per-deliberation average rank for one model,
// derived from the peer rankings. Lower is better.
type AggregateRanking struct {
	Model         string  `json:"model"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

// CouncilMetadata carries the ephemeral, derived data for one deliberation.
// It is returned to callers and streamed to clients but never persisted;
// it can always be regenerated from the stage1/stage2 data.
type CouncilMetadata struct {
	LabelToModel      map[string]string  `json:"label_to_model"`
	AggregateRankings []AggregateRanking `json:"aggregate_rankings"`
}

// CouncilResult bundles the complete output of one deliberation.
type CouncilResult struct {
	Stage1   []Stage1Response
	Stage2   []Stage2Ranking
	Stage3   Stage3Response
	Metadata CouncilMetadata
}

// CouncilOptions are the per-request model overrides. Zero values mean
// "use the configured defaults".
type CouncilOptions struct {
	ChairmanModel string
	CouncilModels []string
}

// ModelScore is one model's row in the historical leaderboard.
type ModelScore struct {
	Model            string  `json:"model"`
	TotalPoints      int     `json:"total_points"`
	RankingsReceived int     `json:"rankings_received"`
	FirstPlaces      int     `json:"first_places"`
	SecondPlaces     int     `json:"second_places"`
	ThirdPlaces      int     `json:"third_places"`
	AveragePosition  float64 `json:"average_position"`
	AveragePoints    float64 `json:"average_points"`
}

// ScoreBoard is the leaderboard recomputed from all stored rankings.
type ScoreBoard struct {
	Leaderboard                []ModelScore `json:"leaderboard"`
	TotalConversationsAnalyzed int          `json:"total_conversations_analyzed"`
	TotalRankingsProcessed     int          `json:"total_rankings_processed"`
}

// openRouterRequest is the wire format of an OpenRouter chat completion request
type openRouterRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// openRouterAPIResponse is the wire format of an OpenRouter response
type openRouterAPIResponse struct {
	Choices []struct {
		Message struct {
			Content          string      `json:"content"`
			ReasoningDetails interface{} `json:"reasoning_details,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

// SendMessageRequest represents a request to send a message. Council model
// overrides are optional; when present the council list is capped at 4.
type SendMessageRequest struct {
	Content       string   `json:"content" binding:"required"`
	ChairmanModel string   `json:"chairman_model"`
	CouncilModels []string `json:"council_models" binding:"omitempty,min=1,max=4,dive,required"`
}

// CouncilOptions converts the request overrides into council options.
func (r *SendMessageRequest) CouncilOptions() CouncilOptions {
	return CouncilOptions{
		ChairmanModel: r.ChairmanModel,
		CouncilModels: r.CouncilModels,
	}
}

// ArchiveRequest toggles a conversation's archived flag.
type ArchiveRequest struct {
	Archived *bool `json:"archived" binding:"required"`
}

// SendMessageResponse represents the response after sending a message
type SendMessageResponse struct {
	Stage1   []Stage1Response `json:"stage1"`
	Stage2   []Stage2Ranking  `json:"stage2"`
	Stage3   Stage3Response   `json:"stage3"`
	Metadata CouncilMetadata  `json:"metadata"`
}
