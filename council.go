package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Fixed artifacts for degraded outcomes. These are persisted as-is so that
// a deliberation always completes with a stage3 result.
const (
	AllModelsFailedMessage   = "All council models failed to respond. Please try again."
	ChairmanFailedMessage    = "Error: The chairman model failed to generate a response. Please try again."
	DefaultConversationTitle = "New Conversation"
)

// Council runs the three-stage deliberation. It owns no request state;
// every run works on local, append-only collections.
type Council struct {
	client *OpenRouterClient
	models ModelConfig
}

// NewCouncil creates a council backed by the given gateway client and
// model configuration.
func NewCouncil(client *OpenRouterClient, models ModelConfig) *Council {
	return &Council{client: client, models: models}
}

// resolveModels applies per-request overrides on top of the configured
// defaults, returning the effective council list and chairman.
func (c *Council) resolveModels(opts CouncilOptions) ([]string, string) {
	councilModels := c.models.CouncilModels
	if len(opts.CouncilModels) > 0 {
		councilModels = opts.CouncilModels
	}

	chairman := c.models.ChairmanModel
	if opts.ChairmanModel != "" {
		chairman = opts.ChairmanModel
	}

	return councilModels, chairman
}

// Stage1CollectResponses collects individual responses from all council models.
// Each model independently answers the conversation so far. Only models that
// returned content are kept, in the stable order of the model list; an empty
// result is a valid outcome meaning every model failed.
func (c *Council) Stage1CollectResponses(ctx context.Context, models []string, messages []ChatMessage) []Stage1Response {
	responses := c.client.QueryModelsParallel(ctx, models, messages, c.models.QueryTimeout)

	results := make([]Stage1Response, 0, len(models))
	for _, model := range models {
		if response := responses[model]; response != nil && response.Content != "" {
			results = append(results, Stage1Response{
				Model:    model,
				Response: response.Content,
			})
		}
	}

	return results
}

// assignLabels maps anonymized labels ("Response A", "Response B", ...) to
// real model identifiers in stage1 collection order. This ordering is the
// only place anonymization state lives; the historical scoring job rebuilds
// the same mapping from each stored message's own stage1 data.
func assignLabels(stage1Results []Stage1Response) map[string]string {
	labelToModel := make(map[string]string, len(stage1Results))
	for i, result := range stage1Results {
		labelToModel[responseLabel(i)] = result.Model
	}
	return labelToModel
}

func responseLabel(i int) string {
	return fmt.Sprintf("Response %s", string(rune('A'+i)))
}

// Stage2CollectRankings asks every council model to rank the anonymized
// stage1 responses. Models that fail simply contribute no ranking. Returns
// the rankings and the label-to-model mapping for de-anonymization.
func (c *Council) Stage2CollectRankings(ctx context.Context, models []string, userQuery string, stage1Results []Stage1Response) ([]Stage2Ranking, map[string]string) {
	labelToModel := assignLabels(stage1Results)

	var responsesText strings.Builder
	for i, result := range stage1Results {
		responsesText.WriteString(fmt.Sprintf("%s:\n%s\n\n", responseLabel(i), result.Response))
	}

	rankingPrompt := fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, userQuery, responsesText.String())

	messages := []ChatMessage{
		{Role: "user", Content: rankingPrompt},
	}

	responses := c.client.QueryModelsParallel(ctx, models, messages, c.models.QueryTimeout)

	results := make([]Stage2Ranking, 0, len(models))
	for _, model := range models {
		if response := responses[model]; response != nil && response.Content != "" {
			results = append(results, Stage2Ranking{
				Model:         model,
				Ranking:       response.Content,
				ParsedRanking: ParseRankingFromText(response.Content),
			})
		}
	}

	return results, labelToModel
}

// Stage3SynthesizeFinal has the chairman model synthesize the final answer
// from all responses and rankings, with prior conversation context when
// present. A chairman failure is terminal but non-fatal: the returned result
// carries a fixed error message and the deliberation still completes.
func (c *Council) Stage3SynthesizeFinal(ctx context.Context, chairmanModel, userQuery string, history []ChatMessage, stage1Results []Stage1Response, stage2Results []Stage2Ranking) Stage3Response {
	var stage1Text strings.Builder
	for _, result := range stage1Results {
		stage1Text.WriteString(fmt.Sprintf("Model: %s\nResponse: %s\n\n", result.Model, result.Response))
	}

	var stage2Text strings.Builder
	for _, result := range stage2Results {
		stage2Text.WriteString(fmt.Sprintf("Model: %s\nRanking: %s\n\n", result.Model, result.Ranking))
	}

	var historyText strings.Builder
	if len(history) > 0 {
		historyText.WriteString("Prior conversation context:\n\n")
		for _, turn := range history {
			historyText.WriteString(fmt.Sprintf("%s: %s\n\n", turn.Role, turn.Content))
		}
	}

	chairmanPrompt := fmt.Sprintf(`You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

%sOriginal Question: %s

STAGE 1 - Individual Responses:
%s

STAGE 2 - Peer Rankings:
%s

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`, historyText.String(), userQuery, stage1Text.String(), stage2Text.String())

	messages := []ChatMessage{
		{Role: "user", Content: chairmanPrompt},
	}

	response, err := c.client.QueryModel(ctx, chairmanModel, messages, c.models.QueryTimeout)
	if err != nil {
		log.Printf("Chairman model %s failed: %v", chairmanModel, err)
		return Stage3Response{
			Model:    chairmanModel,
			Response: ChairmanFailedMessage,
		}
	}

	return Stage3Response{
		Model:    chairmanModel,
		Response: response.Content,
	}
}

// ParseRankingFromText extracts the ranking from a model's response text.
// Only the text following the last "FINAL RANKING:" marker is considered
// (the full text when the marker is missing). Numbered entries like
// "1. Response A" are preferred; bare "Response X" mentions are the
// fallback. Malformed input yields a short or empty slice, never an error.
func ParseRankingFromText(rankingText string) []string {
	section := rankingText
	if idx := strings.LastIndex(rankingText, "FINAL RANKING:"); idx >= 0 {
		section = rankingText[idx+len("FINAL RANKING:"):]
	}

	responsePattern := regexp.MustCompile(`Response [A-Z]`)

	// Preferred: numbered list format (e.g., "1. Response A")
	numberedPattern := regexp.MustCompile(`\d+\.\s*Response [A-Z]`)
	if numberedMatches := numberedPattern.FindAllString(section, -1); len(numberedMatches) > 0 {
		results := make([]string, 0, len(numberedMatches))
		for _, match := range numberedMatches {
			if resp := responsePattern.FindString(match); resp != "" {
				results = append(results, resp)
			}
		}
		return results
	}

	// Fallback: any "Response X" mentions, in document order
	return responsePattern.FindAllString(section, -1)
}

// CalculateAggregateRankings averages each model's 1-based rank positions
// across all peer rankings. Labels that don't resolve through labelToModel
// contribute nothing. Results are rounded to 2 decimals and sorted ascending
// (closer to rank 1 is better).
func CalculateAggregateRankings(stage2Results []Stage2Ranking, labelToModel map[string]string) []AggregateRanking {
	modelPositions := make(map[string][]int)

	for _, ranking := range stage2Results {
		for position, label := range ranking.ParsedRanking {
			if modelName, ok := labelToModel[label]; ok {
				modelPositions[modelName] = append(modelPositions[modelName], position+1)
			}
		}
	}

	aggregate := make([]AggregateRanking, 0, len(modelPositions))
	for model, positions := range modelPositions {
		sum := 0
		for _, pos := range positions {
			sum += pos
		}

		aggregate = append(aggregate, AggregateRanking{
			Model:         model,
			AverageRank:   round2(float64(sum) / float64(len(positions))),
			RankingsCount: len(positions),
		})
	}

	sort.Slice(aggregate, func(i, j int) bool {
		if aggregate[i].AverageRank != aggregate[j].AverageRank {
			return aggregate[i].AverageRank < aggregate[j].AverageRank
		}
		return aggregate[i].Model < aggregate[j].Model
	})

	return aggregate
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// GenerateConversationTitle generates a short title for a conversation using
// the fast title model. Returns the cleaned, length-capped title or an error;
// callers fall back to DefaultConversationTitle on error.
func (c *Council) GenerateConversationTitle(ctx context.Context, userQuery string) (string, error) {
	titlePrompt := fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, userQuery)

	messages := []ChatMessage{
		{Role: "user", Content: titlePrompt},
	}

	response, err := c.client.QueryModel(ctx, c.models.TitleModel, messages, c.models.TitleTimeout)
	if err != nil {
		return "", fmt.Errorf("title generation failed: %w", err)
	}

	title := strings.TrimSpace(response.Content)
	title = strings.Trim(title, "\"'")

	if len(title) > 50 {
		title = title[:47] + "..."
	}

	return title, nil
}

// RunFullCouncil runs the complete 3-stage deliberation over the prior
// conversation history plus the new user query. It never fails: if every
// council model fails in Stage 1 the run short-circuits, skipping Stage 2
// and Stage 3 entirely, and returns a fixed failure artifact with empty
// metadata so the deliberation can still be persisted.
func (c *Council) RunFullCouncil(ctx context.Context, history []ChatMessage, userQuery string, opts CouncilOptions) CouncilResult {
	councilModels, chairmanModel := c.resolveModels(opts)

	messages := append(append([]ChatMessage{}, history...), ChatMessage{Role: "user", Content: userQuery})

	stage1Results := c.Stage1CollectResponses(ctx, councilModels, messages)

	if len(stage1Results) == 0 {
		log.Printf("All council models failed to respond; short-circuiting deliberation")
		return CouncilResult{
			Stage1: []Stage1Response{},
			Stage2: []Stage2Ranking{},
			Stage3: Stage3Response{
				Model:    chairmanModel,
				Response: AllModelsFailedMessage,
			},
			Metadata: CouncilMetadata{
				LabelToModel:      map[string]string{},
				AggregateRankings: []AggregateRanking{},
			},
		}
	}

	stage2Results, labelToModel := c.Stage2CollectRankings(ctx, councilModels, userQuery, stage1Results)
	aggregateRankings := CalculateAggregateRankings(stage2Results, labelToModel)

	stage3Result := c.Stage3SynthesizeFinal(ctx, chairmanModel, userQuery, history, stage1Results, stage2Results)

	return CouncilResult{
		Stage1: stage1Results,
		Stage2: stage2Results,
		Stage3: stage3Result,
		Metadata: CouncilMetadata{
			LabelToModel:      labelToModel,
			AggregateRankings: aggregateRankings,
		},
	}
}
