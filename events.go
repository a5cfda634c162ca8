package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// EventType discriminates the streamed council milestones.
type EventType string

const (
	EventStage1Start    EventType = "stage1_start"
	EventStage1Complete EventType = "stage1_complete"
	EventStage2Start    EventType = "stage2_start"
	EventStage2Complete EventType = "stage2_complete"
	EventStage3Start    EventType = "stage3_start"
	EventStage3Complete EventType = "stage3_complete"
	EventTitleComplete  EventType = "title_complete"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
)

// Event is one streamed council milestone. Each kind carries a fixed
// payload type; MarshalEvent matches them exhaustively.
type Event interface {
	EventType() EventType
}

// Stage1StartEvent signals the start of the response-collection stage.
type Stage1StartEvent struct{}

// Stage1CompleteEvent carries the collected stage 1 responses.
type Stage1CompleteEvent struct {
	Data []Stage1Response
}

// Stage2StartEvent signals the start of the peer-ranking stage.
type Stage2StartEvent struct{}

// Stage2CompleteEvent carries the rankings plus the derived metadata.
type Stage2CompleteEvent struct {
	Data     []Stage2Ranking
	Metadata CouncilMetadata
}

// Stage3StartEvent signals the start of the chairman synthesis stage.
type Stage3StartEvent struct{}

// Stage3CompleteEvent carries the chairman's synthesis.
type Stage3CompleteEvent struct {
	Data Stage3Response
}

// TitleCompleteEvent carries the generated conversation title. It is only
// emitted when title generation ran, always after stage3_complete.
type TitleCompleteEvent struct {
	Title string
}

// CompleteEvent terminates a successful event sequence.
type CompleteEvent struct{}

// ErrorEvent terminates the sequence on an unexpected failure; no further
// stage events follow it.
type ErrorEvent struct {
	Message string
}

func (Stage1StartEvent) EventType() EventType    { return EventStage1Start }
func (Stage1CompleteEvent) EventType() EventType { return EventStage1Complete }
func (Stage2StartEvent) EventType() EventType    { return EventStage2Start }
func (Stage2CompleteEvent) EventType() EventType { return EventStage2Complete }
func (Stage3StartEvent) EventType() EventType    { return EventStage3Start }
func (Stage3CompleteEvent) EventType() EventType { return EventStage3Complete }
func (TitleCompleteEvent) EventType() EventType  { return EventTitleComplete }
func (CompleteEvent) EventType() EventType       { return EventComplete }
func (ErrorEvent) EventType() EventType          { return EventError }

// MarshalEvent renders an event into its wire JSON object. The transport is
// only responsible for framing the returned bytes (e.g. as an SSE frame).
func MarshalEvent(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case Stage1StartEvent, Stage2StartEvent, Stage3StartEvent, CompleteEvent:
		return json.Marshal(struct {
			Type EventType `json:"type"`
		}{e.EventType()})
	case Stage1CompleteEvent:
		return json.Marshal(struct {
			Type EventType        `json:"type"`
			Data []Stage1Response `json:"data"`
		}{EventStage1Complete, ev.Data})
	case Stage2CompleteEvent:
		return json.Marshal(struct {
			Type     EventType       `json:"type"`
			Data     []Stage2Ranking `json:"data"`
			Metadata CouncilMetadata `json:"metadata"`
		}{EventStage2Complete, ev.Data, ev.Metadata})
	case Stage3CompleteEvent:
		return json.Marshal(struct {
			Type EventType      `json:"type"`
			Data Stage3Response `json:"data"`
		}{EventStage3Complete, ev.Data})
	case TitleCompleteEvent:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Data struct {
				Title string `json:"title"`
			} `json:"data"`
		}{EventTitleComplete, struct {
			Title string `json:"title"`
		}{ev.Title}})
	case ErrorEvent:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{EventError, ev.Message})
	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}
}

// EventSink receives events in order. Implementations frame them for a
// remote client; delivery is best-effort.
type EventSink interface {
	Send(event Event) error
}

// StreamDeliberation drives a full council run for one conversation,
// emitting each milestone to the sink as it occurs: stage1_start,
// stage1_complete, stage2_start, stage2_complete, stage3_start,
// stage3_complete, title_complete (when title generation ran), complete.
// Sink failures are logged but don't abort the run; storage failures emit a
// single terminal error event. The completed artifact is persisted before
// the complete event is sent.
func StreamDeliberation(ctx context.Context, council *Council, store *Store, conversationID, content string, opts CouncilOptions, sink EventSink) error {
	fail := func(err error) error {
		emit(sink, ErrorEvent{Message: err.Error()})
		return err
	}

	history, err := store.History(conversationID)
	if err != nil {
		return fail(fmt.Errorf("failed to load conversation history: %w", err))
	}
	isFirstMessage := len(history) == 0

	if err := store.AddUserMessage(conversationID, content); err != nil {
		return fail(fmt.Errorf("failed to add user message: %w", err))
	}

	// Title generation runs concurrently with the stages and is joined
	// only after stage 3, before final persistence.
	var titleChan chan string
	if isFirstMessage {
		titleChan = make(chan string, 1)
		go func() {
			defer close(titleChan)
			title, err := council.GenerateConversationTitle(ctx, content)
			if err != nil {
				log.Printf("Failed to generate title: %v", err)
				title = DefaultConversationTitle
			}
			if err := store.UpdateConversationTitle(conversationID, title); err != nil {
				log.Printf("Failed to update conversation title: %v", err)
			}
			titleChan <- title
		}()
	}

	councilModels, chairmanModel := council.resolveModels(opts)
	messages := append(append([]ChatMessage{}, history...), ChatMessage{Role: "user", Content: content})

	emit(sink, Stage1StartEvent{})
	stage1 := council.Stage1CollectResponses(ctx, councilModels, messages)
	emit(sink, Stage1CompleteEvent{Data: stage1})

	var (
		stage2       []Stage2Ranking
		labelToModel = map[string]string{}
		aggregate    []AggregateRanking
		stage3       Stage3Response
	)

	if len(stage1) == 0 {
		// Full failure: stage 2 and 3 are skipped, but the event sequence
		// stays intact so clients observe the fixed failure artifact.
		log.Printf("All council models failed to respond; short-circuiting deliberation")
		stage2 = []Stage2Ranking{}
		aggregate = []AggregateRanking{}
		stage3 = Stage3Response{Model: chairmanModel, Response: AllModelsFailedMessage}

		emit(sink, Stage2StartEvent{})
		emit(sink, Stage2CompleteEvent{Data: stage2, Metadata: CouncilMetadata{LabelToModel: labelToModel, AggregateRankings: aggregate}})
		emit(sink, Stage3StartEvent{})
		emit(sink, Stage3CompleteEvent{Data: stage3})
	} else {
		emit(sink, Stage2StartEvent{})
		stage2, labelToModel = council.Stage2CollectRankings(ctx, councilModels, content, stage1)
		aggregate = CalculateAggregateRankings(stage2, labelToModel)
		emit(sink, Stage2CompleteEvent{
			Data:     stage2,
			Metadata: CouncilMetadata{LabelToModel: labelToModel, AggregateRankings: aggregate},
		})

		emit(sink, Stage3StartEvent{})
		stage3 = council.Stage3SynthesizeFinal(ctx, chairmanModel, content, history, stage1, stage2)
		emit(sink, Stage3CompleteEvent{Data: stage3})
	}

	// Join the title task before completion so title_complete lands after
	// stage3_complete but before complete.
	if titleChan != nil {
		if title := <-titleChan; title != "" {
			emit(sink, TitleCompleteEvent{Title: title})
		}
	}

	if err := store.AddAssistantMessage(conversationID, stage1, stage2, stage3); err != nil {
		return fail(fmt.Errorf("failed to save message: %w", err))
	}

	emit(sink, CompleteEvent{})
	return nil
}

// emit sends one event, logging delivery failures. Delivery is at-most-once
// best-effort: a broken client connection must not abort the deliberation.
func emit(sink EventSink, event Event) {
	if err := sink.Send(event); err != nil {
		log.Printf("Failed to send %s event: %v", event.EventType(), err)
	}
}
