package chat

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/SwarnimWalavalkar/conjure/pkg/research"
	"github.com/SwarnimWalavalkar/conjure/pkg/stream"
)

func modelEvent(partial bool, parts ...*genai.Part) *session.Event {
	ev := session.NewEvent("inv-1")
	ev.Author = agentName
	ev.LLMResponse = model.LLMResponse{
		Content: &genai.Content{Role: string(genai.RoleModel), Parts: parts},
		Partial: partial,
	}
	return ev
}

func textPart(s string) *genai.Part { return &genai.Part{Text: s} }

func callPart(name string) *genai.Part {
	return &genai.Part{FunctionCall: &genai.FunctionCall{ID: "call-1", Name: name, Args: map[string]any{}}}
}

func responsePart(name string, resp map[string]any) *genai.Part {
	return &genai.Part{FunctionResponse: &genai.FunctionResponse{ID: "call-1", Name: name, Response: resp}}
}

func reportResponse() map[string]any {
	return map[string]any{"format": research.FormatReport, "id": "call-1", "title": "Paris", "kind": "text", "content": "# Paris\n\nCapital of France."}
}

func contents(events []StreamEvent) []any {
	var out []any
	for _, e := range events {
		if e.Type == EventContent {
			out = append(out, e.Payload)
		}
	}
	return out
}

func TestTurnDedupesStreamedText(t *testing.T) {
	tr := newTurn(MaxSteps)

	var events []StreamEvent
	events = append(events, tr.handle(modelEvent(true, textPart("Par")))...)
	events = append(events, tr.handle(modelEvent(true, textPart("is")))...)
	events = append(events, tr.handle(modelEvent(false, textPart("Paris")))...)

	assert.Equal(t, []any{"Par", "is"}, contents(events))
	assert.Equal(t, "Paris", tr.message())
	assert.Equal(t, 1, tr.steps)
	assert.False(t, tr.stopped)
}

func TestTurnUnstreamedText(t *testing.T) {
	tr := newTurn(MaxSteps)

	events := tr.handle(modelEvent(false, &genai.Part{Text: "thinking", Thought: true}, textPart("Paris")))

	assert.Equal(t, []any{"Paris"}, contents(events))
	assert.Equal(t, "Paris", tr.message())
}

func TestTurnStepLimit(t *testing.T) {
	tr := newTurn(2)

	events := tr.handle(modelEvent(true, callPart(ToolWebSearch)))
	assert.Empty(t, events)

	events = tr.handle(modelEvent(false, callPart(ToolWebSearch)))
	require.Len(t, events, 1)
	assert.Equal(t, EventToolCall, events[0].Type)
	assert.False(t, tr.stopped)

	tr.handle(modelEvent(false, responsePart(ToolWebSearch, map[string]any{"results": "..."})))
	assert.Equal(t, 1, tr.steps)

	tr.handle(modelEvent(false, callPart(ToolWebSearch)))
	assert.Equal(t, 2, tr.steps)
	assert.True(t, tr.stopped)
}

func TestTurnStopsOnReport(t *testing.T) {
	tr := newTurn(MaxSteps)

	tr.handle(modelEvent(false, textPart("Starting research.")))
	events := tr.handle(modelEvent(false, responsePart(ToolDeepResearch, map[string]any{"result": reportResponse()})))

	require.Len(t, events, 1)
	assert.Equal(t, EventToolResult, events[0].Type)
	assert.True(t, tr.stopped)
	assert.Equal(t, "Starting research.\n\n# Paris\n\nCapital of France.", tr.message())
}

func TestTurnContinuesOnClarification(t *testing.T) {
	tr := newTurn(MaxSteps)

	tr.handle(modelEvent(false, responsePart(ToolDeepResearch, map[string]any{"format": research.FormatClarifyingQuestions, "answer": "Which period?"})))

	assert.False(t, tr.stopped)
	assert.Nil(t, tr.report)
}

func TestOutcomeFrom(t *testing.T) {
	o, ok := outcomeFrom(reportResponse())
	require.True(t, ok)
	assert.Equal(t, "Paris", o.Title)

	o, ok = outcomeFrom(map[string]any{"result": reportResponse()})
	require.True(t, ok)
	assert.True(t, o.IsReport())

	_, ok = outcomeFrom(map[string]any{"results": "text"})
	assert.False(t, ok)
}

func collect(t *testing.T, seq iter.Seq2[StreamEvent, error]) ([]StreamEvent, error) {
	t.Helper()
	var events []StreamEvent
	var lastErr error
	for ev, err := range seq {
		events = append(events, ev)
		if err != nil {
			lastErr = err
		}
	}
	return events, lastErr
}

func scripted(events ...*session.Event) startFunc {
	return func(ctx context.Context, sink stream.Sink) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			sink.Emit(stream.Event{ID: "r1", Type: stream.TypeResearchUpdate, Data: "started"})
			for _, ev := range events {
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
}

func TestStreamTurnInterleavesData(t *testing.T) {
	var finished *turn
	seq := streamTurn(context.Background(), MaxSteps,
		scripted(modelEvent(true, textPart("Paris")), modelEvent(false, textPart("Paris"))),
		func(tr *turn) { finished = tr })

	events, err := collect(t, seq)

	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventData, events[0].Type)
	assert.Equal(t, stream.Event{ID: "r1", Type: stream.TypeResearchUpdate, Data: "started"}, events[0].Payload)
	assert.Equal(t, StreamEvent{Type: EventContent, Payload: "Paris"}, events[1])
	assert.Equal(t, EventDone, events[2].Type)
	require.NotNil(t, finished)
	assert.Equal(t, "Paris", finished.message())
}

func TestStreamTurnEndsAfterReport(t *testing.T) {
	var finished *turn
	seq := streamTurn(context.Background(), MaxSteps,
		scripted(
			modelEvent(false, callPart(ToolDeepResearch)),
			modelEvent(false, responsePart(ToolDeepResearch, reportResponse())),
			modelEvent(false, textPart("Here is a summary of the report.")),
		),
		func(tr *turn) { finished = tr })

	events, err := collect(t, seq)

	require.NoError(t, err)
	assert.Empty(t, contents(events))
	assert.Equal(t, EventDone, events[len(events)-1].Type)
	require.NotNil(t, finished)
	assert.Equal(t, "# Paris\n\nCapital of France.", finished.message())
}

func TestStreamTurnRunError(t *testing.T) {
	finished := false
	start := func(ctx context.Context, sink stream.Sink) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			if !yield(modelEvent(false, textPart("Let me check.")), nil) {
				return
			}
			yield(nil, errors.New("model overloaded"))
		}
	}

	events, err := collect(t, streamTurn(context.Background(), MaxSteps, start, func(*turn) { finished = true }))

	assert.EqualError(t, err, "model overloaded")
	require.Len(t, events, 2)
	assert.Equal(t, EventContent, events[0].Type)
	assert.Equal(t, StreamEvent{Type: EventError, Payload: "model overloaded"}, events[1])
	assert.True(t, finished)
}

func TestStreamTurnConsumerStops(t *testing.T) {
	finished := false
	seq := streamTurn(context.Background(), MaxSteps,
		scripted(modelEvent(false, textPart("one")), modelEvent(false, textPart("two"))),
		func(*turn) { finished = true })

	for range seq {
		break
	}
	assert.True(t, finished)
}
