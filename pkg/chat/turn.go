package chat

import (
	"context"
	"encoding/json"
	"iter"
	"strings"

	"google.golang.org/adk/session"

	"github.com/SwarnimWalavalkar/conjure/pkg/research"
	"github.com/SwarnimWalavalkar/conjure/pkg/stream"
)

// MaxSteps bounds the model responses of one chat turn.
const MaxSteps = 5

// Stream event types.
const (
	EventContent    = "content"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventData       = "data"
	EventError      = "error"
	EventDone       = "done"
)

// StreamEvent is one frame of the chat stream.
type StreamEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// turn folds runner events into stream events and decides when the turn
// ends: after maxSteps model responses, or once deep research has produced a
// report.
type turn struct {
	maxSteps    int
	steps       int
	partialText bool
	text        strings.Builder
	report      *research.Outcome
	stopped     bool
}

func newTurn(maxSteps int) *turn {
	return &turn{maxSteps: maxSteps}
}

func (t *turn) handle(ev *session.Event) []StreamEvent {
	if ev == nil || ev.LLMResponse.Content == nil {
		return nil
	}
	partial := ev.LLMResponse.Partial

	var out []StreamEvent
	modelOutput := false
	for _, part := range ev.LLMResponse.Content.Parts {
		switch {
		case part == nil || part.Thought:
			continue
		case part.Text != "":
			modelOutput = true
			// The final event of a streamed response repeats its partials.
			if !partial && t.partialText {
				continue
			}
			if partial {
				t.partialText = true
			}
			t.text.WriteString(part.Text)
			out = append(out, StreamEvent{Type: EventContent, Payload: part.Text})
		case part.FunctionCall != nil:
			modelOutput = true
			if partial {
				continue
			}
			out = append(out, StreamEvent{Type: EventToolCall, Payload: part.FunctionCall})
		case part.FunctionResponse != nil:
			out = append(out, StreamEvent{Type: EventToolResult, Payload: part.FunctionResponse})
			if part.FunctionResponse.Name != ToolDeepResearch {
				continue
			}
			if o, ok := outcomeFrom(part.FunctionResponse.Response); ok && o.IsReport() {
				t.report = &o
				t.stopped = true
			}
		}
	}

	if !partial {
		t.partialText = false
		if modelOutput {
			t.steps++
			if t.steps >= t.maxSteps {
				t.stopped = true
			}
		}
	}
	return out
}

// message is the assistant message stored for the turn.
func (t *turn) message() string {
	text := strings.TrimSpace(t.text.String())
	if t.report == nil {
		return text
	}
	if text == "" {
		return t.report.Content
	}
	return text + "\n\n" + t.report.Content
}

// outcomeFrom decodes a deepResearch function response. Function tools may
// wrap non-object results under "result".
func outcomeFrom(resp map[string]any) (research.Outcome, bool) {
	if inner, ok := resp["result"].(map[string]any); ok {
		resp = inner
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return research.Outcome{}, false
	}
	var o research.Outcome
	if err := json.Unmarshal(data, &o); err != nil || o.Format == "" {
		return research.Outcome{}, false
	}
	return o, true
}

// startFunc begins an agent run whose tools emit data events to sink.
type startFunc func(ctx context.Context, sink stream.Sink) iter.Seq2[*session.Event, error]

type item struct {
	raw  *session.Event
	data *stream.Event
	err  error
}

// streamTurn runs the agent on its own goroutine and interleaves its events
// with the data events its tools emit, in the order they happened. finish
// is called once the run has fully stopped.
func streamTurn(ctx context.Context, maxSteps int, start startFunc, finish func(*turn)) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		items := make(chan item, 64)

		send := func(it item) bool {
			select {
			case items <- it:
				return true
			case <-ctx.Done():
				return false
			}
		}
		sink := stream.SinkFunc(func(e stream.Event) { send(item{data: &e}) })

		go func() {
			defer close(items)
			for ev, err := range start(ctx, sink) {
				if err != nil {
					send(item{err: err})
					return
				}
				if !send(item{raw: ev}) {
					return
				}
			}
		}()

		t := newTurn(maxSteps)
		stop := func() {
			cancel()
			for range items {
			}
			if finish != nil {
				finish(t)
			}
		}

		for it := range items {
			if it.err != nil {
				if ctx.Err() != nil {
					break
				}
				stop()
				yield(StreamEvent{Type: EventError, Payload: it.err.Error()}, it.err)
				return
			}

			var out []StreamEvent
			if it.data != nil {
				out = []StreamEvent{{Type: EventData, Payload: *it.data}}
			} else {
				out = t.handle(it.raw)
			}
			for _, ev := range out {
				if !yield(ev, nil) {
					stop()
					return
				}
			}
			if t.stopped {
				break
			}
		}

		stop()
		yield(StreamEvent{Type: EventDone, Payload: "done"}, nil)
	}
}
