// Package stream carries UI data events from tools to the chat transport.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Event types understood by the frontend. They mirror the data part names of
// the chat stream with the "data-" prefix.
const (
	TypeResearchUpdate = "data-researchUpdate"
	TypeWebSearch      = "data-web-search"
)

// Event is one UI data event. Events sharing an ID replace each other on the
// client, so a running event can later be marked completed.
type Event struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Sink receives events. Emit must not block for long and never fails; a slow
// or gone consumer is the transport's problem, not the producer's.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Recorder keeps every event it receives, in order. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// WriteSSE writes v as a single server-sent event data frame.
func WriteSSE(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	return nil
}
