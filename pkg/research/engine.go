package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/SwarnimWalavalkar/conjure/pkg/config"
	"github.com/SwarnimWalavalkar/conjure/pkg/search"
	"github.com/SwarnimWalavalkar/conjure/pkg/stream"
)

// DefaultMaxResearchSteps bounds the model turns of one research unit.
const DefaultMaxResearchSteps = 10

// ResearchEngine runs the deep research workflow. An engine may be reused,
// but every Run owns a fresh ResearchState.
type ResearchEngine struct {
	Config config.ResearchConfig
	LLM    llms.Model
	Search search.Provider
	Sink   stream.Sink
	Logger *slog.Logger

	// OnStateUpdate, when set, receives a snapshot after every state change.
	OnStateUpdate func(state ResearchState)

	MaxResearchSteps int
	RetryDelay       time.Duration
	Now              func() time.Time
	NewID            func() string
}

// Engine is the short name used throughout the package.
type Engine = ResearchEngine

func NewEngine(cfg config.ResearchConfig, llm llms.Model, provider search.Provider) *ResearchEngine {
	return &ResearchEngine{
		Config:           cfg,
		LLM:              llm,
		Search:           provider,
		Sink:             stream.Discard,
		Logger:           slog.Default(),
		MaxResearchSteps: DefaultMaxResearchSteps,
		RetryDelay:       time.Second,
		Now:              time.Now,
		NewID:            NewRequestID,
	}
}

// NewRequestID returns a time-ordered correlation id.
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Run executes the workflow for conversation and always returns exactly one
// outcome. Errors and panics from any stage become a problem outcome.
func (e *ResearchEngine) Run(ctx context.Context, requestID string, conversation []Message) (outcome Outcome) {
	if requestID == "" {
		requestID = e.NewID()
	}
	logger := e.Logger.With("request_id", requestID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Deep research panicked", "panic", r)
			outcome = ProblemOutcome(fmt.Errorf("internal error: %v", r))
		}
	}()

	outcome, err := e.execute(ctx, requestID, conversation)
	if err != nil {
		logger.Error("Deep research failed", "error", err)
		return ProblemOutcome(err)
	}
	logger.Info("Deep research finished", "format", outcome.Format)
	return outcome
}

func (e *ResearchEngine) execute(ctx context.Context, requestID string, conversation []Message) (Outcome, error) {
	state := &ResearchState{
		RequestID:    requestID,
		Conversation: conversation,
		Notes:        []string{},
	}
	e.Logger.Info("Starting deep research", "request_id", requestID, "messages", len(conversation))

	e.emit("", ProgressData{Title: "Starting deep research", Type: EventStarted, Timestamp: timestamp(e.now())})
	e.updateState(state)

	// 1. Clarify
	clarifyID := e.NewID()
	e.emit(clarifyID, ProgressData{Title: "Checking the request", Type: EventThoughts, Status: StatusRunning})
	clar, err := e.clarify(ctx, conversation)
	if err != nil {
		return Outcome{}, fmt.Errorf("clarification failed: %w", err)
	}
	e.emit(clarifyID, ProgressData{Title: "Request checked", Type: EventThoughts, Status: StatusCompleted})
	if clar.NeedClarification && clar.Question != "" {
		e.Logger.Info("Clarification needed", "question", clar.Question)
		return ClarifyingOutcome(clar.Question), nil
	}

	// 2. Brief
	briefID := e.NewID()
	e.emit(briefID, ProgressData{Title: "Creating research plan", Type: EventWriting, Status: StatusRunning})
	brief, err := e.writeBrief(ctx, conversation)
	if err != nil {
		return Outcome{}, fmt.Errorf("brief writing failed: %w", err)
	}
	e.emit(briefID, ProgressData{Title: "Research plan complete", Type: EventWriting, Status: StatusCompleted})
	state.Brief = &brief
	e.updateState(state)

	// 3. Initial research
	initialID := e.NewID()
	e.emit(initialID, ProgressData{Title: fmt.Sprintf("Researching: %s...", truncateRunes(brief.Title, 50)), Type: EventThoughts, Status: StatusRunning})
	note, err := e.researchAndCompress(ctx, brief.Text)
	if err != nil {
		return Outcome{}, fmt.Errorf("initial research failed: %w", err)
	}
	state.Notes = append(state.Notes, note)
	e.emit(initialID, ProgressData{Title: "Initial research complete", Type: EventThoughts, Status: StatusCompleted})
	e.updateState(state)

	// 4. Supervise
	if err := e.supervise(ctx, state); err != nil {
		return Outcome{}, err
	}

	// 5. Report
	reportID := e.NewID()
	e.emit(reportID, ProgressData{Title: "Writing final report", Type: EventWriting, Status: StatusRunning})
	report, err := e.writeReport(ctx, brief, state.Notes)
	if err != nil {
		return Outcome{}, err
	}
	e.emit(reportID, ProgressData{Title: "Final report written", Type: EventWriting, Status: StatusCompleted})
	e.emit("", ProgressData{Title: "Research complete", Type: EventCompleted, Timestamp: timestamp(e.now())})

	e.Logger.Info("Final report generated", "length", len(report), "notes", len(state.Notes), "iterations", state.Iteration)
	return ReportOutcome(requestID, brief.Title, report), nil
}

func (e *ResearchEngine) emit(id string, data ProgressData) {
	if e.Sink == nil {
		return
	}
	e.Sink.Emit(stream.Event{ID: id, Type: stream.TypeResearchUpdate, Data: data})
}

func (e *ResearchEngine) updateState(state *ResearchState) {
	if e.OnStateUpdate == nil {
		return
	}
	snapshot := *state
	snapshot.Notes = append([]string(nil), state.Notes...)
	e.OnStateUpdate(snapshot)
}

func (e *ResearchEngine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
