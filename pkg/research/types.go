package research

import (
	"fmt"
	"time"
)

// Message is one role-tagged turn of the conversation that triggered the
// research.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Brief is the research title and guidance produced from the conversation.
type Brief struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ResearchState accumulates the progress of one invocation. It is owned by
// the engine run that created it and is never shared between runs.
type ResearchState struct {
	RequestID    string    `json:"request_id"`
	Conversation []Message `json:"conversation"`
	Brief        *Brief    `json:"brief,omitempty"`
	Notes        []string  `json:"notes"`
	Iteration    int       `json:"iteration"`
}

// Outcome formats returned to the hosting chat loop.
const (
	FormatReport              = "report"
	FormatClarifyingQuestions = "clarifying_questions"
	FormatProblem             = "problem"
)

// Outcome is the tool result of a deep research invocation. Exactly one of
// the three formats is produced per run.
type Outcome struct {
	Format  string `json:"format"`
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Content string `json:"content,omitempty"`
	Answer  string `json:"answer,omitempty"`
}

func ReportOutcome(id, title, content string) Outcome {
	return Outcome{Format: FormatReport, ID: id, Title: title, Kind: "text", Content: content}
}

func ClarifyingOutcome(question string) Outcome {
	return Outcome{Format: FormatClarifyingQuestions, Answer: question}
}

func ProblemOutcome(err error) Outcome {
	return Outcome{Format: FormatProblem, Answer: fmt.Sprintf("Deep research failed with error: %v", err)}
}

// IsReport reports whether the outcome ends the agent's turn.
func (o Outcome) IsReport() bool { return o.Format == FormatReport }

// Progress event kinds and statuses.
const (
	EventStarted   = "started"
	EventWeb       = "web"
	EventWriting   = "writing"
	EventThoughts  = "thoughts"
	EventCompleted = "completed"

	StatusRunning   = "running"
	StatusCompleted = "completed"
)

// SourceRef is the slim view of a search result shown in progress events.
type SourceRef struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// ProgressData is the payload of a data-researchUpdate event.
type ProgressData struct {
	Title     string      `json:"title,omitempty"`
	Type      string      `json:"type,omitempty"`
	Status    string      `json:"status,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Queries   []string    `json:"queries,omitempty"`
	Results   []SourceRef `json:"results,omitempty"`
}

func timestamp(t time.Time) int64 { return t.UnixMilli() }
