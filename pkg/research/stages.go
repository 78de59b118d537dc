package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
)

const maxTitleLength = 100

type clarification struct {
	NeedClarification bool   `json:"need_clarification"`
	Question          string `json:"question"`
}

type briefResponse struct {
	Title         string `json:"title" validate:"required"`
	ResearchBrief string `json:"research_brief" validate:"required"`
}

// clarify decides whether the conversation is too ambiguous to research.
// With clarification disabled it never asks.
func (e *Engine) clarify(ctx context.Context, conversation []Message) (clarification, error) {
	if !e.Config.AllowClarification {
		return clarification{}, nil
	}

	return generateWithRetry[clarification](ctx, e, "clarify", e.Config.ResearchModel, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, withSchema(clarifyPrompt(e.now(), conversation), clarifySchema)),
	}, nil)
}

// writeBrief turns the conversation into a title and research brief.
func (e *Engine) writeBrief(ctx context.Context, conversation []Message) (Brief, error) {
	resp, err := generateWithRetry(ctx, e, "brief", e.Config.ResearchModel, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, withSchema(briefPrompt(e.now(), conversation), briefSchema)),
	}, func(b *briefResponse) error {
		if strings.TrimSpace(b.ResearchBrief) == "" {
			return errors.New("empty research brief")
		}
		if strings.TrimSpace(b.Title) == "" {
			return errors.New("empty title")
		}
		return nil
	})
	if err != nil {
		return Brief{}, err
	}

	title := strings.TrimSpace(resp.Title)
	if n := utf8.RuneCountInString(title); n > maxTitleLength {
		e.Logger.Warn("Research title exceeds recommended length", "length", n, "max", maxTitleLength)
	}

	return Brief{Title: title, Text: strings.TrimSpace(resp.ResearchBrief)}, nil
}

// compress condenses raw findings. Citations and URLs must survive: the
// report stage only sees the notes.
func (e *Engine) compress(ctx context.Context, raw string) (string, error) {
	out, err := e.generateText(ctx, e.Config.CompressionModel, compressPrompt, "Clean up these research findings:\n\n"+raw)
	if err != nil {
		return "", fmt.Errorf("compression failed: %w", err)
	}
	return out, nil
}

// writeReport produces the final markdown report from the brief and notes.
func (e *Engine) writeReport(ctx context.Context, brief Brief, notes []string) (string, error) {
	report, err := e.generateText(ctx, e.Config.FinalReportModel, reportPrompt, reportInput(brief.Title, brief.Text, notes))
	if err != nil {
		return "", fmt.Errorf("report writing failed: %w", err)
	}
	if e.Config.EnforceCitationNumbering {
		report = NormalizeCitations(report)
	}
	return report, nil
}
