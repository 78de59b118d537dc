package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

type supervisorDecision struct {
	NeedsMoreResearch bool     `json:"needs_more_research"`
	ResearchTopics    []string `json:"research_topics"`
	Reasoning         string   `json:"reasoning"`
}

// supervise runs the supervisor loop until the supervisor is satisfied or
// the iteration budget is spent. Topics of one pass run sequentially, in the
// order proposed, and each adds exactly one note.
func (e *Engine) supervise(ctx context.Context, state *ResearchState) error {
	for state.Iteration < e.Config.MaxResearcherIterations {
		state.Iteration++
		e.Logger.Info("Supervisor iteration", "iteration", state.Iteration, "max", e.Config.MaxResearcherIterations)

		decision, err := e.decideNextResearch(ctx, state)
		if err != nil {
			return fmt.Errorf("supervisor iteration %d: %w", state.Iteration, err)
		}

		if !decision.NeedsMoreResearch || len(decision.ResearchTopics) == 0 {
			e.Logger.Info("Supervisor finished research", "iteration", state.Iteration, "reasoning", decision.Reasoning)
			e.updateState(state)
			return nil
		}

		e.Logger.Info("Supervisor requested more research", "topics", decision.ResearchTopics, "reasoning", decision.Reasoning)
		for _, topic := range decision.ResearchTopics {
			e.emit("", ProgressData{
				Title:  fmt.Sprintf("Researching: %s...", truncateRunes(topic, 50)),
				Type:   EventThoughts,
				Status: StatusRunning,
			})

			note, err := e.researchAndCompress(ctx, topic)
			if err != nil {
				return err
			}
			state.Notes = append(state.Notes, note)
			e.updateState(state)
		}
	}
	return nil
}

func (e *Engine) decideNextResearch(ctx context.Context, state *ResearchState) (supervisorDecision, error) {
	maxUnits := e.Config.MaxConcurrentResearchUnits
	brief := ""
	if state.Brief != nil {
		brief = state.Brief.Text
	}

	return generateWithRetry(ctx, e, "supervisor", e.Config.ResearchModel, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, withSchema(supervisorPrompt(e.now(), maxUnits, brief, state.Notes), supervisorSchema(maxUnits))),
		llms.TextParts(llms.ChatMessageTypeHuman, "Analyze the research state and decide next steps."),
	}, func(d *supervisorDecision) error {
		if len(d.ResearchTopics) > maxUnits {
			return fmt.Errorf("research_topics has %d entries, at most %d allowed", len(d.ResearchTopics), maxUnits)
		}
		for i, topic := range d.ResearchTopics {
			if strings.TrimSpace(topic) == "" {
				return fmt.Errorf("research_topics[%d] is empty", i)
			}
		}
		return nil
	})
}

// researchAndCompress runs one research unit and returns its compressed note.
func (e *Engine) researchAndCompress(ctx context.Context, topic string) (string, error) {
	raw, err := e.conductResearch(ctx, topic)
	if err != nil {
		return "", err
	}
	return e.compress(ctx, raw)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
