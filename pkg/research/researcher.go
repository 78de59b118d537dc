package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/SwarnimWalavalkar/conjure/pkg/search"
)

const (
	toolWebSearch        = "webSearch"
	toolResearchComplete = "researchComplete"
)

type webSearchArgs struct {
	SearchQueries []search.Query `json:"searchQueries"`
}

type researchCompleteArgs struct {
	Summary string `json:"summary"`
}

func researchTools(maxQueries int) []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        toolWebSearch,
				Description: "Search the web for information. Use multiple specific queries to gather comprehensive information.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"searchQueries": map[string]any{
							"type":     "array",
							"maxItems": maxQueries,
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"query": map[string]any{
										"type":        "string",
										"description": "Specific search query",
									},
									"maxResults": map[string]any{
										"type":    "integer",
										"minimum": 1,
										"maximum": search.MaxResultsLimit,
										"default": search.DefaultMaxResults,
									},
								},
								"required": []string{"query"},
							},
						},
					},
					"required": []string{"searchQueries"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        toolResearchComplete,
				Description: "Call this when you have gathered sufficient information to answer the research question.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"summary": map[string]any{
							"type":        "string",
							"description": "Brief summary of what was researched",
						},
					},
					"required": []string{"summary"},
				},
			},
		},
	}
}

// conductResearch runs one research unit: a tool-augmented conversation about
// topic that ends when the model stops calling tools, signals
// researchComplete, or runs out of steps. It returns all text the model wrote,
// in order. Model failures are returned as-is.
func (e *Engine) conductResearch(ctx context.Context, topic string) (string, error) {
	tools := researchTools(e.Config.SearchAPIMaxQueries)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, researcherPrompt(e.now(), e.Config.SearchAPIMaxQueries)),
		llms.TextParts(llms.ChatMessageTypeHuman, "Research this topic in depth: "+topic),
	}

	var findings []string
	for step := 0; step < e.MaxResearchSteps; step++ {
		resp, err := e.LLM.GenerateContent(ctx, messages, llms.WithModel(e.Config.ResearchModel), llms.WithTools(tools))
		if err != nil {
			return "", fmt.Errorf("research model call failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("research model returned no choices")
		}
		choice := resp.Choices[0]

		if strings.TrimSpace(choice.Content) != "" {
			findings = append(findings, choice.Content)
		}
		if len(choice.ToolCalls) == 0 {
			break
		}

		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if choice.Content != "" {
			assistant.Parts = append(assistant.Parts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, tc)
		}
		messages = append(messages, assistant)

		complete := false
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			var output string
			switch tc.FunctionCall.Name {
			case toolWebSearch:
				output = e.runWebSearch(ctx, tc.FunctionCall.Arguments)
			case toolResearchComplete:
				var args researchCompleteArgs
				if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err == nil && strings.TrimSpace(args.Summary) != "" {
					findings = append(findings, args.Summary)
				}
				output = marshalToolOutput(map[string]any{"complete": true, "summary": args.Summary})
				complete = true
			default:
				output = fmt.Sprintf("unknown tool %q", tc.FunctionCall.Name)
			}

			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       tc.FunctionCall.Name,
					Content:    output,
				}},
			})
		}
		if complete {
			break
		}
	}

	return strings.Join(findings, "\n"), nil
}

// runWebSearch executes a webSearch tool call. It never fails: bad arguments
// are reported back to the model and provider errors degrade to no results.
func (e *Engine) runWebSearch(ctx context.Context, rawArgs string) string {
	var args webSearchArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return fmt.Sprintf("invalid webSearch arguments: %v", err)
	}

	queries := args.SearchQueries
	if len(queries) > e.Config.SearchAPIMaxQueries {
		e.Logger.Warn("Truncating search queries", "requested", len(queries), "max", e.Config.SearchAPIMaxQueries)
		queries = queries[:e.Config.SearchAPIMaxQueries]
	}

	queryTexts := make([]string, len(queries))
	for i, q := range queries {
		queryTexts[i] = q.Query
	}

	updateID := e.NewID()
	e.emit(updateID, ProgressData{
		Title:   fmt.Sprintf("Searching %d queries", len(queries)),
		Type:    EventWeb,
		Status:  StatusRunning,
		Queries: queryTexts,
	})

	results := search.Batch(ctx, e.Search, queries, e.Logger)

	refs := make([]SourceRef, len(results))
	for i, r := range results {
		refs[i] = SourceRef{Title: r.Title, URL: r.URL}
	}
	e.emit(updateID, ProgressData{
		Title:   fmt.Sprintf("Found %d sources", len(results)),
		Type:    EventWeb,
		Status:  StatusCompleted,
		Queries: queryTexts,
		Results: refs,
	})

	return marshalToolOutput(map[string]any{
		"results": results,
		"summary": fmt.Sprintf("Found %d sources across %d queries", len(results), len(queries)),
	})
}

func marshalToolOutput(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("failed to encode tool output: %v", err)
	}
	return string(data)
}
