package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/SwarnimWalavalkar/conjure/pkg/archive"
	"github.com/SwarnimWalavalkar/conjure/pkg/config"
	"github.com/SwarnimWalavalkar/conjure/pkg/research"
	"github.com/SwarnimWalavalkar/conjure/pkg/search"
	"github.com/SwarnimWalavalkar/conjure/pkg/stream"
)

// Tool names exposed to the chat agent.
const (
	ToolDeepResearch  = "deepResearch"
	ToolWebSearch     = "webSearch"
	ToolSearchArchive = "searchResearchArchive"
)

// Toolset is built per chat turn: it carries the turn's conversation and
// the sink that progress events are streamed to.
type Toolset struct {
	Research     *research.Factory
	Search       search.Provider
	Archive      *archive.Archive
	Conversation []research.Message
	Sink         stream.Sink
	Logger       *slog.Logger
}

func (t *Toolset) Name() string {
	return "conjure_tools"
}

func (t *Toolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	deepResearch, err := functiontool.New[DeepResearchArgs, research.Outcome](
		functiontool.Config{
			Name:        ToolDeepResearch,
			Description: "Run multi-step deep research on the user's request and produce a cited report. Use it for questions that need thorough investigation across many sources. It may instead return a clarifying question for the user.",
		},
		t.deepResearchTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s tool: %w", ToolDeepResearch, err)
	}

	webSearch, err := functiontool.New[WebSearchArgs, WebSearchResp](
		functiontool.Config{
			Name:        ToolWebSearch,
			Description: "Search the web for current information. Accepts 1 to 5 queries.",
		},
		t.webSearchTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s tool: %w", ToolWebSearch, err)
	}

	tools := []tool.Tool{deepResearch, webSearch}

	if t.Archive != nil {
		searchArchive, err := functiontool.New[SearchArchiveArgs, SearchArchiveResp](
			functiontool.Config{
				Name:        ToolSearchArchive,
				Description: "Semantic search over reports and notes from earlier deep research runs.",
			},
			t.searchArchiveTool,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tool: %w", ToolSearchArchive, err)
		}
		tools = append(tools, searchArchive)
	}

	return tools, nil
}

type DeepResearchArgs struct {
	Request string `json:"request,omitempty" description:"Optional restatement of what to research when it differs from the user's last message"`
}

func (t *Toolset) deepResearchTool(ctx tool.Context, args DeepResearchArgs) (research.Outcome, error) {
	return t.DeepResearch(ctx, ctx.FunctionCallID(), args), nil
}

// DeepResearch runs the workflow over the turn's conversation. It always
// returns an outcome; failures are reported as a problem outcome so the
// conversation can continue.
func (t *Toolset) DeepResearch(ctx context.Context, requestID string, args DeepResearchArgs) research.Outcome {
	engine, err := t.Research.New(config.ResearchOverrides{})
	if err != nil {
		return research.ProblemOutcome(err)
	}
	engine.Sink = t.sink()
	engine.Logger = t.logger()

	var notes []string
	engine.OnStateUpdate = func(state research.ResearchState) { notes = state.Notes }

	conversation := withRequest(t.Conversation, args.Request)
	if requestID == "" {
		requestID = research.NewRequestID()
	}
	outcome := engine.Run(ctx, requestID, conversation)

	if outcome.IsReport() && t.Archive != nil {
		entry := archive.Entry{RequestID: outcome.ID, Title: outcome.Title, Report: outcome.Content, Notes: notes}
		if _, err := t.Archive.Index(context.WithoutCancel(ctx), entry); err != nil {
			t.logger().Error("Failed to archive research", "request_id", outcome.ID, "error", err)
		}
	}
	return outcome
}

// withRequest appends request as a user message unless it repeats the last
// user message.
func withRequest(conversation []research.Message, request string) []research.Message {
	request = strings.TrimSpace(request)
	if request == "" {
		return conversation
	}
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == "user" {
			if strings.TrimSpace(conversation[i].Content) == request {
				return conversation
			}
			break
		}
	}
	out := make([]research.Message, len(conversation), len(conversation)+1)
	copy(out, conversation)
	return append(out, research.Message{Role: "user", Content: request})
}

type WebSearchArgs struct {
	SearchQueries []search.Query `json:"searchQueries" description:"Search queries to run, at most 5"`
}

type WebSearchResp struct {
	Results string `json:"results"`
}

func (t *Toolset) webSearchTool(ctx tool.Context, args WebSearchArgs) (WebSearchResp, error) {
	return t.WebSearch(ctx, ctx.FunctionCallID(), args)
}

func (t *Toolset) WebSearch(ctx context.Context, callID string, args WebSearchArgs) (WebSearchResp, error) {
	st := &search.Tool{Provider: t.Search, Sink: t.sink(), Logger: t.logger()}
	text, err := st.Run(ctx, callID, args.SearchQueries)
	if err != nil {
		return WebSearchResp{}, err
	}
	return WebSearchResp{Results: text}, nil
}

type SearchArchiveArgs struct {
	Query     string `json:"query" description:"What to look for in earlier research"`
	TopK      int    `json:"topK,omitempty" description:"Number of results to return (default 5)"`
	RequestID string `json:"requestId,omitempty" description:"Restrict the search to one earlier research run"`
}

type SearchArchiveResp struct {
	Results string `json:"results"`
}

func (t *Toolset) searchArchiveTool(ctx tool.Context, args SearchArchiveArgs) (SearchArchiveResp, error) {
	return t.SearchArchive(ctx, args)
}

func (t *Toolset) SearchArchive(ctx context.Context, args SearchArchiveArgs) (SearchArchiveResp, error) {
	t.logger().Info("Search research archive", "query", args.Query, "topK", args.TopK, "request_id", args.RequestID)

	hits, err := t.Archive.Search(ctx, args.Query, args.TopK, args.RequestID)
	if err != nil {
		return SearchArchiveResp{}, err
	}
	if len(hits) == 0 {
		return SearchArchiveResp{Results: "No archived research matched the query."}, nil
	}

	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, fmt.Sprintf("[Research]: %s (%s)\n[Kind]: %s\n[Score]: %.3f\n[Content]: %s", h.Title, h.RequestID, h.Kind, h.Score, h.Content))
	}
	return SearchArchiveResp{Results: strings.Join(parts, "\n\n")}, nil
}

func (t *Toolset) sink() stream.Sink {
	if t.Sink == nil {
		return stream.Discard
	}
	return t.Sink
}

func (t *Toolset) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}
