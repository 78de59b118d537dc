package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"github.com/SwarnimWalavalkar/conjure/pkg/archive"
	"github.com/SwarnimWalavalkar/conjure/pkg/config"
	"github.com/SwarnimWalavalkar/conjure/pkg/database"
	"github.com/SwarnimWalavalkar/conjure/pkg/research"
	"github.com/SwarnimWalavalkar/conjure/pkg/search"
	"github.com/SwarnimWalavalkar/conjure/pkg/stream"
)

const (
	appName   = "conjure"
	agentName = "conjure"
	userID    = "user"
)

var ErrConversationNotFound = errors.New("conversation not found")

type Service struct {
	DB         *database.PostgresDB
	Client     *genai.Client
	Model      model.LLM
	TitleModel string

	Research *research.Factory
	Search   search.Provider
	Archive  *archive.Archive
	Logger   *slog.Logger
}

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewService(ctx context.Context, db *database.PostgresDB, cfg *config.Config, factory *research.Factory, provider search.Provider, arch *archive.Archive) (*Service, error) {
	if cfg.GoogleApiKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is required for chat")
	}
	clientCfg := &genai.ClientConfig{APIKey: cfg.GoogleApiKey, Backend: genai.BackendGeminiAPI}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	chatModel, err := gemini.NewModel(ctx, cfg.ChatModel, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return &Service{
		DB:         db,
		Client:     client,
		Model:      chatModel,
		TitleModel: cfg.TitleModel,
		Research:   factory,
		Search:     provider,
		Archive:    arch,
		Logger:     slog.Default(),
	}, nil
}

func (s *Service) CreateConversation(ctx context.Context) (*Conversation, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	conv := &Conversation{}
	err = s.DB.Pool.QueryRow(ctx,
		`INSERT INTO conversations (id) VALUES ($1) RETURNING id, title, created_at, updated_at`, id,
	).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.DB.Pool.Query(ctx, `SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (s *Service) GetHistory(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	rows, err := s.DB.Pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Service) conversationExists(ctx context.Context, id uuid.UUID) error {
	var one int
	err := s.DB.Pool.QueryRow(ctx, `SELECT 1 FROM conversations WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrConversationNotFound
	}
	return err
}

func (s *Service) saveMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, err
	}
	_, err = s.DB.Pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content) VALUES ($1, $2, $3, $4)`,
		id, conversationID, role, content)
	return id, err
}

// SendMessage stores the user's message and returns the agent's reply as a
// stream. The reply is stored once the stream ends.
func (s *Service) SendMessage(ctx context.Context, conversationID uuid.UUID, content string) (iter.Seq2[StreamEvent, error], error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("message content is empty")
	}
	if err := s.conversationExists(ctx, conversationID); err != nil {
		return nil, err
	}

	history, err := s.GetHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.saveMessage(ctx, conversationID, "user", content); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	sessionSvc := session.InMemoryService()
	sessionID := conversationID.String()
	created, err := sessionSvc.Create(ctx, &session.CreateRequest{AppName: appName, UserID: userID, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	for _, msg := range history {
		if err := sessionSvc.AppendEvent(ctx, created.Session, historyEvent(msg)); err != nil {
			return nil, fmt.Errorf("failed to hydrate session: %w", err)
		}
	}

	conversation := researchConversation(history, content)
	userContent := genai.NewContentFromText(content, genai.RoleUser)
	logger := s.Logger.With("conversation_id", sessionID)

	start := func(ctx context.Context, sink stream.Sink) iter.Seq2[*session.Event, error] {
		toolset := &Toolset{
			Research:     s.Research,
			Search:       s.Search,
			Archive:      s.Archive,
			Conversation: conversation,
			Sink:         sink,
			Logger:       logger,
		}
		r, err := s.newRunner(toolset, sessionSvc)
		if err != nil {
			return func(yield func(*session.Event, error) bool) { yield(nil, err) }
		}
		logger.Info("Starting agent run")
		return r.Run(ctx, userID, sessionID, userContent, agent.RunConfig{StreamingMode: agent.StreamingModeSSE})
	}

	finish := func(t *turn) {
		logger.Info("Agent run completed", "steps", t.steps, "report", t.report != nil)
		reply := t.message()
		if reply == "" {
			return
		}
		saveCtx := context.WithoutCancel(ctx)
		if _, err := s.saveMessage(saveCtx, conversationID, "model", reply); err != nil {
			logger.Error("Failed to save model message", "error", err)
			return
		}
		_, _ = s.DB.Pool.Exec(saveCtx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID)

		if len(history) == 0 {
			go s.generateTitle(conversationID, content, reply)
		}
	}

	return streamTurn(ctx, MaxSteps, start, finish), nil
}

func (s *Service) newRunner(toolset *Toolset, sessions session.Service) (*runner.Runner, error) {
	a, err := llmagent.New(llmagent.Config{
		Name:        agentName,
		Model:       s.Model,
		Description: "A research assistant that can search the web and run deep research.",
		Instruction: instruction(time.Now()),
		Toolsets:    []tool.Toolset{toolset},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	r, err := runner.New(runner.Config{AppName: appName, Agent: a, SessionService: sessions})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	return r, nil
}

func instruction(now time.Time) string {
	return fmt.Sprintf(`You are Conjure, a research assistant. Today is %s.

Answer simple questions directly. Use %s for quick lookups of current facts.
Use %s when the user asks for thorough research, a report, or a comparison across many sources. When it returns a clarifying question, ask the user exactly that question. When it returns a report, do not repeat or summarize the report.
Use %s to recall findings from earlier research runs before starting new research on the same topic.

Always cite the URLs you rely on.`, now.Format("Mon, Jan 2, 2006"), ToolWebSearch, ToolDeepResearch, ToolSearchArchive)
}

func historyEvent(msg Message) *session.Event {
	role, author := genai.RoleUser, userID
	if msg.Role == "model" {
		role, author = genai.RoleModel, agentName
	}
	evt := session.NewEvent(uuid.NewString())
	evt.Author = author
	evt.LLMResponse = model.LLMResponse{Content: genai.NewContentFromText(msg.Content, genai.Role(role))}
	return evt
}

// researchConversation maps stored chat history plus the new message to the
// role-tagged conversation deep research works from.
func researchConversation(history []Message, content string) []research.Message {
	out := make([]research.Message, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.Role == "model" {
			role = "assistant"
		}
		out = append(out, research.Message{Role: role, Content: m.Content})
	}
	return append(out, research.Message{Role: "user", Content: content})
}

// titleReplyLimit bounds how much of the first reply the title prompt sees.
const titleReplyLimit = 2000

func titlePrompt(userMsg, modelMsg string) string {
	return fmt.Sprintf("Generate a short, concise title (max 5 words) for this chat conversation:\nUser: %s\nModel: %s", userMsg, truncateRunes(modelMsg, titleReplyLimit))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (s *Service) generateTitle(convID uuid.UUID, userMsg, modelMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prompt := titlePrompt(userMsg, modelMsg)

	resp, err := s.Client.Models.GenerateContent(ctx, s.TitleModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{"title": {Type: genai.TypeString}},
			Required:   []string{"title"},
		},
	})
	if err != nil {
		s.Logger.Error("Failed to generate conversation title", "error", err)
		return
	}

	var out struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		s.Logger.Error("Failed to unmarshal title generation response", "error", err)
		return
	}
	if title := strings.TrimSpace(out.Title); title != "" {
		if _, err := s.DB.Pool.Exec(ctx, `UPDATE conversations SET title = $2 WHERE id = $1`, convID, title); err != nil {
			s.Logger.Error("Failed to update conversation title", "error", err)
		}
	}
}
