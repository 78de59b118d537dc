package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/SwarnimWalavalkar/conjure/pkg/archive"
	"github.com/SwarnimWalavalkar/conjure/pkg/config"
	"github.com/SwarnimWalavalkar/conjure/pkg/database"
	"github.com/SwarnimWalavalkar/conjure/pkg/research"
)

// Job statuses.
const (
	StatusPending       = "pending"
	StatusRunning       = "running"
	StatusCompleted     = "completed"
	StatusClarification = "clarification"
	StatusFailed        = "failed"
)

var (
	ErrJobNotFound       = errors.New("research job not found")
	ErrEmptyConversation = errors.New("messages or topic is required")
)

// Service runs deep research as background jobs and records their state,
// logs and outcome in postgres.
type Service struct {
	DB       *database.PostgresDB
	Research *research.Factory
	Archive  *archive.Archive
	Logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(db *database.PostgresDB, factory *research.Factory, arch *archive.Archive, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{DB: db, Research: factory, Archive: arch, Logger: logger, ctx: ctx, cancel: cancel}
}

type Job struct {
	ID           uuid.UUID          `json:"id"`
	Title        string             `json:"title"`
	Status       string             `json:"status"`
	Conversation []research.Message `json:"conversation"`
	Config       json.RawMessage    `json:"config,omitempty"`
	State        json.RawMessage    `json:"state,omitempty"`
	Outcome      json.RawMessage    `json:"outcome,omitempty"`
	Report       *string            `json:"report,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// CreateJobRequest starts a job from a conversation. Topic is shorthand for
// a single user message.
type CreateJobRequest struct {
	Messages []research.Message       `json:"messages"`
	Topic    string                   `json:"topic"`
	Config   config.ResearchOverrides `json:"config"`
}

func (r CreateJobRequest) conversation() []research.Message {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	if strings.TrimSpace(r.Topic) != "" {
		return []research.Message{{Role: "user", Content: r.Topic}}
	}
	return nil
}

// CreateJob validates the request, stores a pending job and starts it in the
// background. Configuration errors are returned as *config.ValidationError
// before anything is stored.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	conversation := req.conversation()
	if len(conversation) == 0 {
		return nil, ErrEmptyConversation
	}

	engine, err := s.Research.New(req.Config)
	if err != nil {
		return nil, err
	}

	configJSON, err := json.Marshal(engine.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	conversationJSON, err := json.Marshal(conversation)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to create job id: %w", err)
	}

	job := &Job{Conversation: conversation}
	err = s.DB.Pool.QueryRow(ctx, `
		INSERT INTO research_jobs (id, status, conversation, config)
		VALUES ($1, $2, $3, $4)
		RETURNING id, title, status, config, created_at, updated_at
	`, id, StatusPending, conversationJSON, configJSON).Scan(
		&job.ID, &job.Title, &job.Status, &job.Config, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker(s.ctx, job.ID, engine, conversation)
	}()

	return job, nil
}

const jobColumns = `id, title, status, conversation, config, state, outcome, report, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	job := &Job{}
	var conversation []byte
	if err := row.Scan(&job.ID, &job.Title, &job.Status, &conversation, &job.Config, &job.State, &job.Outcome, &job.Report, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conversation, &job.Conversation); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := scanJob(s.DB.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.DB.Pool.Query(ctx, `SELECT `+jobColumns+` FROM research_jobs ORDER BY created_at DESC LIMIT 50`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

type LogEntry struct {
	ID        int64           `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	rows, err := s.DB.Pool.Query(ctx, `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Shutdown cancels running jobs and waits for their workers to record the
// outcome, or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runWorker(ctx context.Context, jobID uuid.UUID, engine *research.Engine, conversation []research.Message) {
	logger := slog.New(NewDBLogHandler(s.DB.Pool, jobID, s.Logger.Handler())).With("job_id", jobID.String())
	engine.Logger = logger

	s.exec(ctx, logger, `UPDATE research_jobs SET status = $2, updated_at = NOW() WHERE id = $1`, jobID, StatusRunning)

	var last research.ResearchState
	titled := false
	engine.OnStateUpdate = func(state research.ResearchState) {
		last = state
		stateJSON, err := json.Marshal(state)
		if err != nil {
			logger.Error("Failed to marshal state", "error", err)
			return
		}
		s.exec(ctx, logger, `UPDATE research_jobs SET state = $2, updated_at = NOW() WHERE id = $1`, jobID, stateJSON)

		if !titled && state.Brief != nil {
			titled = true
			s.exec(ctx, logger, `UPDATE research_jobs SET title = $2 WHERE id = $1`, jobID, state.Brief.Title)
		}
	}

	outcome := engine.Run(ctx, jobID.String(), conversation)

	status := jobStatus(outcome)
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		logger.Error("Failed to marshal outcome", "error", err)
		outcomeJSON = nil
	}
	var report *string
	if outcome.IsReport() {
		report = &outcome.Content
	}
	s.exec(ctx, logger, `
		UPDATE research_jobs SET status = $2, outcome = $3, report = $4, updated_at = NOW() WHERE id = $1
	`, jobID, status, outcomeJSON, report)

	logger.Info("Research job finished", "status", status)

	if outcome.IsReport() && s.Archive != nil {
		_, err := s.Archive.Index(context.WithoutCancel(ctx), archive.Entry{
			RequestID: jobID.String(),
			Title:     outcome.Title,
			Report:    outcome.Content,
			Notes:     last.Notes,
		})
		if err != nil {
			logger.Error("Failed to archive research", "error", err)
		}
	}
}

// exec runs a job update. Writes use a context detached from cancellation
// so a shutdown still records the final status.
func (s *Service) exec(ctx context.Context, logger *slog.Logger, sql string, args ...any) {
	if _, err := s.DB.Pool.Exec(context.WithoutCancel(ctx), sql, args...); err != nil {
		logger.Error("Failed to update research job", "error", err)
	}
}

func jobStatus(o research.Outcome) string {
	switch o.Format {
	case research.FormatReport:
		return StatusCompleted
	case research.FormatClarifyingQuestions:
		return StatusClarification
	default:
		return StatusFailed
	}
}
