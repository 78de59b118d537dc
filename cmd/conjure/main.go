package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/SwarnimWalavalkar/conjure/pkg/clients"
	"github.com/SwarnimWalavalkar/conjure/pkg/config"
	"github.com/SwarnimWalavalkar/conjure/pkg/research"
	"github.com/SwarnimWalavalkar/conjure/pkg/search"
	"github.com/SwarnimWalavalkar/conjure/pkg/stream"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "conjure",
		Short:         "A terminal-based deep research agent",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newResearchCmd(cfg))
	return root
}

type researchFlags struct {
	outDir           string
	verbose          bool
	iterations       int
	units            int
	queries          int
	retries          int
	noClarify        bool
	enforceCitations bool
	researchModel    string
	compressionModel string
	reportModel      string
}

func newResearchCmd(cfg *config.Config) *cobra.Command {
	var f researchFlags

	cmd := &cobra.Command{
		Use:   "research [question]",
		Short: "Research a question and write a cited markdown report",
		Long: `Runs the full deep research workflow: clarify, plan, research topics under
a supervisor and write a final report with numbered citations. When the
request is ambiguous and clarification is allowed, the clarifying question is
asked on the terminal and research restarts with the answer.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			in := bufio.NewReader(cmd.InOrStdin())
			if question == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Enter research question: ")
				line, _ := in.ReadString('\n')
				question = strings.TrimSpace(line)
			}
			if question == "" {
				return errors.New("research question cannot be empty")
			}

			overrides := f.overrides(cmd)
			return runResearch(cmd.Context(), cfg, overrides, f, question, in, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.outDir, "out", "o", ".", "Directory the report and notes are written to")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Log every stage")
	fl.IntVar(&f.iterations, "max-iterations", 0, "Supervisor iterations (1-10)")
	fl.IntVar(&f.units, "max-units", 0, "Topics per supervisor iteration (1-20)")
	fl.IntVar(&f.queries, "max-queries", 0, "Queries per search call (1-10)")
	fl.IntVar(&f.retries, "max-retries", 0, "Structured output attempts (1-10)")
	fl.BoolVar(&f.noClarify, "no-clarify", false, "Never ask a clarifying question")
	fl.BoolVar(&f.enforceCitations, "enforce-citations", false, "Renumber report citations against the sources section")
	fl.StringVar(&f.researchModel, "research-model", "", "Model for planning, supervising and researching")
	fl.StringVar(&f.compressionModel, "compression-model", "", "Model for compressing research notes")
	fl.StringVar(&f.reportModel, "report-model", "", "Model for the final report")
	return cmd
}

// overrides returns the flags the user set; unset flags keep the
// environment's defaults.
func (f researchFlags) overrides(cmd *cobra.Command) config.ResearchOverrides {
	var o config.ResearchOverrides
	changed := cmd.Flags().Changed
	if changed("max-iterations") {
		o.MaxResearcherIterations = &f.iterations
	}
	if changed("max-units") {
		o.MaxConcurrentResearchUnits = &f.units
	}
	if changed("max-queries") {
		o.SearchAPIMaxQueries = &f.queries
	}
	if changed("max-retries") {
		o.MaxStructuredOutputRetries = &f.retries
	}
	if changed("no-clarify") {
		allow := !f.noClarify
		o.AllowClarification = &allow
	}
	if changed("enforce-citations") {
		o.EnforceCitationNumbering = &f.enforceCitations
	}
	if changed("research-model") {
		o.ResearchModel = &f.researchModel
	}
	if changed("compression-model") {
		o.CompressionModel = &f.compressionModel
	}
	if changed("report-model") {
		o.FinalReportModel = &f.reportModel
	}
	return o
}

func runResearch(ctx context.Context, cfg *config.Config, overrides config.ResearchOverrides, f researchFlags, question string, in *bufio.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	llm, err := clients.New(ctx, cfg)
	if err != nil {
		return err
	}
	provider, err := search.NewProvider(cfg.SearchAPI, cfg.ExaApiKey)
	if err != nil {
		return err
	}
	factory := &research.Factory{
		LLM:          llm,
		Search:       provider,
		Defaults:     cfg.Research,
		DefaultModel: cfg.DefaultModel,
		Logger:       logger,
	}

	conversation := []research.Message{{Role: "user", Content: question}}
	for {
		engine, err := factory.New(overrides)
		if err != nil {
			return err
		}
		engine.Sink = &progressPrinter{out: out}

		var notes []string
		engine.OnStateUpdate = func(s research.ResearchState) { notes = s.Notes }

		outcome := engine.Run(ctx, research.NewRequestID(), conversation)

		switch outcome.Format {
		case research.FormatReport:
			return writeOutput(f.outDir, outcome, notes, out)
		case research.FormatClarifyingQuestions:
			fmt.Fprintf(out, "\n%s\n> ", outcome.Answer)
			line, readErr := in.ReadString('\n')
			answer := strings.TrimSpace(line)
			if answer == "" {
				if readErr != nil {
					return errors.New("clarification needed but no answer was given")
				}
				continue
			}
			conversation = append(conversation,
				research.Message{Role: "assistant", Content: outcome.Answer},
				research.Message{Role: "user", Content: answer},
			)
		default:
			return errors.New(outcome.Answer)
		}
	}
}

func writeOutput(dir string, outcome research.Outcome, notes []string, out io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	reportPath := filepath.Join(dir, fmt.Sprintf("report_%d.md", time.Now().Unix()))
	if err := os.WriteFile(reportPath, []byte(outcome.Content), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	notesJSON, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}
	notesPath := filepath.Join(dir, "notes.json")
	if err := os.WriteFile(notesPath, notesJSON, 0o644); err != nil {
		return fmt.Errorf("write notes: %w", err)
	}

	fmt.Fprintf(out, "\n%s\n\nReport written to %s\nNotes written to %s\n", outcome.Title, reportPath, notesPath)
	return nil
}

// progressPrinter prints research progress events as status lines.
type progressPrinter struct {
	out io.Writer
}

func (p *progressPrinter) Emit(e stream.Event) {
	data, ok := e.Data.(research.ProgressData)
	if !ok || data.Title == "" {
		return
	}
	mark := "…"
	if data.Status == research.StatusCompleted {
		mark = "✓"
	}
	fmt.Fprintf(p.out, "%s %s\n", mark, data.Title)
	for _, r := range data.Results {
		fmt.Fprintf(p.out, "    %s\n", r.URL)
	}
}
