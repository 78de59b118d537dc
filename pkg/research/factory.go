package research

import (
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"github.com/SwarnimWalavalkar/conjure/pkg/config"
	"github.com/SwarnimWalavalkar/conjure/pkg/search"
)

// Factory builds engines that share a model client and search provider.
// Defaults are the process-wide overrides; per-call overrides win over them.
type Factory struct {
	LLM          llms.Model
	Search       search.Provider
	Defaults     config.ResearchOverrides
	DefaultModel string
	Logger       *slog.Logger
}

// New resolves the configuration for one invocation and returns a fresh
// engine. It fails with *config.ValidationError before any stage runs.
func (f *Factory) New(overrides config.ResearchOverrides) (*Engine, error) {
	cfg, err := config.ResolveResearch(f.Defaults.Merge(overrides), f.DefaultModel)
	if err != nil {
		return nil, err
	}
	e := NewEngine(cfg, f.LLM, f.Search)
	if f.Logger != nil {
		e.Logger = f.Logger
	}
	return e, nil
}
