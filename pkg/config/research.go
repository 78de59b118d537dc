package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ResearchConfig is the resolved, immutable configuration of one deep
// research invocation.
type ResearchConfig struct {
	MaxStructuredOutputRetries int  `json:"max_structured_output_retries" validate:"min=1,max=10"`
	AllowClarification         bool `json:"allow_clarification"`
	MaxConcurrentResearchUnits int  `json:"max_concurrent_research_units" validate:"min=1,max=20"`
	SearchAPIMaxQueries        int  `json:"search_api_max_queries" validate:"min=1,max=10"`
	MaxResearcherIterations    int  `json:"max_researcher_iterations" validate:"min=1,max=10"`

	ResearchModel    string `json:"research_model" validate:"required"`
	CompressionModel string `json:"compression_model" validate:"required"`
	FinalReportModel string `json:"final_report_model" validate:"required"`

	// EnforceCitationNumbering renumbers the final report's citations against
	// its sources section instead of trusting the model's numbering.
	EnforceCitationNumbering bool `json:"enforce_citation_numbering"`
}

// ResearchOverrides is a partial ResearchConfig. Nil fields take defaults.
type ResearchOverrides struct {
	MaxStructuredOutputRetries *int    `json:"max_structured_output_retries,omitempty" validate:"omitempty,min=1,max=10"`
	AllowClarification         *bool   `json:"allow_clarification,omitempty"`
	MaxConcurrentResearchUnits *int    `json:"max_concurrent_research_units,omitempty" validate:"omitempty,min=1,max=20"`
	SearchAPIMaxQueries        *int    `json:"search_api_max_queries,omitempty" validate:"omitempty,min=1,max=10"`
	MaxResearcherIterations    *int    `json:"max_researcher_iterations,omitempty" validate:"omitempty,min=1,max=10"`
	ResearchModel              *string `json:"research_model,omitempty" validate:"omitempty,min=1"`
	CompressionModel           *string `json:"compression_model,omitempty" validate:"omitempty,min=1"`
	FinalReportModel           *string `json:"final_report_model,omitempty" validate:"omitempty,min=1"`
	EnforceCitationNumbering   *bool   `json:"enforce_citation_numbering,omitempty"`
}

const (
	defaultMaxStructuredOutputRetries = 3
	defaultMaxConcurrentResearchUnits = 2
	defaultSearchAPIMaxQueries        = 3
	defaultMaxResearcherIterations    = 2
)

// FieldViolation describes one field that failed its bound.
type FieldViolation struct {
	Field string
	Rule  string
	Value any
}

// ValidationError is returned when research overrides fall outside their
// declared bounds.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s=%v violates %s", v.Field, v.Value, v.Rule))
	}
	return "invalid research configuration: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ResolveResearch validates the overrides and fills every unset field with
// its default. defaultModel seeds the three model fields.
func ResolveResearch(overrides ResearchOverrides, defaultModel string) (ResearchConfig, error) {
	if err := validate.Struct(overrides); err != nil {
		return ResearchConfig{}, toValidationError(err)
	}

	cfg := ResearchConfig{
		MaxStructuredOutputRetries: intOr(overrides.MaxStructuredOutputRetries, defaultMaxStructuredOutputRetries),
		AllowClarification:         boolOr(overrides.AllowClarification, true),
		MaxConcurrentResearchUnits: intOr(overrides.MaxConcurrentResearchUnits, defaultMaxConcurrentResearchUnits),
		SearchAPIMaxQueries:        intOr(overrides.SearchAPIMaxQueries, defaultSearchAPIMaxQueries),
		MaxResearcherIterations:    intOr(overrides.MaxResearcherIterations, defaultMaxResearcherIterations),
		ResearchModel:              stringOr(overrides.ResearchModel, defaultModel),
		CompressionModel:           stringOr(overrides.CompressionModel, defaultModel),
		FinalReportModel:           stringOr(overrides.FinalReportModel, defaultModel),
		EnforceCitationNumbering:   boolOr(overrides.EnforceCitationNumbering, false),
	}

	if err := validate.Struct(cfg); err != nil {
		return ResearchConfig{}, toValidationError(err)
	}
	return cfg, nil
}

// Merge layers other on top of o; fields set in other win.
func (o ResearchOverrides) Merge(other ResearchOverrides) ResearchOverrides {
	out := o
	if other.MaxStructuredOutputRetries != nil {
		out.MaxStructuredOutputRetries = other.MaxStructuredOutputRetries
	}
	if other.AllowClarification != nil {
		out.AllowClarification = other.AllowClarification
	}
	if other.MaxConcurrentResearchUnits != nil {
		out.MaxConcurrentResearchUnits = other.MaxConcurrentResearchUnits
	}
	if other.SearchAPIMaxQueries != nil {
		out.SearchAPIMaxQueries = other.SearchAPIMaxQueries
	}
	if other.MaxResearcherIterations != nil {
		out.MaxResearcherIterations = other.MaxResearcherIterations
	}
	if other.ResearchModel != nil {
		out.ResearchModel = other.ResearchModel
	}
	if other.CompressionModel != nil {
		out.CompressionModel = other.CompressionModel
	}
	if other.FinalReportModel != nil {
		out.FinalReportModel = other.FinalReportModel
	}
	if other.EnforceCitationNumbering != nil {
		out.EnforceCitationNumbering = other.EnforceCitationNumbering
	}
	return out
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate research configuration: %w", err)
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		verr.Violations = append(verr.Violations, FieldViolation{
			Field: fe.Field(),
			Rule:  rule,
			Value: fe.Value(),
		})
	}
	return verr
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}
