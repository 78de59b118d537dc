package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tmc/langchaingo/llms"
)

var outputValidator = validator.New()

// generateWithRetry asks model for a JSON object matching T and retries until
// the response decodes, passes its struct tags and check, or the configured
// attempts run out. Between attempts it backs off linearly.
func generateWithRetry[T any](ctx context.Context, e *Engine, stage, model string, prompts []llms.MessageContent, check func(*T) error) (T, error) {
	var zero T
	attempts := e.Config.MaxStructuredOutputRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	schemaFailure := false

	for i := 0; i < attempts; i++ {
		if i > 0 {
			e.Logger.Warn("Retrying structured generation", "stage", stage, "attempt", i+1, "last_error", lastErr)
			if err := sleepContext(ctx, e.RetryDelay*time.Duration(i)); err != nil {
				return zero, err
			}
		}

		resp, err := e.LLM.GenerateContent(ctx, prompts, llms.WithModel(model), llms.WithJSONMode())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			schemaFailure = false
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("llm returned no choices")
			schemaFailure = true
			continue
		}

		var out T
		if err := decodeStructured(resp.Choices[0].Content, &out); err != nil {
			lastErr = err
			schemaFailure = true
			continue
		}
		if check != nil {
			if err := check(&out); err != nil {
				lastErr = fmt.Errorf("validation failed: %w", err)
				schemaFailure = true
				continue
			}
		}
		return out, nil
	}

	if schemaFailure {
		return zero, &SchemaValidationError{Stage: stage, Attempts: attempts, Err: lastErr}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", stage, attempts, lastErr)
}

// decodeStructured tolerates a markdown code fence around the object.
func decodeStructured(content string, out any) error {
	body := strings.TrimSpace(content)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("json parse error: %w (content: %s)", err, content)
	}
	if err := outputValidator.Struct(out); err != nil {
		return fmt.Errorf("schema mismatch: %w", err)
	}
	return nil
}

// generateText runs a plain completion and returns the first choice.
func (e *Engine) generateText(ctx context.Context, model, system, user string) (string, error) {
	resp, err := e.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, llms.WithModel(model))
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
