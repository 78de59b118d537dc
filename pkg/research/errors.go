package research

import "fmt"

// SchemaValidationError is returned when a structured output stage could not
// get a conforming response within the configured number of attempts.
type SchemaValidationError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s: structured output invalid after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }
