package recurrence

import "fmt"

// ConfigError reports a recurrence setup that can never produce a due date.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
