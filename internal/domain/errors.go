package domain

import "fmt"

// ConfigError reports a misconfigured detection policy. It is never
// downgraded to "no DSN found".
type ConfigError struct {
	Variable string
	Value    string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s (set it to your self-hosted Sentry base URL, e.g. https://sentry.example.com, or unset it to use sentry.io)",
		e.Variable, e.Value, e.Reason)
}
