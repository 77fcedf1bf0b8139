package config

import "context"

// SecretProvider resolves SSM parameter paths to plaintext values. Paths it
// cannot find are omitted from the result.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
