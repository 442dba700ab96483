package config

import "context"

// SecretProvider resolves secret references to plaintext values. Only keys
// that resolve are present in the returned map.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
