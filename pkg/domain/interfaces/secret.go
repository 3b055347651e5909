package interfaces

import "context"

// SecretLoader fetches a secret value by name from an external secret store
type SecretLoader interface {
	Load(ctx context.Context, name string) (string, error)
}
