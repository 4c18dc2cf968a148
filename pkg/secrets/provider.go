package secrets

import "context"

// Provider abstracts the backing secrets store. The engine only ever reads;
// rotation and writes happen out of band.
type Provider interface {
	// GetSecret fetches one secret by name, decoded as a key-value map.
	GetSecret(ctx context.Context, key string) (map[string]string, error)

	// ListSecrets returns the names of secrets under the given prefix.
	ListSecrets(ctx context.Context, prefix string) ([]string, error)
}
