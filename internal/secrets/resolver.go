package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/etherlinkx/bridge-engine/pkg/secrets"
)

// ProviderCredentials is what a bridge provider adapter needs to call its
// upstream API.
type ProviderCredentials struct {
	APIKey  string
	BaseURL string
}

// Resolver resolves bridge provider credentials from AWS Secrets Manager,
// caching results locally to reduce API calls.
//
// Secret naming convention: {env}/bridge-engine/{provider}
type Resolver struct {
	logger   *zap.Logger
	env      string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[ProviderCredentials]
}

func NewResolver(logger *zap.Logger, env string, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[ProviderCredentials]) *Resolver {
	return &Resolver{
		logger:   logger,
		env:      env,
		provider: provider,
		cache:    cache,
	}
}

// secretName builds the AWS Secrets Manager key for a bridge provider.
func (r *Resolver) secretName(providerName string) string {
	return strings.ToLower(fmt.Sprintf("%s/bridge-engine/%s", r.env, providerName))
}

// Resolve fetches or caches the credentials for a bridge provider.
func (r *Resolver) Resolve(ctx context.Context, providerName string) (ProviderCredentials, error) {
	key := strings.ToLower(providerName)
	if creds, ok := r.cache.Get(key); ok {
		return creds, nil
	}

	secretName := r.secretName(providerName)
	secretMap, err := r.provider.GetSecret(ctx, secretName)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", secretName),
			zap.Error(err))
		return ProviderCredentials{}, fmt.Errorf("resolve credentials for %q: %w", providerName, err)
	}

	creds := ProviderCredentials{
		APIKey:  secretMap["api_key"],
		BaseURL: secretMap["base_url"],
	}
	if creds.APIKey == "" {
		return ProviderCredentials{}, fmt.Errorf("secret %q missing api_key", secretName)
	}

	r.cache.Put(key, creds)

	r.logger.Info("aws.provider_credentials_resolved",
		zap.String("provider", providerName))
	return creds, nil
}

// DiscoverProviders lists all bridge providers that have credentials
// configured under "{env}/bridge-engine/".
func (r *Resolver) DiscoverProviders(ctx context.Context) ([]string, error) {
	prefix := strings.ToLower(fmt.Sprintf("%s/bridge-engine/", r.env))

	names, err := r.provider.ListSecrets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("discover providers: %w", err)
	}

	var providers []string
	for _, name := range names {
		lower := strings.ToLower(name)
		trimmed := strings.TrimPrefix(lower, prefix)
		if trimmed != "" && !strings.Contains(trimmed, "/") {
			providers = append(providers, trimmed)
		}
	}

	r.logger.Info("aws.providers_discovered",
		zap.Int("count", len(providers)),
		zap.Strings("providers", providers))
	return providers, nil
}
