package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

const listPageSize = 100

// AWSProvider reads secrets from AWS Secrets Manager. Each secret holds a
// JSON object, e.g. {"api_key": "...", "base_url": "https://..."}.
type AWSProvider struct {
	sm *secretsmanager.Client
}

// NewAWSProvider builds a provider for the given region using the default
// credential chain.
func NewAWSProvider(region string) (*AWSProvider, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &AWSProvider{sm: secretsmanager.NewFromConfig(cfg)}, nil
}

func (p *AWSProvider) GetSecret(ctx context.Context, key string) (map[string]string, error) {
	out, err := p.sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret %q: %w", key, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %q has no string payload", key)
	}

	values := make(map[string]string)
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return nil, fmt.Errorf("decode secret %q: %w", key, err)
	}
	return values, nil
}

// ListSecrets returns the names of all secrets under prefix, walking every
// page of results.
func (p *AWSProvider) ListSecrets(ctx context.Context, prefix string) ([]string, error) {
	pager := secretsmanager.NewListSecretsPaginator(p.sm, &secretsmanager.ListSecretsInput{
		Filters: []types.Filter{{
			Key:    types.FilterNameStringTypeName,
			Values: []string{prefix},
		}},
		MaxResults: aws.Int32(listPageSize),
	})

	var names []string
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list secrets %q: %w", prefix, err)
		}
		for _, entry := range page.SecretList {
			if entry.Name != nil {
				names = append(names, *entry.Name)
			}
		}
	}
	return names, nil
}
