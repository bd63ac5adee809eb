// Package secrets provides named-secret lookup for the notifier. Values are
// read fresh on every call so operators can rotate them without a restart.
package secrets

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"

	"ops-notifier/internal/config"
)

// Store resolves a named secret to its value
type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

// VaultStore reads secrets from a single HashiCorp Vault KV v2 path
type VaultStore struct {
	client *api.Client
	path   string
}

// NewVaultStore creates a Vault-backed secret store
func NewVaultStore(cfg *config.VaultConfig) (*VaultStore, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("vault token is required")
	}

	apiConfig := api.DefaultConfig()
	apiConfig.Address = cfg.Address

	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &VaultStore{
		client: client,
		path:   fmt.Sprintf("secret/data/%s", cfg.SecretPath),
	}, nil
}

// Get reads one field from the store's KV path
func (s *VaultStore) Get(ctx context.Context, name string) (string, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", name, err)
	}

	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret path %s not found", s.path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid secret data format at %s", s.path)
	}

	value, ok := data[name].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("secret %s is missing or empty", name)
	}

	return value, nil
}

// Health checks that Vault is reachable, initialized and unsealed
func (s *VaultStore) Health(ctx context.Context) error {
	health, err := s.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if !health.Initialized {
		return fmt.Errorf("vault is not initialized")
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}
