// Package credentials keeps generation provider API keys in the database so
// they can be rotated without redeploying.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"edugen/internal/infra"
	"edugen/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var ErrUnknownProvider = errors.New("credentials: unknown provider")

// Known reports whether provider names a supported generation backend.
func Known(provider string) bool {
	return provider == ProviderGemini || provider == ProviderOpenAI
}

// Key is a stored provider key.
type Key struct {
	Provider  string
	APIKey    string
	Source    string
	UpdatedAt time.Time
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// EnsureSchema creates the provider_keys table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QCreateProviderKeysTable); err != nil {
		return fmt.Errorf("credentials: ensure schema: %w", err)
	}
	return nil
}

// Lookup returns the stored key for provider. ok is false when none is
// stored.
func (s *Store) Lookup(ctx context.Context, provider string) (key Key, ok bool, err error) {
	key.Provider = provider
	err = s.sql.QueryRow(ctx, sqlinline.QSelectProviderKey, provider).Scan(&key.APIKey, &key.Source, &key.UpdatedAt)
	switch {
	case infra.IsNoRows(err):
		return Key{}, false, nil
	case err != nil:
		return Key{}, false, fmt.Errorf("credentials: lookup %s: %w", provider, err)
	}
	key.APIKey = strings.TrimSpace(key.APIKey)
	return key, key.APIKey != "", nil
}

// Token returns the stored API key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	key, _, err := s.Lookup(ctx, provider)
	return key.APIKey, err
}

// Set stores apiKey for provider, replacing any previous value. source
// records who wrote it.
func (s *Store) Set(ctx context.Context, provider, apiKey, source string) error {
	if !Known(provider) {
		return fmt.Errorf("%w %q", ErrUnknownProvider, provider)
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("credentials: %s api key is required", provider)
	}
	if source == "" {
		source = "cli"
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertProviderKey, provider, apiKey, source); err != nil {
		return fmt.Errorf("credentials: store %s: %w", provider, err)
	}
	return nil
}
