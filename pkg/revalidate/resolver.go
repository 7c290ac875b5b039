package revalidate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

const resolverLogPrefix = "revalidate:resolver"

// Stored-configuration keys read by the resolver.
const (
	SettingBaseURL = "base_url"
	SettingSecret  = "secret"
)

// Source yields a candidate value for one endpoint field. Empty string
// means the source has nothing; errors are logged and treated as empty
// so resolution never fails a dispatch.
type Source func(ctx context.Context) (string, error)

// StaticSource returns a fixed value (deployment-level override).
func StaticSource(value string) Source {
	return func(context.Context) (string, error) {
		return value, nil
	}
}

// EnvSource reads an environment variable at resolution time.
func EnvSource(key string) Source {
	return func(context.Context) (string, error) {
		return os.Getenv(key), nil
	}
}

// SettingsStore is the stored-configuration backend (a key-value
// mapping; the db package provides the Postgres implementation).
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// StoredSource reads a key from a SettingsStore.
func StoredSource(store SettingsStore, key string) Source {
	return func(ctx context.Context) (string, error) {
		if store == nil {
			return "", nil
		}
		return store.GetSetting(ctx, key)
	}
}

// Resolver resolves the frontend endpoint from ordered source lists,
// one list per field, first non-empty wins. The URL and secret resolve
// independently: one may come from an override while the other comes
// from stored configuration.
type Resolver struct {
	urlSources    []Source
	secretSources []Source
}

// NewResolver builds a Resolver. Override values, when non-empty, take
// precedence over the settings store for their field.
func NewResolver(urlOverride, secretOverride string, store SettingsStore) *Resolver {
	return &Resolver{
		urlSources: []Source{
			StaticSource(urlOverride),
			StoredSource(store, SettingBaseURL),
		},
		secretSources: []Source{
			StaticSource(secretOverride),
			StoredSource(store, SettingSecret),
		},
	}
}

// NewResolverFromSources builds a Resolver with explicit source chains.
func NewResolverFromSources(urlSources, secretSources []Source) *Resolver {
	return &Resolver{urlSources: urlSources, secretSources: secretSources}
}

// Resolve produces the current endpoint configuration. It is called
// fresh per dispatch so stored-configuration edits take effect without a
// restart. Missing values are represented as empty fields, never as an
// error.
func (r *Resolver) Resolve(ctx context.Context) EndpointConfig {
	return EndpointConfig{
		BaseURL: FirstNonEmpty(ctx, r.urlSources),
		Secret:  FirstNonEmpty(ctx, r.secretSources),
	}
}

// FirstNonEmpty walks a source chain and returns the first non-empty
// value. Source errors are logged and skipped.
func FirstNonEmpty(ctx context.Context, sources []Source) string {
	for _, src := range sources {
		v, err := src(ctx)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - source failed: %v", resolverLogPrefix, err))
			continue
		}
		if v != "" {
			return v
		}
	}
	return ""
}
