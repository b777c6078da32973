// Package factory links every storage backend into the store registry and
// opens the one selected by configuration.
package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/loykin/braindump/internal/store"
	_ "github.com/loykin/braindump/internal/store/memory"
	_ "github.com/loykin/braindump/internal/store/postgres"
	_ "github.com/loykin/braindump/internal/store/rest"
	_ "github.com/loykin/braindump/internal/store/sqlite"
)

// New opens the backend named by cfg.Type (default "postgres").
// Backends that own a schema get it created when ensureSchema is set. When
// that fails because storage is unreachable, the open store is returned
// together with the error so callers can start degraded.
func New(ctx context.Context, cfg store.Config, ensureSchema bool) (store.Store, error) {
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Type == "" {
		cfg.Type = "postgres"
	}
	s, err := store.CreateStore(cfg)
	if err != nil {
		return nil, err
	}
	if !ensureSchema {
		return s, nil
	}
	if se, ok := s.(store.SchemaEnsurer); ok {
		if err := se.EnsureSchema(ctx); err != nil {
			if store.IsUnavailable(err) {
				return s, fmt.Errorf("ensure %s schema: %w", cfg.Type, err)
			}
			_ = s.Close()
			return nil, fmt.Errorf("ensure %s schema: %w", cfg.Type, err)
		}
	}
	return s, nil
}

// Types lists registered backend names.
func Types() []string { return store.SupportedTypes() }
