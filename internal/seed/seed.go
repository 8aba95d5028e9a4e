// Package seed prepares a fresh installation: default settings and the core
// taxonomies.
package seed

import (
	"context"
	"fmt"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/state"
)

// Registrar ensures taxonomies exist.
type Registrar interface {
	RegisterAll(ctx context.Context) error
}

// Seed is idempotent. Settings are written only when none were saved
// before; existing values are left untouched.
func Seed(ctx context.Context, st state.Store, taxonomies Registrar) error {
	if err := Settings(ctx, st); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	if err := taxonomies.RegisterAll(ctx); err != nil {
		return fmt.Errorf("seed taxonomies: %w", err)
	}
	return nil
}

// Settings persists the default settings if the store has none.
func Settings(ctx context.Context, st state.Store) error {
	_, ok, err := state.Load[string](ctx, st, state.KeySyncInterval)
	if err != nil || ok {
		return err
	}
	_, err = state.SaveSettings(ctx, st, domain.DefaultSettings())
	return err
}
