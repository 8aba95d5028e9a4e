package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnwards/hsevents/internal/domain"
)

// LoadSettings assembles the operator settings from their individual keys,
// falling back to defaults for anything unset. The result is sanitized.
func LoadSettings(ctx context.Context, s Store) (domain.Settings, error) {
	out := domain.DefaultSettings()

	strs := []struct {
		key Key
		dst *string
	}{
		{KeyAPIToken, &out.APIToken},
		{KeyFilterKeyword, &out.FilterKeyword},
		{KeyLanguageFilter, &out.LanguageFilter},
		{KeySyncInterval, &out.SyncInterval},
		{KeyEventStatusFilter, &out.EventStatusFilter},
		{KeyImageProperty, &out.ImageProperty},
	}
	for _, f := range strs {
		v, ok, err := Load[string](ctx, s, f.key)
		if err != nil {
			return out, err
		}
		if ok {
			*f.dst = v
		}
	}

	ds, ok, err := Load[domain.DataSource](ctx, s, KeyDataSource)
	if err != nil {
		return out, err
	}
	if ok {
		out.DataSource = ds
	}

	mappings, _, err := Load[[]domain.FieldMapping](ctx, s, KeyFieldMappings)
	if err != nil {
		return out, err
	}
	out.FieldMappings = mappings

	out.Sanitize()
	return out, nil
}

// SaveSettings sanitizes and persists settings. An empty token leaves the
// stored token untouched.
func SaveSettings(ctx context.Context, s Store, in domain.Settings) (domain.Settings, error) {
	in.Sanitize()

	if tok := strings.TrimSpace(in.APIToken); tok != "" {
		if err := Save(ctx, s, KeyAPIToken, tok); err != nil {
			return in, err
		}
	}

	writes := []struct {
		key Key
		val any
	}{
		{KeyDataSource, in.DataSource},
		{KeyFilterKeyword, in.FilterKeyword},
		{KeyLanguageFilter, in.LanguageFilter},
		{KeySyncInterval, in.SyncInterval},
		{KeyEventStatusFilter, in.EventStatusFilter},
		{KeyImageProperty, in.ImageProperty},
		{KeyFieldMappings, in.FieldMappings},
	}
	for _, w := range writes {
		if err := Save(ctx, s, w.key, w.val); err != nil {
			return in, fmt.Errorf("save settings: %w", err)
		}
	}

	return LoadSettings(ctx, s)
}

// TokenSource resolves the HubSpot API token: the stored setting first,
// then the configured fallback.
type TokenSource struct {
	Store    Store
	Fallback string
}

// Token returns the active token, or "" when none is configured.
func (t TokenSource) Token(ctx context.Context) (string, error) {
	if t.Store != nil {
		v, ok, err := Load[string](ctx, t.Store, KeyAPIToken)
		if err != nil {
			return "", err
		}
		if ok && v != "" {
			return v, nil
		}
	}
	return t.Fallback, nil
}
