package state_test

import (
	"context"
	"testing"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/state"
	"github.com/johnwards/hsevents/internal/testhelpers"
)

func TestLoadSettingsDefaults(t *testing.T) {
	st := testhelpers.NewTestState(t)

	s, err := state.LoadSettings(context.Background(), st)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.DataSource != domain.SourceLandingPages {
		t.Errorf("DataSource = %q, want %q", s.DataSource, domain.SourceLandingPages)
	}
	if s.FilterKeyword != "webinar" {
		t.Errorf("FilterKeyword = %q, want %q", s.FilterKeyword, "webinar")
	}
	if s.SyncInterval != domain.IntervalHourly {
		t.Errorf("SyncInterval = %q, want %q", s.SyncInterval, domain.IntervalHourly)
	}
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	st := testhelpers.NewTestState(t)
	ctx := context.Background()

	in := domain.Settings{
		APIToken:          "pat-123",
		DataSource:        domain.SourceMarketingEvents,
		FilterKeyword:     "",
		LanguageFilter:    "pl,en",
		SyncInterval:      domain.IntervalDaily,
		EventStatusFilter: domain.StatusFilterUpcoming,
		ImageProperty:     "banner",
		FieldMappings:     []domain.FieldMapping{{HubSpot: "eventName", Local: "excerpt"}},
	}
	got, err := state.SaveSettings(ctx, st, in)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if got.APIToken != "pat-123" {
		t.Errorf("APIToken = %q", got.APIToken)
	}
	if got.DataSource != domain.SourceMarketingEvents {
		t.Errorf("DataSource = %q", got.DataSource)
	}
	if got.FilterKeyword != "" {
		t.Errorf("FilterKeyword = %q, want empty", got.FilterKeyword)
	}
	if len(got.FieldMappings) != 1 || got.FieldMappings[0].Local != "excerpt" {
		t.Errorf("FieldMappings = %+v", got.FieldMappings)
	}

	// An empty token keeps the stored one.
	in.APIToken = ""
	got, err = state.SaveSettings(ctx, st, in)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if got.APIToken != "pat-123" {
		t.Errorf("APIToken after blank save = %q, want pat-123", got.APIToken)
	}
}

func TestTokenSourceFallback(t *testing.T) {
	st := testhelpers.NewTestState(t)
	ctx := context.Background()

	ts := state.TokenSource{Store: st, Fallback: "from-config"}
	tok, err := ts.Token(ctx)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "from-config" {
		t.Errorf("Token() = %q, want from-config", tok)
	}

	if err := state.Save(ctx, st, state.KeyAPIToken, "from-settings"); err != nil {
		t.Fatalf("save: %v", err)
	}
	tok, _ = ts.Token(ctx)
	if tok != "from-settings" {
		t.Errorf("Token() = %q, want from-settings", tok)
	}
}
