package textutil_test

import (
	"testing"

	"github.com/johnwards/hsevents/internal/textutil"
)

func TestStripTags(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"<p>Hello <b>world</b></p>", " Hello world "},
		{"a<script>alert(1)</script>b", "ab"},
		{"<style>p{}</style>Tom &amp; Jerry", "Tom & Jerry"},
		{"line<br>break", "line break"},
	}
	for _, tt := range tests {
		if got := textutil.StripTags(tt.in); got != tt.want {
			t.Errorf("StripTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeText(t *testing.T) {
	got := textutil.SanitizeText("  <h1>Go\n\tWebinar</h1>  2024 ")
	if got != "Go Webinar 2024" {
		t.Errorf("SanitizeText = %q, want %q", got, "Go Webinar 2024")
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Event Category", "eventcategory"},
		{"custom_Track-Level", "custom_track-level"},
		{"Ünïcode!", "ncode"},
	}
	for _, tt := range tests {
		if got := textutil.SanitizeKey(tt.in); got != tt.want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"custom_event_category", "custom-event-category"},
		{"Event Type", "event-type"},
		{"--a  b--", "a-b"},
	}
	for _, tt := range tests {
		if got := textutil.Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUCWords(t *testing.T) {
	if got := textutil.UCWords("custom event category"); got != "Custom Event Category" {
		t.Errorf("UCWords = %q", got)
	}
	if got := textutil.UCWords("čeština  track"); got != "Čeština  Track" {
		t.Errorf("UCWords = %q", got)
	}
}
