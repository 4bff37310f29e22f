package format

import (
	"io"
	"log/slog"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParse(t *testing.T) {
	if f, err := Parse(" Monologue "); err != nil || f != Monologue {
		t.Fatalf("expected monologue, got %q (%v)", f, err)
	}
	if f, err := Parse(""); err != nil || f != Conversation {
		t.Fatalf("expected conversation default, got %q (%v)", f, err)
	}
	if _, err := Parse("interview"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestMonologueCleanConvertsDialogueTags(t *testing.T) {
	tmpl, err := ForFormat(Monologue, newLogger())
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	got := tmpl.Clean("<Person1>Hello (softly) there.</Person1>\n<Person2>[pause] More.</Person2>")
	want := "<Speaker>Hello there. More.</Speaker>"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestValidateParams(t *testing.T) {
	params := map[string]string{
		"conversation_style":    "engaging",
		"dialogue_structure":    "intro, discussion",
		"engagement_techniques": "humor",
		"podcast_name":          "Loqa",
	}
	if err := ValidateParams(params); err == nil {
		t.Fatal("expected missing tagline error")
	}
	params["podcast_tagline"] = "voices everywhere"
	if err := ValidateParams(params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
