package report

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Open page", "Open page"},
		{"quote", `say "hi"`, `say \"hi\"`},
		{"backslash", `C:\temp`, `C:\\temp`},
		{"newline and tab", "a\nb\tc", `a\nb\tc`},
		{"control", "a\x01b", `a\x01b`},
		{"unicode kept", "Grüße ✓", "Grüße ✓"},
		{"line separator", "a\u2028b", `a\u2028b`},
		{"empty", "", ""},
		{"invalid utf-8", "a\xffb", "a\uFFFDb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Escape(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEscape_RoundTrip(t *testing.T) {
	inputs := []string{"", "simple", "multi\nline\r\n", `quote " and \ backslash`, "bell\a", "tab\there", "emoji 🚀"}

	for _, in := range inputs {
		got, err := Unescape(Escape(in))
		if err != nil {
			t.Fatalf("unescape %q: %v", in, err)
		}
		if got != in {
			t.Errorf("expected round trip of %q, got %q", in, got)
		}
	}
}

func TestEscape_ValidYAMLDoubleQuoted(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"multi\nline", "multi\nline"},
		{`quote " and \ backslash`, `quote " and \ backslash`},
		{"ctrl\x1b[0m", "ctrl\x1b[0m"},
		{"Grüße", "Grüße"},
		{"a\xffb", "a\uFFFDb"},
	}

	for _, tt := range tests {
		doc := `"key": "` + Escape(tt.in) + `"`
		var parsed map[string]string
		if err := yaml.Unmarshal([]byte(doc), &parsed); err != nil {
			t.Fatalf("parse %q: %v", doc, err)
		}
		if parsed["key"] != tt.want {
			t.Errorf("expected %q, got %q", tt.want, parsed["key"])
		}
	}
}

func TestUnescape_Invalid(t *testing.T) {
	if _, err := Unescape(`dangling \`); err == nil {
		t.Error("expected error for dangling backslash")
	}
}
