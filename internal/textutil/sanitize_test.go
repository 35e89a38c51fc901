package textutil_test

import (
	"testing"

	"showrunner/internal/textutil"
)

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Episode 12: The Return", "Episode 12- The Return"},
		{"a/b\\c", "a-b-c"},
		{"what?<>|", "what"},
		{"  padded  ", "padded"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := textutil.SanitizeFileName(tc.in); got != tc.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My Show S01E02", "my_show_s01e02"},
		{"already-safe_token", "already-safe_token"},
		{"***", "unknown"},
		{"", "unknown"},
		{"__trimmed__", "trimmed"},
	}
	for _, tc := range cases {
		if got := textutil.SanitizeToken(tc.in); got != tc.want {
			t.Fatalf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
