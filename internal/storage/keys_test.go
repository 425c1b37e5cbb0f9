package storage

import (
	"strings"
	"testing"
	"time"
)

func TestImageKeys(t *testing.T) {
	ts := time.Date(2024, 6, 28, 11, 21, 46, 0, time.UTC)

	base := BaseImageKey("alice", "file123", ts)
	if base != "input/base-image/alice/file12320240628112146.jpg" {
		t.Fatalf("base key = %q", base)
	}

	mask := MaskImageKey("alice", "file456", ts)
	if !strings.HasPrefix(mask, "input/mask-image/alice/") {
		t.Fatalf("mask key = %q", mask)
	}
}

func TestResultPrefix(t *testing.T) {
	prefix := ResultPrefix("input/base-image/alice/file12320240628112146.jpg")
	if prefix != "output/file12320240628112146" {
		t.Fatalf("result prefix = %q", prefix)
	}
	if got := PayloadKey(prefix); got != "output/file12320240628112146/payload.json" {
		t.Fatalf("payload key = %q", got)
	}
}

func TestSanitizeIdentity(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "alice_b-2", want: "alice_b-2"},
		{name: "diacritics", input: "Zoë", want: "Zoe"},
		{name: "spaces_and_symbols", input: "a b/c?d", want: "abcd"},
		{name: "nothing_left", input: "🙂🙂", want: "user"},
		{name: "empty", input: "", want: "user"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeIdentity(tc.input); got != tc.want {
				t.Fatalf("SanitizeIdentity(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
