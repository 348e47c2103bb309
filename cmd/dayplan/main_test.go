package main

import (
	"log/slog"
	"net/http/httptest"
	"testing"
)

func TestIsPublicRoute(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		method string
		path   string
		want   bool
	}{
		"login":           {"POST", "/sessions", true},
		"login any case":  {"POST", "/SESSIONS", true},
		"refresh":         {"PUT", "/sessions/current", false},
		"list tasks":      {"GET", "/tasks", false},
		"delete sessions": {"DELETE", "/sessions", false},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if got := isPublicRoute(req); got != tc.want {
				t.Fatalf("expected %v for %s %s, got %v", tc.want, tc.method, tc.path, got)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	if parseLogLevel("debug") != slog.LevelDebug {
		t.Fatalf("expected debug level")
	}
	if parseLogLevel("WARN") != slog.LevelWarn {
		t.Fatalf("expected warn level")
	}
	if parseLogLevel("unknown") != slog.LevelInfo {
		t.Fatalf("expected info fallback")
	}
}

func TestRandomHexLength(t *testing.T) {
	t.Parallel()

	if got := randomHex(16); len(got) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(got))
	}
	if randomHex(8) == randomHex(8) {
		t.Fatalf("expected distinct values")
	}
}
