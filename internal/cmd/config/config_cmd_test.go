package config

import (
	"testing"

	internalconfig "github.com/lifedraft/vrt-cli/internal/config"
)

func TestMaskSession(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "****"},
		{"abcd1234wxyz", "abcd...wxyz"},
	}
	for _, tt := range tests {
		if got := maskSession(tt.in); got != tt.want {
			t.Errorf("maskSession(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEffectiveValues(t *testing.T) {
	cfg := &internalconfig.Config{Server: "https://borg.example.org", Session: "abcd1234wxyz"}
	got := effectiveValues(cfg, internalconfig.SessionSourceFile)

	want := map[string]any{
		"server":         "https://borg.example.org",
		"session":        "abcd...wxyz",
		"session_source": internalconfig.SessionSourceFile,
		"session_cookie": "sessionid",
		"timeout":        "1m0s",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	for _, key := range internalconfig.Keys {
		if _, ok := got[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}

	cfg.SessionCookie = "borgsession"
	cfg.Timeout = "5s"
	got = effectiveValues(cfg, internalconfig.SessionSourceFile)
	if got["session_cookie"] != "borgsession" || got["timeout"] != "5s" {
		t.Errorf("configured values not kept: %v", got)
	}
}
