package configutil

import "testing"

type wsSettings struct {
	URL              string `mapstructure:"url"`
	HandshakeTimeout int    `mapstructure:"handshake_timeout_ms"`
}

func TestDecodeSettings(t *testing.T) {
	var out wsSettings
	err := DecodeSettings(map[string]any{
		"url":                  "ws://localhost:9000",
		"handshake_timeout_ms": "2500",
	}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.URL != "ws://localhost:9000" {
		t.Fatalf("url = %q", out.URL)
	}
	// Weakly typed input coerces the string to an int.
	if out.HandshakeTimeout != 2500 {
		t.Fatalf("timeout = %d", out.HandshakeTimeout)
	}
}

func TestDecodeSettingsEmptyInput(t *testing.T) {
	out := wsSettings{URL: "keep"}
	if err := DecodeSettings(nil, &out); err != nil {
		t.Fatalf("decode nil: %v", err)
	}
	if out.URL != "keep" {
		t.Fatalf("empty input must not touch the target")
	}
}

func TestRequireString(t *testing.T) {
	if err := RequireString("", "transports.provider"); err == nil {
		t.Fatalf("expected error for empty value")
	}
	if err := RequireString("ws", "transports.provider"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
