package main

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWSURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "http://localhost:9090", want: "ws://localhost:9090/ws"},
		{in: "https://relay.example.com/base/", want: "wss://relay.example.com/base/ws"},
		{in: "ftp://relay", wantErr: true},
	}
	for _, tt := range tests {
		got, err := wsURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("wsURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("wsURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadConfigFlags(t *testing.T) {
	t.Setenv("SOFTPHONE_NAME", "Env Name")

	cfg, err := loadConfig([]string{"-relay", "https://relay.test", "-call", "u2", "-ring-timeout", "5s", "-auto-answer"})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.DisplayName != "Env Name" || cfg.Callee != "u2" || cfg.RingTimeout != 5*time.Second || !cfg.AutoAnswer {
		t.Fatalf("config = %+v", cfg)
	}

	if _, err := loadConfig([]string{"-relay", "https://relay.test", "-ring-timeout", "0s"}); err == nil {
		t.Fatal("loadConfig() with zero ring timeout succeeded")
	}
}

func TestCredsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")

	if _, err := readCreds(path); err == nil {
		t.Fatal("readCreds() on missing file succeeded")
	}
	want := storedCreds{ParticipantID: "p1", Secret: "s", DisplayName: "Ada"}
	if err := writeCreds(path, want); err != nil {
		t.Fatalf("writeCreds() error = %v", err)
	}
	got, err := readCreds(path)
	if err != nil {
		t.Fatalf("readCreds() error = %v", err)
	}
	if *got != want {
		t.Fatalf("readCreds() = %+v, want %+v", *got, want)
	}
}
