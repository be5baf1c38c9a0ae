package main

import (
	"context"
	"fmt"
	"log"

	"github.com/livekit/protocol/auth"

	"github.com/akinalp/callrelay/relayclient"
)

// tokenMedia, medya odasına katılım yetkisini relay'den alan MediaEngine.
// Softphone ses taşımaz; token'ın bu katılımcı için imzalandığını doğrular ve
// odayı kaydeder.
type tokenMedia struct {
	relay *relayclient.Client
	self  string
}

func (m *tokenMedia) Join(ctx context.Context, channel string) error {
	tok, err := m.relay.MediaToken(ctx, channel)
	if err != nil {
		return fmt.Errorf("fetch media token: %w", err)
	}

	verifier, err := auth.ParseAPIToken(tok.Token)
	if err != nil {
		return fmt.Errorf("parse media token: %w", err)
	}
	if id := verifier.Identity(); id != m.self {
		return fmt.Errorf("media token issued for %q, want %q", id, m.self)
	}

	log.Printf("[media] joined %s on %s", tok.Channel, tok.URL)
	return nil
}

func (m *tokenMedia) Leave(_ context.Context, channel string) error {
	log.Printf("[media] left %s", channel)
	return nil
}
