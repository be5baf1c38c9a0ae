package models

import (
	"errors"
	"strings"
)

// MediaTokenRequest, POST /api/media/token body'si.
// Channel, callRequest'te taşınan oda adıdır.
type MediaTokenRequest struct {
	Channel string `json:"channel"`
}

func (r *MediaTokenRequest) Validate() error {
	r.Channel = strings.TrimSpace(r.Channel)
	if r.Channel == "" {
		return errors.New("channel is required")
	}
	if len(r.Channel) > 128 {
		return errors.New("channel must be at most 128 characters")
	}
	return nil
}

// MediaToken, LiveKit odasına katılmak için gereken bilgiler.
type MediaToken struct {
	Token   string `json:"token"`
	URL     string `json:"url"`
	Channel string `json:"channel"`
}
