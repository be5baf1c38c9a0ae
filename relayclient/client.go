// Package relayclient, cihaz tarafının relay HTTP API'sine erişimi.
//
// Client, callcenter.Relay arayüzünü karşılar; ayrıca anonim kimlik, push
// token kaydı ve medya token'ı için yardımcı çağrılar sunar. Tüm yanıtlar
// relay'in {success, data, error} zarfından açılır, hata status'ları pkg
// sentinel error'larına geri çevrilir.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
)

const maxResponseBytes = 1 << 20

// Error, relay'in döndüğü başarısız yanıt. errors.Is ile pkg sentinel'ine
// (ErrBadRequest, ErrForbidden ...) eşleşir.
type Error struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return pkg.ErrBadRequest
	case http.StatusUnauthorized:
		return pkg.ErrUnauthorized
	case http.StatusForbidden:
		return pkg.ErrForbidden
	case http.StatusNotFound:
		return pkg.ErrNotFound
	case http.StatusConflict:
		return pkg.ErrAlreadyExists
	case http.StatusTooManyRequests:
		return pkg.ErrTooManyRequests
	default:
		return pkg.ErrInternal
	}
}

// Client, tek bir katılımcı adına relay'e konuşur. Eşzamanlı kullanıma uygundur.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New, baseURL (ör. https://relay.example.com) için client oluşturur.
// httpClient nil ise 15 saniye timeout'lu bir client kullanılır.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SetToken, sonraki isteklerde kullanılacak access token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token, o anki access token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL, relay adresi.
func (c *Client) BaseURL() string { return c.baseURL }

// ─── Kimlik ───

// SignUpAnonymous, yeni anonim katılımcı kaydeder ve dönen access token'ı saklar.
// Dönen Secret'ı çağıran kalıcı olarak saklamalıdır.
func (c *Client) SignUpAnonymous(ctx context.Context, displayName string) (*models.Credentials, error) {
	var creds models.Credentials
	if err := c.do(ctx, http.MethodPost, "/api/auth/anonymous", &models.AnonymousSignUpRequest{DisplayName: displayName}, &creds); err != nil {
		return nil, err
	}
	c.SetToken(creds.AccessToken)
	return &creds, nil
}

// IssueToken, kayıtlı katılımcı için yeni access token alır ve saklar.
func (c *Client) IssueToken(ctx context.Context, participantID, secret string) (*models.Credentials, error) {
	var creds models.Credentials
	req := &models.TokenRequest{ParticipantID: participantID, Secret: secret}
	if err := c.do(ctx, http.MethodPost, "/api/auth/token", req, &creds); err != nil {
		return nil, err
	}
	c.SetToken(creds.AccessToken)
	return &creds, nil
}

// ─── Push token ───

func (c *Client) RegisterPushToken(ctx context.Context, req *models.RegisterPushTokenRequest) (*models.PushEndpoint, error) {
	var ep models.PushEndpoint
	if err := c.do(ctx, http.MethodPost, "/api/push-tokens", req, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

func (c *Client) ListPushTokens(ctx context.Context) ([]models.PushEndpoint, error) {
	var eps []models.PushEndpoint
	if err := c.do(ctx, http.MethodGet, "/api/push-tokens", nil, &eps); err != nil {
		return nil, err
	}
	return eps, nil
}

func (c *Client) RemovePushToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/api/push-tokens/"+url.PathEscape(token), nil, nil)
}

// ─── Signaling ───

func (c *Client) CallRequest(ctx context.Context, req *models.CallRequest) (*models.DispatchSummary, error) {
	return c.dispatch(ctx, "/api/calls/request", req)
}

func (c *Client) CallAccepted(ctx context.Context, req *models.CallAcceptedRequest) (*models.DispatchSummary, error) {
	return c.dispatch(ctx, "/api/calls/accepted", req)
}

func (c *Client) EndCall(ctx context.Context, req *models.EndCallRequest) (*models.DispatchSummary, error) {
	return c.dispatch(ctx, "/api/calls/end", req)
}

// Deliveries, çağrının dispatch denemeleri (push log).
func (c *Client) Deliveries(ctx context.Context, callID string) ([]models.PushLogEntry, error) {
	var entries []models.PushLogEntry
	if err := c.do(ctx, http.MethodGet, "/api/calls/"+url.PathEscape(callID)+"/deliveries", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) dispatch(ctx context.Context, path string, body any) (*models.DispatchSummary, error) {
	var summary models.DispatchSummary
	if err := c.do(ctx, http.MethodPost, path, body, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ─── Medya ───

// MediaToken, channel için LiveKit katılım bilgisi.
func (c *Client) MediaToken(ctx context.Context, channel string) (*models.MediaToken, error) {
	var tok models.MediaToken
	if err := c.do(ctx, http.MethodPost, "/api/media/token", &models.MediaTokenRequest{Channel: channel}, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// ─── Transport ───

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env)

	if resp.StatusCode >= 300 || (decodeErr == nil && !env.Success) {
		relayErr := &Error{Status: resp.StatusCode, Message: env.Error}
		if relayErr.Message == "" {
			relayErr.Message = http.StatusText(resp.StatusCode)
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			relayErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return relayErr
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: decode %s response: %v", pkg.ErrInternal, path, decodeErr)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode %s data: %v", pkg.ErrInternal, path, err)
	}
	return nil
}
