package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/pkg/ratelimit"
)

type stubSignaling struct {
	calls []string
	actor string
	err   error
}

func (s *stubSignaling) summary(rpc string, actor string, kind models.EventKind) (*models.DispatchSummary, error) {
	s.calls = append(s.calls, rpc)
	s.actor = actor
	if s.err != nil {
		return nil, s.err
	}
	return &models.DispatchSummary{CallID: "c1", Kind: kind, Targets: 2, Accepted: 2}, nil
}

func (s *stubSignaling) CallRequest(_ context.Context, actor string, _ *models.CallRequest) (*models.DispatchSummary, error) {
	return s.summary("request", actor, models.KindIncoming)
}

func (s *stubSignaling) CallAccepted(_ context.Context, actor string, _ *models.CallAcceptedRequest) (*models.DispatchSummary, error) {
	return s.summary("accepted", actor, models.KindAccepted)
}

func (s *stubSignaling) EndCall(_ context.Context, actor string, _ *models.EndCallRequest) (*models.DispatchSummary, error) {
	return s.summary("end", actor, models.KindEnded)
}

func (s *stubSignaling) Deliveries(_ context.Context, actor, callID string) ([]models.PushLogEntry, error) {
	if actor != "u1" {
		return nil, fmt.Errorf("%w: not a participant", pkg.ErrForbidden)
	}
	return []models.PushLogEntry{{CallID: callID, OwnerID: "u2", Accepted: true}}, nil
}

func (s *stubSignaling) Close() {}

func authed(r *http.Request, participantID string) *http.Request {
	claims := &models.TokenClaims{ParticipantID: participantID, DisplayName: "Ada"}
	return r.WithContext(context.WithValue(r.Context(), UserContextKey, claims))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) pkg.APIResponse {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return pkg.APIResponse{Success: env.Success, Error: env.Error}
}

func newMux(h *CallHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/calls/request", h.Request)
	mux.HandleFunc("POST /api/calls/accepted", h.Accepted)
	mux.HandleFunc("POST /api/calls/end", h.End)
	mux.HandleFunc("POST /api/rpc/{name}", h.RPC)
	mux.HandleFunc("GET /api/calls/{callId}/deliveries", h.Deliveries)
	return mux
}

func TestCallRoutesReachSignaling(t *testing.T) {
	sig := &stubSignaling{}
	mux := newMux(NewCallHandler(sig, nil))

	tests := []struct {
		path string
		want string
	}{
		{"/api/calls/request", "request"},
		{"/api/calls/accepted", "accepted"},
		{"/api/calls/end", "end"},
		{"/api/rpc/callRequest", "request"},
		{"/api/rpc/callAcceptedRequest", "accepted"},
		{"/api/rpc/endCallRequest", "end"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := authed(httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(`{"callId":"c1"}`)), "u1")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
			}
			var sum models.DispatchSummary
			if env := decodeEnvelope(t, rec, &sum); !env.Success || sum.Targets != 2 {
				t.Fatalf("response = %+v %+v", env, sum)
			}
			if got := sig.calls[len(sig.calls)-1]; got != tt.want || sig.actor != "u1" {
				t.Fatalf("dispatched %s by %s, want %s by u1", got, sig.actor, tt.want)
			}
		})
	}
}

func TestUnknownRPCName(t *testing.T) {
	mux := newMux(NewCallHandler(&stubSignaling{}, nil))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/rpc/getRtcToken", strings.NewReader(`{}`)), "u1"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCallHandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		authed bool
		want   int
	}{
		{"no claims", `{}`, nil, false, http.StatusUnauthorized},
		{"broken json", `{`, nil, true, http.StatusBadRequest},
		{"empty body", ``, nil, true, http.StatusBadRequest},
		{"validation", `{}`, fmt.Errorf("%w: missing required field(s): [callId]", pkg.ErrBadRequest), true, http.StatusBadRequest},
		{"impersonation", `{}`, fmt.Errorf("%w: only the caller", pkg.ErrForbidden), true, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(NewCallHandler(&stubSignaling{err: tt.err}, nil))
			req := httptest.NewRequest(http.MethodPost, "/api/calls/request", strings.NewReader(tt.body))
			if tt.authed {
				req = authed(req, "u1")
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if env := decodeEnvelope(t, rec, nil); env.Success || env.Error == "" {
				t.Fatalf("envelope = %+v, want failure with message", env)
			}
		})
	}
}

func TestCallRequestRateLimit(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute, 0)
	defer limiter.Close()
	mux := newMux(NewCallHandler(&stubSignaling{}, limiter))

	post := func(participant string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/calls/request", strings.NewReader(`{}`)), participant))
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := post("u1"); rec.Code != http.StatusOK {
			t.Fatalf("request #%d status = %d, want 200", i, rec.Code)
		}
	}
	rec := post("u1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
	if rec := post("u2"); rec.Code != http.StatusOK {
		t.Fatalf("other participant status = %d, want 200", rec.Code)
	}

	// accepted/end limit dışında.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/calls/end", strings.NewReader(`{}`)), "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d, want 200", rec.Code)
	}
}

func TestDeliveries(t *testing.T) {
	mux := newMux(NewCallHandler(&stubSignaling{}, nil))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/calls/c9/deliveries", nil), "u1"))
	var entries []models.PushLogEntry
	decodeEnvelope(t, rec, &entries)
	if rec.Code != http.StatusOK || len(entries) != 1 || entries[0].CallID != "c9" {
		t.Fatalf("status = %d entries = %+v", rec.Code, entries)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/calls/c9/deliveries", nil), "u3"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger status = %d, want 403", rec.Code)
	}
}

type stubAuth struct{}

func (stubAuth) SignUpAnonymous(_ context.Context, req *models.AnonymousSignUpRequest) (*models.Credentials, error) {
	return &models.Credentials{ParticipantID: "p1", DisplayName: req.DisplayName, Secret: "s", AccessToken: "t"}, nil
}

func (stubAuth) IssueToken(_ context.Context, req *models.TokenRequest) (*models.Credentials, error) {
	if req.Secret != "s" {
		return nil, fmt.Errorf("%w: invalid participant or secret", pkg.ErrUnauthorized)
	}
	return &models.Credentials{ParticipantID: req.ParticipantID, AccessToken: "t"}, nil
}

func (stubAuth) ValidateAccessToken(string) (*models.TokenClaims, error) {
	return nil, pkg.ErrUnauthorized
}

func TestAuthHandlers(t *testing.T) {
	limiter := ratelimit.New(3, time.Minute, time.Minute)
	defer limiter.Close()
	h := NewAuthHandler(stubAuth{}, limiter)

	rec := httptest.NewRecorder()
	h.SignUpAnonymous(rec, httptest.NewRequest(http.MethodPost, "/api/auth/anonymous", strings.NewReader(`{"displayName":"Ada"}`)))
	var creds models.Credentials
	decodeEnvelope(t, rec, &creds)
	if rec.Code != http.StatusCreated || creds.Secret != "s" || creds.DisplayName != "Ada" {
		t.Fatalf("signup = %d %+v", rec.Code, creds)
	}

	for i := 0; i < 2; i++ {
		rec = httptest.NewRecorder()
		h.IssueToken(rec, httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(`{"participantId":"p1","secret":"x"}`)))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("wrong secret status = %d, want 401", rec.Code)
		}
	}
	rec = httptest.NewRecorder()
	h.IssueToken(rec, httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(`{"participantId":"p1","secret":"x"}`)))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("fourth attempt status = %d, want 429", rec.Code)
	}
}

func TestMeReadsClaims(t *testing.T) {
	h := NewAuthHandler(stubAuth{}, nil)

	rec := httptest.NewRecorder()
	h.Me(rec, authed(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), "p1"))
	var me map[string]string
	decodeEnvelope(t, rec, &me)
	if me["participantId"] != "p1" || me["displayName"] != "Ada" {
		t.Fatalf("me = %v", me)
	}

	rec = httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
