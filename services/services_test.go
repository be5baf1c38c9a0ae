package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/akinalp/callrelay/config"
	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/ws"
)

func TestAnonymousSignUpAndToken(t *testing.T) {
	participants := newMemParticipants()
	svc := NewAuthService(participants, "test-secret", 15).(*authService)
	svc.bcryptCost = bcrypt.MinCost
	ctx := context.Background()

	creds, err := svc.SignUpAnonymous(ctx, &models.AnonymousSignUpRequest{DisplayName: "  Ada  "})
	if err != nil {
		t.Fatalf("SignUpAnonymous() error = %v", err)
	}
	if creds.ParticipantID == "" || creds.Secret == "" || creds.DisplayName != "Ada" || creds.ExpiresIn != 900 {
		t.Fatalf("credentials = %+v", creds)
	}

	claims, err := svc.ValidateAccessToken(creds.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.ParticipantID != creds.ParticipantID || claims.Subject != creds.ParticipantID {
		t.Fatalf("claims = %+v", claims)
	}

	again, err := svc.IssueToken(ctx, &models.TokenRequest{ParticipantID: creds.ParticipantID, Secret: creds.Secret})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if again.Secret != "" {
		t.Fatal("IssueToken() must not echo the secret")
	}

	if _, err := svc.IssueToken(ctx, &models.TokenRequest{ParticipantID: creds.ParticipantID, Secret: "wrong"}); !errors.Is(err, pkg.ErrUnauthorized) {
		t.Fatalf("IssueToken(wrong secret) error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.IssueToken(ctx, &models.TokenRequest{ParticipantID: "ghost", Secret: "x"}); !errors.Is(err, pkg.ErrUnauthorized) {
		t.Fatalf("IssueToken(unknown) error = %v, want ErrUnauthorized", err)
	}
}

func TestValidateAccessTokenRejectsForeignSecret(t *testing.T) {
	a := NewAuthService(newMemParticipants(), "secret-a", 5).(*authService)
	b := NewAuthService(newMemParticipants(), "secret-b", 5)

	creds, err := a.credentialsFor(&models.Participant{ID: "p1"})
	if err != nil {
		t.Fatalf("credentialsFor() error = %v", err)
	}
	if _, err := b.ValidateAccessToken(creds.AccessToken); !errors.Is(err, pkg.ErrUnauthorized) {
		t.Fatalf("ValidateAccessToken() error = %v, want ErrUnauthorized", err)
	}
	if _, err := b.ValidateAccessToken("not-a-jwt"); !errors.Is(err, pkg.ErrUnauthorized) {
		t.Fatalf("ValidateAccessToken(garbage) error = %v", err)
	}
}

func TestPushTokenServiceRegisterAndRotate(t *testing.T) {
	repo := newMemTokens()
	svc := NewPushTokenService(repo)
	ctx := context.Background()

	ep, err := svc.Register(ctx, "u1", &models.RegisterPushTokenRequest{PushToken: "old", DeviceOS: "ios", BundleID: "com.app"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if ep.Platform != models.PlatformIOS || ep.OwnerID != "u1" {
		t.Fatalf("endpoint = %+v", ep)
	}

	if _, err := svc.Register(ctx, "u1", &models.RegisterPushTokenRequest{PushToken: "new", DeviceOS: "iOS", PreviousToken: "old"}); err != nil {
		t.Fatalf("Register(rotate) error = %v", err)
	}
	list, _ := svc.List(ctx, "u1")
	if len(list) != 1 || list[0].Token != "new" {
		t.Fatalf("List() = %+v, want only the rotated token", list)
	}

	if _, err := svc.Register(ctx, "u1", &models.RegisterPushTokenRequest{PushToken: "x", DeviceOS: "symbian"}); !errors.Is(err, pkg.ErrBadRequest) {
		t.Fatalf("Register(bad os) error = %v, want ErrBadRequest", err)
	}
	if err := svc.Remove(ctx, "u2", "new"); !errors.Is(err, pkg.ErrNotFound) {
		t.Fatalf("Remove(other owner) error = %v, want ErrNotFound", err)
	}
	if err := svc.Remove(ctx, "u1", "new"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
}

func TestMediaJoinToken(t *testing.T) {
	svc := NewMediaService(config.LiveKitConfig{URL: "wss://media.example", APIKey: "key", APISecret: strings.Repeat("s", 32)})

	tok, err := svc.JoinToken("p1", "Ada", &models.MediaTokenRequest{Channel: " room-1 "})
	if err != nil {
		t.Fatalf("JoinToken() error = %v", err)
	}
	if tok.Token == "" || tok.Channel != "room-1" || tok.URL != "wss://media.example" {
		t.Fatalf("JoinToken() = %+v", tok)
	}

	if _, err := svc.JoinToken("p1", "Ada", &models.MediaTokenRequest{}); !errors.Is(err, pkg.ErrBadRequest) {
		t.Fatalf("JoinToken(empty) error = %v, want ErrBadRequest", err)
	}
	unconfigured := NewMediaService(config.LiveKitConfig{})
	if _, err := unconfigured.JoinToken("p1", "", &models.MediaTokenRequest{Channel: "r"}); !errors.Is(err, pkg.ErrInternal) {
		t.Fatalf("JoinToken(unconfigured) error = %v, want ErrInternal", err)
	}
}

func TestInvitationHandshake(t *testing.T) {
	hub := newFakePublisher("alice", "bob")
	svc := NewInvitationService(hub, nil, time.Minute)
	defer svc.Close()

	inv := ws.InvitationData{CallID: "c1", ToID: "bob", Channel: "room"}
	if err := svc.Send("alice", inv); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if last := hub.last(); last.userID != "bob" || last.event.Op != ws.OpInviteReceived {
		t.Fatalf("last event = %+v, want invite_received to bob", last)
	}
	if err := svc.Send("alice", inv); !errors.Is(err, pkg.ErrAlreadyExists) {
		t.Fatalf("duplicate Send() error = %v, want ErrAlreadyExists", err)
	}

	if err := svc.Accept("alice", inv); !errors.Is(err, pkg.ErrForbidden) {
		t.Fatalf("Accept() by inviter error = %v, want ErrForbidden", err)
	}
	if err := svc.Accept("bob", inv); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	last := hub.last()
	if last.userID != "alice" || last.event.Op != ws.OpInviteAccepted {
		t.Fatalf("last event = %+v, want invite_accepted to alice", last)
	}
	if _, ok := svc.Pending("c1"); ok {
		t.Fatal("accepted invitation still pending")
	}
	if err := svc.Refuse("bob", inv); !errors.Is(err, pkg.ErrNotFound) {
		t.Fatalf("Refuse() after accept error = %v, want ErrNotFound", err)
	}
}

func TestInvitationToOfflinePeer(t *testing.T) {
	hub := newFakePublisher("alice")
	svc := NewInvitationService(hub, nil, time.Minute)
	defer svc.Close()

	err := svc.Send("alice", ws.InvitationData{CallID: "c1", ToID: "bob"})
	if !errors.Is(err, pkg.ErrBadRequest) {
		t.Fatalf("Send() error = %v, want ErrBadRequest", err)
	}
	last := hub.last()
	data, _ := last.event.Data.(ws.InvitationData)
	if last.userID != "alice" || last.event.Op != ws.OpInviteRefused || data.Reason != ws.InviteReasonOffline {
		t.Fatalf("last event = %+v, want invite_refused(offline) to alice", last)
	}
}

func TestInvitationCancelAndDisconnect(t *testing.T) {
	hub := newFakePublisher("alice", "bob", "carol")
	svc := NewInvitationService(hub, nil, time.Minute)
	defer svc.Close()

	svc.Send("alice", ws.InvitationData{CallID: "c1", ToID: "bob"})
	if err := svc.Cancel("bob", ws.InvitationData{CallID: "c1"}); !errors.Is(err, pkg.ErrForbidden) {
		t.Fatalf("Cancel() by invitee error = %v, want ErrForbidden", err)
	}
	if err := svc.Cancel("alice", ws.InvitationData{CallID: "c1"}); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if last := hub.last(); last.userID != "bob" || last.event.Op != ws.OpInviteCanceled {
		t.Fatalf("last event = %+v, want invite_canceled to bob", last)
	}

	svc.Send("carol", ws.InvitationData{CallID: "c2", ToID: "alice"})
	svc.HandleDisconnect("alice")
	last := hub.last()
	data, _ := last.event.Data.(ws.InvitationData)
	if last.userID != "carol" || last.event.Op != ws.OpInviteRefused || data.Reason != ws.InviteReasonDisconnect {
		t.Fatalf("last event = %+v, want invite_refused(disconnect) to carol", last)
	}
}

func TestInvitationTimesOut(t *testing.T) {
	hub := newFakePublisher("alice", "bob")
	svc := NewInvitationService(hub, nil, 20*time.Millisecond)
	defer svc.Close()

	svc.Send("alice", ws.InvitationData{CallID: "c1", ToID: "bob"})

	deadline := time.Now().Add(2 * time.Second)
	for hub.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.count() != 3 {
		t.Fatalf("events = %d, want received + two timeout notices", hub.count())
	}
	if _, ok := svc.Pending("c1"); ok {
		t.Fatal("timed out invitation still pending")
	}
}
