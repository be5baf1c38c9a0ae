package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/pkg/metrics"
)

func newTestSignaling(t *testing.T, tokens *memTokens, sender *recordingSender, log *memPushLog) SignalingService {
	t.Helper()
	if log == nil {
		log = &memPushLog{}
	}
	svc := NewSignalingService(tokens, log, sender, metrics.New("test"), SignalingConfig{
		DispatchTimeout: time.Second,
		DedupWindow:     time.Minute,
	})
	t.Cleanup(svc.Close)
	return svc
}

func twoDeviceRegistry() *memTokens {
	return newMemTokens(
		models.PushEndpoint{OwnerID: "caller", Token: "caller-phone", Platform: models.PlatformIOS},
		models.PushEndpoint{OwnerID: "callee", Token: "callee-phone", Platform: models.PlatformIOS},
		models.PushEndpoint{OwnerID: "callee", Token: "callee-tablet", Platform: models.PlatformAndroid},
	)
}

func callReq() *models.CallRequest {
	return &models.CallRequest{
		CallID: "call-1", CallerID: "caller", CalleeID: "callee",
		CallerName: "Ada", Channel: "room", BundleID: "com.app",
	}
}

func TestCallRequestFansOutToEveryCalleeEndpoint(t *testing.T) {
	sender := &recordingSender{reject: map[string]string{"callee-tablet": "NotRegistered"}}
	plog := &memPushLog{}
	svc := newTestSignaling(t, twoDeviceRegistry(), sender, plog)

	sum, err := svc.CallRequest(context.Background(), "caller", callReq())
	if err != nil {
		t.Fatalf("CallRequest() error = %v", err)
	}
	if sum.Targets != 2 || sum.Accepted != 1 || sum.Rejected != 1 {
		t.Fatalf("summary = %+v, want 2 targets, 1 accepted, 1 rejected", sum)
	}

	got := sender.tokens()
	if got["callee-phone"] != models.KindIncoming || got["callee-tablet"] != models.KindIncoming {
		t.Fatalf("sent = %v, want Incoming to both callee devices", got)
	}
	if _, ok := got["caller-phone"]; ok {
		t.Fatal("caller must not receive its own Incoming")
	}
	if len(plog.entries) != 2 {
		t.Fatalf("push log entries = %d, want 2", len(plog.entries))
	}
}

func TestCallRequestZeroEndpointsIsNotAnError(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestSignaling(t, newMemTokens(), sender, nil)

	sum, err := svc.CallRequest(context.Background(), "caller", callReq())
	if err != nil {
		t.Fatalf("CallRequest() error = %v", err)
	}
	if sum.Targets != 0 || len(sender.sent) != 0 {
		t.Fatalf("summary = %+v, sent = %d, want nothing dispatched", sum, len(sender.sent))
	}
}

func TestCallRequestValidation(t *testing.T) {
	svc := newTestSignaling(t, twoDeviceRegistry(), &recordingSender{}, nil)

	tests := []struct {
		name    string
		actor   string
		mutate  func(r *models.CallRequest)
		wantErr error
	}{
		{"missing channel", "caller", func(r *models.CallRequest) { r.Channel = "" }, pkg.ErrBadRequest},
		{"self call", "caller", func(r *models.CallRequest) { r.CalleeID = "caller" }, pkg.ErrBadRequest},
		{"impersonation", "mallory", func(r *models.CallRequest) {}, pkg.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := callReq()
			tt.mutate(req)
			if _, err := svc.CallRequest(context.Background(), tt.actor, req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("CallRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDuplicateCallRequestIsSuppressed(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestSignaling(t, twoDeviceRegistry(), sender, nil)

	first, err := svc.CallRequest(context.Background(), "caller", callReq())
	if err != nil {
		t.Fatalf("CallRequest() error = %v", err)
	}
	second, err := svc.CallRequest(context.Background(), "caller", callReq())
	if err != nil {
		t.Fatalf("duplicate CallRequest() error = %v", err)
	}
	if !second.Duplicate || second.Accepted != first.Accepted {
		t.Fatalf("duplicate summary = %+v, want Duplicate with first result", second)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sent = %d, want 2 (no re-dispatch)", len(sender.sent))
	}
}

func TestCallAcceptedReachesCallerAndOtherCalleeDevices(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestSignaling(t, twoDeviceRegistry(), sender, nil)

	req := &models.CallAcceptedRequest{CallID: "call-1", CallerID: "caller", CalleeID: "callee", Channel: "room", BundleID: "com.app"}
	if _, err := svc.CallAccepted(context.Background(), "caller", req); !errors.Is(err, pkg.ErrForbidden) {
		t.Fatalf("CallAccepted() by caller error = %v, want ErrForbidden", err)
	}

	sum, err := svc.CallAccepted(context.Background(), "callee", req)
	if err != nil {
		t.Fatalf("CallAccepted() error = %v", err)
	}
	if sum.Targets != 3 {
		t.Fatalf("targets = %d, want 3", sum.Targets)
	}
	for tok, kind := range sender.tokens() {
		if kind != models.KindAccepted {
			t.Fatalf("%s got %s, want ACCEPTED", tok, kind)
		}
	}
}

func TestEndCallNotifiesBothSides(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestSignaling(t, twoDeviceRegistry(), sender, nil)

	req := &models.EndCallRequest{CallID: "call-1", CallerID: "caller", CalleeID: "callee", BundleID: "com.app", Reason: models.ReasonCancelled}
	if _, err := svc.EndCall(context.Background(), "stranger", req); !errors.Is(err, pkg.ErrForbidden) {
		t.Fatalf("EndCall() by stranger error = %v, want ErrForbidden", err)
	}

	sum, err := svc.EndCall(context.Background(), "caller", req)
	if err != nil {
		t.Fatalf("EndCall() error = %v", err)
	}
	if sum.Kind != models.KindEnded || sum.Targets != 3 || sum.Accepted != 3 {
		t.Fatalf("summary = %+v", sum)
	}
	for _, s := range sender.sent {
		if s.event.Reason != models.ReasonCancelled {
			t.Fatalf("reason = %q, want CANCELLED", s.event.Reason)
		}
	}
}

func TestEndCallWithoutCallIDIsNeverDeduplicated(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestSignaling(t, twoDeviceRegistry(), sender, nil)

	req := &models.EndCallRequest{CallerID: "caller", CalleeID: "callee", BundleID: "com.app"}
	for i := 0; i < 2; i++ {
		sum, err := svc.EndCall(context.Background(), "callee", req)
		if err != nil {
			t.Fatalf("EndCall() error = %v", err)
		}
		if sum.Duplicate {
			t.Fatal("callId-less request reported as duplicate")
		}
	}
	if len(sender.sent) != 6 {
		t.Fatalf("sent = %d, want 6", len(sender.sent))
	}
}

func TestRegistryFailureReleasesDedupSlot(t *testing.T) {
	tokens := twoDeviceRegistry()
	tokens.listErr = errors.New("registry down")
	sender := &recordingSender{}
	svc := newTestSignaling(t, tokens, sender, nil)

	if _, err := svc.CallRequest(context.Background(), "caller", callReq()); err == nil {
		t.Fatal("CallRequest() error = nil, want registry error")
	}

	tokens.mu.Lock()
	tokens.listErr = nil
	tokens.mu.Unlock()

	sum, err := svc.CallRequest(context.Background(), "caller", callReq())
	if err != nil || sum.Duplicate || sum.Accepted != 2 {
		t.Fatalf("retry = %+v, %v, want fresh dispatch", sum, err)
	}
}

func TestDeliveries(t *testing.T) {
	plog := &memPushLog{}
	svc := newTestSignaling(t, twoDeviceRegistry(), &recordingSender{}, plog)
	ctx := context.Background()

	if _, err := svc.Deliveries(ctx, "caller", "call-1"); !errors.Is(err, pkg.ErrNotFound) {
		t.Fatalf("Deliveries() before dispatch error = %v, want ErrNotFound", err)
	}
	if _, err := svc.CallRequest(ctx, "caller", callReq()); err != nil {
		t.Fatalf("CallRequest() error = %v", err)
	}

	entries, err := svc.Deliveries(ctx, "caller", "call-1")
	if err != nil || len(entries) != 2 {
		t.Fatalf("Deliveries() = %d entries, %v, want 2", len(entries), err)
	}
	if _, err := svc.Deliveries(ctx, "stranger", "call-1"); !errors.Is(err, pkg.ErrForbidden) {
		t.Fatalf("Deliveries() by stranger error = %v, want ErrForbidden", err)
	}
}
