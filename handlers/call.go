package handlers

import (
	"net/http"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/pkg/ratelimit"
	"github.com/akinalp/callrelay/services"
)

// CallHandler, signaling RPC endpoint'leri.
//
// Yanıt uçtan uca teslimatı değil, dispatch kabulünü bildirir:
//
//	{ "success": true, "data": { "callId": "...", "kind": "INCOMING", "targets": 2, "accepted": 1, "rejected": 1 } }
type CallHandler struct {
	signaling services.SignalingService
	limiter   *ratelimit.Limiter
}

// NewCallHandler, constructor. limiter sadece callRequest'e uygulanır;
// accepted/end çağrıları zaten var olan bir çağrıyı ilerletir.
func NewCallHandler(signaling services.SignalingService, limiter *ratelimit.Limiter) *CallHandler {
	return &CallHandler{signaling: signaling, limiter: limiter}
}

// Request godoc
// POST /api/calls/request
// Body: { callId, callerId, calleeId, callerName, channel, bundleId }
func (h *CallHandler) Request(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "participant not found in context")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(claims.ParticipantID) {
		writeTooManyRequests(w, h.limiter.RetryAfterSeconds(claims.ParticipantID), "too many call requests")
		return
	}

	var req models.CallRequest
	if err := pkg.DecodeJSON(r, &req); err != nil {
		pkg.Error(w, err)
		return
	}

	summary, err := h.signaling.CallRequest(r.Context(), claims.ParticipantID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, summary)
}

// Accepted godoc
// POST /api/calls/accepted
// Body: { callId, callerId, calleeId, channel, bundleId }
func (h *CallHandler) Accepted(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "participant not found in context")
		return
	}

	var req models.CallAcceptedRequest
	if err := pkg.DecodeJSON(r, &req); err != nil {
		pkg.Error(w, err)
		return
	}

	summary, err := h.signaling.CallAccepted(r.Context(), claims.ParticipantID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, summary)
}

// End godoc
// POST /api/calls/end
// Body: { callId?, callerId, calleeId, bundleId, reason? }
func (h *CallHandler) End(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "participant not found in context")
		return
	}

	var req models.EndCallRequest
	if err := pkg.DecodeJSON(r, &req); err != nil {
		pkg.Error(w, err)
		return
	}

	summary, err := h.signaling.EndCall(r.Context(), claims.ParticipantID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, summary)
}

// RPC godoc
// POST /api/rpc/{name}
// Eski istemcilerin callable isimleri aynı handler'lara yönlenir.
func (h *CallHandler) RPC(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("name") {
	case services.RPCCallRequest:
		h.Request(w, r)
	case services.RPCCallAccepted:
		h.Accepted(w, r)
	case services.RPCEndCall:
		h.End(w, r)
	default:
		pkg.ErrorWithMessage(w, http.StatusNotFound, "unknown rpc")
	}
}

// Deliveries godoc
// GET /api/calls/{callId}/deliveries
// Çağrının iki katılımcısı da kendi çağrısının dispatch denemelerini görebilir.
func (h *CallHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "participant not found in context")
		return
	}

	entries, err := h.signaling.Deliveries(r.Context(), claims.ParticipantID, r.PathValue("callId"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, entries)
}
