package callcenter

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// HeadlessCall, HeadlessTelephony'nin bir çağrı hakkında tuttuğu kayıt.
type HeadlessCall struct {
	CallID   string
	From     string
	Incoming bool
	Progress Progress
	Ended    bool
}

// HeadlessOptions, HeadlessTelephony davranışı.
type HeadlessOptions struct {
	// AutoAnswer, gelen çağrıları AnswerDelay sonra otomatik cevaplar.
	AutoAnswer  bool
	AnswerDelay time.Duration
	// FailPresent doluysa PresentIncomingCall bu hatayı döner (işletim sistemi reddi).
	FailPresent error
}

// HeadlessTelephony, native çağrı arayüzü olmayan ortamlar için TelephonyAdapter.
// Softphone CLI'ı ve testler kullanır; kullanıcı aksiyonları Answer/Decline/End
// metodlarıyla tetiklenir.
type HeadlessTelephony struct {
	opts HeadlessOptions

	mu       sync.Mutex
	listener TelephonyListener
	calls    map[string]*HeadlessCall
}

func NewHeadlessTelephony(opts HeadlessOptions) *HeadlessTelephony {
	return &HeadlessTelephony{opts: opts, calls: make(map[string]*HeadlessCall)}
}

func (h *HeadlessTelephony) SetListener(l TelephonyListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = l
}

func (h *HeadlessTelephony) PresentIncomingCall(_ context.Context, callID, fromHandle string) error {
	if h.opts.FailPresent != nil {
		return h.opts.FailPresent
	}

	h.mu.Lock()
	h.calls[callID] = &HeadlessCall{CallID: callID, From: fromHandle, Incoming: true}
	h.mu.Unlock()
	log.Printf("[telephony] incoming call %s from %s", callID, fromHandle)

	if h.opts.AutoAnswer {
		time.AfterFunc(h.opts.AnswerDelay, func() { h.Answer(callID) })
	}
	return nil
}

func (h *HeadlessTelephony) ReportOutgoingProgress(_ context.Context, callID string, p Progress) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	call, ok := h.calls[callID]
	if !ok {
		call = &HeadlessCall{CallID: callID}
		h.calls[callID] = call
	}
	if call.Ended {
		return fmt.Errorf("call %s already ended", callID)
	}
	call.Progress = p
	log.Printf("[telephony] outgoing call %s %s", callID, p)
	return nil
}

func (h *HeadlessTelephony) EndCall(_ context.Context, callID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if call, ok := h.calls[callID]; ok {
		call.Ended = true
	}
	return nil
}

// Answer, kullanıcının çağrıyı cevaplaması.
func (h *HeadlessTelephony) Answer(callID string) {
	if l := h.currentListener(); l != nil {
		l.OnAnswer(callID)
	}
}

// Decline, kullanıcının çağrıyı reddetmesi.
func (h *HeadlessTelephony) Decline(callID string) {
	if l := h.currentListener(); l != nil {
		l.OnDecline(callID)
	}
}

// End, kullanıcının (veya işletim sisteminin) çağrıyı kapatması.
func (h *HeadlessTelephony) End(callID string) {
	if l := h.currentListener(); l != nil {
		l.OnEnd(callID)
	}
}

// Call, callID için kaydın kopyası.
func (h *HeadlessTelephony) Call(callID string) (HeadlessCall, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	call, ok := h.calls[callID]
	if !ok {
		return HeadlessCall{}, false
	}
	return *call, true
}

func (h *HeadlessTelephony) currentListener() TelephonyListener {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listener
}
