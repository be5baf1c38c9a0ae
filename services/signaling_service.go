package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/pkg/cache"
	"github.com/akinalp/callrelay/pkg/metrics"
	"github.com/akinalp/callrelay/pkg/push"
	"github.com/akinalp/callrelay/repository"
)

// RPC isimleri; metrik label'ı ve legacy route adı olarak kullanılır.
const (
	RPCCallRequest  = "callRequest"
	RPCCallAccepted = "callAcceptedRequest"
	RPCEndCall      = "endCallRequest"
)

// SignalingService, cihazların çağırdığı stateless signaling RPC'leri.
//
// Her RPC hedef katılımcının tüm kayıtlı endpoint'lerini bulur ve event'i
// hepsine paralel gönderir. Çağrı durumu relay'de tutulmaz; hangi çağrının
// hangi aşamada olduğunu sadece cihazlardaki coordinator'lar bilir.
//
// actorID, isteği yapan kimliği doğrulanmış katılımcıdır.
type SignalingService interface {
	CallRequest(ctx context.Context, actorID string, req *models.CallRequest) (*models.DispatchSummary, error)
	CallAccepted(ctx context.Context, actorID string, req *models.CallAcceptedRequest) (*models.DispatchSummary, error)
	EndCall(ctx context.Context, actorID string, req *models.EndCallRequest) (*models.DispatchSummary, error)
	Deliveries(ctx context.Context, actorID, callID string) ([]models.PushLogEntry, error)
	Close()
}

// SignalingConfig, fan-out ayarları.
type SignalingConfig struct {
	DispatchTimeout time.Duration
	DedupWindow     time.Duration
	Concurrency     int
}

type signalingService struct {
	tokens  repository.PushTokenRepository
	pushLog repository.PushLogRepository
	sender  push.Sender
	metrics *metrics.Metrics
	seen    *cache.TTLCache[string, models.DispatchSummary]
	cfg     SignalingConfig
}

// NewSignalingService, constructor. pushLog ve m nil olabilir.
func NewSignalingService(
	tokens repository.PushTokenRepository,
	pushLog repository.PushLogRepository,
	sender push.Sender,
	m *metrics.Metrics,
	cfg SignalingConfig,
) SignalingService {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 10 * time.Second
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	return &signalingService{
		tokens:  tokens,
		pushLog: pushLog,
		sender:  sender,
		metrics: m,
		seen:    cache.New[string, models.DispatchSummary](cfg.DedupWindow, time.Minute),
		cfg:     cfg,
	}
}

// Close, dedup cache'ini durdurur.
func (s *signalingService) Close() {
	s.seen.Close()
}

func (s *signalingService) CallRequest(ctx context.Context, actorID string, req *models.CallRequest) (*models.DispatchSummary, error) {
	if err := req.Validate(); err != nil {
		s.metrics.ObserveRequest(RPCCallRequest, metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}
	if actorID != req.CallerID {
		s.metrics.ObserveRequest(RPCCallRequest, metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: only the caller can request a call", pkg.ErrForbidden)
	}

	log.Printf("[relay] callRequest call=%s %s -> %s", req.CallID, req.CallerID, req.CalleeID)
	return s.relay(ctx, RPCCallRequest, req.Event(), req.CalleeID)
}

// CallAccepted, Accepted'ı arayana ve callee'nin diğer cihazlarına gönderir;
// hâlâ çalan cihazlar böylece "başka cihazda cevaplandı" diye kapanır.
func (s *signalingService) CallAccepted(ctx context.Context, actorID string, req *models.CallAcceptedRequest) (*models.DispatchSummary, error) {
	if err := req.Validate(); err != nil {
		s.metrics.ObserveRequest(RPCCallAccepted, metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}
	if actorID != req.CalleeID {
		s.metrics.ObserveRequest(RPCCallAccepted, metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: only the callee can accept a call", pkg.ErrForbidden)
	}

	log.Printf("[relay] callAccepted call=%s by %s", req.CallID, req.CalleeID)
	return s.relay(ctx, RPCCallAccepted, req.Event(), req.CallerID, req.CalleeID)
}

// EndCall, Ended'ı iki tarafın tüm cihazlarına gönderir.
func (s *signalingService) EndCall(ctx context.Context, actorID string, req *models.EndCallRequest) (*models.DispatchSummary, error) {
	if err := req.Validate(); err != nil {
		s.metrics.ObserveRequest(RPCEndCall, metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}
	if actorID != req.CallerID && actorID != req.CalleeID {
		s.metrics.ObserveRequest(RPCEndCall, metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: not a participant of this call", pkg.ErrForbidden)
	}

	log.Printf("[relay] endCallRequest call=%s by %s reason=%s", req.CallID, actorID, req.Reason)
	return s.relay(ctx, RPCEndCall, req.Event(), req.CallerID, req.CalleeID)
}

func (s *signalingService) Deliveries(ctx context.Context, actorID, callID string) ([]models.PushLogEntry, error) {
	if callID == "" {
		return nil, fmt.Errorf("%w: callId is required", pkg.ErrBadRequest)
	}
	if s.pushLog == nil {
		return nil, fmt.Errorf("%w: delivery log disabled", pkg.ErrNotFound)
	}

	entries, err := s.pushLog.ListByCall(ctx, callID, 200)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no deliveries for call", pkg.ErrNotFound)
	}
	if first := entries[0]; actorID != first.CallerID && actorID != first.CalleeID {
		return nil, fmt.Errorf("%w: not a participant of this call", pkg.ErrForbidden)
	}
	return entries, nil
}

// relay, event'i verilen katılımcıların tüm endpoint'lerine dağıtır.
// Aynı (rpc, callId) pencere içinde tekrar gelirse tekrar gönderilmez.
func (s *signalingService) relay(ctx context.Context, rpc string, event models.SignalingEvent, owners ...string) (*models.DispatchSummary, error) {
	summary := models.DispatchSummary{CallID: event.CallID, Kind: event.Kind}

	dedupKey := ""
	if event.CallID != "" {
		dedupKey = rpc + "|" + event.CallID
		if !s.seen.SetIfAbsent(dedupKey, summary) {
			prev, _ := s.seen.Get(dedupKey)
			prev.Duplicate = true
			s.metrics.ObserveRequest(rpc, metrics.OutcomeDuplicate)
			log.Printf("[relay] duplicate %s call=%s suppressed", rpc, event.CallID)
			return &prev, nil
		}
	}

	var endpoints []models.PushEndpoint
	for _, owner := range owners {
		eps, err := s.tokens.ListByOwner(ctx, owner)
		if err != nil {
			if dedupKey != "" {
				s.seen.Delete(dedupKey)
			}
			s.metrics.ObserveRequest(rpc, metrics.OutcomeError)
			return nil, fmt.Errorf("failed to resolve endpoints for %s: %w", owner, err)
		}
		endpoints = append(endpoints, eps...)
	}
	summary.Targets = len(endpoints)
	if len(endpoints) == 0 {
		log.Printf("[relay] %s call=%s: no registered endpoints", rpc, event.CallID)
	}

	accepted, rejected := s.dispatch(ctx, event, endpoints)
	summary.Accepted = int(accepted)
	summary.Rejected = int(rejected)

	if dedupKey != "" {
		s.seen.Set(dedupKey, summary)
	}
	s.metrics.ObserveRequest(rpc, metrics.OutcomeOK)
	return &summary, nil
}

func (s *signalingService) dispatch(ctx context.Context, event models.SignalingEvent, endpoints []models.PushEndpoint) (int32, int32) {
	var accepted, rejected atomic.Int32

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(dctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, ep := range endpoints {
		g.Go(func() error {
			start := time.Now()
			res := s.sender.Send(gctx, ep, event)
			s.metrics.ObserveDispatch(string(ep.Platform), string(event.Kind), res.Accepted, time.Since(start))

			if res.Accepted {
				accepted.Add(1)
			} else {
				rejected.Add(1)
				log.Printf("[push] %s %s to %s rejected: %s", ep.Platform, event.Kind, ep.OwnerID, res.Reason)
			}
			s.record(context.WithoutCancel(ctx), event, ep, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[relay] dispatch wait: %v", err)
	}
	return accepted.Load(), rejected.Load()
}

func (s *signalingService) record(ctx context.Context, event models.SignalingEvent, ep models.PushEndpoint, res push.Result) {
	if s.pushLog == nil {
		return
	}
	entry := &models.PushLogEntry{
		CallID:   event.CallID,
		CallerID: event.CallerID,
		CalleeID: event.CalleeID,
		OwnerID:  ep.OwnerID,
		Token:    ep.Token,
		Platform: ep.Platform,
		Kind:     event.Kind,
		Accepted: res.Accepted,
		Reason:   res.Reason,
	}
	if err := s.pushLog.Append(ctx, entry); err != nil {
		log.Printf("[relay] failed to record push log: %v", err)
	}
}
