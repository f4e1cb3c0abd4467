package matchmaker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/nestmate/roommates/internal/interest"
	"github.com/nestmate/roommates/internal/messaging"
	"github.com/nestmate/roommates/internal/metrics"
	"github.com/nestmate/roommates/internal/protocol"
	"github.com/nestmate/roommates/internal/ratelimit"
)

// Bus is the subset of the NATS client the service needs.
type Bus interface {
	Subscribe(subject string, handler func(data []byte)) error
	Respond(subject string, handler func(data []byte) []byte) error
	Unsubscribe(subject string) error
}

// Limiter throttles callers per rule.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	Remaining(ctx context.Context, identifier string, rule ratelimit.Rule) (int, error)
}

// quotaReply is implemented by replies that carry the caller's remaining
// rate-limit allowance.
type quotaReply interface {
	SetRateRemaining(n int)
}

// ServiceConfig holds matcher service settings.
type ServiceConfig struct {
	RequestTimeout time.Duration // per-request deadline for store access
	StatsInterval  time.Duration // how often roster/graph gauges refresh
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		RequestTimeout: 5 * time.Second,
		StatsInterval:  15 * time.Second,
	}
}

// Service is the matcher worker: it answers query requests from API
// servers and records interest events.
type Service struct {
	engine  *Engine
	bus     Bus
	limiter Limiter
	config  ServiceConfig
	ctx     context.Context
	cancel  context.CancelFunc

	subjects []string // registered on Start, released on Stop
}

// NewService creates a new matcher service. A nil limiter disables rate
// limiting.
func NewService(engine *Engine, bus Bus, limiter Limiter, config ServiceConfig) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		engine:  engine,
		bus:     bus,
		limiter: limiter,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to NATS subjects and starts the stats loop.
func (s *Service) Start() error {
	if err := s.bus.Subscribe(messaging.SubjectInterest, s.handleInterest); err != nil {
		return err
	}
	s.subjects = append(s.subjects, messaging.SubjectInterest)

	handlers := map[string]func([]byte) []byte{
		messaging.SubjectScore:    s.handleScore,
		messaging.SubjectGroups:   s.handleGroups,
		messaging.SubjectFeed:     s.handleFeed,
		messaging.SubjectInvite:   s.handleInvite,
		messaging.SubjectUninvite: s.handleUninvite,
	}
	for subject, h := range handlers {
		if err := s.bus.Respond(subject, h); err != nil {
			return err
		}
		s.subjects = append(s.subjects, subject)
	}

	go s.statsLoop()

	log.Println("[matcher] service started")
	return nil
}

// Stop releases the service's subscriptions, so other replicas in the
// queue group take over, and stops the stats loop. The NATS connection
// itself stays open for its owner to close.
func (s *Service) Stop() {
	for _, subject := range s.subjects {
		if err := s.bus.Unsubscribe(subject); err != nil {
			log.Printf("[matcher] unsubscribe %s: %v", subject, err)
		}
	}
	s.subjects = nil
	s.cancel()
	log.Println("[matcher] service stopped")
}

func (s *Service) handleScore(data []byte) []byte {
	var req protocol.ScoreRequest
	return s.serve(messaging.SubjectScore, data, &req, func() string { return req.A },
		func(ctx context.Context) (string, any, error) {
			if req.A == "" || req.B == "" {
				return "", nil, errBadRequest("both profile ids are required")
			}
			res, err := s.engine.Score(ctx, req.A, req.B)
			return protocol.TypeScoreResult, &protocol.ScoreReply{
				A: req.A, B: req.B, Percentage: res.Percentage, Breakdown: res.Breakdown,
			}, err
		})
}

func (s *Service) handleGroups(data []byte) []byte {
	var req protocol.GroupsRequest
	return s.serve(messaging.SubjectGroups, data, &req, func() string { return req.Owner },
		func(ctx context.Context) (string, any, error) {
			if req.Owner == "" {
				return "", nil, errBadRequest("owner is required")
			}
			groups, err := s.engine.Groups(ctx, req.Owner)
			return protocol.TypeGroupsResult, &protocol.GroupsReply{
				Owner: req.Owner, Groups: groups,
			}, err
		})
}

func (s *Service) handleFeed(data []byte) []byte {
	var req protocol.FeedRequest
	return s.serve(messaging.SubjectFeed, data, &req, func() string { return req.Viewer },
		func(ctx context.Context) (string, any, error) {
			if req.Viewer == "" {
				return "", nil, errBadRequest("viewer is required")
			}
			entries, err := s.engine.Feed(ctx, req.Viewer, req.Limit)
			return protocol.TypeFeedResult, &protocol.FeedReply{
				Viewer: req.Viewer, Entries: entries,
			}, err
		})
}

func (s *Service) handleInvite(data []byte) []byte {
	var req protocol.InviteRequest
	return s.serve(messaging.SubjectInvite, data, &req, func() string { return req.Owner },
		func(ctx context.Context) (string, any, error) {
			if req.Owner == "" || req.GroupKey == "" {
				return "", nil, errBadRequest("owner and group key are required")
			}
			id, members, err := s.engine.Invite(ctx, req.Owner, req.GroupKey)
			return protocol.TypeInviteResult, &protocol.InviteReply{
				Owner: req.Owner, GroupKey: req.GroupKey, InviteID: id, Members: members,
			}, err
		})
}

func (s *Service) handleUninvite(data []byte) []byte {
	var req protocol.UninviteRequest
	return s.serve(messaging.SubjectUninvite, data, &req, func() string { return req.Owner },
		func(ctx context.Context) (string, any, error) {
			if req.Owner == "" || req.GroupKey == "" {
				return "", nil, errBadRequest("owner and group key are required")
			}
			withdrawn, err := s.engine.Uninvite(ctx, req.Owner, req.GroupKey)
			return protocol.TypeUninviteResult, &protocol.UninviteReply{
				Owner: req.Owner, GroupKey: req.GroupKey, Withdrawn: withdrawn,
			}, err
		})
}

// handleInterest records an interest event. Events get no reply, so
// failures are only logged and counted.
func (s *Service) handleInterest(data []byte) {
	start := time.Now()
	defer func() {
		metrics.RequestLatency.WithLabelValues(messaging.SubjectInterest).Observe(time.Since(start).Seconds())
	}()

	_, parsed, err := protocol.ParseRequest(data)
	msg, ok := parsed.(protocol.InterestMsg)
	if err != nil || !ok {
		log.Printf("[matcher] invalid interest event: %v", err)
		metrics.RequestsTotal.WithLabelValues(messaging.SubjectInterest, "error").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.RequestTimeout)
	defer cancel()

	if !s.allow(ctx, msg.From, ratelimit.RuleInterest) {
		log.Printf("[matcher] interest from %s rate limited", msg.From)
		metrics.RequestsTotal.WithLabelValues(messaging.SubjectInterest, "limited").Inc()
		return
	}

	added, mutual, err := s.engine.ExpressInterest(ctx, msg.From, msg.To)
	if err != nil {
		log.Printf("[matcher] interest %s->%s: %v", msg.From, msg.To, err)
		metrics.RequestsTotal.WithLabelValues(messaging.SubjectInterest, "error").Inc()
		return
	}

	kind := "duplicate"
	if added {
		kind = "new"
	}
	metrics.InterestsTotal.WithLabelValues(kind).Inc()
	metrics.RequestsTotal.WithLabelValues(messaging.SubjectInterest, "ok").Inc()
	log.Printf("[matcher] interest %s->%s (%s) request=%s", msg.From, msg.To, kind, msg.RequestID)
	if mutual {
		log.Printf("[matcher] mutual match %s<->%s", msg.From, msg.To)
	}
}

// serve decodes a request into req, applies the query rate limit to the
// id caller returns, runs the query and encodes either its result or an
// ErrorReply. Results that carry a Quota get the caller's remaining
// allowance.
func (s *Service) serve(subject string, data []byte, req any, caller func() string, run func(ctx context.Context) (string, any, error)) []byte {
	start := time.Now()
	defer func() {
		metrics.RequestLatency.WithLabelValues(subject).Observe(time.Since(start).Seconds())
	}()

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		metrics.RequestsTotal.WithLabelValues(subject, "error").Inc()
		return protocol.NewError("", protocol.CodeBadRequest, err.Error())
	}
	if err := json.Unmarshal(env.Raw, req); err != nil {
		metrics.RequestsTotal.WithLabelValues(subject, "error").Inc()
		return protocol.NewError(env.RequestID, protocol.CodeBadRequest, "malformed request: "+err.Error())
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.RequestTimeout)
	defer cancel()

	id := caller()
	if id != "" && !s.allow(ctx, id, ratelimit.RuleQuery) {
		log.Printf("[matcher] %s from %s rate limited", subject, id)
		metrics.RequestsTotal.WithLabelValues(subject, "limited").Inc()
		return protocol.NewError(env.RequestID, protocol.CodeRateLimited, "too many requests")
	}

	replyType, reply, err := run(ctx)
	if err != nil {
		code := errorCode(err)
		if code == protocol.CodeInternal {
			log.Printf("[matcher] %s request=%s: %v", subject, env.RequestID, err)
		}
		metrics.RequestsTotal.WithLabelValues(subject, "error").Inc()
		return protocol.NewError(env.RequestID, code, err.Error())
	}

	if q, ok := reply.(quotaReply); ok && id != "" && s.limiter != nil {
		if n, err := s.limiter.Remaining(ctx, id, ratelimit.RuleQuery); err == nil {
			q.SetRateRemaining(n)
		}
	}

	out, err := protocol.NewReply(replyType, env.RequestID, reply)
	if err != nil {
		log.Printf("[matcher] encode %s reply: %v", subject, err)
		metrics.RequestsTotal.WithLabelValues(subject, "error").Inc()
		return protocol.NewError(env.RequestID, protocol.CodeInternal, "failed to encode reply")
	}
	metrics.RequestsTotal.WithLabelValues(subject, "ok").Inc()
	return out
}

// allow applies rule to identifier. Limiter errors fail open.
func (s *Service) allow(ctx context.Context, identifier string, rule ratelimit.Rule) bool {
	if s.limiter == nil {
		return true
	}
	ok, _ := s.limiter.Allow(ctx, identifier, rule)
	return ok
}

// statsLoop refreshes the roster and interest-graph gauges.
func (s *Service) statsLoop() {
	s.refreshStats()

	ticker := time.NewTicker(s.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Println("[matcher] stats loop stopped")
			return
		case <-ticker.C:
			s.refreshStats()
		}
	}
}

func (s *Service) refreshStats() {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.RequestTimeout)
	defer cancel()

	rosterSize, graphSize, err := s.engine.Stats(ctx)
	if err != nil {
		log.Printf("[matcher] refresh stats: %v", err)
		return
	}
	metrics.RosterSize.Set(float64(rosterSize))
	metrics.InterestGraphSize.Set(float64(graphSize))
}

type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func errBadRequest(msg string) error { return badRequestError{msg: msg} }

// errorCode maps engine and store errors to reply codes.
func errorCode(err error) string {
	var bad badRequestError
	switch {
	case errors.As(err, &bad),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, interest.ErrSelfInterest),
		errors.Is(err, interest.ErrMissingID):
		return protocol.CodeBadRequest
	case errors.Is(err, ErrUnknownProfile), errors.Is(err, ErrUnknownGroup):
		return protocol.CodeNotFound
	default:
		return protocol.CodeInternal
	}
}
