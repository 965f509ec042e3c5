package web

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/zishang520/socket.io/servers/socket/v3"

	"hoststat/internal/auth"
	"hoststat/internal/netx"
	"hoststat/internal/system"
)

// StreamNamespace is the Socket.IO namespace snapshots are pushed on
const StreamNamespace = "/snapshots"

// Stream events
const (
	EventSubscribe     = "subscribe"
	EventSetRate       = "set_rate"
	EventRefresh       = "refresh"
	EventDisconnect    = "disconnect"
	EventSnapshot      = "snapshot"
	EventSubscribed    = "subscribed"
	EventSnapshotError = "snapshot_error"
)

// rateOff pauses a subscription
const rateOff = "OFF"

// emitter is the part of a Socket.IO client the stream writes to
type emitter interface {
	Emit(ev string, args ...any) error
}

// streamSession is one subscribed client
type streamSession struct {
	client emitter
	rate   time.Duration
	cancel context.CancelFunc
	closed bool
	mutex  sync.Mutex
}

// StreamService pushes periodic snapshots to subscribed Socket.IO clients.
// Every tick takes a fresh snapshot.
type StreamService struct {
	take        func(context.Context) (*system.Snapshot, error)
	metrics     *Metrics
	logger      zerolog.Logger
	defaultRate time.Duration
	minRate     time.Duration

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	sessions map[string]*streamSession
	mutex    sync.Mutex
}

// NewStreamService creates a stream that takes snapshots through svc
func NewStreamService(svc *Service, defaultRate, minRate time.Duration, logger zerolog.Logger) *StreamService {
	ctx, stop := context.WithCancel(context.Background())
	return &StreamService{
		take:        svc.TakeSnapshot,
		metrics:     svc.metrics,
		logger:      logger,
		defaultRate: defaultRate,
		minRate:     minRate,
		ctx:         ctx,
		stop:        stop,
		sessions:    make(map[string]*streamSession),
	}
}

// Register binds the stream events to ns and guards it with users
func (s *StreamService) Register(ns netx.Namespace, users auth.Users) {
	ns.AddEvent(EventSubscribe, func(client *socket.Socket, data ...any) {
		s.subscribe(string(client.Id()), client, data...)
	})
	ns.AddEvent(EventSetRate, func(client *socket.Socket, data ...any) {
		s.setRate(string(client.Id()), client, data...)
	})
	ns.AddEvent(EventRefresh, func(client *socket.Socket, data ...any) {
		s.push(s.ctx, client)
	})
	ns.AddEvent(EventDisconnect, func(client *socket.Socket, data ...any) {
		s.disconnect(string(client.Id()))
	})
	ns.RegisterEvents()
	ns.AddMiddleware(auth.RequireAuthSocketIO(users))
}

// SessionCount returns the number of subscribed clients
func (s *StreamService) SessionCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.sessions)
}

// Close stops every session and waits for their tickers to exit
func (s *StreamService) Close() {
	s.mutex.Lock()
	s.stop()
	sessions := s.sessions
	s.sessions = make(map[string]*streamSession)
	s.mutex.Unlock()

	for _, session := range sessions {
		session.close()
		s.metrics.sessionClosed()
	}
	s.wg.Wait()
}

// subscribe creates or updates the session for id and sends a first snapshot
func (s *StreamService) subscribe(id string, client emitter, data ...any) {
	rate := s.defaultRate
	if raw, ok := ratePayload(data); ok {
		parsed, err := s.parseRate(raw)
		if err != nil {
			emitError(client, err)
			return
		}
		rate = parsed
	}

	s.mutex.Lock()
	if s.ctx.Err() != nil {
		s.mutex.Unlock()
		return
	}
	session, exists := s.sessions[id]
	if !exists {
		session = &streamSession{client: client}
		s.sessions[id] = session
		s.metrics.sessionOpened()
	}
	s.mutex.Unlock()

	s.logger.Debug().Str("client", id).Dur("rate", rate).Msg("stream subscribed")
	s.push(s.ctx, client)
	s.startTicker(session, rate)
	client.Emit(EventSubscribed, subscribedPayload(rate, s.minRate))
}

// setRate changes the push rate of an existing session, OFF pauses it
func (s *StreamService) setRate(id string, client emitter, data ...any) {
	raw, ok := ratePayload(data)
	if !ok {
		emitError(client, fmt.Errorf("rate is required"))
		return
	}
	rate, err := s.parseRate(raw)
	if err != nil {
		emitError(client, err)
		return
	}

	s.mutex.Lock()
	session, exists := s.sessions[id]
	s.mutex.Unlock()
	if !exists {
		emitError(client, fmt.Errorf("no active subscription"))
		return
	}

	s.startTicker(session, rate)
	client.Emit(EventSubscribed, subscribedPayload(rate, s.minRate))
}

// disconnect drops the session for id
func (s *StreamService) disconnect(id string) {
	s.mutex.Lock()
	session, exists := s.sessions[id]
	if exists {
		delete(s.sessions, id)
		s.metrics.sessionClosed()
	}
	s.mutex.Unlock()

	if exists {
		session.close()
		s.logger.Debug().Str("client", id).Msg("stream disconnected")
	}
}

// startTicker replaces the session's ticker. A zero rate or a closed session
// leaves it stopped.
func (s *StreamService) startTicker(session *streamSession, rate time.Duration) {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.closed {
		return
	}
	if session.cancel != nil {
		session.cancel()
		session.cancel = nil
	}
	session.rate = rate
	if rate <= 0 {
		return
	}

	s.mutex.Lock()
	if s.ctx.Err() != nil {
		s.mutex.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.wg.Add(1)
	s.mutex.Unlock()
	session.cancel = cancel

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(rate)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.push(ctx, session.client)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// close stops the ticker for good. A subscribe still in flight will not
// restart it.
func (session *streamSession) close() {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	session.closed = true
	if session.cancel != nil {
		session.cancel()
		session.cancel = nil
	}
}

// push takes one snapshot and emits it, or emits the failure
func (s *StreamService) push(ctx context.Context, client emitter) {
	snap, err := s.take(ctx)
	if err != nil {
		if ctx.Err() == nil {
			emitError(client, err)
		}
		return
	}
	client.Emit(EventSnapshot, snap)
}

// parseRate accepts OFF or a duration no shorter than the minimum rate
func (s *StreamService) parseRate(raw string) (time.Duration, error) {
	if strings.EqualFold(raw, rateOff) {
		return 0, nil
	}
	rate, err := cast.ToDurationE(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q", raw)
	}
	if rate < s.minRate {
		return 0, fmt.Errorf("rate %s is below the minimum of %s", rate, s.minRate)
	}
	return rate, nil
}

// ratePayload extracts the rate from either {"rate": "5s"} or "5s".
// Payloads wrapped in an extra array are unwrapped.
func ratePayload(data []any) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	switch v := data[0].(type) {
	case []any:
		return ratePayload(v)
	case string:
		return v, v != ""
	}

	fields, err := cast.ToStringMapE(data[0])
	if err != nil {
		return "", false
	}
	rate, err := cast.ToStringE(fields["rate"])
	return rate, err == nil && rate != ""
}

func subscribedPayload(rate, minRate time.Duration) map[string]any {
	r := rateOff
	if rate > 0 {
		r = rate.String()
	}
	return map[string]any{
		"rate":     r,
		"min_rate": minRate.String(),
	}
}

func emitError(client emitter, err error) {
	client.Emit(EventSnapshotError, map[string]any{
		"message": err.Error(),
	})
}
