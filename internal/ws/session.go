package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultHeartbeatInterval is how often a session pings its peer.
	DefaultHeartbeatInterval = 5 * time.Second
	// DefaultClientTimeout is how long a peer may stay silent before eviction.
	DefaultClientTimeout = 10 * time.Second
	defaultInboxSize     = 256
)

var (
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
	ErrUnsupportedFrame = errors.New("unsupported frame")
)

// Coordinator is the part of the hub a session talks to.
type Coordinator interface {
	Join(ctx context.Context, r Recipient) (SessionID, error)
	Leave(id SessionID) error
	Relay(from SessionID, content string) error
}

type SessionState int32

const (
	StateStarting SessionState = iota
	StateActive
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	default:
		return "stopped"
	}
}

type SessionConfig struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	InboxSize         int
}

// Session drives one connection: it joins the hub, answers heartbeats and
// moves text between the peer and the hub. All of its state is touched only
// from the goroutine running Run.
type Session struct {
	cfg       SessionConfig
	hub       Coordinator
	transport Transport

	id       SessionID
	state    atomic.Int32
	lastSeen time.Time
	left     bool

	inbox chan string
	done  chan struct{}

	now       func() time.Time
	newTicker func(time.Duration) (<-chan time.Time, func())
}

func NewSession(hub Coordinator, t Transport, cfg SessionConfig) *Session {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = DefaultClientTimeout
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	return &Session{
		cfg:       cfg,
		hub:       hub,
		transport: t,
		inbox:     make(chan string, cfg.InboxSize),
		done:      make(chan struct{}),
		now:       time.Now,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

func (s *Session) ID() SessionID { return s.id }

func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Run blocks until the session stops and returns the reason it stopped.
// The transport is closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	tick, stopTick := s.newTicker(s.cfg.HeartbeatInterval)
	defer stopTick()
	s.lastSeen = s.now()

	// Starting: frames stay unread until the hub has answered.
	id, err := s.hub.Join(ctx, NewRecipient(s.inbox, s.done))
	if err != nil {
		s.stop()
		return fmt.Errorf("join hub: %w", err)
	}
	s.id = id
	s.state.Store(int32(StateActive))
	zap.L().Info("session.connected", zap.Uint64("session", uint64(id)))

	err = s.loop(ctx, tick)
	s.stop()
	zap.L().Info("session.disconnected",
		zap.Uint64("session", uint64(id)),
		zap.String("reason", err.Error()),
	)
	return err
}

func (s *Session) loop(ctx context.Context, tick <-chan time.Time) error {
	frames := s.transport.Frames()
	for {
		var err error
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case f, ok := <-frames:
			if !ok {
				err = ErrSessionClosed
				break
			}
			err = s.handleFrame(f)
		case <-tick:
			err = s.heartbeat()
		case text := <-s.inbox:
			err = s.transport.WriteFrame(Frame{Kind: FrameText, Text: text})
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) handleFrame(f Frame) error {
	switch f.Kind {
	case FramePing:
		s.lastSeen = s.now()
		return s.transport.WriteFrame(Frame{Kind: FramePong, Payload: f.Payload})
	case FramePong:
		s.lastSeen = s.now()
	case FrameText:
		text := strings.TrimSpace(f.Text)
		zap.L().Debug("session.message", zap.Uint64("session", uint64(s.id)), zap.String("text", text))
		if err := s.hub.Relay(s.id, text); err != nil {
			return fmt.Errorf("relay: %w", err)
		}
	case FrameBinary:
		zap.L().Debug("session.unexpected_binary", zap.Uint64("session", uint64(s.id)), zap.Int("size", len(f.Payload)))
	case FrameClose:
		return ErrSessionClosed
	case FrameContinuation:
		return fmt.Errorf("%w: %s", ErrUnsupportedFrame, f.Kind)
	case FrameError:
		return fmt.Errorf("read: %w", f.Err)
	case FrameNoOp:
	}
	return nil
}

func (s *Session) heartbeat() error {
	if s.now().Sub(s.lastSeen) > s.cfg.ClientTimeout {
		zap.L().Debug("session.timeout", zap.Uint64("session", uint64(s.id)))
		s.leave()
		return ErrHeartbeatTimeout
	}
	return s.transport.WriteFrame(Frame{Kind: FramePing})
}

// stop runs once; later calls are no-ops.
func (s *Session) stop() {
	if SessionState(s.state.Swap(int32(StateStopped))) == StateStopped {
		return
	}
	close(s.done)
	s.leave()
	_ = s.transport.WriteFrame(Frame{Kind: FrameClose})
	_ = s.transport.Close()
}

func (s *Session) leave() {
	if s.left || s.id == 0 {
		return
	}
	s.left = true
	if err := s.hub.Leave(s.id); err != nil {
		zap.L().Warn("session.leave", zap.Uint64("session", uint64(s.id)), zap.Error(err))
	}
}
