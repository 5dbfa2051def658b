package ws

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"
)

const defaultQueueSize = 256

// Hub owns the session registry. A single goroutine (Run) applies every
// request in arrival order, so registry changes and the broadcasts they cause
// never interleave.
type Hub struct {
	gen      SessionIDGenerator
	sessions map[SessionID]Recipient
	requests chan request
	done     chan struct{}
	observer Observer
	now      func() time.Time
}

type HubOption func(*Hub)

// WithObserver reports every join, leave and relay to o.
func WithObserver(o Observer) HubOption {
	return func(h *Hub) { h.observer = o }
}

// WithQueueSize sets how many requests may wait for the hub goroutine.
func WithQueueSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.requests = make(chan request, n)
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		sessions: make(map[SessionID]Recipient),
		requests: make(chan request, defaultQueueSize),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes requests until ctx is cancelled. Call it exactly once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("hub.stopped", zap.Int("connections", len(h.sessions)))
			return
		case req := <-h.requests:
			h.handle(req)
		}
	}
}

// Join registers r, welcomes it and tells everyone else. It returns the new id.
func (h *Hub) Join(ctx context.Context, r Recipient) (SessionID, error) {
	req := joinRequest{recipient: r, reply: make(chan SessionID, 1)}
	if err := h.send(ctx, req); err != nil {
		return 0, err
	}
	select {
	case id := <-req.reply:
		return id, nil
	case <-h.done:
		return 0, ErrHubUnavailable
	case <-ctx.Done():
		// The hub may still register us; undo it once the id shows up.
		go func() {
			select {
			case id := <-req.reply:
				_ = h.Leave(id)
			case <-h.done:
			}
		}()
		return 0, ctx.Err()
	}
}

// Leave removes id. Unknown ids are ignored.
func (h *Hub) Leave(id SessionID) error {
	return h.send(context.Background(), leaveRequest{id: id})
}

// Relay sends content to every registered session except from.
func (h *Hub) Relay(from SessionID, content string) error {
	return h.send(context.Background(), relayRequest{from: from, content: content})
}

// Unicast sends content to id only.
func (h *Hub) Unicast(id SessionID, content string) error {
	return h.send(context.Background(), unicastRequest{to: id, content: content})
}

// Sessions returns the registered ids in ascending order.
func (h *Hub) Sessions(ctx context.Context) ([]SessionID, error) {
	req := inspectRequest{reply: make(chan []SessionID, 1)}
	if err := h.send(ctx, req); err != nil {
		return nil, err
	}
	select {
	case ids := <-req.reply:
		slices.Sort(ids)
		return ids, nil
	case <-h.done:
		return nil, ErrHubUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	ids, err := h.Sessions(ctx)
	return len(ids), err
}

func (h *Hub) send(ctx context.Context, req request) error {
	select {
	case <-h.done:
		return ErrHubUnavailable
	default:
	}
	select {
	case h.requests <- req:
		return nil
	case <-h.done:
		return ErrHubUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---------------------------------------------------------------------------
//  Hub goroutine only
// ---------------------------------------------------------------------------

func (h *Hub) handle(req request) {
	switch r := req.(type) {
	case joinRequest:
		h.join(r)
	case leaveRequest:
		h.leave(r.id)
	case relayRequest:
		h.broadcast(r.content, allExcept(r.from))
		h.notify(EventRelay, r.from, r.content)
	case unicastRequest:
		h.unicast(r.to, r.content)
	case inspectRequest:
		ids := make([]SessionID, 0, len(h.sessions))
		for id := range h.sessions {
			ids = append(ids, id)
		}
		r.reply <- ids
	}
}

func (h *Hub) join(r joinRequest) {
	id := h.gen.Generate()
	h.sessions[id] = r.recipient
	zap.L().Debug("hub.join", zap.Uint64("session", uint64(id)), zap.Int("connections", len(h.sessions)))

	h.unicast(id, WelcomeNotice)
	h.broadcast(JoinedNotice, allExcept(id))
	r.reply <- id
	h.notify(EventJoin, id, "")
}

func (h *Hub) leave(id SessionID) {
	if _, ok := h.sessions[id]; !ok {
		return
	}
	delete(h.sessions, id)
	zap.L().Debug("hub.leave", zap.Uint64("session", uint64(id)), zap.Int("connections", len(h.sessions)))

	h.broadcast(DisconnectNotice, everyone())
	h.notify(EventLeave, id, "")
}

func (h *Hub) unicast(id SessionID, text string) {
	if r, ok := h.sessions[id]; ok {
		h.deliver(id, r, text)
	}
}

func (h *Hub) broadcast(text string, to audience) {
	for id, r := range h.sessions {
		if to.includes(id) {
			h.deliver(id, r, text)
		}
	}
}

// deliver is best-effort; a dead recipient stays registered until it leaves.
func (h *Hub) deliver(id SessionID, r Recipient, text string) {
	if !r.Deliver(text) {
		zap.L().Debug("hub.deliver_dropped", zap.Uint64("session", uint64(id)))
	}
}

func (h *Hub) notify(kind EventKind, id SessionID, content string) {
	if h.observer == nil {
		return
	}
	h.observer.Observe(HubEvent{
		Kind:        kind,
		Session:     id,
		Content:     content,
		Connections: len(h.sessions),
		At:          h.now().UTC(),
	})
}
