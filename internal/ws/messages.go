package ws

import (
	"errors"
	"time"
)

// Notices sent by the hub itself.
const (
	WelcomeNotice    = "Welcome"
	JoinedNotice     = "Someone joined"
	DisconnectNotice = "Someone disconnected"
)

var (
	ErrHubUnavailable = errors.New("hub unavailable")
	ErrSessionClosed  = errors.New("session closed")
)

// ──────────────────────────── Delivery handle ─────────────────────────────────

// Recipient pushes text to exactly one session. The zero value delivers nothing.
type Recipient struct {
	inbox chan<- string
	done  <-chan struct{}
}

// NewRecipient builds a handle over inbox; once done is closed every Deliver fails.
func NewRecipient(inbox chan<- string, done <-chan struct{}) Recipient {
	return Recipient{inbox: inbox, done: done}
}

// Deliver never blocks. It reports false when the session is gone or its inbox is full.
func (r Recipient) Deliver(text string) bool {
	if r.inbox == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- text:
		return true
	default:
		return false
	}
}

// ──────────────────────────── Broadcast audience ──────────────────────────────

// audience says who a broadcast reaches. System broadcasts exclude nobody.
type audience struct {
	system  bool
	exclude SessionID
}

func everyone() audience { return audience{system: true} }

func allExcept(id SessionID) audience { return audience{exclude: id} }

func (a audience) includes(id SessionID) bool {
	return a.system || id != a.exclude
}

// ──────────────────────────── Hub requests ────────────────────────────────────

type request interface{ isRequest() }

type joinRequest struct {
	recipient Recipient
	reply     chan SessionID
}

type leaveRequest struct {
	id SessionID
}

type relayRequest struct {
	from    SessionID
	content string
}

type unicastRequest struct {
	to      SessionID
	content string
}

// inspectRequest snapshots the registry ids in iteration order.
type inspectRequest struct {
	reply chan []SessionID
}

func (joinRequest) isRequest()    {}
func (leaveRequest) isRequest()   {}
func (relayRequest) isRequest()   {}
func (unicastRequest) isRequest() {}
func (inspectRequest) isRequest() {}

// ──────────────────────────── Observer events ─────────────────────────────────

type EventKind string

const (
	EventJoin  EventKind = "join"
	EventLeave EventKind = "leave"
	EventRelay EventKind = "relay"
)

// HubEvent describes one registry change or relayed message.
type HubEvent struct {
	Kind        EventKind `json:"kind"`
	Session     SessionID `json:"session"`
	Content     string    `json:"content,omitempty"`
	Connections int       `json:"connections"`
	At          time.Time `json:"at"`
}

// Observer is called on the hub goroutine and must not block.
type Observer interface {
	Observe(ev HubEvent)
}
