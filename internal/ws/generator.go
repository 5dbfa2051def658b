package ws

import "sync/atomic"

// SessionID identifies one live connection. Zero is never issued.
type SessionID uint64

// SessionIDGenerator hands out 1, 2, 3, ... and never repeats a value.
type SessionIDGenerator struct {
	seed atomic.Uint64
}

func (g *SessionIDGenerator) Generate() SessionID {
	return SessionID(g.seed.Add(1))
}
