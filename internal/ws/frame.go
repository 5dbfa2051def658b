package ws

type FrameKind int

const (
	FrameNoOp FrameKind = iota
	FramePing
	FramePong
	FrameText
	FrameBinary
	FrameClose
	FrameContinuation
	// FrameError carries an unrecoverable read error in Err.
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FrameClose:
		return "close"
	case FrameContinuation:
		return "continuation"
	case FrameError:
		return "error"
	default:
		return "noop"
	}
}

// Frame is one decoded websocket frame. Text is set for text frames and as the
// close reason; Payload for ping, pong and binary frames.
type Frame struct {
	Kind    FrameKind
	Text    string
	Payload []byte
	Err     error
}

// Transport is a duplexed, already-framed stream for one peer.
type Transport interface {
	// Frames is closed once the peer is gone.
	Frames() <-chan Frame
	WriteFrame(f Frame) error
	Close() error
}
