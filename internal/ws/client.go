package ws

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientConn adapts a gorilla connection to Transport. One goroutine reads
// and decodes frames; writes are serialized by mu.
type clientConn struct {
	rawConn   *websocket.Conn
	mu        sync.Mutex
	writeWait time.Duration

	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func newClientConn(rawConn *websocket.Conn, maxMessageSize int64, writeWait time.Duration) *clientConn {
	c := &clientConn{
		rawConn:   rawConn,
		writeWait: writeWait,
		frames:    make(chan Frame),
		done:      make(chan struct{}),
	}
	rawConn.SetReadLimit(maxMessageSize)
	// Control frames are answered by the session, not by gorilla.
	rawConn.SetPingHandler(func(data string) error {
		c.push(Frame{Kind: FramePing, Payload: []byte(data)})
		return nil
	})
	rawConn.SetPongHandler(func(data string) error {
		c.push(Frame{Kind: FramePong, Payload: []byte(data)})
		return nil
	})

	go c.readPump()
	return c
}

func (c *clientConn) Frames() <-chan Frame { return c.frames }

// readPump blocks on an unbuffered channel, so nothing is read off the socket
// until the session asks for the next frame.
func (c *clientConn) readPump() {
	defer close(c.frames)

	for {
		mt, data, err := c.rawConn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.push(Frame{Kind: FrameClose, Text: ce.Text})
			} else {
				c.push(Frame{Kind: FrameError, Err: err})
			}
			return
		}

		var f Frame
		switch mt {
		case websocket.TextMessage:
			f = Frame{Kind: FrameText, Text: string(data)}
		case websocket.BinaryMessage:
			f = Frame{Kind: FrameBinary, Payload: data}
		default:
			continue
		}
		if !c.push(f) {
			return
		}
	}
}

func (c *clientConn) push(f Frame) bool {
	select {
	case c.frames <- f:
		return true
	case <-c.done:
		return false
	}
}

func (c *clientConn) WriteFrame(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.writeWait)
	switch f.Kind {
	case FrameText:
		_ = c.rawConn.SetWriteDeadline(deadline)
		return c.rawConn.WriteMessage(websocket.TextMessage, []byte(f.Text))
	case FramePing:
		return c.rawConn.WriteControl(websocket.PingMessage, f.Payload, deadline)
	case FramePong:
		return c.rawConn.WriteControl(websocket.PongMessage, f.Payload, deadline)
	case FrameClose:
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, f.Text)
		return c.rawConn.WriteControl(websocket.CloseMessage, msg, deadline)
	default:
		return fmt.Errorf("%w: write %s", ErrUnsupportedFrame, f.Kind)
	}
}

func (c *clientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.rawConn.Close()
	})
	return err
}
