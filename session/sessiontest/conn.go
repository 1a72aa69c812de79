// Package sessiontest provides an in-memory session.Conn for tests.
package sessiontest

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errWriteTimeout = errors.New("sessiontest: write timeout")

type frame struct {
	messageType int
	data        []byte
}

// Conn is the server side of a fake WebSocket. Tests drive the client side
// through SendText, SendBinary, Hangup and Next.
type Conn struct {
	in     chan frame
	out    chan []byte
	closed chan struct{}

	mu        sync.Mutex
	hungUp    bool
	stalled   bool
	pong      func(string) error
	readLimit int64
	controls  []int

	closeOnce sync.Once
}

func NewConn() *Conn {
	return &Conn{
		in:     make(chan frame, 64),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

// SendText delivers a text frame to the server
func (c *Conn) SendText(data string) { c.deliver(websocket.TextMessage, []byte(data)) }

// SendBinary delivers a binary frame to the server
func (c *Conn) SendBinary(data []byte) { c.deliver(websocket.BinaryMessage, data) }

func (c *Conn) deliver(messageType int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hungUp {
		return
	}
	select {
	case c.in <- frame{messageType, data}:
	case <-c.closed:
	}
}

// Hangup makes the next read fail with a normal close, after any frames
// already sent are read.
func (c *Conn) Hangup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hungUp {
		c.hungUp = true
		close(c.in)
	}
}

// Stall makes every later write block until the connection closes, like a
// client that stopped reading. Control frames then wait out their deadline,
// as they do behind gorilla's write lock.
func (c *Conn) Stall() {
	c.mu.Lock()
	c.stalled = true
	c.mu.Unlock()
}

// Pong invokes the registered pong handler
func (c *Conn) Pong() error {
	c.mu.Lock()
	h := c.pong
	c.mu.Unlock()
	if h == nil {
		return nil
	}
	return h("")
}

// Next returns the next text frame the server wrote, or false on timeout.
func (c *Conn) Next(timeout time.Duration) ([]byte, bool) {
	select {
	case data := <-c.out:
		return data, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Done is closed once the server closed the connection
func (c *Conn) Done() <-chan struct{} { return c.closed }

// ReadLimit returns the limit the server set
func (c *Conn) ReadLimit() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLimit
}

// Controls returns the control frame types written so far
func (c *Conn) Controls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.controls...)
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return f.messageType, f.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *Conn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	stalled := c.stalled
	c.mu.Unlock()

	if stalled {
		<-c.closed
		return net.ErrClosed
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *Conn) WriteControl(messageType int, _ []byte, deadline time.Time) error {
	c.mu.Lock()
	stalled := c.stalled
	c.controls = append(c.controls, messageType)
	c.mu.Unlock()

	if stalled {
		select {
		case <-time.After(time.Until(deadline)):
			return errWriteTimeout
		case <-c.closed:
			return net.ErrClosed
		}
	}
	return nil
}

func (c *Conn) SetReadLimit(limit int64) {
	c.mu.Lock()
	c.readLimit = limit
	c.mu.Unlock()
}

func (c *Conn) SetReadDeadline(time.Time) error  { return nil }
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

func (c *Conn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	c.pong = h
	c.mu.Unlock()
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
