package mocknet

import (
	"context"
	"errors"
	"sync"

	"github.com/secmsg/redblack-go/pkg/redblack/session"
)

// ErrClosed is returned by operations on a closed pipe.
var ErrClosed = errors.New("mocknet: pipe closed")

const queueDepth = 16

type pipe struct {
	closeOnce sync.Once
	done      chan struct{}
}

func (p *pipe) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Endpoint is one end of a Pipe.
type Endpoint struct {
	p    *pipe
	recv chan []byte
	send chan []byte

	mu      sync.Mutex
	written int
}

// Pipe returns two endpoints connected to each other.
func Pipe() (*Endpoint, *Endpoint) {
	p := &pipe{done: make(chan struct{})}
	ab := make(chan []byte, queueDepth)
	ba := make(chan []byte, queueDepth)
	return &Endpoint{p: p, recv: ba, send: ab}, &Endpoint{p: p, recv: ab, send: ba}
}

// WriteFrame queues a copy of frame for the peer.
func (e *Endpoint) WriteFrame(ctx context.Context, frame []byte) error {
	msg := append([]byte(nil), frame...)
	select {
	case <-e.p.done:
		return ErrClosed
	default:
	}
	select {
	case e.send <- msg:
		e.mu.Lock()
		e.written++
		e.mu.Unlock()
		return nil
	case <-e.p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadFrame returns the next frame written by the peer.
func (e *Endpoint) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-e.recv:
		return msg, nil
	default:
	}
	select {
	case msg := <-e.recv:
		return msg, nil
	case <-e.p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the pipe for both endpoints.
func (e *Endpoint) Close() error {
	e.p.close()
	return nil
}

// Written reports how many frames this endpoint has sent.
func (e *Endpoint) Written() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.written
}

var _ session.Conn = (*Endpoint)(nil)
