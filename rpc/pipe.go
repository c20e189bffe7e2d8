package rpc

import (
	"sync"
)

type pipeEnd struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns two connected in-memory transports. Closing either end
// closes both.
func Pipe() (Transport, Transport) {
	ab := make(chan []byte, 1024)
	ba := make(chan []byte, 1024)
	closed := make(chan struct{})
	once := &sync.Once{}
	return &pipeEnd{in: ba, out: ab, closed: closed, once: once},
		&pipeEnd{in: ab, out: ba, closed: closed, once: once}
}

func (p *pipeEnd) ReadMessage() ([]byte, error) {
	select {
	case b := <-p.in:
		return b, nil
	case <-p.closed:
		return nil, ErrClosed
	}
}

func (p *pipeEnd) WriteMessage(data []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.closed:
		return ErrClosed
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
