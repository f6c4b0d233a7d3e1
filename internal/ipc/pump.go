package ipc

import (
	"log/slog"
	"time"
)

// OperationMessage is the kernel-emitted envelope read off the stream
// channel. Its shape is opaque to the transport: the pump forwards it
// verbatim to whatever Consumer the session registers.
type OperationMessage map[string]any

// Consumer receives operation messages off the stream pump, one at a time,
// in arrival order. Implementations must not block for long: the pump has
// a single consumer goroutine and a slow Consumer backs up the bounded
// channel.
type Consumer func(OperationMessage)

// StreamPump drains a stream PullQueue into a bounded in-memory channel and
// runs a dedicated goroutine that feeds a Consumer callback, matching
// spec.md §4.A's "background pump on the parent process" and the
// REDESIGN FLAGS guidance to avoid cross-thread call-ins to async code: the
// pump goroutine only ever writes to a channel, never calls the consumer
// directly from the socket-reading goroutine.
type StreamPump struct {
	queue   *PullQueue[OperationMessage]
	log     *slog.Logger
	buf     chan OperationMessage
	done    chan struct{}
	stopped chan struct{}
}

// NewStreamPump wires a pump over an already-connected stream channel.
// bufSize bounds how far the consumer may lag the socket before the pump
// itself starts blocking on forwarding (it never blocks on the kernel).
func NewStreamPump(queue *PullQueue[OperationMessage], log *slog.Logger, bufSize int) *StreamPump {
	if bufSize <= 0 {
		bufSize = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &StreamPump{
		queue:   queue,
		log:     log,
		buf:     make(chan OperationMessage, bufSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches two goroutines: forward moves messages from the queue
// into StreamPump's buffer until Stop is called or the queue reports the
// channel closed (kernel exit / broken pipe), and deliver feeds the
// buffer to consume until Stop is called.
func (p *StreamPump) Start(consume Consumer) {
	go p.forward()
	go p.deliver(consume)
}

// forward is the socket-reading half: it only ever touches the queue and
// the bounded buffer, never the consumer.
func (p *StreamPump) forward() {
	for {
		msg, err := p.queue.Get(500 * time.Millisecond)
		select {
		case <-p.done:
			return
		default:
		}
		if err != nil {
			p.log.Warn("stream pump: transport closed", "error", err)
			return
		}
		if msg == nil {
			continue
		}
		select {
		case p.buf <- msg:
		case <-p.done:
			return
		}
	}
}

// deliver is the consumer-invoking half, running on its own goroutine so a
// slow Consumer never stalls the socket reader.
func (p *StreamPump) deliver(consume Consumer) {
	defer close(p.stopped)
	for {
		select {
		case msg := <-p.buf:
			consume(msg)
		case <-p.done:
			// Drain whatever is already buffered before exiting.
			for {
				select {
				case msg := <-p.buf:
					consume(msg)
				default:
					return
				}
			}
		}
	}
}

// Stop signals both pump goroutines to exit and waits for the delivery
// goroutine to drain its buffer. Idempotent only via the caller: StreamPump
// itself does not guard against a double Stop.
func (p *StreamPump) Stop() {
	close(p.done)
	<-p.stopped
}
