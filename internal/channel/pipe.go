package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("channel: pipe closed")

// Handler receives decoded envelopes. A non-nil error triggers redelivery.
type Handler func(ctx context.Context, env Envelope) error

// Pipe is a one-way, ordered, asynchronous channel. Send never blocks on
// the receiver; envelopes are delivered one at a time in send order by the
// goroutine running Run. Failed deliveries are retried a bounded number of
// times before being dropped, so handlers must tolerate duplicates.
type Pipe struct {
	name    string
	handler Handler
	logger  *slog.Logger
	retries int
	backoff time.Duration

	mu      sync.Mutex
	queue   [][]byte
	seq     uint64
	closed  bool
	busy    bool
	signal  chan struct{} // buffered, size 1
	stopped chan struct{}
}

// PipeOption configures a Pipe.
type PipeOption func(*Pipe)

// WithRetries sets how many times a failed delivery is retried and the
// initial backoff, which doubles per attempt.
func WithRetries(n int, backoff time.Duration) PipeOption {
	return func(p *Pipe) {
		p.retries = n
		p.backoff = backoff
	}
}

// WithLogger sets the pipe logger.
func WithLogger(l *slog.Logger) PipeOption {
	return func(p *Pipe) { p.logger = l }
}

// NewPipe returns a pipe delivering to h. Call Run to start delivery.
func NewPipe(name string, h Handler, opts ...PipeOption) *Pipe {
	p := &Pipe{
		name:    name,
		handler: h,
		logger:  slog.Default(),
		retries: 3,
		backoff: 20 * time.Millisecond,
		queue:   make([][]byte, 0, 64),
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With(slog.String("pipe", name))
	return p
}

// Send stamps env with the next sequence number and enqueues it.
func (p *Pipe) Send(env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.seq++
	env.Seq = p.seq
	data, err := Encode(env)
	if err != nil {
		p.seq--
		return err
	}
	p.queue = append(p.queue, data)
	select {
	case p.signal <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting envelopes. Run delivers what is already queued and
// returns.
func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Pending reports how many envelopes are queued or being delivered.
func (p *Pipe) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.queue)
	if p.busy {
		n++
	}
	return n
}

// Done is closed when Run returns.
func (p *Pipe) Done() <-chan struct{} { return p.stopped }

// Run delivers envelopes until ctx is cancelled or the pipe is closed and
// drained.
func (p *Pipe) Run(ctx context.Context) error {
	defer close(p.stopped)
	for {
		data, ok, closed := p.next()
		if ok {
			p.deliver(ctx, data)
			continue
		}
		if closed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.signal:
		}
	}
}

func (p *Pipe) next() (data []byte, ok, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = false
	if len(p.queue) == 0 {
		return nil, false, p.closed
	}
	data = p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.busy = true
	return data, true, false
}

func (p *Pipe) deliver(ctx context.Context, data []byte) {
	backoff := p.backoff
	for attempt := 0; ; attempt++ {
		env, err := Decode(data)
		if err != nil {
			p.logger.Error("channel: undecodable envelope dropped", slog.String("error", err.Error()))
			return
		}
		err = p.handler(ctx, env)
		if err == nil {
			return
		}
		if attempt >= p.retries || ctx.Err() != nil {
			p.logger.Error("channel: delivery failed",
				slog.Uint64("seq", env.Seq),
				slog.Int("attempts", attempt+1),
				slog.String("error", err.Error()))
			return
		}
		p.logger.Warn("channel: delivery failed, retrying",
			slog.Uint64("seq", env.Seq),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
