// Package body implements the lazy, backpressure-aware body stream model
// of spec.md §4.3: a single-subscription inbound byte-chunk sequence and a
// write-once outbound sink, plus the url-encoded/multipart/SSE/resource
// views built on top of them.
package body

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Chunk is one inbound byte fragment. A Chunk with Err set is terminal and
// carries the failure or cancellation cause; graceful completion sends no
// Err chunk, the channel is simply closed.
type Chunk struct {
	Data []byte
	Err  error
}

// ErrAlreadySubscribed is returned by Subscribe when called a second time;
// spec.md §4.3 requires inbound bodies to be single-subscription.
var ErrAlreadySubscribed = errors.New("body: already subscribed")

// ErrCancelled is the terminal Chunk.Err used when an Exchange is reset
// (spec.md §4.2/§5) while the body is still being read.
var ErrCancelled = errors.New("body: cancelled")

// Transform composes a publisher-side transformation over raw chunks
// (e.g. decompression). It must be installed before the first Subscribe
// call.
type Transform func([]byte) ([]byte, error)

// Inbound is a lazy, single-subscription, finite, backpressure-aware byte
// stream. The producer (an HTTP/1.x or HTTP/2 connection) pushes chunks
// through the paired Sink; once window chunks are buffered and not yet
// taken by the subscriber, the sink blocks, which is the backpressure
// contract of spec.md §4.3/§5.
type Inbound struct {
	ch          chan Chunk
	subscribed  atomic.Bool
	transformed atomic.Bool
	transforms  []Transform
	cancelOnce  sync.Once
	cancelCause atomic.Value // error
}

// NewInbound creates a paired (Inbound, Sink) with the given channel depth
// (the backpressure window).
func NewInbound(window int) (*Inbound, *Sink) {
	if window <= 0 {
		window = 1
	}
	in := &Inbound{ch: make(chan Chunk, window)}
	return in, &Sink{in: in}
}

// Transform installs a chunk transformation. Calling it after Subscribe
// panics - the spec requires transforms be applied before any
// subscription, and a caller ignoring that is a programming error, not a
// recoverable runtime condition.
func (b *Inbound) Transform(t Transform) *Inbound {
	if b.subscribed.Load() {
		panic("body: Transform called after Subscribe")
	}
	b.transforms = append(b.transforms, t)
	return b
}

// Subscribe returns the receive side of the chunk channel. It may be
// called at most once.
func (b *Inbound) Subscribe(ctx context.Context) (<-chan Chunk, error) {
	if !b.subscribed.CompareAndSwap(false, true) {
		return nil, ErrAlreadySubscribed
	}
	if len(b.transforms) == 0 {
		return b.ch, nil
	}
	out := make(chan Chunk, cap(b.ch))
	go b.runTransforms(ctx, out)
	return out, nil
}

func (b *Inbound) runTransforms(ctx context.Context, out chan<- Chunk) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			out <- Chunk{Err: ctx.Err()}
			return
		case c, ok := <-b.ch:
			if !ok {
				return
			}
			if c.Err != nil {
				out <- c
				return
			}
			data := c.Data
			for _, t := range b.transforms {
				var err error
				data, err = t(data)
				if err != nil {
					out <- Chunk{Err: err}
					return
				}
			}
			out <- Chunk{Data: data}
		}
	}
}

// Cancel terminates the stream with cause, releasing any buffered chunk
// (spec.md §8's reset-cleanup property: the inbound stream completes with
// a cancel error once Cancel/Exchange.reset is called).
func (b *Inbound) Cancel(cause error) {
	if cause == nil {
		cause = ErrCancelled
	}
	b.cancelOnce.Do(func() {
		b.cancelCause.Store(cause)
	drain:
		for {
			select {
			case _, ok := <-b.ch:
				if !ok {
					return // the sink already completed the stream
				}
			default:
				break drain
			}
		}
		select {
		case b.ch <- Chunk{Err: cause}:
		default:
		}
		close(b.ch)
	})
}

// CancelCause returns the cause passed to Cancel, if any.
func (b *Inbound) CancelCause() error {
	if v := b.cancelCause.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Sink is the producer-side handle paired with an Inbound. Exactly one
// goroutine (the owning connection's parser) should call Emit/Complete.
type Sink struct {
	in     *Inbound
	closed atomic.Bool
}

// Emit pushes one chunk, blocking until the subscriber has room (the
// backpressure contract) or ctx is cancelled.
func (s *Sink) Emit(ctx context.Context, data []byte) error {
	if s.closed.Load() {
		return errors.New("body: emit after completion")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case s.in.ch <- Chunk{Data: cp}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete marks the stream finished: with err == nil the channel is
// closed with no terminal chunk; otherwise a terminal Chunk carrying err
// is queued first (and dropped if the buffer is full).
func (s *Sink) Complete(err error) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if err != nil {
		select {
		case s.in.ch <- Chunk{Err: err}:
		default:
		}
	}
	close(s.in.ch)
}
