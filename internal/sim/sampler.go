package sim

import (
	"context"
	"errors"
	"math/rand/v2"
)

// DefaultSampleBuffer is the sample buffer capacity used when none is configured.
const DefaultSampleBuffer = 32768

// ErrSamplesExhausted is returned once the producer has stopped and its buffer is drained.
var ErrSamplesExhausted = errors.New("sample producer stopped and buffer drained")

// SampleSource hands out standard-normal samples in request order.
type SampleSource interface {
	// Next blocks until a sample is available.
	Next(ctx context.Context) (float64, error)
}

// SampleProducer draws standard-normal samples on its own goroutine into a
// bounded buffer, so sampling cost stays off the assembly loop.
type SampleProducer struct {
	buf  chan float64
	rng  *rand.Rand
	done chan struct{}
}

// NewSampleProducer creates a producer with the given buffer capacity. The rng
// is owned by the producer goroutine once Run starts.
func NewSampleProducer(capacity int, rng *rand.Rand) *SampleProducer {
	if capacity <= 0 {
		capacity = DefaultSampleBuffer
	}
	return &SampleProducer{
		buf:  make(chan float64, capacity),
		rng:  rng,
		done: make(chan struct{}),
	}
}

// Run fills the buffer until ctx is canceled, then closes the write end. A full
// buffer parks the producer until the consumer frees a slot or ctx ends.
func (p *SampleProducer) Run(ctx context.Context) {
	defer close(p.done)
	defer close(p.buf)
	for {
		v := p.rng.NormFloat64()
		select {
		case p.buf <- v:
		case <-ctx.Done():
			return
		}
	}
}

// Start runs the producer on a new goroutine.
func (p *SampleProducer) Start(ctx context.Context) {
	go p.Run(ctx)
}

// Done is closed after Run returns.
func (p *SampleProducer) Done() <-chan struct{} {
	return p.done
}

// Next takes one sample, blocking while the buffer is empty. Buffered samples are
// still served after the producer stopped; once they are gone Next returns
// ErrSamplesExhausted.
func (p *SampleProducer) Next(ctx context.Context) (float64, error) {
	select {
	case v, ok := <-p.buf:
		if !ok {
			return 0, ErrSamplesExhausted
		}
		return v, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Buffered is the number of samples waiting in the buffer.
func (p *SampleProducer) Buffered() int {
	return len(p.buf)
}

// Capacity is the buffer size.
func (p *SampleProducer) Capacity() int {
	return cap(p.buf)
}
