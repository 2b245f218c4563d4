package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestSampleProducerMoments(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewSampleProducer(1024, seeded(3))
	p.Start(ctx)

	const n = 20000
	var sum, sumSq float64
	for range n {
		v, err := p.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		sum += v
		sumSq += v * v
	}
	mean := sum / n
	std := math.Sqrt(sumSq/n - mean*mean)
	if math.Abs(mean) > 0.05 || math.Abs(std-1) > 0.05 {
		t.Fatalf("mean=%.3f std=%.3f, want ~0 and ~1", mean, std)
	}
}

func TestSampleProducerFillsBufferAndWaits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewSampleProducer(64, seeded(4))
	p.Start(ctx)

	deadline := time.After(2 * time.Second)
	for p.Buffered() < p.Capacity() {
		select {
		case <-deadline:
			t.Fatalf("buffer never filled: %d/%d", p.Buffered(), p.Capacity())
		case <-time.After(time.Millisecond):
		}
	}
	select {
	case <-p.Done():
		t.Fatalf("producer exited on a full buffer")
	default:
	}

	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatalf("producer did not stop after cancel")
	}

	// buffered samples are still served, then the stream ends
	drained := 0
	for {
		_, err := p.Next(context.Background())
		if errors.Is(err, ErrSamplesExhausted) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		drained++
	}
	if drained != 64 {
		t.Fatalf("drained %d samples, want 64", drained)
	}
}

func TestSampleProducerNextHonorsContext(t *testing.T) {
	p := NewSampleProducer(1, seeded(1)) // never started
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewSampleProducerDefaultCapacity(t *testing.T) {
	p := NewSampleProducer(0, seeded(1))
	if p.Capacity() != DefaultSampleBuffer {
		t.Fatalf("Capacity()=%d, want %d", p.Capacity(), DefaultSampleBuffer)
	}
}
