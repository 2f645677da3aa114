package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limited throttles calls to a remote provider with a token bucket.
type Limited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewLimited allows requestsPerSecond calls with the given burst. A burst
// below 1 is raised to 1.
func NewLimited(next Provider, requestsPerSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Embed waits for a token, then delegates.
func (l *Limited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, newError(KindTransport, l.next.Name(), err)
	}
	return l.next.Embed(ctx, texts)
}

// Dimension implements Provider.
func (l *Limited) Dimension() int { return l.next.Dimension() }

// Name implements Provider.
func (l *Limited) Name() string { return l.next.Name() }

// Recorder receives one observation per Embed call.
type Recorder interface {
	RecordEmbedding(provider string, duration time.Duration, err error)
}

// Instrumented reports every call to a Recorder.
type Instrumented struct {
	next     Provider
	recorder Recorder
}

// NewInstrumented wraps next. A nil recorder returns next unchanged.
func NewInstrumented(next Provider, recorder Recorder) Provider {
	if recorder == nil {
		return next
	}
	return &Instrumented{next: next, recorder: recorder}
}

// Embed implements Provider.
func (i *Instrumented) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	out, err := i.next.Embed(ctx, texts)
	i.recorder.RecordEmbedding(i.next.Name(), time.Since(start), err)
	return out, err
}

// Dimension implements Provider.
func (i *Instrumented) Dimension() int { return i.next.Dimension() }

// Name implements Provider.
func (i *Instrumented) Name() string { return i.next.Name() }
