package pipeline

import (
	"context"
	"runtime"
)

// gate is a counting semaphore bounding concurrent encode jobs.
// Encoding is CPU-bound; without the bound a burst of requests would
// spawn one ffmpeg per request and exhaust the host.
type gate struct {
	slots chan struct{}
}

func newGate(limit int) *gate {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return &gate{slots: make(chan struct{}, limit)}
}

func (g *gate) acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) release() {
	<-g.slots
}

// limit reports the configured slot count.
func (g *gate) limit() int {
	return cap(g.slots)
}
