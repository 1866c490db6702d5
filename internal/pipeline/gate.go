package pipeline

import (
	"context"
	"sync"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// gate is the cooperative control point a running job checks between
// units of work. Pausing blocks the next checkpoint until resumed;
// cancelling makes every subsequent checkpoint return domain.ErrCancelled.
// Stopping (process shutdown) wakes paused jobs without marking them
// cancelled so they can exit and be reconciled on restart.
type gate struct {
	mu        sync.Mutex
	cond      *sync.Cond
	paused    bool
	cancelled bool
	stopped   bool
	cancelCh  chan struct{}
}

func newGate() *gate {
	g := &gate{cancelCh: make(chan struct{})}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// checkpoint blocks while the job is paused and reports cancellation.
// It is called between search pages, between downloads and before each
// per-paper extract and translate call.
func (g *gate) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.paused && !g.cancelled && !g.stopped {
		g.cond.Wait()
	}
	if g.cancelled {
		return domain.ErrCancelled
	}
	if g.stopped {
		return context.Canceled
	}
	return ctx.Err()
}

func (g *gate) pause() {
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

func (g *gate) resume() {
	g.mu.Lock()
	g.paused = false
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *gate) cancel() {
	g.mu.Lock()
	if !g.cancelled {
		g.cancelled = true
		close(g.cancelCh)
	}
	g.mu.Unlock()
	g.cond.Broadcast()
}

// cancelled returns a channel closed once the job is cancelled, for
// callers that need to select against it.
func (g *gate) cancelledCh() <-chan struct{} {
	return g.cancelCh
}

func (g *gate) stop() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *gate) isCancelled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelled
}
