package session

import (
	"context"
	"sync"

	"github.com/yegors/livecap/internal/transcript"
	"github.com/yegors/livecap/pkg/logger"
)

// Persister writes the transcript log to the store after every log
// mutation: appends, merges, enrichment patches and translation inserts
// alike. It implements transcript.Listener; the callbacks only mark a
// dirty flag, the actual write happens on the persister's own goroutine
// so listener callbacks never re-enter the reconciler.
type Persister struct {
	store    Store
	snapshot func() []transcript.Entry
	logger   *logger.Logger

	dirty  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPersister creates a persister saving snapshots from the given
// source into store.
func NewPersister(ctx context.Context, store Store, snapshot func() []transcript.Entry, log *logger.Logger) *Persister {
	pCtx, pCancel := context.WithCancel(ctx)
	return &Persister{
		store:    store,
		snapshot: snapshot,
		logger:   log.Named("persister"),
		dirty:    make(chan struct{}, 1),
		ctx:      pCtx,
		cancel:   pCancel,
	}
}

// Start launches the flush goroutine.
func (p *Persister) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-p.dirty:
				p.flush()
			}
		}
	}()
}

// Stop flushes any pending write and halts the goroutine.
func (p *Persister) Stop() {
	p.cancel()
	p.wg.Wait()
	p.flush()
}

// OnAppend implements transcript.Listener.
func (p *Persister) OnAppend(transcript.Entry) { p.mark() }

// OnUpdate implements transcript.Listener.
func (p *Persister) OnUpdate(transcript.Entry) { p.mark() }

// OnInsert implements transcript.Listener.
func (p *Persister) OnInsert(string, transcript.Entry) { p.mark() }

// mark coalesces bursts of mutations into a single pending flush. It
// never blocks; it runs under the reconciler's lock.
func (p *Persister) mark() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

func (p *Persister) flush() {
	if err := p.store.SaveAll(p.snapshot()); err != nil {
		p.logger.Error("Failed to persist transcript", logger.Error(err))
	}
}
