// Package dedup collapses concurrently in-flight equivalent requests onto
// a single underlying load (§4.3).
package dedup

import (
	"sync/atomic"

	"imagepipe/internal/imagepipe"
)

// Loading is the Loader-shaped collaborator a Deduplicator wraps. A
// *pipeline.Loader satisfies this directly.
type Loading interface {
	Load(req imagepipe.Request, progress func(completed, total int64), completion func(imagepipe.Image, error)) imagepipe.Cancellable
}

// Deduplicator wraps a Loading collaborator, keyed by default on the
// loading-equivalent predicate (the Open Question in §9 over which
// predicate backs prefetch dedup is resolved the same way: loading-
// equivalent, to match the source's observed default).
//
// Every operation that touches the dedup map or a shared load's
// subscriber list is serialized through a single goroutine (the "serial
// lane" of §4.3) so subscribe, unsubscribe and fan-out never race.
type Deduplicator struct {
	loader    Loading
	predicate imagepipe.EquivalencePredicate
	table     *imagepipe.Table[*sharedLoad]

	ops  chan func()
	idGen atomic.Uint64
}

type subscriber struct {
	id         uint64
	progress   func(completed, total int64)
	completion func(imagepipe.Image, error)
}

type sharedLoad struct {
	subscribers []*subscriber
	underlying  imagepipe.Cancellable
}

// New returns a Deduplicator keyed on loading-equivalence.
func New(loader Loading) *Deduplicator {
	return NewWithPredicate(loader, imagepipe.LoadingEquivalence)
}

// NewWithPredicate returns a Deduplicator keyed on an explicit predicate.
func NewWithPredicate(loader Loading, predicate imagepipe.EquivalencePredicate) *Deduplicator {
	d := &Deduplicator{
		loader:    loader,
		predicate: predicate,
		table:     imagepipe.NewTable[*sharedLoad](),
		ops:       make(chan func(), 64),
	}
	go d.run()
	return d
}

func (d *Deduplicator) run() {
	for op := range d.ops {
		op()
	}
}

// Close stops the dispatch lane. Safe to call once; a Subscribe, Cancel or
// underlying progress/completion callback after Close sends on the closed
// lane and panics.
func (d *Deduplicator) Close() {
	close(d.ops)
}

// Subscribe finds or creates the shared load for req's key and appends a
// subscriber to it. If no shared load exists yet, the underlying loader is
// invoked exactly once. The returned Cancellable removes only this
// subscriber; the underlying load is cancelled only once every subscriber
// has done so.
func (d *Deduplicator) Subscribe(req imagepipe.Request, progress func(completed, total int64), completion func(imagepipe.Image, error)) imagepipe.Cancellable {
	key := imagepipe.NewRequestKey(req, d.predicate)
	id := d.idGen.Add(1)
	sub := &subscriber{id: id, progress: progress, completion: completion}

	d.ops <- func() {
		load, ok := d.table.Get(key)
		if !ok {
			load = &sharedLoad{}
			d.table.Set(key, load)
			load.subscribers = append(load.subscribers, sub)
			load.underlying = d.loader.Load(req, d.fanProgress(key), d.fanCompletion(key))
			return
		}
		load.subscribers = append(load.subscribers, sub)
	}

	return imagepipe.CancelFunc(func() {
		d.ops <- func() {
			d.unsubscribeLocked(key, id)
		}
	})
}

func (d *Deduplicator) fanProgress(key imagepipe.RequestKey) func(completed, total int64) {
	return func(completed, total int64) {
		d.ops <- func() {
			load, ok := d.table.Get(key)
			if !ok {
				return
			}
			for _, s := range load.subscribers {
				if s.progress != nil {
					s.progress(completed, total)
				}
			}
		}
	}
}

func (d *Deduplicator) fanCompletion(key imagepipe.RequestKey) func(imagepipe.Image, error) {
	return func(img imagepipe.Image, err error) {
		d.ops <- func() {
			load, ok := d.table.Get(key)
			if !ok {
				return
			}
			d.table.Delete(key)
			for _, s := range load.subscribers {
				s.completion(img, err)
			}
		}
	}
}

// unsubscribeLocked must only run on the dispatch lane.
func (d *Deduplicator) unsubscribeLocked(key imagepipe.RequestKey, id uint64) {
	load, ok := d.table.Get(key)
	if !ok {
		return
	}
	idx := -1
	for i, s := range load.subscribers {
		if s.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	load.subscribers = append(load.subscribers[:idx], load.subscribers[idx+1:]...)
	if len(load.subscribers) == 0 {
		d.table.Delete(key)
		if load.underlying != nil {
			load.underlying.Cancel()
		}
	}
}
