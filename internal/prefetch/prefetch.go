// Package prefetch implements the low-priority pre-population collaborator
// of §4.6: the Prefetcher.
package prefetch

import (
	"sync"
	"time"

	"imagepipe/internal/imagepipe"
	"imagepipe/internal/manager"
)

// DefaultMaxConcurrentPreheatTasks is the default budget on simultaneously
// running preheat tasks (§4.6).
const DefaultMaxConcurrentPreheatTasks = 3

// DefaultResumeDelay is how long the coalesced resume pass waits after a
// Manager task-state-change notification before running.
const DefaultResumeDelay = 200 * time.Millisecond

type entry struct {
	key  imagepipe.RequestKey
	task *manager.Task
}

// Prefetcher wraps a Manager, maintaining an insertion-ordered, deduplicated
// list of low-priority Suspended tasks and resuming them opportunistically
// as the Manager's running-task budget allows, without ever claiming a slot
// a foreground resume wants (§4.6).
//
// A Prefetcher registers itself as the Manager's task-state-changed
// observer, so at most one Prefetcher may be attached to a given Manager at
// a time.
type Prefetcher struct {
	mgr           *manager.Manager
	maxConcurrent int
	resumeDelay   time.Duration

	mu     sync.Mutex
	order  []entry
	timer  *time.Timer
	closed bool
}

// New returns a Prefetcher driving mgr, budgeted at maxConcurrentPreheatTasks
// simultaneously running preheat tasks. A value <= 0 uses
// DefaultMaxConcurrentPreheatTasks.
func New(mgr *manager.Manager, maxConcurrentPreheatTasks int) *Prefetcher {
	if maxConcurrentPreheatTasks <= 0 {
		maxConcurrentPreheatTasks = DefaultMaxConcurrentPreheatTasks
	}
	p := &Prefetcher{
		mgr:           mgr,
		maxConcurrent: maxConcurrentPreheatTasks,
		resumeDelay:   DefaultResumeDelay,
	}
	mgr.OnTaskStateChanged(p.onTaskStateChanged)
	return p
}

// Close cancels every tracked task and stops the coalesced resume timer.
// The Prefetcher must not be used afterward.
func (p *Prefetcher) Close() {
	p.StopPreheatingAll()
	p.mu.Lock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()
}

// StartPreheating creates a Suspended task for each request whose
// loading-equivalent key is not already tracked, and schedules a coalesced
// resume pass. Requests already tracked (by loading-equivalence) are
// skipped, matching the spec's stated dedup default (§9).
func (p *Prefetcher) StartPreheating(requests []imagepipe.Request) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	for _, req := range requests {
		key := imagepipe.NewRequestKey(req, imagepipe.LoadingEquivalence)
		if p.findLocked(key) != nil {
			continue
		}
		// MakeTask notifies onTaskStateChanged synchronously, which takes
		// p.mu, so the lock is released around the call.
		p.mu.Unlock()
		t := p.mgr.MakeTask(req, nil, nil)
		p.mu.Lock()
		p.order = append(p.order, entry{key: key, task: t})
	}
	p.scheduleResumePassLocked()
	p.mu.Unlock()
}

// StopPreheating cancels the tracked task matching each request's
// loading-equivalent key, if any. Requests with no matching tracked task
// are ignored.
func (p *Prefetcher) StopPreheating(requests []imagepipe.Request) {
	p.mu.Lock()
	var toCancel []*manager.Task
	for _, req := range requests {
		key := imagepipe.NewRequestKey(req, imagepipe.LoadingEquivalence)
		if t := p.findLocked(key); t != nil {
			toCancel = append(toCancel, t)
		}
	}
	p.mu.Unlock()

	for _, t := range toCancel {
		t.Cancel()
	}
}

// StopPreheatingAll cancels every currently tracked task.
func (p *Prefetcher) StopPreheatingAll() {
	p.mu.Lock()
	all := make([]*manager.Task, 0, len(p.order))
	for _, e := range p.order {
		all = append(all, e.task)
	}
	p.mu.Unlock()

	for _, t := range all {
		t.Cancel()
	}
}

func (p *Prefetcher) findLocked(key imagepipe.RequestKey) *manager.Task {
	for _, e := range p.order {
		if e.key.Equal(key) {
			return e.task
		}
	}
	return nil
}

func (p *Prefetcher) removeLocked(t *manager.Task) {
	for i, e := range p.order {
		if e.task == t {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

// onTaskStateChanged is the Manager's task-state-changed observer. Any
// transition — not just one of our own tracked tasks reaching a terminal
// state — can free or consume a running-task slot, so every notification
// schedules the coalesced resume pass.
func (p *Prefetcher) onTaskStateChanged(t *manager.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	switch t.State() {
	case manager.StateCompleted, manager.StateCancelled:
		p.removeLocked(t)
	}
	p.scheduleResumePassLocked()
}

func (p *Prefetcher) scheduleResumePassLocked() {
	if p.timer != nil {
		return
	}
	p.timer = time.AfterFunc(p.resumeDelay, p.runResumePass)
}

func (p *Prefetcher) runResumePass() {
	p.mu.Lock()
	p.timer = nil
	if p.closed {
		p.mu.Unlock()
		return
	}
	pending := make([]*manager.Task, len(p.order))
	for i, e := range p.order {
		pending[i] = e.task
	}
	p.mu.Unlock()

	for _, t := range pending {
		if p.mgr.RunningCount() >= p.maxConcurrent {
			return
		}
		if t.State() == manager.StateSuspended {
			t.Resume()
		}
	}
}
