// Package manager implements the task lifecycle, in-flight registry and
// memory-cache policy application of §4.4: the Manager and its Task.
package manager

import (
	"sync"

	"github.com/sirupsen/logrus"

	"imagepipe/internal/imagepipe"
	"imagepipe/internal/observe"
)

// Loading is the Deduplicator-shaped collaborator a Manager drives tasks
// through. *dedup.Deduplicator satisfies this.
type Loading interface {
	Subscribe(req imagepipe.Request, progress func(completed, total int64), completion func(imagepipe.Image, error)) imagepipe.Cancellable
}

// Manager owns task identity assignment, the in-flight task registry, and
// applies the memory-cache read/write policy around a Loading
// collaborator (§4.4). A single lock serializes every state transition
// and registry mutation; progress and completion callbacks are always
// posted to a dedicated callback lane with the lock released, so a
// callback that turns around and calls back into the Manager (e.g.
// resuming another task) never deadlocks. Because the lock is never held
// across a callback, a plain (non-reentrant) mutex is sufficient in
// practice — see DESIGN.md.
type Manager struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*Task

	loader Loading
	cache  imagepipe.ImageCaching
	log    *logrus.Entry

	callbackLane chan func()

	stateChangedMu sync.Mutex
	onStateChanged func(*Task)

	observerMu sync.Mutex
	observer   observe.Sink
}

// NewManager returns a Manager. cache may be nil, in which case the
// memory-cache read/write policy flags on a Request are always treated as
// misses/no-ops.
func NewManager(loader Loading, cache imagepipe.ImageCaching, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	m := &Manager{
		tasks:        make(map[int64]*Task),
		loader:       loader,
		cache:        cache,
		log:          log.WithField("component", "manager.Manager"),
		callbackLane: make(chan func(), 256),
		observer:     observe.NopSink{},
	}
	go m.runCallbackLane()
	return m
}

// Close stops the callback dispatch lane. Call once, after no further
// tasks will be created.
func (m *Manager) Close() { close(m.callbackLane) }

func (m *Manager) runCallbackLane() {
	for fn := range m.callbackLane {
		fn()
	}
}

func (m *Manager) dispatch(fn func()) { m.callbackLane <- fn }

// OnTaskStateChanged registers the single observer notified after every
// Task state transition (§4.4's "task state changed" notification). Used
// by internal/prefetch to learn when to run its coalesced resume pass.
// Replaces any previously registered observer.
func (m *Manager) OnTaskStateChanged(fn func(*Task)) {
	m.stateChangedMu.Lock()
	m.onStateChanged = fn
	m.stateChangedMu.Unlock()
}

// SetObserver installs sink as the Manager's lifecycle event recorder,
// replacing any previously installed one. A nil sink restores the default
// no-op behavior. Intended for tests asserting event ordering; production
// callers generally don't need it.
func (m *Manager) SetObserver(sink observe.Sink) {
	if sink == nil {
		sink = observe.NopSink{}
	}
	m.observerMu.Lock()
	m.observer = sink
	m.observerMu.Unlock()
}

func (m *Manager) record(event observe.Event) {
	m.observerMu.Lock()
	sink := m.observer
	m.observerMu.Unlock()
	observe.SafeRecord(sink, event)
}

func (m *Manager) notifyStateChanged(t *Task) {
	m.stateChangedMu.Lock()
	fn := m.onStateChanged
	m.stateChangedMu.Unlock()
	if fn != nil {
		fn(t)
	}
}

// MakeTask creates a Suspended Task for req with a Manager-assigned,
// monotonically increasing identifier. It does not start the task; call
// Resume to do that.
func (m *Manager) MakeTask(req imagepipe.Request, progress func(completed, total int64), completion func(imagepipe.Image, error)) *Task {
	m.mu.Lock()
	m.nextID++
	t := &Task{
		id:           m.nextID,
		request:      req,
		onProgress:   progress,
		onCompletion: completion,
		mgr:          m,
		state:        StateSuspended,
	}
	m.tasks[t.id] = t
	m.mu.Unlock()

	m.notifyStateChanged(t)
	return t
}

func (m *Manager) stateOf(t *Task) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return t.state
}

func (m *Manager) progressOf(t *Task) (int64, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return t.completed, t.total
}

// Tasks returns a snapshot of currently Running tasks.
func (m *Manager) Tasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.state == StateRunning {
			out = append(out, t)
		}
	}
	return out
}

// RunningCount reports the number of currently Running tasks.
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.state == StateRunning {
			n++
		}
	}
	return n
}

// ImageFor returns the memory-cache entry matching req's caching-
// equivalent key, bypassing the task lifecycle entirely.
func (m *Manager) ImageFor(req imagepipe.Request) (imagepipe.Image, bool) {
	if m.cache == nil {
		return imagepipe.Image{}, false
	}
	return m.cache.Get(imagepipe.NewRequestKey(req, imagepipe.CachingEquivalence))
}

// SetImage stores img under req's caching-equivalent key.
func (m *Manager) SetImage(img imagepipe.Image, req imagepipe.Request) {
	if m.cache == nil {
		return
	}
	m.cache.Put(imagepipe.NewRequestKey(req, imagepipe.CachingEquivalence), img)
}

// RemoveImage evicts req's caching-equivalent key, if present.
func (m *Manager) RemoveImage(req imagepipe.Request) {
	if m.cache == nil {
		return
	}
	m.cache.Remove(imagepipe.NewRequestKey(req, imagepipe.CachingEquivalence))
}

func (m *Manager) resume(t *Task) {
	m.mu.Lock()
	if !isAllowedTransition(t.state, StateRunning) {
		m.mu.Unlock()
		return
	}
	req := t.request

	if req.MemoryCacheRead && m.cache != nil {
		if img, ok := m.cache.Get(imagepipe.NewRequestKey(req, imagepipe.CachingEquivalence)); ok {
			t.state = StateCompleted
			delete(m.tasks, t.id)
			m.mu.Unlock()
			m.dispatch(func() {
				if t.onCompletion != nil {
					t.onCompletion(img, nil)
				}
			})
			m.notifyStateChanged(t)
			return
		}
	}

	t.state = StateRunning
	m.mu.Unlock()
	m.record(observe.Event{Kind: observe.EventResumed, TaskID: t.id, URL: req.URL})
	m.notifyStateChanged(t)

	cancelHandle := m.loader.Subscribe(req,
		func(completed, total int64) {
			m.mu.Lock()
			t.completed, t.total = completed, total
			m.mu.Unlock()
			m.record(observe.Event{Kind: observe.EventProgressed, TaskID: t.id, URL: req.URL, Completed: completed, Total: total})
			m.dispatch(func() {
				if t.onProgress != nil {
					t.onProgress(completed, total)
				}
			})
		},
		func(img imagepipe.Image, err error) {
			m.onLoadComplete(t, img, err)
		},
	)

	m.mu.Lock()
	if t.state != StateRunning {
		// Cancelled while the Subscribe call was in flight: the
		// subscription started regardless, so cancel it now rather than
		// leaving it running unobserved.
		m.mu.Unlock()
		cancelHandle.Cancel()
		return
	}
	t.cancelHandle = cancelHandle
	m.mu.Unlock()
}

func (m *Manager) onLoadComplete(t *Task, img imagepipe.Image, err error) {
	m.mu.Lock()
	if t.state != StateRunning {
		m.mu.Unlock()
		return
	}

	if err == nil && t.request.MemoryCacheWrite && m.cache != nil {
		// Stored before the lock is released and well before the
		// completion dispatch below, satisfying the happens-before
		// ordering guarantee of §5: a successful ImageFor lookup is
		// available before the caller's completion callback returns.
		m.cache.Put(imagepipe.NewRequestKey(t.request, imagepipe.CachingEquivalence), img)
	}

	t.state = StateCompleted
	delete(m.tasks, t.id)
	m.mu.Unlock()

	var taskErr error
	if err != nil {
		taskErr = imagepipe.NewLoadingError(err)
		m.log.WithError(err).Debug("task failed")
	}
	m.record(observe.Event{Kind: observe.EventCompleted, TaskID: t.id, URL: t.request.URL})
	m.dispatch(func() {
		if t.onCompletion != nil {
			t.onCompletion(img, taskErr)
		}
	})
	m.notifyStateChanged(t)
}

func (m *Manager) cancel(t *Task) {
	m.mu.Lock()
	switch t.state {
	case StateSuspended:
		t.state = StateCancelled
		delete(m.tasks, t.id)
		m.mu.Unlock()
		m.record(observe.Event{Kind: observe.EventCancelled, TaskID: t.id, URL: t.request.URL})
		m.dispatch(func() {
			if t.onCompletion != nil {
				t.onCompletion(imagepipe.Image{}, imagepipe.ErrCancelled)
			}
		})
		m.notifyStateChanged(t)
	case StateRunning:
		t.state = StateCancelled
		delete(m.tasks, t.id)
		handle := t.cancelHandle
		m.mu.Unlock()
		if handle != nil {
			handle.Cancel()
		}
		m.record(observe.Event{Kind: observe.EventCancelled, TaskID: t.id, URL: t.request.URL})
		m.dispatch(func() {
			if t.onCompletion != nil {
				t.onCompletion(imagepipe.Image{}, imagepipe.ErrCancelled)
			}
		})
		m.notifyStateChanged(t)
	default:
		m.mu.Unlock()
	}
}
