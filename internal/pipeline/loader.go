// Package pipeline drives a single Request through the four-stage stage
// graph (disk-cache lookup, network load, decode, process) and reports
// progress and completion back to its caller (§4.2).
package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"imagepipe/internal/imagepipe"
	"imagepipe/internal/stageexec"
)

// Default per-stage concurrency limits (§4.1).
const (
	DefaultCachingConcurrency    = 2
	DefaultLoadingConcurrency    = 8
	DefaultDecodingConcurrency   = 1
	DefaultProcessingConcurrency = 2
)

// Executors names the four bounded stage executors a Loader drives work
// through. All four are required; pass the same *stageexec.Executor for
// more than one field only if stages should genuinely share a budget.
type Executors struct {
	Caching    *stageexec.Executor
	Loading    *stageexec.Executor
	Decoding   *stageexec.Executor
	Processing *stageexec.Executor
}

// NewDefaultExecutors returns Executors sized to the §4.1 defaults.
func NewDefaultExecutors() Executors {
	return Executors{
		Caching:    stageexec.NewExecutor(DefaultCachingConcurrency),
		Loading:    stageexec.NewExecutor(DefaultLoadingConcurrency),
		Decoding:   stageexec.NewExecutor(DefaultDecodingConcurrency),
		Processing: stageexec.NewExecutor(DefaultProcessingConcurrency),
	}
}

// Loader drives one Request through the stage graph at a time per call to
// Load; a single Loader instance is safe to call Load on concurrently, one
// independent run per call.
type Loader struct {
	executors Executors

	dataLoader imagepipe.DataLoading
	decoder    imagepipe.DataDecoding
	diskCache  imagepipe.DataCaching // nil means "no disk cache configured"

	log *logrus.Entry
}

// NewLoader returns a Loader. diskCache may be nil, in which case the
// disk-cache lookup stage is skipped entirely (§4.2 stage 1).
func NewLoader(executors Executors, dataLoader imagepipe.DataLoading, decoder imagepipe.DataDecoding, diskCache imagepipe.DataCaching, log *logrus.Entry) *Loader {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Loader{
		executors:  executors,
		dataLoader: dataLoader,
		decoder:    decoder,
		diskCache:  diskCache,
		log:        log.WithField("component", "pipeline.Loader"),
	}
}

// run tracks one in-flight Load call: whether it has been cancelled, and
// the Cancellable for whichever stage is currently executing, so an
// external Cancel reaches the right stage regardless of timing. All
// "what to do next" decisions for this run are made while holding mu,
// the serial dispatch lane §4.2 requires.
type run struct {
	mu        sync.Mutex
	cancelled bool
	current   imagepipe.Cancellable
}

func (r *run) cancel() {
	r.mu.Lock()
	r.cancelled = true
	c := r.current
	r.mu.Unlock()
	if c != nil {
		c.Cancel()
	}
}

// armStage records c as the currently-running stage's Cancellable. It
// reports false if the run was already cancelled, in which case c is not
// recorded and the caller must cancel it and not proceed.
func (r *run) armStage(c imagepipe.Cancellable) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return false
	}
	r.current = c
	return true
}

func (r *run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Load drives req through the stage graph, invoking progress zero or more
// times and then completion at most once. Per §4.2, completion may be
// silently dropped if the returned Cancellable is cancelled first.
func (l *Loader) Load(req imagepipe.Request, progress func(completed, total int64), completion func(imagepipe.Image, error)) imagepipe.Cancellable {
	r := &run{}
	l.startDiskLookup(req, r, progress, completion)
	return imagepipe.CancelFunc(r.cancel)
}

type diskLookupResult struct {
	hit  bool
	data []byte
	resp imagepipe.Response
}

func (l *Loader) startDiskLookup(req imagepipe.Request, r *run, progress func(int64, int64), completion func(imagepipe.Image, error)) {
	if l.diskCache == nil {
		l.startLoadBytes(req, r, progress, completion)
		return
	}
	if r.isCancelled() {
		return
	}

	c := l.executors.Caching.Schedule(func(ctx context.Context) (any, error) {
		data, resp, ok := l.diskCache.Get(req)
		return diskLookupResult{hit: ok, data: data, resp: resp}, nil
	}, func(result any, err error) {
		if err != nil {
			l.log.WithError(err).Debug("disk-cache lookup cancelled")
			return
		}
		res := result.(diskLookupResult)
		if res.hit {
			l.startDecode(req, r, res.data, res.resp, completion)
			return
		}
		l.startLoadBytes(req, r, progress, completion)
	})
	if !r.armStage(c) {
		c.Cancel()
	}
}

type loadBytesResult struct {
	data []byte
	resp imagepipe.Response
}

func (l *Loader) startLoadBytes(req imagepipe.Request, r *run, progress func(int64, int64), completion func(imagepipe.Image, error)) {
	if r.isCancelled() {
		return
	}

	c := l.executors.Loading.ScheduleAsync(func(ctx context.Context, done func(any, error)) imagepipe.Cancellable {
		return l.dataLoader.Load(req, progress, func(res imagepipe.LoadResult) {
			if res.Err != nil {
				done(nil, imagepipe.NewLoadingError(res.Err))
				return
			}
			done(loadBytesResult{data: res.Data, resp: res.Response}, nil)
		})
	}, func(result any, err error) {
		if err != nil {
			if errors.Is(err, imagepipe.ErrCancelled) {
				return
			}
			if r.isCancelled() {
				return
			}
			completion(imagepipe.Image{}, err)
			return
		}
		res := result.(loadBytesResult)
		if l.diskCache != nil {
			go func() {
				defer func() { _ = recover() }()
				l.diskCache.Put(req, res.data, res.resp)
			}()
		}
		l.startDecode(req, r, res.data, res.resp, completion)
	})
	if !r.armStage(c) {
		c.Cancel()
	}
}

func (l *Loader) startDecode(req imagepipe.Request, r *run, data []byte, resp imagepipe.Response, completion func(imagepipe.Image, error)) {
	if r.isCancelled() {
		return
	}

	c := l.executors.Decoding.Schedule(func(ctx context.Context) (any, error) {
		img, ok := l.decoder.Decode(data, resp)
		if !ok {
			return nil, imagepipe.ErrDecodingFailed
		}
		return img, nil
	}, func(result any, err error) {
		if err != nil {
			if errors.Is(err, imagepipe.ErrCancelled) {
				return
			}
			if r.isCancelled() {
				return
			}
			completion(imagepipe.Image{}, err)
			return
		}
		l.startProcess(req, r, result.(imagepipe.Image), completion)
	})
	if !r.armStage(c) {
		c.Cancel()
	}
}

func (l *Loader) startProcess(req imagepipe.Request, r *run, img imagepipe.Image, completion func(imagepipe.Image, error)) {
	if r.isCancelled() {
		return
	}
	if len(req.Processors) == 0 {
		completion(img, nil)
		return
	}

	c := l.executors.Processing.Schedule(func(ctx context.Context) (any, error) {
		return req.Processors.Apply(img)
	}, func(result any, err error) {
		if err != nil {
			if errors.Is(err, imagepipe.ErrCancelled) {
				return
			}
			if r.isCancelled() {
				return
			}
			completion(imagepipe.Image{}, err)
			return
		}
		if r.isCancelled() {
			return
		}
		completion(result.(imagepipe.Image), nil)
	})
	if !r.armStage(c) {
		c.Cancel()
	}
}
