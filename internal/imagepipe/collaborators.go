package imagepipe

import "net/http"

// Response carries the transport metadata returned alongside loaded bytes
// (status and headers), the minimum a DataCaching implementation needs to
// decide whether and how long to persist an entry. It intentionally does
// not carry a body: the body is always the sibling []byte.
type Response struct {
	StatusCode int
	Header     http.Header
}

// LoadResult is what a DataLoading collaborator's completion callback
// receives: either Data+Response, or Err, never both.
type LoadResult struct {
	Data     []byte
	Response Response
	Err      error
}

// Cancellable is a handle returned by an operation that can be aborted
// before or during its run. Cancel is always safe to call, idempotent,
// and non-blocking (§5).
type Cancellable interface {
	Cancel()
}

// CancelFunc adapts a plain function to Cancellable.
type CancelFunc func()

// Cancel implements Cancellable.
func (f CancelFunc) Cancel() {
	if f != nil {
		f()
	}
}

// NoopCancellable does nothing; useful for synchronous paths (e.g. a
// memory-cache hit) that never need to be cancelled.
var NoopCancellable Cancellable = CancelFunc(nil)

// DataLoading is the pluggable network-fetch collaborator (§6.1). Load
// must invoke completion exactly once, even when the returned Cancellable
// is cancelled first — the stage executor's async unit depends on that to
// release its concurrency slot.
type DataLoading interface {
	Load(req Request, progress func(completed, total int64), completion func(LoadResult)) Cancellable
}

// DataDecoding is the pluggable image-decode collaborator (§6.2). A false
// second return means "decoding failed"; Decode must be safe to call
// concurrently up to whatever concurrency the decoder declares it
// supports (the core serializes calls onto a single-worker executor by
// default, §4.1).
type DataDecoding interface {
	Decode(data []byte, resp Response) (Image, bool)
}

// DataCaching is the optional pluggable on-disk persistence collaborator
// (§6.3). Read failures are treated as misses by the Loader; write
// failures are best-effort and never propagate.
type DataCaching interface {
	Get(req Request) (data []byte, resp Response, ok bool)
	Put(req Request, data []byte, resp Response)
}

// ImageCaching is the in-memory decoded-image cache collaborator (§6.4),
// also the contract internal/memcache implements.
type ImageCaching interface {
	Get(key RequestKey) (Image, bool)
	Put(key RequestKey, img Image)
	Remove(key RequestKey)
	Clear()
}
