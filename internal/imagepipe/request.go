package imagepipe

import "time"

// CachePolicy is a transport-level hint describing how aggressively the
// data loader should consult any intermediate (e.g. HTTP) cache. The core
// does not interpret this value itself; it is forwarded to the DataLoading
// collaborator verbatim and participates in loading-equivalence.
type CachePolicy int

const (
	// CachePolicyDefault lets the data loader apply its own default policy.
	CachePolicyDefault CachePolicy = iota
	// CachePolicyReloadIgnoringCache forces a fresh network fetch.
	CachePolicyReloadIgnoringCache
	// CachePolicyReturnCacheDataElseLoad prefers a cached response, falling
	// back to network only on a miss.
	CachePolicyReturnCacheDataElseLoad
	// CachePolicyReturnCacheDataDontLoad never falls back to the network.
	CachePolicyReturnCacheDataDontLoad
)

// ServiceClass hints at the relative priority of a request to the data
// loader, mirroring the kind of quality-of-service classes a networking
// stack exposes. The core never reorders work based on this value itself;
// it only participates in loading-equivalence and is forwarded verbatim.
type ServiceClass int

const (
	// ServiceClassDefault is the normal, foreground priority.
	ServiceClassDefault ServiceClass = iota
	// ServiceClassBackground is suitable for prefetching.
	ServiceClassBackground
)

// Request is an immutable-once-submitted description of a resource fetch
// plus the transforms to apply to the decoded result.
//
// Equivalence predicates (LoadingEquivalent, CachingEquivalent) operate
// purely on URL, transport hints and the Processor chain — never on the
// memory-cache policy flags or UserInfo, which are per-call bookkeeping.
type Request struct {
	// URL is the resource locator. Two requests with different URLs are
	// never equivalent under either predicate.
	URL string

	// CachePolicy is a transport-level hint forwarded to the data loader.
	CachePolicy CachePolicy

	// Timeout bounds the data-loading stage. The core never enforces this
	// itself; it is forwarded to the DataLoading collaborator.
	Timeout time.Duration

	// ServiceClass hints at relative priority.
	ServiceClass ServiceClass

	// CellularAllowed indicates whether the data loader may use a metered
	// (cellular) network path.
	CellularAllowed bool

	// Processors is the ordered composition applied to the decoded image.
	// A nil or empty chain means "no post-processing".
	Processors ProcessorChain

	// MemoryCacheRead controls whether Task.Resume may satisfy this
	// request from the memory cache. Defaults to true (the caller opts out,
	// not in).
	MemoryCacheRead bool

	// MemoryCacheWrite controls whether a successful load is stored in the
	// memory cache. Defaults to true.
	MemoryCacheWrite bool

	// UserInfo is an opaque slot for caller bookkeeping. It never
	// participates in any equivalence predicate.
	UserInfo any
}

// NewRequest returns a Request with the default policy flags set (read and
// write the memory cache) and no transforms.
func NewRequest(url string) Request {
	return Request{
		URL:              url,
		MemoryCacheRead:  true,
		MemoryCacheWrite: true,
	}
}

// WithProcessors returns a copy of r with its Processor chain replaced.
func (r Request) WithProcessors(processors ...Processor) Request {
	r.Processors = ProcessorChain(processors)
	return r
}

// LoadingEquivalent reports whether r and other would collapse onto the
// same underlying network load: same URL, cache policy, timeout, service
// class, cellular flag and an equal Processor composition.
func (r Request) LoadingEquivalent(other Request) bool {
	return r.URL == other.URL &&
		r.CachePolicy == other.CachePolicy &&
		r.Timeout == other.Timeout &&
		r.ServiceClass == other.ServiceClass &&
		r.CellularAllowed == other.CellularAllowed &&
		r.Processors.Equal(other.Processors)
}

// CachingEquivalent reports whether r and other would hit the same memory
// cache entry: same URL and an equal Processor composition, ignoring every
// transport hint.
func (r Request) CachingEquivalent(other Request) bool {
	return r.URL == other.URL && r.Processors.Equal(other.Processors)
}
