package imagepipe

import "hash/fnv"

// EquivalencePredicate selects which of the two equivalence rules (§3) a
// RequestKey applies.
type EquivalencePredicate int

const (
	// LoadingEquivalence is used to key in-flight deduplication (§4.3).
	LoadingEquivalence EquivalencePredicate = iota
	// CachingEquivalence is used to key the memory cache (§4.5).
	CachingEquivalence
)

func (p EquivalencePredicate) equal(a, b Request) bool {
	switch p {
	case CachingEquivalence:
		return a.CachingEquivalent(b)
	default:
		return a.LoadingEquivalent(b)
	}
}

// RequestKey is a hashable wrapper carrying a Request and the equivalence
// predicate used to compare it against other keys. Its Hash is the URL's
// hash alone — policy-independent — so that a == b implies hash(a) ==
// hash(b): both predicates require equal URLs, a strictly tighter
// condition than the hash.
//
// RequestKey is not a Go-comparable type (a Request's Processor chain is a
// slice of a semantically-equatable interface, never structurally
// comparable with ==), so it cannot be used directly as a map key.
// internal/imagepipe/table.go provides the hash-bucketed container the
// rest of the core uses instead.
type RequestKey struct {
	Request   Request
	Predicate EquivalencePredicate
}

// NewRequestKey returns a RequestKey over req compared under predicate.
func NewRequestKey(req Request, predicate EquivalencePredicate) RequestKey {
	return RequestKey{Request: req, Predicate: predicate}
}

// Hash returns the policy-independent hash used to bucket this key.
func (k RequestKey) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k.Request.URL))
	return h.Sum64()
}

// Equal delegates to k's predicate.
func (k RequestKey) Equal(other RequestKey) bool {
	return k.Predicate.equal(k.Request, other.Request)
}
