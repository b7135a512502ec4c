package imagepipe

// Processor is a named, equatable transform over a decoded Image.
//
// Equality is semantic, not structural: two Processors must compare equal
// iff they produce identical output for every input. Built-in Processors
// satisfy this by comparing their configuration fields; Processors that
// close over unexported state and cannot honor this contract should embed
// NeverEqual to make that explicit rather than silently returning false
// from a field-by-field comparison that happens to differ by pointer
// identity.
type Processor interface {
	// Name identifies the Processor for tracing and diagnostics. It does
	// not participate in Equal by itself — two differently-named
	// Processors with identical behavior are still free to report Equal.
	Name() string

	// Apply transforms img, returning ErrProcessingFailed (or a wrapped
	// form of it) if the transform cannot be applied.
	Apply(img Image) (Image, error)

	// Equal reports whether other produces identical output to this
	// Processor for every input.
	Equal(other Processor) bool
}

// NeverEqual is embeddable by a Processor whose Equal contract cannot be
// honored structurally (e.g. one that closes over unexported state or a
// callback). It reports false for every comparison, including against
// another instance of itself, so two such Processors are never folded
// together even when a caller submits the identical Request twice.
type NeverEqual struct{}

// Equal always reports false.
func (NeverEqual) Equal(Processor) bool { return false }

// ProcessorChain is an ordered composition of Processors, applied
// left-to-right. A nil or empty chain is the identity transform.
type ProcessorChain []Processor

// Equal reports whether c and other are pairwise-equal compositions of the
// same length.
func (c ProcessorChain) Equal(other ProcessorChain) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if !c[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Apply runs every Processor in order, short-circuiting on the first
// failure. The error is always ErrProcessingFailed or wraps it.
func (c ProcessorChain) Apply(img Image) (Image, error) {
	out := img
	for _, p := range c {
		next, err := p.Apply(out)
		if err != nil {
			return Image{}, wrapProcessingFailed(p.Name(), err)
		}
		out = next.withTrace(p.Name())
	}
	return out, nil
}
