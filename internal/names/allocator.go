package names

// Allocator hands out short identifiers for signatures.
// One allocator belongs to one compilation unit; it is not safe for concurrent use.
type Allocator struct {
	enabled bool
	index   int

	bySignature map[string]string
	order       []string
}

// New creates an allocator. enabled tells callers whether minimized names should be emitted;
// allocation itself behaves the same either way.
func New(enabled bool) *Allocator {
	return &Allocator{
		enabled:     enabled,
		bySignature: make(map[string]string),
	}
}

// Enabled reports whether callers should emit minimized names.
func (a *Allocator) Enabled() bool {
	return a.enabled
}

// NextName returns a fresh name without caching it.
// It shares the counter with NameBySignature, so the two never collide.
func (a *Allocator) NextName() string {
	name := Encode(a.index)
	a.index++
	return name
}

// NameBySignature returns the name allocated for signature, allocating one on first use.
// Signatures are compared byte for byte.
func (a *Allocator) NameBySignature(signature string) string {
	if name, ok := a.bySignature[signature]; ok {
		return name
	}
	name := a.NextName()
	a.bySignature[signature] = name
	a.order = append(a.order, signature)
	return name
}

// Lookup reports the name of an already seen signature.
func (a *Allocator) Lookup(signature string) (string, bool) {
	name, ok := a.bySignature[signature]
	return name, ok
}

// Len is the number of cached signatures.
func (a *Allocator) Len() int {
	return len(a.order)
}

// Signatures returns cached signatures in first-seen order.
func (a *Allocator) Signatures() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}
