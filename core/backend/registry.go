package backend

// registry is the static resource name to collection mapping. It is built
// once in New from the parsed configuration and never mutated afterwards,
// so concurrent reads need no locking.
type registry map[string]*Collection

// resolve returns the collection registered under name, or
// ErrResourceNotFound. Resolution is a single map lookup; it runs on every
// request.
func (reg registry) resolve(name string) (*Collection, error) {
	collection, ok := reg[name]
	if !ok {
		return nil, ErrResourceNotFound
	}
	return collection, nil
}
