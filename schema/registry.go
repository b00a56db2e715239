package schema

// Handle is a small stable reference to an interned schema. Handles are
// indices into a Registry and stay valid until the registry is torn down.
type Handle uint32

// Unset is the reserved handle of a view that has not been bound to any
// schema yet. Resolving it fails.
const Unset = Handle(^uint32(0))

// Registry interns schema descriptors by value. It is append-only: entries
// are never mutated or removed, so resolved *Schema pointers stay valid for
// the registry's lifetime.
//
// A Registry has a single owner (typically the simulation context) and is
// not safe for concurrent mutation.
type Registry struct {
	entries []*Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Intern returns the handle of an entry value-equal to d, appending a new
// entry if none exists. Equality ignores ChromMap, so descriptors that
// differ only in their distribution map share one entry.
func (r *Registry) Intern(d Descriptor) (Handle, *Schema, error) {
	if err := d.Validate(); err != nil {
		return Unset, nil, err
	}
	for i, e := range r.entries {
		if e.Descriptor.Equal(d) {
			return Handle(i), e, nil
		}
	}
	s := newSchema(d)
	r.entries = append(r.entries, s)
	return Handle(len(r.entries) - 1), s, nil
}

// Resolve returns the schema for a handle.
func (r *Registry) Resolve(h Handle) (*Schema, error) {
	if h == Unset {
		return nil, ErrUnsetHandle
	}
	if int(h) >= len(r.entries) {
		return nil, &RangeError{What: "schema handle", Index: int(h), Size: len(r.entries)}
	}
	return r.entries[h], nil
}

// Len returns the number of interned schemas.
func (r *Registry) Len() int { return len(r.entries) }
