package jsonrpc

import "sort"

// Registry holds the methods available for dispatch, keyed by external
// name. It is populated during startup and read-only afterwards, so
// lookups need no locking; a host that registers methods late must
// provide its own synchronization.
type Registry struct {
	methods map[string]*Method
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]*Method)}
}

// Add registers m. A name that is already taken is silently ignored;
// the first registration wins.
func (r *Registry) Add(m *Method) {
	if _, exists := r.methods[m.name]; exists {
		return
	}
	r.methods[m.name] = m
	r.order = append(r.order, m.name)
}

// Register derives a descriptor from fn and opts and adds it.
func (r *Registry) Register(fn HandlerFunc, opts Options) error {
	m, err := NewMethod(fn, opts)
	if err != nil {
		return err
	}
	r.Add(m)
	return nil
}

// Lookup finds a method by its external name.
func (r *Registry) Lookup(name string) (*Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// Methods returns all methods in registration order. This is the order
// system.describe and the method summary page present them in.
func (r *Registry) Methods() []*Method {
	out := make([]*Method, len(r.order))
	for i, name := range r.order {
		out[i] = r.methods[name]
	}
	return out
}

// Names returns all method names sorted ascending by byte value, the
// order system.listMethods reports.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	return len(r.order)
}
