package sdrange

// Registry accumulates discovered call sites in discovery order. Nothing is
// deduplicated: two records may share a location.
type Registry struct {
	callSites       []CallSite
	staticCallSites []StaticCallSite
	callees         map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{callees: make(map[string]struct{})}
}

// AddCallSite records a virtual call site.
func (r *Registry) AddCallSite(cs CallSite) {
	r.callSites = append(r.callSites, cs)
}

// AddStaticCallSite records a static call site.
func (r *Registry) AddStaticCallSite(cs StaticCallSite) {
	r.staticCallSites = append(r.staticCallSites, cs)
	r.callees[cs.Callee] = struct{}{}
}

// CallSites returns the virtual call sites in discovery order.
func (r *Registry) CallSites() []CallSite {
	return r.callSites
}

// StaticCallSites returns the static call sites in discovery order.
func (r *Registry) StaticCallSites() []StaticCallSite {
	return r.staticCallSites
}

// DistinctCallees returns how many different functions are called directly.
func (r *Registry) DistinctCallees() int {
	return len(r.callees)
}

// Lines returns the artifact lines of the virtual call sites.
func (r *Registry) Lines() []string {
	lines := make([]string, 0, len(r.callSites))
	for _, cs := range r.callSites {
		lines = append(lines, cs.String())
	}
	return lines
}

// StaticLines returns the artifact lines of the static call sites.
func (r *Registry) StaticLines() []string {
	lines := make([]string, 0, len(r.staticCallSites))
	for _, cs := range r.staticCallSites {
		lines = append(lines, cs.String())
	}
	return lines
}
