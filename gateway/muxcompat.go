package gateway

import (
	"net/http"
	"sort"
	"strings"
)

// methodMux emulates the method-qualified patterns ("GET /path") that
// net/http's ServeMux accepts from Go 1.22 onward, so the gateway's
// routes behave identically when built with an older toolchain: a
// matching path with the wrong method gets 405 plus an Allow header,
// and HEAD requests fall back to the GET handler.
type methodMux struct {
	mux     *http.ServeMux
	methods map[string]map[string]http.Handler
}

func newMethodMux() *methodMux {
	return &methodMux{
		mux:     http.NewServeMux(),
		methods: make(map[string]map[string]http.Handler),
	}
}

func (m *methodMux) Handle(pattern string, h http.Handler) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		m.mux.Handle(pattern, h)
		return
	}
	byMethod := m.methods[path]
	if byMethod == nil {
		byMethod = make(map[string]http.Handler)
		m.methods[path] = byMethod
		m.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			m.dispatch(byMethod, w, r)
		})
	}
	byMethod[method] = h
}

func (m *methodMux) HandleFunc(pattern string, h func(http.ResponseWriter, *http.Request)) {
	m.Handle(pattern, http.HandlerFunc(h))
}

func (m *methodMux) dispatch(byMethod map[string]http.Handler, w http.ResponseWriter, r *http.Request) {
	// Candidates mirror the Go 1.22 mux: the exact path first, then
	// any subtree ("…/") patterns that prefix the request path, most
	// specific first, so a wrong-method exact match still falls back
	// to e.g. "OPTIONS /".
	candidates := []map[string]http.Handler{byMethod}
	var prefixes []string
	for path := range m.methods {
		if strings.HasSuffix(path, "/") && strings.HasPrefix(r.URL.Path, path) {
			prefixes = append(prefixes, path)
		}
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, path := range prefixes {
		candidates = append(candidates, m.methods[path])
	}

	for _, c := range candidates {
		if h, ok := c[r.Method]; ok {
			h.ServeHTTP(w, r)
			return
		}
	}
	if r.Method == http.MethodHead {
		for _, c := range candidates {
			if h, ok := c[http.MethodGet]; ok {
				h.ServeHTTP(w, r)
				return
			}
		}
	}

	seen := make(map[string]bool)
	var allow []string
	for _, c := range candidates {
		for method := range c {
			if !seen[method] {
				seen[method] = true
				allow = append(allow, method)
			}
		}
	}
	sort.Strings(allow)
	w.Header().Set("Allow", strings.Join(allow, ", "))
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

func (m *methodMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mux.ServeHTTP(w, r)
}
