package route

import (
	"fmt"
	"net/url"
	"strings"
)

// Handler serves a matched GET request for a connection.
type Handler func(id int64, req *Request)

// Request is a matched request URI.
type Request struct {
	URI   string
	Path  string
	Query url.Values
	Vars  map[string]string
}

// Route is a registered template and its handler.
type Route struct {
	name    string
	tpl     *template
	handler Handler
}

// Name returns the route name, or an empty string if unnamed.
func (r *Route) Name() string {
	return r.name
}

// Template returns the template the route was registered with.
func (r *Route) Template() string {
	return r.tpl.raw
}

// URL builds a path for the route from the given variable values.
func (r *Route) URL(values map[string]string) (string, error) {
	return r.tpl.url(values)
}

// Router matches request URIs against path templates in registration
// order. It is not safe for concurrent registration and matching; build
// it before the server starts.
type Router struct {
	routes []*Route
	named  map[string]*Route

	// NotFound is called when no route matches. A nil NotFound makes
	// Dispatch return false instead.
	NotFound Handler
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{named: make(map[string]*Route)}
}

// Handle registers h for requests whose path matches tpl exactly.
func (r *Router) Handle(tpl string, h Handler) (*Route, error) {
	return r.add(tpl, false, h)
}

// PathPrefix registers h for requests whose path starts with tpl.
func (r *Router) PathPrefix(tpl string, h Handler) (*Route, error) {
	return r.add(tpl, true, h)
}

func (r *Router) add(tpl string, prefix bool, h Handler) (*Route, error) {
	if h == nil {
		return nil, fmt.Errorf("route: nil handler for %q", tpl)
	}

	t, err := newTemplate(tpl, prefix)
	if err != nil {
		return nil, err
	}

	rt := &Route{tpl: t, handler: h}
	r.routes = append(r.routes, rt)
	return rt, nil
}

// Name assigns a name to rt so it can be found with Get.
func (r *Router) Name(rt *Route, name string) error {
	if _, ok := r.named[name]; ok {
		return fmt.Errorf("route: duplicated route name %q", name)
	}
	rt.name = name
	r.named[name] = rt
	return nil
}

// Get returns the route registered under name.
func (r *Router) Get(name string) *Route {
	return r.named[name]
}

// Match finds the first route matching uri. The path is unescaped before
// matching; a path that fails to unescape never matches.
func (r *Router) Match(uri string) (*Route, *Request, bool) {
	rawPath, rawQuery, _ := strings.Cut(uri, "?")

	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, nil, false
	}

	for _, rt := range r.routes {
		vars, ok := rt.tpl.match(path)
		if !ok {
			continue
		}

		query, _ := url.ParseQuery(rawQuery)
		return rt, &Request{URI: uri, Path: path, Query: query, Vars: vars}, true
	}
	return nil, nil, false
}

// Dispatch calls the handler of the first route matching uri, or
// NotFound. It reports whether a handler was called.
func (r *Router) Dispatch(id int64, uri string) bool {
	if rt, req, ok := r.Match(uri); ok {
		rt.handler(id, req)
		return true
	}

	if r.NotFound == nil {
		return false
	}

	path, rawQuery, _ := strings.Cut(uri, "?")
	query, _ := url.ParseQuery(rawQuery)
	r.NotFound(id, &Request{URI: uri, Path: path, Query: query})
	return true
}
