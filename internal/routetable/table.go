// Package routetable implements the worker-side declarative dispatch table.
// A builder collects route entries at module construction time; the built
// table is immutable and resolves inbound job requests to handlers at
// dispatch time.
package routetable

import (
	"context"
	"strings"

	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/jobgate/jobgate/internal/pathmatch"
)

// Handler executes one resolved request.
type Handler func(ctx context.Context, req *envelope.Request) (*envelope.Result, error)

// Guard is a predicate over the request envelope. Guards compose in order
// with short-circuit: the first false stops evaluation and dispatch fails
// with Forbidden.
type Guard func(req *envelope.Request) bool

// Matcher is a custom predicate used in place of a path pattern.
type Matcher func(req *envelope.Request) bool

type entry struct {
	pattern string  // literal pattern, empty when matcher is set
	matcher Matcher // custom predicate, nil when pattern is set
	guards  []Guard
	handler Handler
	cache   *envelope.Cache
}

// match reports whether the entry matches the normalized request path and
// returns captured path params.
func (e *entry) match(req *envelope.Request, path string) (map[string]string, bool) {
	if e.matcher != nil {
		return nil, e.matcher(req)
	}
	return pathmatch.Match(e.pattern, path)
}

// Option annotates a route entry at registration time.
type Option func(*entry)

// WithGuards attaches ordered guard predicates to the entry.
func WithGuards(guards ...Guard) Option {
	return func(e *entry) { e.guards = append(e.guards, guards...) }
}

// WithCache merges the given cache directives into the entry's successful
// results.
func WithCache(cache envelope.Cache) Option {
	return func(e *entry) { e.cache = &cache }
}

// Builder collects route entries for one handler-owning module. Registration
// order within a method bin is the resolution order.
type Builder struct {
	basePath string
	bins     map[string][]*entry
}

// NewBuilder starts a route table for a module rooted at basePath.
func NewBuilder(basePath string) *Builder {
	return &Builder{
		basePath: pathmatch.Normalize(basePath),
		bins:     make(map[string][]*entry),
	}
}

// Handle registers handler under the uppercased method bin for the literal
// path pattern, joined to the module base path and normalized.
func (b *Builder) Handle(method, pattern string, handler Handler, opts ...Option) *Builder {
	e := &entry{
		pattern: pathmatch.Join(b.basePath, pattern),
		handler: handler,
	}
	return b.add(method, e, opts)
}

// HandleMatch registers handler under a custom request predicate instead of
// a path pattern.
func (b *Builder) HandleMatch(method string, matcher Matcher, handler Handler, opts ...Option) *Builder {
	e := &entry{
		matcher: matcher,
		handler: handler,
	}
	return b.add(method, e, opts)
}

func (b *Builder) add(method string, e *entry, opts []Option) *Builder {
	for _, opt := range opts {
		opt(e)
	}
	bin := strings.ToUpper(method)
	b.bins[bin] = append(b.bins[bin], e)
	return b
}

// Build returns the immutable dispatch table.
func (b *Builder) Build() *Table {
	bins := make(map[string][]*entry, len(b.bins))
	for bin, entries := range b.bins {
		bins[bin] = append([]*entry(nil), entries...)
	}
	return &Table{basePath: b.basePath, bins: bins}
}

// Table is the built, read-only dispatch table. Concurrent dispatch calls
// never mutate it.
type Table struct {
	basePath string
	bins     map[string][]*entry
}

// BasePath returns the module's normalized base path.
func (t *Table) BasePath() string { return t.basePath }

// Resolve scans the request's method bin in registration order for the
// first structural match, falling back to the ALL bin, and returns the
// matched entry's route along with captured path params.
func (t *Table) Resolve(req *envelope.Request) (*Route, error) {
	path := pathmatch.Normalize(req.URL)

	for _, bin := range []string{strings.ToUpper(req.Method), envelope.MethodAll} {
		for _, e := range t.bins[bin] {
			if params, ok := e.match(req, path); ok {
				return &Route{entry: e, params: params}, nil
			}
		}
	}
	return nil, envelope.NotFound("no route for %s %s", req.Method, req.URL)
}

// Dispatch resolves the request and invokes the matched handler: guards run
// in order and short-circuit to Forbidden; cache directives annotated on the
// entry are merged into the successful result.
func (t *Table) Dispatch(ctx context.Context, req *envelope.Request) (*envelope.Result, error) {
	route, err := t.Resolve(req)
	if err != nil {
		return nil, err
	}
	return route.Invoke(ctx, req)
}

// Route is one resolved table entry.
type Route struct {
	entry  *entry
	params map[string]string
}

// Invoke runs the route's guards and handler against req.
func (r *Route) Invoke(ctx context.Context, req *envelope.Request) (*envelope.Result, error) {
	scoped := req.WithParams(r.params)

	for _, guard := range r.entry.guards {
		if !guard(scoped) {
			return nil, envelope.Forbidden("request rejected by guard")
		}
	}

	res, err := r.entry.handler(ctx, scoped)
	if err != nil {
		return nil, err
	}
	if res != nil && r.entry.cache != nil {
		res.Cache = res.Cache.Merge(r.entry.cache)
	}
	return res, nil
}
