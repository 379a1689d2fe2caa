package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jobgate/jobgate/internal/broker"
	"github.com/jobgate/jobgate/internal/config"
	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/jobgate/jobgate/internal/log"
	"github.com/jobgate/jobgate/internal/pathmatch"
)

// DefaultTimeout bounds a dispatched request when configuration does not
// override it.
const DefaultTimeout = 30 * time.Second

// Route is one compiled mapping entry.
type Route struct {
	Method  string
	Path    string
	Queue   string
	Plugins []string

	queue broker.Queue
	pre   PreHook
	post  PostHook
}

// Matched pairs a route with the path params its pattern captured.
type Matched struct {
	Route  *Route
	Params map[string]string
}

// Options tunes a Dispatcher.
type Options struct {
	// Timeout bounds the wait for job completion (default DefaultTimeout).
	Timeout time.Duration
	// DefaultCache is applied to every response unless the result envelope
	// overrides it downstream.
	DefaultCache *envelope.Cache
	// Production suppresses stack traces in error responses.
	Production bool
}

// Dispatcher matches inbound requests against the mapping table and bridges
// them to job queues.
type Dispatcher struct {
	routes       []*Route
	timeout      time.Duration
	defaultCache *envelope.Cache
	production   bool
	logger       *slog.Logger
}

// New compiles the mapping table. Entries keep their declaration order;
// hook names resolve against hooks at compile time so a dangling name fails
// startup, not a request.
func New(mappings []config.Mapping, b JobBroker, hooks *Hooks, opts Options) (*Dispatcher, error) {
	if hooks == nil {
		hooks = NewHooks()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	routes := make([]*Route, 0, len(mappings))
	for i, m := range mappings {
		pre, err := hooks.resolvePre(m.Pre)
		if err != nil {
			return nil, fmt.Errorf("mappings[%d]: %w", i, err)
		}
		post, err := hooks.resolvePost(m.Post)
		if err != nil {
			return nil, fmt.Errorf("mappings[%d]: %w", i, err)
		}
		routes = append(routes, &Route{
			Method:  strings.ToUpper(m.Method),
			Path:    pathmatch.Normalize(m.Path),
			Queue:   m.Queue,
			Plugins: m.Plugins,
			queue:   b.Queue(m.Queue),
			pre:     pre,
			post:    post,
		})
	}

	return &Dispatcher{
		routes:       routes,
		timeout:      timeout,
		defaultCache: opts.DefaultCache,
		production:   opts.Production,
		logger:       log.WithComponent("dispatch"),
	}, nil
}

// Match returns the first mapping entry (in declaration order) whose method
// (exact or ALL) and path pattern match the request, or NotFound.
func (d *Dispatcher) Match(req *envelope.Request) (*Matched, error) {
	method := strings.ToUpper(req.Method)
	path := pathmatch.Normalize(req.URL)

	for _, rt := range d.routes {
		if rt.Method != envelope.MethodAll && rt.Method != method {
			continue
		}
		if params, ok := pathmatch.Match(rt.Path, path); ok {
			return &Matched{Route: rt, Params: params}, nil
		}
	}
	return nil, envelope.NotFound("no mapping for %s %s", req.Method, req.URL)
}

// Handle matches and dispatches req. It never returns an error: every
// failure is rendered as an error response.
func (d *Dispatcher) Handle(ctx context.Context, req *envelope.Request) *envelope.Response {
	start := time.Now()
	m, err := d.Match(req)
	if err != nil {
		return d.errorResponse(err, start)
	}
	return d.Dispatch(ctx, m, req)
}

// Dispatch submits req as a job on the matched route's queue and awaits the
// result. The single top-level failure boundary for a request lives here.
func (d *Dispatcher) Dispatch(ctx context.Context, m *Matched, req *envelope.Request) *envelope.Response {
	start := time.Now()

	res, err := d.dispatch(ctx, m, req)
	if err != nil {
		return d.errorResponse(err, start)
	}
	res.ElapsedMS = time.Since(start).Milliseconds()
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, m *Matched, req *envelope.Request) (*envelope.Response, error) {
	rt := m.Route
	out := req.WithParams(m.Params)

	if rt.pre != nil {
		transformed, err := rt.pre(ctx, out)
		if err != nil {
			return nil, err
		}
		out = transformed
	}

	jobID, err := rt.queue.Submit(ctx, *out)
	if err != nil {
		return nil, envelope.Internal("submit job to queue %q: %v", rt.Queue, err)
	}
	d.logger.Debug("job submitted", "queue", rt.Queue, "job_id", jobID, "method", out.Method, "url", out.URL)

	result, err := broker.Await(ctx, rt.queue, jobID, d.timeout)
	if err != nil {
		return nil, err
	}

	res := &envelope.Response{
		StatusCode: result.StatusCode,
		Result:     result.Result,
	}

	// The global default applies unless the result envelope overrode it;
	// the cache field never reaches the response body.
	if cache := result.Cache.Merge(d.defaultCache); cache != nil {
		res.Headers = cacheHeaders(cache)
	}

	if rt.post != nil {
		if err := rt.post(ctx, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (d *Dispatcher) errorResponse(err error, start time.Time) *envelope.Response {
	coded := envelope.AsError(err)
	if !d.production && coded.Stack == "" {
		coded = coded.WithStack()
	}
	d.logger.Warn("request failed", "status_code", coded.StatusCode, "error", coded.Message)

	return &envelope.Response{
		StatusCode: coded.StatusCode,
		ErrMessage: coded.Message,
		Stack:      coded.Stack,
		Extra:      coded.Extra,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
}

func cacheHeaders(cache *envelope.Cache) map[string]string {
	headers := make(map[string]string, 2)
	if cc := cache.CacheControl(); cc != "" {
		headers["Cache-Control"] = cc
	}
	if cache.LastModified != nil {
		headers["Last-Modified"] = cache.LastModified.UTC().Format(time.RFC1123)
	}
	return headers
}
