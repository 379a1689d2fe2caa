// Package modules hosts the built-in worker modules. A module is a named
// route-table factory; queue bindings in configuration refer to modules by
// name.
package modules

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/jobgate/jobgate/internal/registry"
	"github.com/jobgate/jobgate/internal/routetable"
	"github.com/jobgate/jobgate/internal/storage"
	"github.com/jobgate/jobgate/internal/worker"
)

// Builtin returns the built-in module factories keyed by module name.
func Builtin() map[string]worker.ModuleFactory {
	return map[string]worker.ModuleFactory{
		"echo":   Echo,
		"system": System,
	}
}

// Names returns the built-in module names, sorted.
func Names() []string {
	factories := Builtin()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// echoPayload mirrors the request envelope back to the caller.
type echoPayload struct {
	Method string            `json:"method"`
	URL    string            `json:"url"`
	Params map[string]string `json:"params,omitempty"`
	Query  map[string]string `json:"query,omitempty"`
	Body   json.RawMessage   `json:"body,omitempty"`
	User   *envelope.User    `json:"user,omitempty"`
}

// Echo serves request reflection under /echo. Reads are cacheable; writes
// require an authenticated caller.
func Echo(reg *registry.Registry) (*routetable.Table, error) {
	authenticated := func(req *envelope.Request) bool { return req.User != nil }

	handler := func(ctx context.Context, req *envelope.Request) (*envelope.Result, error) {
		body, err := json.Marshal(echoPayload{
			Method: req.Method,
			URL:    req.URL,
			Params: req.Params,
			Query:  req.Query,
			Body:   req.Body,
			User:   req.User,
		})
		if err != nil {
			return nil, envelope.Internal("marshal echo payload: %v", err)
		}
		return &envelope.Result{StatusCode: http.StatusOK, Result: body}, nil
	}

	table := routetable.NewBuilder("/echo").
		Handle("GET", "/", handler, routetable.WithCache(envelope.Cache{NoStore: true})).
		Handle("GET", "/:name", handler, routetable.WithCache(envelope.Cache{NoStore: true})).
		Handle("ALL", "/", handler, routetable.WithGuards(authenticated)).
		Handle("ALL", "/:name", handler, routetable.WithGuards(authenticated)).
		Build()
	return table, nil
}

// System serves operational introspection under /system: service info and,
// when a job log store is registered, recent job outcomes per queue.
func System(reg *registry.Registry) (*routetable.Table, error) {
	startedAt := time.Now()

	b := routetable.NewBuilder("/system").
		Handle("GET", "/info", func(ctx context.Context, req *envelope.Request) (*envelope.Result, error) {
			body, _ := json.Marshal(map[string]any{
				"uptime_seconds": int64(time.Since(startedAt).Seconds()),
				"started_at":     startedAt.UTC().Format(time.RFC3339),
			})
			return &envelope.Result{
				StatusCode: http.StatusOK,
				Result:     body,
				Cache:      &envelope.Cache{Private: true, NoCache: true},
			}, nil
		})

	// The jobs route only exists when the process has a job log.
	if jobLog, err := registry.Resolve[*storage.JobLog](reg); err == nil {
		b.Handle("GET", "/jobs/:queue", func(ctx context.Context, req *envelope.Request) (*envelope.Result, error) {
			entries, err := jobLog.Recent(ctx, req.Params["queue"], 50)
			if err != nil {
				return nil, envelope.Internal("read job log: %v", err)
			}
			body, err := json.Marshal(jobEntries(entries))
			if err != nil {
				return nil, envelope.Internal("marshal job log: %v", err)
			}
			return &envelope.Result{StatusCode: http.StatusOK, Result: body}, nil
		}, routetable.WithGuards(func(req *envelope.Request) bool { return req.User != nil }))
	}

	return b.Build(), nil
}

type jobEntry struct {
	JobID       string  `json:"job_id"`
	Method      string  `json:"method"`
	URL         string  `json:"url"`
	StatusCode  int     `json:"status_code"`
	LastError   *string `json:"last_error,omitempty"`
	CompletedAt string  `json:"completed_at"`
}

func jobEntries(entries []storage.JobLogEntry) []jobEntry {
	out := make([]jobEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, jobEntry{
			JobID:       e.JobID,
			Method:      e.Method,
			URL:         e.URL,
			StatusCode:  e.StatusCode,
			LastError:   e.LastError,
			CompletedAt: e.CompletedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
