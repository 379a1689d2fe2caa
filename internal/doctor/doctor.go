// Package doctor validates jobgate configuration: the mapping table, the
// queue bindings, the broker selection, and the process topology.
package doctor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jobgate/jobgate/internal/config"
	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/jobgate/jobgate/internal/pathmatch"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the names the process can
// actually serve.
type Doctor struct {
	cfg *config.Config
	// modules are the worker module names registered in this binary.
	modules map[string]struct{}
	// plugins are the ingress plugin names registered in this binary.
	plugins map[string]struct{}
}

// New creates a Doctor. moduleNames and pluginNames enumerate what the
// binary provides; config references outside these sets are errors.
func New(cfg *config.Config, moduleNames, pluginNames []string) *Doctor {
	return &Doctor{
		cfg:     cfg,
		modules: toSet(moduleNames),
		plugins: toSet(pluginNames),
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateService(r)
	d.validateBroker(r)
	d.validateTopology(r)
	d.validateMappings(r)
	d.validateQueues(r)
	d.warnUnusedQueues(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateService(r *Result) {
	if d.cfg.Service.Name == "" {
		d.addError(r, "service", "service.name", "service name is required")
	}
	if d.cfg.Topology.Gateway && d.cfg.Gateway.Listen == "" {
		d.addError(r, "service", "gateway.listen", "gateway.listen is required for the gateway role")
	}
}

func (d *Doctor) validateBroker(r *Result) {
	switch d.cfg.Broker.Kind {
	case "memory":
		if !d.cfg.Topology.Gateway || !d.cfg.Topology.Worker {
			d.addError(r, "broker", "broker.kind",
				"memory broker requires both gateway and worker roles in one process")
		}
		if d.cfg.Topology.Copies > 1 {
			d.addError(r, "broker", "topology.copies",
				"memory broker cannot span worker copies; use the nats broker")
		}
	case "nats":
		if d.cfg.Broker.URL == "" {
			d.addError(r, "broker", "broker.url", "broker.url is required for the nats broker")
		}
	default:
		d.addError(r, "broker", "broker.kind",
			fmt.Sprintf("unknown broker kind %q (expected memory or nats)", d.cfg.Broker.Kind))
	}
}

func (d *Doctor) validateTopology(r *Result) {
	if !d.cfg.Topology.Gateway && !d.cfg.Topology.Worker {
		d.addError(r, "topology", "topology", "at least one of gateway and worker roles must be enabled")
	}
	if d.cfg.Topology.Copies < 0 {
		d.addError(r, "topology", "topology.copies", "copies must not be negative")
	}
	if d.cfg.Topology.Copies > 1 && !d.cfg.Topology.Worker {
		d.addWarning(r, "topology", "topology.copies", "copies > 1 has no effect without the worker role")
	}
}

func (d *Doctor) validateMappings(r *Result) {
	if d.cfg.Topology.Gateway && len(d.cfg.Mappings) == 0 {
		d.addWarning(r, "mappings", "mappings", "gateway role enabled but no mappings configured")
	}

	for i, m := range d.cfg.Mappings {
		field := fmt.Sprintf("mappings[%d]", i)

		method := strings.ToUpper(m.Method)
		if method == envelope.MethodHealth {
			d.addError(r, "mappings", field+".method", "HEALTH is reserved for the health aggregator")
		} else if !knownMethod(method) {
			d.addError(r, "mappings", field+".method", fmt.Sprintf("unknown method %q", m.Method))
		}

		if strings.TrimSpace(m.Path) == "" {
			d.addError(r, "mappings", field+".path", "path is required")
		} else if pathmatch.Normalize(m.Path) == "/" && m.Path != "/" {
			d.addWarning(r, "mappings", field+".path", fmt.Sprintf("path %q normalizes to /", m.Path))
		}

		if m.Queue == "" {
			d.addError(r, "mappings", field+".queue", "queue is required")
		}

		for j, name := range m.Plugins {
			if _, ok := d.plugins[name]; !ok {
				d.addError(r, "mappings", fmt.Sprintf("%s.plugins[%d]", field, j),
					fmt.Sprintf("unknown ingress plugin %q", name))
			}
		}
	}
}

func (d *Doctor) validateQueues(r *Result) {
	if !d.cfg.Topology.Worker {
		return
	}
	if len(d.cfg.Queues) == 0 {
		d.addError(r, "queues", "queues", "worker role enabled but no queues configured")
		return
	}
	for name, qc := range d.cfg.Queues {
		field := fmt.Sprintf("queues.%s", name)
		if qc.Module == "" {
			d.addError(r, "queues", field+".module", "module is required")
			continue
		}
		if _, ok := d.modules[qc.Module]; !ok {
			d.addError(r, "queues", field+".module", fmt.Sprintf("unknown module %q", qc.Module))
		}
		if qc.Concurrency < 0 {
			d.addError(r, "queues", field+".concurrency", "concurrency must not be negative")
		}
	}
}

// warnUnusedQueues flags queues no mapping routes to, and mappings that
// target queues this worker does not serve.
func (d *Doctor) warnUnusedQueues(r *Result) {
	mapped := make(map[string]struct{}, len(d.cfg.Mappings))
	for _, m := range d.cfg.Mappings {
		mapped[m.Queue] = struct{}{}
	}

	if d.cfg.Topology.Worker {
		for name := range d.cfg.Queues {
			if _, ok := mapped[name]; !ok {
				d.addWarning(r, "queues", fmt.Sprintf("queues.%s", name),
					fmt.Sprintf("queue %q is served but no mapping routes to it", name))
			}
		}
	}

	// With a single-process memory broker every mapped queue must be served
	// locally.
	if d.cfg.Broker.Kind == "memory" {
		for i, m := range d.cfg.Mappings {
			if _, ok := d.cfg.Queues[m.Queue]; m.Queue != "" && !ok {
				d.addError(r, "queues", fmt.Sprintf("mappings[%d].queue", i),
					fmt.Sprintf("queue %q has no local worker binding (memory broker)", m.Queue))
			}
		}
	}
}

func knownMethod(method string) bool {
	switch method {
	case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", envelope.MethodAll:
		return true
	}
	return false
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
