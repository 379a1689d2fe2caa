package api

import (
	"net/http"

	"github.com/jobgate/jobgate/internal/auth"
	"github.com/jobgate/jobgate/internal/envelope"
)

// Plugin inspects the raw HTTP request and enriches the envelope before
// dispatch. A plugin may return a re-contexted request (values it stashes
// there are visible to post hooks); returning nil keeps the current one.
// A plugin failure rejects the request with the failure's status.
type Plugin func(r *http.Request, req *envelope.Request) (*http.Request, error)

// Plugins is the named ingress plugin registry. Mapping entries refer to
// plugins by name.
type Plugins struct {
	byName map[string]Plugin
}

// NewPlugins creates an empty plugin registry.
func NewPlugins() *Plugins {
	return &Plugins{byName: make(map[string]Plugin)}
}

// Register adds a named plugin, replacing any previous registration.
func (p *Plugins) Register(name string, plugin Plugin) *Plugins {
	p.byName[name] = plugin
	return p
}

// Run executes the named plugins in order and returns the request carrying
// any context they attached. An unknown name is a server misconfiguration,
// not a caller error.
func (p *Plugins) Run(r *http.Request, req *envelope.Request, names []string) (*http.Request, error) {
	for _, name := range names {
		plugin, ok := p.byName[name]
		if !ok {
			return nil, envelope.Internal("unknown ingress plugin %q", name)
		}
		next, err := plugin(r, req)
		if err != nil {
			return nil, err
		}
		if next != nil {
			r = next
		}
	}
	return r, nil
}

// DevicePlugin is the "device" ingress plugin: it copies client device
// identifiers into the envelope's free-form side channel.
func DevicePlugin() Plugin {
	return func(r *http.Request, req *envelope.Request) (*http.Request, error) {
		deviceID := r.Header.Get("X-Device-Id")
		if deviceID == "" {
			return r, nil
		}
		if req.Extra == nil {
			req.Extra = make(map[string]string, 1)
		}
		req.Extra["device_id"] = deviceID
		return r, nil
	}
}

// AuthPlugin builds the "auth" ingress plugin: it requires a valid bearer
// token, attaches the authenticated identity to the envelope, and stashes
// the principal in the request context for post hooks.
func AuthPlugin(tokens []auth.TokenConfig) Plugin {
	return func(r *http.Request, req *envelope.Request) (*http.Request, error) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			return nil, &envelope.Error{StatusCode: http.StatusUnauthorized, Message: err.Error()}
		}
		principal, ok := auth.Authenticate(token, tokens)
		if !ok {
			return nil, &envelope.Error{StatusCode: http.StatusUnauthorized, Message: "invalid bearer token"}
		}
		if req.IsWrite() && !auth.HasAnyScope(principal, "write") {
			return nil, envelope.Forbidden("write scope required")
		}
		req.User = principal.User()
		return r.WithContext(auth.WithPrincipal(r.Context(), principal)), nil
	}
}
