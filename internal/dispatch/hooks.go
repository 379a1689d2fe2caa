package dispatch

import (
	"context"
	"fmt"

	"github.com/jobgate/jobgate/internal/envelope"
)

// PreHook transforms the outbound job data before submission.
type PreHook func(ctx context.Context, req *envelope.Request) (*envelope.Request, error)

// PostHook transforms the assembled response after job completion.
type PostHook func(ctx context.Context, res *envelope.Response) error

// Hooks is the named hook registry mapping entries refer to. Hooks are
// registered during startup and read-only afterwards.
type Hooks struct {
	pre  map[string]PreHook
	post map[string]PostHook
}

// NewHooks creates an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{
		pre:  make(map[string]PreHook),
		post: make(map[string]PostHook),
	}
}

// Pre registers a named request transform hook.
func (h *Hooks) Pre(name string, hook PreHook) *Hooks {
	h.pre[name] = hook
	return h
}

// Post registers a named response transform hook.
func (h *Hooks) Post(name string, hook PostHook) *Hooks {
	h.post[name] = hook
	return h
}

func (h *Hooks) resolvePre(name string) (PreHook, error) {
	if name == "" {
		return nil, nil
	}
	hook, ok := h.pre[name]
	if !ok {
		return nil, fmt.Errorf("unknown pre hook %q", name)
	}
	return hook, nil
}

func (h *Hooks) resolvePost(name string) (PostHook, error) {
	if name == "" {
		return nil, nil
	}
	hook, ok := h.post[name]
	if !ok {
		return nil, fmt.Errorf("unknown post hook %q", name)
	}
	return hook, nil
}
