package filter

import (
	"context"
	"fmt"
	"net/http"
)

const (
	ReasonServerError = "status_5xx"
	ReasonNoInclude   = "no_include"
	ReasonSuppressed  = "suppressed"
	ReasonCancelled   = "cancelled"
	ReasonError       = "filter_error"
)

// Context is what a filter sees once the wrapped handler has returned.
type Context struct {
	CorrelationID  string
	Request        *http.Request
	RequestBody    string
	Status         int
	ResponseHeader http.Header
	ResponseBody   []byte
}

func (c *Context) context() context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

type Filter interface {
	Name() string
	Match(ctx *Context) (bool, error)
}

type funcFilter struct {
	name string
	fn   func(*Context) bool
}

// Func adapts a plain predicate.
func Func(name string, fn func(*Context) bool) Filter {
	return &funcFilter{name: name, fn: fn}
}

func (f *funcFilter) Name() string {
	return f.name
}

func (f *funcFilter) Match(ctx *Context) (bool, error) {
	if f.fn == nil {
		return false, nil
	}
	return f.fn(ctx), nil
}

type Decision struct {
	Capture bool
	Reason  string
	Err     error
}

// Chain decides whether a finished request gets archived.
type Chain struct {
	Include []Filter
	Exclude []Filter
	// ExcludeOnServerError makes 5xx captures subject to exclude filters.
	ExcludeOnServerError bool
	// Suppressed reports ids that asked not to be archived.
	Suppressed func(id string) bool
}

func (c *Chain) ShouldCapture(ctx *Context) Decision {
	if ctx == nil {
		return Decision{Reason: ReasonError, Err: fmt.Errorf("filter context is nil")}
	}
	if c == nil {
		c = &Chain{}
	}
	if c.Suppressed != nil && c.Suppressed(ctx.CorrelationID) {
		return Decision{Reason: ReasonSuppressed}
	}

	if IsServerError(ctx.Status) {
		if !c.ExcludeOnServerError {
			return Decision{Capture: true, Reason: ReasonServerError}
		}
		return c.applyExclude(ctx, ReasonServerError)
	}

	for _, include := range c.Include {
		if include == nil {
			continue
		}
		matched, err := include.Match(ctx)
		if err != nil {
			return Decision{Reason: ReasonError, Err: fmt.Errorf("include filter %s: %w", include.Name(), err)}
		}
		if matched {
			return c.applyExclude(ctx, "include:"+include.Name())
		}
	}
	return Decision{Reason: ReasonNoInclude}
}

func (c *Chain) applyExclude(ctx *Context, reason string) Decision {
	for _, exclude := range c.Exclude {
		if exclude == nil {
			continue
		}
		matched, err := exclude.Match(ctx)
		if err != nil {
			return Decision{Reason: ReasonError, Err: fmt.Errorf("exclude filter %s: %w", exclude.Name(), err)}
		}
		if matched {
			return Decision{Reason: "excluded:" + exclude.Name()}
		}
	}
	return Decision{Capture: true, Reason: reason}
}

func IsServerError(status int) bool {
	return status >= 500 && status < 600
}
