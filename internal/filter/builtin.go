package filter

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type Status struct {
	Label string
	Min   int
	Max   int
}

func (s *Status) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return fmt.Sprintf("status[%d-%d]", s.Min, s.Max)
}

func (s *Status) Match(ctx *Context) (bool, error) {
	return ctx.Status >= s.Min && ctx.Status <= s.Max, nil
}

// Path matches the request path against a doublestar glob such as
// "/api/**" or "/orders/*/items".
type Path struct {
	Label   string
	Pattern string
}

func NewPath(label string, pattern string) (*Path, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid path pattern %q", pattern)
	}
	return &Path{Label: label, Pattern: pattern}, nil
}

func (p *Path) Name() string {
	if p.Label != "" {
		return p.Label
	}
	return "path:" + p.Pattern
}

func (p *Path) Match(ctx *Context) (bool, error) {
	if ctx.Request == nil || ctx.Request.URL == nil {
		return false, nil
	}
	return doublestar.Match(p.Pattern, ctx.Request.URL.Path)
}

type Method struct {
	Label   string
	Methods []string
}

func (m *Method) Name() string {
	if m.Label != "" {
		return m.Label
	}
	return "method:" + strings.Join(m.Methods, ",")
}

func (m *Method) Match(ctx *Context) (bool, error) {
	if ctx.Request == nil {
		return false, nil
	}
	for _, method := range m.Methods {
		if strings.EqualFold(method, ctx.Request.Method) {
			return true, nil
		}
	}
	return false, nil
}

// Header matches when the named header is present and, if Pattern is set,
// one of its values matches the glob. Response headers are consulted when
// Response is true.
type Header struct {
	Label    string
	Header   string
	Pattern  string
	Response bool
}

func NewHeader(label string, header string, pattern string, response bool) (*Header, error) {
	if strings.TrimSpace(header) == "" {
		return nil, fmt.Errorf("header filter %q requires a header name", label)
	}
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid header pattern %q", pattern)
	}
	return &Header{Label: label, Header: http.CanonicalHeaderKey(header), Pattern: pattern, Response: response}, nil
}

func (h *Header) Name() string {
	if h.Label != "" {
		return h.Label
	}
	return "header:" + h.Header
}

func (h *Header) Match(ctx *Context) (bool, error) {
	var header http.Header
	if h.Response {
		header = ctx.ResponseHeader
	} else if ctx.Request != nil {
		header = ctx.Request.Header
	}
	values := header.Values(h.Header)
	if len(values) == 0 {
		return false, nil
	}
	if h.Pattern == "" {
		return true, nil
	}
	for _, value := range values {
		matched, err := doublestar.Match(h.Pattern, value)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}
