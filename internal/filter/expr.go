package filter

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Env is the variable set available to Expr filters, for example
//
//	Status == 404 && Method == "POST" && Header["Content-Type"] startsWith "application/json"
type Env struct {
	ID             string
	Method         string
	Host           string
	Path           string
	Query          string
	Status         int
	Header         map[string]string
	ResponseHeader map[string]string
	Body           string
	ResponseBody   string
}

type Expr struct {
	label   string
	source  string
	program *vm.Program
}

func NewExpr(label string, source string) (*Expr, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("expression filter %q is empty", label)
	}
	program, err := expr.Compile(source, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	return &Expr{label: label, source: source, program: program}, nil
}

func (e *Expr) Name() string {
	if e.label != "" {
		return e.label
	}
	return "expr:" + e.source
}

func (e *Expr) Match(ctx *Context) (bool, error) {
	out, err := expr.Run(e.program, envFor(ctx))
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", e.source, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: result is %T, not bool", e.source, out)
	}
	return matched, nil
}

func envFor(ctx *Context) Env {
	env := Env{
		ID:             ctx.CorrelationID,
		Status:         ctx.Status,
		Body:           ctx.RequestBody,
		ResponseBody:   string(ctx.ResponseBody),
		Header:         flatten(nil),
		ResponseHeader: flatten(ctx.ResponseHeader),
	}
	if r := ctx.Request; r != nil {
		env.Method = r.Method
		env.Host = r.Host
		env.Header = flatten(r.Header)
		if r.URL != nil {
			env.Path = r.URL.Path
			env.Query = r.URL.RawQuery
		}
	}
	return env
}

func flatten(header map[string][]string) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		out[key] = strings.Join(values, ",")
	}
	return out
}
