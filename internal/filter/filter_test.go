package filter

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newContext(status int) *Context {
	return &Context{
		CorrelationID: "req-1",
		Request:       httptest.NewRequest(http.MethodGet, "/api/orders?x=1", nil),
		Status:        status,
	}
}

func always(name string, result bool) Filter {
	return Func(name, func(*Context) bool { return result })
}

type countingFilter struct {
	name  string
	calls int
	match bool
	err   error
}

func (c *countingFilter) Name() string {
	return c.name
}

func (c *countingFilter) Match(*Context) (bool, error) {
	c.calls++
	return c.match, c.err
}

func TestServerErrorBypassesFilters(t *testing.T) {
	exclude := &countingFilter{name: "ex", match: true}
	chain := &Chain{Exclude: []Filter{exclude}}

	for _, status := range []int{500, 503, 599} {
		decision := chain.ShouldCapture(newContext(status))
		if !decision.Capture || decision.Reason != ReasonServerError {
			t.Fatalf("status %d: expected capture, got %+v", status, decision)
		}
	}
	if exclude.calls != 0 {
		t.Fatalf("exclude filters must not run for 5xx")
	}
	if decision := chain.ShouldCapture(newContext(600)); decision.Capture {
		t.Fatalf("600 is outside the server error range")
	}
}

func TestServerErrorHonorsExcludeWhenConfigured(t *testing.T) {
	chain := &Chain{Exclude: []Filter{always("health", true)}, ExcludeOnServerError: true}
	decision := chain.ShouldCapture(newContext(502))
	if decision.Capture || decision.Reason != "excluded:health" {
		t.Fatalf("expected exclusion, got %+v", decision)
	}
}

func TestEmptyIncludeNeverCaptures(t *testing.T) {
	chain := &Chain{}
	decision := chain.ShouldCapture(newContext(404))
	if decision.Capture || decision.Reason != ReasonNoInclude {
		t.Fatalf("expected no capture, got %+v", decision)
	}
}

func TestIncludeShortCircuits(t *testing.T) {
	first := &countingFilter{name: "first", match: true}
	second := &countingFilter{name: "second", match: true}
	chain := &Chain{Include: []Filter{first, second}}

	decision := chain.ShouldCapture(newContext(200))
	if !decision.Capture || decision.Reason != "include:first" {
		t.Fatalf("unexpected decision %+v", decision)
	}
	if first.calls != 1 || second.calls != 0 {
		t.Fatalf("expected short circuit, calls=%d,%d", first.calls, second.calls)
	}
}

func TestExcludeOnlyAfterInclude(t *testing.T) {
	exclude := &countingFilter{name: "ex", match: true}
	chain := &Chain{Include: []Filter{always("in", false)}, Exclude: []Filter{exclude}}
	_ = chain.ShouldCapture(newContext(200))
	if exclude.calls != 0 {
		t.Fatalf("exclude consulted without an include match")
	}

	chain.Include = []Filter{always("in", true)}
	decision := chain.ShouldCapture(newContext(200))
	if decision.Capture || decision.Reason != "excluded:ex" {
		t.Fatalf("expected veto, got %+v", decision)
	}
}

func TestDecisionTable(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		include    bool
		exclude    bool
		suppressed bool
		want       bool
	}{
		{"5xx", 500, false, false, false, true},
		{"5xx suppressed", 500, false, false, true, false},
		{"5xx with exclude", 500, true, true, false, true},
		{"include", 200, true, false, false, true},
		{"include excluded", 200, true, true, false, false},
		{"include suppressed", 200, true, false, true, false},
		{"nothing", 200, false, false, false, false},
		{"exclude alone", 404, false, true, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chain := &Chain{
				Include:    []Filter{always("in", tc.include)},
				Exclude:    []Filter{always("ex", tc.exclude)},
				Suppressed: func(string) bool { return tc.suppressed },
			}
			if got := chain.ShouldCapture(newContext(tc.status)).Capture; got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestFilterErrorAbandonsDecision(t *testing.T) {
	boom := errors.New("boom")
	chain := &Chain{Include: []Filter{&countingFilter{name: "bad", err: boom}}}
	decision := chain.ShouldCapture(newContext(200))
	if decision.Capture || !errors.Is(decision.Err, boom) || decision.Reason != ReasonError {
		t.Fatalf("expected filter error, got %+v", decision)
	}

	chain = &Chain{Include: []Filter{always("in", true)}, Exclude: []Filter{&countingFilter{name: "bad", err: boom}}}
	decision = chain.ShouldCapture(newContext(200))
	if decision.Capture || !errors.Is(decision.Err, boom) {
		t.Fatalf("expected exclude error, got %+v", decision)
	}
}

func TestSuppressedChecksID(t *testing.T) {
	chain := &Chain{
		Include:    []Filter{always("in", true)},
		Suppressed: func(id string) bool { return id == "req-1" },
	}
	if chain.ShouldCapture(newContext(200)).Capture {
		t.Fatalf("expected suppression for req-1")
	}
	ctx := newContext(200)
	ctx.CorrelationID = "req-2"
	if !chain.ShouldCapture(ctx).Capture {
		t.Fatalf("req-2 must not be suppressed")
	}
}
