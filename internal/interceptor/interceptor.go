package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"logpack/internal/archive"
	"logpack/internal/capture"
	"logpack/internal/dispatch"
	"logpack/internal/filter"
	"logpack/internal/notify"
	"logpack/internal/obs"
	"logpack/internal/sink"
	"logpack/internal/state"
	"logpack/internal/tracelog"

	"go.uber.org/zap"
)

type Options struct {
	Include              []filter.Filter
	Exclude              []filter.Filter
	ExcludeOnServerError bool

	IncludeRequestPayload  bool
	IncludeResponse        bool
	IncludeResponsePayload bool
	IncludeFiles           []string
	RedactHeaders          bool
	Dependencies           archive.DependencyDescriptor
	Location               *time.Location
	Environ                func() []string

	Sinks         []sink.Sink
	Notifiers     []notify.Notifier
	WorkDir       string
	SendTimeout   time.Duration
	AsyncDispatch bool

	// IDHeader names the request header a correlation id is read from and
	// echoed to. Defaults to X-Request-Id.
	IDHeader     string
	MaxBodyBytes int64

	Collector tracelog.Collector
	Reporter  ErrorReporter
	Logger    *zap.Logger
	Metrics   *obs.Metrics
	AccessLog *obs.AccessLog
}

// Interceptor captures diagnostic archives for selected requests. One
// Interceptor serves any number of concurrent requests.
type Interceptor struct {
	opts       Options
	store      *state.Store
	chain      *filter.Chain
	builder    *archive.Builder
	dispatcher *dispatch.Coordinator
	reporter   ErrorReporter
	logger     *zap.Logger
	metrics    *obs.Metrics
}

func New(opts Options) (*Interceptor, error) {
	for i, f := range opts.Include {
		if f == nil {
			return nil, fmt.Errorf("include filter %d is nil", i)
		}
	}
	for i, f := range opts.Exclude {
		if f == nil {
			return nil, fmt.Errorf("exclude filter %d is nil", i)
		}
	}
	for i, s := range opts.Sinks {
		if s == nil {
			return nil, fmt.Errorf("sink %d is nil", i)
		}
	}
	for i, n := range opts.Notifiers {
		if n == nil {
			return nil, fmt.Errorf("notifier %d is nil", i)
		}
	}
	if opts.MaxBodyBytes < 0 {
		return nil, errors.New("max body bytes must be non-negative")
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = capture.DefaultMaxBodyBytes
	}
	if opts.IDHeader == "" {
		opts.IDHeader = RequestIDHeader
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Collector == nil {
		opts.Collector = tracelog.NewMemory(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Reporter == nil {
		opts.Reporter = NewZapReporter(opts.Logger)
	}

	store := state.NewStore(opts.Collector)
	in := &Interceptor{
		opts:     opts,
		store:    store,
		reporter: opts.Reporter,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	in.chain = &filter.Chain{
		Include:              opts.Include,
		Exclude:              opts.Exclude,
		ExcludeOnServerError: opts.ExcludeOnServerError,
		Suppressed:           store.Stopped,
	}
	in.builder = archive.NewBuilder(archive.Options{
		IncludeRequestPayload:  opts.IncludeRequestPayload,
		IncludeResponse:        opts.IncludeResponse,
		IncludeResponsePayload: opts.IncludeResponsePayload,
		IncludeFiles:           opts.IncludeFiles,
		RedactHeaders:          opts.RedactHeaders,
		Location:               opts.Location,
		Dependencies:           opts.Dependencies,
		Collector:              opts.Collector,
		Environ:                opts.Environ,
	})
	in.dispatcher = dispatch.New(dispatch.Options{
		WorkDir:     opts.WorkDir,
		Location:    opts.Location,
		Sinks:       opts.Sinks,
		Notifiers:   opts.Notifiers,
		SendTimeout: opts.SendTimeout,
		Async:       opts.AsyncDispatch,
		Hooks:       in.dispatchHooks(),
	})
	return in, nil
}

func (in *Interceptor) Store() *state.Store {
	return in.store
}

// Collector accepts trace lines only for requests currently in flight.
func (in *Interceptor) Collector() tracelog.Collector {
	return in.store.Collector()
}

// Close stops accepting background dispatches and waits for running ones.
func (in *Interceptor) Close(ctx context.Context) error {
	return in.dispatcher.Close(ctx)
}

func (in *Interceptor) Middleware(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		in.serve(next, w, r)
	})
}

func (in *Interceptor) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := in.begin(r)
	defer in.finish(id)

	r = r.WithContext(withStop(WithCorrelationID(r.Context(), id), in.store, id))
	w.Header().Set(in.opts.IDHeader, id)
	// Upgraded connections need the real writer for Hijack and are never
	// archived.
	if isUpgrade(r) {
		in.logger.Debug("logpack passing upgrade through",
			zap.String("request_id", id),
			zap.String("upgrade", r.Header.Get("Upgrade")),
		)
		next.ServeHTTP(w, r)
		return
	}
	access := obs.RequestContext{
		CorrelationID: id,
		Method:        r.Method,
		Host:          r.Host,
		Path:          r.URL.Path,
		BytesIn:       r.ContentLength,
		UserAgent:     r.UserAgent(),
		RemoteAddr:    r.RemoteAddr,
	}

	hasBody := r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
	body, err := capture.CaptureRequest(r, in.opts.MaxBodyBytes)
	if hasBody {
		in.store.SetBody(id, body)
	}
	if err != nil {
		in.fail(id, StageCapture, err)
		access.ErrorStage = StageCapture
	}

	buf := capture.NewResponseBuffer(w)
	if recovered := invoke(next, buf, r); recovered != nil {
		if recovered == http.ErrAbortHandler {
			panic(recovered)
		}
		// Partial output is dropped and the request is not archived.
		in.fail(id, StagePanic, fmt.Errorf("handler panicked: %v", recovered))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		access.Status = http.StatusInternalServerError
		access.ErrorStage = StagePanic
		access.Duration = time.Since(start)
		in.metrics.ObserveRequest(http.StatusInternalServerError)
		in.opts.AccessLog.Log(access)
		return
	}

	written, err := buf.Forward(w)
	if err != nil {
		in.fail(id, StageCapture, fmt.Errorf("forward response: %w", err))
		access.ErrorStage = StageCapture
	}
	status := buf.Status()

	decision := in.decide(r, id, body, buf)
	if decision.Err != nil {
		in.fail(id, StageDecide, decision.Err)
		access.ErrorStage = StageDecide
	}
	in.metrics.RecordDecision(decision.Capture, decision.Reason)
	if decision.Capture {
		if stage := in.pack(r, id, status, buf); stage != "" {
			access.ErrorStage = stage
		}
	}

	access.Status = status
	access.BytesOut = written
	access.Duration = time.Since(start)
	access.Captured = decision.Capture
	access.DecisionReason = decision.Reason
	access.Suppressed = decision.Reason == filter.ReasonSuppressed
	in.metrics.ObserveRequest(status)
	in.opts.AccessLog.Log(access)
}

// begin registers the request in the store and returns its id. A candidate
// from the context or header that is already in flight is replaced by a
// fresh one.
func (in *Interceptor) begin(r *http.Request) string {
	candidate, _ := CorrelationID(r.Context())
	if candidate == "" {
		if value := r.Header.Get(in.opts.IDHeader); validID(value) {
			candidate = value
		}
	}
	if candidate != "" {
		if err := in.store.Begin(candidate); err == nil {
			in.metrics.SetInflight(in.store.Len())
			return candidate
		}
		in.logger.Debug("correlation id in flight, generating a new one", zap.String("request_id", candidate))
	}
	for {
		id := NewCorrelationID()
		if err := in.store.Begin(id); err == nil {
			in.metrics.SetInflight(in.store.Len())
			return id
		}
	}
}

func (in *Interceptor) finish(id string) {
	in.store.Cleanup(id)
	in.metrics.SetInflight(in.store.Len())
}

func isUpgrade(r *http.Request) bool {
	if r.Header.Get("Upgrade") == "" {
		return false
	}
	for _, value := range r.Header.Values("Connection") {
		for _, token := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
				return true
			}
		}
	}
	return false
}

func invoke(next http.Handler, w http.ResponseWriter, r *http.Request) (recovered any) {
	defer func() {
		recovered = recover()
	}()
	next.ServeHTTP(w, r)
	return nil
}

func (in *Interceptor) decide(r *http.Request, id string, body string, buf *capture.ResponseBuffer) filter.Decision {
	if err := r.Context().Err(); err != nil {
		return filter.Decision{Reason: filter.ReasonCancelled}
	}
	return in.chain.ShouldCapture(&filter.Context{
		CorrelationID:  id,
		Request:        r,
		RequestBody:    body,
		Status:         buf.Status(),
		ResponseHeader: buf.Header(),
		ResponseBody:   buf.Body(),
	})
}

// pack builds and dispatches the archive for a selected request and returns
// the stage of the last error, if any.
func (in *Interceptor) pack(r *http.Request, id string, status int, buf *capture.ResponseBuffer) string {
	failed := ""
	body, hasBody := in.store.Body(id)
	a, meta, err := in.builder.Build(r.Context(), archive.Input{
		CorrelationID:  id,
		Request:        r,
		RequestBody:    body,
		HasRequestBody: hasBody,
		Status:         status,
		ResponseHeader: buf.Header(),
		ResponseBody:   buf.Body(),
		Time:           time.Now(),
	})
	if err != nil {
		in.fail(id, StageBuild, err)
		failed = StageBuild
	}
	if a == nil || len(a.Names()) == 0 {
		return failed
	}

	err = in.dispatcher.Dispatch(r.Context(), a, dispatch.Meta{
		CorrelationID: id,
		Status:        status,
		Metadata:      meta,
		Time:          a.Created(),
	})
	if err != nil {
		in.fail(id, StageDispatch, err)
		failed = StageDispatch
	}
	return failed
}

// fail records err in the request trace and reports it.
func (in *Interceptor) fail(id string, stage string, err error) {
	in.store.Collector().Trace(id, fmt.Sprintf("logpack %s error: %v", stage, err))
	in.report(id, stage, err)
}

func (in *Interceptor) report(id string, stage string, err error) {
	in.metrics.RecordError(stage)
	in.reporter.Report(id, stage, err)
}

func (in *Interceptor) dispatchHooks() dispatch.Hooks {
	return dispatch.Hooks{
		OnStart: func(_ dispatch.Meta) {
			in.metrics.SetDispatchInflight(in.dispatcher.Inflight())
		},
		OnWrite: func(_ dispatch.Meta, _ string, size int64) {
			in.metrics.ObserveArchive(size)
		},
		OnSend: func(meta dispatch.Meta, kind dispatch.Kind, name string, elapsed time.Duration, err error) {
			in.metrics.RecordSend(string(kind), name, elapsed, err)
			if err != nil {
				in.logger.Debug("logpack send failed",
					zap.String("request_id", meta.CorrelationID),
					zap.String("kind", string(kind)),
					zap.String("name", name),
					zap.Error(err),
				)
			}
		},
		OnDone: func(meta dispatch.Meta, elapsed time.Duration, err error) {
			in.metrics.ObserveDispatch(elapsed)
			if in.dispatcher != nil && in.dispatcher.Async() {
				in.metrics.SetDispatchInflight(in.dispatcher.Inflight() - 1)
				if err != nil {
					in.report(meta.CorrelationID, StageDispatch, err)
				}
			}
		},
	}
}
