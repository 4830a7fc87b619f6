package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type FailureMode string

const (
	// FailOpen treats an unreachable filter as "no match".
	FailOpen FailureMode = "fail_open"
	// FailClosed turns the failure into a decision error, abandoning capture
	// for the request.
	FailClosed FailureMode = "fail_closed"
)

const defaultRemoteTimeout = 200 * time.Millisecond

var ErrBreakerOpen = errors.New("filter breaker open")

type RemoteConfig struct {
	Label       string
	Addr        string
	Timeout     time.Duration
	FailureMode FailureMode
	Breaker     BreakerConfig
	// OnFailure, if set, is told about every failed call before the failure
	// mode is applied.
	OnFailure func(name string, err error)
}

// Remote asks a gRPC filter service whether a request should be captured.
type Remote struct {
	cfg      RemoteConfig
	registry *Registry
	breaker  *Breaker
}

func NewRemote(cfg RemoteConfig, registry *Registry) (*Remote, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("remote filter %q requires an address", cfg.Label)
	}
	if registry == nil {
		return nil, errors.New("remote filter registry is nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRemoteTimeout
	}
	switch cfg.FailureMode {
	case "":
		cfg.FailureMode = FailOpen
	case FailOpen, FailClosed:
	default:
		return nil, fmt.Errorf("remote filter %q has unknown failure mode %q", cfg.Label, cfg.FailureMode)
	}
	return &Remote{cfg: cfg, registry: registry, breaker: NewBreaker(cfg.Breaker)}, nil
}

func (r *Remote) Name() string {
	if r.cfg.Label != "" {
		return r.cfg.Label
	}
	return "remote:" + r.cfg.Addr
}

func (r *Remote) Breaker() *Breaker {
	return r.breaker
}

func (r *Remote) Match(ctx *Context) (bool, error) {
	if _, allowed := r.breaker.Allow(); !allowed {
		return r.failed(ErrBreakerOpen)
	}
	conn, err := r.registry.Conn(r.cfg.Addr)
	if err != nil {
		r.breaker.Report(false)
		return r.failed(err)
	}
	req, err := requestStruct(ctx)
	if err != nil {
		r.breaker.Report(false)
		return r.failed(err)
	}

	callCtx, cancel := context.WithTimeout(ctx.context(), r.cfg.Timeout)
	defer cancel()
	resp := &wrapperspb.BoolValue{}
	if err := conn.Invoke(callCtx, MatchMethod, req, resp); err != nil {
		r.breaker.Report(false)
		return r.failed(err)
	}
	r.breaker.Report(true)
	return resp.GetValue(), nil
}

func (r *Remote) failed(err error) (bool, error) {
	if r.cfg.OnFailure != nil {
		r.cfg.OnFailure(r.Name(), err)
	}
	if r.cfg.FailureMode == FailClosed {
		return false, err
	}
	return false, nil
}

func requestStruct(ctx *Context) (*structpb.Struct, error) {
	env := envFor(ctx)
	header := make(map[string]interface{}, len(env.Header))
	for key, value := range env.Header {
		header[key] = value
	}
	responseHeader := make(map[string]interface{}, len(env.ResponseHeader))
	for key, value := range env.ResponseHeader {
		responseHeader[key] = value
	}
	return structpb.NewStruct(map[string]interface{}{
		"correlation_id":   env.ID,
		"method":           env.Method,
		"host":             env.Host,
		"path":             env.Path,
		"query":            env.Query,
		"status":           env.Status,
		"headers":          header,
		"response_headers": responseHeader,
	})
}

// Registry shares one client connection per filter address.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
	opts  []grpc.DialOption
}

func NewRegistry(opts ...grpc.DialOption) *Registry {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	return &Registry{
		conns: make(map[string]*grpc.ClientConn),
		opts:  append(base, opts...),
	}
}

func (r *Registry) Conn(addr string) (*grpc.ClientConn, error) {
	if r == nil {
		return nil, grpc.ErrClientConnClosing
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn := r.conns[addr]; conn != nil {
		return conn, nil
	}
	conn, err := grpc.NewClient(addr, r.opts...)
	if err != nil {
		return nil, err
	}
	r.conns[addr] = conn
	return conn, nil
}

func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*grpc.ClientConn)
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
