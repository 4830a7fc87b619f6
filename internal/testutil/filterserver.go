package testutil

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"logpack/internal/filter"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type MatchFunc func(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)

// FilterServer is a gRPC filter service on a loopback port.
type FilterServer struct {
	Addr  string
	calls atomic.Int64
	stop  func()
}

func (s *FilterServer) Calls() int64 {
	return s.calls.Load()
}

func (s *FilterServer) Close() {
	s.stop()
}

func StartFilterServer(t *testing.T, match MatchFunc) *FilterServer {
	t.Helper()
	if match == nil {
		match = func(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error) {
			return wrapperspb.Bool(false), nil
		}
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	fs := &FilterServer{Addr: ln.Addr().String()}
	server := grpc.NewServer()
	filter.RegisterMatchServer(server, matchServer(func(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
		fs.calls.Add(1)
		return match(ctx, req)
	}))
	go func() {
		_ = server.Serve(ln)
	}()

	fs.stop = func() {
		server.Stop()
		_ = ln.Close()
	}
	t.Cleanup(fs.stop)
	return fs
}

type matchServer MatchFunc

func (m matchServer) Match(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	return m(ctx, req)
}
