package server

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vyrodovalexey/grpckit/internal/apperror"
	"github.com/vyrodovalexey/grpckit/internal/cache"
	"github.com/vyrodovalexey/grpckit/internal/config"
	"github.com/vyrodovalexey/grpckit/internal/observability"
)

const (
	getMethod   = "/demo.v1.Demo/Get"
	failMethod  = "/demo.v1.Demo/Fail"
	watchMethod = "/demo.v1.Demo/Watch"
)

// demoService is a hand-wired servicer used to drive the server end to end.
type demoService struct {
	lookups atomic.Int32
	calls   atomic.Int32
	entered chan struct{}
	get     cache.Handler[*structpb.Struct, *structpb.Struct]
}

func newDemoService(c *cache.Tiered) *demoService {
	d := &demoService{entered: make(chan struct{}, 16)}
	d.get = cache.Cached(c, getMethod, 0,
		cache.ProtoCodec(func() *structpb.Struct { return &structpb.Struct{} }),
		d.lookup)
	return d
}

func (d *demoService) lookup(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	d.lookups.Add(1)
	return structpb.NewStruct(map[string]any{
		"id":    req.GetFields()["id"].GetStringValue(),
		"owner": "origin",
	})
}

// fail returns the error named by req.
func (d *demoService) fail(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	d.calls.Add(1)
	switch req.GetValue() {
	case "invalid":
		return nil, apperror.InvalidInput("name must not be empty")
	case "denied":
		return nil, apperror.PermissionDenied("admins only")
	case "missing":
		return nil, apperror.NotFound("no such item")
	case "timeout":
		return nil, apperror.Timeout("backend took too long")
	case "panic":
		panic("servicer bug")
	case "block":
		d.entered <- struct{}{}
		<-ctx.Done()
		return nil, errors.New("connection reset")
	case "ok":
		return wrapperspb.String("fine:" + observability.CorrelationIDFromContext(ctx)), nil
	default:
		return nil, errors.New("sql: no rows in result set")
	}
}

func (d *demoService) watch(_ *wrapperspb.StringValue, stream grpc.ServerStream) error {
	user := observability.UserIDFromContext(stream.Context())
	for i := 0; i < 2; i++ {
		if err := stream.SendMsg(wrapperspb.String(user)); err != nil {
			return err
		}
	}
	return nil
}

var demoServiceDesc = grpc.ServiceDesc{
	ServiceName: "demo.v1.Demo",
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Get",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				d := srv.(*demoService)
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMethod}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return d.get(ctx, req.(*structpb.Struct))
				})
			},
		},
		{
			MethodName: "Fail",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(wrapperspb.StringValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				d := srv.(*demoService)
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: failMethod}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return d.fail(ctx, req.(*wrapperspb.StringValue))
				})
			},
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			ServerStreams: true,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				in := new(wrapperspb.StringValue)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(*demoService).watch(in, stream)
			},
		},
	},
}

func testConfig() config.ServerConfig {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.GracePeriodSeconds = 5
	cfg.RedisEnabled = false
	return cfg
}

type testHarness struct {
	server  *Server
	conn    *grpc.ClientConn
	service *demoService
}

// startTestServer starts a server over an in-memory listener and returns a
// connected client. Everything is torn down when the test ends.
func startTestServer(t *testing.T, cfg config.ServerConfig, opts ...Option) *testHarness {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	h := &testHarness{}

	registrar := func(reg grpc.ServiceRegistrar, s *Server) error {
		h.service = newDemoService(s.Cache())
		reg.RegisterService(&demoServiceDesc, h.service)
		return nil
	}

	srv, err := New(cfg, registrar, append([]Option{WithListener(lis)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	h.server = srv

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	h.conn = conn

	t.Cleanup(func() {
		_ = conn.Close()
		_ = srv.Stop(context.Background())
	})
	return h
}
