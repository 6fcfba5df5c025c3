package server

import (
	"context"

	"google.golang.org/grpc"
)

// Hook runs at a lifecycle transition of a Server.
type Hook func(ctx context.Context, s *Server) error

// Hooks are optional lifecycle callbacks. Nil hooks are skipped.
//
// A BeforeStart or AfterStart error aborts Start and is returned to the
// caller. When Start fails after BeforeStart succeeded (listen, service
// registration or AfterStart), AfterStop still runs so BeforeStart
// resources are released; BeforeStop does not. BeforeStop and AfterStop
// errors are logged and returned by Stop, which completes the shutdown
// regardless.
type Hooks struct {
	BeforeStart Hook
	AfterStart  Hook
	BeforeStop  Hook
	AfterStop   Hook
}

func (h Hook) run(ctx context.Context, s *Server) error {
	if h == nil {
		return nil
	}
	return h(ctx, s)
}

// Registrar adds services to the gRPC server. It is called exactly once,
// during Start, after the listener is bound.
type Registrar func(reg grpc.ServiceRegistrar, s *Server) error
