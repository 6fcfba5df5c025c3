// Package server provides the gRPC server runtime shared by services.
//
// A Server owns the interceptor chain, the tiered response cache and the
// rate limiter. Services plug in through a Registrar, which is called once
// when the server starts, and through lifecycle Hooks:
//
//	srv, err := server.New(cfg, func(reg grpc.ServiceRegistrar, s *server.Server) error {
//	    demov1.RegisterDemoServer(reg, demo.NewService(s.Cache()))
//	    return nil
//	}, server.WithLogger(logger), server.WithStore(redisStore))
//	if err != nil {
//	    return err
//	}
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Stop(context.Background())
//
// The chain order is fixed: metrics, auth, rate limiting, correlation ID,
// logging, error handling. Interceptors whose enable flag is off are left
// out. A Server serves once; create a new one to serve again.
package server
