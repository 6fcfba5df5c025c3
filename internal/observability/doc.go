// Package observability provides structured logging and call-scoped
// context helpers shared by the gRPC runtime.
//
// # Logging
//
// The Logger interface wraps zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("call completed",
//	    observability.String("method", "/demo.v1.Demo/Get"),
//	    observability.Duration("duration", elapsed),
//	)
//
// # Call context
//
// Interceptors store the correlation ID, the caller identity and a CallInfo
// record on the request context. Logger.WithContext picks the first two up
// automatically so servicer code logs with the same keys as the runtime.
package observability
