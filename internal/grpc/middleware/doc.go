// Package middleware provides the gRPC interceptors of the runtime.
//
// The server installs them in this fixed order, outermost first:
//
//	Metrics -> Auth -> RateLimit -> Correlation -> Logging -> ErrorHandling -> handler
//
//   - Metrics counts every call and its duration by method and final code.
//   - Auth resolves the caller identity or rejects with UNAUTHENTICATED.
//   - RateLimit enforces the per-caller quota or rejects with RESOURCE_EXHAUSTED.
//   - Correlation reads or generates the correlation ID and echoes it back.
//   - Logging writes one record when the call starts and one when it ends.
//   - ErrorHandling converts handler errors and panics into gRPC statuses.
//
// Every interceptor has a unary and a stream form with the same semantics.
// Per-call state lives on the context (see observability.CallInfo), never
// in shared variables.
package middleware
