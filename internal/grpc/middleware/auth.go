package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/grpckit/internal/observability"
)

// Metadata keys read by the auth interceptor.
const (
	UserIDMetadataKey        = "user-id"
	AuthorizationMetadataKey = "authorization"
)

const bearerPrefix = "bearer "

// Authentication errors.
var (
	ErrNoCredentials = errors.New("no credentials provided")
	ErrInvalidToken  = errors.New("invalid token")
)

// Authenticator resolves the caller identity of a call.
//
// Without a JWT secret the identity is the value of the user-id metadata
// entry. With a secret, callers must present "authorization: Bearer <jwt>"
// signed with HS256 and the token's sub claim becomes the identity.
type Authenticator struct {
	exempt map[string]struct{}
	jwtKey []byte
	logger observability.Logger
}

// AuthOption is a functional option for the authenticator.
type AuthOption func(*Authenticator)

// WithJWTSecret enables bearer token validation with the given HMAC secret.
func WithJWTSecret(secret string) AuthOption {
	return func(a *Authenticator) {
		if secret != "" {
			a.jwtKey = []byte(secret)
		}
	}
}

// WithAuthLogger sets the logger.
func WithAuthLogger(logger observability.Logger) AuthOption {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// NewAuthenticator creates an authenticator that lets exemptMethods through
// without identity.
func NewAuthenticator(exemptMethods []string, opts ...AuthOption) *Authenticator {
	a := &Authenticator{
		exempt: make(map[string]struct{}, len(exemptMethods)),
		logger: observability.NopLogger(),
	}
	for _, m := range exemptMethods {
		a.exempt[m] = struct{}{}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsExempt reports whether method may be called without identity.
func (a *Authenticator) IsExempt(method string) bool {
	_, ok := a.exempt[method]
	return ok
}

// Authenticate returns the caller identity carried by the call metadata.
func (a *Authenticator) Authenticate(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrNoCredentials
	}

	if a.jwtKey != nil {
		return a.authenticateJWT(md)
	}

	for _, v := range md.Get(UserIDMetadataKey) {
		if id := strings.TrimSpace(v); id != "" {
			return id, nil
		}
	}
	return "", ErrNoCredentials
}

func (a *Authenticator) authenticateJWT(md metadata.MD) (string, error) {
	values := md.Get(AuthorizationMetadataKey)
	if len(values) == 0 {
		return "", ErrNoCredentials
	}

	raw := strings.TrimSpace(values[0])
	if len(raw) <= len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrInvalidToken
	}

	tok, err := jwt.Parse(
		[]byte(strings.TrimSpace(raw[len(bearerPrefix):])),
		jwt.WithKey(jwa.HS256, a.jwtKey),
		jwt.WithValidate(true),
	)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if tok.Subject() == "" {
		return "", ErrInvalidToken
	}
	return tok.Subject(), nil
}

// authorize resolves identity for method and returns the enriched context,
// or an UNAUTHENTICATED status error.
func (a *Authenticator) authorize(ctx context.Context, method string) (context.Context, error) {
	ctx, call := ensureCallInfo(ctx, method)
	if a.IsExempt(method) {
		return ctx, nil
	}

	userID, err := a.Authenticate(ctx)
	if err != nil {
		a.logger.Debug("authentication failed",
			observability.String("method", method),
			observability.Error(err),
		)
		if errors.Is(err, ErrNoCredentials) {
			return ctx, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, status.Error(codes.Unauthenticated, "invalid credentials")
	}

	call.UserID = userID
	return observability.ContextWithUserID(ctx, userID), nil
}

// UnaryInterceptor returns a unary server interceptor for authentication.
// Rejected calls never reach later interceptors or the handler.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, err := a.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor returns a stream server interceptor for authentication.
// Identity is checked once when the stream opens.
func (a *Authenticator) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := a.authorize(stream.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, wrapStream(stream, ctx))
	}
}
