package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/panyam/docauth"
	"github.com/panyam/docauth/client"
)

// Verifier checks a scoped credential. docauth.JWTMinter implements it.
type Verifier interface {
	Verify(token string) (*docauth.ScopedClaims, error)
}

// InterceptorConfig configures the server interceptors.
type InterceptorConfig struct {
	Verifier Verifier

	// MetadataKey the credential is read from. Defaults to "authorization".
	MetadataKey string

	// PublicMethods is a set of method names that don't require a credential.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig creates a config with the specified public methods.
func NewInterceptorConfig(verifier Verifier, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Verifier:      verifier,
		MetadataKey:   DefaultMetadataKeyAuthorization,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.MetadataKey == "" {
		c.MetadataKey = DefaultMetadataKeyAuthorization
	}
}

// authenticate verifies the call's credential and returns a context carrying its claims
func (c *InterceptorConfig) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	token, err := BearerFromIncomingContext(ctx, c.MetadataKey)
	if err != nil {
		if c.PublicMethods[fullMethod] {
			return ctx, nil
		}
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	claims, err := c.Verifier.Verify(token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return ContextWithClaims(ctx, claims), nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that admits only calls
// with a valid scoped credential, except for public methods.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// authenticatedStream overrides the stream context with the verified one
type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}

// StreamAuthInterceptor is the streaming counterpart of UnaryAuthInterceptor.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

// UnaryClientInterceptor sends every call through proxy: the call carries the
// current credential, and PermissionDenied or Unauthenticated responses make
// the proxy renew it and retry.
func UnaryClientInterceptor(proxy *client.AccessProxy) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return proxy.Do(ctx, func(ctx context.Context, token string) error {
			return invoker(TokenToOutgoingContext(ctx, token), method, req, reply, cc, opts...)
		})
	}
}
