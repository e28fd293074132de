// Package grpc carries scoped credentials over gRPC: a server interceptor
// that admits only calls bearing a valid scoped credential, and a client
// interceptor that routes every call through a client.AccessProxy.
package grpc

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/panyam/docauth"
)

// DefaultMetadataKeyAuthorization is the metadata key the bearer credential travels under
const DefaultMetadataKeyAuthorization = "authorization"

type claimsContextKey struct{}

// ContextWithClaims stores verified scoped claims on ctx
func ContextWithClaims(ctx context.Context, claims *docauth.ScopedClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the claims the server interceptor verified, or nil
func ClaimsFromContext(ctx context.Context) *docauth.ScopedClaims {
	claims, _ := ctx.Value(claimsContextKey{}).(*docauth.ScopedClaims)
	return claims
}

// UserIDFromContext returns the subject of the verified credential.
// Returns empty string if the call was not authenticated.
func UserIDFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.UserID
	}
	return ""
}

// IsAuthenticated returns true if the call carried a verified credential
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

// BearerFromIncomingContext extracts the bearer credential from incoming metadata
func BearerFromIncomingContext(ctx context.Context, key string) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", fmt.Errorf("%w: no metadata", docauth.ErrAuthorizationDenied)
	}
	values := md.Get(key)
	if len(values) == 0 || values[0] == "" {
		return "", fmt.Errorf("%w: missing credential", docauth.ErrAuthorizationDenied)
	}
	parts := strings.SplitN(values[0], " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: invalid authorization format", docauth.ErrAuthorizationDenied)
	}
	return strings.TrimSpace(parts[1]), nil
}

// TokenToOutgoingContext attaches a bearer credential to outgoing metadata
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}
