package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/panyam/docauth"
	"github.com/panyam/docauth/client"
)

func testMinter() *docauth.JWTMinter {
	return &docauth.JWTMinter{SecretKey: "grpc-test-secret"}
}

func mintFor(t *testing.T, m *docauth.JWTMinter, userID string, expires time.Time) string {
	t.Helper()
	token, err := m.Mint(context.Background(), docauth.MintRequest{
		UserID:    userID,
		SessionID: "sess-1",
		IssuedAt:  time.Now(),
		ExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	return token
}

func incoming(authorization string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", authorization))
}

func TestUnaryAuthInterceptor(t *testing.T) {
	m := testMinter()
	valid := mintFor(t, m, "user-123", time.Now().Add(time.Hour))
	expired := mintFor(t, m, "user-123", time.Now().Add(-time.Minute))

	tests := []struct {
		name     string
		ctx      context.Context
		method   string
		wantCode codes.Code
		wantUser string
	}{
		{"valid credential", incoming("Bearer " + valid), "/pkg.Svc/Method", codes.OK, "user-123"},
		{"expired credential", incoming("Bearer " + expired), "/pkg.Svc/Method", codes.Unauthenticated, ""},
		{"garbage credential", incoming("Bearer not-a-jwt"), "/pkg.Svc/Method", codes.Unauthenticated, ""},
		{"wrong scheme", incoming("Basic " + valid), "/pkg.Svc/Method", codes.Unauthenticated, ""},
		{"no metadata", context.Background(), "/pkg.Svc/Method", codes.Unauthenticated, ""},
		{"public method without credential", context.Background(), "/pkg.Svc/Public", codes.OK, ""},
		{"public method with credential", incoming("Bearer " + valid), "/pkg.Svc/Public", codes.OK, "user-123"},
	}

	interceptor := UnaryAuthInterceptor(NewInterceptorConfig(m, "/pkg.Svc/Public"))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotUser string
			called := false
			_, err := interceptor(tc.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tc.method}, func(ctx context.Context, req any) (any, error) {
				called = true
				gotUser = UserIDFromContext(ctx)
				return "ok", nil
			})
			if code := status.Code(err); code != tc.wantCode {
				t.Fatalf("code = %v, want %v (err = %v)", code, tc.wantCode, err)
			}
			if tc.wantCode == codes.OK && !called {
				t.Error("expected handler to be called")
			}
			if tc.wantCode != codes.OK && called {
				t.Error("handler should not be called")
			}
			if gotUser != tc.wantUser {
				t.Errorf("user = %q, want %q", gotUser, tc.wantUser)
			}
		})
	}
}

type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context {
	return m.ctx
}

func TestStreamAuthInterceptor(t *testing.T) {
	m := testMinter()
	token := mintFor(t, m, "user-456", time.Now().Add(time.Hour))
	interceptor := StreamAuthInterceptor(NewInterceptorConfig(m))
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/Stream"}

	var gotUser string
	err := interceptor(nil, &mockServerStream{ctx: incoming("Bearer " + token)}, info, func(srv any, stream grpc.ServerStream) error {
		gotUser = UserIDFromContext(stream.Context())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUser != "user-456" {
		t.Errorf("user = %q, want user-456", gotUser)
	}

	err = interceptor(nil, &mockServerStream{ctx: context.Background()}, info, func(srv any, stream grpc.ServerStream) error {
		t.Error("handler should not be called")
		return nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestUnaryClientInterceptor_RenewsOnDenied(t *testing.T) {
	var fetches int
	source := client.TokenSourceFunc(func(ctx context.Context) (string, error) {
		fetches++
		if fetches == 1 {
			return "stale", nil
		}
		return "fresh", nil
	})
	proxy := &client.AccessProxy{Source: source, RetryDelay: time.Millisecond}
	proxy.EnsureDefaults()
	interceptor := UnaryClientInterceptor(proxy)

	var seen []string
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		values := md.Get("authorization")
		if len(values) != 1 {
			t.Fatalf("expected exactly one authorization value, got %v", values)
		}
		seen = append(seen, values[0])
		if values[0] != "Bearer fresh" {
			return status.Error(codes.PermissionDenied, "missing or insufficient permissions")
		}
		return nil
	}

	if err := interceptor(context.Background(), "/pkg.Svc/Method", nil, nil, nil, invoker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 || seen[0] != "Bearer stale" || seen[1] != "Bearer fresh" {
		t.Errorf("credentials sent = %v", seen)
	}
}

func TestUnaryClientInterceptor_DoesNotRetryOtherErrors(t *testing.T) {
	proxy := client.NewAccessProxy(client.TokenSourceFunc(func(ctx context.Context) (string, error) {
		return "tok", nil
	}))
	interceptor := UnaryClientInterceptor(proxy)

	calls := 0
	err := interceptor(context.Background(), "/pkg.Svc/Method", nil, nil, nil, func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		calls++
		return status.Error(codes.NotFound, "no such document")
	})
	if status.Code(err) != codes.NotFound {
		t.Errorf("code = %v, want NotFound", status.Code(err))
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
