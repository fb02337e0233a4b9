package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestIDLengths(t *testing.T) {
	assert.Len(t, newTraceID(), 32)
	assert.Len(t, newSpanID(), 16)
}

func TestIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newTraceID()
		require.False(t, seen[id], "duplicate trace ID")
		seen[id] = true
	}
}

func TestNewChild(t *testing.T) {
	parent := New()
	child := NewChild(parent)

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)
	assert.Equal(t, parent.SpanID, child.ParentSpanID)
}

func TestEnsureContext(t *testing.T) {
	ctx, tc := EnsureContext(context.Background())
	require.Len(t, tc.TraceID, 32)

	_, tc2 := EnsureContext(ctx)
	assert.Equal(t, tc.TraceID, tc2.TraceID)

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestStartSpanNested(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "engine.run")
	_, child := StartSpan(ctx, "engine.recover")

	assert.Equal(t, parent.Ctx.TraceID, child.Ctx.TraceID)
	assert.Equal(t, parent.Ctx.SpanID, child.Ctx.ParentSpanID)

	assert.Zero(t, child.Duration())
	child.SetAttr("attempt", 1)
	child.End()
	assert.False(t, child.EndTime.IsZero())
	assert.Equal(t, 1, child.Attrs["attempt"])
}

func TestMiddlewareContinuesTrace(t *testing.T) {
	var seen Context
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set(TraceIDKey, "abc")
	req.Header.Set(SpanIDKey, "caller")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc", seen.TraceID)
	assert.Equal(t, "caller", seen.ParentSpanID)
	assert.Equal(t, "abc", rec.Header().Get(TraceIDKey))
}

func TestMiddlewareStartsTrace(t *testing.T) {
	rec := httptest.NewRecorder()
	Middleware(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get(TraceIDKey), 32)
}

func TestExtractFromJSON(t *testing.T) {
	tc, ok := ExtractFromJSON([]byte(`{"type":"start","trace_id":"t1"}`))
	assert.True(t, ok)
	assert.Equal(t, "t1", tc.TraceID)

	_, ok = ExtractFromJSON([]byte(`{"type":"start"}`))
	assert.False(t, ok)

	_, ok = ExtractFromJSON([]byte(`not json`))
	assert.False(t, ok)
}

func TestUnaryServerInterceptor(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(TraceIDKey, "grpc-trace"))
	var seen Context
	_, err := UnaryServerInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(ctx context.Context, req any) (any, error) {
			seen, _ = FromContext(ctx)
			return nil, nil
		})

	require.NoError(t, err)
	assert.Equal(t, "grpc-trace", seen.TraceID)
}

func TestLogger(t *testing.T) {
	ctx := WithContext(context.Background(), New())
	Logger(ctx).Info("test message")
	Logger(context.Background()).Info("no trace")
}
