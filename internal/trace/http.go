package trace

import (
	"encoding/json"
	"net/http"
	"time"
)

// Middleware continues or starts a trace per HTTP request and echoes the trace ID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := continueFrom(r.Header.Get(TraceIDKey), r.Header.Get(SpanIDKey))
		w.Header().Set(TraceIDKey, tc.TraceID)
		ctx := WithContext(r.Context(), tc)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		Logger(ctx).Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

// ExtractFromJSON reads trace_id from a websocket command frame.
func ExtractFromJSON(data []byte) (Context, bool) {
	var msg struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.TraceID == "" {
		return New(), false
	}
	return continueFrom(msg.TraceID, ""), true
}
