package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID(t *testing.T) {
	cases := []struct {
		name   string
		header string
		keep   bool
	}{
		{"absent", "", false},
		{"caller supplied", "req-42", true},
		{"too long", strings.Repeat("x", 65), false},
		{"control characters", "a\nb", false},
		{"spaces", "a b", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("X-Request-ID", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen == "" {
				t.Fatalf("no request id in context")
			}
			if got := rec.Header().Get("X-Request-ID"); got != seen {
				t.Fatalf("header = %q, context = %q", got, seen)
			}
			if (seen == tc.header) != tc.keep {
				t.Fatalf("request id = %q, keep = %v", seen, tc.keep)
			}
		})
	}
}
