package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "api error",
			err:  fmt.Errorf("wrapped: %w", &openai.APIError{HTTPStatusCode: 503, Message: "model loading"}),
			want: "STT returned 503: model loading",
		},
		{
			name: "request error",
			err:  &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")},
			want: "STT returned 502: bad gateway",
		},
		{
			name: "deadline",
			err:  fmt.Errorf("post: %w", context.DeadlineExceeded),
			want: "STT request timed out",
		},
		{
			name: "connection refused",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			want: "STT service unreachable at http://localhost:29000",
		},
		{
			name: "unknown host",
			err:  &net.DNSError{Name: "m5", Err: "no such host"},
			want: "STT service unreachable at http://localhost:29000",
		},
		{
			name: "other",
			err:  errors.New("boom"),
			want: "STT request failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe("STT", "http://localhost:29000", tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNewClientAppendsVersionPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "", 5*time.Second)
	if _, err := c.ListModels(context.Background()); err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if gotPath != "/v1/models" {
		t.Fatalf("expected /v1/models, got %s", gotPath)
	}
}
