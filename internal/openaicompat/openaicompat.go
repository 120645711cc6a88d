// Package openaicompat builds go-openai clients for self-hosted,
// OpenAI-compatible services and turns their failures into short,
// user-facing messages.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// NewClient returns a client for the service at baseURL (without the /v1
// suffix). The timeout covers the whole request.
func NewClient(baseURL, apiKey string, timeout time.Duration) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(cfg)
}

// Describe explains err for service (e.g. "STT") running at baseURL:
// unreachable, timed out, or the status the service returned.
func Describe(service, baseURL string, err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s returned %d: %s", service, apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("%s returned %d: %v", service, reqErr.HTTPStatusCode, reqErr.Err)
	}

	if IsTimeout(err) {
		return fmt.Sprintf("%s request timed out", service)
	}

	if isUnreachable(err) {
		return fmt.Sprintf("%s service unreachable at %s", service, baseURL)
	}

	return fmt.Sprintf("%s request failed: %v", service, err)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isUnreachable(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
