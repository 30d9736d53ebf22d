package dataflows

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// newHTTPClient builds the resty client shared by the unauthenticated
// Yahoo and Google sources. There is no retry policy.
func newHTTPClient(baseURL string, timeout time.Duration, userAgent string) *resty.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")
	return client
}

// checkResponse maps transport errors and non-2xx statuses to ErrUpstream.
func checkResponse(resp *resty.Response, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstream, what, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("%w: %s: HTTP %d", ErrUpstream, what, resp.StatusCode())
	}
	return nil
}
