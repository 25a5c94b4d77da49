package utils

import (
	"net/http"
	"time"
)

const (
	UserAgent = "Bandmaster/1.0 (github.com/aidanhq/bandmaster)"

	// No request handler may hang on a stalled upstream, so the shared
	// client always carries a deadline.
	RequestTimeout = 10 * time.Second
)

type UARoundtripper struct {
	RT http.RoundTripper
}

func (uart *UARoundtripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := uart.RT
	if rt == nil {
		rt = http.DefaultTransport
	}
	req.Header.Set("User-Agent", UserAgent)
	return rt.RoundTrip(req)
}

func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &UARoundtripper{},
		Timeout:   RequestTimeout,
	}
}
