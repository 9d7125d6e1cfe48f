package utils

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"bors-backend/pkg/logger"

	"github.com/sirupsen/logrus"
)

const maxLoggedBody = 2048

var sensitiveHeaders = []string{
	"Authorization",
	"X-Api-Key",
	"X-Auth-Token",
	"Cookie",
	"Telegram-Init-Data",
}

// DebugTransport logs outgoing requests at debug level with credentials
// redacted. Bodies are truncated since image payloads can be large.
type DebugTransport struct {
	base http.RoundTripper
}

func NewDebugTransport(base http.RoundTripper) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	entry := logger.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	if req.Method == http.MethodPost {
		entry = entry.WithField("headers", RedactHeaders(req.Header))
		if req.Body != nil {
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			req.Body.Close()
			req.Body = io.NopCloser(bytes.NewReader(body))
			entry = entry.WithField("body", truncate(string(body), maxLoggedBody))
		}
	}
	entry.Debug("upstream request")

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		entry.WithError(err).Debug("upstream request failed")
		return nil, err
	}
	entry.WithField("status", resp.StatusCode).Debug("upstream response")
	return resp, nil
}

// RedactHeaders flattens headers for logging, masking credentials.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if isSensitiveHeader(name) {
			out[name] = "[REDACTED]"
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func isSensitiveHeader(name string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(name, sensitive) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
