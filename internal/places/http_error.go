package places

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/place-enricher/pkg/pipeline/redact"
)

// googleErrorEnvelope is the error body shape of Google APIs.
type googleErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// HTTPError is a sanitized summary of a non-2xx Places API response.
//
// Raw response bodies are never included verbatim.
type HTTPError struct {
	Op          string
	StatusCode  int
	Status      string
	ErrorStatus string
	Message     string

	// Snippet is a redacted, truncated hint for non-JSON responses.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "places http error"
	}
	parts := []string{
		fmt.Sprintf("places api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if e.ErrorStatus != "" {
		parts = append(parts, "errorStatus="+e.ErrorStatus)
	}
	if e.Message != "" {
		parts = append(parts, "message="+e.Message)
	}
	if e.Snippet != "" {
		parts = append(parts, "body="+e.Snippet)
	}
	return strings.Join(parts, " ")
}

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env googleErrorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil && (env.Error.Status != "" || env.Error.Message != "") {
		h.ErrorStatus = strings.TrimSpace(env.Error.Status)
		h.Message = redactAndTruncate([]byte(env.Error.Message))
		return h
	}

	h.Snippet = redactAndTruncate(body)
	return h
}

// StatusError reports a legacy API response whose status field is not OK.
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "places legacy status " + e.Status
	}
	return fmt.Sprintf("places legacy status %s: %s", e.Status, e.Message)
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
