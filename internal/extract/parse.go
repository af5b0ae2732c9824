package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

const excerptLen = 500

// ParseError reports a model response that is not the expected JSON envelope.
// Excerpt holds the start of the response for diagnostics.
type ParseError struct {
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StripCodeFence removes a single markdown code fence (``` or ```json) wrapping
// the whole response. Text that is not fenced is returned trimmed.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return strings.TrimSpace(strings.TrimSuffix(body, "```"))
	}
	// The rest of the opening line is the language tag.
	body = body[nl+1:]
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// Parse decodes a model response into a Result. Fence stripping is the only
// leniency; anything else that is not a JSON object of the expected shape is a
// *ParseError.
func Parse(raw string) (Result, error) {
	body := StripCodeFence(raw)
	dec := json.NewDecoder(strings.NewReader(body))
	var out Result
	if err := dec.Decode(&out); err != nil {
		return Result{}, &ParseError{Excerpt: excerpt(raw), Err: err}
	}
	if dec.More() {
		return Result{}, &ParseError{Excerpt: excerpt(raw), Err: fmt.Errorf("trailing data after JSON object")}
	}
	for i := range out.Locations {
		out.Locations[i].Name = strings.TrimSpace(out.Locations[i].Name)
	}
	return out, nil
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= excerptLen {
		return s
	}
	return string(r[:excerptLen])
}
