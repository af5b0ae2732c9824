package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/shpitdev/place-enricher/internal/config"
	"github.com/shpitdev/place-enricher/pkg/pipeline/core"
)

// Page is a fetched document and its human-visible text.
type Page struct {
	URL  string
	HTML string
	Text string
}

// Fetcher retrieves a page. wait is how long a rendering fetcher lets scripts
// settle before reading the document.
type Fetcher interface {
	Fetch(ctx context.Context, url string, wait time.Duration) (Page, error)
}

const (
	fetchTimeout = 30 * time.Second
	maxPageBytes = 10 << 20
)

// HTTPFetcher downloads pages without executing scripts, so the wait argument
// has no effect. Pages that build their content client-side yield little text.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPFetcher(userAgent string) *HTTPFetcher {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = config.DefaultUserAgent
	}
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: fetchTimeout},
		UserAgent: userAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, _ time.Duration) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Cache-Control", "max-age=0")

	hc := f.Client
	if hc == nil {
		hc = &http.Client{Timeout: fetchTimeout}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return Page{}, &core.TransientError{Err: err}
		}
		return Page{}, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	doc := string(body)
	return Page{URL: url, HTML: doc, Text: VisibleText(doc)}, nil
}

// StatusError is a non-2xx page response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Status)
}

// VisibleText returns the text a reader would see: script-like elements are
// dropped, tag boundaries become spaces, and whitespace runs collapse.
// Malformed markup yields whatever text preceded the error.
func VisibleText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if hidden(atom.Lookup(name)) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if hidden(atom.Lookup(name)) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func hidden(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg:
		return true
	}
	return false
}
