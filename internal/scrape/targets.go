package scrape

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shpitdev/place-enricher/pkg/pipeline/io/local"
)

// Target is one page to scrape in a bulk run. Name becomes the output file stem.
type Target struct {
	URL  string
	Name string
}

var (
	urlColumns  = []string{"url", "URL", "link", "Link"}
	nameColumns = []string{"name", "Name", "city", "City"}
)

// LoadTargets reads a bulk input file. A .csv file is read by header, taking
// the URL from the first of url/URL/link/Link that is set and the name from
// name/Name/city/City. Any other file is one URL per line; lines that do not
// start with "http" are ignored. Names are slugified and made unique.
func LoadTargets(file string) ([]Target, error) {
	var (
		targets []Target
		err     error
	)
	if strings.EqualFold(filepath.Ext(file), ".csv") {
		targets, err = loadCSVTargets(file)
	} else {
		targets, err = loadLineTargets(file)
	}
	if err != nil {
		return nil, err
	}
	seen := make(map[string]int, len(targets))
	for i := range targets {
		name := Slugify(targets[i].Name)
		if name == "" {
			name = Slugify(NameFromURL(targets[i].URL))
		}
		if name == "" {
			name = fmt.Sprintf("page-%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s-%d", name, n)
		}
		targets[i].Name = name
	}
	return targets, nil
}

func loadCSVTargets(file string) ([]Target, error) {
	rr, err := local.OpenRows(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rr.Close()
	}()

	var out []Target
	for {
		row, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		u := firstSet(row.Values, urlColumns)
		if u == "" {
			continue
		}
		out = append(out, Target{URL: u, Name: firstSet(row.Values, nameColumns)})
	}
}

func firstSet(values map[string]string, columns []string) string {
	for _, c := range columns {
		if v := strings.TrimSpace(values[c]); v != "" {
			return v
		}
	}
	return ""
}

func loadLineTargets(file string) ([]Target, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	var out []Target
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "http") {
			out = append(out, Target{URL: line})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return out, nil
}

// NameFromURL is the last non-empty path segment of raw, or its host when the
// path is empty.
func NameFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if seg := path.Base(strings.TrimRight(u.Path, "/")); seg != "." && seg != "/" && seg != "" {
		return seg
	}
	return u.Hostname()
}

var (
	slugStrip = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	slugSep   = regexp.MustCompile(`[-\s]+`)
)

// Slugify lowercases s, drops punctuation and joins words with hyphens.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStrip.ReplaceAllString(s, "")
	return strings.Trim(slugSep.ReplaceAllString(s, "-"), "-")
}
