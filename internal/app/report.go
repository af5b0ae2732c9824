package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/shpitdev/place-enricher/internal/scrape"
)

const rule = "============================================================"

func percent(n, total int) float64 {
	if total < 1 {
		total = 1
	}
	return 100 * float64(n) / float64(total)
}

// WriteEnrichSummary prints the end-of-run report for an enrich run.
func WriteEnrichSummary(w io.Writer, s EnrichSummary) {
	total := s.Processed()
	_, _ = fmt.Fprintf(w, "\n%s\nSUMMARY\n%s\n", rule, rule)
	if s.StartRow > 0 {
		_, _ = fmt.Fprintf(w, "Resumed from row: %d\n", s.StartRow)
	}
	_, _ = fmt.Fprintf(w, "Schema: %s\n", s.Kind)
	_, _ = fmt.Fprintf(w, "Total processed: %d\n", total)
	_, _ = fmt.Fprintf(w, "Successfully enriched: %d (%.1f%%)\n", s.Stats.Success, percent(s.Stats.Success, total))
	_, _ = fmt.Fprintf(w, "Failed lookups: %d (%.1f%%)\n", s.Stats.Failed, percent(s.Stats.Failed, total))
	_, _ = fmt.Fprintf(w, "\nOutput saved to: %s\n", s.OutputPath)
	_, _ = fmt.Fprintf(w, "Failed lookups saved to: %s\n", s.FailedPath)
	_, _ = fmt.Fprintf(w, "Start time: %s\n", s.Started.Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(w, "End time: %s\n", s.Started.Add(s.Elapsed).Format("2006-01-02 15:04:05"))
}

// WriteScrapeSummary prints the result of a single-URL scrape.
func WriteScrapeSummary(w io.Writer, s scrape.Summary) {
	_, _ = fmt.Fprintf(w, "\nExtracted %d locations\n", s.Locations)
	_, _ = fmt.Fprintf(w, "With place ids: %d\n", s.WithPlaceID)
	_, _ = fmt.Fprintf(w, "Saved to: %s\n", s.CSVPath)
	if s.JSONPath != "" {
		_, _ = fmt.Fprintf(w, "JSON saved to: %s\n", s.JSONPath)
	}
}

// WriteBulkSummary prints the result of a bulk scrape, listing failed URLs.
func WriteBulkSummary(w io.Writer, s scrape.BulkSummary, outputDir string) {
	_, _ = fmt.Fprintf(w, "\n%s\nBULK SUMMARY\n%s\n", rule, rule)
	_, _ = fmt.Fprintf(w, "URLs: %d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Succeeded: %d\n", s.Succeeded)
	_, _ = fmt.Fprintf(w, "Failed: %d\n", len(s.Failed))
	_, _ = fmt.Fprintf(w, "Locations: %d (with place ids: %d)\n", s.Locations, s.WithPlaceID)
	_, _ = fmt.Fprintf(w, "Output directory: %s\n", outputDir)
	if len(s.Failed) > 0 {
		_, _ = fmt.Fprintf(w, "\nFailed URLs:\n  %s\n", strings.Join(s.Failed, "\n  "))
	}
}
