// Package gemini implements extract.Extractor on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/shpitdev/place-enricher/internal/extract"
	"github.com/shpitdev/place-enricher/pkg/pipeline/core"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	Logger *zap.Logger
}

type Extractor struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

var _ extract.Extractor = (*Extractor)(nil)

func New(ctx context.Context, cfg Config) (*Extractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
		log:    log.Named("gemini"),
	}, nil
}

var locationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"name":         {Type: genai.TypeString},
		"address":      {Type: genai.TypeString},
		"neighborhood": {Type: genai.TypeString},
		"category":     {Type: genai.TypeString},
		"description":  {Type: genai.TypeString},
		"price_range":  {Type: genai.TypeString},
		"rating":       {Type: genai.TypeString},
	},
	Required: []string{"name"},
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"locations":   {Type: genai.TypeArray, Items: locationSchema},
		"source_url":  {Type: genai.TypeString},
		"total_count": {Type: genai.TypeInteger},
	},
	Required: []string{"locations"},
}

// Extract sends the page text to the model and parses its JSON answer.
// API failures worth retrying come back as *core.TransientError; a response
// that does not parse comes back as *extract.ParseError.
func (e *Extractor) Extract(ctx context.Context, text, sourceURL string) (extract.Result, error) {
	if strings.TrimSpace(text) == "" {
		return extract.Result{}, errors.New("empty page text")
	}

	resp, err := e.client.Models.GenerateContent(
		ctx,
		e.model,
		genai.Text(extract.BuildPrompt(text, sourceURL)),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return extract.Result{}, classifyErr(err)
	}

	out, err := extract.Parse(resp.Text())
	if err != nil {
		return extract.Result{}, err
	}
	if out.SourceURL == "" {
		out.SourceURL = sourceURL
	}
	e.log.Debug("extracted locations",
		zap.String("url", sourceURL),
		zap.String("model", e.model),
		zap.Int("count", len(out.Locations)),
	)
	return out, nil
}

// rateLimitRetries caps retries of a 429 below the pool's general budget.
const rateLimitRetries = 1

func classifyErr(err error) error {
	// Wrap transient failures so the worker pool will retry with backoff.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			// Quota exhaustion rarely clears within one backoff window.
			return &core.LimitedTransientError{Err: err, ExtraRetries: rateLimitRetries}
		case apiErr.Code/100 == 5:
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
