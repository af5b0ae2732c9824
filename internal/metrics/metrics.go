// Package metrics exposes run counters in the Prometheus exposition format.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "placeenricher"

// Recorder owns a private registry so several runs in one process do not collide.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	reg *prometheus.Registry

	rows          *prometheus.CounterVec
	lookupSeconds prometheus.Histogram
	checkpoints   prometheus.Counter
	lastRow       prometheus.Gauge
	urls          *prometheus.CounterVec
	locations     *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Input rows routed to a sink, by outcome.",
		}, []string{"outcome"}),
		lookupSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Latency of place lookups.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 9),
		}),
		checkpoints: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoints written.",
		}),
		lastRow: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_last_row",
			Help:      "Resume position of the most recent checkpoint.",
		}),
		urls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_urls_total",
			Help:      "Scraped pages, by outcome.",
		}, []string{"outcome"}),
		locations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_locations_total",
			Help:      "Locations extracted from scraped pages, by place id lookup outcome.",
		}, []string{"outcome"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// RowDone records one routed row.
func (r *Recorder) RowDone(matched bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.rows.WithLabelValues(outcome(matched)).Inc()
	r.lookupSeconds.Observe(elapsed.Seconds())
}

// CheckpointSaved records a written checkpoint.
func (r *Recorder) CheckpointSaved(lastRow int) {
	if r == nil {
		return
	}
	r.checkpoints.Inc()
	r.lastRow.Set(float64(lastRow))
}

// URLDone records one scraped page.
func (r *Recorder) URLDone(ok bool) {
	if r == nil {
		return
	}
	r.urls.WithLabelValues(outcome(ok)).Inc()
}

// LocationsExtracted records extracted locations and how many got a place id.
func (r *Recorder) LocationsExtracted(total, withPlaceID int) {
	if r == nil {
		return
	}
	r.locations.WithLabelValues("matched").Add(float64(withPlaceID))
	r.locations.WithLabelValues("unmatched").Add(float64(total - withPlaceID))
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}

// Serve exposes /metrics on addr until ctx is done. An empty addr is a no-op.
func (r *Recorder) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	if r == nil || addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}
