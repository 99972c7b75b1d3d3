// Package promrecorder exports lifecycle metrics through Prometheus. Metric
// and label names are sanitized to the Prometheus charset, so the dotted
// names the runtime emits become underscore-separated series.
package promrecorder

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-lifecycle/core"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	Registerer prometheus.Registerer
	Buckets    []float64
}

func DefaultConfig() Config {
	return Config{
		Registerer: prometheus.DefaultRegisterer,
		// 1ms .. ~2048ms, covering lock waits and store round trips.
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}
}

// Recorder lazily registers one collector per metric name. The first
// observation of a name fixes its label schema: later tags outside that
// schema are dropped and missing ones report as empty values.
type Recorder struct {
	registerer prometheus.Registerer
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*counterFamily
	histograms map[string]*histogramFamily
}

type counterFamily struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogramFamily struct {
	vec    *prometheus.HistogramVec
	labels []string
}

func New(cfg Config) *Recorder {
	defaults := DefaultConfig()
	if cfg.Registerer == nil {
		cfg.Registerer = defaults.Registerer
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = defaults.Buckets
	}
	return &Recorder{
		registerer: cfg.Registerer,
		buckets:    cfg.Buckets,
		counters:   map[string]*counterFamily{},
		histograms: map[string]*histogramFamily{},
	}
}

// IncCounter adds value to the named counter. Counters only move forward,
// so non-positive increments are dropped.
func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	normalized := normalizeTags(tags)
	family := r.counterFamilyFor(name, normalized)
	if family == nil {
		return
	}
	family.vec.WithLabelValues(labelValues(family.labels, normalized)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	normalized := normalizeTags(tags)
	family := r.histogramFamilyFor(name, normalized)
	if family == nil {
		return
	}
	family.vec.WithLabelValues(labelValues(family.labels, normalized)...).Observe(value)
}

func (r *Recorder) counterFamilyFor(name string, tags map[string]string) *counterFamily {
	metricName := sanitizeMetricName(name)
	if metricName == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if family, ok := r.counters[metricName]; ok {
		return family
	}
	labels := labelNames(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricName,
		Help: strings.TrimSpace(name),
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil
		}
		vec = existing
	}
	family := &counterFamily{vec: vec, labels: labels}
	r.counters[metricName] = family
	return family
}

func (r *Recorder) histogramFamilyFor(name string, tags map[string]string) *histogramFamily {
	metricName := sanitizeMetricName(name)
	if metricName == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if family, ok := r.histograms[metricName]; ok {
		return family
	}
	labels := labelNames(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricName,
		Help:    strings.TrimSpace(name),
		Buckets: r.buckets,
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil
		}
		vec = existing
	}
	family := &histogramFamily{vec: vec, labels: labels}
	r.histograms[metricName] = family
	return family
}

func normalizeTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	normalized := make(map[string]string, len(tags))
	for key, value := range tags {
		label := sanitizeLabelName(key)
		if label == "" {
			continue
		}
		normalized[label] = value
	}
	return normalized
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func labelValues(labels []string, tags map[string]string) []string {
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = tags[label]
	}
	return values
}

func sanitizeMetricName(name string) string {
	return sanitizeName(name, true)
}

func sanitizeLabelName(name string) string {
	return sanitizeName(name, false)
}

func sanitizeName(name string, allowColon bool) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			builder.WriteRune(r)
		case r == ':' && allowColon:
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				builder.WriteByte('_')
			}
			builder.WriteRune(r)
		default:
			builder.WriteByte('_')
		}
	}
	return builder.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
