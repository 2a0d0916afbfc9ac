package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CatalogCollector bundles Prometheus metrics describing catalog builds and
// hover-evaluation caching.
type CatalogCollector struct {
	gatherer prometheus.Gatherer

	Propellers    prometheus.Gauge
	Motors        prometheus.Gauge
	BatteryGroups prometheus.Gauge
	Frames        prometheus.Gauge

	KeyCollisions prometheus.Counter
	BuildFailures prometheus.Counter
	BuildDuration prometheus.Histogram

	HoverCache *prometheus.GaugeVec
}

// NewCatalogCollector registers catalog metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCatalogCollector(reg prometheus.Registerer) (*CatalogCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &CatalogCollector{gatherer: gatherer}
	var err error

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.Propellers, "catalog_propellers", "Number of propellers in the catalog after merging subsets."},
		{&c.Motors, "catalog_motors", "Number of motors in the catalog."},
		{&c.BatteryGroups, "catalog_battery_groups", "Number of battery groups across all pack families."},
		{&c.Frames, "catalog_frames", "Number of parametric frames in the catalog."},
	}
	for _, g := range gauges {
		*g.dst, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}), g.name)
		if err != nil {
			return nil, err
		}
	}

	c.KeyCollisions, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_propeller_key_collisions_total",
		Help: "Propeller records shadowed by a later subset with the same size key.",
	}), "catalog_propeller_key_collisions_total")
	if err != nil {
		return nil, err
	}

	c.BuildFailures, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_build_failures_total",
		Help: "Catalog builds rejected by integrity checks.",
	}), "catalog_build_failures_total")
	if err != nil {
		return nil, err
	}

	c.BuildDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_build_duration_seconds",
		Help:    "Time spent fetching data and building the catalog.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}), "catalog_build_duration_seconds")
	if err != nil {
		return nil, err
	}

	c.HoverCache, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_hover_cache_entries",
		Help: "Motor hover evaluation cache totals, labeled by outcome (entries, hits, misses).",
	}, []string{"outcome"}), "catalog_hover_cache_entries")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *CatalogCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetCatalogCounts sets the content gauges.
func (c *CatalogCollector) SetCatalogCounts(propellers, motors, batteryGroups, frames int) {
	if c == nil {
		return
	}
	c.Propellers.Set(float64(propellers))
	c.Motors.Set(float64(motors))
	c.BatteryGroups.Set(float64(batteryGroups))
	c.Frames.Set(float64(frames))
}

// ObserveBuild records one build attempt.
func (c *CatalogCollector) ObserveBuild(d time.Duration, collisions int, err error) {
	if c == nil {
		return
	}
	c.BuildDuration.Observe(d.Seconds())
	c.KeyCollisions.Add(float64(collisions))
	if err != nil {
		c.BuildFailures.Inc()
	}
}

// SetHoverCache publishes summed hover cache statistics.
func (c *CatalogCollector) SetHoverCache(entries int, hits, misses int64) {
	if c == nil {
		return
	}
	c.HoverCache.WithLabelValues("entries").Set(float64(entries))
	c.HoverCache.WithLabelValues("hits").Set(float64(hits))
	c.HoverCache.WithLabelValues("misses").Set(float64(misses))
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	return register(reg, g, name)
}

func registerGaugeVec(reg prometheus.Registerer, g *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	return register(reg, g, name)
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	return register(reg, c, name)
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	return register(reg, h, name)
}
