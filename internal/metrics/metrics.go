// Package metrics exposes live game server state and archive activity to
// Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ffa-tycoon/ffa-tycoon/internal/gameserver"
)

const namespace = "ffatycoon"

// ServerCollector reports the cached details of every session on each
// scrape. It never talks to the game servers itself.
type ServerCollector struct {
	registry *gameserver.Registry

	guests *prometheus.Desc
	rating *prometheus.Desc
	online *prometheus.Desc
}

func NewServerCollector(registry *gameserver.Registry) *ServerCollector {
	labels := []string{"server"}
	return &ServerCollector{
		registry: registry,
		guests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "park", "guests_count"),
			"Guests in the park", labels, nil),
		rating: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "park", "rating"),
			"Park rating", labels, nil),
		online: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "server", "online"),
			"Players connected to the server, not counting the host", labels, nil),
	}
}

func (c *ServerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.guests
	ch <- c.rating
	ch <- c.online
}

func (c *ServerCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.registry.All() {
		details := s.DetailsSync()
		if details == nil {
			continue
		}
		if details.Park != nil {
			ch <- prometheus.MustNewConstMetric(c.guests, prometheus.GaugeValue, float64(details.Park.Guests), s.Name())
			ch <- prometheus.MustNewConstMetric(c.rating, prometheus.GaugeValue, float64(details.Park.Rating), s.Name())
		}
		ch <- prometheus.MustNewConstMetric(c.online, prometheus.GaugeValue, float64(details.OnlinePlayers()), s.Name())
	}
}

// ArchiveMetrics counts save pipeline runs.
type ArchiveMetrics struct {
	saves *prometheus.CounterVec
}

func newArchiveMetrics() *ArchiveMetrics {
	return &ArchiveMetrics{
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "saves_total",
			Help:      "Park saves attempted, labeled by server and result",
		}, []string{"server", "result"}),
	}
}

// ObserveSave records the outcome of one save pipeline run.
func (m *ArchiveMetrics) ObserveSave(server string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.saves.WithLabelValues(server, result).Inc()
}

// Metrics bundles the registry served on /metrics.
type Metrics struct {
	Registry *prometheus.Registry
	Archive  *ArchiveMetrics
}

// New builds a registry holding the server gauges, archive counters and the
// Go runtime and process collectors.
func New(sessions *gameserver.Registry) *Metrics {
	reg := prometheus.NewRegistry()
	archive := newArchiveMetrics()
	reg.MustRegister(
		NewServerCollector(sessions),
		archive.saves,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{Registry: reg, Archive: archive}
}
