package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TopologyCollector bundles Prometheus metrics for the constellation
// topology manager. It satisfies core.TopologyMetricsRecorder.
type TopologyCollector struct {
	gatherer prometheus.Gatherer

	UpdateDuration        prometheus.Histogram
	Rehomes               *prometheus.CounterVec
	ActiveLinks           *prometheus.GaugeVec
	Satellites            prometheus.Gauge
	GroundStations        prometheus.Gauge
	RoutingRecomputations prometheus.Counter
}

// NewTopologyCollector registers topology metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewTopologyCollector(reg prometheus.Registerer) (*TopologyCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "topology_update_duration_seconds",
		Help:    "Wall-clock duration of UpdateLinks passes.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "topology_update_duration_seconds")
	if err != nil {
		return nil, err
	}

	rehomes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topology_link_rehomes_total",
		Help: "Number of link groups whose active candidate changed, labeled by link kind.",
	}, []string{"kind"}), "topology_link_rehomes_total")
	if err != nil {
		return nil, err
	}

	active, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "topology_active_links",
		Help: "Links currently carrying traffic, labeled by link kind.",
	}, []string{"kind"}), "topology_active_links")
	if err != nil {
		return nil, err
	}

	satellites, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topology_satellites",
		Help: "Number of satellites in the constellation.",
	}), "topology_satellites")
	if err != nil {
		return nil, err
	}

	stations, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topology_ground_stations",
		Help: "Number of ground stations attached to the constellation.",
	}), "topology_ground_stations")
	if err != nil {
		return nil, err
	}

	routing, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "topology_routing_recomputations_total",
		Help: "Routing table recomputations triggered by link updates.",
	}), "topology_routing_recomputations_total")
	if err != nil {
		return nil, err
	}

	return &TopologyCollector{
		gatherer:              gatherer,
		UpdateDuration:        duration,
		Rehomes:               rehomes,
		ActiveLinks:           active,
		Satellites:            satellites,
		GroundStations:        stations,
		RoutingRecomputations: routing,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TopologyCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TopologyCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveUpdate records the duration of one UpdateLinks pass.
func (c *TopologyCollector) ObserveUpdate(d time.Duration) {
	if c == nil || c.UpdateDuration == nil {
		return
	}
	c.UpdateDuration.Observe(d.Seconds())
}

// AddRehomes adds n re-homes of the given link kind.
func (c *TopologyCollector) AddRehomes(kind string, n int) {
	if c == nil || c.Rehomes == nil || n < 0 {
		return
	}
	c.Rehomes.WithLabelValues(kind).Add(float64(n))
}

// SetActiveLinks sets the number of active links of a kind.
func (c *TopologyCollector) SetActiveLinks(kind string, n int) {
	if c == nil || c.ActiveLinks == nil {
		return
	}
	c.ActiveLinks.WithLabelValues(kind).Set(float64(n))
}

// SetConstellationSize records satellite and ground station counts.
func (c *TopologyCollector) SetConstellationSize(satellites, groundStations int) {
	if c == nil {
		return
	}
	if c.Satellites != nil {
		c.Satellites.Set(float64(satellites))
	}
	if c.GroundStations != nil {
		c.GroundStations.Set(float64(groundStations))
	}
}

// IncRoutingRecomputations counts one routing table recomputation.
func (c *TopologyCollector) IncRoutingRecomputations() {
	if c == nil || c.RoutingRecomputations == nil {
		return
	}
	c.RoutingRecomputations.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
