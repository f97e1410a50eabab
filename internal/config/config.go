package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/leo-topology/core"
	"github.com/signalsfoundry/leo-topology/internal/observability"
)

type Config struct {
	Constellation ConstellationConfig `yaml:"constellation"`
	Simulation    SimulationConfig    `yaml:"simulation"`
	Observability ObservabilityConfig `yaml:"observability"`
	Log           LogConfig           `yaml:"log"`
}

type ConstellationConfig struct {
	Planes                 int                   `yaml:"planes"`
	SatellitesPerPlane     int                   `yaml:"satellites_per_plane"`
	AltitudeKm             float64               `yaml:"altitude_km"`
	GroundStations         []GroundStationConfig `yaml:"ground_stations"`
	ProvisionAllCandidates bool                  `yaml:"provision_all_candidates"`
}

type GroundStationConfig struct {
	Name   string  `yaml:"name"`
	LatDeg float64 `yaml:"lat_deg"`
	LonDeg float64 `yaml:"lon_deg"`
}

type SimulationConfig struct {
	Duration       time.Duration `yaml:"duration"`
	Tick           time.Duration `yaml:"tick"`
	UpdateInterval time.Duration `yaml:"update_interval"`
	Mode           string        `yaml:"mode"` // accelerated | realtime
}

type ObservabilityConfig struct {
	MetricsAddr string        `yaml:"metrics_addr"`
	Tracing     TracingConfig `yaml:"tracing"`
}

type TracingConfig struct {
	Enable      bool    `yaml:"enable"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given: the 3x4
// constellation at 2000 km with Ottawa and London as ground stations,
// ninety simulated minutes updated every ten seconds.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads a YAML file, fills unset fields with defaults and validates
// the result.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse is Load for an in-memory document.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := core.DefaultConfig()

	c := &cfg.Constellation
	if c.Planes == 0 {
		c.Planes = def.NumPlanes
	}
	if c.SatellitesPerPlane == 0 {
		c.SatellitesPerPlane = def.SatellitesPerPlane
	}
	if c.AltitudeKm == 0 {
		c.AltitudeKm = def.AltitudeKm
	}
	if len(c.GroundStations) == 0 {
		for _, gs := range def.GroundStations {
			c.GroundStations = append(c.GroundStations, GroundStationConfig{
				Name:   gs.Name,
				LatDeg: gs.LatitudeDeg,
				LonDeg: gs.LongitudeDeg,
			})
		}
	}

	s := &cfg.Simulation
	if s.Duration <= 0 {
		s.Duration = 90 * time.Minute
	}
	if s.Tick <= 0 {
		s.Tick = time.Second
	}
	if s.UpdateInterval <= 0 {
		s.UpdateInterval = 10 * time.Second
	}
	if s.Mode == "" {
		s.Mode = "accelerated"
	}

	t := &cfg.Observability.Tracing
	if t.Exporter == "" {
		t.Exporter = "stdout"
	}
	if t.ServiceName == "" {
		t.ServiceName = "leosim"
	}
	if t.SampleRatio == 0 {
		t.SampleRatio = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate checks driver settings and then the constellation itself.
func (c Config) Validate() error {
	if c.Simulation.Tick <= 0 {
		return fmt.Errorf("simulation.tick must be > 0")
	}
	if c.Simulation.UpdateInterval < c.Simulation.Tick {
		return fmt.Errorf("simulation.update_interval must be >= simulation.tick")
	}
	switch strings.ToLower(c.Simulation.Mode) {
	case "accelerated", "realtime":
	default:
		return fmt.Errorf("simulation.mode must be accelerated or realtime, got %q", c.Simulation.Mode)
	}
	switch strings.ToLower(c.Observability.Tracing.Exporter) {
	case "stdout", "otlp", "otlpgrpc":
	default:
		return fmt.Errorf("observability.tracing.exporter must be stdout or otlp, got %q", c.Observability.Tracing.Exporter)
	}
	if r := c.Observability.Tracing.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("observability.tracing.sample_ratio must be within [0, 1]")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	for i, gs := range c.Constellation.GroundStations {
		if gs.Name == "" {
			return fmt.Errorf("constellation.ground_stations[%d].name is required", i)
		}
	}
	if err := c.ToCore().Validate(); err != nil {
		return fmt.Errorf("constellation: %w", err)
	}
	return nil
}

// ToCore converts the constellation section into a topology configuration.
func (c Config) ToCore() core.Config {
	out := core.Config{
		NumPlanes:              c.Constellation.Planes,
		SatellitesPerPlane:     c.Constellation.SatellitesPerPlane,
		AltitudeKm:             c.Constellation.AltitudeKm,
		ProvisionAllCandidates: c.Constellation.ProvisionAllCandidates,
	}
	for _, gs := range c.Constellation.GroundStations {
		out.GroundStations = append(out.GroundStations, core.GroundStationConfig{
			Name:         gs.Name,
			LatitudeDeg:  gs.LatDeg,
			LongitudeDeg: gs.LonDeg,
		})
	}
	return out
}

// Accelerated reports whether ticks run back to back instead of at
// wall-clock pace.
func (c Config) Accelerated() bool {
	return strings.EqualFold(c.Simulation.Mode, "accelerated")
}

// TracingConfig converts the tracing section for observability.InitTracing.
func (c Config) TracingConfig() observability.TracingConfig {
	t := c.Observability.Tracing
	return observability.TracingConfig{
		Enabled:     t.Enable,
		ServiceName: t.ServiceName,
		Exporter:    strings.ToLower(t.Exporter),
		Endpoint:    t.Endpoint,
		SampleRatio: t.SampleRatio,
	}
}
