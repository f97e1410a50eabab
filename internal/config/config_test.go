package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/leo-topology/core"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "leosim.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "constellation: {}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Constellation.Planes != 3 || cfg.Constellation.SatellitesPerPlane != 4 {
		t.Fatalf("constellation=%dx%d want 3x4", cfg.Constellation.Planes, cfg.Constellation.SatellitesPerPlane)
	}
	if cfg.Constellation.AltitudeKm != 2000 {
		t.Fatalf("altitude=%v want 2000", cfg.Constellation.AltitudeKm)
	}
	if len(cfg.Constellation.GroundStations) != 2 {
		t.Fatalf("ground stations=%d want 2", len(cfg.Constellation.GroundStations))
	}
	if cfg.Simulation.Tick != time.Second || cfg.Simulation.UpdateInterval != 10*time.Second {
		t.Fatalf("tick=%s interval=%s want 1s/10s", cfg.Simulation.Tick, cfg.Simulation.UpdateInterval)
	}
	if !cfg.Accelerated() {
		t.Fatalf("default mode=%q want accelerated", cfg.Simulation.Mode)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("log=%+v want info/text", cfg.Log)
	}
}

func TestLoad_FullDocument(t *testing.T) {
	path := writeTempConfig(t, `
constellation:
  planes: 6
  satellites_per_plane: 10
  altitude_km: 1200
  provision_all_candidates: true
  ground_stations:
    - name: svalbard
      lat_deg: 78.2
      lon_deg: 15.6
    - name: perth
      lat_deg: -31.95
      lon_deg: 115.86
simulation:
  duration: 2h
  tick: 500ms
  update_interval: 5s
  mode: realtime
observability:
  metrics_addr: ":9100"
  tracing:
    enable: true
    exporter: OTLP
    endpoint: collector:4317
    sample_ratio: 0.1
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Simulation.Duration != 2*time.Hour || cfg.Simulation.Tick != 500*time.Millisecond {
		t.Fatalf("simulation=%+v", cfg.Simulation)
	}
	if cfg.Accelerated() {
		t.Fatalf("Accelerated()=true want false for realtime mode")
	}
	if cfg.Observability.MetricsAddr != ":9100" {
		t.Fatalf("metrics_addr=%q", cfg.Observability.MetricsAddr)
	}

	cc := cfg.ToCore()
	if cc.NumPlanes != 6 || cc.SatellitesPerPlane != 10 || cc.AltitudeKm != 1200 || !cc.ProvisionAllCandidates {
		t.Fatalf("core config=%+v", cc)
	}
	if cc.GroundStations[1].Name != "perth" || cc.GroundStations[1].LatitudeDeg != -31.95 {
		t.Fatalf("ground station[1]=%+v", cc.GroundStations[1])
	}

	tc := cfg.TracingConfig()
	if !tc.Enabled || tc.Exporter != "otlp" || tc.Endpoint != "collector:4317" || tc.SampleRatio != 0.1 {
		t.Fatalf("tracing=%+v", tc)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name     string
		doc      string
		want     string
		wantCore bool
	}{
		{
			name:     "odd satellites per plane",
			doc:      "constellation:\n  satellites_per_plane: 5\n",
			want:     "SatellitesPerPlane",
			wantCore: true,
		},
		{
			name:     "single plane",
			doc:      "constellation:\n  planes: 1\n",
			want:     "NumPlanes",
			wantCore: true,
		},
		{
			name:     "altitude too low",
			doc:      "constellation:\n  altitude_km: 300\n",
			want:     "AltitudeKm",
			wantCore: true,
		},
		{
			name:     "three ground stations",
			doc:      "constellation:\n  ground_stations:\n    - {name: a}\n    - {name: b}\n    - {name: c}\n",
			want:     "GroundStations",
			wantCore: true,
		},
		{
			name: "unnamed ground station",
			doc:  "constellation:\n  ground_stations:\n    - {lat_deg: 1}\n    - {name: b}\n",
			want: "constellation.ground_stations[0].name is required",
		},
		{
			name: "update faster than tick",
			doc:  "simulation:\n  tick: 10s\n  update_interval: 1s\n",
			want: "simulation.update_interval must be >= simulation.tick",
		},
		{
			name: "unknown mode",
			doc:  "simulation:\n  mode: warp\n",
			want: "simulation.mode",
		},
		{
			name: "unknown exporter",
			doc:  "observability:\n  tracing:\n    exporter: zipkin\n",
			want: "observability.tracing.exporter",
		},
		{
			name: "unknown log format",
			doc:  "log:\n  format: xml\n",
			want: "log.format",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.doc))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error=%q want substring %q", err.Error(), tc.want)
			}
			if got := errors.Is(err, core.ErrInvalidConfiguration); got != tc.wantCore {
				t.Fatalf("errors.Is(ErrInvalidConfiguration)=%v want %v", got, tc.wantCore)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error=%v want os.ErrNotExist", err)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "constellation: [\n")); err == nil {
		t.Fatalf("expected YAML error")
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error: %v", err)
	}
}
