package config

import (
	"os"
	"testing"
)

func writeTempConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	config, err := LoadFromFile("")
	if err != nil {
		t.Fatalf("load with no file should fall back to defaults: %v", err)
	}

	if config.Source.ID != "simulate" {
		t.Errorf("default source should be simulate, got %s", config.Source.ID)
	}
	if config.Estimator.WindowSize != DefaultWindowSize {
		t.Errorf("default window size should be %d, got %d", DefaultWindowSize, config.Estimator.WindowSize)
	}
	if config.Estimator.Unit != DefaultUnit {
		t.Errorf("default unit should be %s, got %s", DefaultUnit, config.Estimator.Unit)
	}
	if config.Throttle.DistanceM != DefaultThrottleDistanceM {
		t.Errorf("default throttle distance should be %d, got %g", DefaultThrottleDistanceM, config.Throttle.DistanceM)
	}
	if config.Throttle.IntervalS != DefaultThrottleIntervalS {
		t.Errorf("default throttle interval should be %d, got %d", DefaultThrottleIntervalS, config.Throttle.IntervalS)
	}
	if !config.Lookup.Enabled {
		t.Error("lookups should default to enabled")
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	tmpFile := "/tmp/test_gohud_config.yaml"
	defer os.Remove(tmpFile)

	writeTempConfig(t, tmpFile, `
source:
  id: replay
  replay:
    path: /tmp/drive.jsonl
    pace: 2.0
estimator:
  window_size: 3
  unit: mph
throttle:
  distance_m: 80
  interval_s: 10
`)

	config, err := LoadFromFile(tmpFile)
	if err != nil {
		t.Fatalf("load yaml config: %v", err)
	}

	if config.Source.ID != "replay" {
		t.Errorf("source should be replay, got %s", config.Source.ID)
	}
	if config.Source.Replay.Path != "/tmp/drive.jsonl" {
		t.Errorf("replay path not loaded, got %q", config.Source.Replay.Path)
	}
	if config.Source.Replay.Pace != 2.0 {
		t.Errorf("replay pace should be 2.0, got %g", config.Source.Replay.Pace)
	}
	if config.Estimator.WindowSize != 3 {
		t.Errorf("window size should be 3, got %d", config.Estimator.WindowSize)
	}
	if config.Estimator.Unit != "mph" {
		t.Errorf("unit should be mph, got %s", config.Estimator.Unit)
	}
	if config.Throttle.DistanceM != 80 {
		t.Errorf("throttle distance should be 80, got %g", config.Throttle.DistanceM)
	}
	if config.Throttle.IntervalS != 10 {
		t.Errorf("throttle interval should be 10, got %d", config.Throttle.IntervalS)
	}
	// fields the file omits still come from defaults
	if config.Server.Listen != ":8722" {
		t.Errorf("listen should default to :8722, got %s", config.Server.Listen)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpFile := "/tmp/test_gohud_config_env.yaml"
	defer os.Remove(tmpFile)
	writeTempConfig(t, tmpFile, "source:\n  id: simulate\n")

	os.Setenv("HUD_UNIT", "mph")
	os.Setenv("HUD_THROTTLE_DISTANCE_M", "60")
	os.Setenv("HUD_WINDOW_SIZE", "7")
	defer func() {
		os.Unsetenv("HUD_UNIT")
		os.Unsetenv("HUD_THROTTLE_DISTANCE_M")
		os.Unsetenv("HUD_WINDOW_SIZE")
	}()

	config, err := LoadFromFile(tmpFile)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if config.Estimator.Unit != "mph" {
		t.Errorf("HUD_UNIT should override to mph, got %s", config.Estimator.Unit)
	}
	if config.Throttle.DistanceM != 60 {
		t.Errorf("HUD_THROTTLE_DISTANCE_M should override to 60, got %g", config.Throttle.DistanceM)
	}
	if config.Estimator.WindowSize != 7 {
		t.Errorf("HUD_WINDOW_SIZE should override to 7, got %d", config.Estimator.WindowSize)
	}
}

func TestValidateRejectsOutOfRangeThresholds(t *testing.T) {
	base := func() *Config {
		c, err := LoadFromFile("")
		if err != nil {
			t.Fatalf("load defaults: %v", err)
		}
		copied := *c
		return &copied
	}

	c := base()
	c.Throttle.DistanceM = 20
	if err := c.Validate(); err == nil {
		t.Error("distance below 30 m should fail validation")
	}

	c = base()
	c.Throttle.DistanceM = 100
	if err := c.Validate(); err == nil {
		t.Error("distance above 80 m should fail validation")
	}

	c = base()
	c.Throttle.IntervalS = 5
	if err := c.Validate(); err == nil {
		t.Error("interval below 10 s should fail validation")
	}

	c = base()
	c.Throttle.IntervalS = 90
	if err := c.Validate(); err == nil {
		t.Error("interval above 60 s should fail validation")
	}
}

func TestValidateRejectsBadSourceAndUnit(t *testing.T) {
	c, err := LoadFromFile("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	bad := *c
	bad.Source.ID = "carrier-pigeon"
	if err := bad.Validate(); err == nil {
		t.Error("unknown source should fail validation")
	}

	bad = *c
	bad.Estimator.Unit = "knots"
	if err := bad.Validate(); err == nil {
		t.Error("unsupported unit should fail validation")
	}

	bad = *c
	bad.Source.ID = "replay"
	bad.Source.Replay.Path = ""
	if err := bad.Validate(); err == nil {
		t.Error("replay source without a path should fail validation")
	}

	bad = *c
	bad.Estimator.WindowSize = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero window size should fail validation")
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	tmpFile := "/tmp/test_gohud_config.toml"
	defer os.Remove(tmpFile)
	writeTempConfig(t, tmpFile, "nope")

	if _, err := LoadFromFile(tmpFile); err == nil {
		t.Error("unsupported config extension should fail")
	}
}
