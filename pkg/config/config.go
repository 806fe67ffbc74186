package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceConfig selects and configures the fix source.
type SourceConfig struct {
	ID           string  // simulate, serialgps, mqttfeed, replay
	IntervalMs   int     // target fix interval for sources that pace themselves
	MinDistanceM float64 // fixes closer than this to the previous one are dropped (0 = keep all)

	Serial SerialConfig
	MQTT   MQTTConfig
	Replay ReplayConfig
}

// SerialConfig describes the NMEA serial port.
type SerialConfig struct {
	Port string
	Baud int
}

// MQTTConfig describes the MQTT fix feed.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	FixTopic       string
	TelemetryTopic string // optional battery/charging feed
}

// ReplayConfig points at a recorded JSONL fix log.
type ReplayConfig struct {
	Path string
	Pace float64 // 1.0 = realtime, 2.0 = double speed
}

// EstimatorConfig controls the speed smoothing window and display unit.
type EstimatorConfig struct {
	WindowSize int
	Unit       string // kmh or mph
}

// ThrottleConfig controls when geo lookups fire.
type ThrottleConfig struct {
	DistanceM float64 // fire when moved at least this far from the anchor
	IntervalS int     // or when this much time elapsed since the anchor
}

// LookupConfig configures the external geo services.
type LookupConfig struct {
	Enabled           bool
	UserAgent         string
	TimeoutS          int
	SpeedLimitURL     string
	SpeedLimitRadiusM int
	GeocodeURL        string
	WeatherURL        string
	CacheDir          string // badger cell cache; empty disables the persistent cache
	CacheTTLMin       int
}

// PowerConfig controls the in-car gate.
type PowerConfig struct {
	Enabled    bool   // pause tracking while not charging
	SupplyPath string // one sysfs supply directory, e.g. /sys/class/power_supply/battery
	PollS      int
}

// RecorderConfig controls trip recording.
type RecorderConfig struct {
	DBPath   string
	IdleGapS int // close the trip after this long without movement
}

// ServerConfig controls the control-plane listeners.
type ServerConfig struct {
	Listen        string
	MetricsListen string // expvar + pprof; empty disables
}

// Config is the resolved runtime configuration.
type Config struct {
	Source    SourceConfig
	Estimator EstimatorConfig
	Throttle  ThrottleConfig
	Lookup    LookupConfig
	Power     PowerConfig
	Recorder  RecorderConfig
	Server    ServerConfig

	StateDir string // JSON state files (odometer, display unit)

	LogLevel   string
	LogFile    string
	LogPerTrip bool
}

var globalConfig *Config
var configFilePath string

// SetConfigPath sets the config file path used by Load.
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath reports the config file path used by Load.
func GetConfigPath() string {
	return configFilePath
}

// ConfigFile mirrors the YAML/JSON layout on disk.
type ConfigFile struct {
	Source struct {
		ID           string  `yaml:"id" json:"id"`
		IntervalMs   int     `yaml:"interval_ms" json:"interval_ms"`
		MinDistanceM float64 `yaml:"min_distance_m" json:"min_distance_m"`
		Serial       struct {
			Port string `yaml:"port" json:"port"`
			Baud int    `yaml:"baud" json:"baud"`
		} `yaml:"serial" json:"serial"`
		MQTT struct {
			Broker         string `yaml:"broker" json:"broker"`
			ClientID       string `yaml:"client_id" json:"client_id"`
			FixTopic       string `yaml:"fix_topic" json:"fix_topic"`
			TelemetryTopic string `yaml:"telemetry_topic" json:"telemetry_topic"`
		} `yaml:"mqtt" json:"mqtt"`
		Replay struct {
			Path string  `yaml:"path" json:"path"`
			Pace float64 `yaml:"pace" json:"pace"`
		} `yaml:"replay" json:"replay"`
	} `yaml:"source" json:"source"`
	Estimator struct {
		WindowSize int    `yaml:"window_size" json:"window_size"`
		Unit       string `yaml:"unit" json:"unit"`
	} `yaml:"estimator" json:"estimator"`
	Throttle struct {
		DistanceM float64 `yaml:"distance_m" json:"distance_m"`
		IntervalS int     `yaml:"interval_s" json:"interval_s"`
	} `yaml:"throttle" json:"throttle"`
	Lookup struct {
		Enabled           *bool  `yaml:"enabled" json:"enabled"`
		UserAgent         string `yaml:"user_agent" json:"user_agent"`
		TimeoutS          int    `yaml:"timeout_s" json:"timeout_s"`
		SpeedLimitURL     string `yaml:"speed_limit_url" json:"speed_limit_url"`
		SpeedLimitRadiusM int    `yaml:"speed_limit_radius_m" json:"speed_limit_radius_m"`
		GeocodeURL        string `yaml:"geocode_url" json:"geocode_url"`
		WeatherURL        string `yaml:"weather_url" json:"weather_url"`
		CacheDir          string `yaml:"cache_dir" json:"cache_dir"`
		CacheTTLMin       int    `yaml:"cache_ttl_min" json:"cache_ttl_min"`
	} `yaml:"lookup" json:"lookup"`
	Power struct {
		Enabled    bool   `yaml:"enabled" json:"enabled"`
		SupplyPath string `yaml:"supply_path" json:"supply_path"`
		PollS      int    `yaml:"poll_s" json:"poll_s"`
	} `yaml:"power" json:"power"`
	Recorder struct {
		DBPath   string `yaml:"db_path" json:"db_path"`
		IdleGapS int    `yaml:"idle_gap_s" json:"idle_gap_s"`
	} `yaml:"recorder" json:"recorder"`
	Server struct {
		Listen        string `yaml:"listen" json:"listen"`
		MetricsListen string `yaml:"metrics_listen" json:"metrics_listen"`
	} `yaml:"server" json:"server"`
	StateDir   string `yaml:"state_dir" json:"state_dir"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
	LogFile    string `yaml:"log_file" json:"log_file"`
	LogPerTrip bool   `yaml:"log_per_trip" json:"log_per_trip"`
}

// Defaults. Thresholds sit inside the ranges Validate enforces.
const (
	DefaultWindowSize        = 5
	DefaultUnit              = "kmh"
	DefaultThrottleDistanceM = 50
	DefaultThrottleIntervalS = 30
	DefaultFixIntervalMs     = 1000
	DefaultLookupTimeoutS    = 10
	DefaultLimitRadiusM      = 40
	DefaultCacheTTLMin       = 24 * 60
	DefaultIdleGapS          = 180
	DefaultPowerPollS        = 30
)

// Load loads the configuration from the path set via SetConfigPath,
// falling back to environment variables for anything the file omits.
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile loads the configuration from the given file. The result is
// cached; repeated calls with the same path return the same Config.
func LoadFromFile(filePath string) (*Config, error) {
	if globalConfig != nil && configFilePath == filePath {
		return globalConfig, nil
	}

	var cf *ConfigFile
	if filePath != "" {
		var err error
		cf, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", filePath, err)
		}
	}
	if cf == nil {
		cf = &ConfigFile{}
	}

	config := &Config{
		Source: SourceConfig{
			ID:           firstNonEmpty(cf.Source.ID, getEnv("HUD_SOURCE", "simulate")),
			IntervalMs:   firstPositive(cf.Source.IntervalMs, parseIntEnv("HUD_FIX_INTERVAL_MS", DefaultFixIntervalMs)),
			MinDistanceM: firstPositiveFloat(cf.Source.MinDistanceM, parseFloatEnv("HUD_MIN_DISTANCE_M", 0)),
			Serial: SerialConfig{
				Port: firstNonEmpty(cf.Source.Serial.Port, getEnv("HUD_SERIAL_PORT", "/dev/ttyACM0")),
				Baud: firstPositive(cf.Source.Serial.Baud, parseIntEnv("HUD_SERIAL_BAUD", 9600)),
			},
			MQTT: MQTTConfig{
				Broker:         firstNonEmpty(cf.Source.MQTT.Broker, getEnv("HUD_MQTT_BROKER", "tcp://127.0.0.1:1883")),
				ClientID:       firstNonEmpty(cf.Source.MQTT.ClientID, getEnv("HUD_MQTT_CLIENT_ID", "gohud")),
				FixTopic:       firstNonEmpty(cf.Source.MQTT.FixTopic, getEnv("HUD_MQTT_FIX_TOPIC", "gohud/fix")),
				TelemetryTopic: firstNonEmpty(cf.Source.MQTT.TelemetryTopic, getEnv("HUD_MQTT_TELEMETRY_TOPIC", "")),
			},
			Replay: ReplayConfig{
				Path: firstNonEmpty(cf.Source.Replay.Path, getEnv("HUD_REPLAY_PATH", "")),
				Pace: firstPositiveFloat(cf.Source.Replay.Pace, parseFloatEnv("HUD_REPLAY_PACE", 1.0)),
			},
		},
		Estimator: EstimatorConfig{
			WindowSize: firstPositive(cf.Estimator.WindowSize, parseIntEnv("HUD_WINDOW_SIZE", DefaultWindowSize)),
			Unit:       firstNonEmpty(cf.Estimator.Unit, getEnv("HUD_UNIT", DefaultUnit)),
		},
		Throttle: ThrottleConfig{
			DistanceM: firstPositiveFloat(cf.Throttle.DistanceM, parseFloatEnv("HUD_THROTTLE_DISTANCE_M", DefaultThrottleDistanceM)),
			IntervalS: firstPositive(cf.Throttle.IntervalS, parseIntEnv("HUD_THROTTLE_INTERVAL_S", DefaultThrottleIntervalS)),
		},
		Lookup: LookupConfig{
			Enabled:           boolOrDefault(cf.Lookup.Enabled, parseBoolEnv("HUD_LOOKUP_ENABLED", true)),
			UserAgent:         firstNonEmpty(cf.Lookup.UserAgent, getEnv("HUD_LOOKUP_USER_AGENT", "gohud/1.0")),
			TimeoutS:          firstPositive(cf.Lookup.TimeoutS, parseIntEnv("HUD_LOOKUP_TIMEOUT_S", DefaultLookupTimeoutS)),
			SpeedLimitURL:     firstNonEmpty(cf.Lookup.SpeedLimitURL, getEnv("HUD_SPEED_LIMIT_URL", "https://overpass-api.de/api/interpreter")),
			SpeedLimitRadiusM: firstPositive(cf.Lookup.SpeedLimitRadiusM, parseIntEnv("HUD_SPEED_LIMIT_RADIUS_M", DefaultLimitRadiusM)),
			GeocodeURL:        firstNonEmpty(cf.Lookup.GeocodeURL, getEnv("HUD_GEOCODE_URL", "https://nominatim.openstreetmap.org")),
			WeatherURL:        firstNonEmpty(cf.Lookup.WeatherURL, getEnv("HUD_WEATHER_URL", "https://api.open-meteo.com")),
			CacheDir:          firstNonEmpty(cf.Lookup.CacheDir, getEnv("HUD_CACHE_DIR", "data/limitcache")),
			CacheTTLMin:       firstPositive(cf.Lookup.CacheTTLMin, parseIntEnv("HUD_CACHE_TTL_MIN", DefaultCacheTTLMin)),
		},
		Power: PowerConfig{
			Enabled:    cf.Power.Enabled || parseBoolEnv("HUD_POWER_GATE", false),
			SupplyPath: firstNonEmpty(cf.Power.SupplyPath, getEnv("HUD_POWER_SUPPLY_PATH", "/sys/class/power_supply/battery")),
			PollS:      firstPositive(cf.Power.PollS, parseIntEnv("HUD_POWER_POLL_S", DefaultPowerPollS)),
		},
		Recorder: RecorderConfig{
			DBPath:   firstNonEmpty(cf.Recorder.DBPath, getEnv("HUD_DB_PATH", "data/trips.db")),
			IdleGapS: firstPositive(cf.Recorder.IdleGapS, parseIntEnv("HUD_IDLE_GAP_S", DefaultIdleGapS)),
		},
		Server: ServerConfig{
			Listen:        firstNonEmpty(cf.Server.Listen, getEnv("HUD_LISTEN", ":8722")),
			MetricsListen: firstNonEmpty(cf.Server.MetricsListen, getEnv("HUD_METRICS_LISTEN", "")),
		},
		StateDir:   firstNonEmpty(cf.StateDir, getEnv("HUD_STATE_DIR", "data/state")),
		LogLevel:   firstNonEmpty(cf.LogLevel, getEnv("LOG_LEVEL", "info")),
		LogFile:    firstNonEmpty(cf.LogFile, getEnv("LOG_FILE", "logs/hud.log")),
		LogPerTrip: cf.LogPerTrip || parseBoolEnv("LOG_PER_TRIP", false),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	globalConfig = config
	configFilePath = filePath
	return config, nil
}

// loadConfigFile reads a YAML or JSON config file.
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cf ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s (want .yaml, .yml or .json)", ext)
	}

	return &cf, nil
}

// Get returns the loaded global config, nil before Load.
func Get() *Config {
	return globalConfig
}

// Validate checks ranges. Throttle thresholds are kept inside the window the
// upstream variants agree on (30-80 m, 10-60 s) so a typo'd config cannot
// hammer the public APIs.
func (c *Config) Validate() error {
	switch c.Source.ID {
	case "simulate", "serialgps", "mqttfeed", "replay":
	default:
		return fmt.Errorf("unknown source: %s", c.Source.ID)
	}
	if c.Source.ID == "replay" && c.Source.Replay.Path == "" {
		return fmt.Errorf("replay source needs source.replay.path")
	}
	if c.Source.IntervalMs < 100 {
		return fmt.Errorf("source.interval_ms must be >= 100, got %d", c.Source.IntervalMs)
	}
	if c.Source.MinDistanceM < 0 || c.Source.MinDistanceM > 5 {
		return fmt.Errorf("source.min_distance_m must be 0-5, got %g", c.Source.MinDistanceM)
	}

	if c.Estimator.WindowSize <= 0 {
		return fmt.Errorf("estimator.window_size must be > 0, got %d", c.Estimator.WindowSize)
	}
	if c.Estimator.Unit != "kmh" && c.Estimator.Unit != "mph" {
		return fmt.Errorf("estimator.unit must be kmh or mph, got %q", c.Estimator.Unit)
	}

	if c.Throttle.DistanceM < 30 || c.Throttle.DistanceM > 80 {
		return fmt.Errorf("throttle.distance_m must be 30-80, got %g", c.Throttle.DistanceM)
	}
	if c.Throttle.IntervalS < 10 || c.Throttle.IntervalS > 60 {
		return fmt.Errorf("throttle.interval_s must be 10-60, got %d", c.Throttle.IntervalS)
	}

	if c.Lookup.Enabled {
		if c.Lookup.SpeedLimitURL == "" || c.Lookup.GeocodeURL == "" || c.Lookup.WeatherURL == "" {
			return fmt.Errorf("lookup enabled but an endpoint URL is empty")
		}
		if c.Lookup.SpeedLimitRadiusM <= 0 {
			return fmt.Errorf("lookup.speed_limit_radius_m must be > 0, got %d", c.Lookup.SpeedLimitRadiusM)
		}
	}

	if c.Recorder.DBPath == "" {
		return fmt.Errorf("recorder.db_path must not be empty")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	return nil
}

func firstNonEmpty(fileValue, envValue string) string {
	if fileValue != "" {
		return fileValue
	}
	return envValue
}

func firstPositive(fileValue, envValue int) int {
	if fileValue > 0 {
		return fileValue
	}
	return envValue
}

func firstPositiveFloat(fileValue, envValue float64) float64 {
	if fileValue > 0 {
		return fileValue
	}
	return envValue
}

func boolOrDefault(fileValue *bool, envValue bool) bool {
	if fileValue != nil {
		return *fileValue
	}
	return envValue
}

// getEnv returns the environment value or the default when unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an integer environment variable.
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv parses a float environment variable.
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv parses a boolean environment variable.
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
