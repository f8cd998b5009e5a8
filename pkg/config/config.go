package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Build-time constants, set with
//
//	-ldflags "-X github.com/saaga0h/sunlamp/pkg/config.WiFiSSID=... -X ..."
//
// They are deliberately not reachable from the config file, env or flags.
var (
	WiFiSSID       string
	WiFiPassword   string
	LocationSuffix = "json"
)

// Config holds the configuration for the sunlamp controller
type Config struct {
	// Service configuration
	ServiceName string `yaml:"service_name"`
	DeviceName  string `yaml:"device_name"`
	HealthPort  int    `yaml:"health_port"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	LogMaxSizeMB  int  `yaml:"log_max_size_mb"`
	LogMaxBackups int  `yaml:"log_max_backups"`

	// Network radio configuration
	RadioMode           string `yaml:"radio_mode"`
	RadioWakeCommand    string `yaml:"radio_wake_command"`
	RadioConnectCommand string `yaml:"radio_connect_command"`
	RadioSleepCommand   string `yaml:"radio_sleep_command"`
	ProbeAddress        string `yaml:"probe_address"`
	ConnectTimeoutSec   int    `yaml:"connect_timeout_sec"`

	// External services
	LocationSource string `yaml:"location_source"`
	LocationURL    string `yaml:"location_url"`
	Latitude       string `yaml:"latitude"`
	Longitude      string `yaml:"longitude"`
	TimeURL        string `yaml:"time_url"`
	Timezone       string `yaml:"timezone"`
	SunSource      string `yaml:"sun_source"`
	SunURL         string `yaml:"sun_url"`
	InsecureTLS    bool   `yaml:"insecure_tls"`
	HTTPTimeoutSec int    `yaml:"http_timeout_sec"`

	// Output configuration
	OutputKind     string   `yaml:"output_kind"`
	OutputPins     []int    `yaml:"output_pins"`
	PWMFrequencyHz int      `yaml:"pwm_frequency_hz"`
	OutputTopics   []string `yaml:"output_topics"`
	HueHost        string   `yaml:"hue_host"`
	HueUser        string   `yaml:"hue_user"`
	HueLights      []int    `yaml:"hue_lights"`

	// Power scheduling
	LivenessIntervalSec int `yaml:"liveness_interval_sec"`
	MaxSleepSec         int `yaml:"max_sleep_sec"`
	RetryIntervalSec    int `yaml:"retry_interval_sec"`

	// MQTT configuration (telemetry and mqtt outputs); empty broker disables it
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTPort     int    `yaml:"mqtt_port"`
	MQTTUser     string `yaml:"mqtt_user"`
	MQTTPassword string `yaml:"mqtt_password"`
	MQTTClientID string `yaml:"mqtt_client_id"`

	// Redis configuration (status recording); empty host disables it
	RedisHost     string `yaml:"redis_host"`
	RedisPort     int    `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	HistoryLength int    `yaml:"history_length"`
	StatusTTLSec  int    `yaml:"status_ttl_sec"`

	// Build-time values, copied from the package constants
	WiFiSSID       string `yaml:"-"`
	WiFiPassword   string `yaml:"-"`
	LocationSuffix string `yaml:"-"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		ServiceName:   "sunlamp",
		DeviceName:    "sunlamp",
		HealthPort:    8080,
		LogLevel:      "info",
		LogFile:       "",
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
		// Radio defaults: NetworkManager on a Raspberry Pi
		RadioMode:           "none",
		RadioWakeCommand:    "nmcli radio wifi on",
		RadioConnectCommand: `nmcli device wifi connect "$SSID" password "$PASSWORD"`,
		RadioSleepCommand:   "nmcli radio wifi off",
		ProbeAddress:        "ipinfo.io:80",
		ConnectTimeoutSec:   30,
		// Service defaults
		LocationSource: "ipinfo",
		LocationURL:    "http://ipinfo.io/",
		Latitude:       "",
		Longitude:      "",
		TimeURL:        "http://worldtimeapi.org/api/timezone/",
		Timezone:       "Europe/Kyiv",
		SunSource:      "sunrisesunset",
		SunURL:         "https://api.sunrisesunset.io/json",
		InsecureTLS:    true,
		HTTPTimeoutSec: 10,
		// Output defaults: two hardware PWM pins
		OutputKind:     "log",
		OutputPins:     []int{18, 19},
		PWMFrequencyHz: 1000,
		OutputTopics:   []string{"sunlamp/command/light/0", "sunlamp/command/light/1"},
		HueHost:        "",
		HueUser:        "",
		HueLights:      []int{1, 2},
		// Power defaults
		LivenessIntervalSec: 5,
		MaxSleepSec:         3600,
		RetryIntervalSec:    30,
		// Telemetry defaults (disabled until a broker/host is set)
		MQTTBroker:    "",
		MQTTPort:      1883,
		RedisHost:     "",
		RedisPort:     6379,
		RedisDB:       0,
		HistoryLength: 100,
		StatusTTLSec:  172800,
		// Build-time values
		WiFiSSID:       WiFiSSID,
		WiFiPassword:   WiFiPassword,
		LocationSuffix: LocationSuffix,
	}
}

// LoadFromFile overlays values present in a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables with SUNLAMP_ prefix
func (c *Config) LoadFromEnv() {
	// Service configuration
	envString("SUNLAMP_SERVICE_NAME", &c.ServiceName)
	envString("SUNLAMP_DEVICE_NAME", &c.DeviceName)
	envInt("SUNLAMP_HEALTH_PORT", &c.HealthPort)
	envString("SUNLAMP_LOG_LEVEL", &c.LogLevel)
	envString("SUNLAMP_LOG_FILE", &c.LogFile)
	envInt("SUNLAMP_LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	envInt("SUNLAMP_LOG_MAX_BACKUPS", &c.LogMaxBackups)

	// Radio configuration
	envString("SUNLAMP_RADIO_MODE", &c.RadioMode)
	envString("SUNLAMP_RADIO_WAKE_COMMAND", &c.RadioWakeCommand)
	envString("SUNLAMP_RADIO_CONNECT_COMMAND", &c.RadioConnectCommand)
	envString("SUNLAMP_RADIO_SLEEP_COMMAND", &c.RadioSleepCommand)
	envString("SUNLAMP_PROBE_ADDRESS", &c.ProbeAddress)
	envInt("SUNLAMP_CONNECT_TIMEOUT_SEC", &c.ConnectTimeoutSec)

	// External services
	envString("SUNLAMP_LOCATION_SOURCE", &c.LocationSource)
	envString("SUNLAMP_LOCATION_URL", &c.LocationURL)
	envString("SUNLAMP_LATITUDE", &c.Latitude)
	envString("SUNLAMP_LONGITUDE", &c.Longitude)
	envString("SUNLAMP_TIME_URL", &c.TimeURL)
	envString("SUNLAMP_TIMEZONE", &c.Timezone)
	envString("SUNLAMP_SUN_SOURCE", &c.SunSource)
	envString("SUNLAMP_SUN_URL", &c.SunURL)
	envBool("SUNLAMP_INSECURE_TLS", &c.InsecureTLS)
	envInt("SUNLAMP_HTTP_TIMEOUT_SEC", &c.HTTPTimeoutSec)

	// Output configuration
	envString("SUNLAMP_OUTPUT_KIND", &c.OutputKind)
	envIntList("SUNLAMP_OUTPUT_PINS", &c.OutputPins)
	envInt("SUNLAMP_PWM_FREQUENCY_HZ", &c.PWMFrequencyHz)
	envStringList("SUNLAMP_OUTPUT_TOPICS", &c.OutputTopics)
	envString("SUNLAMP_HUE_HOST", &c.HueHost)
	envString("SUNLAMP_HUE_USER", &c.HueUser)
	envIntList("SUNLAMP_HUE_LIGHTS", &c.HueLights)

	// Power scheduling
	envInt("SUNLAMP_LIVENESS_INTERVAL_SEC", &c.LivenessIntervalSec)
	envInt("SUNLAMP_MAX_SLEEP_SEC", &c.MaxSleepSec)
	envInt("SUNLAMP_RETRY_INTERVAL_SEC", &c.RetryIntervalSec)

	// MQTT configuration
	envString("SUNLAMP_MQTT_BROKER", &c.MQTTBroker)
	envInt("SUNLAMP_MQTT_PORT", &c.MQTTPort)
	envString("SUNLAMP_MQTT_USER", &c.MQTTUser)
	envString("SUNLAMP_MQTT_PASSWORD", &c.MQTTPassword)
	envString("SUNLAMP_MQTT_CLIENT_ID", &c.MQTTClientID)

	// Redis configuration
	envString("SUNLAMP_REDIS_HOST", &c.RedisHost)
	envInt("SUNLAMP_REDIS_PORT", &c.RedisPort)
	envString("SUNLAMP_REDIS_PASSWORD", &c.RedisPassword)
	envInt("SUNLAMP_REDIS_DB", &c.RedisDB)
	envInt("SUNLAMP_HISTORY_LENGTH", &c.HistoryLength)
	envInt("SUNLAMP_STATUS_TTL_SEC", &c.StatusTTLSec)
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() {
	if err := c.ParseFlags(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
}

// ParseFlags overrides config values from args
func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet(c.ServiceName, pflag.ContinueOnError)

	// Accepted here so it shows in usage; read earlier by ConfigFileFromArgs
	fs.String("config", "", "YAML config file")

	// Service flags
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	fs.StringVar(&c.DeviceName, "device-name", c.DeviceName, "Device name used in topics and keys")
	fs.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Log file path (empty logs to stdout)")
	fs.IntVar(&c.LogMaxSizeMB, "log-max-size-mb", c.LogMaxSizeMB, "Log file size before rotation")
	fs.IntVar(&c.LogMaxBackups, "log-max-backups", c.LogMaxBackups, "Rotated log files to keep")

	// Radio flags
	fs.StringVar(&c.RadioMode, "radio-mode", c.RadioMode, "Radio control (command, none)")
	fs.StringVar(&c.RadioWakeCommand, "radio-wake-command", c.RadioWakeCommand, "Shell command that powers the radio up")
	fs.StringVar(&c.RadioConnectCommand, "radio-connect-command", c.RadioConnectCommand, "Shell command that joins the network ($SSID, $PASSWORD)")
	fs.StringVar(&c.RadioSleepCommand, "radio-sleep-command", c.RadioSleepCommand, "Shell command that powers the radio down")
	fs.StringVar(&c.ProbeAddress, "probe-address", c.ProbeAddress, "host:port dialled to test connectivity")
	fs.IntVar(&c.ConnectTimeoutSec, "connect-timeout", c.ConnectTimeoutSec, "Network connect timeout in seconds")

	// Service endpoint flags
	fs.StringVar(&c.LocationSource, "location-source", c.LocationSource, "Location source (ipinfo, static)")
	fs.StringVar(&c.LocationURL, "location-url", c.LocationURL, "Location lookup base URL")
	fs.StringVar(&c.Latitude, "latitude", c.Latitude, "Static latitude (decimal degrees)")
	fs.StringVar(&c.Longitude, "longitude", c.Longitude, "Static longitude (decimal degrees)")
	fs.StringVar(&c.TimeURL, "time-url", c.TimeURL, "Time service base URL")
	fs.StringVar(&c.Timezone, "timezone", c.Timezone, "IANA timezone of the time service")
	fs.StringVar(&c.SunSource, "sun-source", c.SunSource, "Sun events source (sunrisesunset, suncalc)")
	fs.StringVar(&c.SunURL, "sun-url", c.SunURL, "Sun-event service URL")
	fs.BoolVar(&c.InsecureTLS, "insecure-tls", c.InsecureTLS, "Skip certificate validation for the sun-event service")
	fs.IntVar(&c.HTTPTimeoutSec, "http-timeout", c.HTTPTimeoutSec, "HTTP fetch timeout in seconds")

	// Output flags
	fs.StringVar(&c.OutputKind, "output-kind", c.OutputKind, "Output driver (pwm, mqtt, hue, log)")
	fs.IntSliceVar(&c.OutputPins, "output-pins", c.OutputPins, "GPIO pins for pwm outputs")
	fs.IntVar(&c.PWMFrequencyHz, "pwm-frequency", c.PWMFrequencyHz, "PWM output frequency in Hz")
	fs.StringSliceVar(&c.OutputTopics, "output-topics", c.OutputTopics, "Command topics for mqtt outputs")
	fs.StringVar(&c.HueHost, "hue-host", c.HueHost, "Hue bridge host")
	fs.StringVar(&c.HueUser, "hue-user", c.HueUser, "Hue bridge user")
	fs.IntSliceVar(&c.HueLights, "hue-lights", c.HueLights, "Hue light IDs for hue outputs")

	// Power flags
	fs.IntVar(&c.LivenessIntervalSec, "liveness-interval", c.LivenessIntervalSec, "Seconds between liveness lines while suspended")
	fs.IntVar(&c.MaxSleepSec, "max-sleep", c.MaxSleepSec, "Upper bound of one suspend call in seconds")
	fs.IntVar(&c.RetryIntervalSec, "retry-interval", c.RetryIntervalSec, "Wait after a degraded cycle with nothing scheduled")

	// MQTT flags
	fs.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname (empty disables)")
	fs.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	fs.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	fs.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	fs.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname (empty disables)")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")
	fs.IntVar(&c.HistoryLength, "history-length", c.HistoryLength, "Decisions kept in the Redis history list")
	fs.IntVar(&c.StatusTTLSec, "status-ttl", c.StatusTTLSec, "TTL of Redis status keys in seconds")

	return fs.Parse(args)
}

// ConfigFileFromArgs returns the --config value, falling back to SUNLAMP_CONFIG
func ConfigFileFromArgs(args []string) string {
	fs := pflag.NewFlagSet("config-file", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	path := fs.String("config", os.Getenv("SUNLAMP_CONFIG"), "")
	_ = fs.Parse(args)

	return *path
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.DeviceName == "" {
		return fmt.Errorf("device name is required")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("health port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	switch c.RadioMode {
	case "none":
	case "command":
		if c.RadioConnectCommand == "" {
			return fmt.Errorf("radio connect command is required in command mode")
		}
	default:
		return fmt.Errorf("invalid radio mode: %s (must be command or none)", c.RadioMode)
	}

	switch c.LocationSource {
	case "ipinfo":
		if c.LocationURL == "" {
			return fmt.Errorf("location URL is required")
		}
	case "static":
		if c.Latitude == "" || c.Longitude == "" {
			return fmt.Errorf("latitude and longitude are required for a static location")
		}
	default:
		return fmt.Errorf("invalid location source: %s (must be ipinfo or static)", c.LocationSource)
	}

	if c.Timezone == "" {
		return fmt.Errorf("timezone is required")
	}

	switch c.SunSource {
	case "sunrisesunset":
		if c.SunURL == "" {
			return fmt.Errorf("sun-event service URL is required")
		}
	case "suncalc":
	default:
		return fmt.Errorf("invalid sun source: %s (must be sunrisesunset or suncalc)", c.SunSource)
	}

	switch c.OutputKind {
	case "log":
	case "pwm":
		if len(c.OutputPins) == 0 {
			return fmt.Errorf("at least one output pin is required")
		}
		if c.PWMFrequencyHz <= 0 {
			return fmt.Errorf("PWM frequency must be positive")
		}
	case "mqtt":
		if len(c.OutputTopics) == 0 {
			return fmt.Errorf("at least one output topic is required")
		}
		if !c.MQTTEnabled() {
			return fmt.Errorf("MQTT broker is required for mqtt outputs")
		}
	case "hue":
		if c.HueHost == "" || c.HueUser == "" {
			return fmt.Errorf("hue host and user are required for hue outputs")
		}
		if len(c.HueLights) == 0 {
			return fmt.Errorf("at least one hue light is required")
		}
	default:
		return fmt.Errorf("invalid output kind: %s (must be pwm, mqtt, hue, or log)", c.OutputKind)
	}

	if c.MQTTEnabled() && (c.MQTTPort <= 0 || c.MQTTPort > 65535) {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisEnabled() && (c.RedisPort <= 0 || c.RedisPort > 65535) {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}

	if c.LivenessIntervalSec <= 0 {
		return fmt.Errorf("liveness interval must be positive")
	}
	if c.MaxSleepSec <= 0 {
		return fmt.Errorf("max sleep must be positive")
	}
	if c.RetryIntervalSec < 0 {
		return fmt.Errorf("retry interval must not be negative")
	}
	if c.HTTPTimeoutSec <= 0 {
		return fmt.Errorf("HTTP timeout must be positive")
	}

	return nil
}

// MQTTEnabled reports whether a broker is configured
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// RedisEnabled reports whether a Redis host is configured
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envStringList(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func envIntList(key string, dst *[]int) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return
			}
			out = append(out, n)
		}
		*dst = out
	}
}
