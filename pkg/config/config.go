package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the mailprobe agent configuration
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	Target    TargetConfig    `yaml:"target"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Probing   ProbingConfig   `yaml:"probing"`
	Breaker   BreakerConfig   `yaml:"circuit_breaker"`
	Backoff   BackoffConfig   `yaml:"backoff"`
	Resources ResourceConfig  `yaml:"resources"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// FrameworkConfig contains general agent settings
type FrameworkConfig struct {
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	EnhancedLogging bool          `yaml:"enhanced_logging"`
	ShutdownGrace   time.Duration `yaml:"shutdown_grace"`
}

// TargetConfig identifies the probed email server
type TargetConfig struct {
	ServerIP       string `yaml:"server_ip"`
	Hostname       string `yaml:"hostname"`
	MXDomain       string `yaml:"mx_domain"`
	ExpectedMXIP   string `yaml:"expected_mx_ip"`
	HTTPPort       int    `yaml:"http_port"`
	HTTPSPort      int    `yaml:"https_port"`
	SMTPPort       int    `yaml:"smtp_port"`
	SubmissionPort int    `yaml:"submission_port"`
}

// SMTPConfig contains credentials and envelope addresses for SMTP probes
type SMTPConfig struct {
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	FromAddress string `yaml:"from_address"`
	ToAddress   string `yaml:"to_address"`
}

// ProbingConfig contains probe scheduling settings
type ProbingConfig struct {
	// Interval is the base probe interval. Bounded 30s-3600s.
	Interval time.Duration `yaml:"interval"`

	// Categorization enables mapping probe failures to error categories.
	// When disabled every failure is reported as "unknown".
	Categorization bool `yaml:"categorization"`
}

// BreakerConfig contains per-probe circuit breaker tuning
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// BackoffConfig contains retry backoff tuning
type BackoffConfig struct {
	// BaseInterval of zero means "use the probe interval".
	BaseInterval time.Duration `yaml:"base_interval"`
	MaxInterval  time.Duration `yaml:"max_interval"`
	Multiplier   float64       `yaml:"multiplier"`
	MaxFailures  int           `yaml:"max_failures"`
}

// ResourceConfig contains resource watcher thresholds
type ResourceConfig struct {
	Enabled            bool          `yaml:"enabled"`
	CheckInterval      time.Duration `yaml:"check_interval"`
	MemoryWarningMB    int           `yaml:"memory_warning_mb"`
	ThreadWarningCount int           `yaml:"thread_warning_count"`
}

// MetricsConfig contains exposition server settings
type MetricsConfig struct {
	Port int `yaml:"port"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			LogLevel:      "info",
			LogFormat:     "text",
			ShutdownGrace: 10 * time.Second,
		},
		Target: TargetConfig{
			HTTPPort:       80,
			HTTPSPort:      443,
			SMTPPort:       25,
			SubmissionPort: 587,
		},
		Probing: ProbingConfig{
			Interval:       60 * time.Second,
			Categorization: true,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
		},
		Backoff: BackoffConfig{
			MaxInterval: 3600 * time.Second,
			Multiplier:  2.0,
			MaxFailures: 10,
		},
		Resources: ResourceConfig{
			Enabled:            true,
			CheckInterval:      30 * time.Second,
			MemoryWarningMB:    512,
			ThreadWarningCount: 100,
		},
		Metrics: MetricsConfig{
			Port: 9101,
		},
	}
}

// Load builds the configuration: defaults first, then the optional YAML
// file, then environment variables. Environment always wins.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}

			// Expand environment variables in the YAML content
			expanded := []byte(os.ExpandEnv(string(data)))

			if err := yaml.Unmarshal(expanded, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays recognized environment variables onto the configuration
func (c *Config) applyEnv() error {
	var err error

	setString(&c.Target.ServerIP, "EMAIL_SERVER_IP")
	setString(&c.Target.Hostname, "EMAIL_SERVER_HOSTNAME")
	setString(&c.Target.MXDomain, "EMAIL_MX_DOMAIN")
	setString(&c.Target.ExpectedMXIP, "EXPECTED_IP")

	if err = setInt(&c.Target.HTTPPort, "EMAIL_SERVER_HTTP_PORT"); err != nil {
		return err
	}
	if err = setInt(&c.Target.HTTPSPort, "EMAIL_SERVER_HTTPS_PORT"); err != nil {
		return err
	}
	if err = setInt(&c.Target.SMTPPort, "EMAIL_SERVER_SMTP_PORT"); err != nil {
		return err
	}
	if err = setInt(&c.Target.SubmissionPort, "EMAIL_SERVER_SMTP_SECURE_PORT"); err != nil {
		return err
	}

	setString(&c.SMTP.Username, "EMAIL_SMTP_USERNAME")
	setString(&c.SMTP.Password, "EMAIL_SMTP_PASSWORD")
	setString(&c.SMTP.FromAddress, "FROM_ADDRESS")
	setString(&c.SMTP.ToAddress, "TO_ADDRESS")

	if err = setSeconds(&c.Probing.Interval, "PROBE_COLLECTION_INTERVAL"); err != nil {
		return err
	}
	if err = setInt(&c.Metrics.Port, "METRICS_EXPORT_PORT"); err != nil {
		return err
	}

	if err = setInt(&c.Breaker.FailureThreshold, "CIRCUIT_BREAKER_FAILURE_THRESHOLD"); err != nil {
		return err
	}
	if err = setSeconds(&c.Breaker.RecoveryTimeout, "CIRCUIT_BREAKER_RECOVERY_TIMEOUT"); err != nil {
		return err
	}

	if err = setSeconds(&c.Backoff.BaseInterval, "BACKOFF_BASE_INTERVAL"); err != nil {
		return err
	}
	if err = setSeconds(&c.Backoff.MaxInterval, "BACKOFF_MAX_INTERVAL"); err != nil {
		return err
	}
	if err = setFloat(&c.Backoff.Multiplier, "BACKOFF_MULTIPLIER"); err != nil {
		return err
	}
	if err = setInt(&c.Backoff.MaxFailures, "BACKOFF_MAX_FAILURES"); err != nil {
		return err
	}

	if err = setBool(&c.Probing.Categorization, "ENABLE_ERROR_CATEGORIZATION"); err != nil {
		return err
	}
	if err = setBool(&c.Framework.EnhancedLogging, "ENABLE_ENHANCED_LOGGING"); err != nil {
		return err
	}

	if err = setInt(&c.Resources.MemoryWarningMB, "RESOURCE_MEMORY_WARNING_MB"); err != nil {
		return err
	}
	if err = setInt(&c.Resources.ThreadWarningCount, "RESOURCE_THREAD_WARNING_COUNT"); err != nil {
		return err
	}
	if err = setBool(&c.Resources.Enabled, "RESOURCE_CHECK_ENABLED"); err != nil {
		return err
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Target.ServerIP == "" {
		return fmt.Errorf("EMAIL_SERVER_IP is required")
	}
	if net.ParseIP(c.Target.ServerIP) == nil {
		return fmt.Errorf("EMAIL_SERVER_IP %q is not a valid IP address", c.Target.ServerIP)
	}
	if c.Target.Hostname == "" {
		return fmt.Errorf("EMAIL_SERVER_HOSTNAME is required")
	}
	if c.Target.MXDomain == "" {
		return fmt.Errorf("EMAIL_MX_DOMAIN is required")
	}
	if c.Target.ExpectedMXIP == "" {
		return fmt.Errorf("EXPECTED_IP is required")
	}
	if net.ParseIP(c.Target.ExpectedMXIP) == nil {
		return fmt.Errorf("EXPECTED_IP %q is not a valid IP address", c.Target.ExpectedMXIP)
	}

	for name, port := range map[string]int{
		"EMAIL_SERVER_HTTP_PORT":        c.Target.HTTPPort,
		"EMAIL_SERVER_HTTPS_PORT":       c.Target.HTTPSPort,
		"EMAIL_SERVER_SMTP_PORT":        c.Target.SMTPPort,
		"EMAIL_SERVER_SMTP_SECURE_PORT": c.Target.SubmissionPort,
		"METRICS_EXPORT_PORT":           c.Metrics.Port,
	} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s must be in range 1-65535, got %d", name, port)
		}
	}

	if c.SMTP.Username == "" {
		return fmt.Errorf("EMAIL_SMTP_USERNAME is required")
	}
	if c.SMTP.Password == "" {
		return fmt.Errorf("EMAIL_SMTP_PASSWORD is required")
	}
	if c.SMTP.FromAddress == "" {
		return fmt.Errorf("FROM_ADDRESS is required")
	}
	if c.SMTP.ToAddress == "" {
		return fmt.Errorf("TO_ADDRESS is required")
	}

	if c.Probing.Interval < 30*time.Second || c.Probing.Interval > 3600*time.Second {
		return fmt.Errorf("PROBE_COLLECTION_INTERVAL must be in range 30-3600 seconds, got %v", c.Probing.Interval)
	}

	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("CIRCUIT_BREAKER_FAILURE_THRESHOLD must be at least 1, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("CIRCUIT_BREAKER_RECOVERY_TIMEOUT must be positive, got %v", c.Breaker.RecoveryTimeout)
	}

	if c.Backoff.Multiplier < 1 {
		return fmt.Errorf("BACKOFF_MULTIPLIER must be at least 1, got %v", c.Backoff.Multiplier)
	}
	if c.Backoff.MaxInterval <= 0 {
		return fmt.Errorf("BACKOFF_MAX_INTERVAL must be positive, got %v", c.Backoff.MaxInterval)
	}
	if c.Backoff.MaxFailures < 0 {
		return fmt.Errorf("BACKOFF_MAX_FAILURES must not be negative, got %d", c.Backoff.MaxFailures)
	}

	if c.Resources.Enabled {
		if c.Resources.MemoryWarningMB < 1 {
			return fmt.Errorf("RESOURCE_MEMORY_WARNING_MB must be at least 1, got %d", c.Resources.MemoryWarningMB)
		}
		if c.Resources.ThreadWarningCount < 1 {
			return fmt.Errorf("RESOURCE_THREAD_WARNING_COUNT must be at least 1, got %d", c.Resources.ThreadWarningCount)
		}
	}

	return nil
}

// BackoffBase returns the backoff base interval, falling back to the
// probe interval when not explicitly configured.
func (c *Config) BackoffBase() time.Duration {
	if c.Backoff.BaseInterval > 0 {
		return c.Backoff.BaseInterval
	}
	return c.Probing.Interval
}

// Save writes configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid number %q", key, v)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	*dst = b
	return nil
}

// setSeconds parses an environment variable holding a whole number of seconds
func setSeconds(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = time.Duration(n) * time.Second
	return nil
}
