// Package config loads the immutable agent configuration from a YAML file
// with environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved, immutable configuration for one agent
// instance. It is built once at startup and passed by constructor
// injection to every component — no package-level globals.
type Config struct {
	SiteID  string `yaml:"site_id"`
	AgentID string `yaml:"agent_id"`

	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Failover   FailoverConfig   `yaml:"failover"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	Network    NetworkConfig    `yaml:"network"`
	Alert      AlertConfig      `yaml:"alert"`
	MC         MCConfig         `yaml:"mission_control"`
	Log        LogConfig        `yaml:"log"`
}

type CheckpointConfig struct {
	LocalBasePath string `yaml:"local_base_path"`
	RemoteBucket  string `yaml:"remote_bucket"`
	RemotePrefix  string `yaml:"remote_prefix"`
	KeepN         int    `yaml:"keep_n"`

	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Region    string `yaml:"s3_region"`
	S3AccessKey string `yaml:"-"`
	S3SecretKey string `yaml:"-"`
}

type RecoveryConfig struct {
	ReconnectScheduleSeconds []int         `yaml:"reconnect_schedule_seconds"`
	EscalationTimeoutSeconds int          `yaml:"escalation_timeout_seconds"`
	EscalationPollSeconds    int          `yaml:"escalation_poll_seconds"`
	PrimaryToBackup          map[string]string `yaml:"primary_to_backup"`
}

type FailoverConfig struct {
	BudgetMillis   int `yaml:"budget_millis"`
	ConfirmPolls   int `yaml:"confirm_polls"`
	ConfirmIntervalMillis int `yaml:"confirm_interval_millis"`
}

type HeartbeatConfig struct {
	ListenAddr          string `yaml:"listen_addr"`
	BearerToken         string `yaml:"-"`
	SilentThresholdMin  int    `yaml:"silent_threshold_min"`
	SilentCheckSeconds  int    `yaml:"silent_check_seconds"`
	DBPath              string `yaml:"db_path"`
}

type NetworkConfig struct {
	ListenAddr            string `yaml:"listen_addr"`
	PrimaryTarget         string `yaml:"primary_target"`
	FallbackTarget        string `yaml:"fallback_target"`
	IntervalSeconds       int    `yaml:"interval_seconds"`
	PingTimeoutSeconds    int    `yaml:"ping_timeout_seconds"`
	RollingWindowSeconds  int    `yaml:"rolling_window_seconds"`
	OutageConsecutiveSeconds int `yaml:"outage_consecutive_seconds"`
	LossAlertThresholdPct float64 `yaml:"loss_alert_threshold_pct"`
	StatusRateLimitPerMin int    `yaml:"status_rate_limit_per_min"`
	DBPath                string `yaml:"db_path"`
	RetentionDays         int    `yaml:"retention_days"`
}

type AlertConfig struct {
	RateLimitSeconds    int    `yaml:"rate_limit_seconds"`
	BatchWindowSeconds  int    `yaml:"batch_window_seconds"`
	SlackBotToken       string `yaml:"-"`
	SlackDMChannel      string `yaml:"slack_dm_channel"`
	SlackGroupChannel   string `yaml:"slack_group_channel"`
	OperatorMailTo      string `yaml:"operator_mail_to"`
}

type MCConfig struct {
	BaseURL      string `yaml:"base_url"`
	AuthToken    string `yaml:"-"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
}

// Default returns a Config populated with spec.md §6's documented defaults.
func Default() Config {
	return Config{
		Checkpoint: CheckpointConfig{
			LocalBasePath: "/var/dc1/checkpoints",
			RemotePrefix:  "checkpoints",
			KeepN:         3,
		},
		Recovery: RecoveryConfig{
			ReconnectScheduleSeconds: []int{1, 2, 4, 8, 16},
			EscalationTimeoutSeconds: 600,
			EscalationPollSeconds:    30,
			PrimaryToBackup:          map[string]string{},
		},
		Failover: FailoverConfig{
			BudgetMillis:          60000,
			ConfirmPolls:          10,
			ConfirmIntervalMillis: 500,
		},
		Heartbeat: HeartbeatConfig{
			ListenAddr:         ":8180",
			SilentThresholdMin: 130,
			SilentCheckSeconds: 600,
			DBPath:             "/var/lib/dc1agent/heartbeat.db",
		},
		Network: NetworkConfig{
			ListenAddr:               ":8181",
			IntervalSeconds:          10,
			PingTimeoutSeconds:       5,
			RollingWindowSeconds:     60,
			OutageConsecutiveSeconds: 5,
			LossAlertThresholdPct:    5.0,
			StatusRateLimitPerMin:    60,
			DBPath:                   "/var/lib/dc1agent/network.db",
			RetentionDays:            7,
		},
		Alert: AlertConfig{
			RateLimitSeconds:   600,
			BatchWindowSeconds: 1800,
		},
		MC: MCConfig{
			TimeoutSeconds: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML configuration file into a Config seeded with
// defaults, then applies secret overrides from the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DC1_S3_ACCESS_KEY"); v != "" {
		cfg.Checkpoint.S3AccessKey = v
	}
	if v := os.Getenv("DC1_S3_SECRET_KEY"); v != "" {
		cfg.Checkpoint.S3SecretKey = v
	}
	if v := os.Getenv("DC1_HEARTBEAT_TOKEN"); v != "" {
		cfg.Heartbeat.BearerToken = v
	}
	if v := os.Getenv("DC1_MC_TOKEN"); v != "" {
		cfg.MC.AuthToken = v
	}
	if v := os.Getenv("DC1_SLACK_BOT_TOKEN"); v != "" {
		cfg.Alert.SlackBotToken = v
	}
}

func (c Config) validate() error {
	if c.SiteID == "" {
		return fmt.Errorf("site_id is required")
	}
	if c.AgentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	if c.Checkpoint.KeepN < 1 {
		return fmt.Errorf("checkpoint.keep_n must be >= 1")
	}
	if c.MC.BaseURL == "" {
		return fmt.Errorf("mission_control.base_url is required")
	}
	return nil
}

// ReconnectSchedule returns the reconnect backoff as durations.
func (c RecoveryConfig) ReconnectSchedule() []time.Duration {
	out := make([]time.Duration, len(c.ReconnectScheduleSeconds))
	for i, s := range c.ReconnectScheduleSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}
