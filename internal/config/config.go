// Package config defines the YAML configuration schema for the gateway,
// the loader that validates it, and the registry mapping connector names
// to their constructors.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel is a validated slog level name.
type LogLevel string

// Valid log levels.
const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the known levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML values can be written as "300s" or
// "2m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root of the YAML configuration file.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Session    SessionConfig    `yaml:"session"`
	Audio      AudioConfig      `yaml:"audio"`

	// Connectors maps connector names (e.g. "aws_lex", "local_audio") to
	// their settings. Only enabled entries are instantiated.
	Connectors map[string]ConnectorEntry `yaml:"connectors"`
}

// ServerConfig covers the caller-facing stream listener.
type ServerConfig struct {
	// ListenAddr for the websocket stream endpoint. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel for the whole process. Default "info".
	LogLevel LogLevel `yaml:"log_level"`

	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig covers bearer-token validation on the stream endpoint.
type AuthConfig struct {
	// Enabled turns JWT validation on. Default off for local development.
	Enabled bool `yaml:"enabled"`

	// HMACSecret enables HS256 validation when set.
	HMACSecret string `yaml:"hmac_secret"`

	// RSAPublicKeyFile enables RS256 validation from a PEM file when set.
	RSAPublicKeyFile string `yaml:"rsa_public_key_file"`

	// Issuers is the allow-list of accepted token issuers. Empty accepts
	// any issuer.
	Issuers []string `yaml:"issuers"`

	// Audience, when set, must appear in the token's aud claim.
	Audience string `yaml:"audience"`
}

// MonitoringConfig covers the health/status/metrics listener.
type MonitoringConfig struct {
	// ListenAddr for /healthz, /readyz, /status and /metrics.
	// Default ":9090".
	ListenAddr string `yaml:"listen_addr"`
}

// SessionConfig tunes session lifecycle.
type SessionConfig struct {
	// IdleTimeout after which a silent conversation is reclaimed.
	// Default 300s.
	IdleTimeout Duration `yaml:"idle_timeout"`

	// ReapInterval between idle sweeps. Default 60s.
	ReapInterval Duration `yaml:"reap_interval"`

	// BackendTimeout bounds each vendor backend call. Default 15s.
	BackendTimeout Duration `yaml:"backend_timeout"`

	// CleanupGrace bounds backend session cleanup. Default 5s.
	CleanupGrace Duration `yaml:"cleanup_grace"`
}

// AudioConfig tunes utterance segmentation.
type AudioConfig struct {
	// SilenceThreshold controls the voiced-byte ratio required for a frame
	// to count as speech. Default 2000.
	SilenceThreshold int `yaml:"silence_threshold"`

	// SilenceDuration of trailing quiet that completes an utterance.
	// Default 2s.
	SilenceDuration Duration `yaml:"silence_duration"`

	// QuietThreshold is the half-width of the µ-law quiet band. Default 20.
	QuietThreshold int `yaml:"quiet_threshold"`

	// MaxBufferBytes caps one utterance. Default 1048576.
	MaxBufferBytes int `yaml:"max_buffer_bytes"`
}

// ConnectorEntry holds per-connector settings. Fields are a union across
// connector types; each constructor picks what it needs.
type ConnectorEntry struct {
	Enabled bool `yaml:"enabled"`

	// AWS Lex settings.
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	BotAliasID      string `yaml:"bot_alias_id"`
	LocaleID        string `yaml:"locale_id"`

	// Local audio stub settings.
	AudioDir string `yaml:"audio_dir"`
	AgentID  string `yaml:"agent_id"`
}
