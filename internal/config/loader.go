package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Server.Auth.Enabled {
		if cfg.Server.Auth.HMACSecret == "" && cfg.Server.Auth.RSAPublicKeyFile == "" {
			errs = append(errs, errors.New("server.auth.enabled requires hmac_secret or rsa_public_key_file"))
		}
		if cfg.Server.Auth.HMACSecret != "" && cfg.Server.Auth.RSAPublicKeyFile != "" {
			errs = append(errs, errors.New("server.auth: hmac_secret and rsa_public_key_file are mutually exclusive"))
		}
	}

	if cfg.Session.IdleTimeout < 0 {
		errs = append(errs, errors.New("session.idle_timeout must be positive"))
	}
	if cfg.Audio.SilenceThreshold < 0 {
		errs = append(errs, errors.New("audio.silence_threshold must not be negative"))
	}
	if cfg.Audio.MaxBufferBytes < 0 {
		errs = append(errs, errors.New("audio.max_buffer_bytes must not be negative"))
	}

	enabled := 0
	for name, entry := range cfg.Connectors {
		if !entry.Enabled {
			continue
		}
		enabled++
		if name == "aws_lex" && entry.Region == "" {
			errs = append(errs, errors.New("connectors.aws_lex.region is required"))
		}
		if entry.AccessKeyID != "" && entry.SecretAccessKey == "" ||
			entry.AccessKeyID == "" && entry.SecretAccessKey != "" {
			errs = append(errs, fmt.Errorf("connectors.%s: access_key_id and secret_access_key must be set together", name))
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("connectors: at least one connector must be enabled"))
	}

	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Monitoring.ListenAddr == "" {
		cfg.Monitoring.ListenAddr = ":9090"
	}
}
