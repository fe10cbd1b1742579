package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/scoring"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Auth struct {
		Secret   string `yaml:"secret"`
		Issuer   string `yaml:"issuer"`
		TokenTTL string `yaml:"tokenTTL"`
	} `yaml:"auth"`
	Session struct {
		MinParticipants   int    `yaml:"minParticipants"`
		Countdown         string `yaml:"countdown"`
		PrepareDelay      string `yaml:"prepareDelay"`
		QuestionGrace     string `yaml:"questionGrace"`
		IdleTimeout       string `yaml:"idleTimeout"`
		IdleCheckInterval string `yaml:"idleCheckInterval"`
		Retention         string `yaml:"retention"`
		CodeLength        int    `yaml:"codeLength"`
		QueueSize         int    `yaml:"queueSize"`
	} `yaml:"session"`
	Scoring scoring.Config `yaml:"scoring"`
}

// Default returns the configuration used when no file or key overrides it.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Redis.TTL = "10m"
	cfg.Quiz.TTL = "10m"
	cfg.Auth.Secret = "dev-secret"
	cfg.Auth.TokenTTL = "12h"
	cfg.Session.MinParticipants = 1
	cfg.Session.Countdown = "3s"
	cfg.Session.PrepareDelay = "3s"
	cfg.Session.QuestionGrace = "0s"
	cfg.Session.IdleTimeout = "1h"
	cfg.Session.IdleCheckInterval = "30s"
	cfg.Session.Retention = "5m"
	cfg.Session.CodeLength = 6
	cfg.Session.QueueSize = 256
	cfg.Scoring = scoring.DefaultConfig()
	return cfg
}

// Load reads YAML config from path over the defaults. A missing file yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Registry builds the session registry settings.
func (c Config) Registry() app.RegistryConfig {
	out := app.DefaultRegistryConfig()
	s := c.Session
	if s.CodeLength > 0 {
		out.CodeLength = s.CodeLength
	}
	out.Retention = Duration(s.Retention, out.Retention)

	sess := out.Session
	if s.MinParticipants > 0 {
		sess.MinParticipants = s.MinParticipants
	}
	if s.QueueSize > 0 {
		sess.QueueSize = s.QueueSize
	}
	sess.Countdown = Duration(s.Countdown, sess.Countdown)
	sess.PrepareDelay = Duration(s.PrepareDelay, sess.PrepareDelay)
	sess.QuestionGrace = Duration(s.QuestionGrace, sess.QuestionGrace)
	sess.IdleTimeout = Duration(s.IdleTimeout, sess.IdleTimeout)
	sess.IdleCheckInterval = Duration(s.IdleCheckInterval, sess.IdleCheckInterval)
	sess.Scoring = c.Scoring
	out.Session = sess
	return out
}
