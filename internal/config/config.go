package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env    string `yaml:"env"`
	Server struct {
		Port string `yaml:"port"`
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
	Questions struct {
		TTL   string `yaml:"ttl"`
		Types []int  `yaml:"types"`
	} `yaml:"questions"`
	Duel struct {
		RoundsPerDuel     int    `yaml:"roundsPerDuel"`
		QuestionsPerRound int    `yaml:"questionsPerRound"`
		ForfeitAfter      string `yaml:"forfeitAfter"`
		Retention         string `yaml:"retention"`
		SweepInterval     string `yaml:"sweepInterval"`
	} `yaml:"duel"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty or
// malformed.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// IntOr returns value unless it is zero or negative.
func IntOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
