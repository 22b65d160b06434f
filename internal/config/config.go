package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type DispatchConfig struct {
	TickIntervalSec  int     `yaml:"tick_interval_sec"`
	SearchRadiusM    float64 `yaml:"search_radius_m"`
	ArrivalRadiusM   float64 `yaml:"arrival_radius_m"`
	AcceptTimeoutSec int     `yaml:"accept_timeout_sec"`
	GeoTimeoutMs     int     `yaml:"geo_timeout_ms"`
	SweepConcurrency int     `yaml:"sweep_concurrency"`
	PresenceTTLSec   int     `yaml:"presence_ttl_sec"`
}

func (d DispatchConfig) TickInterval() time.Duration { return time.Duration(d.TickIntervalSec) * time.Second }
func (d DispatchConfig) AcceptTimeout() time.Duration { return time.Duration(d.AcceptTimeoutSec) * time.Second }
func (d DispatchConfig) GeoTimeout() time.Duration { return time.Duration(d.GeoTimeoutMs) * time.Millisecond }
func (d DispatchConfig) PresenceTTL() time.Duration { return time.Duration(d.PresenceTTLSec) * time.Second }

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	JWT struct {
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

func LoadConfig() *Config {
	f, err := os.Open("config/config.yaml")
	if err != nil {
		panic("Failed to open config.yaml: " + err.Error())
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		panic("Failed to parse config.yaml: " + err.Error())
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Dispatch.TickIntervalSec == 0 {
		cfg.Dispatch.TickIntervalSec = 120
	}
	if cfg.Dispatch.SearchRadiusM == 0 {
		cfg.Dispatch.SearchRadiusM = 10000
	}
	if cfg.Dispatch.ArrivalRadiusM == 0 {
		cfg.Dispatch.ArrivalRadiusM = 2
	}
	if cfg.Dispatch.AcceptTimeoutSec == 0 {
		cfg.Dispatch.AcceptTimeoutSec = 120
	}
	if cfg.Dispatch.GeoTimeoutMs == 0 {
		cfg.Dispatch.GeoTimeoutMs = 2000
	}
	if cfg.Dispatch.SweepConcurrency == 0 {
		cfg.Dispatch.SweepConcurrency = 8
	}
	if cfg.Dispatch.PresenceTTLSec == 0 {
		cfg.Dispatch.PresenceTTLSec = 90
	}
	return &cfg
}
