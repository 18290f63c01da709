package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Camera   CameraConfig
	Station  StationConfig
	Matching MatchingConfig
	Platform PlatformConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	DSN string
}

type AuthConfig struct {
	JWTSecret string
}

type CameraConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// StationConfig holds the stability detector tuning for one scale platform.
type StationConfig struct {
	MinWeight          decimal.Decimal
	StabilityTolerance decimal.Decimal
	StabilityWindow    time.Duration
	SampleInterval     time.Duration
	MinWindowFill      float64
}

// MatchingConfig holds the pairing tolerances for the matching engine.
type MatchingConfig struct {
	MaxInterval    time.Duration
	MinWeightDelta decimal.Decimal
	ReceivingFirst bool
}

type PlatformConfig struct {
	PushURL      string
	PushInterval time.Duration
	Token        string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("WEIGHBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	minWeight, err := decimal.NewFromString(v.GetString("station.min_weight"))
	if err != nil {
		return nil, fmt.Errorf("station.min_weight: %w", err)
	}
	tolerance, err := decimal.NewFromString(v.GetString("station.stability_tolerance"))
	if err != nil {
		return nil, fmt.Errorf("station.stability_tolerance: %w", err)
	}
	minDelta, err := decimal.NewFromString(v.GetString("matching.min_weight_delta"))
	if err != nil {
		return nil, fmt.Errorf("matching.min_weight_delta: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("database.dsn"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
		},
		Camera: CameraConfig{
			BaseURL: v.GetString("camera.base_url"),
			Model:   v.GetString("camera.model"),
			Timeout: v.GetDuration("camera.timeout"),
		},
		Station: StationConfig{
			MinWeight:          minWeight,
			StabilityTolerance: tolerance,
			StabilityWindow:    v.GetDuration("station.stability_window"),
			SampleInterval:     v.GetDuration("station.sample_interval"),
			MinWindowFill:      v.GetFloat64("station.min_window_fill"),
		},
		Matching: MatchingConfig{
			MaxInterval:    time.Duration(v.GetInt("matching.max_interval_minutes")) * time.Minute,
			MinWeightDelta: minDelta,
			ReceivingFirst: v.GetBool("matching.receiving_first"),
		},
		Platform: PlatformConfig{
			PushURL:      v.GetString("platform.push_url"),
			PushInterval: v.GetDuration("platform.push_interval"),
			Token:        v.GetString("platform.token"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
	}

	if cfg.Station.StabilityWindow <= 0 {
		return nil, fmt.Errorf("station.stability_window must be positive")
	}
	if cfg.Station.SampleInterval <= 0 {
		return nil, fmt.Errorf("station.sample_interval must be positive")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.dsn", "host=localhost user=weighbridge dbname=weighbridge sslmode=disable")
	v.SetDefault("camera.model", "generic")
	v.SetDefault("camera.timeout", "10s")
	v.SetDefault("station.min_weight", "0.5")
	v.SetDefault("station.stability_tolerance", "0.1")
	v.SetDefault("station.stability_window", "10s")
	v.SetDefault("station.sample_interval", "300ms")
	v.SetDefault("station.min_window_fill", 0.8)
	v.SetDefault("matching.max_interval_minutes", 300)
	v.SetDefault("matching.min_weight_delta", "1")
	v.SetDefault("matching.receiving_first", true)
	v.SetDefault("platform.push_interval", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
