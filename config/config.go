package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode     string `mapstructure:"mode"`
	Dotenv   string `mapstructure:"dotenv"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host               string        `mapstructure:"host"`
			Password           string        `mapstructure:"password"`
			Port               string        `mapstructure:"port"`
			Username           string        `mapstructure:"username"`
			DB                 string        `mapstructure:"db"`
			SSLMODE            string        `mapstructure:"SSLMODE"`
			MaxConnWaitingTime time.Duration `mapstructure:"maxConnWaitingTime"`
			MaxConns           int32         `mapstructure:"maxConns"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Plan      PlanConfig      `mapstructure:"plan"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// LLMConfig selects the completion backend and bounds how hard it is hit.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	RequestsPerMinute int           `mapstructure:"requestsPerMinute"`
	MaxConcurrentDays int           `mapstructure:"maxConcurrentDays"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type ProvidersConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries uint64        `mapstructure:"maxRetries"`
	Amadeus    struct {
		BaseURL           string  `mapstructure:"baseURL"`
		RadiusKm          int     `mapstructure:"radiusKm"`
		POIPageSize       int     `mapstructure:"poiPageSize"`
		POIMaxResults     int     `mapstructure:"poiMaxResults"`
		RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
	} `mapstructure:"amadeus"`
	Places struct {
		BaseURL        string `mapstructure:"baseURL"`
		MaxImages      int    `mapstructure:"maxImages"`
		PhotoMaxWidth  int    `mapstructure:"photoMaxWidth"`
		ThumbnailWidth int    `mapstructure:"thumbnailWidth"`
	} `mapstructure:"places"`
	Meteostat struct {
		BaseURL   string `mapstructure:"baseURL"`
		Host      string `mapstructure:"host"`
		StartYear int    `mapstructure:"startYear"`
		EndYear   int    `mapstructure:"endYear"`
	} `mapstructure:"meteostat"`
	CostOfLiving struct {
		BaseURL string `mapstructure:"baseURL"`
		Host    string `mapstructure:"host"`
	} `mapstructure:"costOfLiving"`
}

// PlanConfig bounds the commit transaction, the accepted durations and the
// background generation queue. An empty Durations list accepts any label up
// to MaxDays.
type PlanConfig struct {
	TxMaxWait  time.Duration `mapstructure:"txMaxWait"`
	TxTimeout  time.Duration `mapstructure:"txTimeout"`
	MaxDays    int           `mapstructure:"maxDays"`
	Durations  []string      `mapstructure:"durations"`
	StaleAfter time.Duration `mapstructure:"staleAfter"`
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queueSize"`
}

type RetentionConfig struct {
	Schedule  string        `mapstructure:"schedule"`
	Threshold time.Duration `mapstructure:"threshold"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")
	v.AddConfigPath("/usr/local/bin")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}
