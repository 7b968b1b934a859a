package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/getmockd/stubd/internal/matching"
	"github.com/getmockd/stubd/pkg/engine"
	"github.com/getmockd/stubd/pkg/httputil"
	"github.com/getmockd/stubd/pkg/logging"
)

// EnvPrefix prefixes environment overrides, e.g. STUBD_PORT.
const EnvPrefix = "STUBD"

// ServerConfig holds every recognized server option.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=0,max=65535"`

	AllowPartialMapping bool    `mapstructure:"allowPartialMapping"`
	MinScore            float64 `mapstructure:"minScore" validate:"min=0,max=1"`
	Aggregation         string  `mapstructure:"aggregation" validate:"oneof=mean min MEAN MIN"`
	NotFoundStatus      int     `mapstructure:"notFoundStatus" validate:"min=100,max=599"`
	NearMisses          int     `mapstructure:"nearMisses" validate:"min=0,max=50"`

	ReadStaticMappings  bool   `mapstructure:"readStaticMappings"`
	WatchStaticMappings bool   `mapstructure:"watchStaticMappings"`
	MappingsDir         string `mapstructure:"mappingsDir" validate:"required"`

	AdminEnabled bool  `mapstructure:"adminEnabled"`
	MaxBodySize  int64 `mapstructure:"maxBodySize" validate:"min=1"`

	// JournalSize is how many served requests the admin API can list.
	// Zero disables the journal.
	JournalSize int `mapstructure:"journalSize" validate:"min=0"`

	LogLevel  string `mapstructure:"logLevel"`
	LogFormat string `mapstructure:"logFormat"`

	// LokiEndpoint, when set, also pushes logs to a Loki push URL.
	LokiEndpoint string `mapstructure:"lokiEndpoint" validate:"omitempty,url"`

	ReadTimeout  time.Duration `mapstructure:"readTimeout" validate:"min=0"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" validate:"min=0"`
}

// Defaults returns the built-in configuration.
func Defaults() ServerConfig {
	return ServerConfig{
		Host:               "0.0.0.0",
		Port:               9091,
		Aggregation:        string(matching.AggregateMean),
		NotFoundStatus:     404,
		NearMisses:         3,
		ReadStaticMappings: true,
		MappingsDir:        "__admin/mappings",
		AdminEnabled:       true,
		JournalSize:        1000,
		MaxBodySize:        httputil.DefaultMaxBodySize,
		LogLevel:           "info",
		LogFormat:          "text",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       60 * time.Second,
	}
}

// NewViper returns a viper instance carrying the defaults and reading
// STUBD_-prefixed environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Defaults()
	for key, value := range map[string]any{
		"host":                d.Host,
		"port":                d.Port,
		"allowPartialMapping": d.AllowPartialMapping,
		"minScore":            d.MinScore,
		"aggregation":         d.Aggregation,
		"notFoundStatus":      d.NotFoundStatus,
		"nearMisses":          d.NearMisses,
		"readStaticMappings":  d.ReadStaticMappings,
		"watchStaticMappings": d.WatchStaticMappings,
		"mappingsDir":         d.MappingsDir,
		"adminEnabled":        d.AdminEnabled,
		"journalSize":         d.JournalSize,
		"maxBodySize":         d.MaxBodySize,
		"logLevel":            d.LogLevel,
		"logFormat":           d.LogFormat,
		"lokiEndpoint":        d.LokiEndpoint,
		"readTimeout":         d.ReadTimeout,
		"writeTimeout":        d.WriteTimeout,
	} {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile (optional) into v, then decodes and validates the result.
func Load(v *viper.Viper, configFile string) (*ServerConfig, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks option ranges.
func (c *ServerConfig) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr returns host:port for the listener.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// EngineOptions converts the selection options.
func (c *ServerConfig) EngineOptions() (engine.Options, error) {
	agg, err := matching.ParseAggregation(c.Aggregation)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		AllowPartial:   c.AllowPartialMapping,
		MinScore:       c.MinScore,
		Aggregation:    agg,
		NotFoundStatus: c.NotFoundStatus,
		MaxBodySize:    c.MaxBodySize,
		NearMisses:     c.NearMisses,
	}, nil
}

// ServerSettings converts the listener options.
func (c *ServerConfig) ServerSettings() engine.ServerConfig {
	return engine.ServerConfig{
		Addr:         c.Addr(),
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// Logging converts the logging options.
func (c *ServerConfig) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.LogLevel)
	cfg.Format = logging.ParseFormat(c.LogFormat)
	return cfg
}
