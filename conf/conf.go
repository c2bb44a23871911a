// Package conf loads the application configuration from file and
// environment, layered over built-in defaults.
//
// The file is trustvault.yaml, looked up in the working directory,
// $HOME/.trustvault and /etc/trustvault, or named explicitly via
// TRUSTVAULT_CONFIG. Environment variables override file values with the
// TRUSTVAULT_ prefix and underscores for nesting, e.g.
// TRUSTVAULT_SERVER_PORT=9090.
package conf

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/audit"
	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/metrics"
	"github.com/keeldata/trustvault/internal/pkg/watcher"
	"github.com/keeldata/trustvault/internal/pkg/xcache"
	"github.com/keeldata/trustvault/internal/risk"
	"github.com/keeldata/trustvault/internal/server"
	"github.com/keeldata/trustvault/internal/server/db"
	"github.com/keeldata/trustvault/internal/server/gc"
	"github.com/keeldata/trustvault/internal/tracing"
)

// Config is the root configuration. The fx.Out embed decomposes it so
// every component receives just its own section from the graph.
type Config struct {
	fx.Out

	APIServer server.Config  `conf:"server" yaml:"server" json:"server"`
	DB        db.Config      `conf:"db" yaml:"db" json:"db"`
	Log       log.Config     `conf:"log" yaml:"log" json:"log"`
	Audit     audit.Config   `conf:"audit" yaml:"audit" json:"audit"`
	Risk      risk.Config    `conf:"risk" yaml:"risk" json:"risk"`
	Metrics   metrics.Config `conf:"metrics" yaml:"metrics" json:"metrics"`
	Watcher   watcher.Config `conf:"watcher" yaml:"watcher" json:"watcher"`
	Cache     xcache.Config  `conf:"cache" yaml:"cache" json:"cache"`
	GC        gc.Config      `conf:"gc" yaml:"gc" json:"gc"`
}

// Default returns the built-in configuration. Only fields where the zero
// value is never a deliberate choice carry defaults; booleans stay off so
// an explicit false in the file is not overridden by the merge.
func Default() Config {
	return Config{
		APIServer: server.Config{
			Host:           "0.0.0.0",
			Port:           8090,
			Name:           "trustvault",
			ReadTimeout:    30 * time.Second,
			RequestTimeout: 60 * time.Second,
			Trace: tracing.Config{
				TraceHeader:   "TV-Trace-Id",
				RequestHeader: "TV-Request-Id",
			},
		},
		DB: db.Config{
			Dialect: "sqlite",
			DSN:     "trustvault.db",
		},
		Log: log.Config{
			Name:     "trustvault",
			Level:    "info",
			Encoding: "json",
			Output:   "stdout",
		},
		Risk: risk.DefaultConfig(),
		GC: gc.Config{
			CRON: "0 4 * * *",
			Age:  720 * time.Hour,
		},
	}
}

// Load reads trustvault.yaml and the environment into a Config.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("trustvault")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.trustvault")
	v.AddConfigPath("/etc/trustvault")

	if path := os.Getenv("TRUSTVAULT_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("TRUSTVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment overrides only apply to keys viper knows about, so the
	// commonly overridden scalars are registered up front.
	registerKeys(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("conf: read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, withConfTag); err != nil {
		return Config{}, fmt.Errorf("conf: unmarshal config: %w", err)
	}

	if err := mergo.Merge(&config, Default()); err != nil {
		return Config{}, fmt.Errorf("conf: merge defaults: %w", err)
	}

	return config, nil
}

// registerKeys makes the scalar keys visible to AutomaticEnv. The values
// are zero so the mergo pass stays the single source of defaults.
func registerKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.host",
		"server.port",
		"server.name",
		"server.base_path",
		"server.debug",
		"db.dialect",
		"db.dsn",
		"log.level",
		"log.encoding",
		"log.output",
		"audit.enabled",
		"metrics.enabled",
		"metrics.exporter",
		"metrics.endpoint",
		"watcher.mode",
		"cache.mode",
		"gc.cron",
	} {
		if !v.IsSet(key) {
			v.SetDefault(key, nil)
		}
	}
}

func withConfTag(dc *mapstructure.DecoderConfig) {
	dc.TagName = "conf"
}
