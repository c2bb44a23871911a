package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/andreazorzetto/yh/highlight"
	"github.com/hokaccha/go-prettyjson"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gopkg.in/yaml.v3"

	sdk "go.opentelemetry.io/otel/sdk/metric"

	"github.com/keeldata/trustvault/conf"
	"github.com/keeldata/trustvault/internal/build"
	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/metrics"
	"github.com/keeldata/trustvault/internal/pkg/xcache"
	"github.com/keeldata/trustvault/internal/server"
	"github.com/keeldata/trustvault/internal/server/db"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			handleConfigCommand()
			return
		case "version", "--version", "-v":
			showVersion()
			return
		case "help", "--help", "-h":
			showHelp()
			return
		case "build-info":
			showBuildInfo()
			return
		}
	}

	startServer()
}

func showBuildInfo() {
	fmt.Println(build.GetBuildInfo())
}

type logger struct{}

func (l *logger) LogEvent(event fxevent.Event) {
	log.Debug(context.Background(), "fx event", log.Any("event", event))
}

func startServer() {
	server.Run(
		fx.WithLogger(func() fxevent.Logger {
			return &logger{}
		}),
		fx.Provide(conf.Load),
		fx.Provide(metrics.NewProvider),
		fx.Invoke(func(lc fx.Lifecycle, server *server.Server, provider *sdk.MeterProvider) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if provider != nil {
						return metrics.SetupMetrics(provider, server.Config.Name)
					}

					return nil
				},
				OnStop: func(ctx context.Context) error {
					if provider != nil {
						return provider.Shutdown(ctx)
					}

					return nil
				},
			})
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() {
						err := server.Run()
						if err != nil {
							log.Error(context.Background(), "server run error:", log.Cause(err))
							os.Exit(1)
						}
					}()

					return nil
				},
				OnStop: func(ctx context.Context) error {
					// The store is closed by the dependency graph, only the
					// listener needs to drain here.
					err := server.Shutdown(ctx)
					if err != nil {
						log.Error(context.Background(), "server shutdown error:", log.Cause(err))
					}

					return nil
				},
			})
		}),
	)
}

func handleConfigCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: trustvault config <preview|validate|get>")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "preview":
		configPreview()
	case "validate":
		configValidate()
	case "get":
		configGet()
	default:
		fmt.Println("Usage: trustvault config <preview|validate|get>")
		os.Exit(1)
	}
}

func configPreview() {
	format := "yml"

	for i := 3; i < len(os.Args); i++ {
		if os.Args[i] == "--format" || os.Args[i] == "-f" {
			if i+1 < len(os.Args) {
				format = os.Args[i+1]
			}
		}
	}

	config, err := conf.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var output string

	switch format {
	case "json":
		b, err := prettyjson.Marshal(config)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output = string(b)
	case "yml", "yaml":
		b, err := yaml.Marshal(config)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output, err = highlight.Highlight(bytes.NewBuffer(b))
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unsupported format: %s\n", format)
		os.Exit(1)
	}

	fmt.Println(output)
}

func configValidate() {
	config, err := conf.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	errors := validateConfig(config)

	if len(errors) == 0 {
		fmt.Println("Configuration is valid!")
		return
	}

	fmt.Println("Configuration validation failed:")

	for _, err := range errors {
		fmt.Printf("  - %s\n", err)
	}

	os.Exit(1)
}

func validateConfig(config conf.Config) []string {
	var errors []string

	if config.APIServer.Port <= 0 || config.APIServer.Port > 65535 {
		errors = append(errors, "server.port must be between 1 and 65535")
	}

	dialects := []string{db.DialectMemory, db.DialectSQLite, db.DialectPostgres, db.DialectMySQL}
	if !lo.Contains(dialects, config.DB.Dialect) {
		errors = append(errors, fmt.Sprintf("db.dialect must be one of %v", dialects))
	}

	if config.DB.Dialect != db.DialectMemory && config.DB.DSN == "" {
		errors = append(errors, "db.dsn cannot be empty")
	}

	if config.Log.Name == "" {
		errors = append(errors, "log.name cannot be empty")
	}

	if config.APIServer.CORS.Enabled && len(config.APIServer.CORS.AllowedOrigins) == 0 {
		errors = append(errors, "server.cors.allowed_origins cannot be empty when CORS is enabled")
	}

	if config.GC.CRON == "" {
		errors = append(errors, "gc.cron cannot be empty")
	}

	needsRedis := config.Cache.Mode == xcache.ModeRedis || config.Cache.Mode == xcache.ModeTwoLevel
	if needsRedis && config.Cache.Redis.Addr == "" && config.Cache.Redis.URL == "" {
		errors = append(errors, fmt.Sprintf("cache.redis.addr or cache.redis.url is required for %s mode", config.Cache.Mode))
	}

	if err := config.Risk.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("risk: %v", err))
	}

	return errors
}

func configGet() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: trustvault config get <key>")
		fmt.Println("")
		fmt.Println("Available keys:")
		fmt.Println("  server.port     Server port number")
		fmt.Println("  server.name     Server name")
		fmt.Println("  db.dialect      Database dialect")
		fmt.Println("  db.dsn          Database DSN")
		fmt.Println("  log.level       Log level")
		fmt.Println("  watcher.mode    Session watcher mode")
		fmt.Println("  gc.cron         Retention sweep schedule")
		os.Exit(1)
	}

	key := os.Args[3]

	config, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var value interface{}

	switch key {
	case "server.port":
		value = config.APIServer.Port
	case "server.name":
		value = config.APIServer.Name
	case "server.base_path":
		value = config.APIServer.BasePath
	case "server.debug":
		value = config.APIServer.Debug
	case "db.dialect":
		value = config.DB.Dialect
	case "db.dsn":
		value = config.DB.DSN
	case "log.level":
		value = config.Log.Level
	case "audit.enabled":
		value = config.Audit.Enabled
	case "watcher.mode":
		value = config.Watcher.Mode
	case "gc.cron":
		value = config.GC.CRON
	default:
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		os.Exit(1)
	}

	fmt.Println(cast.ToString(value))
}

func showHelp() {
	fmt.Println("TrustVault Zero-Trust Data Vault")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  trustvault                    Start the server (default)")
	fmt.Println("  trustvault config preview     Preview configuration")
	fmt.Println("  trustvault config validate    Validate configuration")
	fmt.Println("  trustvault config get <key>   Get a specific config value")
	fmt.Println("  trustvault version            Show version")
	fmt.Println("  trustvault build-info         Show build information")
	fmt.Println("  trustvault help               Show this help message")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -f, --format FORMAT       Output format for config preview (yml, json)")
}

func showVersion() {
	fmt.Println(build.Version)
}
