package audit

import (
	"fmt"
	"time"

	"github.com/keeldata/trustvault/internal/pkg/xredis"
)

type LogSinkConfig struct {
	Enabled bool `conf:"enabled" yaml:"enabled" json:"enabled"`
}

type FileSinkConfig struct {
	Enabled bool   `conf:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `conf:"path" yaml:"path" json:"path"`
}

type RedisSinkConfig struct {
	Enabled bool          `conf:"enabled" yaml:"enabled" json:"enabled"`
	Redis   xredis.Config `conf:"redis" yaml:"redis" json:"redis"`
	Stream  string        `conf:"stream" yaml:"stream" json:"stream"`
	MaxLen  int64         `conf:"max_len" yaml:"max_len" json:"max_len"`
}

type Config struct {
	Enabled bool `conf:"enabled" yaml:"enabled" json:"enabled"`

	// QueueSize bounds the async queue; a full queue spills to the retry
	// buffer instead of blocking the request path.
	QueueSize int `conf:"queue_size" yaml:"queue_size" json:"queue_size"`

	// FlushTimeout bounds each sink write and the shutdown drain.
	FlushTimeout time.Duration `conf:"flush_timeout" yaml:"flush_timeout" json:"flush_timeout"`

	// RetryBuffer bounds the failed-delivery ring; oldest entries are
	// overwritten first.
	RetryBuffer int `conf:"retry_buffer" yaml:"retry_buffer" json:"retry_buffer"`

	// RetryCRON schedules the retry drain.
	RetryCRON string `conf:"retry_cron" yaml:"retry_cron" json:"retry_cron"`

	Log   LogSinkConfig   `conf:"log" yaml:"log" json:"log"`
	File  FileSinkConfig  `conf:"file" yaml:"file" json:"file"`
	Redis RedisSinkConfig `conf:"redis" yaml:"redis" json:"redis"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		QueueSize:    1024,
		FlushTimeout: 5 * time.Second,
		RetryBuffer:  1024,
		RetryCRON:    "* * * * *",
		Log:          LogSinkConfig{Enabled: true},
	}
}

// BuildSink assembles the configured sinks behind one MultiSink.
func BuildSink(cfg Config) (Sink, error) {
	var sinks []Sink

	if cfg.Log.Enabled {
		sinks = append(sinks, NewLogSink())
	}

	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("audit: file sink requires a path")
		}

		sinks = append(sinks, NewFileSink(nil, cfg.File.Path))
	}

	if cfg.Redis.Enabled {
		client, err := xredis.NewClient(cfg.Redis.Redis)
		if err != nil {
			return nil, fmt.Errorf("audit: redis sink: %w", err)
		}

		sinks = append(sinks, NewRedisSink(client, cfg.Redis.Stream, cfg.Redis.MaxLen))
	}

	if len(sinks) == 0 {
		sinks = append(sinks, NewLogSink())
	}

	return NewMultiSink(sinks...), nil
}
