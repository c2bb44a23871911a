package log

import "time"

type Config struct {
	// Name is attached to every entry emitted by the logger.
	Name string `conf:"name" yaml:"name" json:"name"`

	// Level is the minimum enabled level: debug, info, warn or error.
	Level string `conf:"level" yaml:"level" json:"level"`

	// Encoding selects the output encoding: json or console.
	Encoding string `conf:"encoding" yaml:"encoding" json:"encoding"`

	// Output selects where entries go: stdout, stderr or file.
	Output string `conf:"output" yaml:"output" json:"output"`

	File FileConfig `conf:"file" yaml:"file" json:"file"`
}

// FileConfig controls rotation when Output is file.
type FileConfig struct {
	Path       string        `conf:"path" yaml:"path" json:"path"`
	MaxSizeMB  int           `conf:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int           `conf:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAge     time.Duration `conf:"max_age" yaml:"max_age" json:"max_age"`
	Compress   bool          `conf:"compress" yaml:"compress" json:"compress"`
}
