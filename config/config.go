package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/cellar"
	"github.com/sagarc03/cellar/database"
	cellarhttp "github.com/sagarc03/cellar/http"
	"github.com/sagarc03/cellar/s3blob"
	"github.com/sagarc03/cellar/storage"
)

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for cellar.
type Config struct {
	Server   ServerConfig             `mapstructure:"server" yaml:"server"`
	Storage  StorageConfig            `mapstructure:"storage" yaml:"storage"`
	Database database.Config          `mapstructure:"database" yaml:"database"`
	List     ListConfig               `mapstructure:"list" yaml:"list"`
	CORS     cellarhttp.CORSConfig    `mapstructure:"cors" yaml:"cors"`
	Log      LogConfig                `mapstructure:"log" yaml:"log"`
	Models   map[string]cellar.Schema `mapstructure:"models" yaml:"models"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          int   `mapstructure:"port" yaml:"port" validate:"required,min=1,max=65535"`
	MaxUploadSize int64 `mapstructure:"max_upload_size" yaml:"max_upload_size" validate:"min=0"`
}

// StorageConfig holds record storage configuration. The secret keys blob
// placement and is never written back by cellar.
type StorageConfig struct {
	Root    string        `mapstructure:"root" yaml:"root" validate:"required"`
	Secret  string        `mapstructure:"secret" yaml:"secret" validate:"required"`
	Backend string        `mapstructure:"backend" yaml:"backend" validate:"required,oneof=filesystem s3"`
	S3      s3blob.Config `mapstructure:"s3" yaml:"s3"`
}

// ListConfig holds page size limits for listing.
type ListConfig struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit" validate:"min=1,ltefield=MaxLimit"`
	MaxLimit     int `mapstructure:"max_limit" yaml:"max_limit" validate:"min=1"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
}

// StorageOptions converts the loaded configuration into storage.Open options.
func (c *Config) StorageOptions(registry *cellar.Registry) storage.Config {
	return storage.Config{
		Secret:       c.Storage.Secret,
		Root:         c.Storage.Root,
		Backend:      c.Storage.Backend,
		S3:           c.Storage.S3,
		Database:     c.Database,
		DefaultLimit: c.List.DefaultLimit,
		MaxLimit:     c.List.MaxLimit,
		Registry:     registry,
	}
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"db-type":   "database.type",
	"db-dsn":    "database.dsn",
	"root":      "storage.root",
	"secret":    "storage.secret",
	"backend":   "storage.backend",
	"port":      "server.port",
	"log-level": "log.level",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		// Use custom mapping if it exists, otherwise use flag name as-is
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance. Keys without
// a meaningful default are still registered so environment variables reach
// them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5708)
	v.SetDefault("server.max_upload_size", 0) // 0 means no limit

	v.SetDefault("storage.root", "./data")
	v.SetDefault("storage.secret", "")
	v.SetDefault("storage.backend", storage.BackendFilesystem)
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.create_bucket", false)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.tables.meta_data", storage.DefaultTable)

	v.SetDefault("list.default_limit", cellar.DefaultListLimit)
	v.SetDefault("list.max_limit", cellar.DefaultMaxListLimit)

	v.SetDefault("log.level", "info")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("CELLAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err := cfg.validateSemantics(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validateSemantics() error {
	if err := c.Database.Tables.Validate(); err != nil {
		return err
	}

	if c.Storage.Backend == storage.BackendS3 && c.Storage.S3.Bucket == "" {
		return errors.New("storage.s3.bucket is required for the s3 backend")
	}

	for ns, schema := range c.Models {
		if !cellar.IsValidNamespace(ns) {
			return fmt.Errorf("models: invalid namespace %q", ns)
		}
		for field, def := range schema {
			if def.Type == "" {
				return fmt.Errorf("models.%s.%s: type is required", ns, field)
			}
		}
	}

	return nil
}
