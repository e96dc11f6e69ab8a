// Package config loads the remodel runtime configuration from the legacy
// properties file, with environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultPath is where the migration hosts keep their properties file.
const DefaultPath = "/etc/mongoremodel.properties"

// EnvPrefix prefixes environment overrides, e.g. REMODEL_REDIS_URI.
const EnvPrefix = "REMODEL"

// Inspector selects how Kafka consumer-group offsets are read.
type Inspector string

const (
	InspectorAdmin Inspector = "admin"
	InspectorCLI   Inspector = "cli"
)

// RedisConfig locates the coordination store.
type RedisConfig struct {
	URI      string `mapstructure:"redis_uri" validate:"required"`
	Port     int    `mapstructure:"redis_port" validate:"min=1,max=65535"`
	DB       int    `mapstructure:"redis_db" validate:"min=0"`
	Password string `mapstructure:"redis_password"`
}

// Addr returns host:port for the redis client.
func (c RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", c.URI, c.Port) }

// KafkaConfig locates the brokers and selects the offset inspector.
type KafkaConfig struct {
	BootstrapServers string    `mapstructure:"kafka_bootstrap_servers" validate:"required"`
	Inspector        Inspector `mapstructure:"kafka_inspector" validate:"oneof=admin cli"`
	Home             string    `mapstructure:"kafka_home" validate:"required_if=Inspector cli"`
}

// Brokers splits the bootstrap server list.
func (c KafkaConfig) Brokers() []string { return splitList(c.BootstrapServers) }

// Timing holds the polling cadences of the launchers and the watchdog.
type Timing struct {
	SettleDelay          time.Duration `mapstructure:"settle_delay" validate:"min=0"`
	RegistrationRetries  int           `mapstructure:"registration_retries" validate:"min=1"`
	RegistrationInterval time.Duration `mapstructure:"registration_interval" validate:"gt=0"`
	ExitPollInterval     time.Duration `mapstructure:"exit_poll_interval" validate:"gt=0"`
	Cooldown             time.Duration `mapstructure:"cooldown" validate:"min=0"`
	WatchdogInterval     time.Duration `mapstructure:"watchdog_interval" validate:"gt=0"`
	KillGrace            time.Duration `mapstructure:"kill_grace" validate:"gt=0"`
	KillPoll             time.Duration `mapstructure:"kill_poll" validate:"gt=0"`
}

// Config is the full runtime configuration.
type Config struct {
	Redis  RedisConfig `mapstructure:",squash"`
	Kafka  KafkaConfig `mapstructure:",squash"`
	Timing Timing      `mapstructure:",squash"`

	SourceMongoURI        string `mapstructure:"src_mongo_uri"`
	MigrationBinary       string `mapstructure:"migration_binary" validate:"required"`
	MigrationBinaryCustom string `mapstructure:"migration_binary_custom"`
	Env                   string `mapstructure:"env"`
	NotifyURLs            string `mapstructure:"notify_urls"`
	OTelEndpoint          string `mapstructure:"otel_endpoint"`
	LogLevel              string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// Notifiers splits the configured notification URLs.
func (c Config) Notifiers() []string { return splitList(c.NotifyURLs) }

func defaults(v *viper.Viper) {
	v.SetDefault("redis_uri", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_password", "")
	v.SetDefault("kafka_bootstrap_servers", "localhost:9092")
	v.SetDefault("kafka_inspector", string(InspectorAdmin))
	v.SetDefault("kafka_home", "")
	v.SetDefault("src_mongo_uri", "")
	v.SetDefault("migration_binary", "")
	v.SetDefault("migration_binary_custom", "")
	v.SetDefault("env", "")
	v.SetDefault("notify_urls", "")
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("settle_delay", 3*time.Second)
	v.SetDefault("registration_retries", 60)
	v.SetDefault("registration_interval", time.Second)
	v.SetDefault("exit_poll_interval", time.Second)
	v.SetDefault("cooldown", time.Second)
	v.SetDefault("watchdog_interval", 2*time.Second)
	v.SetDefault("kill_grace", 60*time.Second)
	v.SetDefault("kill_poll", 2*time.Second)
}

// Load reads the properties file at path, applies REMODEL_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("properties")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct constraints.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
